// Package audithook turns Bursar lifecycle hooks into audit events and hands
// them to a Recorder. Recording is fire-and-forget: a failing Recorder is
// logged and never fails the billing operation that triggered it.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/bursar/catalog"
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/invoice"
	"github.com/xraph/bursar/payment"
	"github.com/xraph/bursar/plan"
	"github.com/xraph/bursar/plugin"
	"github.com/xraph/bursar/subscription"
	"github.com/xraph/bursar/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                   = (*Extension)(nil)
	_ plugin.OnPlanCreated            = (*Extension)(nil)
	_ plugin.OnPlanUpdated            = (*Extension)(nil)
	_ plugin.OnEntitlementsRecomputed = (*Extension)(nil)
	_ plugin.OnEditionSelected        = (*Extension)(nil)
	_ plugin.OnSubscriptionChanged    = (*Extension)(nil)
	_ plugin.OnInvoiceCreated         = (*Extension)(nil)
	_ plugin.OnInvoiceTransitioned    = (*Extension)(nil)
	_ plugin.OnPaymentCreated         = (*Extension)(nil)
	_ plugin.OnPaymentUpdated         = (*Extension)(nil)
	_ plugin.OnPaymentLinked          = (*Extension)(nil)
	_ plugin.OnPaymentInvoiceMismatch = (*Extension)(nil)
	_ plugin.OnTenantMismatch         = (*Extension)(nil)
	_ plugin.OnWebhookReceived        = (*Extension)(nil)
)

// Recorder is the interface audit backends implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one append-only audit record.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	TenantID   string         `json:"tenant_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// LogRecorder writes audit events to a structured logger.
func LogRecorder(logger *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, e *AuditEvent) error {
		logger.InfoContext(ctx, "audit",
			"action", e.Action,
			"resource", e.Resource,
			"resource_id", e.ResourceID,
			"tenant_id", e.TenantID,
			"outcome", e.Outcome,
			"severity", e.Severity,
			"metadata", e.Metadata,
		)
		return nil
	})
}

// Extension bridges Bursar lifecycle hooks to an audit backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (e *Extension) OnInvoiceCreated(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceCreated, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), inv.TenantID, CategoryBilling, "",
		"invoice_id", inv.ID.String(),
		"invoice_number", inv.InvoiceNumber,
		"to", string(inv.Status),
		"total", inv.Total.Amount,
		"currency", inv.Currency,
	)
}

// OnInvoiceTransitioned implements plugin.OnInvoiceTransitioned. The action
// is derived from the state the invoice moved into.
func (e *Extension) OnInvoiceTransitioned(ctx context.Context, inv *invoice.Invoice, from invoice.Status) error {
	kv := []any{
		"invoice_id", inv.ID.String(),
		"invoice_number", inv.InvoiceNumber,
		"from", string(from),
		"to", string(inv.Status),
	}

	action, severity, reason := "", SeverityInfo, ""
	switch inv.Status {
	case invoice.StatusIssued:
		action = ActionInvoiceIssued
	case invoice.StatusPaid:
		action = ActionInvoicePaid
		kv = append(kv, "payment_id", inv.PaymentID.String())
	case invoice.StatusOverdue:
		action, severity = ActionInvoiceMarkedOverdue, SeverityWarning
	case invoice.StatusVoid:
		action, severity = ActionInvoiceVoided, SeverityWarning
		reason = inv.VoidReason()
		kv = append(kv, "reason", reason)
	default:
		return nil
	}

	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceInvoice, inv.ID.String(), inv.TenantID, CategoryBilling, reason,
		kv...,
	)
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentCreated implements plugin.OnPaymentCreated.
func (e *Extension) OnPaymentCreated(ctx context.Context, p *payment.Payment) error {
	return e.record(ctx, ActionPaymentCreated, SeverityInfo, OutcomeSuccess,
		ResourcePayment, p.ID.String(), p.TenantID, CategoryPayment, "",
		"gateway", p.Gateway,
		"external_id", p.ExternalID,
		"status", string(p.Status),
	)
}

// OnPaymentUpdated implements plugin.OnPaymentUpdated.
func (e *Extension) OnPaymentUpdated(ctx context.Context, p *payment.Payment, from payment.Status) error {
	return e.record(ctx, ActionPaymentStatusUpdated, SeverityInfo, OutcomeSuccess,
		ResourcePayment, p.ID.String(), p.TenantID, CategoryPayment, "",
		"gateway", p.Gateway,
		"external_id", p.ExternalID,
		"from", string(from),
		"status", string(p.Status),
	)
}

// OnPaymentLinked implements plugin.OnPaymentLinked.
func (e *Extension) OnPaymentLinked(ctx context.Context, p *payment.Payment) error {
	return e.record(ctx, ActionPaymentLinked, SeverityInfo, OutcomeSuccess,
		ResourcePayment, p.ID.String(), p.TenantID, CategoryPayment, "",
		"gateway", p.Gateway,
		"external_id", p.ExternalID,
		"invoice_id", p.InvoiceID.String(),
		"status", string(p.Status),
	)
}

// OnPaymentInvoiceMismatch implements plugin.OnPaymentInvoiceMismatch.
func (e *Extension) OnPaymentInvoiceMismatch(ctx context.Context, inv *invoice.Invoice, expected, received types.Money) error {
	return e.record(ctx, ActionPaymentInvoiceMismatch, SeverityWarning, OutcomePartial,
		ResourceInvoice, inv.ID.String(), inv.TenantID, CategoryPayment, "partial payment",
		"invoice_id", inv.ID.String(),
		"invoice_number", inv.InvoiceNumber,
		"expected", expected.Amount,
		"received", received.Amount,
		"currency", expected.Currency,
	)
}

// OnTenantMismatch implements plugin.OnTenantMismatch.
func (e *Extension) OnTenantMismatch(ctx context.Context, p *payment.Payment, invoiceID id.InvoiceID, invoiceTenantID string) error {
	return e.record(ctx, ActionPaymentTenantMismatch, SeverityCritical, OutcomeFailure,
		ResourcePayment, p.ID.String(), p.TenantID, CategorySecurity, "payment and invoice belong to different tenants",
		"gateway", p.Gateway,
		"external_id", p.ExternalID,
		"invoice_id", invoiceID.String(),
		"invoice_tenant_id", invoiceTenantID,
	)
}

// OnWebhookReceived implements plugin.OnWebhookReceived.
func (e *Extension) OnWebhookReceived(ctx context.Context, gateway string, evt *payment.Event) error {
	return e.record(ctx, ActionWebhookReceived, SeverityInfo, OutcomeSuccess,
		ResourceWebhook, evt.EventID, evt.TenantID, CategoryIntegration, "",
		"gateway", gateway,
		"event_type", evt.EventType,
		"external_id", evt.ExternalID,
	)
}

// ──────────────────────────────────────────────────
// Plan, entitlement and subscription hooks
// ──────────────────────────────────────────────────

// OnPlanCreated implements plugin.OnPlanCreated.
func (e *Extension) OnPlanCreated(ctx context.Context, p *plan.Plan) error {
	return e.record(ctx, ActionPlanCreated, SeverityInfo, OutcomeSuccess,
		ResourcePlan, p.ID.String(), "", CategoryBilling, "",
		"name", p.Name,
		"modules", len(p.Modules),
	)
}

// OnPlanUpdated implements plugin.OnPlanUpdated.
func (e *Extension) OnPlanUpdated(ctx context.Context, oldPlan, newPlan *plan.Plan) error {
	return e.record(ctx, ActionPlanUpdated, SeverityInfo, OutcomeSuccess,
		ResourcePlan, newPlan.ID.String(), "", CategoryBilling, "",
		"name", newPlan.Name,
		"status", string(newPlan.Status),
		"modules_changed", !plan.ModulesEqual(oldPlan.Modules, newPlan.Modules),
	)
}

// OnEntitlementsRecomputed implements plugin.OnEntitlementsRecomputed.
func (e *Extension) OnEntitlementsRecomputed(ctx context.Context, planID id.PlanID, updated, failed []string) error {
	outcome, severity := OutcomeSuccess, SeverityInfo
	if len(failed) > 0 {
		outcome, severity = OutcomePartial, SeverityError
	}
	return e.record(ctx, ActionEntitlementsRecomputed, severity, outcome,
		ResourceEntitlement, planID.String(), "", CategoryAccess, "",
		"updated_tenants", updated,
		"failed_tenants", failed,
	)
}

// OnEditionSelected implements plugin.OnEditionSelected.
func (e *Extension) OnEditionSelected(ctx context.Context, tenantID string, edition catalog.Edition) error {
	return e.record(ctx, ActionEditionSelected, SeverityInfo, OutcomeSuccess,
		ResourceTenant, tenantID, tenantID, CategoryAccess, "",
		"edition_id", edition.ID,
		"edition_code", edition.Code,
	)
}

// OnSubscriptionChanged implements plugin.OnSubscriptionChanged.
func (e *Extension) OnSubscriptionChanged(ctx context.Context, sub *subscription.Subscription, oldPlanID, newPlanID id.PlanID) error {
	return e.record(ctx, ActionSubscriptionPlanChanged, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), sub.TenantID, CategorySubscription, "",
		"old_plan_id", oldPlanID.String(),
		"new_plan_id", newPlanID.String(),
		"period_end", sub.CurrentPeriodEnd,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, tenantID, category string,
	reason string,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		TenantID:   tenantID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
