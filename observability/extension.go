// Package observability provides a metrics extension for Bursar that counts
// lifecycle events through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/bursar/catalog"
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/invoice"
	"github.com/xraph/bursar/payment"
	"github.com/xraph/bursar/plan"
	"github.com/xraph/bursar/plugin"
	"github.com/xraph/bursar/subscription"
	"github.com/xraph/bursar/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                   = (*MetricsExtension)(nil)
	_ plugin.OnPlanCreated            = (*MetricsExtension)(nil)
	_ plugin.OnPlanUpdated            = (*MetricsExtension)(nil)
	_ plugin.OnEntitlementsRecomputed = (*MetricsExtension)(nil)
	_ plugin.OnEditionSelected        = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionChanged    = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceCreated         = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceTransitioned    = (*MetricsExtension)(nil)
	_ plugin.OnPaymentCreated         = (*MetricsExtension)(nil)
	_ plugin.OnPaymentUpdated         = (*MetricsExtension)(nil)
	_ plugin.OnPaymentInvoiceMismatch = (*MetricsExtension)(nil)
	_ plugin.OnTenantMismatch         = (*MetricsExtension)(nil)
	_ plugin.OnWebhookReceived        = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
type MetricsExtension struct {
	// Invoice metrics
	InvoiceCreated Counter
	InvoiceIssued  Counter
	InvoicePaid    Counter
	InvoiceOverdue Counter
	InvoiceVoided  Counter
	InvoiceTotal   Histogram

	// Payment metrics
	PaymentCreated   Counter
	PaymentUpdated   Counter
	PaymentSucceeded Counter
	PaymentFailed    Counter
	PaymentMismatch  Counter
	PaymentShortfall Histogram
	TenantMismatch   Counter
	WebhookReceived  Counter
	PaymentRefunded  Counter
	PaymentCanceled  Counter

	// Plan and entitlement metrics
	PlanCreated             Counter
	PlanUpdated             Counter
	RecomputeRuns           Counter
	RecomputeTenantsUpdated Counter
	RecomputeTenantsFailed  Counter
	EditionSelected         Counter

	// Subscription metrics
	SubscriptionChanged Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		InvoiceCreated: factory.Counter("bursar.invoice.created"),
		InvoiceIssued:  factory.Counter("bursar.invoice.issued"),
		InvoicePaid:    factory.Counter("bursar.invoice.paid"),
		InvoiceOverdue: factory.Counter("bursar.invoice.overdue"),
		InvoiceVoided:  factory.Counter("bursar.invoice.voided"),
		InvoiceTotal:   factory.Histogram("bursar.invoice.total_minor_units"),

		PaymentCreated:   factory.Counter("bursar.payment.created"),
		PaymentUpdated:   factory.Counter("bursar.payment.updated"),
		PaymentSucceeded: factory.Counter("bursar.payment.succeeded"),
		PaymentFailed:    factory.Counter("bursar.payment.failed"),
		PaymentRefunded:  factory.Counter("bursar.payment.refunded"),
		PaymentCanceled:  factory.Counter("bursar.payment.canceled"),
		PaymentMismatch:  factory.Counter("bursar.payment.invoice_mismatch"),
		PaymentShortfall: factory.Histogram("bursar.payment.shortfall_minor_units"),
		TenantMismatch:   factory.Counter("bursar.payment.tenant_mismatch"),
		WebhookReceived:  factory.Counter("bursar.webhook.received"),

		PlanCreated:             factory.Counter("bursar.plan.created"),
		PlanUpdated:             factory.Counter("bursar.plan.updated"),
		RecomputeRuns:           factory.Counter("bursar.entitlement.recompute.runs"),
		RecomputeTenantsUpdated: factory.Counter("bursar.entitlement.recompute.tenants_updated"),
		RecomputeTenantsFailed:  factory.Counter("bursar.entitlement.recompute.tenants_failed"),
		EditionSelected:         factory.Counter("bursar.entitlement.edition_selected"),

		SubscriptionChanged: factory.Counter("bursar.subscription.plan_changed"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInvoiceCreated implements plugin.OnInvoiceCreated.
func (m *MetricsExtension) OnInvoiceCreated(_ context.Context, inv *invoice.Invoice) error {
	m.InvoiceCreated.Inc()
	m.InvoiceTotal.Observe(float64(inv.Total.Amount))
	return nil
}

// OnInvoiceTransitioned implements plugin.OnInvoiceTransitioned.
func (m *MetricsExtension) OnInvoiceTransitioned(_ context.Context, inv *invoice.Invoice, _ invoice.Status) error {
	switch inv.Status {
	case invoice.StatusIssued:
		m.InvoiceIssued.Inc()
	case invoice.StatusPaid:
		m.InvoicePaid.Inc()
	case invoice.StatusOverdue:
		m.InvoiceOverdue.Inc()
	case invoice.StatusVoid:
		m.InvoiceVoided.Inc()
	}
	return nil
}

// OnPaymentCreated implements plugin.OnPaymentCreated.
func (m *MetricsExtension) OnPaymentCreated(_ context.Context, p *payment.Payment) error {
	m.PaymentCreated.Inc()
	m.countStatus(p.Status)
	return nil
}

// OnPaymentUpdated implements plugin.OnPaymentUpdated.
func (m *MetricsExtension) OnPaymentUpdated(_ context.Context, p *payment.Payment, from payment.Status) error {
	m.PaymentUpdated.Inc()
	if p.Status != from {
		m.countStatus(p.Status)
	}
	return nil
}

func (m *MetricsExtension) countStatus(s payment.Status) {
	switch s {
	case payment.StatusSucceeded:
		m.PaymentSucceeded.Inc()
	case payment.StatusFailed:
		m.PaymentFailed.Inc()
	case payment.StatusRefunded:
		m.PaymentRefunded.Inc()
	case payment.StatusCanceled:
		m.PaymentCanceled.Inc()
	}
}

// OnPaymentInvoiceMismatch implements plugin.OnPaymentInvoiceMismatch.
func (m *MetricsExtension) OnPaymentInvoiceMismatch(_ context.Context, _ *invoice.Invoice, expected, received types.Money) error {
	m.PaymentMismatch.Inc()
	m.PaymentShortfall.Observe(float64(expected.Amount - received.Amount))
	return nil
}

// OnTenantMismatch implements plugin.OnTenantMismatch.
func (m *MetricsExtension) OnTenantMismatch(context.Context, *payment.Payment, id.InvoiceID, string) error {
	m.TenantMismatch.Inc()
	return nil
}

// OnWebhookReceived implements plugin.OnWebhookReceived.
func (m *MetricsExtension) OnWebhookReceived(context.Context, string, *payment.Event) error {
	m.WebhookReceived.Inc()
	return nil
}

// OnPlanCreated implements plugin.OnPlanCreated.
func (m *MetricsExtension) OnPlanCreated(context.Context, *plan.Plan) error {
	m.PlanCreated.Inc()
	return nil
}

// OnPlanUpdated implements plugin.OnPlanUpdated.
func (m *MetricsExtension) OnPlanUpdated(context.Context, *plan.Plan, *plan.Plan) error {
	m.PlanUpdated.Inc()
	return nil
}

// OnEntitlementsRecomputed implements plugin.OnEntitlementsRecomputed.
func (m *MetricsExtension) OnEntitlementsRecomputed(_ context.Context, _ id.PlanID, updated, failed []string) error {
	m.RecomputeRuns.Inc()
	m.RecomputeTenantsUpdated.Add(float64(len(updated)))
	m.RecomputeTenantsFailed.Add(float64(len(failed)))
	return nil
}

// OnEditionSelected implements plugin.OnEditionSelected.
func (m *MetricsExtension) OnEditionSelected(context.Context, string, catalog.Edition) error {
	m.EditionSelected.Inc()
	return nil
}

// OnSubscriptionChanged implements plugin.OnSubscriptionChanged.
func (m *MetricsExtension) OnSubscriptionChanged(context.Context, *subscription.Subscription, id.PlanID, id.PlanID) error {
	m.SubscriptionChanged.Inc()
	return nil
}
