// Package plugin provides the hook system of Bursar. Plugins implement any
// subset of the hook interfaces below and are dispatched by a Registry.
package plugin

import (
	"context"

	"github.com/xraph/bursar/catalog"
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/invoice"
	"github.com/xraph/bursar/payment"
	"github.com/xraph/bursar/plan"
	"github.com/xraph/bursar/subscription"
	"github.com/xraph/bursar/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called once the engine is constructed. engine is the *bursar.Bursar.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Plan and entitlement hooks
// ──────────────────────────────────────────────────

type OnPlanCreated interface {
	Plugin
	OnPlanCreated(ctx context.Context, p *plan.Plan) error
}

type OnPlanUpdated interface {
	Plugin
	OnPlanUpdated(ctx context.Context, oldPlan, newPlan *plan.Plan) error
}

// OnEntitlementsRecomputed is called after a plan's modules were pushed to
// its subscribers. failed lists tenants whose update did not complete.
type OnEntitlementsRecomputed interface {
	Plugin
	OnEntitlementsRecomputed(ctx context.Context, planID id.PlanID, updated, failed []string) error
}

// OnEditionSelected is called when a tenant is placed on an edition.
type OnEditionSelected interface {
	Plugin
	OnEditionSelected(ctx context.Context, tenantID string, edition catalog.Edition) error
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscriptionChanged is called when a tenant moves to another plan.
// oldPlanID is Nil for a first subscription.
type OnSubscriptionChanged interface {
	Plugin
	OnSubscriptionChanged(ctx context.Context, sub *subscription.Subscription, oldPlanID, newPlanID id.PlanID) error
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

type OnInvoiceCreated interface {
	Plugin
	OnInvoiceCreated(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceTransitioned is called once per lifecycle transition, after the
// new state is stored.
type OnInvoiceTransitioned interface {
	Plugin
	OnInvoiceTransitioned(ctx context.Context, inv *invoice.Invoice, from invoice.Status) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

type OnPaymentCreated interface {
	Plugin
	OnPaymentCreated(ctx context.Context, p *payment.Payment) error
}

type OnPaymentUpdated interface {
	Plugin
	OnPaymentUpdated(ctx context.Context, p *payment.Payment, from payment.Status) error
}

// OnPaymentLinked is called when an unlinked payment is attached to an
// invoice after creation. The status is unchanged.
type OnPaymentLinked interface {
	Plugin
	OnPaymentLinked(ctx context.Context, p *payment.Payment) error
}

// OnPaymentInvoiceMismatch is called when succeeded payments linked to an
// invoice fall short of its total.
type OnPaymentInvoiceMismatch interface {
	Plugin
	OnPaymentInvoiceMismatch(ctx context.Context, inv *invoice.Invoice, expected, received types.Money) error
}

// OnTenantMismatch is called when a payment references an invoice owned by
// another tenant.
type OnTenantMismatch interface {
	Plugin
	OnTenantMismatch(ctx context.Context, p *payment.Payment, invoiceID id.InvoiceID, invoiceTenantID string) error
}

// OnWebhookReceived is called for every verified gateway webhook.
type OnWebhookReceived interface {
	Plugin
	OnWebhookReceived(ctx context.Context, gateway string, evt *payment.Event) error
}
