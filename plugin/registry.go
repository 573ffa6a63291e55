package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/bursar/catalog"
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/invoice"
	"github.com/xraph/bursar/payment"
	"github.com/xraph/bursar/plan"
	"github.com/xraph/bursar/subscription"
	"github.com/xraph/bursar/types"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and dispatches hooks to them.
// Hook lists are cached per interface at registration time.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                   []OnInit
	onShutdown               []OnShutdown
	onPlanCreated            []OnPlanCreated
	onPlanUpdated            []OnPlanUpdated
	onEntitlementsRecomputed []OnEntitlementsRecomputed
	onEditionSelected        []OnEditionSelected
	onSubscriptionChanged    []OnSubscriptionChanged
	onInvoiceCreated         []OnInvoiceCreated
	onInvoiceTransitioned    []OnInvoiceTransitioned
	onPaymentCreated         []OnPaymentCreated
	onPaymentUpdated         []OnPaymentUpdated
	onPaymentLinked          []OnPaymentLinked
	onPaymentMismatch        []OnPaymentInvoiceMismatch
	onTenantMismatch         []OnTenantMismatch
	onWebhookReceived        []OnWebhookReceived
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnPlanCreated); ok {
		r.onPlanCreated = append(r.onPlanCreated, v)
	}
	if v, ok := p.(OnPlanUpdated); ok {
		r.onPlanUpdated = append(r.onPlanUpdated, v)
	}
	if v, ok := p.(OnEntitlementsRecomputed); ok {
		r.onEntitlementsRecomputed = append(r.onEntitlementsRecomputed, v)
	}
	if v, ok := p.(OnEditionSelected); ok {
		r.onEditionSelected = append(r.onEditionSelected, v)
	}
	if v, ok := p.(OnSubscriptionChanged); ok {
		r.onSubscriptionChanged = append(r.onSubscriptionChanged, v)
	}
	if v, ok := p.(OnInvoiceCreated); ok {
		r.onInvoiceCreated = append(r.onInvoiceCreated, v)
	}
	if v, ok := p.(OnInvoiceTransitioned); ok {
		r.onInvoiceTransitioned = append(r.onInvoiceTransitioned, v)
	}
	if v, ok := p.(OnPaymentCreated); ok {
		r.onPaymentCreated = append(r.onPaymentCreated, v)
	}
	if v, ok := p.(OnPaymentUpdated); ok {
		r.onPaymentUpdated = append(r.onPaymentUpdated, v)
	}
	if v, ok := p.(OnPaymentLinked); ok {
		r.onPaymentLinked = append(r.onPaymentLinked, v)
	}
	if v, ok := p.(OnPaymentInvoiceMismatch); ok {
		r.onPaymentMismatch = append(r.onPaymentMismatch, v)
	}
	if v, ok := p.(OnTenantMismatch); ok {
		r.onTenantMismatch = append(r.onTenantMismatch, v)
	}
	if v, ok := p.(OnWebhookReceived); ok {
		r.onWebhookReceived = append(r.onWebhookReceived, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnPlanCreated", reflect.TypeFor[OnPlanCreated]()},
	{"OnPlanUpdated", reflect.TypeFor[OnPlanUpdated]()},
	{"OnEntitlementsRecomputed", reflect.TypeFor[OnEntitlementsRecomputed]()},
	{"OnEditionSelected", reflect.TypeFor[OnEditionSelected]()},
	{"OnSubscriptionChanged", reflect.TypeFor[OnSubscriptionChanged]()},
	{"OnInvoiceCreated", reflect.TypeFor[OnInvoiceCreated]()},
	{"OnInvoiceTransitioned", reflect.TypeFor[OnInvoiceTransitioned]()},
	{"OnPaymentCreated", reflect.TypeFor[OnPaymentCreated]()},
	{"OnPaymentUpdated", reflect.TypeFor[OnPaymentUpdated]()},
	{"OnPaymentLinked", reflect.TypeFor[OnPaymentLinked]()},
	{"OnPaymentInvoiceMismatch", reflect.TypeFor[OnPaymentInvoiceMismatch]()},
	{"OnTenantMismatch", reflect.TypeFor[OnTenantMismatch]()},
	{"OnWebhookReceived", reflect.TypeFor[OnWebhookReceived]()},
}

// implementedInterfaces returns the hook interfaces p implements.
func implementedInterfaces(p Plugin) []string {
	var names []string
	t := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if t.Implements(h.typ) {
			names = append(names, h.name)
		}
	}
	return names
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit snapshots a hook list under the read lock and calls each hook in
// registration order. Hook failures are logged, never returned.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, list *[]T, call func(T) error) {
	r.mu.RLock()
	hooks := make([]T, len(*list))
	copy(hooks, *list)
	r.mu.RUnlock()

	for _, p := range hooks {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return call(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(ctx, r, "OnInit", &r.onInit, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", &r.onShutdown, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

func (r *Registry) EmitPlanCreated(ctx context.Context, pl *plan.Plan) {
	emit(ctx, r, "OnPlanCreated", &r.onPlanCreated, func(p OnPlanCreated) error {
		return p.OnPlanCreated(ctx, pl)
	})
}

func (r *Registry) EmitPlanUpdated(ctx context.Context, oldPlan, newPlan *plan.Plan) {
	emit(ctx, r, "OnPlanUpdated", &r.onPlanUpdated, func(p OnPlanUpdated) error {
		return p.OnPlanUpdated(ctx, oldPlan, newPlan)
	})
}

func (r *Registry) EmitEntitlementsRecomputed(ctx context.Context, planID id.PlanID, updated, failed []string) {
	emit(ctx, r, "OnEntitlementsRecomputed", &r.onEntitlementsRecomputed, func(p OnEntitlementsRecomputed) error {
		return p.OnEntitlementsRecomputed(ctx, planID, updated, failed)
	})
}

func (r *Registry) EmitEditionSelected(ctx context.Context, tenantID string, edition catalog.Edition) {
	emit(ctx, r, "OnEditionSelected", &r.onEditionSelected, func(p OnEditionSelected) error {
		return p.OnEditionSelected(ctx, tenantID, edition)
	})
}

func (r *Registry) EmitSubscriptionChanged(ctx context.Context, sub *subscription.Subscription, oldPlanID, newPlanID id.PlanID) {
	emit(ctx, r, "OnSubscriptionChanged", &r.onSubscriptionChanged, func(p OnSubscriptionChanged) error {
		return p.OnSubscriptionChanged(ctx, sub, oldPlanID, newPlanID)
	})
}

func (r *Registry) EmitInvoiceCreated(ctx context.Context, inv *invoice.Invoice) {
	emit(ctx, r, "OnInvoiceCreated", &r.onInvoiceCreated, func(p OnInvoiceCreated) error {
		return p.OnInvoiceCreated(ctx, inv)
	})
}

func (r *Registry) EmitInvoiceTransitioned(ctx context.Context, inv *invoice.Invoice, from invoice.Status) {
	emit(ctx, r, "OnInvoiceTransitioned", &r.onInvoiceTransitioned, func(p OnInvoiceTransitioned) error {
		return p.OnInvoiceTransitioned(ctx, inv, from)
	})
}

func (r *Registry) EmitPaymentCreated(ctx context.Context, pay *payment.Payment) {
	emit(ctx, r, "OnPaymentCreated", &r.onPaymentCreated, func(p OnPaymentCreated) error {
		return p.OnPaymentCreated(ctx, pay)
	})
}

func (r *Registry) EmitPaymentUpdated(ctx context.Context, pay *payment.Payment, from payment.Status) {
	emit(ctx, r, "OnPaymentUpdated", &r.onPaymentUpdated, func(p OnPaymentUpdated) error {
		return p.OnPaymentUpdated(ctx, pay, from)
	})
}

func (r *Registry) EmitPaymentLinked(ctx context.Context, pay *payment.Payment) {
	emit(ctx, r, "OnPaymentLinked", &r.onPaymentLinked, func(p OnPaymentLinked) error {
		return p.OnPaymentLinked(ctx, pay)
	})
}

func (r *Registry) EmitPaymentInvoiceMismatch(ctx context.Context, inv *invoice.Invoice, expected, received types.Money) {
	emit(ctx, r, "OnPaymentInvoiceMismatch", &r.onPaymentMismatch, func(p OnPaymentInvoiceMismatch) error {
		return p.OnPaymentInvoiceMismatch(ctx, inv, expected, received)
	})
}

func (r *Registry) EmitTenantMismatch(ctx context.Context, pay *payment.Payment, invoiceID id.InvoiceID, invoiceTenantID string) {
	emit(ctx, r, "OnTenantMismatch", &r.onTenantMismatch, func(p OnTenantMismatch) error {
		return p.OnTenantMismatch(ctx, pay, invoiceID, invoiceTenantID)
	})
}

func (r *Registry) EmitWebhookReceived(ctx context.Context, gateway string, evt *payment.Event) {
	emit(ctx, r, "OnWebhookReceived", &r.onWebhookReceived, func(p OnWebhookReceived) error {
		return p.OnWebhookReceived(ctx, gateway, evt)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins must never block the billing pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
