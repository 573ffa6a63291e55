// Package memory is an in-process Store for tests and single-node
// development. Records are copied on the way in and out, so callers never
// share memory with the store.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xraph/bursar"
	"github.com/xraph/bursar/catalog"
	"github.com/xraph/bursar/entitlement"
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/invoice"
	"github.com/xraph/bursar/payment"
	"github.com/xraph/bursar/plan"
	"github.com/xraph/bursar/store"
	"github.com/xraph/bursar/subscription"
	"github.com/xraph/bursar/tenant"
)

var (
	_ store.Store       = (*Store)(nil)
	_ entitlement.Cache = (*Store)(nil)
)

type Store struct {
	mu sync.RWMutex

	tenants       map[string]*tenant.Tenant
	plans         map[string]*plan.Plan
	subscriptions map[string]*subscription.Subscription
	invoices      map[string]*invoice.Invoice
	payments      map[string]*payment.Payment

	// grants are keyed by tenant then module.
	grants map[string]map[catalog.ModuleKey]*entitlement.Grant

	// Entitlement snapshot cache
	snapshots   map[string]*entitlement.Snapshot
	cacheExpiry map[string]time.Time

	now func() time.Time
}

func New() *Store {
	return &Store{
		tenants:       make(map[string]*tenant.Tenant),
		plans:         make(map[string]*plan.Plan),
		subscriptions: make(map[string]*subscription.Subscription),
		invoices:      make(map[string]*invoice.Invoice),
		payments:      make(map[string]*payment.Payment),
		grants:        make(map[string]map[catalog.ModuleKey]*entitlement.Grant),
		snapshots:     make(map[string]*entitlement.Snapshot),
		cacheExpiry:   make(map[string]time.Time),
		now:           time.Now,
	}
}

// WithClock sets the time source used for cache expiry.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Tenant Store implementation
func (s *Store) CreateTenant(_ context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[t.ID]; exists {
		return fmt.Errorf("%w: tenant %s", bursar.ErrAlreadyExists, t.ID)
	}
	s.tenants[t.ID] = cloneTenant(t)
	return nil
}

func (s *Store) GetTenant(_ context.Context, tenantID string) (*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.tenants[tenantID]; ok {
		return cloneTenant(t), nil
	}
	return nil, bursar.ErrTenantNotFound
}

func (s *Store) UpdateTenant(_ context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[t.ID]; !ok {
		return bursar.ErrTenantNotFound
	}
	s.tenants[t.ID] = cloneTenant(t)
	return nil
}

func (s *Store) ListTenants(_ context.Context, opts tenant.ListOpts) ([]*tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*tenant.Tenant
	for _, t := range s.tenants {
		if opts.EditionID != "" && t.EditionID != opts.EditionID {
			continue
		}
		out = append(out, cloneTenant(t))
	}
	slices.SortFunc(out, func(a, b *tenant.Tenant) int { return strings.Compare(a.ID, b.ID) })
	return paginate(out, opts.Offset, opts.Limit), nil
}

// Plan Store implementation
func (s *Store) CreatePlan(_ context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[p.ID.String()]; exists {
		return bursar.ErrAlreadyExists
	}
	if s.planNameTaken(p.Name, p.ID) {
		return fmt.Errorf("%w: %q", bursar.ErrDuplicatePlanName, p.Name)
	}
	s.plans[p.ID.String()] = clonePlan(p)
	return nil
}

func (s *Store) planNameTaken(name string, self id.PlanID) bool {
	for _, p := range s.plans {
		if p.ID.String() != self.String() && strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

func (s *Store) GetPlan(_ context.Context, planID id.PlanID) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.plans[planID.String()]; ok {
		return clonePlan(p), nil
	}
	return nil, bursar.ErrPlanNotFound
}

func (s *Store) GetPlanByName(_ context.Context, name string) (*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.plans {
		if strings.EqualFold(p.Name, name) {
			return clonePlan(p), nil
		}
	}
	return nil, bursar.ErrPlanNotFound
}

func (s *Store) ListPlans(_ context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*plan.Plan
	for _, p := range s.plans {
		if opts.Status != "" && p.Status != opts.Status {
			continue
		}
		out = append(out, clonePlan(p))
	}
	slices.SortFunc(out, func(a, b *plan.Plan) int { return strings.Compare(a.Name, b.Name) })
	return paginate(out, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdatePlan(_ context.Context, p *plan.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.plans[p.ID.String()]; !ok {
		return bursar.ErrPlanNotFound
	}
	if s.planNameTaken(p.Name, p.ID) {
		return fmt.Errorf("%w: %q", bursar.ErrDuplicatePlanName, p.Name)
	}
	s.plans[p.ID.String()] = clonePlan(p)
	return nil
}

// Subscription Store implementation
func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return bursar.ErrAlreadyExists
	}
	s.subscriptions[sub.ID.String()] = cloneSubscription(sub)
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID.String()]; ok {
		return cloneSubscription(sub), nil
	}
	return nil, bursar.ErrSubscriptionNotFound
}

func (s *Store) GetSubscriptionByTenant(_ context.Context, tenantID string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *subscription.Subscription
	for _, sub := range s.subscriptions {
		if sub.TenantID != tenantID {
			continue
		}
		if latest == nil || sub.CreatedAt.After(latest.CreatedAt) {
			latest = sub
		}
	}
	if latest == nil {
		return nil, bursar.ErrSubscriptionNotFound
	}
	return cloneSubscription(latest), nil
}

func (s *Store) ListSubscriptions(_ context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*subscription.Subscription
	for _, sub := range s.subscriptions {
		if opts.TenantID != "" && sub.TenantID != opts.TenantID {
			continue
		}
		if !opts.PlanID.IsNil() && sub.PlanID.String() != opts.PlanID.String() {
			continue
		}
		if opts.Status != "" && sub.Status != opts.Status {
			continue
		}
		out = append(out, cloneSubscription(sub))
	}
	slices.SortFunc(out, func(a, b *subscription.Subscription) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return paginate(out, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscriptions[sub.ID.String()]; !ok {
		return bursar.ErrSubscriptionNotFound
	}
	s.subscriptions[sub.ID.String()] = cloneSubscription(sub)
	return nil
}

// Entitlement Store implementation
func (s *Store) UpsertGrant(_ context.Context, g *entitlement.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKey, ok := s.grants[g.TenantID]
	if !ok {
		byKey = make(map[catalog.ModuleKey]*entitlement.Grant)
		s.grants[g.TenantID] = byKey
	}
	cp := *g
	if prev, ok := byKey[g.ModuleKey]; ok {
		cp.ID = prev.ID
		cp.CreatedAt = prev.CreatedAt
	}
	byKey[g.ModuleKey] = &cp
	return nil
}

func (s *Store) GetGrant(_ context.Context, tenantID string, key catalog.ModuleKey) (*entitlement.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if g, ok := s.grants[tenantID][key]; ok {
		cp := *g
		return &cp, nil
	}
	return nil, bursar.ErrNotFound
}

func (s *Store) ListGrants(_ context.Context, tenantID string) ([]*entitlement.Grant, error) {
	return s.listGrants(tenantID, func(*entitlement.Grant) bool { return true }), nil
}

func (s *Store) ListGrantsBySource(_ context.Context, tenantID string, planID id.PlanID) ([]*entitlement.Grant, error) {
	return s.listGrants(tenantID, func(g *entitlement.Grant) bool { return g.SourcePlanID.String() == planID.String() }), nil
}

func (s *Store) listGrants(tenantID string, keep func(*entitlement.Grant) bool) []*entitlement.Grant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*entitlement.Grant
	for _, g := range s.grants[tenantID] {
		if keep(g) {
			cp := *g
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *entitlement.Grant) int { return strings.Compare(string(a.ModuleKey), string(b.ModuleKey)) })
	return out
}

// Entitlement Cache implementation
func (s *Store) GetSnapshot(_ context.Context, tenantID string) (*entitlement.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[tenantID]
	if !ok || !s.now().Before(s.cacheExpiry[tenantID]) {
		return nil, bursar.ErrCacheMiss
	}
	return cloneSnapshot(snap), nil
}

func (s *Store) SetSnapshot(_ context.Context, snap *entitlement.Snapshot, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snap.TenantID] = cloneSnapshot(snap)
	s.cacheExpiry[snap.TenantID] = s.now().Add(ttl)
	return nil
}

func (s *Store) InvalidateSnapshot(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snapshots, tenantID)
	delete(s.cacheExpiry, tenantID)
	return nil
}

// Invoice Store implementation
func (s *Store) CreateInvoice(_ context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoices[inv.ID.String()]; exists {
		return bursar.ErrAlreadyExists
	}
	for _, other := range s.invoices {
		if other.TenantID != inv.TenantID {
			continue
		}
		if other.InvoiceNumber == inv.InvoiceNumber {
			return fmt.Errorf("%w: invoice number %s", bursar.ErrAlreadyExists, inv.InvoiceNumber)
		}
		if other.Status != invoice.StatusVoid && other.SamePeriod(inv.EditionID, inv.PeriodStart, inv.PeriodEnd) {
			return fmt.Errorf("%w: %s", bursar.ErrDuplicatePeriod, other.InvoiceNumber)
		}
	}
	s.invoices[inv.ID.String()] = cloneInvoice(inv)
	return nil
}

func (s *Store) GetInvoice(_ context.Context, tenantID string, invID id.InvoiceID) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if inv, ok := s.invoices[invID.String()]; ok && inv.TenantID == tenantID {
		return cloneInvoice(inv), nil
	}
	return nil, bursar.ErrInvoiceNotFound
}

func (s *Store) ListInvoices(_ context.Context, tenantID string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*invoice.Invoice
	for _, inv := range s.invoices {
		if inv.TenantID != tenantID {
			continue
		}
		if opts.Status != "" && inv.Status != opts.Status {
			continue
		}
		if !opts.Start.IsZero() && inv.PeriodStart.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && inv.PeriodEnd.After(opts.End) {
			continue
		}
		out = append(out, cloneInvoice(inv))
	}
	slices.SortFunc(out, func(a, b *invoice.Invoice) int { return b.PeriodStart.Compare(a.PeriodStart) })
	return paginate(out, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateInvoice(_ context.Context, inv *invoice.Invoice, from invoice.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.invoices[inv.ID.String()]
	if !ok || cur.TenantID != inv.TenantID {
		return bursar.ErrInvoiceNotFound
	}
	if cur.Status != from {
		return fmt.Errorf("%w: invoice %s is %s, expected %s", bursar.ErrConcurrentModification, inv.ID, cur.Status, from)
	}
	s.invoices[inv.ID.String()] = cloneInvoice(inv)
	return nil
}

func (s *Store) FindActiveInvoiceForPeriod(_ context.Context, tenantID, editionID string, start, end time.Time) (*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, inv := range s.invoices {
		if inv.TenantID == tenantID && inv.Status != invoice.StatusVoid && inv.SamePeriod(editionID, start, end) {
			return cloneInvoice(inv), nil
		}
	}
	return nil, bursar.ErrInvoiceNotFound
}

func (s *Store) InvoiceTenant(_ context.Context, invID id.InvoiceID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if inv, ok := s.invoices[invID.String()]; ok {
		return inv.TenantID, nil
	}
	return "", bursar.ErrInvoiceNotFound
}

func (s *Store) ListInvoicesDue(_ context.Context, asOf time.Time, limit int) ([]*invoice.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*invoice.Invoice
	for _, inv := range s.invoices {
		if inv.Status == invoice.StatusIssued && inv.DueDate != nil && inv.DueDate.Before(asOf) {
			out = append(out, cloneInvoice(inv))
		}
	}
	slices.SortFunc(out, func(a, b *invoice.Invoice) int { return a.DueDate.Compare(*b.DueDate) })
	return paginate(out, 0, limit), nil
}

// Payment Store implementation
func (s *Store) CreatePayment(_ context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[p.ID.String()]; exists {
		return bursar.ErrAlreadyExists
	}
	for _, other := range s.payments {
		if other.Gateway == p.Gateway && other.ExternalID == p.ExternalID {
			return fmt.Errorf("%w: payment %s/%s", bursar.ErrAlreadyExists, p.Gateway, p.ExternalID)
		}
	}
	s.payments[p.ID.String()] = clonePayment(p)
	return nil
}

func (s *Store) GetPayment(_ context.Context, tenantID string, paymentID id.PaymentID) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.payments[paymentID.String()]; ok && p.TenantID == tenantID {
		return clonePayment(p), nil
	}
	return nil, bursar.ErrPaymentNotFound
}

func (s *Store) GetPaymentByExternalID(_ context.Context, gateway, externalID string) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.payments {
		if p.Gateway == gateway && p.ExternalID == externalID {
			return clonePayment(p), nil
		}
	}
	return nil, bursar.ErrPaymentNotFound
}

func (s *Store) UpdatePayment(_ context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.payments[p.ID.String()]
	if !ok || cur.TenantID != p.TenantID {
		return bursar.ErrPaymentNotFound
	}
	// The invoice link is set once.
	if cur.IsLinked() {
		p.InvoiceID = cur.InvoiceID
	}
	s.payments[p.ID.String()] = clonePayment(p)
	return nil
}

func (s *Store) ListPaymentsByInvoice(_ context.Context, tenantID string, invID id.InvoiceID) ([]*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*payment.Payment
	for _, p := range s.payments {
		if p.TenantID == tenantID && p.InvoiceID.String() == invID.String() {
			out = append(out, clonePayment(p))
		}
	}
	slices.SortFunc(out, func(a, b *payment.Payment) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *Store) ListPayments(_ context.Context, tenantID string, opts payment.ListOpts) ([]*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*payment.Payment
	for _, p := range s.payments {
		if p.TenantID != tenantID {
			continue
		}
		if opts.Status != "" && p.Status != opts.Status {
			continue
		}
		out = append(out, clonePayment(p))
	}
	slices.SortFunc(out, func(a, b *payment.Payment) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return paginate(out, opts.Offset, opts.Limit), nil
}

// Core methods
func (s *Store) Migrate(_ context.Context) error { return nil }
func (s *Store) Ping(_ context.Context) error    { return nil }
func (s *Store) Close() error                    { return nil }

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneTenant(t *tenant.Tenant) *tenant.Tenant {
	cp := *t
	cp.Metadata = maps.Clone(t.Metadata)
	return &cp
}

func clonePlan(p *plan.Plan) *plan.Plan {
	cp := *p
	cp.Modules = slices.Clone(p.Modules)
	return &cp
}

func cloneSubscription(sub *subscription.Subscription) *subscription.Subscription {
	cp := *sub
	cp.Charges = slices.Clone(sub.Charges)
	if sub.CanceledAt != nil {
		t := *sub.CanceledAt
		cp.CanceledAt = &t
	}
	return &cp
}

func cloneInvoice(inv *invoice.Invoice) *invoice.Invoice {
	cp := *inv
	cp.Metadata = maps.Clone(inv.Metadata)
	cp.LineItems = make([]invoice.LineItem, len(inv.LineItems))
	for i, li := range inv.LineItems {
		li.Metadata = maps.Clone(li.Metadata)
		cp.LineItems[i] = li
	}
	cp.DueDate = cloneTime(inv.DueDate)
	cp.IssuedAt = cloneTime(inv.IssuedAt)
	cp.PaidAt = cloneTime(inv.PaidAt)
	cp.VoidedAt = cloneTime(inv.VoidedAt)
	return &cp
}

func clonePayment(p *payment.Payment) *payment.Payment {
	cp := *p
	cp.Metadata = maps.Clone(p.Metadata)
	return &cp
}

func cloneSnapshot(s *entitlement.Snapshot) *entitlement.Snapshot {
	cp := *s
	cp.Modules = maps.Clone(s.Modules)
	cp.Features = maps.Clone(s.Features)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
