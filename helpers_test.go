package bursar_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xraph/bursar"
	audithook "github.com/xraph/bursar/audit_hook"
	"github.com/xraph/bursar/gateway/gatewaytest"
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/invoice"
	"github.com/xraph/bursar/store"
	"github.com/xraph/bursar/store/memory"
	"github.com/xraph/bursar/subscription"
	"github.com/xraph/bursar/tenant"
	"github.com/xraph/bursar/types"
)

var (
	marchStart = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	aprilStart = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
)

type recorder struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (r *recorder) Record(_ context.Context, e *audithook.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) byAction(action string) []*audithook.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*audithook.AuditEvent
	for _, e := range r.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	b     *bursar.Bursar
	store *memory.Store
	rec   *recorder
	gw    *gatewaytest.Fake
	clock *clock
}

func newHarness(t *testing.T, opts ...bursar.Option) *harness {
	t.Helper()
	return newHarnessWithStore(t, memory.New(), opts...)
}

func newHarnessWithStore(t *testing.T, s store.Store, opts ...bursar.Option) *harness {
	t.Helper()

	h := &harness{
		rec:   &recorder{},
		gw:    gatewaytest.New("fake", "whsec_test"),
		clock: &clock{now: time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)},
	}
	if ms, ok := s.(*memory.Store); ok {
		h.store = ms
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := []bursar.Option{
		bursar.WithLogger(logger),
		bursar.WithPlugin(audithook.New(h.rec, audithook.WithLogger(logger))),
		bursar.WithGateway(h.gw),
		bursar.WithClock(h.clock.Now),
	}
	if h.store != nil {
		base = append(base, bursar.WithEntitlementCache(h.store))
	}
	h.b = bursar.New(s, append(base, opts...)...)

	ctx := context.Background()
	require.NoError(t, h.b.Start(ctx))
	t.Cleanup(func() { _ = h.b.Stop(context.Background()) })

	// Seeded through the store so custom catalogs need not carry premium.
	now := types.NewEntityAt(h.clock.Now())
	require.NoError(t, s.CreateTenant(ctx, &tenant.Tenant{Entity: now, ID: "t1", Name: "Greenfield Academy", EditionID: "edn_premium"}))
	require.NoError(t, s.CreateTenant(ctx, &tenant.Tenant{Entity: now, ID: "t2", Name: "Riverside High"}))
	return h
}

// issuedInvoice creates and issues a one-line March invoice for total minor
// units of usd.
func (h *harness) issuedInvoice(t *testing.T, tenantID string, total int64) *invoice.Invoice {
	t.Helper()
	return h.issuedInvoiceAt(t, tenantID, marchStart, total)
}

func (h *harness) issuedInvoiceAt(t *testing.T, tenantID string, start time.Time, total int64) *invoice.Invoice {
	t.Helper()
	ctx := context.Background()

	inv, err := h.b.CreateInvoice(ctx, bursar.CreateInvoiceInput{
		TenantID:    tenantID,
		Currency:    "usd",
		PeriodStart: start,
		PeriodEnd:   start.AddDate(0, 1, 0),
		LineItems:   []bursar.LineItemInput{{Description: "Term fee", Quantity: 1, UnitAmount: total}},
	})
	require.NoError(t, err)

	inv, err = h.b.IssueInvoice(ctx, tenantID, inv.ID)
	require.NoError(t, err)
	return inv
}

func (h *harness) subscribe(t *testing.T, tenantID string, planID id.PlanID, status subscription.Status) {
	t.Helper()
	ctx := context.Background()

	if _, err := h.b.GetTenant(ctx, tenantID); err != nil {
		require.NoError(t, h.b.CreateTenant(ctx, &tenant.Tenant{ID: tenantID, Name: tenantID}))
	}
	require.NoError(t, h.b.Store().CreateSubscription(ctx, &subscription.Subscription{
		Entity:   types.NewEntityAt(h.clock.Now()),
		ID:       id.NewSubscriptionID(),
		TenantID: tenantID,
		PlanID:   planID,
		Status:   status,
	}))
}

func usd(amount int64) *types.Money {
	m := types.USD(amount)
	return &m
}
