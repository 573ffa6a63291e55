package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bursar/invoice"
	"github.com/xraph/bursar/payment"
	"github.com/xraph/bursar/plan"
)

type recordingPlugin struct {
	name string

	mu    sync.Mutex
	calls []string
	err   error
	block time.Duration
}

func (p *recordingPlugin) Name() string { return p.name }

func (p *recordingPlugin) record(call string) error {
	if p.block > 0 {
		time.Sleep(p.block)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	return p.err
}

func (p *recordingPlugin) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *recordingPlugin) OnPlanCreated(_ context.Context, pl *plan.Plan) error {
	return p.record("plan_created:" + pl.Name)
}

func (p *recordingPlugin) OnInvoiceTransitioned(_ context.Context, inv *invoice.Invoice, from invoice.Status) error {
	return p.record("invoice:" + string(from) + "->" + string(inv.Status))
}

func (p *recordingPlugin) OnPaymentLinked(_ context.Context, pay *payment.Payment) error {
	return p.record("linked:" + pay.ExternalID)
}

type namedOnly struct{ name string }

func (n namedOnly) Name() string { return n.name }

func quietRegistry() *Registry {
	return NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegister(t *testing.T) {
	r := quietRegistry()

	require.NoError(t, r.Register(&recordingPlugin{name: "audit"}))
	require.NoError(t, r.Register(namedOnly{name: "noop"}))
	assert.Error(t, r.Register(namedOnly{name: "audit"}), "duplicate names are rejected")

	assert.Equal(t, 2, r.Count())
	assert.NotNil(t, r.Get("noop"))
	assert.Nil(t, r.Get("missing"))
	assert.Len(t, r.List(), 2)
}

func TestImplementedInterfaces(t *testing.T) {
	assert.ElementsMatch(t,
		[]string{"OnPlanCreated", "OnInvoiceTransitioned", "OnPaymentLinked"},
		implementedInterfaces(&recordingPlugin{name: "x"}))
	assert.Empty(t, implementedInterfaces(namedOnly{name: "y"}))
}

func TestEmitInRegistrationOrder(t *testing.T) {
	r := quietRegistry()
	first := &recordingPlugin{name: "first", err: errors.New("hook failed")}
	second := &recordingPlugin{name: "second"}
	require.NoError(t, r.Register(first))
	require.NoError(t, r.Register(second))

	ctx := context.Background()
	r.EmitPlanCreated(ctx, &plan.Plan{Name: "Growth"})
	r.EmitInvoiceTransitioned(ctx, &invoice.Invoice{Status: invoice.StatusPaid}, invoice.StatusIssued)

	want := []string{"plan_created:Growth", "invoice:issued->paid"}
	assert.Equal(t, want, first.Calls())
	assert.Equal(t, want, second.Calls(), "a failing hook must not stop the next one")
}

func TestEmitTimeout(t *testing.T) {
	r := quietRegistry().WithTimeout(20 * time.Millisecond)
	slow := &recordingPlugin{name: "slow", block: time.Second}
	fast := &recordingPlugin{name: "fast"}
	require.NoError(t, r.Register(slow))
	require.NoError(t, r.Register(fast))

	start := time.Now()
	r.EmitPlanCreated(context.Background(), &plan.Plan{Name: "Growth"})

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, []string{"plan_created:Growth"}, fast.Calls())
}

func TestEmitPaymentLinked(t *testing.T) {
	r := quietRegistry()
	p := &recordingPlugin{name: "audit"}
	require.NoError(t, r.Register(p))

	r.EmitPaymentLinked(context.Background(), &payment.Payment{ExternalID: "pi_1"})
	assert.Equal(t, []string{"linked:pi_1"}, p.Calls())
}
