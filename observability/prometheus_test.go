package observability

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/invoice"
	"github.com/xraph/bursar/payment"
	"github.com/xraph/bursar/types"
)

func TestPrometheusFactoryReusesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := NewPrometheusFactory(reg, "test")

	a := f.Counter("bursar.invoice.paid")
	b := f.Counter("bursar.invoice.paid")
	assert.Same(t, a, b)

	a.Inc()
	b.Add(2)

	n, err := testutil.GatherAndCount(reg, "test_bursar_invoice_paid_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.InDelta(t, 3, testutil.ToFloat64(a.(prometheus.Counter)), 0.001)
}

func TestMetricsExtensionCountsTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := NewPrometheusFactory(reg, "test")
	m := NewMetricsExtension(f)
	ctx := context.Background()

	inv := &invoice.Invoice{ID: id.NewInvoiceID(), Status: invoice.StatusIssued, Total: types.USD(1200)}
	require.NoError(t, m.OnInvoiceCreated(ctx, inv))
	require.NoError(t, m.OnInvoiceTransitioned(ctx, inv, invoice.StatusDraft))
	inv.Status = invoice.StatusPaid
	require.NoError(t, m.OnInvoiceTransitioned(ctx, inv, invoice.StatusIssued))

	p := &payment.Payment{Status: payment.StatusSucceeded}
	require.NoError(t, m.OnPaymentUpdated(ctx, p, payment.StatusPending))
	require.NoError(t, m.OnPaymentUpdated(ctx, p, payment.StatusSucceeded))
	require.NoError(t, m.OnEntitlementsRecomputed(ctx, id.NewPlanID(), []string{"t1", "t2"}, []string{"t3"}))

	assert.InDelta(t, 1, testutil.ToFloat64(m.InvoiceIssued.(prometheus.Counter)), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.InvoicePaid.(prometheus.Counter)), 0.001)
	assert.InDelta(t, 2, testutil.ToFloat64(m.PaymentUpdated.(prometheus.Counter)), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PaymentSucceeded.(prometheus.Counter)), 0.001)
	assert.InDelta(t, 2, testutil.ToFloat64(m.RecomputeTenantsUpdated.(prometheus.Counter)), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RecomputeTenantsFailed.(prometheus.Counter)), 0.001)
}
