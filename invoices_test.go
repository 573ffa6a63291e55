package bursar_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bursar"
	audithook "github.com/xraph/bursar/audit_hook"
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/invoice"
	"github.com/xraph/bursar/types"
)

func int64p(v int64) *int64 { return &v }

func TestCreateInvoiceTotals(t *testing.T) {
	tests := []struct {
		name     string
		in       bursar.CreateInvoiceInput
		subtotal int64
		total    int64
	}{
		{
			name: "subtotal from lines",
			in: bursar.CreateInvoiceInput{
				LineItems: []bursar.LineItemInput{
					{Description: "Seats", Quantity: 2, UnitAmount: 500},
					{Description: "Setup", Quantity: 1, UnitAmount: 200},
				},
				Tax:      100,
				Discount: 50,
			},
			subtotal: 1200,
			total:    1250,
		},
		{
			name:     "explicit subtotal",
			in:       bursar.CreateInvoiceInput{Subtotal: int64p(900), Tax: 90},
			subtotal: 900,
			total:    990,
		},
		{
			name:     "discount larger than subtotal",
			in:       bursar.CreateInvoiceInput{Subtotal: int64p(300), Discount: 1000},
			subtotal: 300,
			total:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			in := tt.in
			in.TenantID, in.Currency = "t1", "USD"
			in.PeriodStart, in.PeriodEnd = marchStart, aprilStart

			inv, err := h.b.CreateInvoice(context.Background(), in)
			require.NoError(t, err)

			assert.Equal(t, invoice.StatusDraft, inv.Status)
			assert.Equal(t, "usd", inv.Currency)
			assert.True(t, inv.Subtotal.Equal(types.USD(tt.subtotal)), "subtotal %v", inv.Subtotal)
			assert.True(t, inv.Total.Equal(types.USD(tt.total)), "total %v", inv.Total)
			assert.Regexp(t, `^INV-202503-[0-9A-Z]{8}$`, inv.InvoiceNumber)
		})
	}
}

func TestCreateInvoiceValidation(t *testing.T) {
	h := newHarness(t)

	valid := func() bursar.CreateInvoiceInput {
		return bursar.CreateInvoiceInput{TenantID: "t1", Currency: "usd", PeriodStart: marchStart, PeriodEnd: aprilStart}
	}

	tests := []struct {
		name   string
		mutate func(*bursar.CreateInvoiceInput)
	}{
		{"missing tenant", func(in *bursar.CreateInvoiceInput) { in.TenantID = "" }},
		{"end before start", func(in *bursar.CreateInvoiceInput) { in.PeriodEnd = marchStart.Add(-time.Hour) }},
		{"end equals start", func(in *bursar.CreateInvoiceInput) { in.PeriodEnd = marchStart }},
		{"negative tax", func(in *bursar.CreateInvoiceInput) { in.Tax = -1 }},
		{"negative subtotal", func(in *bursar.CreateInvoiceInput) { in.Subtotal = int64p(-5) }},
		{"bad currency", func(in *bursar.CreateInvoiceInput) { in.Currency = "dollars" }},
		{"zero quantity line", func(in *bursar.CreateInvoiceInput) {
			in.LineItems = []bursar.LineItemInput{{Description: "x", Quantity: 0, UnitAmount: 1}}
		}},
		{"negative unit amount", func(in *bursar.CreateInvoiceInput) {
			in.LineItems = []bursar.LineItemInput{{Description: "x", Quantity: 1, UnitAmount: -1}}
		}},
		{"unknown edition", func(in *bursar.CreateInvoiceInput) { in.EditionID = "gold" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid()
			tt.mutate(&in)
			_, err := h.b.CreateInvoice(context.Background(), in)
			require.Error(t, err)
			assert.True(t, bursar.IsValidation(err), "got %v", err)
		})
	}

	invs, err := h.b.ListInvoices(context.Background(), "t1", invoice.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, invs)
}

func TestCreateInvoiceDuplicatePeriod(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	in := bursar.CreateInvoiceInput{
		TenantID:    "t1",
		EditionID:   "premium",
		Currency:    "usd",
		PeriodStart: marchStart,
		PeriodEnd:   aprilStart,
		Subtotal:    int64p(1200),
	}

	first, err := h.b.CreateInvoice(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "edn_premium", first.EditionID)

	_, err = h.b.CreateInvoice(ctx, in)
	require.ErrorIs(t, err, bursar.ErrDuplicatePeriod)
	assert.True(t, bursar.IsConflict(err))

	// Other tenants and other periods are unaffected.
	other := in
	other.TenantID = "t2"
	_, err = h.b.CreateInvoice(ctx, other)
	require.NoError(t, err)

	next := in
	next.PeriodStart, next.PeriodEnd = aprilStart, aprilStart.AddDate(0, 1, 0)
	_, err = h.b.CreateInvoice(ctx, next)
	require.NoError(t, err)

	// A void invoice frees its period.
	_, err = h.b.VoidInvoice(ctx, "t1", first.ID, "duplicate")
	require.NoError(t, err)
	_, err = h.b.CreateInvoice(ctx, in)
	require.NoError(t, err)
}

func TestInvoiceStateMachine(t *testing.T) {
	type step func(b *bursar.Bursar, inv *invoice.Invoice) (*invoice.Invoice, error)

	issue := func(b *bursar.Bursar, inv *invoice.Invoice) (*invoice.Invoice, error) {
		return b.IssueInvoice(context.Background(), inv.TenantID, inv.ID)
	}
	pay := func(b *bursar.Bursar, inv *invoice.Invoice) (*invoice.Invoice, error) {
		return b.MarkInvoicePaid(context.Background(), inv.TenantID, inv.ID, id.Nil)
	}
	overdue := func(b *bursar.Bursar, inv *invoice.Invoice) (*invoice.Invoice, error) {
		return b.MarkInvoiceOverdue(context.Background(), inv.TenantID, inv.ID)
	}
	void := func(b *bursar.Bursar, inv *invoice.Invoice) (*invoice.Invoice, error) {
		return b.VoidInvoice(context.Background(), inv.TenantID, inv.ID, "")
	}

	tests := []struct {
		name    string
		path    []step
		final   invoice.Status
		illegal step
	}{
		{"draft cannot be paid", nil, invoice.StatusDraft, pay},
		{"draft cannot go overdue", nil, invoice.StatusDraft, overdue},
		{"issued cannot be reissued", []step{issue}, invoice.StatusIssued, issue},
		{"paid is terminal for void", []step{issue, pay}, invoice.StatusPaid, void},
		{"paid is terminal for overdue", []step{issue, pay}, invoice.StatusPaid, overdue},
		{"overdue cannot be reissued", []step{issue, overdue}, invoice.StatusOverdue, issue},
		{"overdue then paid is terminal", []step{issue, overdue, pay}, invoice.StatusPaid, pay},
		{"void is terminal", []step{void}, invoice.StatusVoid, issue},
		{"issued then void is terminal", []step{issue, void}, invoice.StatusVoid, pay},
		{"overdue then void is terminal", []step{issue, overdue, void}, invoice.StatusVoid, void},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			inv, err := h.b.CreateInvoice(context.Background(), bursar.CreateInvoiceInput{
				TenantID: "t1", Currency: "usd", PeriodStart: marchStart, PeriodEnd: aprilStart, Subtotal: int64p(100),
			})
			require.NoError(t, err)

			for _, s := range tt.path {
				inv, err = s(h.b, inv)
				require.NoError(t, err)
			}
			require.Equal(t, tt.final, inv.Status)

			_, err = tt.illegal(h.b, inv)
			require.ErrorIs(t, err, bursar.ErrInvalidTransition)

			stored, err := h.b.GetInvoice(context.Background(), "t1", inv.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.final, stored.Status)
		})
	}
}

func TestInvoiceTransitionsStampAndAudit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	inv, err := h.b.CreateInvoice(ctx, bursar.CreateInvoiceInput{
		TenantID:    "t1",
		Currency:    "usd",
		PeriodStart: marchStart,
		PeriodEnd:   aprilStart,
		LineItems: []bursar.LineItemInput{
			{Description: "Seats", Quantity: 3, UnitAmount: 100},
			{Description: "Support", Quantity: 1, UnitAmount: 50},
		},
	})
	require.NoError(t, err)
	require.Len(t, h.rec.byAction(audithook.ActionInvoiceCreated), 1)

	h.clock.Advance(time.Hour)
	inv, err = h.b.IssueInvoice(ctx, "t1", inv.ID)
	require.NoError(t, err)
	require.NotNil(t, inv.IssuedAt)
	assert.Equal(t, h.clock.Now(), *inv.IssuedAt)
	assert.Equal(t, h.clock.Now(), inv.UpdatedAt)
	require.Len(t, h.rec.byAction(audithook.ActionInvoiceIssued), 1)

	h.clock.Advance(time.Hour)
	inv, err = h.b.VoidInvoice(ctx, "t1", inv.ID, "school closed")
	require.NoError(t, err)
	require.NotNil(t, inv.VoidedAt)
	require.Len(t, inv.LineItems, 2, "voiding must not add line items")
	for _, li := range inv.LineItems {
		assert.Equal(t, "school closed", li.Metadata[invoice.MetadataVoidReason])
	}

	voided := h.rec.byAction(audithook.ActionInvoiceVoided)
	require.Len(t, voided, 1)
	assert.Equal(t, inv.ID.String(), voided[0].ResourceID)
	assert.Equal(t, inv.InvoiceNumber, voided[0].Metadata["invoice_number"])
	assert.Equal(t, "school closed", voided[0].Reason)
}

func TestMarkInvoicePaidRecordsPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.issuedInvoice(t, "t1", 1000)

	pid := id.NewPaymentID()
	inv, err := h.b.MarkInvoicePaid(ctx, "t1", inv.ID, pid)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusPaid, inv.Status)
	assert.Equal(t, pid, inv.PaymentID)
	require.NotNil(t, inv.PaidAt)

	paid := h.rec.byAction(audithook.ActionInvoicePaid)
	require.Len(t, paid, 1)
	assert.Equal(t, pid.String(), paid[0].Metadata["payment_id"])
}

func TestInvoiceTenantIsolation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.issuedInvoice(t, "t1", 1000)

	_, err := h.b.GetInvoice(ctx, "t2", inv.ID)
	require.ErrorIs(t, err, bursar.ErrInvoiceNotFound)

	_, err = h.b.VoidInvoice(ctx, "t2", inv.ID, "nope")
	require.ErrorIs(t, err, bursar.ErrInvoiceNotFound)

	invs, err := h.b.ListInvoices(ctx, "t2", invoice.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, invs)
}

func TestMarkOverdueInvoices(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	due := marchStart.AddDate(0, 0, 14)
	create := func(tenantID string, start time.Time) *invoice.Invoice {
		inv, err := h.b.CreateInvoice(ctx, bursar.CreateInvoiceInput{
			TenantID: tenantID, Currency: "usd", PeriodStart: start, PeriodEnd: start.AddDate(0, 1, 0),
			Subtotal: int64p(100), DueDate: &due,
		})
		require.NoError(t, err)
		return inv
	}

	a := create("t1", marchStart)
	_, err := h.b.IssueInvoice(ctx, "t1", a.ID)
	require.NoError(t, err)
	b := create("t2", marchStart)
	_, err = h.b.IssueInvoice(ctx, "t2", b.ID)
	require.NoError(t, err)
	draft := create("t1", aprilStart)

	n, err := h.b.MarkOverdueInvoices(ctx, due.Add(-time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = h.b.MarkOverdueInvoices(ctx, due.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := h.b.GetInvoice(ctx, "t1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusOverdue, got.Status)

	got, err = h.b.GetInvoice(ctx, "t1", draft.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.StatusDraft, got.Status)

	assert.Len(t, h.rec.byAction(audithook.ActionInvoiceMarkedOverdue), 2)
}
