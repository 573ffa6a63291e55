package bursar

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/invoice"
	"github.com/xraph/bursar/types"
)

// CreateInvoiceInput describes a new draft invoice. Amounts are in minor
// units of Currency.
type CreateInvoiceInput struct {
	TenantID    string            `json:"tenant_id"    validate:"required"`
	EditionID   string            `json:"edition_id"`
	Currency    string            `json:"currency"     validate:"required,len=3,alpha"`
	PeriodStart time.Time         `json:"period_start" validate:"required"`
	PeriodEnd   time.Time         `json:"period_end"   validate:"required,gtfield=PeriodStart"`
	Subtotal    *int64            `json:"subtotal"     validate:"omitempty,gte=0"`
	Tax         int64             `json:"tax"          validate:"gte=0"`
	Discount    int64             `json:"discount"     validate:"gte=0"`
	DueDate     *time.Time        `json:"due_date"`
	LineItems   []LineItemInput   `json:"line_items"   validate:"dive"`
	Metadata    map[string]string `json:"metadata"`
}

type LineItemInput struct {
	Description string            `json:"description" validate:"required"`
	Quantity    int64             `json:"quantity"    validate:"gte=1"`
	UnitAmount  int64             `json:"unit_amount" validate:"gte=0"`
	Metadata    map[string]string `json:"metadata"`
}

// CreateInvoice creates a draft invoice. A tenant holds at most one
// non-void invoice per edition and period; a second one fails with
// ErrDuplicatePeriod.
func (b *Bursar) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (*invoice.Invoice, error) {
	if err := b.check(in); err != nil {
		return nil, err
	}

	editionID := in.EditionID
	if editionID != "" {
		e, ok := b.catalog.Lookup(editionID)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEdition, editionID)
		}
		editionID = e.ID
	}

	start, end := in.PeriodStart.UTC(), in.PeriodEnd.UTC()
	switch existing, err := b.store.FindActiveInvoiceForPeriod(ctx, in.TenantID, editionID, start, end); {
	case err == nil:
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePeriod, existing.InvoiceNumber)
	case !IsNotFound(err):
		return nil, err
	}

	currency := types.NormalizeCurrency(in.Currency)
	now := b.clock()

	inv := &invoice.Invoice{
		Entity:      types.NewEntityAt(now),
		ID:          id.NewInvoiceID(),
		TenantID:    in.TenantID,
		EditionID:   editionID,
		Status:      invoice.StatusDraft,
		Currency:    currency,
		Tax:         types.New(in.Tax, currency),
		Discount:    types.New(in.Discount, currency),
		LineItems:   make([]invoice.LineItem, 0, len(in.LineItems)),
		PeriodStart: start,
		PeriodEnd:   end,
		Metadata:    in.Metadata,
	}
	if in.DueDate != nil {
		due := in.DueDate.UTC()
		inv.DueDate = &due
	}
	for _, li := range in.LineItems {
		unit := types.New(li.UnitAmount, currency)
		inv.LineItems = append(inv.LineItems, invoice.LineItem{
			ID:          id.NewLineItemID(),
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitAmount:  unit,
			Amount:      unit.Multiply(li.Quantity),
			Metadata:    li.Metadata,
		})
	}
	if in.Subtotal != nil {
		inv.Subtotal = types.New(*in.Subtotal, currency)
	} else {
		inv.Subtotal = invoice.SumLines(currency, inv.LineItems)
	}
	inv.Recalculate()
	inv.InvoiceNumber = invoice.NewNumber(inv.ID, start)

	if err := b.store.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	b.plugins.EmitInvoiceCreated(ctx, inv)

	b.logger.Debug("invoice created",
		"tenant_id", inv.TenantID,
		"invoice_id", inv.ID.String(),
		"invoice_number", inv.InvoiceNumber,
		"total", inv.Total.String(),
	)
	return inv, nil
}

// GetInvoice retrieves an invoice owned by tenantID.
func (b *Bursar) GetInvoice(ctx context.Context, tenantID string, invID id.InvoiceID) (*invoice.Invoice, error) {
	return b.store.GetInvoice(ctx, tenantID, invID)
}

// ListInvoices lists a tenant's invoices.
func (b *Bursar) ListInvoices(ctx context.Context, tenantID string, opts invoice.ListOpts) ([]*invoice.Invoice, error) {
	return b.store.ListInvoices(ctx, tenantID, opts)
}

// IssueInvoice moves a draft invoice to issued.
func (b *Bursar) IssueInvoice(ctx context.Context, tenantID string, invID id.InvoiceID) (*invoice.Invoice, error) {
	return b.transition(ctx, tenantID, invID, invoice.StatusIssued, func(inv *invoice.Invoice, now time.Time) {
		inv.IssuedAt = &now
	})
}

// MarkInvoicePaid moves an issued or overdue invoice to paid. paymentID may
// be Nil for payments settled outside any gateway.
func (b *Bursar) MarkInvoicePaid(ctx context.Context, tenantID string, invID id.InvoiceID, paymentID id.PaymentID) (*invoice.Invoice, error) {
	return b.transition(ctx, tenantID, invID, invoice.StatusPaid, func(inv *invoice.Invoice, now time.Time) {
		inv.PaidAt = &now
		inv.PaymentID = paymentID
	})
}

// MarkInvoiceOverdue moves an issued invoice to overdue.
func (b *Bursar) MarkInvoiceOverdue(ctx context.Context, tenantID string, invID id.InvoiceID) (*invoice.Invoice, error) {
	return b.transition(ctx, tenantID, invID, invoice.StatusOverdue, nil)
}

// VoidInvoice voids a draft, issued or overdue invoice. The reason is
// stored as line-item metadata.
func (b *Bursar) VoidInvoice(ctx context.Context, tenantID string, invID id.InvoiceID, reason string) (*invoice.Invoice, error) {
	return b.transition(ctx, tenantID, invID, invoice.StatusVoid, func(inv *invoice.Invoice, now time.Time) {
		inv.VoidedAt = &now
		inv.AttachVoidReason(reason)
	})
}

func (b *Bursar) transition(
	ctx context.Context,
	tenantID string,
	invID id.InvoiceID,
	to invoice.Status,
	apply func(inv *invoice.Invoice, now time.Time),
) (*invoice.Invoice, error) {
	inv, err := b.store.GetInvoice(ctx, tenantID, invID)
	if err != nil {
		return nil, err
	}

	from := inv.Status
	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s (invoice %s)", ErrInvalidTransition, from, to, inv.InvoiceNumber)
	}

	now := b.clock()
	inv.Status = to
	inv.Touch(now)
	if apply != nil {
		apply(inv, now)
	}

	if err := b.store.UpdateInvoice(ctx, inv, from); err != nil {
		return nil, err
	}

	b.plugins.EmitInvoiceTransitioned(ctx, inv, from)

	b.logger.Debug("invoice transitioned",
		"tenant_id", tenantID,
		"invoice_id", invID.String(),
		"from", from,
		"to", to,
	)
	return inv, nil
}

// MarkOverdueInvoices marks every issued invoice whose due date is before
// asOf as overdue. Each invoice transitions independently; failures are
// returned together as a MultiError of *TenantError.
func (b *Bursar) MarkOverdueInvoices(ctx context.Context, asOf time.Time) (int, error) {
	due, err := b.store.ListInvoicesDue(ctx, asOf.UTC(), 0)
	if err != nil {
		return 0, err
	}

	var (
		marked int
		errs   MultiError
	)
	for _, inv := range due {
		if _, err := b.MarkInvoiceOverdue(ctx, inv.TenantID, inv.ID); err != nil {
			errs.Add(&TenantError{TenantID: inv.TenantID, Err: err})
			continue
		}
		marked++
	}

	if errs.HasErrors() {
		b.logger.Warn("overdue sweep finished with failures", "marked", marked, "failed", len(errs.Errors))
	}
	return marked, errs.ErrOrNil()
}
