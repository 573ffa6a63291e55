package invoice

import (
	"fmt"
	"strings"
	"time"

	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/types"
)

type Status string

const (
	StatusDraft   Status = "draft"
	StatusIssued  Status = "issued"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
	StatusVoid    Status = "void"
)

// MetadataVoidReason is the line-item metadata key carrying the reason an
// invoice was voided.
const MetadataVoidReason = "void_reason"

// transitions lists the legal target states for every source state.
var transitions = map[Status][]Status{
	StatusDraft:   {StatusIssued, StatusVoid},
	StatusIssued:  {StatusPaid, StatusOverdue, StatusVoid},
	StatusOverdue: {StatusPaid, StatusVoid},
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusPaid || s == StatusVoid
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusIssued, StatusPaid, StatusOverdue, StatusVoid:
		return true
	}
	return false
}

type Invoice struct {
	types.Entity
	ID            id.InvoiceID      `json:"id"`
	TenantID      string            `json:"tenant_id"`
	EditionID     string            `json:"edition_id,omitempty"`
	InvoiceNumber string            `json:"invoice_number"`
	Status        Status            `json:"status"`
	Currency      string            `json:"currency"`
	Subtotal      types.Money       `json:"subtotal"`
	Tax           types.Money       `json:"tax"`
	Discount      types.Money       `json:"discount"`
	Total         types.Money       `json:"total"`
	LineItems     []LineItem        `json:"line_items"`
	PeriodStart   time.Time         `json:"period_start"`
	PeriodEnd     time.Time         `json:"period_end"`
	DueDate       *time.Time        `json:"due_date,omitempty"`
	IssuedAt      *time.Time        `json:"issued_at,omitempty"`
	PaidAt        *time.Time        `json:"paid_at,omitempty"`
	VoidedAt      *time.Time        `json:"voided_at,omitempty"`
	PaymentID     id.PaymentID      `json:"payment_id"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type LineItem struct {
	ID          id.LineItemID     `json:"id"`
	Description string            `json:"description"`
	Quantity    int64             `json:"quantity"`
	UnitAmount  types.Money       `json:"unit_amount"`
	Amount      types.Money       `json:"amount"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ComputeTotal returns max(subtotal + tax - discount, 0). All three values
// must share a currency.
func ComputeTotal(subtotal, tax, discount types.Money) types.Money {
	return subtotal.Add(tax).Subtract(discount).FloorZero()
}

// SumLines adds up the line amounts in the given currency.
func SumLines(currency string, items []LineItem) types.Money {
	total := types.Zero(currency)
	for _, li := range items {
		total = total.Add(li.Amount)
	}
	return total
}

// Recalculate recomputes Total from Subtotal, Tax and Discount.
func (inv *Invoice) Recalculate() {
	inv.Total = ComputeTotal(inv.Subtotal, inv.Tax, inv.Discount)
}

// SamePeriod reports whether inv covers exactly [start, end) for editionID.
func (inv *Invoice) SamePeriod(editionID string, start, end time.Time) bool {
	return inv.EditionID == editionID && inv.PeriodStart.Equal(start) && inv.PeriodEnd.Equal(end)
}

// AttachVoidReason records reason in the metadata of every line item. An
// invoice without lines gets the reason on the invoice metadata instead.
func (inv *Invoice) AttachVoidReason(reason string) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return
	}
	if len(inv.LineItems) == 0 {
		if inv.Metadata == nil {
			inv.Metadata = make(map[string]string, 1)
		}
		inv.Metadata[MetadataVoidReason] = reason
		return
	}
	for i := range inv.LineItems {
		if inv.LineItems[i].Metadata == nil {
			inv.LineItems[i].Metadata = make(map[string]string, 1)
		}
		inv.LineItems[i].Metadata[MetadataVoidReason] = reason
	}
}

// VoidReason returns the recorded void reason, if any.
func (inv *Invoice) VoidReason() string {
	for _, li := range inv.LineItems {
		if r := li.Metadata[MetadataVoidReason]; r != "" {
			return r
		}
	}
	return inv.Metadata[MetadataVoidReason]
}

// NewNumber builds an invoice number of the form INV-YYYYMM-XXXXXXXX from the
// period start and the tail of the invoice id, which keeps numbers unique
// without a per-tenant counter.
func NewNumber(invID id.InvoiceID, periodStart time.Time) string {
	suffix := strings.ToUpper(invID.Suffix())
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	return fmt.Sprintf("INV-%s-%s", periodStart.UTC().Format("200601"), suffix)
}
