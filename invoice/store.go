package invoice

import (
	"context"
	"time"

	"github.com/xraph/bursar/id"
)

// Store persists invoices. Every read and write except InvoiceTenant and
// ListInvoicesDue is scoped to a tenant.
type Store interface {
	// CreateInvoice must reject a second non-void invoice for the same
	// (tenant, edition, period) and a reused invoice number.
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, tenantID string, invID id.InvoiceID) (*Invoice, error)
	ListInvoices(ctx context.Context, tenantID string, opts ListOpts) ([]*Invoice, error)
	// UpdateInvoice writes inv only if the stored status still equals from.
	UpdateInvoice(ctx context.Context, inv *Invoice, from Status) error
	FindActiveInvoiceForPeriod(ctx context.Context, tenantID, editionID string, start, end time.Time) (*Invoice, error)
	// InvoiceTenant returns the owning tenant of an invoice. It exists to
	// classify cross-tenant references and never returns invoice data.
	InvoiceTenant(ctx context.Context, invID id.InvoiceID) (string, error)
	ListInvoicesDue(ctx context.Context, asOf time.Time, limit int) ([]*Invoice, error)
}

type ListOpts struct {
	Status Status
	Start  time.Time
	End    time.Time
	Limit  int
	Offset int
}
