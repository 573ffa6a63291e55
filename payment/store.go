package payment

import (
	"context"

	"github.com/xraph/bursar/id"
)

type Store interface {
	// CreatePayment must fail with an already-exists error when the
	// (gateway, external id) pair is taken.
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, tenantID string, paymentID id.PaymentID) (*Payment, error)
	GetPaymentByExternalID(ctx context.Context, gateway, externalID string) (*Payment, error)
	UpdatePayment(ctx context.Context, p *Payment) error
	ListPaymentsByInvoice(ctx context.Context, tenantID string, invID id.InvoiceID) ([]*Payment, error)
	ListPayments(ctx context.Context, tenantID string, opts ListOpts) ([]*Payment, error)
}

type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}
