package bursar

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/bursar/gateway"
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/invoice"
	"github.com/xraph/bursar/payment"
	"github.com/xraph/bursar/types"
)

// HandleWebhook verifies a raw webhook with the named gateway and feeds the
// decoded event through reconciliation. Payloads that fail verification are
// rejected with ErrInvalidSignature before anything is written.
func (b *Bursar) HandleWebhook(ctx context.Context, gatewayName string, payload []byte, signature string) (*payment.Payment, error) {
	g, err := b.gateways.Get(gatewayName)
	if err != nil {
		return nil, err
	}

	evt, err := g.VerifyWebhook(ctx, payload, signature)
	if err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			b.logger.Warn("webhook signature rejected", "gateway", gatewayName)
		}
		return nil, err
	}
	evt.Gateway = g.Name()

	b.plugins.EmitWebhookReceived(ctx, evt.Gateway, evt)
	return b.UpsertFromGatewayEvent(ctx, evt)
}

// UpsertFromGatewayEvent reconciles one gateway event into the payment
// keyed by (Gateway, ExternalID). Replaying the same event leaves a single
// record. Metadata is merged with the event winning, the status is mapped
// through payment.StatusRules, and an invoice link is only ever set on a
// payment that has none.
//
// When the payment becomes SUCCEEDED, or is linked while already
// SUCCEEDED, the invoice is evaluated for payment.
func (b *Bursar) UpsertFromGatewayEvent(ctx context.Context, evt *payment.Event) (*payment.Payment, error) {
	if evt == nil {
		return nil, ValidationError{Field: "Event", Message: "required"}
	}
	if evt.Gateway == "" {
		return nil, ValidationError{Field: "Gateway", Message: "required"}
	}
	if evt.ExternalID == "" {
		return nil, ValidationError{Field: "ExternalID", Message: "required"}
	}

	status := payment.MapStatus(evt.StatusHint, evt.EventType)

	existing, err := b.store.GetPaymentByExternalID(ctx, evt.Gateway, evt.ExternalID)
	switch {
	case err == nil:
		return b.applyEvent(ctx, existing, evt, status)
	case !IsNotFound(err):
		return nil, err
	}

	p, err := b.createFromEvent(ctx, evt, status)
	if !errors.Is(err, ErrAlreadyExists) {
		return p, err
	}

	// Lost a create race for the same key; the winner's record is updated.
	b.logger.Debug("payment create raced, applying as update",
		"gateway", evt.Gateway,
		"external_id", evt.ExternalID,
	)
	existing, err = b.store.GetPaymentByExternalID(ctx, evt.Gateway, evt.ExternalID)
	if err != nil {
		return nil, err
	}
	return b.applyEvent(ctx, existing, evt, status)
}

func (b *Bursar) createFromEvent(ctx context.Context, evt *payment.Event, status payment.Status) (*payment.Payment, error) {
	if evt.TenantID == "" {
		return nil, fmt.Errorf("%w: %s %s", ErrMissingTenant, evt.Gateway, evt.ExternalID)
	}

	now := b.clock()
	p := &payment.Payment{
		Entity:         types.NewEntityAt(now),
		ID:             id.NewPaymentID(),
		TenantID:       evt.TenantID,
		Gateway:        evt.Gateway,
		ExternalID:     evt.ExternalID,
		ExternalType:   evt.ExternalType,
		Status:         status,
		FailureCode:    evt.FailureCode,
		FailureMessage: evt.FailureMessage,
		Metadata:       payment.MergeMetadata(nil, evt.Metadata),
	}
	if evt.Amount != nil {
		p.Amount = *evt.Amount
	}

	if !evt.InvoiceID.IsNil() {
		ok, err := b.linkable(ctx, p, evt.InvoiceID)
		if err != nil {
			return nil, err
		}
		if ok {
			p.InvoiceID = evt.InvoiceID
		}
	}

	if err := b.store.CreatePayment(ctx, p); err != nil {
		return nil, err
	}

	b.plugins.EmitPaymentCreated(ctx, p)

	b.logger.Debug("payment created",
		"tenant_id", p.TenantID,
		"gateway", p.Gateway,
		"external_id", p.ExternalID,
		"status", p.Status,
	)

	if p.Status == payment.StatusSucceeded && p.IsLinked() {
		b.evaluateAfterPayment(ctx, p)
	}
	return p, nil
}

func (b *Bursar) applyEvent(ctx context.Context, p *payment.Payment, evt *payment.Event, status payment.Status) (*payment.Payment, error) {
	if evt.TenantID != "" && evt.TenantID != p.TenantID {
		b.logger.Error("payment event tenant does not match stored payment",
			"payment_id", p.ID.String(),
			"payment_tenant_id", p.TenantID,
			"event_tenant_id", evt.TenantID,
		)
		b.plugins.EmitTenantMismatch(ctx, p, evt.InvoiceID, evt.TenantID)
		return nil, fmt.Errorf("%w: payment %s", ErrTenantMismatch, p.ID)
	}

	linked := false
	switch {
	case evt.InvoiceID.IsNil():
	case !p.IsLinked():
		ok, err := b.linkable(ctx, p, evt.InvoiceID)
		if err != nil {
			return nil, err
		}
		if ok {
			p.InvoiceID = evt.InvoiceID
			linked = true
		}
	case p.InvoiceID.String() != evt.InvoiceID.String():
		b.logger.Warn("ignoring event invoice for already linked payment",
			"payment_id", p.ID.String(),
			"invoice_id", p.InvoiceID.String(),
			"event_invoice_id", evt.InvoiceID.String(),
		)
	}

	from := p.Status
	p.Status = status
	p.Metadata = payment.MergeMetadata(p.Metadata, evt.Metadata)
	if evt.Amount != nil {
		p.Amount = *evt.Amount
	}
	if evt.ExternalType != "" {
		p.ExternalType = evt.ExternalType
	}
	if evt.FailureCode != "" || evt.FailureMessage != "" {
		p.FailureCode, p.FailureMessage = evt.FailureCode, evt.FailureMessage
	}
	p.Touch(b.clock())

	if err := b.store.UpdatePayment(ctx, p); err != nil {
		return nil, err
	}

	b.plugins.EmitPaymentUpdated(ctx, p, from)

	b.logger.Debug("payment updated",
		"tenant_id", p.TenantID,
		"gateway", p.Gateway,
		"external_id", p.ExternalID,
		"from", from,
		"to", p.Status,
	)

	if p.Status == payment.StatusSucceeded && p.IsLinked() && (from != payment.StatusSucceeded || linked) {
		b.evaluateAfterPayment(ctx, p)
	}
	return p, nil
}

// linkable reports whether p may be linked to invID. A cross-tenant invoice
// is a hard error; an unknown invoice leaves the payment unlinked.
func (b *Bursar) linkable(ctx context.Context, p *payment.Payment, invID id.InvoiceID) (bool, error) {
	err := b.checkInvoiceTenant(ctx, p, invID)
	switch {
	case err == nil:
		return true, nil
	case IsNotFound(err):
		b.logger.Warn("payment references unknown invoice, leaving unlinked",
			"tenant_id", p.TenantID,
			"external_id", p.ExternalID,
			"invoice_id", invID.String(),
		)
		return false, nil
	default:
		return false, err
	}
}

func (b *Bursar) checkInvoiceTenant(ctx context.Context, p *payment.Payment, invID id.InvoiceID) error {
	owner, err := b.store.InvoiceTenant(ctx, invID)
	if err != nil {
		return err
	}
	if owner == p.TenantID {
		return nil
	}

	b.logger.Error("payment and invoice tenants differ",
		"payment_tenant_id", p.TenantID,
		"invoice_tenant_id", owner,
		"invoice_id", invID.String(),
		"gateway", p.Gateway,
		"external_id", p.ExternalID,
	)
	b.plugins.EmitTenantMismatch(ctx, p, invID, owner)
	return fmt.Errorf("%w: invoice %s", ErrTenantMismatch, invID)
}

func (b *Bursar) evaluateAfterPayment(ctx context.Context, p *payment.Payment) {
	if _, err := b.EvaluateInvoicePayment(ctx, p.TenantID, p.InvoiceID); err != nil {
		b.logger.Error("invoice payment evaluation failed",
			"tenant_id", p.TenantID,
			"invoice_id", p.InvoiceID.String(),
			"payment_id", p.ID.String(),
			"error", err,
		)
	}
}

// LinkPayment attaches a payment to an invoice of the same tenant. A
// payment that already points at a different invoice is never relinked,
// including one linked by a concurrent webhook. A new link is reported
// through OnPaymentLinked, not as a status update.
func (b *Bursar) LinkPayment(ctx context.Context, tenantID string, paymentID id.PaymentID, invID id.InvoiceID) (*payment.Payment, error) {
	p, err := b.store.GetPayment(ctx, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	if p.IsLinked() {
		if p.InvoiceID.String() == invID.String() {
			return p, nil
		}
		return nil, fmt.Errorf("%w: payment %s is linked to invoice %s", ErrAlreadyExists, p.ID, p.InvoiceID)
	}
	if err := b.checkInvoiceTenant(ctx, p, invID); err != nil {
		return nil, err
	}

	p.InvoiceID = invID
	p.Touch(b.clock())
	if err := b.store.UpdatePayment(ctx, p); err != nil {
		return nil, err
	}
	if p.InvoiceID.String() != invID.String() {
		return nil, fmt.Errorf("%w: payment %s is linked to invoice %s", ErrAlreadyExists, p.ID, p.InvoiceID)
	}

	b.plugins.EmitPaymentLinked(ctx, p)

	if p.Status == payment.StatusSucceeded {
		b.evaluateAfterPayment(ctx, p)
	}
	return p, nil
}

// SyncPaymentStatus asks the gateway for the current state of a payment and
// reconciles the answer like a webhook.
func (b *Bursar) SyncPaymentStatus(ctx context.Context, gatewayName, externalID string) (*payment.Payment, error) {
	g, err := b.gateways.Get(gatewayName)
	if err != nil {
		return nil, err
	}

	evt, err := g.GetPaymentStatus(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("bursar: sync %s %s: %w", gatewayName, externalID, err)
	}
	evt.Gateway = g.Name()
	if evt.ExternalID == "" {
		evt.ExternalID = externalID
	}
	return b.UpsertFromGatewayEvent(ctx, evt)
}

// EvaluateInvoicePayment sums the SUCCEEDED payments linked to an invoice.
// When they cover the total the invoice becomes PAID with the most recent
// payment recorded; a shortfall is reported to plugins and changes nothing.
// Payments in another currency are excluded.
func (b *Bursar) EvaluateInvoicePayment(ctx context.Context, tenantID string, invID id.InvoiceID) (*invoice.Invoice, error) {
	inv, err := b.store.GetInvoice(ctx, tenantID, invID)
	if err != nil {
		return nil, err
	}
	if inv.Status == invoice.StatusPaid {
		return inv, nil
	}

	payments, err := b.store.ListPaymentsByInvoice(ctx, tenantID, invID)
	if err != nil {
		return nil, err
	}

	received := types.Zero(inv.Currency)
	var latest *payment.Payment
	for _, p := range payments {
		if p.Status != payment.StatusSucceeded {
			continue
		}
		if p.Amount.Currency != inv.Currency {
			b.logger.Warn("excluding payment in foreign currency",
				"tenant_id", tenantID,
				"invoice_id", invID.String(),
				"payment_id", p.ID.String(),
				"payment_currency", p.Amount.Currency,
				"invoice_currency", inv.Currency,
			)
			continue
		}
		received = received.Add(p.Amount)
		if latest == nil || !p.UpdatedAt.Before(latest.UpdatedAt) {
			latest = p
		}
	}

	if latest == nil {
		return inv, nil
	}

	if received.LessThan(inv.Total) {
		b.logger.Info("invoice underpaid",
			"tenant_id", tenantID,
			"invoice_id", invID.String(),
			"expected", inv.Total.String(),
			"received", received.String(),
		)
		b.plugins.EmitPaymentInvoiceMismatch(ctx, inv, inv.Total, received)
		return inv, nil
	}

	if !inv.Status.CanTransitionTo(invoice.StatusPaid) {
		b.logger.Warn("invoice covered by payments but cannot be marked paid",
			"tenant_id", tenantID,
			"invoice_id", invID.String(),
			"status", inv.Status,
		)
		return inv, nil
	}

	return b.MarkInvoicePaid(ctx, tenantID, invID, latest.ID)
}

// GetPayment retrieves a payment owned by tenantID.
func (b *Bursar) GetPayment(ctx context.Context, tenantID string, paymentID id.PaymentID) (*payment.Payment, error) {
	return b.store.GetPayment(ctx, tenantID, paymentID)
}

// ListPayments lists a tenant's payments.
func (b *Bursar) ListPayments(ctx context.Context, tenantID string, opts payment.ListOpts) ([]*payment.Payment, error) {
	return b.store.ListPayments(ctx, tenantID, opts)
}

// CheckoutInput requests a hosted checkout for an open invoice.
type CheckoutInput struct {
	Gateway       string       `json:"gateway"        validate:"required"`
	TenantID      string       `json:"tenant_id"      validate:"required"`
	InvoiceID     id.InvoiceID `json:"invoice_id"`
	UserID        string       `json:"user_id"`
	CustomerEmail string       `json:"customer_email" validate:"omitempty,email"`
	SuccessURL    string       `json:"success_url"    validate:"required,url"`
	CancelURL     string       `json:"cancel_url"     validate:"required,url"`
}

// CreateCheckout opens a gateway checkout for the outstanding total of an
// issued or overdue invoice.
func (b *Bursar) CreateCheckout(ctx context.Context, in CheckoutInput) (*gateway.CheckoutSession, error) {
	if err := b.check(in); err != nil {
		return nil, err
	}
	if in.InvoiceID.IsNil() {
		return nil, ValidationError{Field: "InvoiceID", Message: "required"}
	}

	g, err := b.gateways.Get(in.Gateway)
	if err != nil {
		return nil, err
	}

	inv, err := b.store.GetInvoice(ctx, in.TenantID, in.InvoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != invoice.StatusIssued && inv.Status != invoice.StatusOverdue {
		return nil, fmt.Errorf("%w: cannot collect payment for a %s invoice", ErrInvalidTransition, inv.Status)
	}

	return g.CreateCheckoutSession(ctx, gateway.CheckoutRequest{
		TenantID:      in.TenantID,
		UserID:        in.UserID,
		InvoiceID:     inv.ID,
		Amount:        inv.Total,
		Description:   inv.InvoiceNumber,
		CustomerEmail: in.CustomerEmail,
		SuccessURL:    in.SuccessURL,
		CancelURL:     in.CancelURL,
	})
}
