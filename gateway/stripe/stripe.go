// Package stripe adapts Stripe Checkout and PaymentIntents to the gateway
// port. Checkout sessions are created in payment mode for a single invoice
// amount; webhooks are verified with the endpoint signing secret.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	stripelib "github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/xraph/bursar/gateway"
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/payment"
	"github.com/xraph/bursar/types"
)

// Name is the gateway name under which the adapter registers.
const Name = "stripe"

// External object types recorded on payments.
const (
	TypePaymentIntent   = "payment_intent"
	TypeCheckoutSession = "checkout_session"
	TypeCharge          = "charge"
)

type Config struct {
	SecretKey     string `json:"secret_key"     mapstructure:"secret_key"`
	WebhookSecret string `json:"webhook_secret" mapstructure:"webhook_secret"`
}

// Gateway is the Stripe adapter.
type Gateway struct {
	webhookSecret string

	createCheckoutSession func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error)
	getCheckoutSession    func(id string, params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error)
	getPaymentIntent      func(id string, params *stripelib.PaymentIntentParams) (*stripelib.PaymentIntent, error)
}

var _ gateway.Gateway = (*Gateway)(nil)

// New configures the global Stripe client key and returns an adapter.
func New(cfg Config) *Gateway {
	if key := strings.TrimSpace(cfg.SecretKey); key != "" {
		stripelib.Key = key
	}
	return &Gateway{
		webhookSecret:         strings.TrimSpace(cfg.WebhookSecret),
		createCheckoutSession: stripesession.New,
		getCheckoutSession:    stripesession.Get,
		getPaymentIntent:      paymentintent.Get,
	}
}

func (g *Gateway) Name() string { return Name }

// CreateCheckoutSession opens a payment-mode checkout for req.Amount. The
// routing metadata is set on both the session and its PaymentIntent so that
// either event family can be reconciled.
func (g *Gateway) CreateCheckoutSession(_ context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
	if req.TenantID == "" {
		return nil, errors.New("stripe: tenant id is required in checkout metadata")
	}
	if req.Amount.Amount <= 0 {
		return nil, fmt.Errorf("stripe: checkout amount must be positive, got %d", req.Amount.Amount)
	}

	description := req.Description
	if description == "" {
		description = "Subscription payment"
	}
	md := req.RoutingMetadata()
	md[gateway.MetadataSource] = "bursar"

	params := &stripelib.CheckoutSessionParams{
		Mode:       stripelib.String(string(stripelib.CheckoutSessionModePayment)),
		SuccessURL: stripelib.String(req.SuccessURL),
		CancelURL:  stripelib.String(req.CancelURL),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{
				PriceData: &stripelib.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripelib.String(req.Amount.Currency),
					UnitAmount: stripelib.Int64(req.Amount.Amount),
					ProductData: &stripelib.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripelib.String(description),
					},
				},
				Quantity: stripelib.Int64(1),
			},
		},
		PaymentIntentData: &stripelib.CheckoutSessionPaymentIntentDataParams{
			Metadata: md,
		},
		ClientReferenceID: stripelib.String(req.TenantID),
		Metadata:          md,
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripelib.String(req.CustomerEmail)
	}

	sess, err := g.createCheckoutSession(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	out := &gateway.CheckoutSession{ID: sess.ID, URL: sess.URL}
	if sess.ExpiresAt > 0 {
		exp := time.Unix(sess.ExpiresAt, 0).UTC()
		out.ExpiresAt = &exp
	}
	return out, nil
}

// VerifyWebhook checks the Stripe-Signature header and normalises the
// event. Unconfigured secrets and empty signatures are rejected.
func (g *Gateway) VerifyWebhook(_ context.Context, payload []byte, signature string) (*payment.Event, error) {
	if g.webhookSecret == "" || strings.TrimSpace(signature) == "" {
		return nil, gateway.ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrInvalidSignature, err)
	}
	if event.Data == nil {
		return nil, fmt.Errorf("%w: %s has no data", gateway.ErrIgnoredEvent, event.Type)
	}

	evt, err := decodeEvent(string(event.Type), event.Data.Raw)
	if err != nil {
		return nil, err
	}
	evt.Gateway = Name
	evt.EventID = event.ID
	evt.EventType = string(event.Type)
	return evt, nil
}

// GetPaymentStatus accepts either a checkout session id (cs_...) or a
// PaymentIntent id.
func (g *Gateway) GetPaymentStatus(_ context.Context, referenceID string) (*payment.Event, error) {
	referenceID = strings.TrimSpace(referenceID)
	if referenceID == "" {
		return nil, errors.New("stripe: empty payment reference")
	}

	if strings.HasPrefix(referenceID, "cs_") {
		sess, err := g.getCheckoutSession(referenceID, &stripelib.CheckoutSessionParams{})
		if err != nil {
			return nil, fmt.Errorf("stripe: get checkout session: %w", err)
		}
		obj := checkoutObject{
			ID:            sess.ID,
			Status:        string(sess.Status),
			PaymentStatus: string(sess.PaymentStatus),
			AmountTotal:   sess.AmountTotal,
			Currency:      string(sess.Currency),
			Metadata:      sess.Metadata,
		}
		if sess.PaymentIntent != nil {
			obj.PaymentIntent = sess.PaymentIntent.ID
		}
		evt := obj.event(sessionStatusHint(obj.Status, obj.PaymentStatus))
		evt.Gateway = Name
		return evt, nil
	}

	pi, err := g.getPaymentIntent(referenceID, &stripelib.PaymentIntentParams{})
	if err != nil {
		return nil, fmt.Errorf("stripe: get payment intent: %w", err)
	}
	obj := intentObject{
		ID:       pi.ID,
		Status:   string(pi.Status),
		Amount:   pi.Amount,
		Currency: string(pi.Currency),
		Metadata: pi.Metadata,
	}
	if pi.LastPaymentError != nil {
		obj.LastPaymentError = &paymentError{Code: string(pi.LastPaymentError.Code), Message: pi.LastPaymentError.Msg}
	}
	evt := obj.event()
	evt.Gateway = Name
	return evt, nil
}

// Minimal webhook object shapes. Only the fields reconciliation reads are
// decoded.

type checkoutObject struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	PaymentStatus string            `json:"payment_status"`
	PaymentIntent string            `json:"payment_intent"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

type paymentError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type intentObject struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *paymentError     `json:"last_payment_error"`
}

type chargeObject struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Refunded      bool              `json:"refunded"`
	Metadata      map[string]string `json:"metadata"`
}

func decodeEvent(eventType string, raw json.RawMessage) (*payment.Event, error) {
	switch {
	case strings.HasPrefix(eventType, "checkout.session."):
		var obj checkoutObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("stripe: decode checkout.session: %w", err)
		}
		var hint string
		switch eventType {
		case "checkout.session.async_payment_succeeded":
			hint = "succeeded"
		case "checkout.session.async_payment_failed":
			hint = "failed"
		case "checkout.session.expired":
			hint = "canceled"
		default:
			hint = sessionStatusHint(obj.Status, obj.PaymentStatus)
			if hint == "pending" {
				// Delayed methods complete the session unpaid; the async
				// follow-up event carries the outcome.
				return nil, fmt.Errorf("%w: %s with payment_status %q", gateway.ErrIgnoredEvent, eventType, obj.PaymentStatus)
			}
		}
		return obj.event(hint), nil

	case strings.HasPrefix(eventType, "payment_intent."):
		var obj intentObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("stripe: decode payment_intent: %w", err)
		}
		return obj.event(), nil

	case eventType == "charge.refunded":
		var obj chargeObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("stripe: decode charge: %w", err)
		}
		if !obj.Refunded {
			// Partial refunds leave the payment standing.
			return nil, fmt.Errorf("%w: partial refund of %s", gateway.ErrIgnoredEvent, obj.ID)
		}
		return obj.event(), nil
	}

	return nil, fmt.Errorf("%w: %s", gateway.ErrIgnoredEvent, eventType)
}

// sessionStatusHint collapses a session's status pair into one hint. A
// completed session is only a success once the payment itself is paid.
func sessionStatusHint(status, paymentStatus string) string {
	switch {
	case paymentStatus == "paid" || paymentStatus == "no_payment_required":
		return "succeeded"
	case status == "expired":
		return "canceled"
	default:
		return "pending"
	}
}

func (o checkoutObject) event(hint string) *payment.Event {
	evt := &payment.Event{
		ExternalID:   o.ID,
		ExternalType: TypeCheckoutSession,
		StatusHint:   hint,
		Metadata:     copyMetadata(o.Metadata),
	}
	// Key on the PaymentIntent so session and intent events land on the
	// same payment record.
	if o.PaymentIntent != "" {
		evt.ExternalID = o.PaymentIntent
		evt.ExternalType = TypePaymentIntent
		evt.Metadata["checkout_session_id"] = o.ID
	}
	if o.Currency != "" {
		amt := types.New(o.AmountTotal, o.Currency)
		evt.Amount = &amt
	}
	route(evt)
	return evt
}

func (o intentObject) event() *payment.Event {
	evt := &payment.Event{
		ExternalID:   o.ID,
		ExternalType: TypePaymentIntent,
		StatusHint:   o.Status,
		Metadata:     copyMetadata(o.Metadata),
	}
	if o.Currency != "" {
		amt := types.New(o.Amount, o.Currency)
		evt.Amount = &amt
	}
	if o.LastPaymentError != nil {
		evt.FailureCode = o.LastPaymentError.Code
		evt.FailureMessage = o.LastPaymentError.Message
	}
	route(evt)
	return evt
}

func (o chargeObject) event() *payment.Event {
	evt := &payment.Event{
		ExternalID:   o.ID,
		ExternalType: TypeCharge,
		StatusHint:   "refunded",
		Metadata:     copyMetadata(o.Metadata),
	}
	if o.PaymentIntent != "" {
		evt.ExternalID = o.PaymentIntent
		evt.ExternalType = TypePaymentIntent
		evt.Metadata["charge_id"] = o.ID
	}
	if o.Currency != "" {
		amt := types.New(o.Amount, o.Currency)
		evt.Amount = &amt
	}
	route(evt)
	return evt
}

// route lifts tenant and invoice out of the object metadata. A malformed
// invoice id is left unparsed in the metadata.
func route(evt *payment.Event) {
	evt.TenantID = strings.TrimSpace(evt.Metadata[gateway.MetadataTenantID])
	if raw := strings.TrimSpace(evt.Metadata[gateway.MetadataInvoiceID]); raw != "" {
		if invID, err := id.ParseInvoiceID(raw); err == nil {
			evt.InvoiceID = invID
		}
	}
}

func copyMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
