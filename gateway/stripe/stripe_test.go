package stripe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/xraph/bursar/gateway"
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/payment"
	"github.com/xraph/bursar/types"
)

const testSecret = "whsec_bursar_test"

func newTestGateway() *Gateway {
	return &Gateway{webhookSecret: testSecret}
}

func signed(t *testing.T, eventType, object string) (payload []byte, header string) {
	t.Helper()
	body := fmt.Sprintf(`{"id":"evt_123","object":"event","type":%q,"data":{"object":%s}}`, eventType, object)
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    testSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return sp.Payload, sp.Header
}

func TestVerifyWebhookPaymentIntent(t *testing.T) {
	invID := id.NewInvoiceID()
	obj := fmt.Sprintf(`{"id":"pi_1","object":"payment_intent","status":"succeeded","amount":4900,"currency":"usd",
		"metadata":{"tenant_id":"t1","invoice_id":%q}}`, invID.String())
	payload, header := signed(t, "payment_intent.succeeded", obj)

	evt, err := newTestGateway().VerifyWebhook(context.Background(), payload, header)
	require.NoError(t, err)

	assert.Equal(t, Name, evt.Gateway)
	assert.Equal(t, "evt_123", evt.EventID)
	assert.Equal(t, "payment_intent.succeeded", evt.EventType)
	assert.Equal(t, "pi_1", evt.ExternalID)
	assert.Equal(t, TypePaymentIntent, evt.ExternalType)
	assert.Equal(t, "t1", evt.TenantID)
	assert.Equal(t, invID.String(), evt.InvoiceID.String())
	require.NotNil(t, evt.Amount)
	assert.True(t, evt.Amount.Equal(types.USD(4900)))
	assert.Equal(t, payment.StatusSucceeded, payment.MapStatus(evt.StatusHint, evt.EventType))
}

func TestVerifyWebhookPaymentFailed(t *testing.T) {
	obj := `{"id":"pi_2","status":"requires_payment_method","amount":100,"currency":"eur",
		"metadata":{"tenant_id":"t2"},"last_payment_error":{"code":"card_declined","message":"Your card was declined."}}`
	payload, header := signed(t, "payment_intent.payment_failed", obj)

	evt, err := newTestGateway().VerifyWebhook(context.Background(), payload, header)
	require.NoError(t, err)

	assert.Equal(t, "card_declined", evt.FailureCode)
	assert.Equal(t, "Your card was declined.", evt.FailureMessage)
	assert.True(t, evt.InvoiceID.IsNil())
	assert.Equal(t, payment.StatusFailed, payment.MapStatus(evt.StatusHint, evt.EventType))
}

func TestVerifyWebhookCheckoutSession(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		object    string
		extID     string
		extType   string
		want      payment.Status
	}{
		{
			name:      "completed and paid keys on intent",
			eventType: "checkout.session.completed",
			object:    `{"id":"cs_1","status":"complete","payment_status":"paid","payment_intent":"pi_9","amount_total":2500,"currency":"usd","metadata":{"tenant_id":"t1"}}`,
			extID:     "pi_9",
			extType:   TypePaymentIntent,
			want:      payment.StatusSucceeded,
		},
		{
			name:      "async failure",
			eventType: "checkout.session.async_payment_failed",
			object:    `{"id":"cs_3","status":"complete","payment_status":"unpaid","payment_intent":"pi_3","amount_total":2500,"currency":"usd","metadata":{"tenant_id":"t1"}}`,
			extID:     "pi_3",
			extType:   TypePaymentIntent,
			want:      payment.StatusFailed,
		},
		{
			name:      "expired",
			eventType: "checkout.session.expired",
			object:    `{"id":"cs_4","status":"expired","payment_status":"unpaid","amount_total":2500,"currency":"usd","metadata":{"tenant_id":"t1"}}`,
			extID:     "cs_4",
			extType:   TypeCheckoutSession,
			want:      payment.StatusCanceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, header := signed(t, tt.eventType, tt.object)
			evt, err := newTestGateway().VerifyWebhook(context.Background(), payload, header)
			require.NoError(t, err)

			assert.Equal(t, tt.extID, evt.ExternalID)
			assert.Equal(t, tt.extType, evt.ExternalType)
			assert.Equal(t, "t1", evt.TenantID)
			assert.Equal(t, tt.want, payment.MapStatus(evt.StatusHint, evt.EventType))
		})
	}
}

func TestVerifyWebhookChargeRefunded(t *testing.T) {
	payload, header := signed(t, "charge.refunded",
		`{"id":"ch_1","payment_intent":"pi_1","amount":4900,"currency":"usd","refunded":true,"metadata":{"tenant_id":"t1"}}`)
	evt, err := newTestGateway().VerifyWebhook(context.Background(), payload, header)
	require.NoError(t, err)

	assert.Equal(t, "pi_1", evt.ExternalID)
	assert.Equal(t, "ch_1", evt.Metadata["charge_id"])
	assert.Equal(t, payment.StatusRefunded, payment.MapStatus(evt.StatusHint, evt.EventType))
}

func TestVerifyWebhookRejects(t *testing.T) {
	payload, header := signed(t, "payment_intent.succeeded", `{"id":"pi_1"}`)
	tampered := bytes.Replace(payload, []byte(`"pi_1"`), []byte(`"pi_2"`), 1)

	tests := []struct {
		name    string
		gw      *Gateway
		payload []byte
		header  string
		wantErr error
	}{
		{"no secret configured", &Gateway{}, payload, header, gateway.ErrInvalidSignature},
		{"empty signature", newTestGateway(), payload, "", gateway.ErrInvalidSignature},
		{"wrong secret", &Gateway{webhookSecret: "whsec_other"}, payload, header, gateway.ErrInvalidSignature},
		{"tampered payload", newTestGateway(), tampered, header, gateway.ErrInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.gw.VerifyWebhook(context.Background(), tt.payload, tt.header)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerifyWebhookIgnoredEvents(t *testing.T) {
	tests := []struct {
		name, eventType, object string
	}{
		{"unrelated type", "customer.created", `{"id":"cus_1"}`},
		{"unpaid completed session", "checkout.session.completed",
			`{"id":"cs_2","status":"complete","payment_status":"unpaid","amount_total":2500,"currency":"usd","metadata":{"tenant_id":"t1"}}`},
		{"partial refund", "charge.refunded",
			`{"id":"ch_2","payment_intent":"pi_2","amount":4900,"currency":"usd","refunded":false}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, header := signed(t, tt.eventType, tt.object)
			_, err := newTestGateway().VerifyWebhook(context.Background(), payload, header)
			assert.ErrorIs(t, err, gateway.ErrIgnoredEvent)
		})
	}
}

func TestVerifyWebhookMalformedInvoiceID(t *testing.T) {
	payload, header := signed(t, "payment_intent.succeeded",
		`{"id":"pi_1","status":"succeeded","amount":1,"currency":"usd","metadata":{"tenant_id":"t1","invoice_id":"not-an-id"}}`)
	evt, err := newTestGateway().VerifyWebhook(context.Background(), payload, header)
	require.NoError(t, err)
	assert.True(t, evt.InvoiceID.IsNil())
	assert.Equal(t, "not-an-id", evt.Metadata[gateway.MetadataInvoiceID])
}

func TestCreateCheckoutSession(t *testing.T) {
	var got *stripelib.CheckoutSessionParams
	gw := newTestGateway()
	gw.createCheckoutSession = func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error) {
		got = params
		return &stripelib.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1", ExpiresAt: 1767225600}, nil
	}

	invID := id.NewInvoiceID()
	sess, err := gw.CreateCheckoutSession(context.Background(), gateway.CheckoutRequest{
		TenantID:      "t1",
		InvoiceID:     invID,
		Amount:        types.New(150000, "ngn"),
		Description:   "Invoice INV-1",
		CustomerEmail: "bursar@school.test",
		SuccessURL:    "https://school.test/ok",
		CancelURL:     "https://school.test/cancel",
	})
	require.NoError(t, err)

	assert.Equal(t, "cs_test_1", sess.ID)
	require.NotNil(t, sess.ExpiresAt)
	assert.Equal(t, int64(1767225600), sess.ExpiresAt.Unix())

	require.NotNil(t, got)
	assert.Equal(t, string(stripelib.CheckoutSessionModePayment), *got.Mode)
	assert.Equal(t, "bursar@school.test", *got.CustomerEmail)
	require.Len(t, got.LineItems, 1)
	assert.Equal(t, int64(150000), *got.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "ngn", *got.LineItems[0].PriceData.Currency)
	assert.Equal(t, "t1", got.Metadata[gateway.MetadataTenantID])
	assert.Equal(t, invID.String(), got.Metadata[gateway.MetadataInvoiceID])
	assert.Equal(t, invID.String(), got.PaymentIntentData.Metadata[gateway.MetadataInvoiceID])
}

func TestCreateCheckoutSessionErrors(t *testing.T) {
	gw := newTestGateway()
	gw.createCheckoutSession = func(*stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error) {
		return nil, errors.New("boom")
	}

	_, err := gw.CreateCheckoutSession(context.Background(), gateway.CheckoutRequest{Amount: types.USD(100)})
	assert.Error(t, err, "tenant is required")

	_, err = gw.CreateCheckoutSession(context.Background(), gateway.CheckoutRequest{TenantID: "t1", Amount: types.USD(0)})
	assert.Error(t, err, "amount must be positive")

	_, err = gw.CreateCheckoutSession(context.Background(), gateway.CheckoutRequest{TenantID: "t1", Amount: types.USD(100)})
	assert.ErrorContains(t, err, "boom")
}

func TestGetPaymentStatus(t *testing.T) {
	gw := newTestGateway()
	gw.getCheckoutSession = func(ref string, _ *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error) {
		return &stripelib.CheckoutSession{
			ID:            ref,
			Status:        stripelib.CheckoutSessionStatusComplete,
			PaymentStatus: stripelib.CheckoutSessionPaymentStatusPaid,
			PaymentIntent: &stripelib.PaymentIntent{ID: "pi_from_session"},
			AmountTotal:   900,
			Currency:      stripelib.CurrencyUSD,
			Metadata:      map[string]string{"tenant_id": "t1"},
		}, nil
	}
	gw.getPaymentIntent = func(ref string, _ *stripelib.PaymentIntentParams) (*stripelib.PaymentIntent, error) {
		return &stripelib.PaymentIntent{
			ID:       ref,
			Status:   stripelib.PaymentIntentStatusCanceled,
			Amount:   900,
			Currency: stripelib.CurrencyUSD,
			Metadata: map[string]string{"tenant_id": "t2"},
		}, nil
	}

	evt, err := gw.GetPaymentStatus(context.Background(), "cs_live_1")
	require.NoError(t, err)
	assert.Equal(t, "pi_from_session", evt.ExternalID)
	assert.Equal(t, "t1", evt.TenantID)
	assert.Equal(t, payment.StatusSucceeded, payment.MapStatus(evt.StatusHint, ""))

	evt, err = gw.GetPaymentStatus(context.Background(), "pi_7")
	require.NoError(t, err)
	assert.Equal(t, "pi_7", evt.ExternalID)
	assert.Equal(t, Name, evt.Gateway)
	assert.Equal(t, payment.StatusCanceled, payment.MapStatus(evt.StatusHint, ""))

	_, err = gw.GetPaymentStatus(context.Background(), " ")
	assert.Error(t, err)
}
