// Package gatewaytest provides an in-memory gateway for tests.
package gatewaytest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xraph/bursar/gateway"
	"github.com/xraph/bursar/payment"
)

// Fake is a gateway whose webhooks are JSON-encoded payment.Event values
// signed with a shared secret string.
type Fake struct {
	GatewayName string
	Secret      string

	mu       sync.Mutex
	sessions []gateway.CheckoutRequest
	statuses map[string]*payment.Event
}

var _ gateway.Gateway = (*Fake)(nil)

// New creates a Fake named name that accepts signature secret.
func New(name, secret string) *Fake {
	return &Fake{GatewayName: name, Secret: secret, statuses: make(map[string]*payment.Event)}
}

func (f *Fake) Name() string { return f.GatewayName }

func (f *Fake) CreateCheckoutSession(_ context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sessions = append(f.sessions, req)
	sid := fmt.Sprintf("fake_cs_%d", len(f.sessions))
	return &gateway.CheckoutSession{ID: sid, URL: "https://pay.example.test/" + sid}, nil
}

// Sessions returns the checkout requests received so far.
func (f *Fake) Sessions() []gateway.CheckoutRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.CheckoutRequest(nil), f.sessions...)
}

func (f *Fake) VerifyWebhook(_ context.Context, payload []byte, signature string) (*payment.Event, error) {
	if f.Secret == "" || signature != f.Secret {
		return nil, gateway.ErrInvalidSignature
	}
	var evt payment.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, fmt.Errorf("gatewaytest: decode event: %w", err)
	}
	if evt.ExternalID == "" {
		return nil, gateway.ErrIgnoredEvent
	}
	evt.Gateway = f.GatewayName
	return &evt, nil
}

// SetStatus makes GetPaymentStatus return evt for referenceID.
func (f *Fake) SetStatus(referenceID string, evt *payment.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[referenceID] = evt
}

func (f *Fake) GetPaymentStatus(_ context.Context, referenceID string) (*payment.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	evt, ok := f.statuses[referenceID]
	if !ok {
		return nil, fmt.Errorf("gatewaytest: unknown reference %q", referenceID)
	}
	cp := *evt
	cp.Gateway = f.GatewayName
	return &cp, nil
}
