// Package gateway defines the payment gateway port: checkout creation,
// webhook verification and status lookup. Adapters live in subpackages.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/payment"
	"github.com/xraph/bursar/types"
)

var (
	// ErrInvalidSignature is returned when a webhook payload cannot be
	// authenticated, including when no secret or signature is present.
	ErrInvalidSignature = errors.New("bursar: invalid webhook signature")

	// ErrIgnoredEvent marks a verified webhook whose type carries no payment
	// state the engine acts on.
	ErrIgnoredEvent = errors.New("bursar: webhook event ignored")

	// ErrUnknownGateway is returned by Registry.Get for unregistered names.
	ErrUnknownGateway = errors.New("bursar: unknown gateway")
)

// Metadata keys that adapters attach to gateway objects and read back from
// webhooks to route events to a tenant and invoice.
const (
	MetadataTenantID  = "tenant_id"
	MetadataInvoiceID = "invoice_id"
	MetadataPlanID    = "plan_id"
	MetadataUserID    = "user_id"
	MetadataSource    = "source"
)

// CheckoutRequest describes a hosted checkout for one amount.
type CheckoutRequest struct {
	TenantID      string            `json:"tenant_id"`
	UserID        string            `json:"user_id,omitempty"`
	PlanID        id.PlanID         `json:"plan_id"`
	InvoiceID     id.InvoiceID      `json:"invoice_id"`
	Amount        types.Money       `json:"amount"`
	Description   string            `json:"description,omitempty"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	SuccessURL    string            `json:"success_url"`
	CancelURL     string            `json:"cancel_url"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// RoutingMetadata returns the metadata adapters must attach to the gateway
// object so the resulting webhooks can be routed back.
func (r CheckoutRequest) RoutingMetadata() map[string]string {
	md := payment.MergeMetadata(r.Metadata, map[string]string{MetadataTenantID: r.TenantID})
	if !r.InvoiceID.IsNil() {
		md[MetadataInvoiceID] = r.InvoiceID.String()
	}
	if !r.PlanID.IsNil() {
		md[MetadataPlanID] = r.PlanID.String()
	}
	if r.UserID != "" {
		md[MetadataUserID] = r.UserID
	}
	return md
}

type CheckoutSession struct {
	ID        string     `json:"id"`
	URL       string     `json:"url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Gateway is implemented by every payment gateway adapter.
type Gateway interface {
	Name() string
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	// VerifyWebhook authenticates payload against signature and decodes it.
	// It fails closed with ErrInvalidSignature.
	VerifyWebhook(ctx context.Context, payload []byte, signature string) (*payment.Event, error)
	// GetPaymentStatus looks a payment up by gateway reference. The event's
	// StatusHint carries the gateway status.
	GetPaymentStatus(ctx context.Context, referenceID string) (*payment.Event, error)
}

// Registry looks gateways up by name.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
}

// NewRegistry creates a registry holding gws.
func NewRegistry(gws ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gws))}
	for _, g := range gws {
		r.gateways[g.Name()] = g
	}
	return r
}

// Register adds g, rejecting a second gateway with the same name.
func (r *Registry) Register(g Gateway) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.gateways[g.Name()]; ok {
		return fmt.Errorf("gateway: duplicate registration: %s", g.Name())
	}
	r.gateways[g.Name()] = g
	return nil
}

// Get returns the gateway registered under name.
func (r *Registry) Get(name string) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.gateways[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, name)
	}
	return g, nil
}

// Names returns the registered gateway names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.gateways))
	for n := range r.gateways {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
