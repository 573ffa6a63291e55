// Package payment models attempts to collect money through a named gateway
// and the mapping from gateway status vocabulary to a canonical status.
package payment

import (
	"strings"

	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
	StatusRefunded  Status = "refunded"
)

// Payment is keyed for idempotency by (Gateway, ExternalID).
type Payment struct {
	types.Entity
	ID             id.PaymentID      `json:"id"`
	TenantID       string            `json:"tenant_id"`
	InvoiceID      id.InvoiceID      `json:"invoice_id"`
	Amount         types.Money       `json:"amount"`
	Gateway        string            `json:"gateway"`
	ExternalID     string            `json:"external_id"`
	ExternalType   string            `json:"external_type,omitempty"`
	Status         Status            `json:"status"`
	FailureCode    string            `json:"failure_code,omitempty"`
	FailureMessage string            `json:"failure_message,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// IsLinked reports whether the payment is attached to an invoice.
func (p *Payment) IsLinked() bool { return !p.InvoiceID.IsNil() }

// Event is a gateway notification normalised for reconciliation.
type Event struct {
	Gateway        string            `json:"gateway"`
	ExternalID     string            `json:"external_id"`
	ExternalType   string            `json:"external_type,omitempty"`
	EventID        string            `json:"event_id,omitempty"`
	EventType      string            `json:"event_type,omitempty"`
	StatusHint     string            `json:"status_hint,omitempty"`
	TenantID       string            `json:"tenant_id,omitempty"`
	InvoiceID      id.InvoiceID      `json:"invoice_id"`
	Amount         *types.Money      `json:"amount,omitempty"`
	FailureCode    string            `json:"failure_code,omitempty"`
	FailureMessage string            `json:"failure_message,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// StatusRule maps gateway vocabulary to a canonical status when any of its
// substrings occurs in the lowercased status hint or event type.
type StatusRule struct {
	Contains []string
	Status   Status
}

// StatusRules is checked in order; the first match wins.
var StatusRules = []StatusRule{
	{Contains: []string{"fail"}, Status: StatusFailed},
	{Contains: []string{"cancel"}, Status: StatusCanceled},
	{Contains: []string{"refund"}, Status: StatusRefunded},
	{Contains: []string{"succeed", "complete"}, Status: StatusSucceeded},
}

// MapStatus matches StatusRules against the status hint and event type
// joined together, so rule order decides between them: a "failed" event type
// beats a "succeeded" hint. Anything unrecognised is pending.
func MapStatus(hint, eventType string) Status {
	text := strings.ToLower(hint + " " + eventType)
	for _, rule := range StatusRules {
		for _, s := range rule.Contains {
			if strings.Contains(text, s) {
				return rule.Status
			}
		}
	}
	return StatusPending
}

// MergeMetadata returns a copy of existing overlaid with incoming. Keys in
// incoming win; keys only in existing are kept.
func MergeMetadata(existing, incoming map[string]string) map[string]string {
	out := make(map[string]string, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range incoming {
		out[k] = v
	}
	return out
}
