package subscription

import (
	"time"

	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/types"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

// GrantsEntitlements reports whether subscribers in this status receive the
// plan's module grants.
func (s Status) GrantsEntitlements() bool {
	return s == StatusActive || s == StatusTrialing
}

// IsCurrent reports whether the subscription still holds its plan, which is
// the case for every status except canceled and expired.
func (s Status) IsCurrent() bool {
	return s == StatusActive || s == StatusTrialing || s == StatusPastDue
}

type Subscription struct {
	types.Entity
	ID                 id.SubscriptionID `json:"id"`
	TenantID           string            `json:"tenant_id"`
	PlanID             id.PlanID         `json:"plan_id"`
	Status             Status            `json:"status"`
	BillingEmail       string            `json:"billing_email,omitempty"`
	PaymentMethod      string            `json:"payment_method,omitempty"`
	PaymentReference   string            `json:"payment_reference,omitempty"`
	CurrentPeriodStart time.Time         `json:"current_period_start"`
	CurrentPeriodEnd   time.Time         `json:"current_period_end"`
	CanceledAt         *time.Time        `json:"canceled_at,omitempty"`
	Charges            []Charge          `json:"charges,omitempty"`
}

// Charge records a plan change against the subscription at the price in
// effect when the change was made.
type Charge struct {
	ID               id.ChargeID `json:"id"`
	Description      string      `json:"description"`
	PlanID           id.PlanID   `json:"plan_id"`
	Amount           types.Money `json:"amount"`
	PaymentMethod    string      `json:"payment_method,omitempty"`
	PaymentReference string      `json:"payment_reference,omitempty"`
	RecordedAt       time.Time   `json:"recorded_at"`
}
