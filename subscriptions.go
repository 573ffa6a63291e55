package bursar

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/subscription"
	"github.com/xraph/bursar/types"
)

// BillingPeriod is the length of the period started by a plan change.
const BillingPeriod = 30 * 24 * time.Hour

type ChangePlanInput struct {
	TenantID         string    `json:"tenant_id"         validate:"required"`
	PlanID           id.PlanID `json:"plan_id"`
	BillingEmail     string    `json:"billing_email"     validate:"omitempty,email"`
	PaymentMethod    string    `json:"payment_method"    validate:"max=64"`
	PaymentReference string    `json:"payment_reference" validate:"max=255"`
}

// ChangePlan moves a tenant onto a plan, creating the subscription if the
// tenant has none. The subscription becomes active for a fresh period and a
// charge priced by the PriceBook is appended. Entitlement grants are not
// recomputed here.
func (b *Bursar) ChangePlan(ctx context.Context, in ChangePlanInput) (*subscription.Subscription, error) {
	if err := b.check(in); err != nil {
		return nil, err
	}
	if in.PlanID.IsNil() {
		return nil, ValidationError{Field: "PlanID", Message: "required"}
	}

	if _, err := b.store.GetTenant(ctx, in.TenantID); err != nil {
		return nil, err
	}
	p, err := b.store.GetPlan(ctx, in.PlanID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive() {
		return nil, fmt.Errorf("%w: %s", ErrPlanInactive, p.Name)
	}

	now := b.clock()
	sub, err := b.store.GetSubscriptionByTenant(ctx, in.TenantID)
	isNew := false
	switch {
	case IsNotFound(err):
		isNew = true
		sub = &subscription.Subscription{
			Entity:   types.NewEntityAt(now),
			ID:       id.NewSubscriptionID(),
			TenantID: in.TenantID,
		}
	case err != nil:
		return nil, err
	case sub.PlanID.String() == in.PlanID.String() && sub.Status.IsCurrent():
		return nil, fmt.Errorf("%w: %s", ErrAlreadyOnPlan, p.Name)
	}

	amount, err := b.prices.Price(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("price plan %s: %w", p.ID, err)
	}

	oldPlanID := sub.PlanID
	sub.PlanID = p.ID
	sub.Status = subscription.StatusActive
	sub.CurrentPeriodStart = now
	sub.CurrentPeriodEnd = now.Add(BillingPeriod)
	sub.CanceledAt = nil
	if in.BillingEmail != "" {
		sub.BillingEmail = in.BillingEmail
	}
	if in.PaymentMethod != "" {
		sub.PaymentMethod = in.PaymentMethod
	}
	if in.PaymentReference != "" {
		sub.PaymentReference = in.PaymentReference
	}
	sub.Charges = append(sub.Charges, subscription.Charge{
		ID:               id.NewChargeID(),
		Description:      "Plan change to " + p.Name,
		PlanID:           p.ID,
		Amount:           amount,
		PaymentMethod:    in.PaymentMethod,
		PaymentReference: in.PaymentReference,
		RecordedAt:       now,
	})
	sub.Touch(now)

	if isNew {
		err = b.store.CreateSubscription(ctx, sub)
	} else {
		err = b.store.UpdateSubscription(ctx, sub)
	}
	if err != nil {
		return nil, err
	}

	b.plugins.EmitSubscriptionChanged(ctx, sub, oldPlanID, p.ID)

	b.logger.Info("subscription plan changed",
		"tenant_id", in.TenantID,
		"subscription_id", sub.ID.String(),
		"plan", p.Name,
		"charge", amount.String(),
	)
	return sub, nil
}

// GetSubscription returns the tenant's current subscription.
func (b *Bursar) GetSubscription(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	return b.store.GetSubscriptionByTenant(ctx, tenantID)
}

// ListSubscriptions lists subscriptions.
func (b *Bursar) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	return b.store.ListSubscriptions(ctx, opts)
}

// CancelSubscription cancels the tenant's current subscription. Grants are
// left in place; recomputes skip canceled subscribers from then on.
func (b *Bursar) CancelSubscription(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	sub, err := b.store.GetSubscriptionByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !sub.Status.IsCurrent() {
		return sub, nil
	}

	now := b.clock()
	sub.Status = subscription.StatusCanceled
	sub.CanceledAt = &now
	sub.Touch(now)
	if err := b.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	b.logger.Info("subscription canceled", "tenant_id", tenantID, "subscription_id", sub.ID.String())
	b.invalidateSnapshot(ctx, tenantID)
	return sub, nil
}
