package subscription

import (
	"context"

	"github.com/xraph/bursar/id"
)

type Store interface {
	CreateSubscription(ctx context.Context, s *Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	// GetSubscriptionByTenant returns the tenant's most recently created
	// subscription.
	GetSubscriptionByTenant(ctx context.Context, tenantID string) (*Subscription, error)
	ListSubscriptions(ctx context.Context, opts ListOpts) ([]*Subscription, error)
	UpdateSubscription(ctx context.Context, s *Subscription) error
}

type ListOpts struct {
	TenantID string
	PlanID   id.PlanID
	Status   Status
	Limit    int
	Offset   int
}
