package bursar

import (
	"context"
	"fmt"

	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/plan"
	"github.com/xraph/bursar/types"
)

// PriceBook supplies the amount charged when a tenant moves onto a plan.
type PriceBook interface {
	Price(ctx context.Context, planID id.PlanID) (types.Money, error)
}

// StorePriceBook prices a plan at its stored list price.
type StorePriceBook struct {
	Plans plan.Store
}

func (s StorePriceBook) Price(ctx context.Context, planID id.PlanID) (types.Money, error) {
	p, err := s.Plans.GetPlan(ctx, planID)
	if err != nil {
		return types.Money{}, err
	}
	return p.Price, nil
}

// StaticPriceBook prices plans from a fixed table keyed by plan id.
type StaticPriceBook map[string]types.Money

func (s StaticPriceBook) Price(_ context.Context, planID id.PlanID) (types.Money, error) {
	m, ok := s[planID.String()]
	if !ok {
		return types.Money{}, fmt.Errorf("%w: no price for %s", ErrPlanNotFound, planID)
	}
	return m, nil
}
