package bursar

import (
	"context"
	"fmt"

	"github.com/xraph/bursar/catalog"
	"github.com/xraph/bursar/entitlement"
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/plan"
	"github.com/xraph/bursar/subscription"
	"github.com/xraph/bursar/types"
)

// CreatePlanInput describes a new plan. Price is in minor units of Currency.
type CreatePlanInput struct {
	Name        string             `json:"name"        validate:"required,max=120"`
	Description string             `json:"description" validate:"max=2000"`
	Status      plan.Status        `json:"status"      validate:"omitempty,oneof=active inactive"`
	Currency    string             `json:"currency"    validate:"required,len=3,alpha"`
	Price       int64              `json:"price"       validate:"gte=0"`
	Interval    plan.Interval      `json:"interval"    validate:"omitempty,oneof=monthly yearly"`
	Modules     []plan.ModuleGrant `json:"modules"     validate:"dive"`
}

// UpdatePlanInput changes the fields that are non-nil.
type UpdatePlanInput struct {
	PlanID      id.PlanID           `json:"-"`
	Name        *string             `json:"name"        validate:"omitempty,min=1,max=120"`
	Description *string             `json:"description" validate:"omitempty,max=2000"`
	Status      *plan.Status        `json:"status"      validate:"omitempty,oneof=active inactive"`
	Price       *int64              `json:"price"       validate:"omitempty,gte=0"`
	Interval    *plan.Interval      `json:"interval"    validate:"omitempty,oneof=monthly yearly"`
	Modules     *[]plan.ModuleGrant `json:"modules"`
}

func (b *Bursar) checkModules(modules []plan.ModuleGrant) error {
	var errs MultiError
	for _, m := range modules {
		if !b.catalog.HasModule(m.ModuleKey) {
			errs.Add(fmt.Errorf("%w: %q", ErrUnknownModule, m.ModuleKey))
		}
	}
	return errs.ErrOrNil()
}

// CreatePlan creates a plan with a unique name and pushes its modules to any
// subscribers. The plan is returned even when the push partly fails.
func (b *Bursar) CreatePlan(ctx context.Context, in CreatePlanInput) (*plan.Plan, error) {
	if err := b.check(in); err != nil {
		return nil, err
	}
	if err := b.checkModules(in.Modules); err != nil {
		return nil, err
	}

	switch _, err := b.store.GetPlanByName(ctx, in.Name); {
	case err == nil:
		return nil, fmt.Errorf("%w: %q", ErrDuplicatePlanName, in.Name)
	case !IsNotFound(err):
		return nil, err
	}

	currency := types.NormalizeCurrency(in.Currency)
	p := &plan.Plan{
		Entity:      types.NewEntityAt(b.clock()),
		ID:          id.NewPlanID(),
		Name:        in.Name,
		Description: in.Description,
		Status:      in.Status,
		Currency:    currency,
		Price:       types.New(in.Price, currency),
		Interval:    in.Interval,
		Modules:     plan.NormalizeModules(in.Modules),
	}
	if p.Status == "" {
		p.Status = plan.StatusActive
	}
	if p.Interval == "" {
		p.Interval = plan.IntervalMonthly
	}

	if err := b.store.CreatePlan(ctx, p); err != nil {
		return nil, err
	}

	b.plugins.EmitPlanCreated(ctx, p)

	if len(p.Modules) > 0 {
		if _, err := b.RecomputePlanEntitlements(ctx, p.ID, p.Modules); err != nil {
			return p, err
		}
	}
	return p, nil
}

// UpdatePlan applies in to an existing plan. A changed module list is pushed
// to subscribers; the updated plan is returned even when the push partly
// fails.
func (b *Bursar) UpdatePlan(ctx context.Context, in UpdatePlanInput) (*plan.Plan, error) {
	if err := b.check(in); err != nil {
		return nil, err
	}

	p, err := b.store.GetPlan(ctx, in.PlanID)
	if err != nil {
		return nil, err
	}
	old := *p
	old.Modules = append([]plan.ModuleGrant(nil), p.Modules...)

	if in.Name != nil && *in.Name != p.Name {
		switch other, err := b.store.GetPlanByName(ctx, *in.Name); {
		case err == nil && other.ID.String() != p.ID.String():
			return nil, fmt.Errorf("%w: %q", ErrDuplicatePlanName, *in.Name)
		case err != nil && !IsNotFound(err):
			return nil, err
		}
		p.Name = *in.Name
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Status != nil {
		p.Status = *in.Status
	}
	if in.Price != nil {
		p.Price = types.New(*in.Price, p.Currency)
	}
	if in.Interval != nil {
		p.Interval = *in.Interval
	}
	modulesChanged := false
	if in.Modules != nil {
		if err := b.checkModules(*in.Modules); err != nil {
			return nil, err
		}
		next := plan.NormalizeModules(*in.Modules)
		modulesChanged = !plan.ModulesEqual(p.Modules, next)
		p.Modules = next
	}
	p.Touch(b.clock())

	if err := b.store.UpdatePlan(ctx, p); err != nil {
		return nil, err
	}

	b.plugins.EmitPlanUpdated(ctx, &old, p)

	if modulesChanged {
		if _, err := b.RecomputePlanEntitlements(ctx, p.ID, p.Modules); err != nil {
			return p, err
		}
	}
	return p, nil
}

// GetPlan retrieves a plan by ID.
func (b *Bursar) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	return b.store.GetPlan(ctx, planID)
}

// ListPlans lists plans.
func (b *Bursar) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	return b.store.ListPlans(ctx, opts)
}

// RecomputePlanEntitlements pushes a plan's module list into the grants of
// every tenant with an active or trialing subscription to it. Grants the
// plan previously pushed but no longer lists are disabled, never deleted.
// A listed module held by another plan moves to this one; a direct override
// is left alone whether or not the plan lists its module.
//
// Tenants are processed independently: the returned slice names the tenants
// that were updated, and failures come back as a MultiError of *TenantError.
func (b *Bursar) RecomputePlanEntitlements(ctx context.Context, planID id.PlanID, modules []plan.ModuleGrant) ([]string, error) {
	subs, err := b.store.ListSubscriptions(ctx, subscription.ListOpts{PlanID: planID})
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		b.logger.Debug("plan has no subscribers, nothing to recompute", "plan_id", planID.String())
		return nil, nil
	}

	modules = plan.NormalizeModules(modules)

	var (
		updated, failed []string
		errs            MultiError
		seen            = make(map[string]bool, len(subs))
	)
	for _, sub := range subs {
		if !sub.Status.GrantsEntitlements() || seen[sub.TenantID] {
			continue
		}
		seen[sub.TenantID] = true

		if err := b.applyPlanGrants(ctx, sub.TenantID, planID, modules); err != nil {
			b.logger.Error("entitlement recompute failed for tenant",
				"tenant_id", sub.TenantID,
				"plan_id", planID.String(),
				"error", err,
			)
			errs.Add(&TenantError{TenantID: sub.TenantID, Err: err})
			failed = append(failed, sub.TenantID)
			continue
		}
		b.invalidateSnapshot(ctx, sub.TenantID)
		updated = append(updated, sub.TenantID)
	}

	b.plugins.EmitEntitlementsRecomputed(ctx, planID, updated, failed)

	b.logger.Info("plan entitlements recomputed",
		"plan_id", planID.String(),
		"updated", len(updated),
		"failed", len(failed),
	)
	return updated, errs.ErrOrNil()
}

func (b *Bursar) applyPlanGrants(ctx context.Context, tenantID string, planID id.PlanID, modules []plan.ModuleGrant) error {
	now := b.clock()
	listed := make(map[catalog.ModuleKey]bool, len(modules))

	for _, m := range modules {
		listed[m.ModuleKey] = true

		g, err := b.store.GetGrant(ctx, tenantID, m.ModuleKey)
		switch {
		case IsNotFound(err):
			g = &entitlement.Grant{ID: id.NewGrantID(), TenantID: tenantID, ModuleKey: m.ModuleKey, CreatedAt: now}
		case err != nil:
			return err
		case g.SourcePlanID.IsNil():
			// Direct override.
			continue
		}
		g.Enabled = m.Enabled
		g.SourcePlanID = planID
		g.UpdatedAt = now
		if err := b.store.UpsertGrant(ctx, g); err != nil {
			return fmt.Errorf("upsert %s: %w", m.ModuleKey, err)
		}
	}

	owned, err := b.store.ListGrantsBySource(ctx, tenantID, planID)
	if err != nil {
		return err
	}
	for _, g := range owned {
		if listed[g.ModuleKey] || !g.Enabled {
			continue
		}
		g.Enabled = false
		g.UpdatedAt = now
		if err := b.store.UpsertGrant(ctx, g); err != nil {
			return fmt.Errorf("disable %s: %w", g.ModuleKey, err)
		}
	}
	return nil
}
