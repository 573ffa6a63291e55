package bursar

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/bursar/catalog"
	"github.com/xraph/bursar/entitlement"
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/tenant"
	"github.com/xraph/bursar/types"
)

// ResolveEntitlements returns the full entitlement snapshot of a tenant.
//
// The tenant's EditionID is looked up in the catalog first (as an id, then
// as a code), then the edition code embedded in its metadata. A tenant
// with no usable reference gets an all-false snapshot flagged
// RequiresEditionSelection; that is not an error. The only error for a
// well-formed request is ErrTenantNotFound.
func (b *Bursar) ResolveEntitlements(ctx context.Context, tenantID string) (*entitlement.Snapshot, error) {
	if s := b.cachedSnapshot(ctx, tenantID); s != nil {
		return s, nil
	}

	t, err := b.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := b.clock()
	var snap *entitlement.Snapshot
	if e, ok := b.editionFor(t); ok {
		snap = entitlement.Resolve(t.ID, b.catalog, e, now)
	} else {
		b.logger.Debug("tenant has no resolvable edition",
			"tenant_id", t.ID,
			"edition_id", t.EditionID,
			"edition_code", t.EditionCode(),
		)
		snap = entitlement.Unresolved(t.ID, b.catalog, now)
	}

	if b.cache != nil {
		if err := b.cache.SetSnapshot(ctx, snap, b.cacheTTL); err != nil {
			b.logger.Warn("entitlement cache set failed", "tenant_id", tenantID, "error", err)
		}
	}
	return snap, nil
}

func (b *Bursar) editionFor(t *tenant.Tenant) (catalog.Edition, bool) {
	if e, ok := b.catalog.Lookup(t.EditionID); ok {
		return e, true
	}
	if code := t.EditionCode(); code != "" {
		return b.catalog.ByCode(code)
	}
	return catalog.Edition{}, false
}

func (b *Bursar) cachedSnapshot(ctx context.Context, tenantID string) *entitlement.Snapshot {
	if b.cache == nil {
		return nil
	}
	s, err := b.cache.GetSnapshot(ctx, tenantID)
	switch {
	case errors.Is(err, ErrCacheMiss):
		return nil
	case err != nil:
		b.logger.Warn("entitlement cache get failed", "tenant_id", tenantID, "error", err)
		return nil
	case s.CatalogVersion != b.catalog.Version():
		return nil
	}
	return s
}

func (b *Bursar) invalidateSnapshot(ctx context.Context, tenantID string) {
	if b.cache == nil {
		return
	}
	if err := b.cache.InvalidateSnapshot(ctx, tenantID); err != nil {
		b.logger.Warn("entitlement cache invalidation failed", "tenant_id", tenantID, "error", err)
	}
}

// Entitled checks a single module or feature key for a tenant. A module
// grant, whether pushed by a plan or set directly, overrides the edition.
func (b *Bursar) Entitled(ctx context.Context, tenantID, key string) (*entitlement.Result, error) {
	snap, err := b.ResolveEntitlements(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	res := &entitlement.Result{Key: key}

	if allowed, ok := snap.Modules[catalog.ModuleKey(key)]; ok {
		g, err := b.store.GetGrant(ctx, tenantID, catalog.ModuleKey(key))
		switch {
		case err == nil && g.Enabled:
			res.Allowed, res.Reason = true, entitlement.ReasonGrant
			return res, nil
		case err == nil:
			res.Reason = entitlement.ReasonGrantDisabled
			return res, nil
		case !IsNotFound(err):
			return nil, err
		}
		res.Allowed = allowed
		res.Reason = snapshotReason(snap, allowed)
		return res, nil
	}

	if allowed, ok := snap.Features[catalog.FeatureKey(key)]; ok {
		res.Allowed = allowed
		res.Reason = snapshotReason(snap, allowed)
		return res, nil
	}

	res.Reason = entitlement.ReasonUnknownKey
	return res, nil
}

func snapshotReason(s *entitlement.Snapshot, allowed bool) string {
	switch {
	case allowed:
		return entitlement.ReasonEdition
	case s.RequiresEditionSelection:
		return entitlement.ReasonRequiresSelection
	default:
		return entitlement.ReasonNotInEdition
	}
}

// SelectEdition places a tenant on an active catalog edition, referenced by
// id or code, and returns the resulting snapshot.
func (b *Bursar) SelectEdition(ctx context.Context, tenantID, editionRef string) (*entitlement.Snapshot, error) {
	e, ok := b.catalog.Lookup(editionRef)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEdition, editionRef)
	}
	if !e.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrEditionInactive, e.Code)
	}

	t, err := b.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := b.clock()
	t.EditionID = e.ID
	if t.Metadata == nil {
		t.Metadata = make(map[string]string, 1)
	}
	t.Metadata[tenant.MetadataEditionCode] = e.Code
	t.Touch(now)

	if err := b.store.UpdateTenant(ctx, t); err != nil {
		return nil, err
	}

	b.invalidateSnapshot(ctx, tenantID)
	b.plugins.EmitEditionSelected(ctx, tenantID, e)

	b.logger.Info("edition selected", "tenant_id", tenantID, "edition", e.Code)
	return entitlement.Resolve(tenantID, b.catalog, e, now), nil
}

// SetGrant records a direct module override for a tenant. Direct grants
// carry no source plan, so plan recomputes never touch them.
func (b *Bursar) SetGrant(ctx context.Context, tenantID string, key catalog.ModuleKey, enabled bool) (*entitlement.Grant, error) {
	if !b.catalog.HasModule(key) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModule, key)
	}
	if _, err := b.store.GetTenant(ctx, tenantID); err != nil {
		return nil, err
	}

	now := b.clock()
	g, err := b.store.GetGrant(ctx, tenantID, key)
	switch {
	case IsNotFound(err):
		g = &entitlement.Grant{ID: id.NewGrantID(), TenantID: tenantID, ModuleKey: key, CreatedAt: now}
	case err != nil:
		return nil, err
	}
	g.Enabled = enabled
	g.SourcePlanID = id.Nil
	g.UpdatedAt = now

	if err := b.store.UpsertGrant(ctx, g); err != nil {
		return nil, err
	}
	b.invalidateSnapshot(ctx, tenantID)
	return g, nil
}

// ListGrants returns every module grant held by a tenant.
func (b *Bursar) ListGrants(ctx context.Context, tenantID string) ([]*entitlement.Grant, error) {
	return b.store.ListGrants(ctx, tenantID)
}

// CreateTenant registers a tenant. A non-empty EditionID must resolve in the
// catalog.
func (b *Bursar) CreateTenant(ctx context.Context, t *tenant.Tenant) error {
	if t.ID == "" {
		return ValidationError{Field: "ID", Message: "required"}
	}
	if t.EditionID != "" {
		e, ok := b.catalog.Lookup(t.EditionID)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownEdition, t.EditionID)
		}
		t.EditionID = e.ID
	}
	t.Entity = types.NewEntityAt(b.clock())
	return b.store.CreateTenant(ctx, t)
}

// GetTenant retrieves a tenant by ID.
func (b *Bursar) GetTenant(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	return b.store.GetTenant(ctx, tenantID)
}
