// Package entitlement holds the resolved module and feature grants of a
// tenant: full snapshots derived from the edition catalog, and per-tenant
// module grants pushed from plans or set as direct overrides.
package entitlement

import (
	"time"

	"github.com/xraph/bursar/catalog"
	"github.com/xraph/bursar/id"
)

// Snapshot is the resolved entitlement state of a tenant. Modules and
// Features always contain every key known to the catalog.
type Snapshot struct {
	TenantID                 string                      `json:"tenant_id"`
	EditionID                string                      `json:"edition_id,omitempty"`
	EditionCode              string                      `json:"edition_code,omitempty"`
	Modules                  map[catalog.ModuleKey]bool  `json:"modules"`
	Features                 map[catalog.FeatureKey]bool `json:"features"`
	Limits                   catalog.Limits              `json:"limits"`
	RequiresEditionSelection bool                        `json:"requires_edition_selection"`
	CatalogVersion           int                         `json:"catalog_version"`
	ResolvedAt               time.Time                   `json:"resolved_at"`
}

// Unresolved builds the snapshot of a tenant without a usable edition:
// every key present and false.
func Unresolved(tenantID string, c *catalog.Catalog, at time.Time) *Snapshot {
	s := blank(tenantID, c, at)
	s.RequiresEditionSelection = true
	return s
}

// Resolve builds the snapshot of a tenant on edition e. Only keys known to
// the catalog are considered, so a key dropped from the enumeration never
// leaks through.
func Resolve(tenantID string, c *catalog.Catalog, e catalog.Edition, at time.Time) *Snapshot {
	s := blank(tenantID, c, at)
	s.EditionID = e.ID
	s.EditionCode = e.Code
	s.Limits = e.Limits
	for k := range s.Modules {
		s.Modules[k] = e.HasModule(k)
	}
	for k := range s.Features {
		s.Features[k] = e.HasFeature(k)
	}
	return s
}

func blank(tenantID string, c *catalog.Catalog, at time.Time) *Snapshot {
	keys := c.Keys()
	s := &Snapshot{
		TenantID:       tenantID,
		Modules:        make(map[catalog.ModuleKey]bool, len(keys.Modules)),
		Features:       make(map[catalog.FeatureKey]bool, len(keys.Features)),
		CatalogVersion: c.Version(),
		ResolvedAt:     at.UTC(),
	}
	for _, k := range keys.Modules {
		s.Modules[k] = false
	}
	for _, k := range keys.Features {
		s.Features[k] = false
	}
	return s
}

// Grant is a per-tenant module entitlement. SourcePlanID records the plan
// that pushed the grant; it is Nil for direct overrides.
type Grant struct {
	ID           id.GrantID        `json:"id"`
	TenantID     string            `json:"tenant_id"`
	ModuleKey    catalog.ModuleKey `json:"module_key"`
	Enabled      bool              `json:"enabled"`
	SourcePlanID id.PlanID         `json:"source_plan_id"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Reasons reported in a Result.
const (
	ReasonEdition           = "edition"
	ReasonGrant             = "grant"
	ReasonGrantDisabled     = "grant_disabled"
	ReasonNotInEdition      = "not_in_edition"
	ReasonUnknownKey        = "unknown_key"
	ReasonRequiresSelection = "requires_edition_selection"
)

type Result struct {
	Allowed bool   `json:"allowed"`
	Key     string `json:"key"`
	Reason  string `json:"reason,omitempty"`
}
