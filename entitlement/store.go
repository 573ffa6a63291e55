package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/bursar/catalog"
	"github.com/xraph/bursar/id"
)

// ErrCacheMiss is returned by a Cache when no live snapshot is stored.
var ErrCacheMiss = errors.New("bursar: cache miss")

// Store persists per-tenant module grants, keyed by (tenant, module).
type Store interface {
	// UpsertGrant inserts g or replaces the grant with the same tenant and
	// module key.
	UpsertGrant(ctx context.Context, g *Grant) error
	GetGrant(ctx context.Context, tenantID string, key catalog.ModuleKey) (*Grant, error)
	ListGrants(ctx context.Context, tenantID string) ([]*Grant, error)
	ListGrantsBySource(ctx context.Context, tenantID string, planID id.PlanID) ([]*Grant, error)
}

// Cache holds resolved snapshots for a bounded time.
type Cache interface {
	GetSnapshot(ctx context.Context, tenantID string) (*Snapshot, error)
	SetSnapshot(ctx context.Context, s *Snapshot, ttl time.Duration) error
	InvalidateSnapshot(ctx context.Context, tenantID string) error
}
