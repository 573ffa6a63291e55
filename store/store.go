// Package store defines the unified persistence port of Bursar. Each backend
// under store/ implements Store in full.
package store

import (
	"context"

	"github.com/xraph/bursar/entitlement"
	"github.com/xraph/bursar/invoice"
	"github.com/xraph/bursar/payment"
	"github.com/xraph/bursar/plan"
	"github.com/xraph/bursar/subscription"
	"github.com/xraph/bursar/tenant"
)

// Store is the unified storage interface for all Bursar entities. The
// entity interfaces use store-prefixed method names so they compose without
// conflicts.
type Store interface {
	tenant.Store
	plan.Store
	subscription.Store
	entitlement.Store
	invoice.Store
	payment.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
