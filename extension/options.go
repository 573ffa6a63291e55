package extension

import (
	"time"

	"github.com/xraph/bursar"
	"github.com/xraph/bursar/gateway"
	"github.com/xraph/bursar/plugin"
	"github.com/xraph/bursar/store"
)

// Option configures the Bursar Forge extension.
type Option func(*Extension)

// WithStore sets the store for the bursar engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithBursarOption passes a bursar.Option through to the underlying engine.
func WithBursarOption(opt bursar.Option) Option {
	return func(e *Extension) {
		e.bursarOpts = append(e.bursarOpts, opt)
	}
}

// WithPlugin registers a bursar plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.bursarOpts = append(e.bursarOpts, bursar.WithPlugin(p))
	}
}

// WithGateway registers a payment gateway adapter with the engine.
func WithGateway(g gateway.Gateway) Option {
	return func(e *Extension) {
		e.bursarOpts = append(e.bursarOpts, bursar.WithGateway(g))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents HTTP route registration.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for bursar routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithEntitlementCacheTTL sets how long resolved snapshots are cached.
func WithEntitlementCacheTTL(d time.Duration) Option {
	return func(e *Extension) { e.config.EntitlementCacheTTL = d }
}

// WithGroveDatabase sets the name of the grove.DB to resolve from the DI container.
// The extension builds the matching store backend (postgres/sqlite/mongo)
// from the grove driver. Pass an empty string to use the default (unnamed) grove.DB.
func WithGroveDatabase(name string) Option {
	return func(e *Extension) {
		e.config.GroveDatabase = name
		e.useGrove = true
	}
}
