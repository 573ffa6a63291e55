package bursar

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xraph/bursar/catalog"
	"github.com/xraph/bursar/entitlement"
	"github.com/xraph/bursar/gateway"
	"github.com/xraph/bursar/plugin"
	"github.com/xraph/bursar/store"
)

// Bursar is the billing and entitlement engine. Every operation is
// request-scoped: there are no background workers, and concurrency control
// is delegated to the store.
type Bursar struct {
	store    store.Store
	plugins  *plugin.Registry
	logger   *slog.Logger
	catalog  *catalog.Catalog
	gateways *gateway.Registry
	prices   PriceBook
	validate *validator.Validate
	now      func() time.Time

	cache    entitlement.Cache
	cacheTTL time.Duration
}

// New creates a new Bursar instance.
func New(s store.Store, opts ...Option) *Bursar {
	b := &Bursar{
		store:    s,
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		catalog:  catalog.Default(),
		gateways: gateway.NewRegistry(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
		cacheTTL: 30 * time.Second,
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.prices == nil {
		b.prices = StorePriceBook{Plans: s}
	}

	return b
}

// Option configures a Bursar instance.
type Option func(*Bursar)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bursar) {
		b.logger = logger
		b.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(b *Bursar) {
		_ = b.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithCatalog sets the edition catalog used to resolve entitlements.
func WithCatalog(c *catalog.Catalog) Option {
	return func(b *Bursar) {
		if c != nil {
			b.catalog = c
		}
	}
}

// WithEntitlementCache sets the snapshot cache. Without one every
// resolution reads the tenant from the store.
func WithEntitlementCache(c entitlement.Cache) Option {
	return func(b *Bursar) {
		b.cache = c
	}
}

// WithEntitlementCacheTTL sets the entitlement cache TTL.
func WithEntitlementCacheTTL(ttl time.Duration) Option {
	return func(b *Bursar) {
		b.cacheTTL = ttl
	}
}

// WithGateway registers a payment gateway adapter.
func WithGateway(g gateway.Gateway) Option {
	return func(b *Bursar) {
		_ = b.gateways.Register(g) //nolint:errcheck // duplicate names keep the first adapter
	}
}

// WithPriceBook sets the source of plan-change charge amounts.
func WithPriceBook(p PriceBook) Option {
	return func(b *Bursar) {
		b.prices = p
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Bursar) {
		b.now = now
	}
}

// WithValidator replaces the input validator, e.g. to register custom tags.
func WithValidator(v *validator.Validate) Option {
	return func(b *Bursar) {
		if v != nil {
			b.validate = v
		}
	}
}

// Start migrates the store and initialises plugins.
func (b *Bursar) Start(ctx context.Context) error {
	if err := b.store.Migrate(ctx); err != nil {
		return err
	}

	b.plugins.EmitInit(ctx, b)

	b.logger.Info("bursar started",
		"catalog_version", b.catalog.Version(),
		"editions", len(b.catalog.Editions()),
		"gateways", b.gateways.Names(),
		"plugins", b.plugins.Count(),
		"cache_ttl", b.cacheTTL,
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (b *Bursar) Stop(ctx context.Context) error {
	b.plugins.EmitShutdown(ctx)
	return b.store.Close()
}

// Store returns the underlying store.
func (b *Bursar) Store() store.Store { return b.store }

// Catalog returns the edition catalog in use.
func (b *Bursar) Catalog() *catalog.Catalog { return b.catalog }

// Plugins returns the plugin registry.
func (b *Bursar) Plugins() *plugin.Registry { return b.plugins }

// Gateway returns the adapter registered under name.
func (b *Bursar) Gateway(name string) (gateway.Gateway, error) {
	return b.gateways.Get(name)
}

func (b *Bursar) clock() time.Time { return b.now().UTC() }

func (b *Bursar) check(input any) error {
	return validationErrors(b.validate.Struct(input))
}
