// Package extension provides the Forge extension adapter for Bursar.
//
// It implements the forge.Extension interface to integrate Bursar into a
// Forge application: the engine is registered in the DI container, the store
// is migrated on start, and the HTTP API is mounted under BasePath.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.bursar" or "bursar" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/bursar"
	"github.com/xraph/bursar/api"
	"github.com/xraph/bursar/store"
	"github.com/xraph/bursar/store/memory"
	"github.com/xraph/bursar/store/mongo"
	"github.com/xraph/bursar/store/postgres"
	"github.com/xraph/bursar/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "bursar"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Subscription billing and entitlement reconciliation for school tenants"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Bursar as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *bursar.Bursar
	store      store.Store
	bursarOpts []bursar.Option
	useGrove   bool
}

// New creates a new Bursar Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Bursar instance.
// This is nil until Register is called.
func (e *Extension) Engine() *bursar.Bursar { return e.engine }

// Register implements [forge.Extension]. It loads configuration, builds the
// store and engine, registers the engine in the DI container and mounts the
// HTTP API.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.config.GroveDatabase != "" {
		e.useGrove = true
	}
	if e.store == nil && e.useGrove {
		s, err := e.groveStore(fapp)
		if err != nil {
			return err
		}
		e.store = s
	}
	if e.store == nil {
		e.store = memory.New()
	}

	e.engine = bursar.New(e.store, e.buildBursarOpts()...)

	if err := vessel.Provide(fapp.Container(), func() (*bursar.Bursar, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}

	if e.config.DisableRoutes {
		return nil
	}
	base := "/" + strings.Trim(e.config.BasePath, "/")
	routes := api.New(e.engine).Routes()
	return fapp.Router().Handle(base, http.StripPrefix(base, routes))
}

// groveStore resolves the configured grove.DB and wraps it in the store
// backend matching its driver.
func (e *Extension) groveStore(fapp forge.App) (store.Store, error) {
	var (
		db  *grove.DB
		err error
	)
	if e.config.GroveDatabase != "" {
		db, err = vessel.InjectNamed[*grove.DB](fapp.Container(), e.config.GroveDatabase)
	} else {
		db, err = vessel.Inject[*grove.DB](fapp.Container())
	}
	if err != nil {
		return nil, fmt.Errorf("bursar: resolve grove database: %w", err)
	}

	switch name := db.Driver().Name(); name {
	case "pg":
		return postgres.New(db), nil
	case "sqlite":
		return sqlite.New(db), nil
	case "mongo":
		return mongo.New(db), nil
	default:
		return nil, fmt.Errorf("bursar: unsupported grove driver %q", name)
	}
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("bursar: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(ctx); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("bursar: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildBursarOpts constructs bursar.Option values from the resolved config.
// Pass-through options come last so they win.
func (e *Extension) buildBursarOpts() []bursar.Option {
	opts := make([]bursar.Option, 0, len(e.bursarOpts)+1)
	if e.config.EntitlementCacheTTL > 0 {
		opts = append(opts, bursar.WithEntitlementCacheTTL(e.config.EntitlementCacheTTL))
	}
	return append(opts, e.bursarOpts...)
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("bursar: configuration is required but not found in config files; " +
				"ensure 'extensions.bursar' or 'bursar' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("bursar: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("entitlement_cache_ttl", e.config.EntitlementCacheTTL),
		forge.F("grove_database", e.config.GroveDatabase),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.bursar", "bursar"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("bursar: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("bursar: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.EntitlementCacheTTL == 0 {
		cfg.EntitlementCacheTTL = defaults.EntitlementCacheTTL
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML wins for values it sets; programmatic bool flags and non-zero
// values fill the gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if yamlConfig.BasePath == "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.GroveDatabase == "" {
		yamlConfig.GroveDatabase = programmaticConfig.GroveDatabase
	}
	if yamlConfig.EntitlementCacheTTL == 0 {
		yamlConfig.EntitlementCacheTTL = programmaticConfig.EntitlementCacheTTL
	}
	return mergeWithDefaults(yamlConfig)
}
