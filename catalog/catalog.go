// Package catalog holds the edition catalog: the static, versioned set of
// editions a tenant may be placed on, and the global enumeration of module
// and feature keys those editions reference.
//
// A Catalog is validated on construction and is immutable afterwards. It is
// handed to the engine explicitly rather than read from package state, so a
// process can run two catalog versions side by side (e.g. during a rollout).
package catalog

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validation errors returned (joined) by Validate.
var (
	ErrEmptyCode        = errors.New("catalog: edition code is empty")
	ErrEmptyID          = errors.New("catalog: edition id is empty")
	ErrDuplicateCode    = errors.New("catalog: duplicate edition code")
	ErrDuplicateID      = errors.New("catalog: duplicate edition id")
	ErrUnknownModule    = errors.New("catalog: unknown module key")
	ErrUnknownFeature   = errors.New("catalog: unknown feature key")
	ErrDuplicateKey     = errors.New("catalog: duplicate key in enumeration")
	ErrNegativeLimit    = errors.New("catalog: negative limit")
	ErrInvalidVersion   = errors.New("catalog: version must be positive")
	ErrEditionNotActive = errors.New("catalog: edition is not active")
)

// Limits caps tenant usage for an edition. Nil means unlimited.
type Limits struct {
	MaxSchools  *int `json:"max_schools,omitempty"  mapstructure:"max_schools"  yaml:"max_schools,omitempty"`
	MaxUsers    *int `json:"max_users,omitempty"    mapstructure:"max_users"    yaml:"max_users,omitempty"`
	MaxStudents *int `json:"max_students,omitempty" mapstructure:"max_students" yaml:"max_students,omitempty"`
}

// Edition is one product tier in the catalog.
type Edition struct {
	ID        string       `json:"id"         mapstructure:"id"         yaml:"id"`
	Code      string       `json:"code"       mapstructure:"code"       yaml:"code"`
	Name      string       `json:"name"       mapstructure:"name"       yaml:"name"`
	Modules   []ModuleKey  `json:"modules"    mapstructure:"modules"    yaml:"modules"`
	Features  []FeatureKey `json:"features"   mapstructure:"features"   yaml:"features"`
	Limits    Limits       `json:"limits"     mapstructure:"limits"     yaml:"limits"`
	SortOrder int          `json:"sort_order" mapstructure:"sort_order" yaml:"sort_order"`
	IsActive  bool         `json:"is_active"  mapstructure:"is_active"  yaml:"is_active"`
}

// HasModule reports whether the edition includes the module.
func (e Edition) HasModule(k ModuleKey) bool { return slices.Contains(e.Modules, k) }

// HasFeature reports whether the edition includes the feature.
func (e Edition) HasFeature(k FeatureKey) bool { return slices.Contains(e.Features, k) }

func (e Edition) clone() Edition {
	e.Modules = append([]ModuleKey(nil), e.Modules...)
	e.Features = append([]FeatureKey(nil), e.Features...)
	return e
}

// Catalog is an immutable, validated set of editions.
type Catalog struct {
	version  int
	keys     Keys
	editions []Edition
	byID     map[string]int
	byCode   map[string]int
	modules  map[ModuleKey]bool
	features map[FeatureKey]bool
}

// New validates the editions against keys and builds a Catalog. The inputs
// are copied, so later mutation by the caller has no effect.
func New(version int, keys Keys, editions ...Edition) (*Catalog, error) {
	if err := Validate(version, keys, editions); err != nil {
		return nil, err
	}

	c := &Catalog{
		version:  version,
		keys:     keys.clone(),
		editions: make([]Edition, len(editions)),
		byID:     make(map[string]int, len(editions)),
		byCode:   make(map[string]int, len(editions)),
		modules:  make(map[ModuleKey]bool, len(keys.Modules)),
		features: make(map[FeatureKey]bool, len(keys.Features)),
	}
	for i, e := range editions {
		c.editions[i] = e.clone()
	}
	slices.SortStableFunc(c.editions, func(a, b Edition) int { return a.SortOrder - b.SortOrder })
	for i, e := range c.editions {
		c.byID[e.ID] = i
		c.byCode[strings.ToLower(strings.TrimSpace(e.Code))] = i
	}
	for _, k := range keys.Modules {
		c.modules[k] = true
	}
	for _, k := range keys.Features {
		c.features[k] = true
	}
	return c, nil
}

// MustNew is like New but panics on an invalid catalog.
func MustNew(version int, keys Keys, editions ...Edition) *Catalog {
	c, err := New(version, keys, editions...)
	if err != nil {
		panic(err)
	}
	return c
}

// Validate checks that every edition has a unique id and code and that every
// module and feature it references exists in keys. All problems are reported
// together via errors.Join.
func Validate(version int, keys Keys, editions []Edition) error {
	var errs []error

	if version <= 0 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidVersion, version))
	}

	modules := make(map[ModuleKey]bool, len(keys.Modules))
	for _, k := range keys.Modules {
		if modules[k] {
			errs = append(errs, fmt.Errorf("%w: module %q", ErrDuplicateKey, k))
		}
		modules[k] = true
	}
	features := make(map[FeatureKey]bool, len(keys.Features))
	for _, k := range keys.Features {
		if features[k] {
			errs = append(errs, fmt.Errorf("%w: feature %q", ErrDuplicateKey, k))
		}
		features[k] = true
	}

	ids := make(map[string]bool, len(editions))
	codes := make(map[string]bool, len(editions))
	for _, e := range editions {
		label := e.Code
		if label == "" {
			label = e.ID
		}

		switch {
		case strings.TrimSpace(e.ID) == "":
			errs = append(errs, fmt.Errorf("%w (edition %q)", ErrEmptyID, label))
		case ids[e.ID]:
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateID, e.ID))
		}
		ids[e.ID] = true

		code := strings.ToLower(strings.TrimSpace(e.Code))
		switch {
		case code == "":
			errs = append(errs, fmt.Errorf("%w (edition %q)", ErrEmptyCode, label))
		case codes[code]:
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateCode, e.Code))
		}
		codes[code] = true

		for _, m := range e.Modules {
			if !modules[m] {
				errs = append(errs, fmt.Errorf("%w: edition %q references %q", ErrUnknownModule, label, m))
			}
		}
		for _, f := range e.Features {
			if !features[f] {
				errs = append(errs, fmt.Errorf("%w: edition %q references %q", ErrUnknownFeature, label, f))
			}
		}

		for name, v := range map[string]*int{
			"max_schools":  e.Limits.MaxSchools,
			"max_users":    e.Limits.MaxUsers,
			"max_students": e.Limits.MaxStudents,
		} {
			if v != nil && *v < 0 {
				errs = append(errs, fmt.Errorf("%w: edition %q %s=%d", ErrNegativeLimit, label, name, *v))
			}
		}
	}

	return errors.Join(errs...)
}

// Version returns the catalog version.
func (c *Catalog) Version() int { return c.version }

// Keys returns a copy of the global key enumeration.
func (c *Catalog) Keys() Keys { return c.keys.clone() }

// Editions returns a copy of all editions ordered by SortOrder.
func (c *Catalog) Editions() []Edition {
	out := make([]Edition, len(c.editions))
	for i, e := range c.editions {
		out[i] = e.clone()
	}
	return out
}

// ByID looks an edition up by its id.
func (c *Catalog) ByID(editionID string) (Edition, bool) {
	i, ok := c.byID[editionID]
	if !ok {
		return Edition{}, false
	}
	return c.editions[i].clone(), true
}

// ByCode looks an edition up by its code, case-insensitively.
func (c *Catalog) ByCode(code string) (Edition, bool) {
	i, ok := c.byCode[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return Edition{}, false
	}
	return c.editions[i].clone(), true
}

// Lookup resolves a reference that may be either an edition id or a code.
// Ids take precedence.
func (c *Catalog) Lookup(ref string) (Edition, bool) {
	if ref == "" {
		return Edition{}, false
	}
	if e, ok := c.ByID(ref); ok {
		return e, true
	}
	return c.ByCode(ref)
}

// HasModule reports whether k is a known module key.
func (c *Catalog) HasModule(k ModuleKey) bool { return c.modules[k] }

// HasFeature reports whether k is a known feature key.
func (c *Catalog) HasFeature(k FeatureKey) bool { return c.features[k] }
