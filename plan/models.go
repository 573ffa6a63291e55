package plan

import (
	"github.com/xraph/bursar/catalog"
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/types"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

type Interval string

const (
	IntervalMonthly Interval = "monthly"
	IntervalYearly  Interval = "yearly"
)

// Plan is a sellable bundle of modules. Its module set is pushed into the
// entitlement grants of every active or trialing subscriber.
type Plan struct {
	types.Entity
	ID          id.PlanID     `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Status      Status        `json:"status"`
	Currency    string        `json:"currency"`
	Price       types.Money   `json:"price"`
	Interval    Interval      `json:"interval"`
	Modules     []ModuleGrant `json:"modules"`
}

type ModuleGrant struct {
	ModuleKey catalog.ModuleKey `json:"module_key"`
	Enabled   bool              `json:"enabled"`
}

// IsActive reports whether the plan can be subscribed to.
func (p *Plan) IsActive() bool { return p.Status == StatusActive }

// Module returns the grant for key, if the plan lists it.
func (p *Plan) Module(key catalog.ModuleKey) (ModuleGrant, bool) {
	for _, m := range p.Modules {
		if m.ModuleKey == key {
			return m, true
		}
	}
	return ModuleGrant{}, false
}

// NormalizeModules removes duplicate module keys. The last occurrence of a
// key wins, and keys keep the position of their first occurrence.
func NormalizeModules(modules []ModuleGrant) []ModuleGrant {
	if len(modules) == 0 {
		return []ModuleGrant{}
	}

	pos := make(map[catalog.ModuleKey]int, len(modules))
	out := make([]ModuleGrant, 0, len(modules))
	for _, m := range modules {
		if i, ok := pos[m.ModuleKey]; ok {
			out[i].Enabled = m.Enabled
			continue
		}
		pos[m.ModuleKey] = len(out)
		out = append(out, m)
	}
	return out
}

// ModulesEqual reports whether two module lists grant the same thing once
// normalised. Order is ignored.
func ModulesEqual(a, b []ModuleGrant) bool {
	na, nb := NormalizeModules(a), NormalizeModules(b)
	if len(na) != len(nb) {
		return false
	}
	want := make(map[catalog.ModuleKey]bool, len(na))
	for _, m := range na {
		want[m.ModuleKey] = m.Enabled
	}
	for _, m := range nb {
		enabled, ok := want[m.ModuleKey]
		if !ok || enabled != m.Enabled {
			return false
		}
	}
	return true
}
