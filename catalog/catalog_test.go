package catalog

import (
	"errors"
	"testing"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	c := Default()

	if c.Version() != DefaultVersion {
		t.Errorf("Version: got %d, want %d", c.Version(), DefaultVersion)
	}

	for _, e := range c.Editions() {
		for _, m := range e.Modules {
			if !c.HasModule(m) {
				t.Errorf("edition %s references unknown module %s", e.Code, m)
			}
		}
		for _, f := range e.Features {
			if !c.HasFeature(f) {
				t.Errorf("edition %s references unknown feature %s", e.Code, f)
			}
		}
	}
}

func TestDefaultEditionsOrdered(t *testing.T) {
	want := []string{EditionStarter, EditionStandard, EditionPremium, EditionEnterprise}
	got := Default().Editions()
	if len(got) != len(want) {
		t.Fatalf("got %d editions, want %d", len(got), len(want))
	}
	for i, code := range want {
		if got[i].Code != code {
			t.Errorf("edition %d: got %s, want %s", i, got[i].Code, code)
		}
	}
}

func TestValidate(t *testing.T) {
	keys := Keys{
		Modules:  []ModuleKey{"academics", "finance"},
		Features: []FeatureKey{"sso"},
	}
	ok := Edition{ID: "e1", Code: "basic", Modules: []ModuleKey{"academics"}}

	neg := -1
	tests := []struct {
		name     string
		version  int
		keys     Keys
		editions []Edition
		wantErr  error
	}{
		{"valid", 1, keys, []Edition{ok}, nil},
		{"zero version", 0, keys, []Edition{ok}, ErrInvalidVersion},
		{"unknown module", 1, keys, []Edition{{ID: "e1", Code: "x", Modules: []ModuleKey{"hostel"}}}, ErrUnknownModule},
		{"unknown feature", 1, keys, []Edition{{ID: "e1", Code: "x", Features: []FeatureKey{"api_access"}}}, ErrUnknownFeature},
		{"duplicate code", 1, keys, []Edition{ok, {ID: "e2", Code: "BASIC"}}, ErrDuplicateCode},
		{"duplicate id", 1, keys, []Edition{ok, {ID: "e1", Code: "other"}}, ErrDuplicateID},
		{"empty code", 1, keys, []Edition{{ID: "e1"}}, ErrEmptyCode},
		{"empty id", 1, keys, []Edition{{Code: "x"}}, ErrEmptyID},
		{"negative limit", 1, keys, []Edition{{ID: "e1", Code: "x", Limits: Limits{MaxUsers: &neg}}}, ErrNegativeLimit},
		{"duplicate key", 1, Keys{Modules: []ModuleKey{"a", "a"}}, nil, ErrDuplicateKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.version, tt.keys, tt.editions)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	err := Validate(1, Keys{}, []Edition{
		{ID: "e1", Code: "a", Modules: []ModuleKey{"x"}, Features: []FeatureKey{"y"}},
	})
	if !errors.Is(err, ErrUnknownModule) || !errors.Is(err, ErrUnknownFeature) {
		t.Errorf("expected both module and feature errors, got %v", err)
	}
}

func TestLookup(t *testing.T) {
	c := Default()

	tests := []struct {
		ref  string
		code string
		ok   bool
	}{
		{"edn_premium", EditionPremium, true},
		{"premium", EditionPremium, true},
		{" Premium ", EditionPremium, true},
		{"gold", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			e, ok := c.Lookup(tt.ref)
			if ok != tt.ok {
				t.Fatalf("ok: got %v, want %v", ok, tt.ok)
			}
			if e.Code != tt.code {
				t.Errorf("code: got %q, want %q", e.Code, tt.code)
			}
		})
	}
}

func TestCatalogIsImmutable(t *testing.T) {
	editions := []Edition{{ID: "e1", Code: "basic", Modules: []ModuleKey{ModuleAcademics}}}
	c := MustNew(2, DefaultKeys(), editions...)

	editions[0].Modules[0] = ModuleHostel
	got, _ := c.ByID("e1")
	if got.Modules[0] != ModuleAcademics {
		t.Errorf("catalog changed after caller mutated its input: %v", got.Modules)
	}

	got.Modules[0] = ModuleHostel
	again, _ := c.ByID("e1")
	if again.Modules[0] != ModuleAcademics {
		t.Errorf("catalog changed after caller mutated a lookup result: %v", again.Modules)
	}
}

func TestMustNewPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for invalid catalog")
		}
	}()
	MustNew(1, Keys{}, Edition{ID: "e1", Code: "x", Modules: []ModuleKey{"nope"}})
}
