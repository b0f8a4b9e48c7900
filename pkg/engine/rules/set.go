package rules

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/DrSkyle/wastewatch/pkg/engine/errs"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

// Set is an immutable, versioned collection of compiled rules.
type Set struct {
	Version string
	rules   []*Rule
	byType  map[resource.Type][]*Rule
}

// Rules returns the rules in file order.
func (s *Set) Rules() []*Rule { return slices.Clone(s.rules) }

// ForType returns the rules for t in file order.
func (s *Set) ForType(t resource.Type) []*Rule { return slices.Clone(s.byType[t]) }

// Types lists resource types that have at least one rule.
func (s *Set) Types() []resource.Type {
	var out []resource.Type
	for _, r := range s.rules {
		if !slices.Contains(out, r.ResourceType) {
			out = append(out, r.ResourceType)
		}
	}
	return out
}

func (s *Set) Rule(id string) (*Rule, bool) {
	for _, r := range s.rules {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// Load reads and compiles a rule file.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	return Parse(data)
}

// Parse compiles a rule set. Any invalid rule rejects the whole set with
// InvalidRuleConfiguration.
func Parse(data []byte) (*Set, error) {
	const op = "rules.Parse"

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, errs.E(errs.KindInvalidRuleConfiguration, op, err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, errs.E(errs.KindInvalidRuleConfiguration, op, err)
	}
	return Compile(f)
}

// Compile builds a Set from decoded rule specs.
func Compile(f File) (*Set, error) {
	env, err := newCELEnv()
	if err != nil {
		return nil, err
	}
	c := &compiler{env: env}

	set := &Set{Version: f.Version, byType: make(map[resource.Type][]*Rule)}
	seen := make(map[string]bool)
	for _, spec := range f.Rules {
		if seen[spec.ID] {
			c.fail(spec.ID, "duplicate rule id")
			continue
		}
		seen[spec.ID] = true
		r := c.compileRule(spec)
		set.rules = append(set.rules, r)
		set.byType[r.ResourceType] = append(set.byType[r.ResourceType], r)
	}

	if err := c.err(); err != nil {
		return nil, errs.E(errs.KindInvalidRuleConfiguration, "rules.Compile", err)
	}
	return set, nil
}

// ApplyLookbackOverrides returns rules with lookback windows replaced. Keys are
// rule ids; the key "*" applies to every rule without its own entry.
func ApplyLookbackOverrides(rules []*Rule, overrides map[string]int) ([]*Rule, error) {
	if len(overrides) == 0 {
		return rules, nil
	}
	out := make([]*Rule, len(rules))
	for i, r := range rules {
		days, ok := overrides[r.ID]
		if !ok {
			days, ok = overrides["*"]
		}
		if !ok {
			out[i] = r
			continue
		}
		if days <= 0 {
			return nil, errs.Errorf(errs.KindInvalidWindow, "rules.ApplyLookbackOverrides", "rule %s: lookback override must be positive, got %d", r.ID, days)
		}
		out[i] = r.WithLookback(days)
	}
	return out, nil
}
