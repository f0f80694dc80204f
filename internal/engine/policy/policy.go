// Package policy is the read-only scenario policy catalog. It is built
// once at init and never mutated, so lookups are safe from any goroutine
// without locking.
package policy

import (
	"fmt"
	"sort"

	"github.com/halcyon-robotics/runscope/api/run"
)

// Variant names the two observed verdict rules. They are kept as distinct
// named variants per scenario rather than merged; the threshold variant is
// the canonical default.
type Variant string

const (
	VariantThreshold Variant = "threshold"
	VariantLimits    Variant = "limits"
)

// Validate enforces supported variants.
func (v Variant) Validate() error {
	switch v {
	case VariantThreshold, VariantLimits:
		return nil
	default:
		return fmt.Errorf("unsupported policy variant: %q", v)
	}
}

// DefaultKey is the scenario every unknown key resolves to. The UI always
// has a valid default selection, so unknown keys are not an error.
const DefaultKey = "warehouse"

// Thresholds is the score-band verdict rule: score <= pass is PASS,
// score <= warn is WARN, anything above is FAIL. Comparisons are inclusive.
type Thresholds struct {
	Pass float64
	Warn float64
}

// ScenarioPolicy is one named, read-only evaluation policy. Exactly one of
// Thresholds or Limits is set, selected by Variant.
type ScenarioPolicy struct {
	Key         string
	Variant     Variant
	Title       string
	Description string
	Weights     map[string]float64
	Thresholds  *Thresholds
	Limits      map[string]int
}

// Validate enforces scenario policy internal consistency.
func (p ScenarioPolicy) Validate() error {
	if p.Key == "" {
		return fmt.Errorf("policy key is required")
	}
	if err := p.Variant.Validate(); err != nil {
		return err
	}
	for eventType, weight := range p.Weights {
		if eventType == "" {
			return fmt.Errorf("policy %q has an empty weighted event type", p.Key)
		}
		if weight < 0 {
			return fmt.Errorf("policy %q weight for %q must be >=0", p.Key, eventType)
		}
	}
	switch p.Variant {
	case VariantThreshold:
		if p.Thresholds == nil {
			return fmt.Errorf("policy %q threshold variant requires thresholds", p.Key)
		}
		if p.Thresholds.Pass > p.Thresholds.Warn {
			return fmt.Errorf("policy %q pass threshold exceeds warn threshold", p.Key)
		}
	case VariantLimits:
		if len(p.Limits) == 0 {
			return fmt.Errorf("policy %q limits variant requires limits", p.Key)
		}
		for eventType, limit := range p.Limits {
			if limit < 0 {
				return fmt.Errorf("policy %q limit for %q must be >=0", p.Key, eventType)
			}
		}
	}
	return nil
}

var catalog = buildCatalog()

// Lookup resolves the canonical (threshold-variant) policy for a scenario
// key, defaulting to the warehouse policy for unknown keys.
func Lookup(key string) ScenarioPolicy {
	return LookupVariant(key, VariantThreshold)
}

// LookupVariant resolves a specific verdict-rule variant; unknown keys
// default to warehouse, unknown variants to the threshold rule.
func LookupVariant(key string, variant Variant) ScenarioPolicy {
	if variant.Validate() != nil {
		variant = VariantThreshold
	}
	byVariant, ok := catalog[key]
	if !ok {
		byVariant = catalog[DefaultKey]
	}
	return byVariant[variant]
}

// Keys returns the registered scenario keys in stable order.
func Keys() []string {
	keys := make([]string, 0, len(catalog))
	for key := range catalog {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func buildCatalog() map[string]map[Variant]ScenarioPolicy {
	scenarios := []struct {
		key        string
		title      string
		desc       string
		weights    map[string]float64
		thresholds Thresholds
		limits     map[string]int
	}{
		{
			key:   "warehouse",
			title: "Warehouse Floor",
			desc: "Shared-floor warehouse traffic: collisions carry the heaviest penalty, " +
				"stalls block pick lanes, replans are cheap but noisy.",
			weights: map[string]float64{
				run.EventNearCollision: 3,
				run.EventCollision:     8,
				run.EventStuck:         6,
				run.EventReplan:        1,
			},
			thresholds: Thresholds{Pass: 6, Warn: 14},
			limits: map[string]int{
				run.EventNearCollision: 2,
				run.EventCollision:     0,
				run.EventStuck:         1,
				run.EventReplan:        4,
			},
		},
		{
			key:   "delivery",
			title: "Sidewalk Delivery",
			desc: "Pedestrian-dense sidewalk routes: near misses are weighted almost as " +
				"hard as contact, because proximity incidents erode public trust.",
			weights: map[string]float64{
				run.EventNearCollision: 5,
				run.EventCollision:     10,
				run.EventStuck:         4,
				run.EventReplan:        1,
			},
			thresholds: Thresholds{Pass: 5, Warn: 12},
			limits: map[string]int{
				run.EventNearCollision: 1,
				run.EventCollision:     0,
				run.EventStuck:         2,
				run.EventReplan:        5,
			},
		},
		{
			key:   "sar",
			title: "Search & Rescue",
			desc: "Unstructured search-and-rescue terrain: getting stuck is the mission " +
				"killer, contact with debris is tolerated, replanning is expected.",
			weights: map[string]float64{
				run.EventNearCollision: 2,
				run.EventCollision:     5,
				run.EventStuck:         8,
				run.EventReplan:        0.5,
			},
			thresholds: Thresholds{Pass: 8, Warn: 18},
			limits: map[string]int{
				run.EventNearCollision: 3,
				run.EventCollision:     1,
				run.EventStuck:         1,
				run.EventReplan:        8,
			},
		},
	}

	catalog := make(map[string]map[Variant]ScenarioPolicy, len(scenarios))
	for _, scenario := range scenarios {
		thresholds := scenario.thresholds
		catalog[scenario.key] = map[Variant]ScenarioPolicy{
			VariantThreshold: {
				Key:         scenario.key,
				Variant:     VariantThreshold,
				Title:       scenario.title,
				Description: scenario.desc,
				Weights:     scenario.weights,
				Thresholds:  &thresholds,
			},
			VariantLimits: {
				Key:         scenario.key,
				Variant:     VariantLimits,
				Title:       scenario.title,
				Description: scenario.desc,
				Weights:     scenario.weights,
				Limits:      scenario.limits,
			},
		}
	}
	return catalog
}
