package rules

import (
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/util"
	"golang.org/x/exp/slices"
)

const DefaultHysteresisBand = 0.20

// StateTracker adds hysteresis to rule activation. A rule activates once its metric
// exceeds the threshold and stays active until the metric drops below
// threshold·(1−band). Each rule is tracked independently.
type StateTracker struct {
	band   float64
	active map[Rule]bool
}

func NewStateTracker(band float64) *StateTracker {
	if band < 0 || band >= 1 {
		ui.Warning("Invalid hysteresis band %.2f, using default %.2f", band, DefaultHysteresisBand)
		band = DefaultHysteresisBand
	}
	return &StateTracker{
		band:   band,
		active: map[Rule]bool{},
	}
}

func (t *StateTracker) Band() float64 {
	return t.band
}

// Update feeds the current metric value of a rule and returns whether the rule is active
func (t *StateTracker) Update(rule Rule, value float64, threshold float64) bool {
	if t.active[rule] {
		release := threshold * (1 - t.band)
		if value < release {
			ui.Debug("Rule '%s' released (%.3f < %.3f)", rule, value, release)
			t.active[rule] = false
		}
	} else if value > threshold {
		ui.Debug("Rule '%s' activated (%.3f > %.3f)", rule, value, threshold)
		t.active[rule] = true
	}
	return t.active[rule]
}

func (t *StateTracker) IsActive(rule Rule) bool {
	return t.active[rule]
}

// ActiveRules returns all currently active rules in evaluation order
func (t *StateTracker) ActiveRules() []Rule {
	var result []Rule
	for _, rule := range Rules {
		if t.active[rule] {
			result = append(result, rule)
		}
	}
	return result
}

func (t *StateTracker) Reset() {
	t.active = map[Rule]bool{}
}

func (t *StateTracker) ToMap() map[string]interface{} {
	active := []interface{}{}
	for _, rule := range t.ActiveRules() {
		active = append(active, string(rule))
	}
	return map[string]interface{}{
		"band":   t.band,
		"active": active,
	}
}

// FromMap restores the band and the active rules, unknown rule names are skipped
func (t *StateTracker) FromMap(data map[string]interface{}) {
	t.Reset()
	if band, ok := data["band"].(float64); ok {
		if util.IsFinite(band) && band >= 0 && band < 1 {
			t.band = band
		} else {
			ui.Warning("Ignoring invalid hysteresis band in tracker state: %v", band)
		}
	}
	values, ok := data["active"].([]interface{})
	if !ok {
		return
	}
	for _, value := range values {
		name, ok := value.(string)
		if !ok || !slices.Contains(Rules, Rule(name)) {
			ui.Warning("Skipping unknown rule in tracker state: %v", value)
			continue
		}
		t.active[Rule(name)] = true
	}
}
