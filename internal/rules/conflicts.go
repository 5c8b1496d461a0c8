package rules

import (
	"github.com/markusressel/heat2go/internal/ui"
)

// Parameter is a single controller gain a rule can adjust
type Parameter string

const (
	ParameterKp Parameter = "kp"
	ParameterKi Parameter = "ki"
	ParameterKd Parameter = "kd"
)

var Parameters = []Parameter{ParameterKp, ParameterKi, ParameterKd}

// Conflict describes two rules pulling a parameter in opposite directions.
// First is always the rule that appears earlier in the evaluated results.
type Conflict struct {
	First     Rule      `json:"first"`
	Second    Rule      `json:"second"`
	Parameter Parameter `json:"parameter"`
}

// Factors are the combined gain multipliers of a set of results
type Factors struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`
}

func (f Factors) IsNeutral() bool {
	return f.Kp == 1.0 && f.Ki == 1.0 && f.Kd == 1.0
}

func opposing(a float64, b float64) bool {
	return (a > 1.0 && b < 1.0) || (a < 1.0 && b > 1.0)
}

// DetectConflicts returns every pair of results where one factor of a parameter
// increases the gain while the other one decreases it.
func DetectConflicts(results []Result) []Conflict {
	var conflicts []Conflict
	for _, parameter := range Parameters {
		for i := 0; i < len(results); i++ {
			for j := i + 1; j < len(results); j++ {
				if opposing(results[i].Factor(parameter), results[j].Factor(parameter)) {
					conflicts = append(conflicts, Conflict{
						First:     results[i].Rule,
						Second:    results[j].Rule,
						Parameter: parameter,
					})
				}
			}
		}
	}
	return conflicts
}

// ResolveConflicts returns a copy of results in which, for every conflicting
// parameter, the factor of the losing rule is reset to 1.0. The rule with the
// higher priority wins, on equal priority the earlier rule wins. Other parameters
// of the losing rule are left untouched. Applying it twice yields the same result.
func ResolveConflicts(results []Result) []Result {
	resolved := make([]Result, len(results))
	copy(resolved, results)

	for _, parameter := range Parameters {
		for i := 0; i < len(resolved); i++ {
			for j := i + 1; j < len(resolved); j++ {
				if !opposing(resolved[i].Factor(parameter), resolved[j].Factor(parameter)) {
					continue
				}
				winner, loser := i, j
				if resolved[j].Priority > resolved[i].Priority {
					winner, loser = j, i
				}
				ui.Debug("Rule '%s' overrides '%s' for %s", resolved[winner].Rule, resolved[loser].Rule, parameter)
				resolved[loser].setFactor(parameter, 1.0)
			}
		}
	}
	return resolved
}

// Combine merges resolved results into a single set of factors.
// For each parameter the last result with a non-neutral factor is kept.
func Combine(results []Result) Factors {
	factors := Factors{Kp: 1.0, Ki: 1.0, Kd: 1.0}
	for _, result := range results {
		if result.Kp != 1.0 {
			factors.Kp = result.Kp
		}
		if result.Ki != 1.0 {
			factors.Ki = result.Ki
		}
		if result.Kd != 1.0 {
			factors.Kd = result.Kd
		}
	}
	return factors
}

// Recommend evaluates, resolves and combines in one step
func Recommend(metrics CycleMetrics, thresholds Thresholds, tracker *StateTracker) ([]Result, Factors) {
	results := ResolveConflicts(Evaluate(metrics, thresholds, tracker))
	return results, Combine(results)
}
