package rules

import (
	"fmt"
	"math"

	"github.com/markusressel/heat2go/internal/heating"
)

// Rule identifies a single tuning rule
type Rule string

const (
	RuleManyOscillations  Rule = "many_oscillations"
	RuleSomeOscillations  Rule = "some_oscillations"
	RuleHighOvershoot     Rule = "high_overshoot"
	RuleModerateOvershoot Rule = "moderate_overshoot"
	RuleSlowResponse      Rule = "slow_response"
	RuleUndershoot        Rule = "undershoot"
	RuleSlowSettling      Rule = "slow_settling"
)

// Rules contains all rules in evaluation order
var Rules = []Rule{
	RuleManyOscillations,
	RuleSomeOscillations,
	RuleHighOvershoot,
	RuleModerateOvershoot,
	RuleSlowResponse,
	RuleUndershoot,
	RuleSlowSettling,
}

type Priority int

const (
	PrioritySlowResponse Priority = 1
	PriorityOvershoot    Priority = 2
	PriorityOscillation  Priority = 3
)

const (
	// maximum relative Ki increase of the undershoot rule
	undershootMaxBoost = 0.5
	// relative Ki increase per °C of undershoot
	undershootBoostPerDegree = 0.5
)

// Result is a gain adjustment recommended by a single rule.
// A factor of 1.0 means no change of the respective gain.
type Result struct {
	Rule     Rule     `json:"rule"`
	Priority Priority `json:"priority"`
	Kp       float64  `json:"kp"`
	Ki       float64  `json:"ki"`
	Kd       float64  `json:"kd"`
	Reason   string   `json:"reason"`
}

// Factor returns the factor of the given parameter
func (r Result) Factor(parameter Parameter) float64 {
	switch parameter {
	case ParameterKp:
		return r.Kp
	case ParameterKi:
		return r.Ki
	case ParameterKd:
		return r.Kd
	}
	return 1.0
}

func (r *Result) setFactor(parameter Parameter, value float64) {
	switch parameter {
	case ParameterKp:
		r.Kp = value
	case ParameterKi:
		r.Ki = value
	case ParameterKd:
		r.Kd = value
	}
}

// Thresholds used by Evaluate
type Thresholds struct {
	// overshoot (°C) above which Kd is increased
	ModerateOvershoot float64 `json:"moderateOvershoot"`
	// overshoot (°C) above which Kp and Ki are decreased as well
	HighOvershoot float64 `json:"highOvershoot"`
	// undershoot (°C) above which Ki is increased
	Undershoot float64 `json:"undershoot"`
	// oscillation count above which Kd is increased
	SomeOscillations int `json:"someOscillations"`
	// oscillation count above which Kp is decreased as well
	ManyOscillations  int     `json:"manyOscillations"`
	SlowRiseHours     float64 `json:"slowRiseHours"`
	SlowSettlingHours float64 `json:"slowSettlingHours"`
}

// DefaultThresholds returns the thresholds for the given heating type
func DefaultThresholds(heatingType heating.Type) Thresholds {
	profile := heating.GetProfile(heatingType)
	return Thresholds{
		ModerateOvershoot: 0.2,
		HighOvershoot:     0.5,
		Undershoot:        0.3,
		SomeOscillations:  1,
		ManyOscillations:  3,
		SlowRiseHours:     profile.SlowRiseHours,
		SlowSettlingHours: profile.SlowSettlingHours,
	}
}

// Evaluate maps the given cycle metrics to gain adjustments.
// If tracker is nil, Evaluate is a pure function of its inputs, otherwise every
// threshold is subject to the hysteresis of the tracker.
func Evaluate(metrics CycleMetrics, thresholds Thresholds, tracker *StateTracker) []Result {
	metrics = metrics.Sanitized()

	active := func(rule Rule, value float64, threshold float64) bool {
		if tracker == nil {
			return value > threshold
		}
		return tracker.Update(rule, value, threshold)
	}

	var results []Result

	oscillations := float64(metrics.Oscillations)
	many := active(RuleManyOscillations, oscillations, float64(thresholds.ManyOscillations))
	some := active(RuleSomeOscillations, oscillations, float64(thresholds.SomeOscillations))
	if many {
		results = append(results, Result{
			Rule: RuleManyOscillations, Priority: PriorityOscillation,
			Kp: 0.90, Ki: 1.0, Kd: 1.20,
			Reason: fmt.Sprintf("%d oscillations (> %d)", metrics.Oscillations, thresholds.ManyOscillations),
		})
	} else if some {
		results = append(results, Result{
			Rule: RuleSomeOscillations, Priority: PriorityOscillation,
			Kp: 1.0, Ki: 1.0, Kd: 1.10,
			Reason: fmt.Sprintf("%d oscillations (> %d)", metrics.Oscillations, thresholds.SomeOscillations),
		})
	}

	high := active(RuleHighOvershoot, metrics.Overshoot, thresholds.HighOvershoot)
	moderate := active(RuleModerateOvershoot, metrics.Overshoot, thresholds.ModerateOvershoot)
	if high {
		results = append(results, Result{
			Rule: RuleHighOvershoot, Priority: PriorityOvershoot,
			Kp: 0.90, Ki: 0.90, Kd: 1.20,
			Reason: fmt.Sprintf("overshoot %.2f°C (> %.2f°C)", metrics.Overshoot, thresholds.HighOvershoot),
		})
	} else if moderate {
		results = append(results, Result{
			Rule: RuleModerateOvershoot, Priority: PriorityOvershoot,
			Kp: 1.0, Ki: 1.0, Kd: 1.10,
			Reason: fmt.Sprintf("overshoot %.2f°C (> %.2f°C)", metrics.Overshoot, thresholds.ModerateOvershoot),
		})
	}

	if active(RuleSlowResponse, metrics.RiseTime, thresholds.SlowRiseHours) {
		results = append(results, Result{
			Rule: RuleSlowResponse, Priority: PrioritySlowResponse,
			Kp: 1.10, Ki: 1.0, Kd: 1.0,
			Reason: fmt.Sprintf("rise time %.2fh (> %.2fh)", metrics.RiseTime, thresholds.SlowRiseHours),
		})
	}

	if active(RuleUndershoot, metrics.Undershoot, thresholds.Undershoot) {
		boost := math.Min(undershootBoostPerDegree*metrics.Undershoot, undershootMaxBoost)
		results = append(results, Result{
			Rule: RuleUndershoot, Priority: PrioritySlowResponse,
			Kp: 1.0, Ki: 1.0 + boost, Kd: 1.0,
			Reason: fmt.Sprintf("undershoot %.2f°C (> %.2f°C)", metrics.Undershoot, thresholds.Undershoot),
		})
	}

	if active(RuleSlowSettling, metrics.SettlingTime, thresholds.SlowSettlingHours) {
		results = append(results, Result{
			Rule: RuleSlowSettling, Priority: PrioritySlowResponse,
			Kp: 1.0, Ki: 1.0, Kd: 1.10,
			Reason: fmt.Sprintf("settling time %.2fh (> %.2fh)", metrics.SettlingTime, thresholds.SlowSettlingHours),
		})
	}

	return results
}
