package tuning

import (
	"time"

	"github.com/markusressel/heat2go/internal/pid"
	"github.com/markusressel/heat2go/internal/rules"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/util"
)

type metricsState struct {
	Overshoot    float64 `mapstructure:"overshoot"`
	Undershoot   float64 `mapstructure:"undershoot"`
	Oscillations int     `mapstructure:"oscillations"`
	RiseTime     float64 `mapstructure:"rise_time"`
	SettlingTime float64 `mapstructure:"settling_time"`
}

type gainsState struct {
	Kp     float64 `mapstructure:"kp"`
	Ki     float64 `mapstructure:"ki"`
	Kd     float64 `mapstructure:"kd"`
	Ke     float64 `mapstructure:"ke"`
	KeWind float64 `mapstructure:"ke_wind"`
}

type validationState struct {
	Previous          gainsState `mapstructure:"previous"`
	BaselineOvershoot float64    `mapstructure:"baseline_overshoot"`
}

type managerState struct {
	CyclesCompleted int                    `mapstructure:"cycles_completed"`
	LastAdjustment  *time.Time             `mapstructure:"last_adjustment"`
	Tracker         map[string]interface{} `mapstructure:"tracker"`
	Window          []interface{}          `mapstructure:"window"`
	Validation      *validationState       `mapstructure:"validation"`
}

func metricsToMap(metrics rules.CycleMetrics) map[string]interface{} {
	return map[string]interface{}{
		"overshoot":     metrics.Overshoot,
		"undershoot":    metrics.Undershoot,
		"oscillations":  metrics.Oscillations,
		"rise_time":     metrics.RiseTime,
		"settling_time": metrics.SettlingTime,
	}
}

func gainsToMap(gains pid.Gains) map[string]interface{} {
	return map[string]interface{}{
		"kp":      gains.Kp,
		"ki":      gains.Ki,
		"kd":      gains.Kd,
		"ke":      gains.Ke,
		"ke_wind": gains.KeWind,
	}
}

// ToMap serializes the learning state of the manager
func (m *Manager) ToMap() map[string]interface{} {
	window := []interface{}{}
	for _, metrics := range m.window.cycles() {
		window = append(window, metricsToMap(metrics))
	}

	result := map[string]interface{}{
		"cycles_completed": m.cyclesCompleted,
		"last_adjustment":  nil,
		"tracker":          m.tracker.ToMap(),
		"window":           window,
		"validation":       nil,
	}
	if !m.lastAdjustment.IsZero() {
		result["last_adjustment"] = util.FormatTime(m.lastAdjustment)
	}
	if m.pending != nil {
		result["validation"] = map[string]interface{}{
			"previous":           gainsToMap(m.pending.previous),
			"baseline_overshoot": m.pending.baselineOvershoot,
		}
	}
	return result
}

// FromMap restores a snapshot created by ToMap. Malformed window entries are skipped.
func (m *Manager) FromMap(data map[string]interface{}) error {
	var state managerState
	if err := util.DecodeMap(data, &state); err != nil {
		return err
	}

	m.cyclesCompleted = state.CyclesCompleted
	if m.cyclesCompleted < 0 {
		m.cyclesCompleted = 0
	}
	m.lastAdjustment = time.Time{}
	if state.LastAdjustment != nil {
		m.lastAdjustment = *state.LastAdjustment
	}

	m.tracker.Reset()
	if state.Tracker != nil {
		m.tracker.FromMap(state.Tracker)
	}

	m.window.clear()
	for _, entry := range state.Window {
		var metrics metricsState
		if err := util.DecodeMap(entry, &metrics); err != nil {
			ui.Warning("Skipping malformed cycle metrics: %v", err)
			continue
		}
		m.window.add(rules.CycleMetrics{
			Overshoot:    metrics.Overshoot,
			Undershoot:   metrics.Undershoot,
			Oscillations: metrics.Oscillations,
			RiseTime:     metrics.RiseTime,
			SettlingTime: metrics.SettlingTime,
		})
	}

	m.pending = nil
	if state.Validation != nil && util.IsFinite(state.Validation.BaselineOvershoot) {
		previous := pid.Gains{
			Kp:     state.Validation.Previous.Kp,
			Ki:     state.Validation.Previous.Ki,
			Kd:     state.Validation.Previous.Kd,
			Ke:     state.Validation.Previous.Ke,
			KeWind: state.Validation.Previous.KeWind,
		}
		if util.AllFinite(previous.Kp, previous.Ki, previous.Kd, previous.Ke, previous.KeWind) {
			m.pending = &validation{
				previous:          previous,
				baselineOvershoot: state.Validation.BaselineOvershoot,
			}
		}
	}
	return nil
}
