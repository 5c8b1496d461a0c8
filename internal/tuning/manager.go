package tuning

import (
	"math"
	"time"

	"github.com/markusressel/heat2go/internal/heating"
	"github.com/markusressel/heat2go/internal/pid"
	"github.com/markusressel/heat2go/internal/rules"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/util"
)

const (
	DefaultMinCycles   = 3
	DefaultMinInterval = 24 * time.Hour

	// gains never leave [MinGainFactor, MaxGainFactor] times the initial gains
	MinGainFactor = 0.5
	MaxGainFactor = 2.0

	// RollbackDegradation is the relative overshoot increase over the pre-change
	// baseline that reverts an adjustment
	RollbackDegradation = 0.30
	// MinRollbackDelta is the minimum absolute overshoot increase (°C) that reverts an adjustment
	MinRollbackDelta = 0.1

	maxHistory = 20
)

type AdjustmentKind string

const (
	AdjustmentRules      AdjustmentKind = "rules"
	AdjustmentUndershoot AdjustmentKind = "undershoot"
	AdjustmentRollback   AdjustmentKind = "rollback"
)

// Adjustment is a gain change proposed by the Manager
type Adjustment struct {
	Kind     AdjustmentKind      `json:"kind"`
	Time     time.Time           `json:"time"`
	Previous pid.Gains           `json:"previous"`
	Gains    pid.Gains           `json:"gains"`
	Results  []rules.Result      `json:"results,omitempty"`
	Metrics  *rules.CycleMetrics `json:"metrics,omitempty"`
	Reason   string              `json:"reason"`
}

type Config struct {
	HeatingType  heating.Type
	InitialGains pid.Gains

	// number of cycles averaged before the rule engine is consulted
	MinCycles int
	// minimum time between two rule based adjustments
	MinInterval    time.Duration
	HysteresisBand float64
	// nil uses rules.DefaultThresholds
	Thresholds *rules.Thresholds
}

type validation struct {
	previous          pid.Gains
	baselineOvershoot float64
}

// Manager turns completed cycles into safe gain adjustments for a single zone.
//
// Rule based adjustments are rate limited, capped relative to the initial gains
// and reverted if the following cycle overshoots considerably more than before.
//
// A Manager is not safe for concurrent use.
type Manager struct {
	config     Config
	thresholds rules.Thresholds
	clock      func() time.Time

	tracker *rules.StateTracker
	window  *metricWindow

	cyclesCompleted int
	lastAdjustment  time.Time
	pending         *validation
	history         []Adjustment
}

func NewManager(config Config, clock func() time.Time) *Manager {
	if clock == nil {
		clock = time.Now
	}
	if config.MinCycles <= 0 {
		config.MinCycles = DefaultMinCycles
	}
	if config.MinInterval <= 0 {
		config.MinInterval = DefaultMinInterval
	}
	if !config.HeatingType.IsValid() {
		config.HeatingType = heating.DefaultType
	}

	band := config.HysteresisBand
	if band <= 0 {
		band = rules.DefaultHysteresisBand
	}

	thresholds := rules.DefaultThresholds(config.HeatingType)
	if config.Thresholds != nil {
		thresholds = *config.Thresholds
	}

	return &Manager{
		config:     config,
		thresholds: thresholds,
		clock:      clock,
		tracker:    rules.NewStateTracker(band),
		window:     newMetricWindow(config.MinCycles),
	}
}

// RecordCycle feeds the metrics of a completed cycle. If the cycle warrants a gain
// change, the adjustment is returned and has to be applied by the caller.
func (m *Manager) RecordCycle(metrics rules.CycleMetrics, current pid.Gains) *Adjustment {
	metrics = metrics.Sanitized()
	now := m.clock()
	m.cyclesCompleted++

	if m.pending != nil {
		pending := m.pending
		m.pending = nil
		if rollback := m.checkDegradation(pending, metrics, current, now); rollback != nil {
			return rollback
		}
	}

	m.window.add(metrics)
	if !m.window.isFull() {
		ui.Debug("Collected %d/%d cycles", m.window.count, m.window.size)
		return nil
	}

	if !m.lastAdjustment.IsZero() && now.Sub(m.lastAdjustment) < m.config.MinInterval {
		ui.Debug("Skipping gain adjustment, last one was at %s", m.lastAdjustment.Format(time.RFC3339))
		return nil
	}

	average := m.window.average()
	results, factors := rules.Recommend(average, m.thresholds, m.tracker)
	if factors.IsNeutral() {
		return nil
	}

	gains := m.capGains(pid.Gains{
		Kp:     current.Kp * factors.Kp,
		Ki:     current.Ki * factors.Ki,
		Kd:     current.Kd * factors.Kd,
		Ke:     current.Ke,
		KeWind: current.KeWind,
	})
	if gains == current {
		ui.Debug("Gain adjustment suppressed, gains are at their limits")
		return nil
	}

	adjustment := Adjustment{
		Kind:     AdjustmentRules,
		Time:     now,
		Previous: current,
		Gains:    gains,
		Results:  results,
		Metrics:  &average,
		Reason:   reasons(results),
	}
	m.pending = &validation{
		previous:          current,
		baselineOvershoot: average.Overshoot,
	}
	m.lastAdjustment = now
	m.window.clear()
	m.addHistory(adjustment)
	return &adjustment
}

func (m *Manager) checkDegradation(pending *validation, metrics rules.CycleMetrics, current pid.Gains, now time.Time) *Adjustment {
	limit := math.Max(
		pending.baselineOvershoot*(1+RollbackDegradation),
		pending.baselineOvershoot+MinRollbackDelta,
	)
	if metrics.Overshoot <= limit {
		return nil
	}

	ui.Warning("Overshoot degraded after gain adjustment (%.2f°C > %.2f°C), rolling back", metrics.Overshoot, limit)
	adjustment := Adjustment{
		Kind:     AdjustmentRollback,
		Time:     now,
		Previous: current,
		Gains:    pending.previous,
		Metrics:  &metrics,
		Reason:   "overshoot degraded after adjustment",
	}
	m.window.clear()
	m.tracker.Reset()
	m.lastAdjustment = now
	m.addHistory(adjustment)
	return &adjustment
}

// ApplyKiMultiplier scales Ki, e.g. on request of the undershoot detector.
// Returns nil if Ki is already at its limit.
func (m *Manager) ApplyKiMultiplier(multiplier float64, current pid.Gains) *Adjustment {
	if !util.IsFinite(multiplier) || multiplier <= 0 {
		ui.Warning("Ignoring invalid Ki multiplier: %v", multiplier)
		return nil
	}
	gains := current
	gains.Ki = current.Ki * multiplier
	gains = m.capGains(gains)
	if gains == current {
		return nil
	}

	adjustment := Adjustment{
		Kind:     AdjustmentUndershoot,
		Time:     m.clock(),
		Previous: current,
		Gains:    gains,
		Reason:   "persistent undershoot",
	}
	m.window.clear()
	m.addHistory(adjustment)
	return &adjustment
}

// capGains limits Kp, Ki and Kd to [MinGainFactor, MaxGainFactor] times the initial gains
func (m *Manager) capGains(gains pid.Gains) pid.Gains {
	initial := m.config.InitialGains
	limit := func(value float64, initial float64) float64 {
		if !util.IsFinite(value) {
			return initial
		}
		return util.Coerce(value, initial*MinGainFactor, initial*MaxGainFactor)
	}
	gains.Kp = limit(gains.Kp, initial.Kp)
	gains.Ki = limit(gains.Ki, initial.Ki)
	gains.Kd = limit(gains.Kd, initial.Kd)
	return gains
}

func (m *Manager) addHistory(adjustment Adjustment) {
	m.history = append(m.history, adjustment)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
}

func (m *Manager) CyclesCompleted() int {
	return m.cyclesCompleted
}

func (m *Manager) LastAdjustment() time.Time {
	return m.lastAdjustment
}

// IsValidating is true while the last adjustment awaits the next cycle
func (m *Manager) IsValidating() bool {
	return m.pending != nil
}

// History returns the most recent adjustments, oldest first
func (m *Manager) History() []Adjustment {
	return append([]Adjustment{}, m.history...)
}

func (m *Manager) ActiveRules() []rules.Rule {
	return m.tracker.ActiveRules()
}

func (m *Manager) Thresholds() rules.Thresholds {
	return m.thresholds
}

// Reset forgets all collected cycles and the rule states, e.g. after a manual gain change
func (m *Manager) Reset() {
	m.window.clear()
	m.tracker.Reset()
	m.pending = nil
}

func reasons(results []rules.Result) string {
	text := ""
	for i, result := range results {
		if i > 0 {
			text += ", "
		}
		text += string(result.Rule) + ": " + result.Reason
	}
	return text
}
