package zone

import (
	"fmt"
	"math"
	"time"

	"github.com/markusressel/heat2go/internal/coupling"
	"github.com/markusressel/heat2go/internal/pid"
	"github.com/markusressel/heat2go/internal/rules"
	"github.com/markusressel/heat2go/internal/sensors"
	"github.com/markusressel/heat2go/internal/tuning"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/util"
)

// neighbor is the part of the state of another zone this zone depends on
type neighbor struct {
	temperature float64
	heating     bool
	// heating rate (°C/h) while heating, NaN otherwise
	heatingRate float64
	// overshoot of the last completed cycle
	overshoot *float64
}

func (z *Zone) describe() neighbor {
	z.mu.RLock()
	defer z.mu.RUnlock()

	n := neighbor{
		temperature: z.temperature,
		heating:     z.heating,
		heatingRate: math.NaN(),
	}
	if z.heating {
		if rate, ok := z.rates.HeatingRate(); ok {
			n.heatingRate = rate
		}
	}
	if z.lastOvershoot != nil {
		overshoot := *z.lastOvershoot
		n.overshoot = &overshoot
	}
	return n
}

// survey collects the state of all other zones. Must be called without holding
// the lock of this zone.
func (z *Zone) survey() map[string]neighbor {
	result := map[string]neighbor{}
	if z.deps.Zones == nil {
		return result
	}
	for id, other := range z.deps.Zones.Items() {
		if other == z || id == z.GetId() {
			continue
		}
		result[id] = other.describe()
	}
	return result
}

func optionalValue(sensor sensors.Sensor) *float64 {
	if sensor == nil {
		return nil
	}
	value := sensor.GetMovingAvg()
	if !util.IsFinite(value) {
		return nil
	}
	return &value
}

// Update runs a single control step: read all inputs, calculate and apply
// the duty, then feed the learners.
func (z *Zone) Update() error {
	now := z.clock()
	temperature := z.deps.Sensor.GetMovingAvg()
	if !util.IsFinite(temperature) {
		return fmt.Errorf("zone %s: no temperature available from sensor %s", z.GetId(), z.deps.Sensor.GetId())
	}
	outdoor := optionalValue(z.deps.OutdoorSensor)
	wind := optionalValue(z.deps.WindSensor)
	setpointOverride := optionalValue(z.deps.SetpointSensor)
	others := z.survey()

	z.mu.Lock()
	defer z.mu.Unlock()

	setpoint := z.setpoint
	if setpointOverride != nil {
		setpoint = *setpointOverride
	}

	var dt time.Duration
	if !z.lastUpdate.IsZero() {
		dt = now.Sub(z.lastUpdate)
	}
	z.lastUpdate = now
	z.temperature = temperature

	z.updateFeedforward(others)

	duty, _ := z.controller.Calc(pid.Sample{
		Measured: temperature,
		Target:   setpoint,
		Time:     now,
		Outdoor:  outdoor,
		Wind:     wind,
	})

	var result error
	err := z.deps.Actuator.SetDuty(duty)
	if err != nil {
		result = fmt.Errorf("zone %s: unable to apply duty %.1f%%: %w", z.GetId(), duty, err)
	}
	z.duty = duty

	// observations need a finite outdoor temperature, a missing sensor counts as constant
	outdoorValue := 0.0
	if outdoor != nil {
		outdoorValue = *outdoor
	}
	temps := z.temperatures(others)

	active := z.controller.Mode() == pid.ModeAuto && duty > z.config.HeatingThreshold
	switch {
	case active && !z.heating:
		z.onHeatingStarted(now, temperature, setpoint, temps, outdoorValue)
	case !active && z.heating:
		z.cycles.Add(now, temperature, setpoint)
		z.onHeatingStopped(now, temps, outdoorValue, others)
	default:
		z.cycles.Add(now, temperature, setpoint)
	}
	z.heating = active

	if dt > 0 && z.controller.Mode() == pid.ModeAuto && !z.config.Learning.Disabled {
		z.updateUndershoot(temperature, setpoint, dt)
	}

	return result
}

func (z *Zone) temperatures(others map[string]neighbor) map[string]float64 {
	temps := map[string]float64{
		z.GetId(): z.temperature,
	}
	for id, n := range others {
		if util.IsFinite(n.temperature) {
			temps[id] = n.temperature
		}
	}
	return temps
}

func (z *Zone) couplingActive() bool {
	return z.deps.Coupling != nil && z.controller.Direction() == pid.DirectionHeat
}

func (z *Zone) updateFeedforward(others map[string]neighbor) {
	if !z.couplingActive() {
		return
	}
	rates := map[string]float64{}
	for id, n := range others {
		if n.heating && util.IsFinite(n.heatingRate) {
			rates[id] = n.heatingRate
		}
	}
	feedforward := z.deps.Coupling.Feedforward(z.GetId(), rates, z.couplingConfig.FeedforwardGain, z.couplingConfig.MaxFeedforward)
	if feedforward != z.feedforward {
		ui.Debug("Zone %s: coupling feedforward %.2f%%", z.GetId(), feedforward)
	}
	z.feedforward = feedforward
	z.controller.SetFeedforward(feedforward)
}

func (z *Zone) onHeatingStarted(now time.Time, temperature float64, setpoint float64, temps map[string]float64, outdoor float64) {
	ui.Debug("Zone %s: heating started (%.2f°C, setpoint %.2f°C)", z.GetId(), temperature, setpoint)

	previous := z.cycles.Samples()
	metrics, completed := z.cycles.Start(now, temperature, setpoint)
	z.rates.LearnFromSeries(previous)
	if completed {
		z.onCycleCompleted(metrics)
	}
	z.controller.ResetClampState()

	if z.couplingActive() {
		z.deps.Coupling.StartObservation(z.GetId(), temps, outdoor, now)
	}
}

func (z *Zone) onHeatingStopped(now time.Time, temps map[string]float64, outdoor float64, others map[string]neighbor) {
	ui.Debug("Zone %s: heating stopped", z.GetId())
	if !z.couplingActive() {
		return
	}

	var idle []string
	for id, n := range others {
		if !n.heating {
			idle = append(idle, id)
		}
	}

	observations := z.deps.Coupling.EndObservation(z.GetId(), temps, outdoor, idle, now)
	for _, observation := range observations {
		if !z.deps.Coupling.RecordObservation(observation) {
			continue
		}
		coefficient, ok := z.deps.Coupling.GetCoefficient(observation.Pair)
		if !ok || coefficient.IsValidating() || coupling.GraduatedConfidence(coefficient) <= 0 {
			continue
		}
		target, ok := others[observation.Target]
		if !ok || target.overshoot == nil {
			continue
		}
		if z.deps.Coupling.RecordBaselineOvershoot(observation.Pair, *target.overshoot) {
			ui.Debug("Validating coupling coefficient %s against overshoot %.2f°C", observation.Pair, *target.overshoot)
		}
	}
}

func (z *Zone) onCycleCompleted(metrics rules.CycleMetrics) {
	ui.Info("Zone %s: cycle completed (overshoot: %.2f°C, undershoot: %.2f°C, oscillations: %d, rise time: %.2fh, settling time: %.2fh)",
		z.GetId(), metrics.Overshoot, metrics.Undershoot, metrics.Oscillations, metrics.RiseTime, metrics.SettlingTime)

	z.lastCycle = &metrics
	overshoot := metrics.Overshoot
	z.lastOvershoot = &overshoot

	z.validateCoupling(metrics.Overshoot)

	if z.config.Learning.Disabled {
		return
	}
	if z.controller.WasClamped() {
		ui.Info("Zone %s: output was clamped (%s) during the last cycle, skipping gain learning", z.GetId(), z.controller.ClampReason())
		return
	}

	adjustment := z.tuning.RecordCycle(metrics, z.controller.Gains())
	if adjustment != nil {
		z.applyAdjustment(*adjustment)
	}
}

// validateCoupling checks all coefficients targeting this zone which are under validation
func (z *Zone) validateCoupling(overshoot float64) {
	if !z.couplingActive() {
		return
	}
	for _, coefficient := range z.deps.Coupling.Coefficients() {
		if coefficient.Pair.Target != z.GetId() || !coefficient.IsValidating() {
			continue
		}
		result := z.deps.Coupling.CheckValidation(coefficient.Pair, overshoot)
		if result != coupling.ValidationPending {
			ui.Debug("Zone %s: validation of coupling coefficient %s: %s", z.GetId(), coefficient.Pair, result)
		}
	}
}

func (z *Zone) updateUndershoot(temperature float64, setpoint float64, dt time.Duration) {
	z.undershoot.Update(temperature, setpoint, dt, z.controller.Config().ColdTolerance)
	if !z.undershoot.ShouldAdjustKi(z.tuning.CyclesCompleted()) {
		return
	}
	adjustment := z.tuning.ApplyKiMultiplier(z.undershoot.NextKiStep(), z.controller.Gains())
	if adjustment == nil {
		// Ki already at its cap, keep the debt for the next evaluation
		return
	}
	z.undershoot.ApplyAdjustment()
	z.applyAdjustment(*adjustment)
}

func (z *Zone) applyAdjustment(adjustment tuning.Adjustment) {
	ui.Info("Zone %s: %s gain adjustment Kp %.3f -> %.3f, Ki %.4f -> %.4f, Kd %.3f -> %.3f (%s)",
		z.GetId(), adjustment.Kind,
		adjustment.Previous.Kp, adjustment.Gains.Kp,
		adjustment.Previous.Ki, adjustment.Gains.Ki,
		adjustment.Previous.Kd, adjustment.Gains.Kd,
		adjustment.Reason,
	)
	z.controller.SetGains(adjustment.Gains)
	if adjustment.Kind == tuning.AdjustmentRules {
		z.controller.SetTuned(true)
	}
}
