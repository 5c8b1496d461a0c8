package pid

import (
	"math"

	"github.com/markusressel/heat2go/internal/heating"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/util"
)

// Calc advances the controller by one sample and returns the new output.
// changed is false if the sample was not accepted, either because the sampling
// period has not elapsed yet or because the sample was invalid. In both cases
// the cached output is returned unchanged.
func (c *Controller) Calc(sample Sample) (output float64, changed bool) {
	if !c.isValid(sample) {
		return c.output, false
	}

	if c.config.SamplingPeriod > 0 && !c.lastOutputTime.IsZero() &&
		sample.Time.Sub(c.lastOutputTime) < c.config.SamplingPeriod {
		return c.output, false
	}

	if c.mode == ModeOff {
		return c.calcOff(sample), true
	}

	errorValue := sample.Target - sample.Measured

	first := !c.hasLast
	var dInput, dtSeconds float64
	if !first {
		previousTime := c.lastTime
		if !sample.PreviousTime.IsZero() {
			previousTime = sample.PreviousTime
		}
		dtSeconds = sample.Time.Sub(previousTime).Seconds()
		if dtSeconds < 0 {
			ui.Warning("Rejecting sample with negative time delta (%.1fs)", dtSeconds)
			return c.output, false
		}
		dInput = sample.Measured - c.lastInput
	}
	dtHours := dtSeconds / 3600

	c.updateOutdoor(sample)
	c.e = finiteOr(c.external(sample), c.e)
	c.p = finiteOr(-c.gains.Kp*dInput, 0)

	transferred := c.tryBumplessTransfer(sample.Target, errorValue)

	// samples closer together than MinDerivativeInterval freeze I and D,
	// the stored sample is kept so the elapsed time is not lost
	advance := true
	if !transferred && !first {
		if dtSeconds >= MinDerivativeInterval.Seconds() {
			c.updateIntegral(errorValue, dtHours)
			c.updateDerivative(dInput, dtHours)
		} else {
			advance = false
		}
	}
	if first {
		c.d = 0
	}

	output = util.Coerce(finiteOr(c.p+c.integral+c.d+c.e-c.f, c.output), c.config.OutMin, c.config.OutMax)
	c.demand = output
	output = c.applyToleranceClamp(errorValue, output)

	c.output = output
	c.lastOutputTime = sample.Time
	c.lastTarget = sample.Target
	c.lastError = errorValue
	if advance {
		c.hasLast = true
		c.lastInput = sample.Measured
		c.lastTime = sample.Time
	}

	return output, true
}

func (c *Controller) isValid(sample Sample) bool {
	if !util.AllFinite(sample.Measured, sample.Target) {
		ui.Warning("Rejecting non-finite sample (measured: %v, target: %v)", sample.Measured, sample.Target)
		return false
	}
	if sample.Outdoor != nil && !util.IsFinite(*sample.Outdoor) {
		ui.Warning("Rejecting non-finite outdoor temperature: %v", *sample.Outdoor)
		return false
	}
	if sample.Wind != nil && !util.IsFinite(*sample.Wind) {
		ui.Warning("Rejecting non-finite wind speed: %v", *sample.Wind)
		return false
	}
	if sample.Time.IsZero() {
		ui.Warning("Rejecting sample without timestamp")
		return false
	}
	return true
}

// calcOff implements simple two-point control used while the PID is disabled
func (c *Controller) calcOff(sample Sample) float64 {
	c.updateOutdoor(sample)

	if sample.Measured < sample.Target-c.config.ColdTolerance {
		c.output = c.config.OutMax
	} else if sample.Measured > sample.Target+c.config.HotTolerance {
		c.output = c.config.OutMin
	}
	c.demand = c.output

	c.hasLast = true
	c.lastInput = sample.Measured
	c.lastTime = sample.Time
	c.lastOutputTime = sample.Time
	return c.output
}

func (c *Controller) updateOutdoor(sample Sample) {
	if sample.Outdoor == nil {
		return
	}
	outdoor := *sample.Outdoor
	if !c.hasOutdoor {
		c.hasOutdoor = true
		c.laggedOutdoor = outdoor
		c.lastOutdoorTime = sample.Time
		return
	}

	dtHours := sample.Time.Sub(c.lastOutdoorTime).Hours()
	if dtHours <= 0 {
		return
	}
	c.lastOutdoorTime = sample.Time

	if c.config.OutdoorLagHours <= 0 {
		c.laggedOutdoor = outdoor
		return
	}
	alpha := 1 - math.Exp(-dtHours/c.config.OutdoorLagHours)
	c.laggedOutdoor = finiteOr(c.laggedOutdoor+alpha*(outdoor-c.laggedOutdoor), outdoor)
}

// external calculates the outdoor and wind compensation term
func (c *Controller) external(sample Sample) float64 {
	if !c.hasOutdoor {
		return 0
	}
	difference := sample.Target - c.laggedOutdoor
	external := c.gains.Ke * difference
	if sample.Wind != nil {
		external += c.gains.KeWind * (*sample.Wind) * difference
	}
	return external
}

// tryBumplessTransfer solves for the integral that reproduces the output
// from before the controller was switched off
func (c *Controller) tryBumplessTransfer(target float64, errorValue float64) bool {
	if c.bumpless == nil {
		return false
	}
	snapshot := c.bumpless
	c.bumpless = nil

	if math.Abs(target-snapshot.target) > BumplessGuard || math.Abs(errorValue-snapshot.error) > BumplessGuard {
		ui.Debug("Skipping bumpless transfer, setpoint or error moved too far (target: %.2f -> %.2f, error: %.2f -> %.2f)",
			snapshot.target, target, snapshot.error, errorValue)
		return false
	}

	c.integral = snapshot.output - c.p - c.d - c.e + c.f
	c.clampIntegral()
	ui.Debug("Bumpless transfer: integral set to %.4f to reproduce output %.2f", c.integral, snapshot.output)
	return true
}

func (c *Controller) updateIntegral(errorValue float64, dtHours float64) {
	saturatedHigh := c.demand >= c.config.OutMax && errorValue > 0
	saturatedLow := c.demand <= c.config.OutMin && errorValue < 0
	if saturatedHigh || saturatedLow {
		c.clampIntegral()
		return
	}

	delta := finiteOr(c.gains.Ki*errorValue*dtHours, 0)

	overhang := util.Sign(errorValue) != 0 && util.Sign(c.integral) != 0 &&
		util.Sign(errorValue) != util.Sign(c.integral)
	if overhang {
		if c.config.IntegralDecayTauHours > 0 {
			c.integral *= math.Exp(-dtHours / c.config.IntegralDecayTauHours)
		}
		delta *= c.config.IntegralDecayMultiplier
	}

	c.integral += delta
	c.applySafetyNet(errorValue, dtHours)
	c.clampIntegral()
}

// applySafetyNet progressively decays an excessive integral of an untuned system
// while approaching the setpoint from within the cold tolerance band. The decay
// multiplier ramps from 1.0 at the tolerance edge to IntegralDecayMultiplier at the setpoint.
func (c *Controller) applySafetyNet(errorValue float64, dtHours float64) {
	tolerance := c.config.ColdTolerance
	if c.tuned || tolerance <= 0 {
		return
	}
	if errorValue <= 0 || errorValue > tolerance || c.integral <= c.config.SafetyNetThreshold {
		return
	}

	exponent := heating.GetProfile(c.config.HeatingType).SafetyNetExponent
	progress := 1 - errorValue/tolerance
	multiplier := 1 + (c.config.IntegralDecayMultiplier-1)*math.Pow(progress, exponent)
	if multiplier <= 1 {
		return
	}

	c.integral /= 1 + (multiplier-1)*dtHours
	c.markClamped(ClampReasonSafetyNet)
}

func (c *Controller) updateDerivative(dInput float64, dtHours float64) {
	if dtHours <= 0 {
		return
	}
	raw := -c.gains.Kd * dInput / dtHours
	alpha := c.config.DerivativeFilterAlpha
	c.d = finiteOr(alpha*raw+(1-alpha)*c.d, c.d)
}

func finiteOr(value float64, fallback float64) float64 {
	if util.IsFinite(value) {
		return value
	}
	return fallback
}

// applyToleranceClamp forces the output to zero once the measurement left the
// tolerance band on the side opposite to the current actuation direction
func (c *Controller) applyToleranceClamp(errorValue float64, output float64) float64 {
	beyond := false
	switch c.direction {
	case DirectionHeat:
		beyond = errorValue < -c.config.HotTolerance
	case DirectionCool:
		beyond = errorValue > c.config.ColdTolerance
	}
	if !beyond {
		return output
	}

	zero := util.Coerce(0, c.config.OutMin, c.config.OutMax)
	if output != zero {
		c.markClamped(ClampReasonTolerance)
	}
	return zero
}
