package pid

import (
	"math"
	"time"

	"github.com/markusressel/heat2go/internal/heating"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/util"
)

type Mode string

const (
	ModeAuto Mode = "auto"
	ModeOff  Mode = "off"
)

// Direction is the kind of actuation the zone is currently doing.
type Direction string

const (
	DirectionHeat Direction = "heat"
	DirectionCool Direction = "cool"
)

type ClampReason string

const (
	ClampReasonNone      ClampReason = ""
	ClampReasonTolerance ClampReason = "tolerance"
	ClampReasonSafetyNet ClampReason = "safety_net"
)

const (
	// MinDerivativeInterval is the shortest sample interval that updates the integral and derivative terms
	MinDerivativeInterval = 5 * time.Second
	// BumplessGuard is the maximum setpoint/error change (°C) that still allows a bumpless transfer
	BumplessGuard = 2.0

	DefaultOutdoorLagHours         = 4.0
	DefaultDerivativeFilterAlpha   = 0.25
	DefaultIntegralDecayMultiplier = 1.5
	DefaultSafetyNetThreshold      = 35.0
)

// Gains of the controller.
// Kp is in %/°C, Ki in %/(°C·h), Kd in %·h/°C, Ke in %/°C and KeWind in %/(°C·m/s).
type Gains struct {
	Kp     float64 `json:"kp"`
	Ki     float64 `json:"ki"`
	Kd     float64 `json:"kd"`
	Ke     float64 `json:"ke"`
	KeWind float64 `json:"keWind"`
}

type Config struct {
	Gains

	OutMin float64
	OutMax float64

	// minimum time between two accepted samples, 0 accepts every sample
	SamplingPeriod time.Duration

	ColdTolerance float64
	HotTolerance  float64

	// time constant of the outdoor temperature lag filter
	OutdoorLagHours float64
	// weight of the newest raw derivative in (0..1], 1 disables filtering
	DerivativeFilterAlpha float64
	// multiplier (>= 1.0) applied to integral changes opposing the integral sign
	IntegralDecayMultiplier float64
	// optional exponential integral decay during overhang, 0 disables it
	IntegralDecayTauHours float64
	// integral value above which the safety net engages for untuned systems
	SafetyNetThreshold float64

	HeatingType heating.Type
	Direction   Direction
}

// Sample is a single set of inputs for one controller tick
type Sample struct {
	Measured float64
	Target   float64
	Time     time.Time
	// optional, overrides the stored time of the previous sample
	PreviousTime time.Time
	Outdoor      *float64
	// wind speed in m/s
	Wind *float64
}

type bumplessSnapshot struct {
	output float64
	target float64
	error  float64
}

// Controller is a PID controller with proportional-on-measurement,
// outdoor and wind compensation and feedforward.
//
// A Controller is not safe for concurrent use, each zone owns exactly one.
type Controller struct {
	config Config
	gains  Gains

	mode      Mode
	direction Direction
	tuned     bool

	integral float64
	p        float64
	d        float64
	e        float64
	f        float64
	output   float64

	// output before the tolerance clamp, drives anti-windup
	demand float64

	hasLast        bool
	lastInput      float64
	lastTime       time.Time
	lastOutputTime time.Time
	lastTarget     float64
	lastError      float64

	hasOutdoor      bool
	laggedOutdoor   float64
	lastOutdoorTime time.Time

	// taken when leaving AUTO, armed when returning to it
	offSnapshot *bumplessSnapshot
	bumpless    *bumplessSnapshot

	wasClamped  bool
	clampReason ClampReason
}

func NewController(config Config) *Controller {
	config = config.withDefaults()
	return &Controller{
		config:    config,
		gains:     config.Gains,
		mode:      ModeAuto,
		direction: config.Direction,
		output:    util.Coerce(0, config.OutMin, config.OutMax),
	}
}

func (c Config) withDefaults() Config {
	if c.OutMax <= c.OutMin {
		if c.OutMax != 0 || c.OutMin != 0 {
			ui.Warning("Invalid output range [%.1f, %.1f], falling back to [0, 100]", c.OutMin, c.OutMax)
		}
		c.OutMin = 0
		c.OutMax = 100
	}
	if c.OutdoorLagHours < 0 || !util.IsFinite(c.OutdoorLagHours) {
		c.OutdoorLagHours = DefaultOutdoorLagHours
	}
	if c.DerivativeFilterAlpha <= 0 || c.DerivativeFilterAlpha > 1 {
		c.DerivativeFilterAlpha = DefaultDerivativeFilterAlpha
	}
	if c.IntegralDecayMultiplier < 1.0 || !util.IsFinite(c.IntegralDecayMultiplier) {
		c.IntegralDecayMultiplier = DefaultIntegralDecayMultiplier
	}
	if c.IntegralDecayTauHours < 0 {
		c.IntegralDecayTauHours = 0
	}
	if c.SafetyNetThreshold <= 0 {
		c.SafetyNetThreshold = DefaultSafetyNetThreshold
	}
	if c.ColdTolerance < 0 {
		c.ColdTolerance = 0
	}
	if c.HotTolerance < 0 {
		c.HotTolerance = 0
	}
	if c.Direction != DirectionCool {
		c.Direction = DirectionHeat
	}
	if !c.HeatingType.IsValid() {
		c.HeatingType = heating.DefaultType
	}
	c.Gains = sanitizeGains(c.Gains, Gains{})
	return c
}

// sanitizeGains replaces all non-finite values of candidate with the respective value of fallback
func sanitizeGains(candidate Gains, fallback Gains) Gains {
	pick := func(value, fallback float64) float64 {
		if util.IsFinite(value) {
			return value
		}
		return fallback
	}
	return Gains{
		Kp:     pick(candidate.Kp, fallback.Kp),
		Ki:     pick(candidate.Ki, fallback.Ki),
		Kd:     pick(candidate.Kd, fallback.Kd),
		Ke:     pick(candidate.Ke, fallback.Ke),
		KeWind: pick(candidate.KeWind, fallback.KeWind),
	}
}

// SetGains applies new gains. Non-finite values are ignored and keep the current gain.
// Any effective change clears the integral, since it was accumulated under the old tuning.
func (c *Controller) SetGains(gains Gains) {
	updated := sanitizeGains(gains, c.gains)
	if updated == c.gains {
		return
	}
	c.gains = updated
	c.ClearIntegral()
}

func (c *Controller) Gains() Gains {
	return c.gains
}

// SetMode switches between AUTO and OFF. Returning to AUTO arms a bumpless transfer.
func (c *Controller) SetMode(mode Mode) {
	if mode != ModeAuto && mode != ModeOff {
		ui.Warning("Ignoring unknown controller mode '%s'", mode)
		return
	}
	if mode == c.mode {
		return
	}

	if c.mode == ModeAuto && mode == ModeOff {
		if c.hasLast {
			c.offSnapshot = &bumplessSnapshot{
				output: c.output,
				target: c.lastTarget,
				error:  c.lastError,
			}
		}
	} else if c.mode == ModeOff && mode == ModeAuto {
		c.bumpless = c.offSnapshot
		c.offSnapshot = nil
	}
	c.mode = mode
}

func (c *Controller) Mode() Mode {
	return c.mode
}

func (c *Controller) SetDirection(direction Direction) {
	if direction != DirectionHeat && direction != DirectionCool {
		ui.Warning("Ignoring unknown controller direction '%s'", direction)
		return
	}
	c.direction = direction
}

func (c *Controller) Direction() Direction {
	return c.direction
}

// SetFeedforward sets the feedforward term F, which is subtracted from the output.
func (c *Controller) SetFeedforward(value float64) {
	if !util.IsFinite(value) {
		ui.Warning("Ignoring non-finite feedforward value: %v", value)
		return
	}
	c.f = value
}

// SetTuned marks the controller gains as learned, which disables the safety-net integral decay.
func (c *Controller) SetTuned(tuned bool) {
	c.tuned = tuned
}

func (c *Controller) IsTuned() bool {
	return c.tuned
}

// SetIntegral restores an integral value, e.g. from persistence
func (c *Controller) SetIntegral(value float64) {
	if !util.IsFinite(value) {
		return
	}
	c.integral = value
	c.clampIntegral()
}

func (c *Controller) ClearIntegral() {
	c.integral = 0
}

// Clear resets all runtime state, the next sample is treated as the first one.
func (c *Controller) Clear() {
	c.integral = 0
	c.p = 0
	c.d = 0
	c.e = 0
	c.hasLast = false
	c.lastTime = time.Time{}
	c.lastOutputTime = time.Time{}
	c.hasOutdoor = false
	c.lastOutdoorTime = time.Time{}
	c.offSnapshot = nil
	c.bumpless = nil
}

// ResetClampState clears the sticky clamp flag. The host calls this at the start of a cycle.
func (c *Controller) ResetClampState() {
	c.wasClamped = false
	c.clampReason = ClampReasonNone
}

func (c *Controller) WasClamped() bool {
	return c.wasClamped
}

func (c *Controller) ClampReason() ClampReason {
	return c.clampReason
}

func (c *Controller) P() float64 {
	return c.p
}

func (c *Controller) I() float64 {
	return c.integral
}

func (c *Controller) D() float64 {
	return c.d
}

func (c *Controller) E() float64 {
	return c.e
}

func (c *Controller) F() float64 {
	return c.f
}

func (c *Controller) Integral() float64 {
	return c.integral
}

func (c *Controller) Output() float64 {
	return c.output
}

func (c *Controller) LaggedOutdoor() (float64, bool) {
	return c.laggedOutdoor, c.hasOutdoor
}

func (c *Controller) Config() Config {
	return c.config
}

func (c *Controller) integralLimits() (float64, float64) {
	return c.config.OutMin - c.e - c.f, c.config.OutMax - c.e - c.f
}

func (c *Controller) clampIntegral() {
	lower, upper := c.integralLimits()
	if lower > upper {
		lower, upper = upper, lower
	}
	c.integral = math.Max(lower, math.Min(upper, c.integral))
	if !util.IsFinite(c.integral) {
		c.integral = 0
	}
}

func (c *Controller) markClamped(reason ClampReason) {
	c.wasClamped = true
	c.clampReason = reason
}
