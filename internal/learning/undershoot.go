package learning

import (
	"math"
	"time"

	"github.com/markusressel/heat2go/internal/heating"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/util"
)

const (
	// MaxThermalDebt caps the accumulated thermal debt (°C·h)
	MaxThermalDebt = 10.0
	// MaxKiMultiplier caps the cumulative Ki multiplier of all adjustments
	MaxKiMultiplier = 2.0

	minKiStep = 1.0
	maxKiStep = 1.5
)

// UndershootDetector watches a zone that persistently stays below its setpoint
// before the first learning cycle completed and recommends increasing Ki.
type UndershootDetector struct {
	heatingType heating.Type
	clock       func() time.Time

	timeBelowTarget        time.Duration
	thermalDebt            float64
	cumulativeKiMultiplier float64
	lastAdjustment         time.Time
}

// NewUndershootDetector creates a detector, clock may be nil to use the wall clock
func NewUndershootDetector(heatingType heating.Type, clock func() time.Time) *UndershootDetector {
	if clock == nil {
		clock = time.Now
	}
	return &UndershootDetector{
		heatingType:            heatingType,
		clock:                  clock,
		cumulativeKiMultiplier: 1.0,
	}
}

// Update accumulates time and thermal debt while the temperature is further than
// coldTolerance below the setpoint. Both reset as soon as the setpoint is reached,
// within the tolerance band they are held.
func (d *UndershootDetector) Update(temperature float64, setpoint float64, dt time.Duration, coldTolerance float64) {
	if !util.AllFinite(temperature, setpoint, coldTolerance) || dt <= 0 {
		ui.Warning("Ignoring invalid undershoot update (temperature: %v, setpoint: %v, dt: %v)", temperature, setpoint, dt)
		return
	}

	errorValue := setpoint - temperature
	switch {
	case temperature >= setpoint:
		d.timeBelowTarget = 0
		d.thermalDebt = 0
	case errorValue > coldTolerance:
		d.timeBelowTarget += dt
		d.thermalDebt = math.Min(d.thermalDebt+errorValue*dt.Hours(), MaxThermalDebt)
	}
}

// ShouldAdjustKi returns true if Ki should be increased. This is only the case
// before the first learning cycle completed, outside the cooldown period and
// while the cumulative multiplier is below its cap.
func (d *UndershootDetector) ShouldAdjustKi(cyclesCompleted int) bool {
	if cyclesCompleted > 0 {
		return false
	}
	if d.cumulativeKiMultiplier >= MaxKiMultiplier {
		return false
	}
	profile := heating.GetProfile(d.heatingType)
	if !d.lastAdjustment.IsZero() && d.clock().Sub(d.lastAdjustment) < profile.UndershootCooldown {
		return false
	}
	return d.timeBelowTarget >= profile.UndershootTime || d.thermalDebt >= profile.UndershootDebt
}

// NextKiStep returns the Ki multiplier the next adjustment would apply without recording it
func (d *UndershootDetector) NextKiStep() float64 {
	step, _ := d.kiStep()
	return step
}

func (d *UndershootDetector) kiStep() (step float64, capped bool) {
	step = util.Coerce(heating.GetProfile(d.heatingType).UndershootKiStep, minKiStep, maxKiStep)
	if d.cumulativeKiMultiplier*step >= MaxKiMultiplier {
		return math.Max(MaxKiMultiplier/d.cumulativeKiMultiplier, 1.0), true
	}
	return step, false
}

// ApplyAdjustment records an adjustment and returns the Ki multiplier to apply.
// Callers only record an adjustment once the gains actually changed.
func (d *UndershootDetector) ApplyAdjustment() float64 {
	step, capped := d.kiStep()
	if capped {
		d.cumulativeKiMultiplier = MaxKiMultiplier
	} else {
		d.cumulativeKiMultiplier *= step
	}
	d.thermalDebt /= 2
	d.lastAdjustment = d.clock()

	ui.Info("Undershoot: increasing Ki by %.2fx (cumulative: %.2fx)", step, d.cumulativeKiMultiplier)
	return step
}

func (d *UndershootDetector) TimeBelowTarget() time.Duration {
	return d.timeBelowTarget
}

func (d *UndershootDetector) ThermalDebt() float64 {
	return d.thermalDebt
}

func (d *UndershootDetector) CumulativeKiMultiplier() float64 {
	return d.cumulativeKiMultiplier
}

func (d *UndershootDetector) LastAdjustment() time.Time {
	return d.lastAdjustment
}

type undershootState struct {
	TimeBelowTarget        float64    `mapstructure:"time_below_target"`
	ThermalDebt            float64    `mapstructure:"thermal_debt"`
	CumulativeKiMultiplier float64    `mapstructure:"cumulative_ki_multiplier"`
	LastAdjustmentTime     *time.Time `mapstructure:"last_adjustment_time"`
}

func (d *UndershootDetector) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"time_below_target":        d.timeBelowTarget.Seconds(),
		"thermal_debt":             d.thermalDebt,
		"cumulative_ki_multiplier": d.cumulativeKiMultiplier,
		"last_adjustment_time":     nil,
	}
	if !d.lastAdjustment.IsZero() {
		result["last_adjustment_time"] = util.FormatTime(d.lastAdjustment)
	}
	return result
}

func (d *UndershootDetector) FromMap(data map[string]interface{}) error {
	var state undershootState
	if err := util.DecodeMap(data, &state); err != nil {
		return err
	}

	if util.IsFinite(state.TimeBelowTarget) && state.TimeBelowTarget > 0 {
		d.timeBelowTarget = time.Duration(state.TimeBelowTarget * float64(time.Second))
	} else {
		d.timeBelowTarget = 0
	}
	d.thermalDebt = util.Coerce(state.ThermalDebt, 0, MaxThermalDebt)
	if !util.IsFinite(state.ThermalDebt) {
		d.thermalDebt = 0
	}
	d.cumulativeKiMultiplier = util.Coerce(state.CumulativeKiMultiplier, 1.0, MaxKiMultiplier)
	if !util.IsFinite(state.CumulativeKiMultiplier) {
		d.cumulativeKiMultiplier = 1.0
	}
	d.lastAdjustment = time.Time{}
	if state.LastAdjustmentTime != nil {
		d.lastAdjustment = *state.LastAdjustmentTime
	}
	return nil
}
