package pid

import (
	"time"

	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/util"
)

// Status is a read-only view of the controller state
type Status struct {
	Mode          Mode        `json:"mode"`
	Direction     Direction   `json:"direction"`
	Gains         Gains       `json:"gains"`
	Output        float64     `json:"output"`
	P             float64     `json:"p"`
	I             float64     `json:"i"`
	D             float64     `json:"d"`
	E             float64     `json:"e"`
	F             float64     `json:"f"`
	LaggedOutdoor *float64    `json:"laggedOutdoor,omitempty"`
	Tuned         bool        `json:"tuned"`
	WasClamped    bool        `json:"wasClamped"`
	ClampReason   ClampReason `json:"clampReason,omitempty"`
}

func (c *Controller) Status() Status {
	status := Status{
		Mode:        c.mode,
		Direction:   c.direction,
		Gains:       c.gains,
		Output:      c.output,
		P:           c.p,
		I:           c.integral,
		D:           c.d,
		E:           c.e,
		F:           c.f,
		Tuned:       c.tuned,
		WasClamped:  c.wasClamped,
		ClampReason: c.clampReason,
	}
	if c.hasOutdoor {
		lagged := c.laggedOutdoor
		status.LaggedOutdoor = &lagged
	}
	return status
}

// persistedState is the part of the controller state that survives a restart
type persistedState struct {
	Kp            float64   `mapstructure:"kp"`
	Ki            float64   `mapstructure:"ki"`
	Kd            float64   `mapstructure:"kd"`
	Ke            float64   `mapstructure:"ke"`
	KeWind        float64   `mapstructure:"ke_wind"`
	Integral      float64   `mapstructure:"integral"`
	Tuned         bool      `mapstructure:"tuned"`
	LaggedOutdoor *float64  `mapstructure:"lagged_outdoor"`
	LastUpdated   time.Time `mapstructure:"last_updated"`
}

// ToMap serializes the persistent controller state into a map of primitives
func (c *Controller) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"kp":           c.gains.Kp,
		"ki":           c.gains.Ki,
		"kd":           c.gains.Kd,
		"ke":           c.gains.Ke,
		"ke_wind":      c.gains.KeWind,
		"integral":     c.integral,
		"tuned":        c.tuned,
		"last_updated": util.FormatTime(c.lastTime),
	}
	if c.hasOutdoor {
		result["lagged_outdoor"] = c.laggedOutdoor
	}
	return result
}

// FromMap restores state previously created by ToMap.
// Gains and integral are restored, sample history is not.
func (c *Controller) FromMap(data map[string]interface{}) error {
	var state persistedState
	if err := util.DecodeMap(data, &state); err != nil {
		return err
	}

	gains := sanitizeGains(Gains{
		Kp:     state.Kp,
		Ki:     state.Ki,
		Kd:     state.Kd,
		Ke:     state.Ke,
		KeWind: state.KeWind,
	}, c.gains)
	c.gains = gains
	c.tuned = state.Tuned
	// clamped against the live E and F once integration resumes
	c.integral = 0
	if util.IsFinite(state.Integral) {
		c.integral = state.Integral
	}
	c.lastTime = state.LastUpdated

	if state.LaggedOutdoor != nil && util.IsFinite(*state.LaggedOutdoor) {
		c.hasOutdoor = true
		c.laggedOutdoor = *state.LaggedOutdoor
		c.lastOutdoorTime = state.LastUpdated
	}

	ui.Debug("Restored controller state (integral: %.3f, gains: %+v)", c.integral, c.gains)
	return nil
}
