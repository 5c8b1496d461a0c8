package zone

import (
	"fmt"

	"github.com/markusressel/heat2go/internal/rules"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/util"
)

type cycleState struct {
	Overshoot    float64 `mapstructure:"overshoot"`
	Undershoot   float64 `mapstructure:"undershoot"`
	Oscillations int     `mapstructure:"oscillations"`
	RiseTime     float64 `mapstructure:"rise_time"`
	SettlingTime float64 `mapstructure:"settling_time"`
}

type zoneState struct {
	HeatingType string                 `mapstructure:"heating_type"`
	Controller  map[string]interface{} `mapstructure:"controller"`
	Rates       map[string]interface{} `mapstructure:"rates"`
	Undershoot  map[string]interface{} `mapstructure:"undershoot"`
	Tuning      map[string]interface{} `mapstructure:"tuning"`
	LastCycle   *cycleState            `mapstructure:"last_cycle"`
}

// ToMap serializes everything the zone learned, so it survives a restart
func (z *Zone) ToMap() map[string]interface{} {
	z.mu.RLock()
	defer z.mu.RUnlock()

	result := map[string]interface{}{
		"heating_type": z.config.HeatingType.String(),
		"setpoint":     z.setpoint,
		"controller":   z.controller.ToMap(),
		"rates":        z.rates.ToMap(),
		"undershoot":   z.undershoot.ToMap(),
		"tuning":       z.tuning.ToMap(),
		"last_cycle":   nil,
		"saved_at":     util.FormatTime(z.clock()),
	}
	if z.lastCycle != nil {
		result["last_cycle"] = map[string]interface{}{
			"overshoot":     z.lastCycle.Overshoot,
			"undershoot":    z.lastCycle.Undershoot,
			"oscillations":  z.lastCycle.Oscillations,
			"rise_time":     z.lastCycle.RiseTime,
			"settling_time": z.lastCycle.SettlingTime,
		}
	}
	return result
}

// FromMap restores a snapshot created by ToMap. State learned for a different
// heating type is rejected, a malformed part is skipped with a warning.
// The configured setpoint is kept.
func (z *Zone) FromMap(data map[string]interface{}) error {
	var state zoneState
	if err := util.DecodeMap(data, &state); err != nil {
		return err
	}
	if state.HeatingType != z.config.HeatingType.String() {
		return fmt.Errorf("zone %s: stored state was learned for heating type '%s', but zone is configured as '%s'",
			z.GetId(), state.HeatingType, z.config.HeatingType)
	}

	z.mu.Lock()
	defer z.mu.Unlock()

	restore := func(name string, part map[string]interface{}, fromMap func(map[string]interface{}) error) {
		if part == nil {
			return
		}
		if err := fromMap(part); err != nil {
			ui.Warning("Zone %s: skipping malformed %s state: %v", z.GetId(), name, err)
		}
	}
	restore("controller", state.Controller, z.controller.FromMap)
	restore("heating rate", state.Rates, z.rates.FromMap)
	restore("undershoot", state.Undershoot, z.undershoot.FromMap)
	restore("tuning", state.Tuning, z.tuning.FromMap)

	z.lastCycle = nil
	z.lastOvershoot = nil
	if state.LastCycle != nil {
		metrics := rules.CycleMetrics{
			Overshoot:    state.LastCycle.Overshoot,
			Undershoot:   state.LastCycle.Undershoot,
			Oscillations: state.LastCycle.Oscillations,
			RiseTime:     state.LastCycle.RiseTime,
			SettlingTime: state.LastCycle.SettlingTime,
		}.Sanitized()
		z.lastCycle = &metrics
		overshoot := metrics.Overshoot
		z.lastOvershoot = &overshoot
	}

	ui.Info("Zone %s: restored learned state (gains: Kp %.3f, Ki %.4f, Kd %.3f, cycles: %d)",
		z.GetId(), z.controller.Gains().Kp, z.controller.Gains().Ki, z.controller.Gains().Kd, z.tuning.CyclesCompleted())
	return nil
}
