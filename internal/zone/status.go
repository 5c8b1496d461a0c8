package zone

import (
	"time"

	"github.com/markusressel/heat2go/internal/heating"
	"github.com/markusressel/heat2go/internal/pid"
	"github.com/markusressel/heat2go/internal/rules"
	"github.com/markusressel/heat2go/internal/tuning"
	"github.com/markusressel/heat2go/internal/util"
)

// Status is a read-only view of the state of a zone
type Status struct {
	Id          string       `json:"id"`
	HeatingType heating.Type `json:"heatingType"`

	Temperature *float64 `json:"temperature,omitempty"`
	Setpoint    float64  `json:"setpoint"`
	Duty        float64  `json:"duty"`
	Heating     bool     `json:"heating"`
	Feedforward float64  `json:"feedforward"`

	Controller pid.Status `json:"controller"`

	HeatingRate *float64 `json:"heatingRate,omitempty"`
	CoolingRate *float64 `json:"coolingRate,omitempty"`

	ThermalDebt     float64       `json:"thermalDebt"`
	TimeBelowTarget time.Duration `json:"timeBelowTarget"`
	KiMultiplier    float64       `json:"kiMultiplier"`

	CyclesCompleted int                 `json:"cyclesCompleted"`
	LastCycle       *rules.CycleMetrics `json:"lastCycle,omitempty"`
	LastAdjustment  *time.Time          `json:"lastAdjustment,omitempty"`
	Validating      bool                `json:"validating"`
	ActiveRules     []rules.Rule        `json:"activeRules"`
	Adjustments     []tuning.Adjustment `json:"adjustments"`

	LastUpdate time.Time `json:"lastUpdate"`
}

func optional(value float64, ok bool) *float64 {
	if !ok || !util.IsFinite(value) {
		return nil
	}
	return &value
}

func (z *Zone) Status() Status {
	z.mu.RLock()
	defer z.mu.RUnlock()

	status := Status{
		Id:              z.GetId(),
		HeatingType:     z.config.HeatingType,
		Temperature:     optional(z.temperature, true),
		Setpoint:        z.setpoint,
		Duty:            z.duty,
		Heating:         z.heating,
		Feedforward:     z.feedforward,
		Controller:      z.controller.Status(),
		HeatingRate:     optional(z.rates.HeatingRate()),
		CoolingRate:     optional(z.rates.CoolingRate()),
		ThermalDebt:     z.undershoot.ThermalDebt(),
		TimeBelowTarget: z.undershoot.TimeBelowTarget(),
		KiMultiplier:    z.undershoot.CumulativeKiMultiplier(),
		CyclesCompleted: z.tuning.CyclesCompleted(),
		Validating:      z.tuning.IsValidating(),
		ActiveRules:     z.tuning.ActiveRules(),
		Adjustments:     z.tuning.History(),
		LastUpdate:      z.lastUpdate,
	}
	if z.lastCycle != nil {
		metrics := *z.lastCycle
		status.LastCycle = &metrics
	}
	if last := z.tuning.LastAdjustment(); !last.IsZero() {
		status.LastAdjustment = &last
	}
	return status
}
