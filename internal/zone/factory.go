package zone

import (
	"fmt"

	"github.com/markusressel/heat2go/internal/actuators"
	"github.com/markusressel/heat2go/internal/configuration"
	"github.com/markusressel/heat2go/internal/coupling"
	"github.com/markusressel/heat2go/internal/sensors"
)

// NewZoneFromConfig creates a zone, its sensors are looked up in sensors.SensorMap
// and its actuator is created from the zone configuration.
func NewZoneFromConfig(config configuration.ZoneConfig, couplingConfig configuration.CouplingConfig, learner *coupling.Learner) (*Zone, error) {
	lookup := func(id string, optional bool) (sensors.Sensor, error) {
		if len(id) <= 0 && optional {
			return nil, nil
		}
		sensor, ok := sensors.SensorMap.Get(id)
		if !ok {
			return nil, fmt.Errorf("zone %s: sensor '%s' not found", config.ID, id)
		}
		return sensor, nil
	}

	sensor, err := lookup(config.Sensor, false)
	if err != nil {
		return nil, err
	}
	outdoor, err := lookup(config.OutdoorSensor, true)
	if err != nil {
		return nil, err
	}
	wind, err := lookup(config.WindSensor, true)
	if err != nil {
		return nil, err
	}
	setpoint, err := lookup(config.SetpointSensor, true)
	if err != nil {
		return nil, err
	}

	actuator, err := actuators.NewActuator(config.ID, config.Actuator)
	if err != nil {
		return nil, err
	}

	if !couplingConfig.Enabled {
		learner = nil
	}

	return NewZone(config, couplingConfig, Dependencies{
		Sensor:         sensor,
		OutdoorSensor:  outdoor,
		WindSensor:     wind,
		SetpointSensor: setpoint,
		Actuator:       actuator,
		Coupling:       learner,
		Zones:          &ZoneMap,
	}), nil
}
