package configuration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/looplab/tarjan"
	"github.com/markusressel/heat2go/internal/coupling"
	"github.com/markusressel/heat2go/internal/heating"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/util"
	"golang.org/x/exp/slices"
)

func Validate(configPath string) error {
	return validateConfig(&CurrentConfig, configPath)
}

func validateConfig(config *Configuration, path string) error {
	err := validateSensors(config)
	if err != nil {
		return err
	}
	err = validateZones(config)
	if err != nil {
		return err
	}
	err = validateCoupling(config)
	if err != nil {
		return err
	}

	if containsCmdDefinitions(config) {
		if _, err := util.CheckFilePermissionsForExecution(path); err != nil {
			return fmt.Errorf("config file '%s' has invalid permissions: %s", path, err)
		}
	}

	return nil
}

func containsCmdDefinitions(config *Configuration) bool {
	for _, sensorConfig := range config.Sensors {
		if sensorConfig.Cmd != nil {
			return true
		}
	}
	for _, zoneConfig := range config.Zones {
		if zoneConfig.Actuator.Cmd != nil {
			return true
		}
	}
	return false
}

func validateSensors(config *Configuration) error {
	graph := make(map[interface{}][]interface{})
	var ids []string

	for _, sensorConfig := range config.Sensors {
		if len(sensorConfig.ID) <= 0 {
			return errors.New("sensor: missing id")
		}
		if slices.Contains(ids, sensorConfig.ID) {
			return fmt.Errorf("duplicate sensor id detected: %s", sensorConfig.ID)
		}
		ids = append(ids, sensorConfig.ID)

		subConfigs := 0
		if sensorConfig.File != nil {
			subConfigs++
		}
		if sensorConfig.Cmd != nil {
			subConfigs++
		}
		if sensorConfig.Function != nil {
			subConfigs++
		}
		if subConfigs > 1 {
			return fmt.Errorf("sensor %s: only one sensor type can be used per sensor definition block", sensorConfig.ID)
		}
		if subConfigs <= 0 {
			return fmt.Errorf("sensor %s: sub-configuration for sensor is missing, use one of: file | cmd | function", sensorConfig.ID)
		}

		if !isSensorConfigInUse(sensorConfig, config) {
			ui.Warning("Unused sensor configuration: %s", sensorConfig.ID)
		}

		if sensorConfig.File != nil && len(sensorConfig.File.Path) <= 0 {
			return fmt.Errorf("sensor %s: no file path provided", sensorConfig.ID)
		}

		if sensorConfig.Cmd != nil && len(sensorConfig.Cmd.Exec) <= 0 {
			return fmt.Errorf("sensor %s: executable is missing", sensorConfig.ID)
		}

		if sensorConfig.Function != nil {
			supportedTypes := []string{FunctionAverage, FunctionMinimum, FunctionMaximum, FunctionDelta}
			if !slices.Contains(supportedTypes, sensorConfig.Function.Type) {
				return fmt.Errorf("sensor %s: unsupported function type '%s', use one of: %s", sensorConfig.ID, sensorConfig.Function.Type, strings.Join(supportedTypes, " | "))
			}
			if len(sensorConfig.Function.Sensors) <= 0 {
				return fmt.Errorf("sensor %s: function sensor without input sensors", sensorConfig.ID)
			}

			var connections []interface{}
			for _, sensor := range sensorConfig.Function.Sensors {
				if sensor == sensorConfig.ID {
					return fmt.Errorf("sensor %s: a sensor cannot reference itself", sensorConfig.ID)
				}
				if !sensorIdExists(sensor, config) {
					return fmt.Errorf("sensor %s: no sensor definition with id '%s' found", sensorConfig.ID, sensor)
				}
				connections = append(connections, sensor)
			}
			graph[sensorConfig.ID] = connections
		}
	}

	return validateNoLoops(graph)
}

func isSensorConfigInUse(config SensorConfig, root *Configuration) bool {
	for _, sensorConfig := range root.Sensors {
		if sensorConfig.Function != nil && util.ContainsString(sensorConfig.Function.Sensors, config.ID) {
			return true
		}
	}
	for _, zoneConfig := range root.Zones {
		if slices.Contains([]string{zoneConfig.Sensor, zoneConfig.OutdoorSensor, zoneConfig.WindSensor, zoneConfig.SetpointSensor}, config.ID) {
			return true
		}
	}
	return false
}

func sensorIdExists(sensorId string, config *Configuration) bool {
	for _, sensor := range config.Sensors {
		if sensor.ID == sensorId {
			return true
		}
	}

	return false
}

func validateNoLoops(graph map[interface{}][]interface{}) error {
	output := tarjan.Connections(graph)
	for _, items := range output {
		if len(items) > 1 {
			return fmt.Errorf("you have created a sensor dependency cycle: %v", items)
		}
	}
	return nil
}

func validateZones(config *Configuration) error {
	var ids []string
	for _, zoneConfig := range config.Zones {
		if len(zoneConfig.ID) <= 0 {
			return errors.New("zone: missing id")
		}
		if slices.Contains(ids, zoneConfig.ID) {
			return fmt.Errorf("duplicate zone id detected: %s", zoneConfig.ID)
		}
		ids = append(ids, zoneConfig.ID)

		if len(zoneConfig.HeatingType) <= 0 {
			return fmt.Errorf("zone %s: missing heating type, use one of: %s", zoneConfig.ID, heatingTypeNames())
		}
		if !zoneConfig.HeatingType.IsValid() {
			return fmt.Errorf("zone %s: unknown heating type '%s', use one of: %s", zoneConfig.ID, zoneConfig.HeatingType, heatingTypeNames())
		}

		if len(zoneConfig.Sensor) <= 0 {
			return fmt.Errorf("zone %s: missing sensor", zoneConfig.ID)
		}
		for _, sensorId := range []string{zoneConfig.Sensor, zoneConfig.OutdoorSensor, zoneConfig.WindSensor, zoneConfig.SetpointSensor} {
			if len(sensorId) > 0 && !sensorIdExists(sensorId, config) {
				return fmt.Errorf("zone %s: no sensor definition with id '%s' found", zoneConfig.ID, sensorId)
			}
		}

		if !util.IsFinite(zoneConfig.Setpoint) {
			return fmt.Errorf("zone %s: invalid setpoint", zoneConfig.ID)
		}
		if len(zoneConfig.Mode) > 0 && zoneConfig.Mode != ModeAuto && zoneConfig.Mode != ModeOff {
			return fmt.Errorf("zone %s: unsupported mode '%s', use one of: %s | %s", zoneConfig.ID, zoneConfig.Mode, ModeAuto, ModeOff)
		}
		if len(zoneConfig.Direction) > 0 && zoneConfig.Direction != DirectionHeat && zoneConfig.Direction != DirectionCool {
			return fmt.Errorf("zone %s: unsupported direction '%s', use one of: %s | %s", zoneConfig.ID, zoneConfig.Direction, DirectionHeat, DirectionCool)
		}
		if zoneConfig.HeatingThreshold < 0 {
			return fmt.Errorf("zone %s: heating threshold must be >= 0", zoneConfig.ID)
		}

		err := validateActuator(zoneConfig)
		if err != nil {
			return err
		}
		err = validatePid(zoneConfig)
		if err != nil {
			return err
		}

		learning := zoneConfig.Learning
		if learning.MinCycles < 0 {
			return fmt.Errorf("zone %s: learning minCycles must be >= 0", zoneConfig.ID)
		}
		if learning.HysteresisBand < 0 || learning.HysteresisBand >= 1 {
			return fmt.Errorf("zone %s: learning hysteresisBand must be in [0, 1)", zoneConfig.ID)
		}
	}

	return nil
}

func validateActuator(zoneConfig ZoneConfig) error {
	actuator := zoneConfig.Actuator

	subConfigs := 0
	if actuator.File != nil {
		subConfigs++
	}
	if actuator.Cmd != nil {
		subConfigs++
	}
	if subConfigs > 1 {
		return fmt.Errorf("zone %s: only one actuator type can be used per zone", zoneConfig.ID)
	}
	if subConfigs <= 0 {
		return fmt.Errorf("zone %s: sub-configuration for actuator is missing, use one of: file | cmd", zoneConfig.ID)
	}

	if actuator.File != nil && len(actuator.File.Path) <= 0 {
		return fmt.Errorf("zone %s: no actuator file path provided", zoneConfig.ID)
	}
	if actuator.Cmd != nil && len(actuator.Cmd.Exec) <= 0 {
		return fmt.Errorf("zone %s: actuator executable is missing", zoneConfig.ID)
	}
	return nil
}

func validatePid(zoneConfig ZoneConfig) error {
	pidConfig := zoneConfig.Pid

	gains := []float64{pidConfig.Kp, pidConfig.Ki, pidConfig.Kd, pidConfig.Ke, pidConfig.KeWind}
	if !util.AllFinite(gains...) {
		return fmt.Errorf("zone %s: PID constants must be finite numbers", zoneConfig.ID)
	}
	for _, gain := range gains {
		if gain < 0 {
			return fmt.Errorf("zone %s: PID constants must be >= 0", zoneConfig.ID)
		}
	}
	if pidConfig.Kp == 0 && pidConfig.Ki == 0 && pidConfig.Kd == 0 {
		return fmt.Errorf("zone %s: all PID constants are zero", zoneConfig.ID)
	}

	if (pidConfig.OutMin != 0 || pidConfig.OutMax != 0) && pidConfig.OutMax <= pidConfig.OutMin {
		return fmt.Errorf("zone %s: outMax must be greater than outMin", zoneConfig.ID)
	}
	if pidConfig.ColdTolerance < 0 || pidConfig.HotTolerance < 0 {
		return fmt.Errorf("zone %s: tolerances must be >= 0", zoneConfig.ID)
	}
	if pidConfig.DerivativeFilterAlpha < 0 || pidConfig.DerivativeFilterAlpha > 1 {
		return fmt.Errorf("zone %s: derivativeFilterAlpha must be in [0, 1]", zoneConfig.ID)
	}
	if pidConfig.IntegralDecayMultiplier != 0 && pidConfig.IntegralDecayMultiplier < 1 {
		return fmt.Errorf("zone %s: integralDecayMultiplier must be >= 1", zoneConfig.ID)
	}
	if pidConfig.SamplingPeriod < 0 {
		return fmt.Errorf("zone %s: samplingPeriod must be >= 0", zoneConfig.ID)
	}
	return nil
}

func validateCoupling(config *Configuration) error {
	couplingConfig := config.Coupling
	if !couplingConfig.Enabled {
		return nil
	}

	if couplingConfig.FeedforwardGain < 0 || !util.IsFinite(couplingConfig.FeedforwardGain) {
		return errors.New("coupling: feedforwardGain must be >= 0")
	}
	if couplingConfig.MaxFeedforward < 0 || !util.IsFinite(couplingConfig.MaxFeedforward) {
		return errors.New("coupling: maxFeedforward must be >= 0")
	}

	topology := couplingConfig.Topology
	for _, zoneId := range util.SortedKeys(topology.Floors) {
		if !zoneIdExists(zoneId, config) {
			return fmt.Errorf("coupling: topology references unknown zone '%s'", zoneId)
		}
	}
	for _, group := range topology.OpenGroups {
		for _, zoneId := range group {
			if !zoneIdExists(zoneId, config) {
				return fmt.Errorf("coupling: open group references unknown zone '%s'", zoneId)
			}
		}
	}
	for _, zoneId := range topology.Stairwell {
		if !zoneIdExists(zoneId, config) {
			return fmt.Errorf("coupling: stairwell references unknown zone '%s'", zoneId)
		}
		if _, ok := topology.Floors[zoneId]; !ok {
			return fmt.Errorf("coupling: stairwell zone '%s' has no floor assigned", zoneId)
		}
	}

	for _, seed := range couplingConfig.Seeds {
		if !zoneIdExists(seed.Source, config) || !zoneIdExists(seed.Target, config) {
			return fmt.Errorf("coupling: seed %s->%s references an unknown zone", seed.Source, seed.Target)
		}
		if seed.Source == seed.Target {
			return fmt.Errorf("coupling: seed source and target must differ: %s", seed.Source)
		}
		if !util.IsFinite(seed.Value) || seed.Value <= 0 || seed.Value > coupling.MaxCoefficient {
			return fmt.Errorf("coupling: seed %s->%s must be in (0, %.2f]", seed.Source, seed.Target, coupling.MaxCoefficient)
		}
	}
	return nil
}

func zoneIdExists(zoneId string, config *Configuration) bool {
	for _, zone := range config.Zones {
		if zone.ID == zoneId {
			return true
		}
	}
	return false
}

func heatingTypeNames() string {
	var names []string
	for _, t := range heating.Types {
		names = append(names, t.String())
	}
	return strings.Join(names, " | ")
}
