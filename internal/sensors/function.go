package sensors

import (
	"fmt"
	"math"

	"github.com/markusressel/heat2go/internal/configuration"
	"github.com/markusressel/heat2go/internal/util"
)

// FunctionSensor combines the moving averages of other sensors
type FunctionSensor struct {
	Config configuration.SensorConfig `json:"configuration"`
	movingAvg
}

func (sensor *FunctionSensor) GetId() string {
	return sensor.Config.ID
}

func (sensor *FunctionSensor) GetConfig() configuration.SensorConfig {
	return sensor.Config
}

func (sensor *FunctionSensor) GetValue() (float64, error) {
	var values []float64
	for _, id := range sensor.Config.Function.Sensors {
		input, ok := SensorMap.Get(id)
		if !ok {
			return 0, fmt.Errorf("sensor %s: input sensor '%s' not found", sensor.GetId(), id)
		}
		value := input.GetMovingAvg()
		if util.IsFinite(value) {
			values = append(values, value)
		}
	}
	if len(values) <= 0 {
		return 0, fmt.Errorf("sensor %s: no input sensor has a value yet", sensor.GetId())
	}

	switch sensor.Config.Function.Type {
	case configuration.FunctionMinimum:
		return minimum(values), nil
	case configuration.FunctionMaximum:
		return maximum(values), nil
	case configuration.FunctionDelta:
		return maximum(values) - minimum(values), nil
	case configuration.FunctionAverage:
		return util.Avg(values), nil
	default:
		return 0, fmt.Errorf("sensor %s: unsupported function type '%s'", sensor.GetId(), sensor.Config.Function.Type)
	}
}

func minimum(values []float64) float64 {
	result := math.Inf(1)
	for _, value := range values {
		result = math.Min(result, value)
	}
	return result
}

func maximum(values []float64) float64 {
	result := math.Inf(-1)
	for _, value := range values {
		result = math.Max(result, value)
	}
	return result
}
