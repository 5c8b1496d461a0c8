package sensors

import (
	"errors"

	"github.com/markusressel/heat2go/internal/configuration"
)

// VirtualSensor reads its value from a function, e.g. a simulated zone
type VirtualSensor struct {
	Name  string `json:"name"`
	Value func() float64
	movingAvg
}

func NewVirtualSensor(name string, value func() float64) *VirtualSensor {
	return &VirtualSensor{
		Name:      name,
		Value:     value,
		movingAvg: newMovingAvg(),
	}
}

func (sensor *VirtualSensor) GetId() string {
	return sensor.Name
}

func (sensor *VirtualSensor) GetConfig() configuration.SensorConfig {
	return configuration.SensorConfig{ID: sensor.Name}
}

func (sensor *VirtualSensor) GetValue() (float64, error) {
	if sensor.Value == nil {
		return 0, errors.New("virtual sensor without value source")
	}
	return sensor.Value(), nil
}
