package sensors

import (
	"fmt"
	"math"
	"sync"

	"github.com/markusressel/heat2go/internal/configuration"
	cmap "github.com/orcaman/concurrent-map/v2"
)

var (
	SensorMap = cmap.New[Sensor]()
)

type Sensor interface {
	GetId() string

	GetConfig() configuration.SensorConfig

	// GetValue returns the current value of this sensor
	GetValue() (float64, error)

	// GetMovingAvg returns the moving average of this sensor's value, NaN if there is none yet
	GetMovingAvg() float64
	SetMovingAvg(avg float64)
}

func NewSensor(config configuration.SensorConfig) (Sensor, error) {
	if config.File != nil {
		return &FileSensor{
			Config:    config,
			movingAvg: newMovingAvg(),
		}, nil
	}

	if config.Cmd != nil {
		return &CmdSensor{
			Config:    config,
			movingAvg: newMovingAvg(),
		}, nil
	}

	if config.Function != nil {
		return &FunctionSensor{
			Config:    config,
			movingAvg: newMovingAvg(),
		}, nil
	}

	return nil, fmt.Errorf("no matching sensor type for sensor: %s", config.ID)
}

// movingAvg is shared by all sensor types, it is written by the sensor
// monitor and read by the zone controllers.
type movingAvg struct {
	mu    *sync.RWMutex
	value float64
}

func newMovingAvg() movingAvg {
	return movingAvg{
		mu:    &sync.RWMutex{},
		value: math.NaN(),
	}
}

func (m *movingAvg) GetMovingAvg() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.value
}

func (m *movingAvg) SetMovingAvg(avg float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = avg
}
