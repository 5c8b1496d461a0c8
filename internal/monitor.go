package internal

import (
	"context"
	"time"

	"github.com/asecurityteam/rolling"
	"github.com/markusressel/heat2go/internal/sensors"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/util"
)

type SensorMonitor interface {
	Run(ctx context.Context) error
}

type sensorMonitor struct {
	sensor      sensors.Sensor
	pollingRate time.Duration
	windowSize  int
	window      *rolling.PointPolicy
	filled      bool
}

func NewSensorMonitor(sensor sensors.Sensor, pollingRate time.Duration, windowSize int) SensorMonitor {
	if windowSize <= 0 {
		windowSize = 1
	}
	return &sensorMonitor{
		sensor:      sensor,
		pollingRate: pollingRate,
		windowSize:  windowSize,
		window:      util.CreateRollingWindow(windowSize),
	}
}

func (s *sensorMonitor) Run(ctx context.Context) error {
	s.update()

	ticker := time.NewTicker(s.pollingRate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.update()
		}
	}
}

// update reads the current value of the sensor and appends it to the moving window.
// A failed read keeps the last average.
func (s *sensorMonitor) update() {
	value, err := s.sensor.GetValue()
	if err != nil {
		ui.Warning("Error reading sensor %s: %v", s.sensor.GetId(), err)
		return
	}
	if !util.IsFinite(value) {
		ui.Warning("Sensor %s returned a non-finite value: %v", s.sensor.GetId(), value)
		return
	}

	if !s.filled {
		// the first value fills the window, so the average is meaningful right away
		util.FillWindow(s.window, s.windowSize, value)
		s.filled = true
	} else {
		s.window.Append(value)
	}
	s.sensor.SetMovingAvg(util.GetWindowAvg(s.window))
}
