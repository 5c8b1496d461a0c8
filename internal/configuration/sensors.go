package configuration

import "time"

type SensorConfig struct {
	ID       string                `json:"id"`
	File     *FileSensorConfig     `json:"file,omitempty"`
	Cmd      *CmdSensorConfig      `json:"cmd,omitempty"`
	Function *FunctionSensorConfig `json:"function,omitempty"`
}

type FileSensorConfig struct {
	Path string `json:"path"`
	// factor applied to the raw file value, e.g. 0.001 for millidegrees
	Scale float64 `json:"scale"`
}

type CmdSensorConfig struct {
	Exec    string        `json:"exec"`
	Args    []string      `json:"args"`
	Timeout time.Duration `json:"timeout"`
}

const (
	FunctionAverage = "average"
	FunctionMinimum = "minimum"
	FunctionMaximum = "maximum"
	// FunctionDelta is the difference between the largest and the smallest value
	FunctionDelta = "delta"
)

// FunctionSensorConfig combines the values of other sensors
type FunctionSensorConfig struct {
	Type    string   `json:"type"`
	Sensors []string `json:"sensors"`
}
