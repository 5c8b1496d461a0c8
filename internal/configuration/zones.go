package configuration

import (
	"time"

	"github.com/markusressel/heat2go/internal/heating"
)

const (
	ModeAuto = "auto"
	ModeOff  = "off"

	DirectionHeat = "heat"
	DirectionCool = "cool"

	// DefaultHeatingThreshold is the duty (%) above which a zone counts as actively heating
	DefaultHeatingThreshold = 5.0
)

type ZoneConfig struct {
	ID          string       `json:"id"`
	HeatingType heating.Type `json:"heatingType"`

	// room temperature sensor
	Sensor string `json:"sensor"`
	// optional sensors used for disturbance compensation
	OutdoorSensor string `json:"outdoorSensor,omitempty"`
	WindSensor    string `json:"windSensor,omitempty"`

	Setpoint float64 `json:"setpoint"`
	// optional sensor providing the setpoint, overrides Setpoint while readable
	SetpointSensor string `json:"setpointSensor,omitempty"`

	Mode      string `json:"mode"`
	Direction string `json:"direction"`

	HeatingThreshold float64 `json:"heatingThreshold"`

	Actuator ActuatorConfig `json:"actuator"`
	Pid      PidConfig      `json:"pid"`
	Learning LearningConfig `json:"learning"`
}

type ActuatorConfig struct {
	File *FileActuatorConfig `json:"file,omitempty"`
	Cmd  *CmdActuatorConfig  `json:"cmd,omitempty"`
}

type FileActuatorConfig struct {
	Path string `json:"path"`
}

// CmdActuatorConfig executes a command to apply a duty value,
// every occurrence of "%value%" in Args is replaced with the duty.
type CmdActuatorConfig struct {
	Exec    string        `json:"exec"`
	Args    []string      `json:"args"`
	Timeout time.Duration `json:"timeout"`
}

type PidConfig struct {
	Kp     float64 `json:"kp"`
	Ki     float64 `json:"ki"`
	Kd     float64 `json:"kd"`
	Ke     float64 `json:"ke"`
	KeWind float64 `json:"keWind"`

	OutMin float64 `json:"outMin"`
	OutMax float64 `json:"outMax"`

	SamplingPeriod time.Duration `json:"samplingPeriod"`

	ColdTolerance float64 `json:"coldTolerance"`
	HotTolerance  float64 `json:"hotTolerance"`

	OutdoorLagHours         float64 `json:"outdoorLagHours"`
	DerivativeFilterAlpha   float64 `json:"derivativeFilterAlpha"`
	IntegralDecayMultiplier float64 `json:"integralDecayMultiplier"`
	IntegralDecayTauHours   float64 `json:"integralDecayTauHours"`
	SafetyNetThreshold      float64 `json:"safetyNetThreshold"`
}

type LearningConfig struct {
	// keeps the configured gains fixed
	Disabled bool `json:"disabled"`
	// number of cycles averaged before the rule engine is consulted
	MinCycles int `json:"minCycles"`
	// minimum time between two rule based gain adjustments
	MinInterval    time.Duration `json:"minInterval"`
	HysteresisBand float64       `json:"hysteresisBand"`
}
