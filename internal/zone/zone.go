package zone

import (
	"math"
	"sync"
	"time"

	"github.com/markusressel/heat2go/internal/actuators"
	"github.com/markusressel/heat2go/internal/configuration"
	"github.com/markusressel/heat2go/internal/coupling"
	"github.com/markusressel/heat2go/internal/cycle"
	"github.com/markusressel/heat2go/internal/heating"
	"github.com/markusressel/heat2go/internal/learning"
	"github.com/markusressel/heat2go/internal/pid"
	"github.com/markusressel/heat2go/internal/rules"
	"github.com/markusressel/heat2go/internal/sensors"
	"github.com/markusressel/heat2go/internal/tuning"
	"github.com/markusressel/heat2go/internal/ui"
	cmap "github.com/orcaman/concurrent-map/v2"
)

var (
	ZoneMap = cmap.New[*Zone]()
)

// Dependencies of a zone. Optional sensors may be nil, Zones contains all zones
// of the building, including this one.
type Dependencies struct {
	Sensor         sensors.Sensor
	OutdoorSensor  sensors.Sensor
	WindSensor     sensors.Sensor
	SetpointSensor sensors.Sensor

	Actuator actuators.Actuator

	// shared by all zones, nil disables coupling compensation
	Coupling *coupling.Learner
	Zones    *cmap.ConcurrentMap[string, *Zone]

	// nil uses the wall clock
	Clock func() time.Time
}

// Zone controls the temperature of a single room (or a group of rooms sharing
// one actuator). Update is expected to be called by a single goroutine, all
// getters may be called concurrently.
type Zone struct {
	mu sync.RWMutex

	config         configuration.ZoneConfig
	couplingConfig configuration.CouplingConfig
	deps           Dependencies
	clock          func() time.Time

	controller *pid.Controller
	rates      *learning.RateLearner
	undershoot *learning.UndershootDetector
	tuning     *tuning.Manager
	cycles     *cycle.Tracker

	setpoint    float64
	temperature float64
	duty        float64
	feedforward float64
	heating     bool

	lastUpdate    time.Time
	lastCycle     *rules.CycleMetrics
	lastOvershoot *float64
}

func NewZone(config configuration.ZoneConfig, couplingConfig configuration.CouplingConfig, deps Dependencies) *Zone {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	if !config.HeatingType.IsValid() {
		ui.Warning("Zone %s: unknown heating type '%s', using %s", config.ID, config.HeatingType, heating.DefaultType)
		config.HeatingType = heating.DefaultType
	}
	if config.HeatingThreshold <= 0 {
		config.HeatingThreshold = configuration.DefaultHeatingThreshold
	}
	if couplingConfig.FeedforwardGain <= 0 {
		couplingConfig.FeedforwardGain = configuration.DefaultFeedforwardGain
	}
	if couplingConfig.MaxFeedforward <= 0 {
		couplingConfig.MaxFeedforward = configuration.DefaultMaxFeedforward
	}

	pidConfig := createPidConfig(config)
	controller := pid.NewController(pidConfig)
	if config.Mode == configuration.ModeOff {
		controller.SetMode(pid.ModeOff)
	}

	return &Zone{
		config:         config,
		couplingConfig: couplingConfig,
		deps:           deps,
		clock:          clock,
		controller:     controller,
		rates:          learning.NewRateLearner(config.HeatingType),
		undershoot:     learning.NewUndershootDetector(config.HeatingType, clock),
		tuning: tuning.NewManager(tuning.Config{
			HeatingType:    config.HeatingType,
			InitialGains:   pidConfig.Gains,
			MinCycles:      config.Learning.MinCycles,
			MinInterval:    config.Learning.MinInterval,
			HysteresisBand: config.Learning.HysteresisBand,
		}, clock),
		cycles:      cycle.NewTracker(),
		setpoint:    config.Setpoint,
		temperature: math.NaN(),
	}
}

func createPidConfig(config configuration.ZoneConfig) pid.Config {
	direction := pid.DirectionHeat
	if config.Direction == configuration.DirectionCool {
		direction = pid.DirectionCool
	}
	return pid.Config{
		Gains: pid.Gains{
			Kp:     config.Pid.Kp,
			Ki:     config.Pid.Ki,
			Kd:     config.Pid.Kd,
			Ke:     config.Pid.Ke,
			KeWind: config.Pid.KeWind,
		},
		OutMin:                  config.Pid.OutMin,
		OutMax:                  config.Pid.OutMax,
		SamplingPeriod:          config.Pid.SamplingPeriod,
		ColdTolerance:           config.Pid.ColdTolerance,
		HotTolerance:            config.Pid.HotTolerance,
		OutdoorLagHours:         config.Pid.OutdoorLagHours,
		DerivativeFilterAlpha:   config.Pid.DerivativeFilterAlpha,
		IntegralDecayMultiplier: config.Pid.IntegralDecayMultiplier,
		IntegralDecayTauHours:   config.Pid.IntegralDecayTauHours,
		SafetyNetThreshold:      config.Pid.SafetyNetThreshold,
		HeatingType:             config.HeatingType,
		Direction:               direction,
	}
}

func (z *Zone) GetId() string {
	return z.config.ID
}

func (z *Zone) GetConfig() configuration.ZoneConfig {
	return z.config
}

func (z *Zone) HeatingType() heating.Type {
	return z.config.HeatingType
}

// SetSetpoint changes the configured setpoint, a setpoint sensor still takes precedence
func (z *Zone) SetSetpoint(setpoint float64) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.setpoint = setpoint
}

func (z *Zone) SetMode(mode pid.Mode) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.controller.SetMode(mode)
}

// Temperature returns the last measured temperature, NaN before the first update
func (z *Zone) Temperature() float64 {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.temperature
}

func (z *Zone) Duty() float64 {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.duty
}

// IsHeating is true while the duty of the zone is above its heating threshold
func (z *Zone) IsHeating() bool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.heating
}

func (z *Zone) Gains() pid.Gains {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.controller.Gains()
}
