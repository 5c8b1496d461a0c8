package simulation

import (
	"errors"
	"fmt"
	"time"

	"github.com/markusressel/heat2go/internal/actuators"
	"github.com/markusressel/heat2go/internal/configuration"
	"github.com/markusressel/heat2go/internal/coupling"
	"github.com/markusressel/heat2go/internal/sensors"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/zone"
	cmap "github.com/orcaman/concurrent-map/v2"
	"golang.org/x/exp/slices"
)

const (
	DefaultTickRate           = 30 * time.Second
	DefaultLoss               = 0.1
	DefaultPower              = 3.0
	DefaultInitialTemperature = 17.0
)

type Config struct {
	Zones    []configuration.ZoneConfig
	Coupling configuration.CouplingConfig

	Outdoor            float64
	InitialTemperature float64
	// heat loss (1/h) of every room
	Loss float64
	// temperature rise (°C/h) of every room at full duty
	Power float64
	// links between rooms, derived from the coupling seeds if empty
	Links []Link

	TickRate time.Duration
	Start    time.Time
}

// Simulation runs the configured zones against a simulated house on a simulated clock
type Simulation struct {
	house   *House
	zones   cmap.ConcurrentMap[string, *zone.Zone]
	ids     []string
	sensors map[string]*sensors.VirtualSensor
	outdoor *sensors.VirtualSensor
	learner *coupling.Learner

	tickRate time.Duration
	now      time.Time
}

func (c Config) withDefaults() Config {
	if c.TickRate <= 0 {
		c.TickRate = DefaultTickRate
	}
	if c.Loss <= 0 {
		c.Loss = DefaultLoss
	}
	if c.Power <= 0 {
		c.Power = DefaultPower
	}
	if c.InitialTemperature == 0 {
		c.InitialTemperature = DefaultInitialTemperature
	}
	if c.Start.IsZero() {
		c.Start = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	}
	return c
}

func NewSimulation(config Config) (*Simulation, error) {
	config = config.withDefaults()
	if len(config.Zones) <= 0 {
		return nil, errors.New("no zones to simulate")
	}

	s := &Simulation{
		house:    NewHouse(config.Outdoor),
		zones:    cmap.New[*zone.Zone](),
		sensors:  map[string]*sensors.VirtualSensor{},
		tickRate: config.TickRate,
		now:      config.Start,
	}
	s.outdoor = sensors.NewVirtualSensor("outdoor", func() float64 {
		return s.house.Outdoor
	})
	s.outdoor.SetMovingAvg(config.Outdoor)

	if config.Coupling.Enabled {
		s.learner = coupling.NewLearner(config.Coupling.SeedCoefficients())
	}

	for _, zoneConfig := range config.Zones {
		room := &Room{
			Id:          zoneConfig.ID,
			Temperature: config.InitialTemperature,
			Loss:        config.Loss,
			Power:       config.Power,
			Lag:         EmitterLag(zoneConfig.HeatingType),
		}
		if err := s.house.AddRoom(room); err != nil {
			return nil, err
		}
		s.addZone(zoneConfig, config.Coupling, room)
	}

	links := config.Links
	if len(links) <= 0 {
		links = LinksFromSeeds(config.Coupling.SeedCoefficients())
	}
	for _, link := range links {
		if err := s.house.AddLink(link); err != nil {
			return nil, err
		}
	}

	slices.Sort(s.ids)
	return s, nil
}

func (s *Simulation) addZone(config configuration.ZoneConfig, couplingConfig configuration.CouplingConfig, room *Room) {
	sensor := sensors.NewVirtualSensor(config.ID+"_temperature", func() float64 {
		return room.Temperature
	})
	sensor.SetMovingAvg(room.Temperature)
	s.sensors[config.ID] = sensor

	actuator := actuators.NewVirtualActuator(config.ID, room.SetDuty)

	z := zone.NewZone(config, couplingConfig, zone.Dependencies{
		Sensor:        sensor,
		OutdoorSensor: s.outdoor,
		Actuator:      actuator,
		Coupling:      s.learner,
		Zones:         &s.zones,
		Clock:         s.Now,
	})
	s.zones.Set(config.ID, z)
	s.ids = append(s.ids, config.ID)
}

func (s *Simulation) Now() time.Time {
	return s.now
}

func (s *Simulation) House() *House {
	return s.house
}

// Learner returns the coupling learner, nil if coupling is disabled
func (s *Simulation) Learner() *coupling.Learner {
	return s.learner
}

// ZoneIds returns the ids of all simulated zones, sorted
func (s *Simulation) ZoneIds() []string {
	return slices.Clone(s.ids)
}

func (s *Simulation) Zone(id string) (*zone.Zone, bool) {
	return s.zones.Get(id)
}

// Step advances the house by one controller tick and updates every zone
func (s *Simulation) Step() error {
	s.house.Advance(s.tickRate)
	s.now = s.now.Add(s.tickRate)

	s.outdoor.SetMovingAvg(s.house.Outdoor)
	for id, sensor := range s.sensors {
		sensor.SetMovingAvg(s.house.Rooms[id].Temperature)
	}

	var errs []error
	for _, id := range s.ids {
		z, _ := s.zones.Get(id)
		if err := z.Update(); err != nil {
			errs = append(errs, fmt.Errorf("zone %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Trace is the recorded course of a single zone
type Trace struct {
	Temperatures []float64
	Duties       []float64
}

type Result struct {
	Start    time.Time
	Interval time.Duration
	Traces   map[string]*Trace
	Statuses map[string]zone.Status
}

// Run simulates the given duration, recording every zone each sampleInterval
func (s *Simulation) Run(duration time.Duration, sampleInterval time.Duration) *Result {
	if sampleInterval < s.tickRate {
		sampleInterval = s.tickRate
	}

	result := &Result{
		Start:    s.now,
		Interval: sampleInterval,
		Traces:   map[string]*Trace{},
		Statuses: map[string]zone.Status{},
	}
	for _, id := range s.ids {
		result.Traces[id] = &Trace{}
	}
	record := func() {
		for _, id := range s.ids {
			room := s.house.Rooms[id]
			trace := result.Traces[id]
			trace.Temperatures = append(trace.Temperatures, room.Temperature)
			trace.Duties = append(trace.Duties, room.Duty())
		}
	}

	record()
	end := s.now.Add(duration)
	nextSample := s.now.Add(sampleInterval)
	for s.now.Before(end) {
		if err := s.Step(); err != nil {
			ui.Debug("Simulation step at %s: %v", s.now.Format(time.RFC3339), err)
		}
		if !s.now.Before(nextSample) {
			record()
			nextSample = nextSample.Add(sampleInterval)
		}
	}

	for _, id := range s.ids {
		z, _ := s.zones.Get(id)
		result.Statuses[id] = z.Status()
	}
	return result
}
