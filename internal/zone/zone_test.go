package zone

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/markusressel/heat2go/internal/actuators"
	"github.com/markusressel/heat2go/internal/configuration"
	"github.com/markusressel/heat2go/internal/coupling"
	"github.com/markusressel/heat2go/internal/heating"
	"github.com/markusressel/heat2go/internal/pid"
	"github.com/markusressel/heat2go/internal/rules"
	"github.com/markusressel/heat2go/internal/sensors"
	"github.com/markusressel/heat2go/internal/tuning"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type failingActuator struct{}

func (a failingActuator) GetId() string {
	return "failing"
}

func (a failingActuator) SetDuty(duty float64) error {
	return errors.New("valve not reachable")
}

func (a failingActuator) GetDuty() float64 {
	return 0
}

type testHouse struct {
	clock    *testClock
	zones    cmap.ConcurrentMap[string, *Zone]
	outdoor  *sensors.VirtualSensor
	learner  *coupling.Learner
	sensors  map[string]*sensors.VirtualSensor
	applied  map[string]float64
	coupling configuration.CouplingConfig
}

func newTestHouse(learner *coupling.Learner) *testHouse {
	outdoor := sensors.NewVirtualSensor("outdoor", nil)
	outdoor.SetMovingAvg(1)
	return &testHouse{
		clock:   &testClock{now: time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC)},
		zones:   cmap.New[*Zone](),
		outdoor: outdoor,
		learner: learner,
		sensors: map[string]*sensors.VirtualSensor{},
		applied: map[string]float64{},
		coupling: configuration.CouplingConfig{
			Enabled:         learner != nil,
			FeedforwardGain: 1.0,
			MaxFeedforward:  20,
		},
	}
}

func createZoneConfig(id string, setpoint float64) configuration.ZoneConfig {
	return configuration.ZoneConfig{
		ID:          id,
		HeatingType: heating.Radiator,
		Sensor:      id + "_temp",
		Setpoint:    setpoint,
		Mode:        configuration.ModeAuto,
		Direction:   configuration.DirectionHeat,
		Pid: configuration.PidConfig{
			Kp:     40,
			Ki:     0.5,
			Kd:     100,
			Ke:     2,
			OutMin: 0,
			OutMax: 100,
		},
	}
}

func (h *testHouse) addZone(config configuration.ZoneConfig, temperature float64) *Zone {
	sensor := sensors.NewVirtualSensor(config.Sensor, nil)
	sensor.SetMovingAvg(temperature)
	h.sensors[config.ID] = sensor

	id := config.ID
	actuator := actuators.NewVirtualActuator(id, func(duty float64) {
		h.applied[id] = duty
	})

	z := NewZone(config, h.coupling, Dependencies{
		Sensor:        sensor,
		OutdoorSensor: h.outdoor,
		Actuator:      actuator,
		Coupling:      h.learner,
		Zones:         &h.zones,
		Clock:         h.clock.Now,
	})
	h.zones.Set(id, z)
	return z
}

func (h *testHouse) setTemperature(id string, temperature float64) {
	h.sensors[id].SetMovingAvg(temperature)
}

func TestZone_UpdateAppliesDuty(t *testing.T) {
	// GIVEN
	house := newTestHouse(nil)
	z := house.addZone(createZoneConfig("living", 21), 18)

	// WHEN
	err := z.Update()

	// THEN
	assert.NoError(t, err)
	assert.InDelta(t, 40, z.Duty(), 1e-9)
	assert.InDelta(t, 40, house.applied["living"], 1e-9)
	assert.True(t, z.IsHeating())
	assert.Equal(t, 18.0, z.Temperature())
}

func TestZone_UpdateAboveSetpoint(t *testing.T) {
	// GIVEN
	house := newTestHouse(nil)
	z := house.addZone(createZoneConfig("living", 21), 22)

	// WHEN
	err := z.Update()

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, 0.0, z.Duty())
	assert.False(t, z.IsHeating())
	assert.True(t, z.Status().Controller.WasClamped)
}

func TestZone_UpdateWithoutTemperature(t *testing.T) {
	// GIVEN
	house := newTestHouse(nil)
	z := house.addZone(createZoneConfig("living", 21), 18)
	house.sensors["living"].SetMovingAvg(nan())

	// WHEN
	err := z.Update()

	// THEN
	assert.Error(t, err)
	_, applied := house.applied["living"]
	assert.False(t, applied)
}

func TestZone_UpdateWithFailingActuator(t *testing.T) {
	// GIVEN
	sensor := sensors.NewVirtualSensor("living_temp", nil)
	sensor.SetMovingAvg(18)
	clock := &testClock{now: time.Date(2024, 1, 15, 6, 0, 0, 0, time.UTC)}
	z := NewZone(createZoneConfig("living", 21), configuration.CouplingConfig{}, Dependencies{
		Sensor:   sensor,
		Actuator: failingActuator{},
		Clock:    clock.Now,
	})

	// WHEN
	err := z.Update()

	// THEN
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "valve not reachable")
	assert.Equal(t, 18.0, z.Temperature())
}

func TestZone_SetpointSensorOverridesSetpoint(t *testing.T) {
	// GIVEN
	house := newTestHouse(nil)
	z := house.addZone(createZoneConfig("living", 21), 18)
	setpoint := sensors.NewVirtualSensor("living_setpoint", nil)
	setpoint.SetMovingAvg(16)
	z.deps.SetpointSensor = setpoint

	// WHEN
	err := z.Update()

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, 0.0, z.Duty())
	assert.False(t, z.IsHeating())
}

func TestZone_ModeOff(t *testing.T) {
	// GIVEN
	house := newTestHouse(nil)
	config := createZoneConfig("living", 21)
	config.Mode = configuration.ModeOff
	z := house.addZone(config, 22)

	// WHEN
	err := z.Update()

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, pid.ModeOff, z.Status().Controller.Mode)
	assert.False(t, z.IsHeating())
}

func TestZone_CouplingObservation(t *testing.T) {
	// GIVEN
	learner := coupling.NewLearner(nil)
	house := newTestHouse(learner)
	living := house.addZone(createZoneConfig("living", 21), 18)
	bedroom := house.addZone(createZoneConfig("bedroom", 15), 17.5)

	require.NoError(t, bedroom.Update())
	require.NoError(t, living.Update())
	require.True(t, living.IsHeating())
	require.False(t, bedroom.IsHeating())
	require.True(t, learner.IsObserving("living"))

	// WHEN
	house.clock.Advance(time.Hour)
	house.setTemperature("living", 19)
	house.setTemperature("bedroom", 17.75)
	require.NoError(t, bedroom.Update())
	living.SetSetpoint(17)
	require.NoError(t, living.Update())

	// THEN
	assert.False(t, living.IsHeating())
	assert.False(t, learner.IsObserving("living"))
	pair := coupling.Pair{Source: "living", Target: "bedroom"}
	assert.Equal(t, 1, learner.ObservationCount(pair))
	coefficient, ok := learner.GetCoefficient(pair)
	require.True(t, ok)
	assert.InDelta(t, 0.25, coefficient.Value, 1e-9)
	assert.Equal(t, 0, learner.ObservationCount(coupling.Pair{Source: "bedroom", Target: "living"}))
}

func TestZone_CouplingFeedforward(t *testing.T) {
	// GIVEN
	learner := coupling.NewLearner(nil)
	pair := coupling.Pair{Source: "living", Target: "bedroom"}
	for i := 0; i < 3; i++ {
		recorded := learner.RecordObservation(coupling.Observation{
			Pair:         pair,
			SourceStart:  18,
			SourceEnd:    19,
			TargetStart:  17.5,
			TargetEnd:    17.75,
			OutdoorStart: 1,
			OutdoorEnd:   1,
			Duration:     time.Hour,
			Timestamp:    time.Date(2024, 1, 14, 6+i, 0, 0, 0, time.UTC),
		})
		require.True(t, recorded)
	}

	house := newTestHouse(learner)
	living := house.addZone(createZoneConfig("living", 21), 18)
	bedroom := house.addZone(createZoneConfig("bedroom", 20), 19)
	living.rates.AddHeatingRate(1.0)

	// WHEN
	require.NoError(t, living.Update())
	require.NoError(t, bedroom.Update())

	// THEN
	// coefficient 0.25, confidence 3/8 graduated to 0.15, heating rate 1.0 °C/h
	status := bedroom.Status()
	assert.InDelta(t, 0.0375, status.Feedforward, 1e-9)
	assert.InDelta(t, 0.0375, status.Controller.F, 1e-9)
	assert.Equal(t, 0.0, living.Status().Feedforward)
}

func TestZone_CouplingDisabled(t *testing.T) {
	// GIVEN
	house := newTestHouse(nil)
	living := house.addZone(createZoneConfig("living", 21), 18)
	bedroom := house.addZone(createZoneConfig("bedroom", 20), 19)
	living.rates.AddHeatingRate(1.0)

	// WHEN
	require.NoError(t, living.Update())
	require.NoError(t, bedroom.Update())

	// THEN
	assert.Equal(t, 0.0, bedroom.Status().Feedforward)
}

func highOvershoot() rules.CycleMetrics {
	return rules.CycleMetrics{Overshoot: 0.6, RiseTime: 0.5, SettlingTime: 1}
}

func TestZone_CycleCompletionAdjustsGains(t *testing.T) {
	// GIVEN
	house := newTestHouse(nil)
	z := house.addZone(createZoneConfig("living", 21), 18)
	z.controller.SetIntegral(10)

	// WHEN
	for i := 0; i < 3; i++ {
		z.onCycleCompleted(highOvershoot())
	}

	// THEN
	gains := z.Gains()
	assert.InDelta(t, 36, gains.Kp, 1e-9)
	assert.InDelta(t, 0.45, gains.Ki, 1e-9)
	assert.InDelta(t, 120, gains.Kd, 1e-9)
	assert.Equal(t, 0.0, z.controller.Integral())
	assert.True(t, z.controller.IsTuned())

	status := z.Status()
	assert.Equal(t, 3, status.CyclesCompleted)
	assert.True(t, status.Validating)
	require.NotNil(t, status.LastCycle)
	assert.Equal(t, 0.6, status.LastCycle.Overshoot)
	assert.Len(t, status.Adjustments, 1)
}

func TestZone_ClampedCycleIsNotLearned(t *testing.T) {
	// GIVEN
	house := newTestHouse(nil)
	z := house.addZone(createZoneConfig("living", 21), 22)
	require.NoError(t, z.Update())
	require.True(t, z.controller.WasClamped())

	// WHEN
	for i := 0; i < 3; i++ {
		z.onCycleCompleted(highOvershoot())
	}

	// THEN
	assert.Equal(t, 40.0, z.Gains().Kp)
	assert.Equal(t, 0, z.Status().CyclesCompleted)
}

func TestZone_LearningDisabled(t *testing.T) {
	// GIVEN
	house := newTestHouse(nil)
	config := createZoneConfig("living", 21)
	config.Learning.Disabled = true
	z := house.addZone(config, 18)

	// WHEN
	for i := 0; i < 3; i++ {
		z.onCycleCompleted(highOvershoot())
	}

	// THEN
	assert.Equal(t, 40.0, z.Gains().Kp)
	assert.Equal(t, 0, z.Status().CyclesCompleted)
}

func TestZone_PersistentUndershootIncreasesKi(t *testing.T) {
	// GIVEN
	house := newTestHouse(nil)
	z := house.addZone(createZoneConfig("living", 21), 19)

	// WHEN
	// 2°C below the setpoint accumulates 1°C·h of thermal debt per half hour
	for i := 0; i < 4; i++ {
		require.NoError(t, z.Update())
		house.clock.Advance(30 * time.Minute)
	}

	// THEN
	assert.InDelta(t, 0.6, z.Gains().Ki, 1e-9)
	status := z.Status()
	assert.InDelta(t, 1.2, status.KiMultiplier, 1e-9)
	require.Len(t, status.Adjustments, 1)
	assert.Equal(t, "undershoot", string(status.Adjustments[0].Kind))
}

func TestZone_UndershootAtKiCapKeepsDebt(t *testing.T) {
	// GIVEN
	house := newTestHouse(nil)
	z := house.addZone(createZoneConfig("living", 21), 19)
	gains := z.Gains()
	gains.Ki = 0.5 * tuning.MaxGainFactor
	z.controller.SetGains(gains)

	// WHEN
	for i := 0; i < 4; i++ {
		require.NoError(t, z.Update())
		house.clock.Advance(30 * time.Minute)
	}

	// THEN
	assert.Equal(t, 1.0, z.Gains().Ki)
	status := z.Status()
	assert.Equal(t, 1.0, status.KiMultiplier)
	assert.Empty(t, status.Adjustments)
	assert.True(t, z.undershoot.LastAdjustment().IsZero())
	assert.GreaterOrEqual(t, z.undershoot.ThermalDebt(), heating.GetProfile(heating.Radiator).UndershootDebt)
}

func TestZone_SnapshotRoundTrip(t *testing.T) {
	// GIVEN
	house := newTestHouse(nil)
	z := house.addZone(createZoneConfig("living", 21), 18)
	for i := 0; i < 3; i++ {
		z.onCycleCompleted(highOvershoot())
	}
	z.rates.AddHeatingRate(1.5)

	data, err := json.Marshal(z.ToMap())
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	restored := newTestHouse(nil).addZone(createZoneConfig("living", 21), 18)

	// WHEN
	err = restored.FromMap(decoded)

	// THEN
	require.NoError(t, err)
	assert.Equal(t, z.Gains(), restored.Gains())
	status := restored.Status()
	assert.Equal(t, 3, status.CyclesCompleted)
	assert.True(t, status.Validating)
	require.NotNil(t, status.HeatingRate)
	assert.Equal(t, 1.5, *status.HeatingRate)
	require.NotNil(t, status.LastCycle)
	assert.Equal(t, 0.6, status.LastCycle.Overshoot)
}

func TestZone_FromMapRejectsOtherHeatingType(t *testing.T) {
	// GIVEN
	house := newTestHouse(nil)
	z := house.addZone(createZoneConfig("living", 21), 18)
	for i := 0; i < 3; i++ {
		z.onCycleCompleted(highOvershoot())
	}
	data := z.ToMap()

	config := createZoneConfig("living", 21)
	config.HeatingType = heating.FloorHydronic
	restored := newTestHouse(nil).addZone(config, 18)

	// WHEN
	err := restored.FromMap(data)

	// THEN
	assert.Error(t, err)
	assert.Equal(t, 40.0, restored.Gains().Kp)
}

func TestZone_FromMapSkipsMalformedParts(t *testing.T) {
	// GIVEN
	house := newTestHouse(nil)
	z := house.addZone(createZoneConfig("living", 21), 18)
	data := map[string]interface{}{
		"heating_type": "radiator",
		"controller":   map[string]interface{}{"kp": "not a number"},
		"rates":        map[string]interface{}{"heating_rates": []interface{}{1.0, 2.0}},
	}

	// WHEN
	err := z.FromMap(data)

	// THEN
	assert.NoError(t, err)
	assert.Equal(t, 40.0, z.Gains().Kp)
	rate, ok := z.rates.HeatingRate()
	assert.True(t, ok)
	assert.InDelta(t, 1.5, rate, 1e-9)
}
