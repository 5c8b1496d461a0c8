package internal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/markusressel/heat2go/internal/actuators"
	"github.com/markusressel/heat2go/internal/configuration"
	"github.com/markusressel/heat2go/internal/coupling"
	"github.com/markusressel/heat2go/internal/heating"
	"github.com/markusressel/heat2go/internal/persistence"
	"github.com/markusressel/heat2go/internal/sensors"
	"github.com/markusressel/heat2go/internal/zone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createPersistence(t *testing.T) persistence.Persistence {
	pers := persistence.NewPersistence(filepath.Join(t.TempDir(), "heat2go.db"))
	require.NoError(t, pers.Init())
	return pers
}

func createZone(id string, heatingType heating.Type, kp float64) *zone.Zone {
	sensor := sensors.NewVirtualSensor(id+"_temp", nil)
	sensor.SetMovingAvg(20)
	return zone.NewZone(configuration.ZoneConfig{
		ID:          id,
		HeatingType: heatingType,
		Sensor:      sensor.GetId(),
		Setpoint:    21,
		Mode:        configuration.ModeAuto,
		Direction:   configuration.DirectionHeat,
		Pid: configuration.PidConfig{
			Kp:     kp,
			Ki:     0.5,
			Kd:     100,
			OutMin: 0,
			OutMax: 100,
		},
	}, configuration.CouplingConfig{}, zone.Dependencies{
		Sensor:   sensor,
		Actuator: actuators.NewVirtualActuator(id, nil),
	})
}

func createObservation() coupling.Observation {
	return coupling.Observation{
		Pair:         coupling.Pair{Source: "living", Target: "kitchen"},
		SourceStart:  18,
		SourceEnd:    20,
		TargetStart:  17,
		TargetEnd:    17.5,
		OutdoorStart: 5,
		OutdoorEnd:   5,
		Duration:     time.Hour,
		Timestamp:    time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC),
	}
}

func TestStatePersister_SaveAndRestoreZone(t *testing.T) {
	// GIVEN
	t.Cleanup(zone.ZoneMap.Clear)
	pers := createPersistence(t)
	zone.ZoneMap.Set("living", createZone("living", heating.Radiator, 40))
	persister := NewStatePersister(pers, nil, time.Minute)

	// WHEN
	err := persister.Save()
	restored := createZone("living", heating.Radiator, 25)
	restoreZone(pers, restored)

	// THEN
	require.NoError(t, err)
	assert.Equal(t, 40.0, restored.Gains().Kp)
}

func TestRestoreZone_DiscardsOtherHeatingType(t *testing.T) {
	// GIVEN
	t.Cleanup(zone.ZoneMap.Clear)
	pers := createPersistence(t)
	zone.ZoneMap.Set("bath", createZone("bath", heating.Radiator, 40))
	require.NoError(t, NewStatePersister(pers, nil, time.Minute).Save())

	// WHEN
	restored := createZone("bath", heating.FloorHydronic, 25)
	restoreZone(pers, restored)

	// THEN
	assert.Equal(t, 25.0, restored.Gains().Kp)
}

func TestRestoreZone_NoStoredState(t *testing.T) {
	// GIVEN
	pers := createPersistence(t)
	z := createZone("office", heating.Radiator, 30)

	// WHEN
	restoreZone(pers, z)

	// THEN
	assert.Equal(t, 30.0, z.Gains().Kp)
}

func TestStatePersister_SaveAndRestoreCoupling(t *testing.T) {
	// GIVEN
	pers := createPersistence(t)
	learner := coupling.NewLearner(nil)
	require.True(t, learner.RecordObservation(createObservation()))
	persister := NewStatePersister(pers, learner, time.Minute)

	// WHEN
	err := persister.Save()
	restored := coupling.NewLearner(nil)
	restoreCoupling(pers, restored)

	// THEN
	require.NoError(t, err)
	pair := coupling.Pair{Source: "living", Target: "kitchen"}
	assert.Equal(t, 1, restored.ObservationCount(pair))
	_, exists := restored.GetCoefficient(pair)
	assert.True(t, exists)
}

func TestStatePersister_DefaultInterval(t *testing.T) {
	// GIVEN
	pers := createPersistence(t)

	// WHEN
	persister := NewStatePersister(pers, nil, 0)

	// THEN
	assert.Equal(t, 5*time.Minute, persister.interval)
}
