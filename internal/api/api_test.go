package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/markusressel/heat2go/internal/actuators"
	"github.com/markusressel/heat2go/internal/configuration"
	"github.com/markusressel/heat2go/internal/coupling"
	"github.com/markusressel/heat2go/internal/heating"
	"github.com/markusressel/heat2go/internal/sensors"
	"github.com/markusressel/heat2go/internal/zone"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestService(t *testing.T, learner *coupling.Learner) http.Handler {
	t.Cleanup(func() {
		zone.ZoneMap.Clear()
		sensors.SensorMap.Clear()
	})
	return CreateRestService(learner, prometheus.NewRegistry())
}

func request(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func addTestZone(id string, temperature float64) *zone.Zone {
	sensor := sensors.NewVirtualSensor(id+"_temp", nil)
	sensor.SetMovingAvg(temperature)
	sensors.SensorMap.Set(sensor.GetId(), sensor)

	z := zone.NewZone(configuration.ZoneConfig{
		ID:          id,
		HeatingType: heating.Radiator,
		Sensor:      sensor.GetId(),
		Setpoint:    21,
		Mode:        configuration.ModeAuto,
		Direction:   configuration.DirectionHeat,
		Pid: configuration.PidConfig{
			Kp:     40,
			Ki:     0.5,
			Kd:     100,
			OutMin: 0,
			OutMax: 100,
		},
	}, configuration.CouplingConfig{}, zone.Dependencies{
		Sensor:   sensor,
		Actuator: actuators.NewVirtualActuator(id, nil),
	})
	zone.ZoneMap.Set(id, z)
	return z
}

func TestRest_IsAlive(t *testing.T) {
	// GIVEN
	service := createTestService(t, nil)

	// WHEN
	rec := request(t, service, "/alive")

	// THEN
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRest_GetZones(t *testing.T) {
	// GIVEN
	service := createTestService(t, nil)
	z := addTestZone("living", 19)
	require.NoError(t, z.Update())

	// WHEN
	rec := request(t, service, "/zone/")

	// THEN
	require.Equal(t, http.StatusOK, rec.Code)
	var result map[string]zone.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Contains(t, result, "living")
	status := result["living"]
	assert.Equal(t, "living", status.Id)
	assert.Equal(t, 21.0, status.Setpoint)
	require.NotNil(t, status.Temperature)
	assert.Equal(t, 19.0, *status.Temperature)
	assert.True(t, status.Heating)
}

func TestRest_GetZone(t *testing.T) {
	// GIVEN
	service := createTestService(t, nil)
	addTestZone("office", 20)

	// WHEN
	rec := request(t, service, "/zone/office")

	// THEN
	require.Equal(t, http.StatusOK, rec.Code)
	var status zone.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "office", status.Id)
	assert.Equal(t, heating.Radiator, status.HeatingType)
}

func TestRest_GetZoneNotFound(t *testing.T) {
	// GIVEN
	service := createTestService(t, nil)

	// WHEN
	rec := request(t, service, "/zone/attic/")

	// THEN
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var result Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Contains(t, result.Message, "attic")
}

func TestRest_GetSensors(t *testing.T) {
	// GIVEN
	service := createTestService(t, nil)
	known := sensors.NewVirtualSensor("outdoor", nil)
	known.SetMovingAvg(4.5)
	sensors.SensorMap.Set(known.GetId(), known)
	unknown := sensors.NewVirtualSensor("wind", nil)
	sensors.SensorMap.Set(unknown.GetId(), unknown)

	// WHEN
	rec := request(t, service, "/sensor/")

	// THEN
	require.Equal(t, http.StatusOK, rec.Code)
	var result map[string]sensorValue
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result, 2)
	require.NotNil(t, result["outdoor"].Value)
	assert.Equal(t, 4.5, *result["outdoor"].Value)
	assert.Nil(t, result["wind"].Value)
}

func TestRest_GetSensorNotFound(t *testing.T) {
	// GIVEN
	service := createTestService(t, nil)

	// WHEN
	rec := request(t, service, "/sensor/missing/")

	// THEN
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRest_CouplingDisabled(t *testing.T) {
	// GIVEN
	service := createTestService(t, nil)

	// WHEN
	rec := request(t, service, "/coupling/")

	// THEN
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var result Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, errCouplingDisabled.Error(), result.Message)
}

func TestRest_GetCoefficients(t *testing.T) {
	// GIVEN
	learner := coupling.NewLearner(map[coupling.Pair]float64{
		{Source: "living", Target: "kitchen"}: coupling.SeedOpenPlan,
	})
	service := createTestService(t, learner)

	// WHEN
	rec := request(t, service, "/coupling/")

	// THEN
	require.Equal(t, http.StatusOK, rec.Code)
	var result []coupling.Coefficient
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result, 1)
	assert.Equal(t, "living", result[0].Pair.Source)
	assert.Equal(t, coupling.SeedOpenPlan, result[0].Value)
	assert.True(t, result[0].Seeded)
}

func TestRest_GetCoefficient(t *testing.T) {
	// GIVEN
	learner := coupling.NewLearner(map[coupling.Pair]float64{
		{Source: "living", Target: "kitchen"}: coupling.SeedOpenPlan,
	})
	service := createTestService(t, learner)

	// WHEN
	found := request(t, service, "/coupling/living/kitchen/")
	missing := request(t, service, "/coupling/kitchen/living/")

	// THEN
	require.Equal(t, http.StatusOK, found.Code)
	var coefficient coupling.Coefficient
	require.NoError(t, json.Unmarshal(found.Body.Bytes(), &coefficient))
	assert.Equal(t, coupling.ActivationThreshold, coefficient.Confidence)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}
