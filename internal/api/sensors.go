package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/markusressel/heat2go/internal/sensors"
	"github.com/markusressel/heat2go/internal/util"
	"github.com/qdm12/reprint"
)

type sensorValue struct {
	Id    string   `json:"id"`
	Value *float64 `json:"value"`
}

func registerSensorEndpoints(rest *echo.Echo) {
	group := rest.Group("/sensor")

	group.GET("/", getSensors)
	group.GET("/:"+urlParamId+"/", getSensor)
}

func toSensorValue(sensor sensors.Sensor) sensorValue {
	result := sensorValue{Id: sensor.GetId()}
	if value := sensor.GetMovingAvg(); util.IsFinite(value) {
		result.Value = &value
	}
	return result
}

func getSensors(c echo.Context) error {
	values := map[string]sensorValue{}
	for id, sensor := range sensors.SensorMap.Items() {
		values[id] = toSensorValue(sensor)
	}
	data := reprint.This(values)
	return c.JSONPretty(http.StatusOK, data, indentationChar)
}

func getSensor(c echo.Context) error {
	id := c.Param(urlParamId)

	sensor, exists := sensors.SensorMap.Get(id)
	if !exists {
		return returnNotFound(c, id)
	}
	return c.JSONPretty(http.StatusOK, toSensorValue(sensor), indentationChar)
}
