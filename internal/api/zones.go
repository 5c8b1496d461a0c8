package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/markusressel/heat2go/internal/zone"
	"github.com/qdm12/reprint"
)

func registerZoneEndpoints(rest *echo.Echo) {
	group := rest.Group("/zone")

	group.GET("/", getZones)
	group.GET("/:"+urlParamId+"/", getZone)
}

// returns the status of all zones, by zone id
func getZones(c echo.Context) error {
	statuses := map[string]zone.Status{}
	for id, z := range zone.ZoneMap.Items() {
		statuses[id] = z.Status()
	}
	data := reprint.This(statuses)
	return c.JSONPretty(http.StatusOK, data, indentationChar)
}

func getZone(c echo.Context) error {
	id := c.Param(urlParamId)

	z, exists := zone.ZoneMap.Get(id)
	if !exists {
		return returnNotFound(c, id)
	}
	return c.JSONPretty(http.StatusOK, z.Status(), indentationChar)
}
