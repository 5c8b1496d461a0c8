package api

import (
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/markusressel/heat2go/internal/coupling"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	urlParamId      = "id"
	urlParamSource  = "source"
	urlParamTarget  = "target"
	indentationChar = "  "

	metricsNamespace = "heat2go"
	metricsSubsystem = "api"
)

type (
	Result struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	}
)

// CreateRestService creates the REST api. Request metrics are registered with
// the given registerer, learner may be nil if coupling is disabled.
func CreateRestService(learner *coupling.Learner, registerer prometheus.Registerer) *echo.Echo {
	echoRest := echo.New()
	echoRest.HideBanner = true

	// Root level middleware
	echoRest.Pre(middleware.AddTrailingSlash())

	echoRest.Use(middleware.Secure())
	echoRest.Use(middleware.Logger())
	echoRest.Use(middleware.Recover())
	echoRest.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  metricsNamespace,
		Subsystem:  metricsSubsystem,
		Registerer: registerer,
	}))

	echoRest.GET("/alive/", isAlive)

	registerZoneEndpoints(echoRest)
	registerSensorEndpoints(echoRest)
	registerCouplingEndpoints(echoRest, learner)

	return echoRest
}

// returns an empty "ok" answer
func isAlive(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// return a "not found" message
func returnNotFound(c echo.Context, id string) (err error) {
	return c.JSONPretty(http.StatusNotFound, &Result{
		Name:    "Not found",
		Message: "No item with id '" + id + "' found",
	}, indentationChar)
}

// return the error message of an error
func returnError(c echo.Context, status int, e error) (err error) {
	return c.JSONPretty(status, &Result{
		Name:    http.StatusText(status),
		Message: e.Error(),
	}, indentationChar)
}
