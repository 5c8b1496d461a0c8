package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/markusressel/heat2go/internal/coupling"
)

var errCouplingDisabled = errors.New("thermal coupling is disabled")

func registerCouplingEndpoints(rest *echo.Echo, learner *coupling.Learner) {
	group := rest.Group("/coupling")

	group.GET("/", func(c echo.Context) error {
		return getCoefficients(c, learner)
	})
	group.GET("/:"+urlParamSource+"/:"+urlParamTarget+"/", func(c echo.Context) error {
		return getCoefficient(c, learner)
	})
}

// returns all learned and seeded coupling coefficients
func getCoefficients(c echo.Context, learner *coupling.Learner) error {
	if learner == nil {
		return returnError(c, http.StatusNotFound, errCouplingDisabled)
	}
	coefficients := learner.Coefficients()
	if coefficients == nil {
		coefficients = []coupling.Coefficient{}
	}
	return c.JSONPretty(http.StatusOK, coefficients, indentationChar)
}

func getCoefficient(c echo.Context, learner *coupling.Learner) error {
	if learner == nil {
		return returnError(c, http.StatusNotFound, errCouplingDisabled)
	}
	pair := coupling.Pair{
		Source: c.Param(urlParamSource),
		Target: c.Param(urlParamTarget),
	}
	coefficient, exists := learner.GetCoefficient(pair)
	if !exists {
		return returnNotFound(c, pair.String())
	}
	return c.JSONPretty(http.StatusOK, coefficient, indentationChar)
}
