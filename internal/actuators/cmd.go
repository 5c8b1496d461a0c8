package actuators

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/markusressel/heat2go/internal/configuration"
	"github.com/markusressel/heat2go/internal/util"
)

const (
	defaultCmdTimeout = 2 * time.Second
	valuePlaceholder  = "%value%"
)

type CmdActuator struct {
	ID     string
	Config configuration.CmdActuatorConfig
	lastDuty
}

func (actuator *CmdActuator) GetId() string {
	return actuator.ID
}

func (actuator *CmdActuator) SetDuty(duty float64) error {
	value := strconv.FormatFloat(duty, 'f', 2, 64)

	var args []string
	for _, arg := range actuator.Config.Args {
		args = append(args, strings.ReplaceAll(arg, valuePlaceholder, value))
	}

	timeout := actuator.Config.Timeout
	if timeout <= 0 {
		timeout = defaultCmdTimeout
	}
	_, err := util.SafeCmdExecution(actuator.Config.Exec, args, timeout)
	if err != nil {
		return fmt.Errorf("actuator %s: %s", actuator.ID, err.Error())
	}
	actuator.set(duty)
	return nil
}
