package actuators

import (
	"fmt"

	"github.com/markusressel/heat2go/internal/configuration"
	"github.com/markusressel/heat2go/internal/util"
)

// FileActuator writes the duty to a file, e.g. a sysfs node or a file watched by another service
type FileActuator struct {
	ID     string
	Config configuration.FileActuatorConfig
	lastDuty
}

func (actuator *FileActuator) GetId() string {
	return actuator.ID
}

func (actuator *FileActuator) SetDuty(duty float64) error {
	filePath, err := util.ExpandHomeDir(actuator.Config.Path)
	if err != nil {
		return err
	}

	err = util.WriteFloatToFileAtomic(duty, filePath)
	if err != nil {
		return fmt.Errorf("actuator %s: %w", actuator.ID, err)
	}
	actuator.set(duty)
	return nil
}
