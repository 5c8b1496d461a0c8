package actuators

import (
	"fmt"
	"sync"

	"github.com/markusressel/heat2go/internal/configuration"
)

// Actuator applies the duty (%) calculated by a zone controller, e.g. to a valve or a relay
type Actuator interface {
	GetId() string

	// SetDuty applies the given duty
	SetDuty(duty float64) error

	// GetDuty returns the last successfully applied duty
	GetDuty() float64
}

func NewActuator(id string, config configuration.ActuatorConfig) (Actuator, error) {
	if config.File != nil {
		return &FileActuator{
			ID:     id,
			Config: *config.File,
		}, nil
	}

	if config.Cmd != nil {
		return &CmdActuator{
			ID:     id,
			Config: *config.Cmd,
		}, nil
	}

	return nil, fmt.Errorf("no matching actuator type for zone: %s", id)
}

type lastDuty struct {
	mu    sync.RWMutex
	value float64
}

func (l *lastDuty) GetDuty() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.value
}

func (l *lastDuty) set(duty float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.value = duty
}
