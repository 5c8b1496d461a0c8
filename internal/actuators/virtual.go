package actuators

// VirtualActuator passes the duty to a function, e.g. a simulated heater
type VirtualActuator struct {
	ID    string
	Apply func(duty float64)
	lastDuty
}

func NewVirtualActuator(id string, apply func(duty float64)) *VirtualActuator {
	return &VirtualActuator{
		ID:    id,
		Apply: apply,
	}
}

func (actuator *VirtualActuator) GetId() string {
	return actuator.ID
}

func (actuator *VirtualActuator) SetDuty(duty float64) error {
	if actuator.Apply != nil {
		actuator.Apply(duty)
	}
	actuator.set(duty)
	return nil
}
