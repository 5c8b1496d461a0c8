package internal

import (
	"context"
	"errors"
	"time"

	"github.com/markusressel/heat2go/internal/coupling"
	"github.com/markusressel/heat2go/internal/persistence"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/zone"
)

// StatePersister periodically writes the learned state of all zones
// and of the coupling learner to the database.
type StatePersister struct {
	pers     persistence.Persistence
	learner  *coupling.Learner
	interval time.Duration
}

func NewStatePersister(pers persistence.Persistence, learner *coupling.Learner, interval time.Duration) *StatePersister {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &StatePersister{
		pers:     pers,
		learner:  learner,
		interval: interval,
	}
}

// Run saves the state every interval and once more when ctx is cancelled
func (p *StatePersister) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			ui.Info("Saving learned state...")
			return p.Save()
		case <-ticker.C:
			if err := p.Save(); err != nil {
				ui.Warning("Error saving learned state: %v", err)
			}
		}
	}
}

// Save writes the state of every zone in zone.ZoneMap and of the coupling learner.
// All zones are attempted, the returned error joins every failure.
func (p *StatePersister) Save() error {
	var errs []error
	for id, z := range zone.ZoneMap.Items() {
		if err := p.pers.SaveZoneState(id, z.ToMap()); err != nil {
			errs = append(errs, err)
		}
	}
	if p.learner != nil {
		if err := p.pers.SaveCouplingState(p.learner.ToMap()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
