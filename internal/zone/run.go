package zone

import (
	"context"
	"time"

	"github.com/markusressel/heat2go/internal/ui"
)

// Run updates the zone every tickRate until ctx is cancelled
func (z *Zone) Run(ctx context.Context, tickRate time.Duration) error {
	ui.Info("Starting controller loop for zone '%s'", z.GetId())

	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			ui.Info("Stopping controller loop for zone '%s'", z.GetId())
			return nil
		case <-ticker.C:
			err := z.Update()
			if err != nil {
				ui.Warning("Error in controller of zone %s: %v", z.GetId(), err)
			}
		}
	}
}
