package zone

import (
	"errors"
	"fmt"
	"os"

	"github.com/markusressel/heat2go/internal/configuration"
	"github.com/markusressel/heat2go/internal/persistence"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/zone"
	"github.com/spf13/cobra"
)

var zoneId string

var Command = &cobra.Command{
	Use:              "zone",
	Short:            "Zone related commands",
	Long:             ``,
	TraverseChildren: true,
}

func init() {
	Command.PersistentFlags().StringVarP(
		&zoneId,
		"id", "i",
		"",
		"Zone ID as specified in the config",
	)
}

func loadConfig() {
	configPath := configuration.DetectConfigFile()
	ui.Info("Using configuration file at: %s", configPath)
	configuration.LoadConfig()
	err := configuration.Validate(configPath)
	if err != nil {
		ui.Fatal(err.Error())
	}
}

// getZoneConfigs returns the configuration of the zone selected with --id,
// or of all zones if no id was given
func getZoneConfigs(id string) ([]configuration.ZoneConfig, error) {
	if len(id) <= 0 {
		return configuration.CurrentConfig.Zones, nil
	}

	var availableZoneIds []string
	for _, config := range configuration.CurrentConfig.Zones {
		availableZoneIds = append(availableZoneIds, config.ID)
		if config.ID == id {
			return []configuration.ZoneConfig{config}, nil
		}
	}
	return nil, fmt.Errorf("no zone with id found: %s, options: %s", id, availableZoneIds)
}

// loadZone creates a detached zone and restores its learned state from the database.
// The zone has no sensors or actuator, it can only be inspected.
func loadZone(pers persistence.Persistence, config configuration.ZoneConfig) (*zone.Zone, bool) {
	z := zone.NewZone(config, configuration.CurrentConfig.Coupling, zone.Dependencies{})
	state, err := pers.LoadZoneState(config.ID)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			ui.Warning("Unable to load state of zone %s: %v", config.ID, err)
		}
		return z, false
	}
	if err := z.FromMap(state); err != nil {
		ui.Warning("Ignoring stored state of zone %s: %v", config.ID, err)
		return z, false
	}
	return z, true
}
