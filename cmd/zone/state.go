package zone

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/markusressel/heat2go/cmd/global"
	"github.com/markusressel/heat2go/internal/configuration"
	"github.com/markusressel/heat2go/internal/persistence"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/zone"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the learned state of zone(s) stored in the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		loadConfig()

		configs, err := getZoneConfigs(zoneId)
		if err != nil {
			return err
		}

		pers := persistence.NewPersistence(configuration.CurrentConfig.DbPath)
		for idx, config := range configs {
			if idx > 0 {
				ui.Printfln("")
			}

			z, restored := loadZone(pers, config)
			ui.Printfln(config.ID)
			if !restored {
				ui.Printfln("No learned state, showing configured values")
			}
			if err := global.PrintTable([]string{"", ""}, statusRows(z.Status())); err != nil {
				return err
			}
		}
		return nil
	},
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64)
}

func formatOptional(value *float64, unit string) string {
	if value == nil {
		return "-"
	}
	return formatFloat(*value) + " " + unit
}

func statusRows(status zone.Status) [][]string {
	gains := status.Controller.Gains
	activeRules := "-"
	if len(status.ActiveRules) > 0 {
		var names []string
		for _, rule := range status.ActiveRules {
			names = append(names, string(rule))
		}
		activeRules = strings.Join(names, ", ")
	}
	lastAdjustment := "-"
	if status.LastAdjustment != nil {
		lastAdjustment = status.LastAdjustment.Local().Format(time.RFC3339)
	}

	return [][]string{
		{"Heating Type", status.HeatingType.String()},
		{"Kp", formatFloat(gains.Kp)},
		{"Ki", formatFloat(gains.Ki)},
		{"Kd", formatFloat(gains.Kd)},
		{"Ke", formatFloat(gains.Ke)},
		{"Integral", formatFloat(status.Controller.I)},
		{"Tuned", strconv.FormatBool(status.Controller.Tuned)},
		{"Heating Rate", formatOptional(status.HeatingRate, "°C/h")},
		{"Cooling Rate", formatOptional(status.CoolingRate, "°C/h")},
		{"Thermal Debt", formatFloat(status.ThermalDebt) + " °C·h"},
		{"Ki Multiplier", formatFloat(status.KiMultiplier)},
		{"Cycles", strconv.Itoa(status.CyclesCompleted)},
		{"Active Rules", activeRules},
		{"Last Adjustment", lastAdjustment},
		{"Validating", strconv.FormatBool(status.Validating)},
		{"Adjustments", fmt.Sprintf("%d", len(status.Adjustments))},
	}
}

func init() {
	Command.AddCommand(stateCmd)
}
