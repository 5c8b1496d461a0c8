package zone

import (
	"strconv"

	"github.com/markusressel/heat2go/cmd/global"
	"github.com/markusressel/heat2go/internal/configuration"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configured zones",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		loadConfig()

		var rows [][]string
		for _, config := range configuration.CurrentConfig.Zones {
			rows = append(rows, []string{
				config.ID,
				config.HeatingType.String(),
				config.Sensor,
				strconv.FormatFloat(config.Setpoint, 'f', 1, 64),
				config.Mode,
				strconv.FormatFloat(config.Pid.Kp, 'g', 4, 64),
				strconv.FormatFloat(config.Pid.Ki, 'g', 4, 64),
				strconv.FormatFloat(config.Pid.Kd, 'g', 4, 64),
			})
		}

		return global.PrintTable(
			[]string{"ID", "Heating Type", "Sensor", "Setpoint", "Mode", "Kp", "Ki", "Kd"},
			rows,
		)
	},
}

func init() {
	Command.AddCommand(listCmd)
}
