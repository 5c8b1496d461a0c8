package rules

import (
	"strconv"

	"github.com/markusressel/heat2go/cmd/global"
	"github.com/markusressel/heat2go/internal/heating"
	"github.com/markusressel/heat2go/internal/rules"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/spf13/cobra"
)

var (
	heatingType string
	metrics     rules.CycleMetrics
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Print the gain adjustments recommended for the given cycle metrics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := heating.ParseType(heatingType)
		if err != nil {
			return err
		}

		thresholds := rules.DefaultThresholds(t)
		evaluated := rules.Evaluate(metrics, thresholds, nil)
		conflicts := rules.DetectConflicts(evaluated)
		results, factors := rules.Recommend(metrics, thresholds, nil)

		ui.Printfln("Cycle: %s", metrics.Sanitized())
		if len(results) <= 0 {
			ui.Success("No adjustment needed")
			return nil
		}

		var rows [][]string
		for _, result := range results {
			rows = append(rows, []string{
				string(result.Rule),
				strconv.Itoa(int(result.Priority)),
				formatFactor(result.Kp),
				formatFactor(result.Ki),
				formatFactor(result.Kd),
				result.Reason,
			})
		}
		if err := global.PrintTable([]string{"Rule", "Priority", "Kp", "Ki", "Kd", "Reason"}, rows); err != nil {
			return err
		}

		for _, conflict := range conflicts {
			ui.Warning("Conflict on %s: %s vs %s", conflict.Parameter, conflict.First, conflict.Second)
		}
		ui.Printfln("Combined: Kp ×%s, Ki ×%s, Kd ×%s", formatFactor(factors.Kp), formatFactor(factors.Ki), formatFactor(factors.Kd))
		return nil
	},
}

func formatFactor(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64)
}

func init() {
	evaluateCmd.Flags().StringVarP(&heatingType, "heating-type", "t", string(heating.DefaultType), "Heating type of the zone")
	evaluateCmd.Flags().Float64VarP(&metrics.Overshoot, "overshoot", "o", 0, "Overshoot in °C")
	evaluateCmd.Flags().Float64VarP(&metrics.Undershoot, "undershoot", "u", 0, "Undershoot in °C")
	evaluateCmd.Flags().IntVarP(&metrics.Oscillations, "oscillations", "n", 0, "Number of oscillations")
	evaluateCmd.Flags().Float64VarP(&metrics.RiseTime, "rise-time", "r", 0, "Rise time in hours")
	evaluateCmd.Flags().Float64VarP(&metrics.SettlingTime, "settling-time", "s", 0, "Settling time in hours")

	Command.AddCommand(evaluateCmd)
}
