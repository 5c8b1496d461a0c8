package coupling

import (
	"errors"
	"os"
	"strconv"

	"github.com/markusressel/heat2go/cmd/global"
	"github.com/markusressel/heat2go/internal/configuration"
	"github.com/markusressel/heat2go/internal/coupling"
	"github.com/markusressel/heat2go/internal/persistence"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List seeded and learned coupling coefficients",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := configuration.DetectConfigFile()
		ui.Info("Using configuration file at: %s", configPath)
		configuration.LoadConfig()
		if err := configuration.Validate(configPath); err != nil {
			ui.Fatal(err.Error())
		}

		config := configuration.CurrentConfig.Coupling
		if !config.Enabled {
			ui.Warning("Thermal coupling is disabled")
		}

		learner := coupling.NewLearner(config.SeedCoefficients())
		pers := persistence.NewPersistence(configuration.CurrentConfig.DbPath)
		state, err := pers.LoadCouplingState()
		if err == nil {
			learner.FromMap(state)
		} else if !errors.Is(err, os.ErrNotExist) {
			ui.Warning("Unable to load coupling state: %v", err)
		}

		var rows [][]string
		for _, c := range learner.Coefficients() {
			rows = append(rows, []string{
				c.Pair.Source,
				c.Pair.Target,
				strconv.FormatFloat(c.Value, 'f', 4, 64),
				strconv.FormatFloat(c.Confidence, 'f', 2, 64),
				strconv.FormatFloat(coupling.GraduatedConfidence(c), 'f', 2, 64),
				strconv.Itoa(c.ObservationCount),
				strconv.FormatBool(c.Seeded),
				strconv.FormatBool(c.IsValidating()),
			})
		}
		if len(rows) <= 0 {
			ui.Printfln("No coupling coefficients")
			return nil
		}

		return global.PrintTable(
			[]string{"Source", "Target", "Coefficient", "Confidence", "Effect", "Observations", "Seeded", "Validating"},
			rows,
		)
	},
}

func init() {
	Command.AddCommand(listCmd)
}
