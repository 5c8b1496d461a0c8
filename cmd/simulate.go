package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/markusressel/heat2go/cmd/global"
	"github.com/markusressel/heat2go/internal/configuration"
	"github.com/markusressel/heat2go/internal/simulation"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/spf13/cobra"
)

var (
	simulationHours       float64
	simulationOutdoor     float64
	simulationTemperature float64
	simulationLoss        float64
	simulationPower       float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the configured zones against a simulated house",
	Long: `Runs the controllers of all configured zones against a simple thermal
model of a house, using a simulated clock. Neighboring zones exchange heat
according to the configured coupling topology.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := configuration.DetectConfigFile()
		ui.Info("Using configuration file at: %s", configPath)
		configuration.LoadConfig()
		if err := configuration.Validate(configPath); err != nil {
			ui.Fatal(err.Error())
		}
		if simulationHours <= 0 {
			return fmt.Errorf("invalid duration: %v hours", simulationHours)
		}

		sim, err := simulation.NewSimulation(simulation.Config{
			Zones:              configuration.CurrentConfig.Zones,
			Coupling:           configuration.CurrentConfig.Coupling,
			Outdoor:            simulationOutdoor,
			InitialTemperature: simulationTemperature,
			Loss:               simulationLoss,
			Power:              simulationPower,
			TickRate:           configuration.CurrentConfig.ControllerTickRate,
		})
		if err != nil {
			return err
		}

		duration := time.Duration(simulationHours * float64(time.Hour))
		// one sample per column of the graph
		interval := duration / 100
		result := sim.Run(duration, interval)

		var rows [][]string
		for _, id := range sim.ZoneIds() {
			trace := result.Traces[id]
			status := result.Statuses[id]

			caption := fmt.Sprintf("%s: temperature (°C) over %.0fh, setpoint %.1f°C", id, simulationHours, status.Setpoint)
			graph := asciigraph.Plot(trace.Temperatures, asciigraph.Height(15), asciigraph.Width(100), asciigraph.Caption(caption))
			ui.Printfln(graph)
			ui.Printfln("")

			gains := status.Controller.Gains
			rows = append(rows, []string{
				id,
				strconv.FormatFloat(trace.Temperatures[len(trace.Temperatures)-1], 'f', 2, 64),
				strconv.FormatFloat(status.Setpoint, 'f', 1, 64),
				strconv.FormatFloat(gains.Kp, 'f', 3, 64),
				strconv.FormatFloat(gains.Ki, 'f', 3, 64),
				strconv.FormatFloat(gains.Kd, 'f', 3, 64),
				strconv.Itoa(status.CyclesCompleted),
				strconv.Itoa(len(status.Adjustments)),
			})
		}

		return global.PrintTable(
			[]string{"Zone", "Temperature", "Setpoint", "Kp", "Ki", "Kd", "Cycles", "Adjustments"},
			rows,
		)
	},
}

func init() {
	simulateCmd.Flags().Float64VarP(&simulationHours, "hours", "", 48, "Simulated duration in hours")
	simulateCmd.Flags().Float64VarP(&simulationOutdoor, "outdoor", "o", 0, "Outdoor temperature in °C")
	simulateCmd.Flags().Float64VarP(&simulationTemperature, "temperature", "t", simulation.DefaultInitialTemperature, "Initial room temperature in °C")
	simulateCmd.Flags().Float64VarP(&simulationLoss, "loss", "", simulation.DefaultLoss, "Heat loss of every room in 1/h")
	simulateCmd.Flags().Float64VarP(&simulationPower, "power", "", simulation.DefaultPower, "Temperature rise of every room at full duty in °C/h")

	rootCmd.AddCommand(simulateCmd)
}
