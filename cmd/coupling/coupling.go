package coupling

import (
	"github.com/spf13/cobra"
)

var Command = &cobra.Command{
	Use:              "coupling",
	Short:            "Thermal coupling related commands",
	Long:             ``,
	TraverseChildren: true,
}
