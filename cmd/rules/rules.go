package rules

import (
	"github.com/spf13/cobra"
)

var Command = &cobra.Command{
	Use:              "rules",
	Short:            "Tuning rule related commands",
	Long:             ``,
	TraverseChildren: true,
}
