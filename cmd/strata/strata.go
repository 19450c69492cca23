// Package stratacmder
package stratacmder

import (
	servecmder "github.com/strataworks/strata/cmd/strata/serve"
	versioncmder "github.com/strataworks/strata/cmd/version"
	"github.com/spf13/cobra"
)

const strataLongDesc string = `Strata is layered semantic memory for your agents.

Run services using:
  strata serve         Run the memory API server`

const strataShortDesc string = "Strata - Layered Agent Memory"

func NewStrataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strata",
		Short: strataShortDesc,
		Long:  strataLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
