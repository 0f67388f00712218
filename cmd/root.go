package cmd

import (
	"github.com/spf13/cobra"

	"github.com/smazurov/camfeed/internal/version"
)

// CreateRootCmd creates the camfeed command. Without a subcommand it behaves
// like run and accepts the same flags.
func CreateRootCmd() *cobra.Command {
	runCmd := CreateRunCmd()

	root := &cobra.Command{
		Use:     "camfeed",
		Short:   "Network camera to pull-consumer bridge",
		Version: version.String(),
		Args:    cobra.NoArgs,
		Run:     runCmd.Run,
	}
	root.Flags().AddFlagSet(runCmd.Flags())

	root.AddCommand(runCmd)
	root.AddCommand(CreateProbeCmd())
	root.AddCommand(CreateVersionCmd())
	root.AddCommand(CreateUpdateCmd())
	return root
}
