package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smazurov/camfeed/internal/logging"
	"github.com/smazurov/camfeed/internal/updater"
)

// CreateUpdateCmd creates the update command.
func CreateUpdateCmd() *cobra.Command {
	opts := updater.Options{Repository: updater.DefaultRepository}
	var checkOnly, rollback bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Replace this binary with the latest release",
		Long: `Downloads the latest GitHub release over the running executable, keeping a ` +
			`backup of the current one. Restart the service afterwards to pick it up.`,
		Args: cobra.NoArgs,
		Run: func(c *cobra.Command, _ []string) {
			logging.Initialize(logging.Config{Level: "info", Format: "text"})
			logger := logging.GetLogger("updater")
			opts.Logger = logger

			u, err := updater.New(opts)
			if err != nil {
				logger.Error("Failed to create updater", "error", err)
				os.Exit(1)
			}

			out := c.OutOrStdout()
			switch {
			case rollback:
				v, err := u.Rollback()
				if err != nil {
					logger.Error("Rollback failed", "error", err)
					os.Exit(1)
				}
				fmt.Fprintf(out, "restored %s\n", v)

			case checkOnly:
				info, err := u.Check(c.Context())
				if err != nil {
					logger.Error("Update check failed", "error", err)
					os.Exit(1)
				}
				fmt.Fprintf(out, "current %s, latest %s, update available: %v\n",
					info.CurrentVersion, info.LatestVersion, info.UpdateAvailable)

			default:
				info, err := u.Apply(c.Context())
				if errors.Is(err, &updater.Error{Code: updater.ErrCodeNoUpdate}) {
					fmt.Fprintf(out, "already at %s\n", info.CurrentVersion)
					return
				}
				if err != nil {
					logger.Error("Update failed", "error", err)
					os.Exit(1)
				}
				fmt.Fprintf(out, "updated %s -> %s\n", info.CurrentVersion, info.LatestVersion)
			}
		},
	}

	cmd.Flags().StringVar(&opts.Repository, "repository", opts.Repository, "GitHub repository slug")
	cmd.Flags().BoolVar(&opts.Prerelease, "prerelease", false, "Include prereleases")
	cmd.Flags().StringVar(&opts.BackupDir, "backup-dir", "", "Where the previous binary is kept")
	cmd.Flags().BoolVar(&checkOnly, "check", false, "Only report whether an update is available")
	cmd.Flags().BoolVar(&rollback, "rollback", false, "Restore the binary saved by the last update")
	cmd.MarkFlagsMutuallyExclusive("check", "rollback")
	return cmd
}
