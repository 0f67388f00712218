package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/camfeed/internal/camera"
	"github.com/smazurov/camfeed/internal/config"
	"github.com/smazurov/camfeed/internal/connection"
	"github.com/smazurov/camfeed/internal/logging"
)

// CreateProbeCmd creates the probe command.
func CreateProbeCmd() *cobra.Command {
	opts := DefaultOptions()
	var timeout time.Duration
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "probe <camera-id>",
		Short: "Connect to a camera once and report the result",
		Long: `Connects to the camera with the configured source and credentials, prints the ` +
			`discovered stream and the connect status, then disconnects. Exits non-zero ` +
			`when the connect fails.`,
		Args: cobra.ExactArgs(1),
		Run: func(c *cobra.Command, args []string) {
			if err := config.LoadConfig(opts, c); err != nil {
				slog.Warn("Failed to load config", "error", err)
			}
			opts.CameraID = args[0]
			logging.Initialize(opts.LoggingSettings())

			ctx, cancel := context.WithTimeout(c.Context(), timeout)
			defer cancel()

			result, err := probe(ctx, opts)
			if printErr := printProbe(c.OutOrStdout(), result, asJSON); printErr != nil {
				slog.Error("Failed to print result", "error", printErr)
			}
			if err != nil {
				logging.GetLogger("main").Error("Probe failed", "camera_id", opts.CameraID, "error", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", opts.Config, "Path to configuration file")
	opts.bindCameraFlags(cmd.Flags())
	cmd.Flags().StringVar(&opts.LoggingLevel, "logging-level", opts.LoggingLevel, "Global logging level (debug, info, warn, error)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Give up after this long")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func probe(ctx context.Context, opts *Options) (connection.ProbeResult, error) {
	factory, err := camera.NewFactory(camera.Options{
		Kind:     opts.CameraKind,
		URL:      opts.CameraURL,
		Codec:    opts.CameraCodec,
		FileRate: opts.CameraFileRate,
		Logger:   logging.GetLogger("camera"),
	})
	if err != nil {
		return connection.ProbeResult{CameraID: opts.CameraID, Status: camera.StatusFailed}, err
	}
	return connection.Probe(ctx, factory, connection.Params{
		ID:       opts.CameraID,
		Username: opts.CameraUsername,
		Password: opts.CameraPassword,
	})
}

func printProbe(w io.Writer, r connection.ProbeResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	_, err := fmt.Fprintf(w, "camera:  %s\nstatus:  %d\ncodec:   %s\ndetail:  %s\n", r.CameraID, r.Status, r.Codec, r.Detail)
	return err
}
