package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"evalgo.org/mgapphost/pkg/appmodel"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Print the deployment manifest",
	Long: `Print the deployment manifest of the configured application model.
Resources excluded from publishing, such as Memgraph Lab, are omitted and
endpoint values are rendered as placeholders.

Examples:
  mgapphost manifest
  mgapphost manifest --format yaml > manifest.yaml`,
	RunE: runManifest,
}

func init() {
	manifestCmd.Flags().StringP("format", "f", "json", "output format (json, yaml)")
}

func runManifest(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}

	app, _, err := buildModel(cfg, logger)
	if err != nil {
		return err
	}

	return writeManifest(cmd.Context(), cmd.OutOrStdout(), app, format)
}

func writeManifest(ctx context.Context, w io.Writer, app *appmodel.Application, format string) error {
	m, err := appmodel.PublishManifest(ctx, app)
	if err != nil {
		return fmt.Errorf("failed to build manifest: %w", err)
	}

	switch format {
	case "json":
		return m.WriteJSON(w)
	case "yaml", "yml":
		return m.WriteYAML(w)
	default:
		return fmt.Errorf("unsupported format %q (want json or yaml)", format)
	}
}
