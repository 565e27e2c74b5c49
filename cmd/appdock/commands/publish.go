package commands

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/appdock/appdock/pkg/config"
	"github.com/appdock/appdock/pkg/manifest"
)

func newPublishCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Export the deployment manifest",
		Long: `Export the application's deployment manifest as JSON.

The manifest captures the static declaration: resource types, image
references, bindings, and format-only connection strings. It is validated
against the manifest schema before being written.`,
		Example: `  # Print the manifest to stdout
  appdock publish

  # Write it to a file
  appdock publish -o manifest.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			g, err := cfg.BuildGraph()
			if err != nil {
				return err
			}
			exporter, err := manifest.NewExporter(g, nil)
			if err != nil {
				return err
			}

			w := os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := exporter.WriteJSON(w); err != nil {
				return err
			}
			if output != "" {
				log.Info().Str("path", output).Msg("Manifest written")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the manifest to a file instead of stdout")
	return cmd
}
