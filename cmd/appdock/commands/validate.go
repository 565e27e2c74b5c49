package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/appdock/appdock/pkg/config"
	"github.com/appdock/appdock/pkg/telemetry"
)

func newValidateCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the application declaration",
		Long: `Validate the application declaration and its resource graph.

This command checks:
  - YAML syntax and unknown fields
  - Required fields and value constraints
  - Connection string templates
  - Cross-references and dependency cycles

With --watch it keeps running and re-validates the file on every change; a
change that fails validation is reported and the previous result stands.`,
		Example: `  # Validate the default config
  appdock validate

  # Validate a specific file
  appdock validate -c ./deploy/appdock.yaml

  # Re-validate on every save
  appdock validate --watch`,
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

			log.Info().
				Str("app", cfg.Name).
				Int("resources", len(g.Resources())).
				Msg("Configuration is valid")

			if jsonOutput {
				if err := json.NewEncoder(os.Stdout).Encode(map[string]any{
					"app":       cfg.Name,
					"resources": len(g.Resources()),
					"valid":     true,
				}); err != nil {
					return err
				}
			} else {
				fmt.Printf("%s: %d resources, configuration valid\n", cfg.Name, len(g.Resources()))
			}

			if !watch {
				return nil
			}
			wlog, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "info", Format: "console"})
			if err != nil {
				return err
			}
			err = config.Watch(cmd.Context(), configPath, wlog.NewComponentLogger("config"),
				func(cfg *config.AppConfig) error {
					g, err := cfg.BuildGraph()
					if err != nil {
						return err
					}
					log.Info().
						Str("app", cfg.Name).
						Int("resources", len(g.Resources())).
						Msg("Configuration is valid")
					return nil
				})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and re-validate on file changes")
	return cmd
}
