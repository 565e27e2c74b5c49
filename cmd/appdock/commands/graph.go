package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/appdock/appdock/pkg/config"
)

func newGraphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Show the resource graph and start order",
		Long: `Show the sealed resource graph: each resource with its dependencies, and
the topological start levels. Resources within one level have no dependency
relationship and can start in parallel.`,
		Example: `  # Show the graph as text
  appdock graph

  # Machine-readable output
  appdock graph --json`,
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

			if jsonOutput {
				deps := make(map[string][]string)
				for _, r := range g.Resources() {
					deps[r.Name()] = g.Dependencies(r.Name())
				}
				return json.NewEncoder(os.Stdout).Encode(map[string]any{
					"app":          cfg.Name,
					"dependencies": deps,
					"start_order":  g.StartOrder(),
				})
			}

			fmt.Printf("application: %s\n\n", cfg.Name)
			for _, r := range g.Resources() {
				deps := g.Dependencies(r.Name())
				if len(deps) == 0 {
					fmt.Printf("  %s (%s)\n", r.Name(), r.Kind())
					continue
				}
				fmt.Printf("  %s (%s) -> %s\n", r.Name(), r.Kind(), strings.Join(deps, ", "))
			}
			fmt.Println("\nstart order:")
			for i, level := range g.StartOrder() {
				fmt.Printf("  %d. %s\n", i+1, strings.Join(level, ", "))
			}
			return nil
		},
	}
	return cmd
}
