package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/appdock/appdock/pkg/config"
	"github.com/appdock/appdock/pkg/imagebuild"
	"github.com/appdock/appdock/pkg/stores"
	"github.com/appdock/appdock/pkg/telemetry"
)

func newBuildCommand() *cobra.Command {
	var (
		concurrency int
		abort       bool
		dbPath      string
		traced      bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build, tag, and push the application's images",
		Long: `Run every buildable image through the build, tag, and push pipeline.

Images with a build context are built against the local container engine and,
when a registry is configured, tagged and pushed. Pull-only images are
skipped. Identical images declared on multiple resources are built once per
declaration; share a resource instead to share a build.`,
		Example: `  # Build with the configured settings
  appdock build

  # Bound parallelism and stop at the first failure
  appdock build --concurrency 2 --abort-on-failure`,
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

			auth := imagebuild.RegistryAuth{
				Username:      cfg.Registry.Username,
				Password:      cfg.Registry.Password,
				ServerAddress: cfg.Registry.Host,
			}
			jobs := imagebuild.JobsFrom(g, auth)
			if len(jobs) == 0 {
				log.Info().Msg("No buildable images declared")
				return nil
			}

			builder, err := imagebuild.NewDockerBuilder(nil)
			if err != nil {
				return err
			}
			defer builder.Close()

			if !cmd.Flags().Changed("concurrency") {
				concurrency = cfg.Build.Concurrency
			}
			if !cmd.Flags().Changed("abort-on-failure") {
				abort = cfg.Build.AbortOnFailure
			}

			opts := []imagebuild.PipelineOption{
				imagebuild.WithConcurrency(concurrency),
				imagebuild.WithProgressOutput(func(resource, line string) {
					if verbose {
						log.Debug().Str("resource", resource).Msg(line)
					}
				}),
			}
			if abort {
				opts = append(opts, imagebuild.AbortOnFirstFailure())
			}
			if traced {
				tele := telemetry.DefaultConfig()
				tele.Tracing.Enabled = true
				tele.Tracing.Exporter = "stdout"
				tracer, err := telemetry.NewTracer(tele.Tracing, tele.ServiceName, tele.ServiceVersion, tele.Environment)
				if err != nil {
					return err
				}
				defer tracer.Shutdown(context.Background())
				opts = append(opts, imagebuild.WithPipelineTracer(tracer))
			}
			if verbose {
				plog, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "debug", Format: "console"})
				if err != nil {
					return err
				}
				opts = append(opts, imagebuild.WithPipelineLogger(plog.NewComponentLogger("imagebuild")))
			}

			pipeline := imagebuild.NewPipeline(builder, opts...)
			results, err := pipeline.Run(cmd.Context(), jobs)
			for _, r := range results {
				if r.Err != nil {
					log.Error().Err(r.Err).Str("resource", r.Resource).Str("image", r.Image).Msg("Image pipeline failed")
					continue
				}
				fmt.Printf("%s: %s (%s)\n", r.Resource, r.Image, r.Duration.Round(time.Millisecond))
			}
			if dbPath != "" {
				if recErr := recordBuildResults(cmd, dbPath, cfg.Name, results); recErr != nil {
					log.Warn().Err(recErr).Msg("Failed to record build history")
				}
			}
			return err
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "max images in flight, 0 for CPU count")
	cmd.Flags().BoolVar(&abort, "abort-on-failure", false, "cancel remaining builds after the first failure")
	cmd.Flags().StringVar(&dbPath, "db", "", "record build outcomes in the history database")
	cmd.Flags().BoolVar(&traced, "trace", false, "emit pipeline step spans to stdout")
	return cmd
}

// recordBuildResults persists pipeline outcomes under a fresh session.
func recordBuildResults(cmd *cobra.Command, dbPath, appName string, results []imagebuild.Result) error {
	store, err := stores.NewHistoryStore(stores.Config{Path: dbPath})
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	session, err := store.CreateSession(ctx, appName)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, r := range results {
		rec := &stores.BuildResultRecord{
			SessionID:  session.ID,
			Resource:   r.Resource,
			Image:      r.Image,
			Status:     "ok",
			DurationMS: r.Duration.Milliseconds(),
			FinishedAt: now,
		}
		if r.Err != nil {
			rec.Status = "error"
			rec.Error = r.Err.Error()
		}
		if err := store.RecordBuildResult(ctx, rec); err != nil {
			return err
		}
	}
	log.Info().Str("session", session.ID).Int("results", len(results)).Msg("Build history recorded")
	return nil
}
