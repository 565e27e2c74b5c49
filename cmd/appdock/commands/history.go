package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/appdock/appdock/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		dbPath      string
		session     string
		resource    string
		limit       int
		builds      bool
		allocations bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded lifecycle transitions",
		Long: `Show the lifecycle transitions recorded for a session, optionally filtered
to a single resource. Transitions are listed in report order.

--builds lists the session's image pipeline outcomes instead, and
--allocations its endpoint allocations.`,
		Example: `  # All transitions of a session
  appdock history --session 7d9c...

  # One resource only
  appdock history --session 7d9c... --resource api

  # Image pipeline outcomes
  appdock history --session 7d9c... --builds`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			sess, err := store.GetSession(ctx, session)
			if err != nil {
				return err
			}

			switch {
			case builds:
				return listBuilds(ctx, store, sess)
			case allocations:
				return listAllocations(ctx, store, sess)
			default:
				return listTransitions(ctx, store, sess, resource, limit)
			}
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "appdock.db", "history database path")
	cmd.Flags().StringVar(&session, "session", "", "session id")
	cmd.Flags().StringVar(&resource, "resource", "", "filter to one resource")
	cmd.Flags().IntVar(&limit, "limit", 100, "max transitions to list")
	cmd.Flags().BoolVar(&builds, "builds", false, "list image pipeline outcomes")
	cmd.Flags().BoolVar(&allocations, "allocations", false, "list endpoint allocations")
	cmd.MarkFlagsMutuallyExclusive("builds", "allocations")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func listTransitions(ctx context.Context, store *stores.HistoryStore, sess *stores.Session, resource string, limit int) error {
	records, err := store.ListTransitions(ctx, sess.ID, resource, limit, 0)
	if err != nil {
		return err
	}
	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(records)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REPORTED\tRESOURCE\tSTATE\tLABEL")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			rec.ReportedAt.Format("15:04:05.000"), rec.Resource, rec.State, rec.Label)
	}
	return w.Flush()
}

func listBuilds(ctx context.Context, store *stores.HistoryStore, sess *stores.Session) error {
	records, err := store.ListBuildResults(ctx, sess.ID)
	if err != nil {
		return err
	}
	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(records)
	}
	fmt.Printf("session %s (%s)\n", sess.ID, sess.AppName)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RESOURCE\tIMAGE\tSTATUS\tDURATION\tERROR")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			rec.Resource, rec.Image, rec.Status,
			(time.Duration(rec.DurationMS) * time.Millisecond).String(), rec.Error)
	}
	return w.Flush()
}

func listAllocations(ctx context.Context, store *stores.HistoryStore, sess *stores.Session) error {
	records, err := store.ListAllocations(ctx, sess.ID)
	if err != nil {
		return err
	}
	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(records)
	}
	fmt.Printf("session %s (%s)\n", sess.ID, sess.AppName)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ALLOCATED\tRESOURCE\tENDPOINT\tADDRESS")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s:%d\n",
			rec.AllocatedAt.Format("15:04:05.000"), rec.Resource, rec.Endpoint, rec.Host, rec.Port)
	}
	return w.Flush()
}
