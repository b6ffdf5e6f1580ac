package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/madzarm/ccsearch/internal/indexer"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Rebuild the search index",
		Args:  cobra.NoArgs,
		RunE:  runIndex,
	}
	cmd.Flags().Int("days", 0, "only index sessions from the last N days")
	cmd.Flags().Bool("force", false, "reindex everything, ignoring staleness checks")
	cmd.Flags().Bool("verbose", false, "show per-session progress")
	return cmd
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	days, _ := cmd.Flags().GetInt("days")
	force, _ := cmd.Flags().GetBool("force")
	verbose, _ := cmd.Flags().GetBool("verbose")

	// Index is a write command: a busy lock is fatal here.
	env, err := openEnv(ctx, true)
	if err != nil {
		return err
	}
	defer env.close()

	embedder := env.loadEmbedder(ctx)

	fmt.Fprintln(os.Stderr, "Indexing Claude Code sessions...")

	var observer indexer.Observer
	if verbose {
		observer = func(ev indexer.Event) {
			if ev.Phase == "discover" {
				fmt.Fprintln(os.Stderr, "discovering transcripts...")
				return
			}
			fmt.Fprintf(os.Stderr, "[%s %d/%d] %s\n", ev.Phase, ev.Done, ev.Total, ev.Current)
		}
	} else {
		observer = func(ev indexer.Event) {
			if ev.Phase == "index" && ev.Total > 0 && (ev.Done%50 == 0 || ev.Done == ev.Total) {
				fmt.Fprintf(os.Stderr, "  %d/%d sessions\n", ev.Done, ev.Total)
			}
		}
	}

	ix := indexer.New(env.store, embedder, env.cfg)
	stats, err := ix.Reconcile(ctx, indexer.Options{
		Force:    force,
		Days:     days,
		Observer: observer,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Done: %d indexed, %d refreshed, %d unchanged, %d deleted, %d empty, %d errors\n",
		stats.Indexed, stats.Touched, stats.Skipped, stats.Deleted, stats.Empty, stats.Errored)
	return nil
}
