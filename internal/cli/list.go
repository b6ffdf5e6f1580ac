package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/madzarm/ccsearch/internal/indexer"
	"github.com/madzarm/ccsearch/internal/search"
	"github.com/madzarm/ccsearch/internal/store"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions without searching",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	cmd.Flags().Int("days", 0, "only list sessions from the last N days")
	cmd.Flags().String("project", "", "filter to a project path prefix")
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	days, _ := cmd.Flags().GetInt("days")
	project, _ := cmd.Flags().GetString("project")
	asJSON, _ := cmd.Flags().GetBool("json")

	env, err := openEnv(ctx, false)
	if err != nil {
		return err
	}
	defer env.close()

	if days == 0 {
		days = env.cfg.DefaultDays
	}

	// Keep listings fresh the same way search does, when we can write.
	if env.canWrite() {
		ix := indexer.New(env.store, env.loadEmbedder(ctx), env.cfg)
		if _, err := ix.Reconcile(ctx, indexer.Options{}); err != nil {
			if indexer.IsCancelled(err) {
				return err
			}
			fmt.Fprintf(os.Stderr, "Warning: index refresh failed: %v\n", err)
		}
	}

	records, err := env.store.List(ctx, store.Filter{
		Since:         daysToSince(days),
		ProjectPrefix: project,
	}, 100)
	if err != nil {
		return err
	}

	if asJSON {
		return writeResultsJSON(os.Stdout, listToResults(records))
	}

	if len(records) == 0 {
		fmt.Fprintln(os.Stderr, "No sessions found. Try `ccsearch index` first.")
		return nil
	}

	printSessionList(os.Stdout, records)
	return nil
}

// listToResults maps stored sessions onto the shared output schema:
// no scores, preview standing in for the snippet.
func listToResults(records []store.SessionRecord) []search.Result {
	results := make([]search.Result, 0, len(records))
	for _, rec := range records {
		r := search.Result{
			ID:        rec.ID,
			StartedAt: rec.StartedAt,
			LastMsgAt: rec.LastMsgAt,
			MsgCount:  rec.MsgCount,
			Snippet:   rec.Preview,
			Summary:   rec.Summary,
			Preview:   rec.Preview,
			GitBranch: rec.GitBranch,
		}
		if rec.Project != "" {
			project := rec.Project
			r.Project = &project
		}
		results = append(results, r)
	}
	return results
}
