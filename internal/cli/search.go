package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/madzarm/ccsearch/internal/claude"
	"github.com/madzarm/ccsearch/internal/indexer"
	"github.com/madzarm/ccsearch/internal/picker"
	"github.com/madzarm/ccsearch/internal/search"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search sessions using hybrid BM25 + vector search",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}
	addSearchFlags(cmd)
	return cmd
}

func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().Int("days", 0, "only search sessions from the last N days")
	cmd.Flags().String("project", "", "filter to a project path prefix")
	cmd.Flags().Int("limit", 0, "maximum number of results")
	cmd.Flags().Bool("no-tui", false, "print results instead of the interactive picker")
	cmd.Flags().Bool("json", false, "output results as JSON")
	cmd.Flags().Float64("bm25-weight", 0, "BM25 weight in RRF fusion")
	cmd.Flags().Float64("vec-weight", 0, "vector weight in RRF fusion")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	query := strings.Join(args, " ")

	days, _ := cmd.Flags().GetInt("days")
	project, _ := cmd.Flags().GetString("project")
	limit, _ := cmd.Flags().GetInt("limit")
	noTUI, _ := cmd.Flags().GetBool("no-tui")
	asJSON, _ := cmd.Flags().GetBool("json")
	bm25Weight, _ := cmd.Flags().GetFloat64("bm25-weight")
	vecWeight, _ := cmd.Flags().GetFloat64("vec-weight")

	// A busy writer lock degrades search to the existing index.
	env, err := openEnv(ctx, false)
	if err != nil {
		return err
	}
	defer env.close()

	if days == 0 {
		days = env.cfg.DefaultDays
	}
	if limit == 0 && !cmd.Flags().Changed("limit") {
		limit = env.cfg.MaxResults
	}
	if bm25Weight == 0 && !cmd.Flags().Changed("bm25-weight") {
		bm25Weight = env.cfg.BM25Weight
	}
	if vecWeight == 0 && !cmd.Flags().Changed("vec-weight") {
		vecWeight = env.cfg.VecWeight
	}

	embedder := env.loadEmbedder(ctx)

	var ix *indexer.Indexer
	if env.canWrite() {
		ix = indexer.New(env.store, embedder, env.cfg)
	}

	searcher := search.New(env.store, embedder, ix)
	results, err := searcher.Search(ctx, search.Params{
		Query:         query,
		Limit:         limit,
		Since:         daysToSince(days),
		ProjectPrefix: project,
		BM25Weight:    bm25Weight,
		VecWeight:     vecWeight,
		RRFK:          env.cfg.RRFK,
		JIT:           true,
	})
	if err != nil {
		return err
	}

	if asJSON {
		return writeResultsJSON(os.Stdout, results)
	}

	if len(results) == 0 {
		fmt.Fprintf(os.Stderr, "No sessions found matching %q.\n", query)
		fmt.Fprintln(os.Stderr, "Try `ccsearch index` first, or broaden your search.")
		return nil
	}

	if noTUI || !stdoutIsTTY() {
		printResults(os.Stdout, results)
		return nil
	}

	chosen, err := picker.Run(query, results)
	if err != nil {
		return err
	}
	if chosen == nil {
		return nil
	}

	fmt.Fprintf(os.Stderr, "Resuming session %s...\n", shortID(chosen.ID))
	sessionID := chosen.ID
	projectPath := ""
	if chosen.Project != nil {
		projectPath = *chosen.Project
	}

	// Drop the store and writer lock before handing the terminal to
	// the assistant.
	env.close()

	code, err := claude.Resume(sessionID, projectPath)
	if err != nil {
		return err
	}
	if code != 0 {
		os.Exit(code)
	}
	return nil
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func stdoutIsTTY() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
