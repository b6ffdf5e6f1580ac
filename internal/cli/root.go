// Package cli wires the cobra command surface: search (the default),
// index, list, and config. The core packages never print results; all
// rendering lives here.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/madzarm/ccsearch/internal/cerrors"
	"github.com/madzarm/ccsearch/internal/config"
	"github.com/madzarm/ccsearch/internal/embed"
	"github.com/madzarm/ccsearch/internal/store"
)

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	root := newRootCmd()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cerrors.ExitCode(err)
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ccsearch [query]",
		Short: "Hybrid search over Claude Code chat sessions",
		Long: `ccsearch indexes Claude Code transcripts and searches them with
BM25 keyword matching fused with semantic vector similarity.`,
		Example: `  ccsearch "authentication bug"
  ccsearch search "refactor" --days 7 --no-tui
  ccsearch index --force
  ccsearch list --days 30 --json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Bare `ccsearch <query>` is search.
			if len(args) == 0 {
				return cmd.Help()
			}
			return runSearch(cmd, args)
		},
	}

	addSearchFlags(root)
	root.AddCommand(newSearchCmd())
	root.AddCommand(newIndexCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newConfigCmd())
	return root
}

// env bundles the per-command resources: config, store, and an
// optional writer lock.
type env struct {
	cfgMgr *config.Manager
	cfg    *config.Config
	store  *store.Store
	lock   *store.WriterLock
}

// openEnv opens the store and, when asked, acquires the writer lock.
// With requireWriter false a busy lock degrades to read-only (lock is
// nil); with it true the busy error is fatal.
func openEnv(ctx context.Context, requireWriter bool) (*env, error) {
	cfgMgr, err := config.NewManager()
	if err != nil {
		return nil, err
	}
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, err
	}

	lock, err := store.AcquireWriter(cfgMgr.DataDir())
	if err != nil {
		if requireWriter || cerrors.KindOf(err) != cerrors.KindStoreBusy {
			return nil, err
		}
		lock = nil
	}

	st, err := store.Open(ctx, cfgMgr.DBPath())
	if err != nil {
		if lock != nil {
			lock.Release()
		}
		return nil, err
	}

	return &env{cfgMgr: cfgMgr, cfg: cfg, store: st, lock: lock}, nil
}

// close releases the store and lock. Must run before re-exec'ing the
// assistant so the writer lock never outlives the process.
func (e *env) close() {
	if e.store != nil {
		e.store.Close()
	}
	if e.lock != nil {
		e.lock.Release()
	}
}

// canWrite reports whether this invocation holds the writer lock.
func (e *env) canWrite() bool {
	return e.lock != nil
}

// loadEmbedder acquires the model (once per process) and returns the
// capability. Never fatal: absence means lexical-only mode.
func (e *env) loadEmbedder(ctx context.Context) embed.Capability {
	cap := embed.Load(ctx, e.cfgMgr.ModelsDir(), embed.DefaultAcquireTimeout)
	if _, ok := cap.Get(); !ok {
		fmt.Fprintf(os.Stderr, "Note: embedding model unavailable (%s); using keyword search only.\n", cap.Reason())
	}
	return cap
}

func daysToSince(days int) int64 {
	if days <= 0 {
		return 0
	}
	return time.Now().AddDate(0, 0, -days).Unix()
}
