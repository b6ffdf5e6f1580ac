// Package indexer reconciles the transcript directory against the
// index store: discovery, staleness detection, upsert, and deletion of
// orphaned rows.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/madzarm/ccsearch/internal/cerrors"
	"github.com/madzarm/ccsearch/internal/claude"
	"github.com/madzarm/ccsearch/internal/config"
	"github.com/madzarm/ccsearch/internal/embed"
	"github.com/madzarm/ccsearch/internal/store"
	"github.com/madzarm/ccsearch/internal/transcript"
)

// Event reports reconciliation progress to an optional observer. The
// core assumes nothing about a TTY; rendering is the caller's problem.
type Event struct {
	Phase   string // "discover", "index", "delete"
	Done    int
	Total   int
	Current string // session id or path being worked on
}

// Observer receives progress events.
type Observer func(Event)

// Options control a reconciliation pass.
type Options struct {
	Force    bool // treat every candidate as stale
	Days     int  // only consider transcripts touched in the last N days; 0 = all
	Observer Observer
}

// Stats summarizes a completed pass.
type Stats struct {
	Indexed int
	Touched int // mtime refreshed, content unchanged, embedding preserved
	Skipped int
	Deleted int
	Empty   int
	Errored int
}

// Indexer drives reconciliation of transcripts into the store.
type Indexer struct {
	store    *store.Store
	embedder embed.Capability
	cfg      *config.Config
}

// New creates an indexer over an open store.
func New(st *store.Store, embedder embed.Capability, cfg *config.Config) *Indexer {
	return &Indexer{store: st, embedder: embedder, cfg: cfg}
}

// Reconcile runs a full pass: discover transcripts, index new and
// stale sessions in batches, delete rows whose file is gone, and stamp
// the meta table. Writes committed before a cancellation stay committed.
func (ix *Indexer) Reconcile(ctx context.Context, opts Options) (*Stats, error) {
	stats := &Stats{}
	emit := opts.Observer
	if emit == nil {
		emit = func(Event) {}
	}

	emit(Event{Phase: "discover"})
	candidates, err := claude.DiscoverTranscripts(ix.cfg.TranscriptsRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to discover transcripts: %w", err)
	}

	stored, err := ix.store.AllFileStates(ctx)
	if err != nil {
		return nil, err
	}

	var cutoff int64
	if opts.Days > 0 {
		cutoff = time.Now().AddDate(0, 0, -opts.Days).Unix()
	}

	// Cheap staleness: stat each candidate and compare (mtime, size)
	// against the stored fingerprint.
	byPath := make(map[string]store.FileState, len(stored))
	for _, fs := range stored {
		byPath[fs.Path] = fs
	}

	var work []workItem
	for _, cand := range candidates {
		info, err := os.Stat(cand.Path)
		if err != nil {
			log.Printf("skipping unreadable transcript %s: %v", cand.Path, err)
			stats.Errored++
			continue
		}
		if cutoff > 0 && info.ModTime().Unix() < cutoff {
			continue
		}

		prev, known := byPath[cand.Path]
		if known && !opts.Force &&
			prev.FileMtime == info.ModTime().Unix() && prev.FileSize == info.Size() {
			stats.Skipped++
			continue
		}

		item := workItem{
			candidate: cand,
			mtime:     info.ModTime().Unix(),
			size:      info.Size(),
		}
		if known {
			item.prevHash = prev.ContentHash
			item.prevID = prev.ID
		}
		work = append(work, item)
	}

	// Enumeration order is batch commit order; keep it stable.
	sort.Slice(work, func(i, j int) bool { return work[i].candidate.Path < work[j].candidate.Path })

	if err := ix.indexBatches(ctx, work, opts.Force, stats, emit); err != nil {
		return stats, err
	}

	// Orphans: stored sessions whose transcript no longer exists.
	// Deletion considers the full candidate set, not the day-filtered
	// one, so a --days pass never deletes older sessions.
	livePaths := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		livePaths[c.Path] = true
	}
	var orphans []string
	for id, fs := range stored {
		if !livePaths[fs.Path] {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)

	for i, id := range orphans {
		if err := ctx.Err(); err != nil {
			return stats, cerrors.Wrap(cerrors.KindCancelled, err)
		}
		emit(Event{Phase: "delete", Done: i + 1, Total: len(orphans), Current: id})
		if err := ix.store.Delete(ctx, id); err != nil {
			return stats, err
		}
		stats.Deleted++
	}

	_, available := ix.embedder.Get()
	if err := ix.store.MarkIndexed(ctx, available, ix.cfg.ModelName); err != nil {
		return stats, err
	}

	return stats, nil
}

type workItem struct {
	candidate claude.Candidate
	mtime     int64
	size      int64
	prevHash  string
	prevID    string
}

type parsed struct {
	item    workItem
	session *transcript.Session
	vector  []float32
	touch   bool // metadata refresh only
	empty   bool
	failed  bool
}

// indexBatches processes stale sessions in batches: parsing and
// embedding run on a worker pool, writes go through the single store
// writer in enumeration order. Each upsert or touch commits in its own
// transaction, so a batch is not written atomically; a failure mid-run
// leaves the store consistent with the sessions already written.
func (ix *Indexer) indexBatches(ctx context.Context, work []workItem, force bool, stats *Stats, emit Observer) error {
	batchSize := ix.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	indexCache := make(map[string]map[string]claude.IndexEntry)
	done := 0

	for start := 0; start < len(work); start += batchSize {
		if err := ctx.Err(); err != nil {
			return cerrors.Wrap(cerrors.KindCancelled, err)
		}

		end := start + batchSize
		if end > len(work) {
			end = len(work)
		}
		batch := work[start:end]

		results := make([]parsed, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(runtime.NumCPU())

		for i := range batch {
			g.Go(func() error {
				results[i] = ix.prepare(gctx, batch[i], force)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for _, res := range results {
			if err := ctx.Err(); err != nil {
				return cerrors.Wrap(cerrors.KindCancelled, err)
			}
			done++
			emit(Event{Phase: "index", Done: done, Total: len(work), Current: res.item.candidate.SessionID})

			switch {
			case res.failed:
				stats.Errored++
			case res.empty:
				stats.Empty++
			case res.touch:
				if err := ix.store.TouchFile(ctx, res.item.prevID, res.item.mtime, res.item.size); err != nil {
					return err
				}
				stats.Touched++
			default:
				rec := ix.buildRecord(res, indexCache)
				if err := ix.store.Upsert(ctx, rec, res.vector); err != nil {
					return err
				}
				stats.Indexed++
			}
		}
	}
	return nil
}

// prepare parses and, when needed, embeds one transcript. Runs on the
// worker pool; must not touch the store.
func (ix *Indexer) prepare(ctx context.Context, item workItem, force bool) parsed {
	res := parsed{item: item}

	sess, err := transcript.Read(item.candidate.Path, ix.cfg.MaxTextChars)
	if err != nil {
		switch cerrors.KindOf(err) {
		case cerrors.KindTranscriptEmpty:
			res.empty = true
		default:
			log.Printf("failed to read transcript %s: %v", item.candidate.Path, err)
			res.failed = true
		}
		return res
	}
	res.session = sess

	// The mtime moved but the content didn't: refresh the fingerprint
	// and keep the stored embedding.
	if !force && item.prevHash != "" && item.prevHash == sess.ContentHash {
		res.touch = true
		return res
	}

	if embedder, ok := ix.embedder.Get(); ok {
		vecs, err := embedder.EmbedBatch(ctx, []string{sess.Text})
		if err != nil {
			log.Printf("failed to embed session %s: %v", sess.ID, err)
		} else if len(vecs) == 1 {
			res.vector = vecs[0]
		}
	}
	return res
}

// buildRecord assembles the store row, enriching it from the project's
// sessions-index.json sidecar when one exists.
func (ix *Indexer) buildRecord(res parsed, indexCache map[string]map[string]claude.IndexEntry) *store.SessionRecord {
	sess := res.session
	rec := &store.SessionRecord{
		ID:          sess.ID,
		Path:        sess.Path,
		Project:     sess.Project,
		StartedAt:   sess.StartedAt,
		LastMsgAt:   sess.LastMsgAt,
		MsgCount:    sess.MsgCount,
		FileMtime:   res.item.mtime,
		FileSize:    res.item.size,
		ContentHash: sess.ContentHash,
		Text:        sess.Text,
		Preview:     sess.Preview,
	}

	if rec.Project == "" {
		rec.Project = claude.DecodeProjectPath(res.item.candidate.EncodedName)
	}

	projectDir := filepath.Dir(sess.Path)
	entries, cached := indexCache[projectDir]
	if !cached {
		var err error
		entries, err = claude.LoadSessionIndex(projectDir)
		if err != nil {
			log.Printf("failed to load session index for %s: %v", projectDir, err)
		}
		indexCache[projectDir] = entries
	}

	if entry, ok := entries[sess.ID]; ok {
		rec.Summary = entry.Summary
		rec.Slug = entry.Slug
		rec.GitBranch = entry.GitBranch
		if rec.Preview == "" && entry.FirstPrompt != "" {
			rec.Preview = entry.FirstPrompt
		}
		if entry.ProjectPath != "" {
			rec.Project = entry.ProjectPath
		}
		if entry.MessageCount > rec.MsgCount {
			rec.MsgCount = entry.MessageCount
		}
	}
	return rec
}

// IsCancelled reports whether err came from cooperative cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || cerrors.KindOf(err) == cerrors.KindCancelled
}
