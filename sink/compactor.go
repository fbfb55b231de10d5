package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/INLOpen/lakesink/core"
	"github.com/INLOpen/lakesink/datafile"
	"github.com/INLOpen/lakesink/hooks"
	"github.com/INLOpen/lakesink/table"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const defaultCompactionConcurrency = 4

// compactorConfig is assembled by the builder. fs is rooted at the table
// directory.
type compactorConfig struct {
	table          *table.Table
	fs             afero.Fs
	format         core.FileFormat
	targetFileSize int64
	blockSize      int
	concurrency    int64
	hooks          hooks.HookManager
	logger         *slog.Logger
	tracer         trace.Tracer
	maxRetries     int
	retryBase      time.Duration
}

// Compactor merges accumulations of small files back into files near the
// target size, one partition at a time. Compaction is strictly a background
// maintenance task: it rewrites live records without changing their order and
// publishes each rewrite as a replacement commit. Failures are logged and
// reported through hooks, never escalated to the write path.
type Compactor struct {
	cfg compactorConfig
	sem *semaphore.Weighted

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewCompactor creates a compactor over the table behind cfg.
func NewCompactor(cfg compactorConfig) *Compactor {
	if cfg.concurrency <= 0 {
		cfg.concurrency = defaultCompactionConcurrency
	}
	if cfg.maxRetries <= 0 {
		cfg.maxRetries = defaultCommitRetries
	}
	if cfg.retryBase <= 0 {
		cfg.retryBase = defaultCommitRetryBase
	}
	return &Compactor{
		cfg:      cfg,
		sem:      semaphore.NewWeighted(cfg.concurrency),
		inflight: make(map[string]struct{}),
	}
}

// CompactAll examines every partition of the current snapshot and compacts
// the ones that accumulated at least two undersized files. Partitions are
// processed concurrently up to the configured limit. Per-partition failures
// do not fail the pass.
func (c *Compactor) CompactAll(ctx context.Context) error {
	snap, err := c.cfg.table.CurrentSnapshot()
	if err != nil {
		return err
	}

	// Group the live files by partition, preserving snapshot order within
	// each group so rewrites keep record order.
	type group struct {
		key   core.PartitionKey
		files []core.DataFile
	}
	groups := make(map[string]*group)
	var order []string
	for _, f := range snap.Files {
		p := f.Partition.Path()
		g, ok := groups[p]
		if !ok {
			g = &group{key: f.Partition}
			groups[p] = g
			order = append(order, p)
		}
		g.files = append(g.files, f)
	}

	eg, ctx := errgroup.WithContext(ctx)
	for _, p := range order {
		g := groups[p]
		eg.Go(func() error {
			if err := c.sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer c.sem.Release(1)
			c.compactPartition(ctx, snap, g.key, g.files)
			return nil
		})
	}
	return eg.Wait()
}

// compactPartition rewrites one partition's undersized files. All failures
// are downgraded to a log line and a PostCompaction event.
func (c *Compactor) compactPartition(ctx context.Context, snap core.Snapshot, key core.PartitionKey, files []core.DataFile) {
	p := key.Path()
	c.mu.Lock()
	if _, busy := c.inflight[p]; busy {
		c.mu.Unlock()
		return
	}
	c.inflight[p] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, p)
		c.mu.Unlock()
	}()

	var candidates []core.DataFile
	for _, f := range files {
		if f.SizeBytes < c.cfg.targetFileSize {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) < 2 {
		return
	}

	var span trace.Span
	if c.cfg.tracer != nil {
		ctx, span = c.cfg.tracer.Start(ctx, "Compactor.compactPartition")
		span.SetAttributes(
			attribute.String("partition", key.String()),
			attribute.Int("candidates", len(candidates)),
		)
		defer span.End()
	}

	produced, err := c.rewrite(ctx, key, candidates)
	if err == nil {
		err = c.commitReplacement(ctx, snap, produced, candidates)
		if err != nil {
			c.removeFiles(produced)
			produced = nil
		}
	}
	if err != nil {
		cerr := &core.CompactionError{Partition: key.String(), Err: err}
		c.cfg.logger.Error("Compaction failed", "partition", key.String(), "error", cerr)
		if span != nil {
			span.SetStatus(codes.Error, cerr.Error())
		}
		c.firePostCompaction(ctx, key, nil, nil, cerr)
		return
	}

	c.cfg.logger.Info("Partition compacted",
		"partition", key.String(),
		"replaced", len(candidates),
		"produced", len(produced))
	c.firePostCompaction(ctx, key, candidates, produced, nil)
}

// rewrite streams every candidate's records, in file order, into a fresh
// rolling file chain near the target size.
func (c *Compactor) rewrite(ctx context.Context, key core.PartitionKey, candidates []core.DataFile) ([]core.DataFile, error) {
	dir := core.DataDirName
	if p := key.Path(); p != "" {
		dir = path.Join(dir, p)
	}
	rw := datafile.NewRollingWriter(datafile.RollingOptions{
		FS:     c.cfg.fs,
		Format: c.cfg.format,
		NextPath: func(seq int) string {
			return path.Join(dir, fmt.Sprintf("compact-%05d-%s.lake", seq, uuid.New()))
		},
		TargetFileSize: c.cfg.targetFileSize,
		BlockSize:      c.cfg.blockSize,
		Logger:         c.cfg.logger,
		Tracer:         c.cfg.tracer,
	})

	// The input files carry the checkpoint ids of their original commits;
	// the rewrite keeps the newest one so recovery reconciliation cannot
	// move the committed watermark backwards.
	var maxCheckpoint int64
	for _, f := range candidates {
		if f.CheckpointID > maxCheckpoint {
			maxCheckpoint = f.CheckpointID
		}
		r, err := datafile.OpenReader(c.cfg.fs, f.Path)
		if err != nil {
			rw.Abort()
			return nil, err
		}
		if err := copyRecords(ctx, rw, r); err != nil {
			r.Close()
			rw.Abort()
			return nil, err
		}
		if err := r.Close(); err != nil {
			rw.Abort()
			return nil, err
		}
	}

	produced, err := rw.Finish(ctx)
	if err != nil {
		return nil, err
	}
	for i := range produced {
		produced[i].Partition = key
		produced[i].CheckpointID = maxCheckpoint
	}
	return produced, nil
}

func copyRecords(ctx context.Context, rw *datafile.RollingWriter, r *datafile.Reader) error {
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := rw.Append(ctx, rec); err != nil {
			return err
		}
	}
}

// commitReplacement publishes the rewrite, retrying on concurrent metadata
// changes. If any replaced file stops being live, a concurrent rewrite beat
// this one and the commit is abandoned.
func (c *Compactor) commitReplacement(ctx context.Context, base core.Snapshot, produced, replaced []core.DataFile) error {
	delay := c.cfg.retryBase
	var lastErr error
	for attempt := 0; attempt < c.cfg.maxRetries; attempt++ {
		_, err := c.cfg.table.Commit(ctx, base, produced, replaced)
		if err == nil {
			return nil
		}
		if !errors.Is(err, core.ErrCommitConflict) {
			return err
		}
		lastErr = err

		base, err = c.cfg.table.CurrentSnapshot()
		if err != nil {
			return err
		}
		for _, f := range replaced {
			if base.FindFile(f.Path) < 0 {
				return fmt.Errorf("file %s was replaced concurrently: %w", f.Path, lastErr)
			}
		}

		c.cfg.logger.Warn("Compaction commit conflict, retrying",
			"attempt", attempt+1,
			"max_retries", c.cfg.maxRetries,
			"delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if delay > defaultCommitRetryCeil {
			delay = defaultCommitRetryCeil
		}
	}
	return fmt.Errorf("replacement commit failed after %d attempts: %w", c.cfg.maxRetries, lastErr)
}

// removeFiles deletes rewrite output that never made it into a commit.
func (c *Compactor) removeFiles(files []core.DataFile) {
	for _, f := range files {
		if err := c.cfg.fs.Remove(f.Path); err != nil {
			c.cfg.logger.Warn("Failed to remove abandoned compaction output", "path", f.Path, "error", err)
		}
	}
}

func (c *Compactor) firePostCompaction(ctx context.Context, key core.PartitionKey, replaced, produced []core.DataFile, err error) {
	if hookErr := c.cfg.hooks.Trigger(ctx, hooks.NewPostCompactionEvent(hooks.PostCompactionPayload{
		Partition: key,
		Replaced:  replaced,
		Produced:  produced,
		Error:     err,
	})); hookErr != nil {
		c.cfg.logger.Error("PostCompaction hook failed", "error", hookErr)
	}
}
