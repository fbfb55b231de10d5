package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/INLOpen/lakesink/checkpoint"
	"github.com/INLOpen/lakesink/core"
	"github.com/INLOpen/lakesink/hooks"
	"github.com/INLOpen/lakesink/table"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultCommitRetries   = 5
	defaultCommitRetryBase = 50 * time.Millisecond
	defaultCommitRetryCeil = 2 * time.Second
)

// coordinatorConfig is assembled by the builder. fs is rooted at the table
// directory, so stateDir and all data file paths are table-relative.
type coordinatorConfig struct {
	table       *table.Table
	fs          afero.Fs
	stateDir    string
	parallelism int
	hooks       hooks.HookManager
	logger      *slog.Logger
	tracer      trace.Tracer
	maxRetries  int
	retryBase   time.Duration
}

// pendingCheckpoint collects the write results of one in-flight checkpoint.
type pendingCheckpoint struct {
	results map[int]core.WriteResult
}

// Coordinator is the single commit point of the sink. It gathers one
// WriteResult per writer per checkpoint and, once a checkpoint is complete,
// publishes all of its files to the table in a single atomic commit.
//
// Commits are idempotent: the coordinator persists its state alongside the
// table and discards write results that were already folded into a committed
// checkpoint, so replaying an interval after a restart cannot duplicate data.
type Coordinator struct {
	cfg     coordinatorConfig
	state   *core.CommitState
	pending map[int64]*pendingCheckpoint
}

// NewCoordinator restores coordinator state from the table directory. A
// freshly created table starts with an empty state.
func NewCoordinator(cfg coordinatorConfig) (*Coordinator, error) {
	if cfg.stateDir == "" {
		cfg.stateDir = core.MetadataDirName
	}
	if cfg.maxRetries <= 0 {
		cfg.maxRetries = defaultCommitRetries
	}
	if cfg.retryBase <= 0 {
		cfg.retryBase = defaultCommitRetryBase
	}

	state, existed, err := checkpoint.Read(cfg.fs, cfg.stateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to restore coordinator state: %w", err)
	}

	c := &Coordinator{
		cfg:     cfg,
		state:   state,
		pending: make(map[int64]*pendingCheckpoint),
	}

	// The table commit lands before the state file is rewritten, so a crash
	// between the two leaves the state one checkpoint behind. The committed
	// files carry their checkpoint id; trust the table over the state file.
	snap, err := cfg.table.CurrentSnapshot()
	if err != nil {
		return nil, err
	}
	for _, f := range snap.Files {
		if f.CheckpointID > c.state.LastCommitted {
			if err := c.state.Advance(f.CheckpointID); err != nil {
				return nil, err
			}
		}
	}
	if existed || c.state.LastCommitted > 0 {
		cfg.logger.Info("Coordinator state restored",
			"last_committed", c.state.LastCommitted,
			"state_file_present", existed)
	}
	return c, nil
}

// LastCommitted returns the id of the newest committed checkpoint.
func (c *Coordinator) LastCommitted() int64 {
	return c.state.LastCommitted
}

// Receive folds one writer's result into the matching in-flight checkpoint.
// Results for already committed checkpoints and duplicate (checkpoint,
// writer) pairs are dropped. When the last missing writer reports in, the
// checkpoint is committed before Receive returns.
func (c *Coordinator) Receive(ctx context.Context, res core.WriteResult) error {
	if res.CheckpointID <= c.state.LastCommitted {
		c.cfg.logger.Debug("Dropping write result for committed checkpoint",
			"checkpoint_id", res.CheckpointID,
			"writer_id", res.WriterID,
			"last_committed", c.state.LastCommitted)
		return nil
	}
	seen, err := c.state.AlreadySeen(res.CheckpointID, res.WriterID)
	if err != nil {
		return err
	}
	if seen {
		c.cfg.logger.Debug("Dropping duplicate write result",
			"checkpoint_id", res.CheckpointID,
			"writer_id", res.WriterID)
		return nil
	}
	if err := c.state.MarkSeen(res.CheckpointID, res.WriterID); err != nil {
		return err
	}

	pc, ok := c.pending[res.CheckpointID]
	if !ok {
		pc = &pendingCheckpoint{results: make(map[int]core.WriteResult)}
		c.pending[res.CheckpointID] = pc
	}
	pc.results[res.WriterID] = res

	if len(pc.results) < c.cfg.parallelism {
		return nil
	}
	return c.commitCheckpoint(ctx, res.CheckpointID, pc)
}

func (c *Coordinator) commitCheckpoint(ctx context.Context, checkpointID int64, pc *pendingCheckpoint) error {
	var span trace.Span
	if c.cfg.tracer != nil {
		ctx, span = c.cfg.tracer.Start(ctx, "Coordinator.commitCheckpoint")
		span.SetAttributes(attribute.Int64("checkpoint.id", checkpointID))
		defer span.End()
	}

	// Deterministic file order: by writer id, then each writer's own order.
	writerIDs := make([]int, 0, len(pc.results))
	for id := range pc.results {
		writerIDs = append(writerIDs, id)
	}
	sort.Ints(writerIDs)
	var added []core.DataFile
	for _, id := range writerIDs {
		added = append(added, pc.results[id].Files...)
	}

	if err := c.cfg.hooks.Trigger(ctx, hooks.NewPreCommitEvent(hooks.PreCommitPayload{
		CheckpointID: checkpointID,
		AddedFiles:   added,
	})); err != nil {
		if span != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}

	var snap core.Snapshot
	if len(added) > 0 {
		var err error
		snap, err = c.commitWithRetry(ctx, added)
		if err != nil {
			if span != nil {
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		}
	} else {
		// Nothing to publish; the table stays untouched and only the
		// watermark moves.
		var err error
		snap, err = c.cfg.table.CurrentSnapshot()
		if err != nil {
			return err
		}
	}

	if err := c.state.Advance(checkpointID); err != nil {
		return err
	}
	if err := checkpoint.Write(c.cfg.fs, c.cfg.stateDir, c.state); err != nil {
		return fmt.Errorf("failed to persist coordinator state: %w", err)
	}
	delete(c.pending, checkpointID)

	c.cfg.logger.Info("Checkpoint committed",
		"checkpoint_id", checkpointID,
		"snapshot_id", snap.ID,
		"files_added", len(added))
	if span != nil {
		span.SetAttributes(attribute.Int("commit.files", len(added)))
	}

	return c.cfg.hooks.Trigger(ctx, hooks.NewPostCommitEvent(hooks.PostCommitPayload{
		CheckpointID: checkpointID,
		Snapshot:     snap,
		AddedFiles:   added,
	}))
}

// commitWithRetry retries the table commit with exponential backoff while the
// table metadata is being changed concurrently, re-reading the base snapshot
// before each attempt.
func (c *Coordinator) commitWithRetry(ctx context.Context, added []core.DataFile) (core.Snapshot, error) {
	delay := c.cfg.retryBase
	var lastErr error
	for attempt := 0; attempt < c.cfg.maxRetries; attempt++ {
		base, err := c.cfg.table.CurrentSnapshot()
		if err != nil {
			return core.Snapshot{}, err
		}
		snap, err := c.cfg.table.Commit(ctx, base, added, nil)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, core.ErrCommitConflict) {
			return core.Snapshot{}, err
		}
		lastErr = err

		c.cfg.logger.Warn("Commit conflict, retrying",
			"attempt", attempt+1,
			"max_retries", c.cfg.maxRetries,
			"delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return core.Snapshot{}, ctx.Err()
		}
		delay *= 2
		if delay > defaultCommitRetryCeil {
			delay = defaultCommitRetryCeil
		}
	}
	return core.Snapshot{}, fmt.Errorf("commit failed after %d attempts: %w", c.cfg.maxRetries, lastErr)
}
