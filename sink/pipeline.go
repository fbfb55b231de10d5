package sink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/INLOpen/lakesink/core"
	"github.com/INLOpen/lakesink/hooks"
	"github.com/INLOpen/lakesink/partition"
	"github.com/INLOpen/lakesink/table"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Batch is the unit a Source hands to the sink: all records of one
// checkpoint interval, followed implicitly by the interval's barrier. A
// batch may be empty; its checkpoint still commits and moves the watermark.
//
// Record positions double as upstream subtask attribution: in ModeNone,
// record i stays on writer i modulo the write parallelism.
type Batch struct {
	CheckpointID int64
	Records      []core.Record
}

// Source supplies checkpoint-aligned batches. Next returns io.EOF when the
// stream is exhausted. Checkpoint ids must be strictly increasing.
type Source interface {
	Next(ctx context.Context) (Batch, error)
}

// BoundedSource replays a fixed sequence of batches. Useful for backfills
// and tests.
type BoundedSource struct {
	batches []Batch
	pos     int
}

func NewBoundedSource(batches ...Batch) *BoundedSource {
	return &BoundedSource{batches: batches}
}

func (s *BoundedSource) Next(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if s.pos >= len(s.batches) {
		return Batch{}, io.EOF
	}
	b := s.batches[s.pos]
	s.pos++
	return b, nil
}

// writerEnvelope is either one record or a checkpoint barrier.
type writerEnvelope struct {
	rec          core.Record
	barrier      bool
	checkpointID int64
}

// Sink is a checkpoint-aligned, exactly-once table sink. Build one with
// Builder, then drive it with Run. A Sink is single-use: after Run returns,
// build a new one to resume.
type Sink struct {
	tbl         *table.Table
	writers     []*Writer
	dist        distributor
	coord       *Coordinator
	compactor   *Compactor
	hooks       hooks.HookManager
	extractor   *partition.Extractor
	projection  []int
	inputSchema core.Schema
	stats       *FileSizeStats
	logger      *slog.Logger
	tracer      trace.Tracer
}

// Table returns the table this sink writes into.
func (s *Sink) Table() *table.Table { return s.tbl }

// LastCommitted returns the newest committed checkpoint id.
func (s *Sink) LastCommitted() int64 { return s.coord.LastCommitted() }

// Stats exposes the file size digest of this sink's writers.
func (s *Sink) Stats() *FileSizeStats { return s.stats }

// Run consumes the source to exhaustion, committing one table snapshot per
// non-empty checkpoint. It blocks until every checkpoint has been committed
// (and compacted, when auto-compaction is on) or a fatal error occurs.
// Write failures are fatal: the current interval's files are discarded and
// the error is returned. Replayed batches for already committed checkpoints
// are absorbed without effect.
func (s *Sink) Run(ctx context.Context, src Source) error {
	g, gctx := errgroup.WithContext(ctx)

	inputs := make([]chan writerEnvelope, len(s.writers))
	for i := range inputs {
		inputs[i] = make(chan writerEnvelope, 64)
	}
	results := make(chan core.WriteResult, len(s.writers))

	var writerWG sync.WaitGroup
	for i, w := range s.writers {
		in := inputs[i]
		w := w
		writerWG.Add(1)
		g.Go(func() error {
			defer writerWG.Done()
			for env := range in {
				if env.barrier {
					res, err := w.CompleteCheckpoint(gctx, env.checkpointID)
					if err != nil {
						return err
					}
					select {
					case results <- res:
					case <-gctx.Done():
						return gctx.Err()
					}
					continue
				}
				if err := w.Write(gctx, env.rec); err != nil {
					w.Abort()
					return err
				}
			}
			return nil
		})
	}
	go func() {
		writerWG.Wait()
		close(results)
	}()

	g.Go(func() error {
		for res := range results {
			if err := s.coord.Receive(gctx, res); err != nil {
				return err
			}
		}
		return nil
	})

	g.Go(func() error {
		defer func() {
			for _, in := range inputs {
				close(in)
			}
		}()
		return s.dispatch(gctx, src, inputs)
	})

	err := g.Wait()
	// Compaction runs synchronously from the post-commit hook, so it is
	// already done; Stop only drains user-registered async listeners.
	s.hooks.Stop()
	return err
}

// dispatch routes records to writers and follows every batch with a barrier
// on all inputs.
func (s *Sink) dispatch(ctx context.Context, src Source, inputs []chan writerEnvelope) error {
	send := func(i int, env writerEnvelope) error {
		select {
		case inputs[i] <- env:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		batch, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		for i, rec := range batch.Records {
			if err := s.inputSchema.Validate(rec); err != nil {
				return err
			}
			routed := rec
			if s.projection != nil {
				routed = rec.Project(s.projection)
			}
			key, err := s.extractor.Extract(routed)
			if err != nil {
				return err
			}
			if err := send(s.dist.route(key, i), writerEnvelope{rec: rec}); err != nil {
				return err
			}
		}
		for i := range inputs {
			if err := send(i, writerEnvelope{barrier: true, checkpointID: batch.CheckpointID}); err != nil {
				return err
			}
		}
		s.logger.Debug("Batch dispatched",
			"checkpoint_id", batch.CheckpointID,
			"records", len(batch.Records))
	}
}
