package sink

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/INLOpen/lakesink/core"
	"github.com/INLOpen/lakesink/datafile"
	"github.com/INLOpen/lakesink/partition"
	"github.com/INLOpen/skiplist"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// writerConfig holds the shared, immutable configuration of all writer
// instances of one sink.
type writerConfig struct {
	fs             afero.Fs
	dataDir        string
	extractor      *partition.Extractor
	projection     []int
	format         core.FileFormat
	targetFileSize int64
	blockSize      int
	stats          *FileSizeStats
	logger         *slog.Logger
	tracer         trace.Tracer
}

// partitionOutput is the open output of one partition within the current
// checkpoint interval.
type partitionOutput struct {
	key core.PartitionKey
	rw  *datafile.RollingWriter
}

// Writer accumulates records for one parallel sink subtask. Records are
// grouped into one rolling file chain per partition; CompleteCheckpoint seals
// all open files and hands their descriptors to the coordinator as a single
// WriteResult. A Writer is not safe for concurrent use; the pipeline drives
// each instance from a dedicated goroutine.
type Writer struct {
	id  int
	cfg writerConfig

	// open maps partition path to its output, ordered so that files of a
	// checkpoint are sealed in a deterministic partition order.
	open    *skiplist.SkipList[string, *partitionOutput]
	records int64
}

func newWriter(id int, cfg writerConfig) *Writer {
	return &Writer{
		id:   id,
		cfg:  cfg,
		open: skiplist.NewWithComparator[string, *partitionOutput](strings.Compare),
	}
}

// ID returns the writer's subtask index.
func (w *Writer) ID() int { return w.id }

// Write appends one record to the partition it belongs to, opening a new
// rolling file chain for partitions first seen in this checkpoint interval.
func (w *Writer) Write(ctx context.Context, rec core.Record) error {
	if w.cfg.projection != nil {
		rec = rec.Project(w.cfg.projection)
	}
	key, err := w.cfg.extractor.Extract(rec)
	if err != nil {
		return err
	}

	out, err := w.output(key)
	if err != nil {
		return err
	}
	w.records++
	return out.rw.Append(ctx, rec)
}

func (w *Writer) output(key core.PartitionKey) (*partitionOutput, error) {
	pathKey := key.Path()
	if node, ok := w.open.Seek(pathKey); ok && node.Key() == pathKey {
		return node.Value(), nil
	}

	dir := w.cfg.dataDir
	if pathKey != "" {
		dir = path.Join(dir, pathKey)
	}
	out := &partitionOutput{
		key: key,
		rw: datafile.NewRollingWriter(datafile.RollingOptions{
			FS:     w.cfg.fs,
			Format: w.cfg.format,
			NextPath: func(seq int) string {
				return path.Join(dir, fmt.Sprintf("%05d-%d-%s.lake", seq, w.id, uuid.New()))
			},
			TargetFileSize: w.cfg.targetFileSize,
			BlockSize:      w.cfg.blockSize,
			Logger:         w.cfg.logger,
			Tracer:         w.cfg.tracer,
		}),
	}
	w.open.Insert(pathKey, out)
	return out, nil
}

// CompleteCheckpoint seals every open file, stamps the produced descriptors
// with the checkpoint id and returns them as this writer's WriteResult. A
// writer that received no records in the interval returns an empty result;
// the coordinator still needs it to close the checkpoint.
func (w *Writer) CompleteCheckpoint(ctx context.Context, checkpointID int64) (core.WriteResult, error) {
	var span trace.Span
	if w.cfg.tracer != nil {
		ctx, span = w.cfg.tracer.Start(ctx, "Writer.CompleteCheckpoint")
		span.SetAttributes(
			attribute.Int("writer.id", w.id),
			attribute.Int64("checkpoint.id", checkpointID),
			attribute.Int64("checkpoint.records", w.records),
		)
		defer span.End()
	}

	res := core.WriteResult{WriterID: w.id, CheckpointID: checkpointID}
	var finishErr error
	w.open.Range(func(_ string, out *partitionOutput) bool {
		files, err := out.rw.Finish(ctx)
		if err != nil {
			finishErr = err
			return false
		}
		for i := range files {
			files[i].Partition = out.key
			files[i].CheckpointID = checkpointID
			if w.cfg.stats != nil {
				w.cfg.stats.Observe(files[i].SizeBytes)
			}
		}
		res.Files = append(res.Files, files...)
		return true
	})
	if finishErr != nil {
		if span != nil {
			span.SetStatus(codes.Error, finishErr.Error())
		}
		w.Abort()
		return core.WriteResult{}, finishErr
	}

	attrs := []any{
		"writer_id", w.id,
		"checkpoint_id", checkpointID,
		"records", w.records,
		"files", len(res.Files),
	}
	if w.cfg.stats != nil && w.cfg.stats.Count() > 0 {
		attrs = append(attrs,
			"file_size_p50", int64(w.cfg.stats.Quantile(0.5)),
			"file_size_p99", int64(w.cfg.stats.Quantile(0.99)))
	}
	w.cfg.logger.Debug("Writer completed checkpoint", attrs...)
	w.reset()
	return res, nil
}

// Abort discards every open file of the current interval. Sealed files of
// earlier checkpoints are untouched.
func (w *Writer) Abort() {
	w.open.Range(func(_ string, out *partitionOutput) bool {
		out.rw.Abort()
		return true
	})
	w.reset()
}

func (w *Writer) reset() {
	w.open = skiplist.NewWithComparator[string, *partitionOutput](strings.Compare)
	w.records = 0
}
