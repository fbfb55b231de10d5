package datafile

import (
	"context"
	"log/slog"

	"github.com/INLOpen/lakesink/core"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/trace"
)

// RollingOptions configures a RollingWriter.
type RollingOptions struct {
	FS     afero.Fs
	Format core.FileFormat
	// NextPath produces the path of the seq-th file (0-based).
	NextPath func(seq int) string
	// TargetFileSize rolls to a new file once the current one crosses this
	// size. Zero disables rolling.
	TargetFileSize int64
	BlockSize      int
	Logger         *slog.Logger
	Tracer         trace.Tracer
}

// RollingWriter appends records to a data file and transparently rolls to a
// successor file when the size threshold is crossed. All files it produced
// are returned by Finish in creation order.
type RollingWriter struct {
	opts    RollingOptions
	current *Writer
	files   []core.DataFile
	seq     int
}

// NewRollingWriter creates a rolling writer. No file is opened until the
// first Append.
func NewRollingWriter(opts RollingOptions) *RollingWriter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &RollingWriter{opts: opts}
}

// Append writes one record, opening or rolling files as needed.
func (rw *RollingWriter) Append(ctx context.Context, rec core.Record) error {
	if rw.current == nil {
		writer, err := Open(WriterOptions{
			FS:        rw.opts.FS,
			Path:      rw.opts.NextPath(rw.seq),
			Format:    rw.opts.Format,
			BlockSize: rw.opts.BlockSize,
			Logger:    rw.opts.Logger,
			Tracer:    rw.opts.Tracer,
		})
		if err != nil {
			return err
		}
		rw.current = writer
		rw.seq++
	}

	if err := rw.current.Append(rec); err != nil {
		return err
	}
	if rw.opts.TargetFileSize > 0 && rw.current.EstimatedSize() >= rw.opts.TargetFileSize {
		return rw.closeCurrent(ctx)
	}
	return nil
}

func (rw *RollingWriter) closeCurrent(ctx context.Context) error {
	df, err := rw.current.Finish(ctx)
	if err != nil {
		return err
	}
	rw.files = append(rw.files, df)
	rw.current = nil
	return nil
}

// Finish closes the open file, if any, and returns every produced
// descriptor. A writer that never received a record returns nil.
func (rw *RollingWriter) Finish(ctx context.Context) ([]core.DataFile, error) {
	if rw.current != nil {
		if err := rw.closeCurrent(ctx); err != nil {
			return nil, err
		}
	}
	files := rw.files
	rw.files = nil
	return files, nil
}

// Abort discards the open file, if any. Already closed files are left alone;
// uncommitted files become orphans for external cleanup.
func (rw *RollingWriter) Abort() {
	if rw.current != nil {
		rw.current.Abort()
		rw.current = nil
	}
}
