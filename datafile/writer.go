package datafile

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"log/slog"
	"path/filepath"

	"github.com/INLOpen/lakesink/compressors"
	"github.com/INLOpen/lakesink/core"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultBlockSize is the target uncompressed size of one data block.
const DefaultBlockSize = 32 * 1024

// WriterOptions configures a data file writer.
type WriterOptions struct {
	FS     afero.Fs
	Path   string // final file path within FS
	Format core.FileFormat
	// BlockSize is the target uncompressed block size; DefaultBlockSize if 0.
	BlockSize int
	Logger    *slog.Logger
	Tracer    trace.Tracer
}

// Writer builds one immutable data file. It writes to a temporary file and
// renames it into place on Finish, so a crashed writer never leaves a
// partially written file at the final path.
type Writer struct {
	fs        afero.Fs
	finalPath string
	tempPath  string
	file      afero.File
	offset    int64

	format     core.FileFormat
	compressor core.Compressor
	blockSize  int

	blockBuf    bytes.Buffer
	rowsInBlock int
	recordCount int64
	finished    bool

	logger *slog.Logger
	tracer trace.Tracer
}

// Open creates a new data file writer.
func Open(opts WriterOptions) (*Writer, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}
	compressor, err := compressors.ForFormat(opts.Format)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(opts.Path); dir != "." && dir != "" {
		if err := opts.FS.MkdirAll(dir, 0o755); err != nil {
			return nil, &core.WriteError{Path: dir, Op: "mkdir", Err: err}
		}
	}

	tempPath := opts.Path + ".tmp"
	file, err := opts.FS.Create(tempPath)
	if err != nil {
		return nil, &core.WriteError{Path: tempPath, Op: "create", Err: err}
	}

	header := NewFileHeader(compressor.Type())
	if err := binary.Write(file, binary.LittleEndian, &header); err != nil {
		file.Close()
		opts.FS.Remove(tempPath)
		return nil, &core.WriteError{Path: tempPath, Op: "write header", Err: err}
	}

	return &Writer{
		fs:         opts.FS,
		finalPath:  opts.Path,
		tempPath:   tempPath,
		file:       file,
		offset:     int64(header.Size()),
		format:     opts.Format,
		compressor: compressor,
		blockSize:  opts.BlockSize,
		logger:     opts.Logger,
		tracer:     opts.Tracer,
	}, nil
}

// Append adds one record to the file. Failures are WriteErrors and leave the
// writer unusable.
func (w *Writer) Append(rec core.Record) error {
	if w.finished {
		return fmt.Errorf("append to finished data file %s", w.finalPath)
	}
	if err := encodeRecord(&w.blockBuf, rec); err != nil {
		return err
	}
	w.rowsInBlock++
	w.recordCount++
	if w.blockBuf.Len() >= w.blockSize {
		return w.flushCurrentBlock()
	}
	return nil
}

// flushCurrentBlock compresses and writes the buffered block as
// [codec byte][crc32][length][payload].
func (w *Writer) flushCurrentBlock() error {
	if w.blockBuf.Len() == 0 || w.rowsInBlock == 0 {
		return nil
	}

	compressedBuf := core.BufferPool.Get()
	defer core.BufferPool.Put(compressedBuf)

	if err := w.compressor.CompressTo(compressedBuf, w.blockBuf.Bytes()); err != nil {
		return fmt.Errorf("failed to compress block: %w", err)
	}
	dataToWrite := compressedBuf.Bytes()
	checksum := crc32.ChecksumIEEE(dataToWrite)

	w.logger.Debug("Flushing block",
		"path", w.finalPath,
		"uncompressed_len", w.blockBuf.Len(),
		"compressed_len", len(dataToWrite),
		"rows", w.rowsInBlock)

	if err := binary.Write(w.file, binary.LittleEndian, byte(w.compressor.Type())); err != nil {
		return &core.WriteError{Path: w.tempPath, Op: "write block codec", Err: err}
	}
	if err := binary.Write(w.file, binary.LittleEndian, checksum); err != nil {
		return &core.WriteError{Path: w.tempPath, Op: "write block checksum", Err: err}
	}
	if err := binary.Write(w.file, binary.LittleEndian, uint32(len(dataToWrite))); err != nil {
		return &core.WriteError{Path: w.tempPath, Op: "write block length", Err: err}
	}
	if _, err := w.file.Write(dataToWrite); err != nil {
		return &core.WriteError{Path: w.tempPath, Op: "write block data", Err: err}
	}
	w.offset += int64(1 + 4 + 4 + len(dataToWrite))

	w.blockBuf.Reset()
	w.rowsInBlock = 0
	return nil
}

// EstimatedSize returns the bytes written so far plus the buffered block,
// used by the rolling policy.
func (w *Writer) EstimatedSize() int64 {
	return w.offset + int64(w.blockBuf.Len())
}

// RecordCount returns the number of records appended so far.
func (w *Writer) RecordCount() int64 {
	return w.recordCount
}

// Finish flushes the last block, syncs, renames the temporary file into
// place and returns the descriptor of the completed file. Partition and
// checkpoint attribution are the caller's to fill in.
func (w *Writer) Finish(ctx context.Context) (core.DataFile, error) {
	var span trace.Span
	if w.tracer != nil {
		_, span = w.tracer.Start(ctx, "datafile.Writer.Finish")
		defer span.End()
	}

	if w.finished {
		return core.DataFile{}, fmt.Errorf("data file %s already finished", w.finalPath)
	}
	w.finished = true

	fail := func(err error) (core.DataFile, error) {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		w.file.Close()
		w.fs.Remove(w.tempPath)
		return core.DataFile{}, err
	}

	if err := w.flushCurrentBlock(); err != nil {
		return fail(err)
	}
	if err := w.file.Sync(); err != nil {
		return fail(&core.WriteError{Path: w.tempPath, Op: "sync", Err: err})
	}
	// Close before rename for Windows compatibility.
	if err := w.file.Close(); err != nil {
		w.fs.Remove(w.tempPath)
		return core.DataFile{}, &core.WriteError{Path: w.tempPath, Op: "close", Err: err}
	}
	if err := w.fs.Rename(w.tempPath, w.finalPath); err != nil {
		w.fs.Remove(w.tempPath)
		return core.DataFile{}, &core.WriteError{Path: w.finalPath, Op: "rename", Err: err}
	}

	info, err := w.fs.Stat(w.finalPath)
	if err != nil {
		return core.DataFile{}, &core.WriteError{Path: w.finalPath, Op: "stat", Err: err}
	}

	if span != nil {
		span.SetAttributes(
			attribute.String("datafile.path", w.finalPath),
			attribute.String("datafile.format", string(w.format)),
			attribute.Int64("datafile.records", w.recordCount),
			attribute.Int64("datafile.size_bytes", info.Size()),
		)
	}

	return core.DataFile{
		Path:        w.finalPath,
		Format:      w.format,
		RecordCount: w.recordCount,
		SizeBytes:   info.Size(),
	}, nil
}

// Abort discards the writer and removes the temporary file. Safe to call
// after a failed Append.
func (w *Writer) Abort() {
	if w.finished {
		return
	}
	w.finished = true
	w.file.Close()
	if err := w.fs.Remove(w.tempPath); err != nil {
		w.logger.Warn("Failed to remove aborted data file", "path", w.tempPath, "error", err)
	}
}
