package table

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/INLOpen/lakesink/core"
	"github.com/INLOpen/lakesink/partition"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const metadataFormatVersion = 1

// Table is a handle on one versioned table rooted at a directory of an
// afero filesystem. The commit protocol is compare-and-swap against the
// base snapshot id: a commit whose base is no longer current fails with
// core.ErrCommitConflict and must be retried with a fresh snapshot.
//
// Multiple handles on the same directory see each other's commits because
// every read of table state reloads the CURRENT pointer.
type Table struct {
	fs  afero.Fs
	dir string

	// mu serializes commits issued through this handle.
	mu     sync.Mutex
	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures a table handle.
type Option func(*Table)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Table) { t.logger = logger }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(t *Table) { t.tracer = tracer }
}

// Create initializes a new table at dir with an empty initial snapshot.
func Create(fs afero.Fs, dir string, schema core.Schema, spec partition.Spec, props Properties, opts ...Option) (*Table, error) {
	if props == nil {
		props = Properties{}
	}
	meta := &Metadata{
		FormatVersion:     metadataFormatVersion,
		Version:           1,
		Schema:            schema,
		PartitionSpec:     spec,
		Properties:        props,
		CurrentSnapshotID: 0,
		Snapshots: []core.Snapshot{
			{ID: 0, ParentID: -1, TimestampMs: time.Now().UnixMilli()},
		},
	}

	for _, sub := range []string{metadataPath(dir), path.Join(dir, core.DataDirName)} {
		if err := fs.MkdirAll(sub, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create table directory %s: %w", sub, err)
		}
	}

	t := newTable(fs, dir, opts...)
	if err := t.writeMetadata(meta); err != nil {
		return nil, err
	}
	return t, nil
}

// Load opens an existing table at dir.
func Load(fs afero.Fs, dir string, opts ...Option) (*Table, error) {
	t := newTable(fs, dir, opts...)
	if _, err := t.loadMetadata(); err != nil {
		return nil, err
	}
	return t, nil
}

func newTable(fs afero.Fs, dir string, opts ...Option) *Table {
	t := &Table{fs: fs, dir: dir}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// FS returns the filesystem the table lives on.
func (t *Table) FS() afero.Fs { return t.fs }

// Dir returns the table root directory.
func (t *Table) Dir() string { return t.dir }

// DataPath resolves a data file path relative to the table root.
func (t *Table) DataPath(relative string) string {
	return path.Join(t.dir, relative)
}

func metadataPath(dir string) string {
	return path.Join(dir, core.MetadataDirName)
}

func metadataFileName(version int) string {
	return fmt.Sprintf("%s%05d.json", core.MetadataFilePrefix, version)
}

// loadMetadata reads the CURRENT pointer and the metadata version it names.
func (t *Table) loadMetadata() (*Metadata, error) {
	currentPath := path.Join(metadataPath(t.dir), core.CurrentFileName)
	name, err := afero.ReadFile(t.fs, currentPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CURRENT pointer of table %s: %w", t.dir, err)
	}
	raw, err := afero.ReadFile(t.fs, path.Join(metadataPath(t.dir), string(name)))
	if err != nil {
		return nil, fmt.Errorf("failed to read table metadata %s: %w", string(name), err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode table metadata %s: %w", string(name), err)
	}
	return &meta, nil
}

// writeMetadata atomically persists a metadata version and swaps CURRENT to
// it, using write-and-rename for both files.
func (t *Table) writeMetadata(meta *Metadata) error {
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode table metadata: %w", err)
	}

	name := metadataFileName(meta.Version)
	metaDir := metadataPath(t.dir)

	tempPath := path.Join(metaDir, core.FormatTempFilename(name, "tmp"))
	if err := afero.WriteFile(t.fs, tempPath, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write temp metadata file: %w", err)
	}
	if err := t.fs.Rename(tempPath, path.Join(metaDir, name)); err != nil {
		return fmt.Errorf("failed to rename temp metadata file: %w", err)
	}

	currentTemp := path.Join(metaDir, core.FormatTempFilename(core.CurrentFileName, "tmp"))
	if err := afero.WriteFile(t.fs, currentTemp, []byte(name), 0o644); err != nil {
		return fmt.Errorf("failed to write temp CURRENT file: %w", err)
	}
	if err := t.fs.Rename(currentTemp, path.Join(metaDir, core.CurrentFileName)); err != nil {
		return fmt.Errorf("failed to rename temp CURRENT file: %w", err)
	}
	return nil
}

// Metadata returns the current table metadata.
func (t *Table) Metadata() (*Metadata, error) {
	return t.loadMetadata()
}

// Schema returns the table schema.
func (t *Table) Schema() (core.Schema, error) {
	meta, err := t.loadMetadata()
	if err != nil {
		return core.Schema{}, err
	}
	return meta.Schema, nil
}

// PartitionSpec returns the table partition spec.
func (t *Table) PartitionSpec() (partition.Spec, error) {
	meta, err := t.loadMetadata()
	if err != nil {
		return partition.Spec{}, err
	}
	return meta.PartitionSpec, nil
}

// CurrentSnapshot reloads and returns the latest committed snapshot.
func (t *Table) CurrentSnapshot() (core.Snapshot, error) {
	meta, err := t.loadMetadata()
	if err != nil {
		return core.Snapshot{}, err
	}
	snap, ok := meta.CurrentSnapshot()
	if !ok {
		return core.Snapshot{}, fmt.Errorf("table %s has no snapshot %d", t.dir, meta.CurrentSnapshotID)
	}
	return snap, nil
}

// SetProperty commits a new metadata version with the property applied. It
// does not change the current snapshot.
func (t *Table) SetProperty(key, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	meta, err := t.loadMetadata()
	if err != nil {
		return err
	}
	if meta.Properties == nil {
		meta.Properties = Properties{}
	}
	meta.Properties[key] = value
	meta.Version++
	return t.writeMetadata(meta)
}

// Commit atomically replaces the file set: it verifies the base snapshot is
// still current, verifies every removed file is live, and writes a new
// snapshot consisting of (base - removed + added). On success the new
// snapshot is returned; a lost race returns core.ErrCommitConflict.
func (t *Table) Commit(ctx context.Context, base core.Snapshot, added, removed []core.DataFile) (core.Snapshot, error) {
	var span trace.Span
	if t.tracer != nil {
		_, span = t.tracer.Start(ctx, "table.Commit")
		defer span.End()
		span.SetAttributes(
			attribute.Int64("table.commit.base_snapshot", base.ID),
			attribute.Int("table.commit.added", len(added)),
			attribute.Int("table.commit.removed", len(removed)),
		)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	meta, err := t.loadMetadata()
	if err != nil {
		return core.Snapshot{}, err
	}
	if meta.CurrentSnapshotID != base.ID {
		if span != nil {
			span.SetStatus(codes.Error, "commit conflict")
		}
		return core.Snapshot{}, fmt.Errorf("base snapshot %d is no longer current (%d): %w",
			base.ID, meta.CurrentSnapshotID, core.ErrCommitConflict)
	}

	current, ok := meta.CurrentSnapshot()
	if !ok {
		return core.Snapshot{}, fmt.Errorf("table %s has no snapshot %d", t.dir, meta.CurrentSnapshotID)
	}

	removedPaths := make(map[string]struct{}, len(removed))
	for _, df := range removed {
		if current.FindFile(df.Path) < 0 {
			if span != nil {
				span.SetStatus(codes.Error, "removed file not live")
			}
			return core.Snapshot{}, fmt.Errorf("removed file %s is not live in snapshot %d: %w",
				df.Path, current.ID, core.ErrCommitConflict)
		}
		removedPaths[df.Path] = struct{}{}
	}

	next := core.Snapshot{
		ID:          current.ID + 1,
		ParentID:    current.ID,
		TimestampMs: time.Now().UnixMilli(),
	}
	for _, df := range current.Files {
		if _, gone := removedPaths[df.Path]; !gone {
			next.Files = append(next.Files, df)
		}
	}
	next.Files = append(next.Files, added...)

	meta.Snapshots = append(meta.Snapshots, next)
	meta.CurrentSnapshotID = next.ID
	meta.Version++
	if err := t.writeMetadata(meta); err != nil {
		return core.Snapshot{}, err
	}

	t.logger.Info("Committed table snapshot",
		"table", t.dir,
		"snapshot", next.ID,
		"added_files", len(added),
		"removed_files", len(removed),
		"live_files", len(next.Files))
	return next, nil
}

// Scan returns the live data files of the current snapshot, optionally
// restricted to one partition key.
func (t *Table) Scan(ctx context.Context, filter *core.PartitionKey) ([]core.DataFile, error) {
	snap, err := t.CurrentSnapshot()
	if err != nil {
		return nil, err
	}
	if filter == nil {
		return snap.Files, nil
	}
	return snap.PartitionFiles(*filter), nil
}
