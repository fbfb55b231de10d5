package table

import (
	"strconv"

	"github.com/INLOpen/lakesink/core"
	"github.com/INLOpen/lakesink/partition"
)

// Well-known table properties.
const (
	// PropertyDefaultFormat is the file format used when the sink does not
	// set one explicitly.
	PropertyDefaultFormat = "write.format.default"
	// PropertyDistributionMode is the table-level default distribution mode,
	// inherited when the sink does not set one explicitly.
	PropertyDistributionMode = "write.distribution-mode"
	// PropertyTargetFileSize is the threshold, in bytes, below which files
	// are considered small enough to compact, and at which writers roll.
	PropertyTargetFileSize = "write.target-file-size-bytes"
)

// DefaultTargetFileSize applies when PropertyTargetFileSize is unset.
const DefaultTargetFileSize int64 = 128 * 1024 * 1024

// Properties is the free-form table configuration map.
type Properties map[string]string

// Metadata is the full versioned state of a table, serialized as one JSON
// document per version. Every commit writes a new metadata file and swaps
// the CURRENT pointer to it.
type Metadata struct {
	FormatVersion     int             `json:"format_version"`
	Version           int             `json:"version"`
	Schema            core.Schema     `json:"schema"`
	PartitionSpec     partition.Spec  `json:"partition_spec"`
	Properties        Properties      `json:"properties,omitempty"`
	CurrentSnapshotID int64           `json:"current_snapshot_id"`
	Snapshots         []core.Snapshot `json:"snapshots"`
}

// CurrentSnapshot returns the snapshot the metadata points at.
func (m *Metadata) CurrentSnapshot() (core.Snapshot, bool) {
	for i := range m.Snapshots {
		if m.Snapshots[i].ID == m.CurrentSnapshotID {
			return m.Snapshots[i], true
		}
	}
	return core.Snapshot{}, false
}

// DefaultFormat resolves the table's default file format.
func (m *Metadata) DefaultFormat() core.FileFormat {
	if raw, ok := m.Properties[PropertyDefaultFormat]; ok {
		if f, err := core.ParseFileFormat(raw); err == nil {
			return f
		}
	}
	return core.FormatPlain
}

// TargetFileSize resolves the table's target file size threshold.
func (m *Metadata) TargetFileSize() int64 {
	if raw, ok := m.Properties[PropertyTargetFileSize]; ok {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return DefaultTargetFileSize
}
