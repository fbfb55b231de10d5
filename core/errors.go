package core

import (
	"errors"
	"fmt"
)

// ErrCommitConflict is returned by the table store when the table metadata
// advanced between reading the base snapshot and attempting the commit.
// Callers are expected to reload the current snapshot and retry.
var ErrCommitConflict = errors.New("table metadata changed concurrently")

// SchemaMismatchError indicates that a record or schema does not satisfy the
// partition spec or the configured output schema. It is fatal and surfaced at
// construction time or on the first offending record.
type SchemaMismatchError struct {
	Field   string
	Message string
}

func (e *SchemaMismatchError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("schema mismatch: %s", e.Message)
	}
	return fmt.Sprintf("schema mismatch for field '%s': %s", e.Field, e.Message)
}

// IsSchemaMismatch checks if an error is a SchemaMismatchError.
func IsSchemaMismatch(err error) bool {
	var schemaErr *SchemaMismatchError
	return errors.As(err, &schemaErr)
}

// UnsupportedDistributionModeError indicates the requested distribution mode
// is not implemented. It is always raised at construction, never at runtime.
type UnsupportedDistributionModeError struct {
	Mode string
}

func (e *UnsupportedDistributionModeError) Error() string {
	return fmt.Sprintf("write distribution mode '%s' is not supported", e.Mode)
}

func IsUnsupportedDistributionMode(err error) bool {
	var modeErr *UnsupportedDistributionModeError
	return errors.As(err, &modeErr)
}

// WriteError wraps a failure of the underlying file system during open,
// append, sync or close of a data file. It is fatal to the writer task.
type WriteError struct {
	Path string
	Op   string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("data file %s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func IsWriteError(err error) bool {
	var writeErr *WriteError
	return errors.As(err, &writeErr)
}

// CompactionError wraps a failure of a background compaction pass. It is
// recovered locally and never propagates to the main write path.
type CompactionError struct {
	Partition string
	Err       error
}

func (e *CompactionError) Error() string {
	if e.Partition == "" {
		return fmt.Sprintf("compaction pass failed: %v", e.Err)
	}
	return fmt.Sprintf("compaction of partition '%s' failed: %v", e.Partition, e.Err)
}

func (e *CompactionError) Unwrap() error {
	return e.Err
}

func IsCompactionError(err error) bool {
	var compactErr *CompactionError
	return errors.As(err, &compactErr)
}
