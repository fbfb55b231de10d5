package core

// Snapshot is one immutable, committed version of the table's file set.
// Snapshots are created only by an atomic commit and never mutated.
type Snapshot struct {
	ID          int64 `json:"id"`
	ParentID    int64 `json:"parent_id"`
	TimestampMs int64 `json:"timestamp_ms"`
	// Files is the complete live file set of this version.
	Files []DataFile `json:"files"`
}

// FindFile returns the index of the file with the given path, or -1.
func (s *Snapshot) FindFile(path string) int {
	for i := range s.Files {
		if s.Files[i].Path == path {
			return i
		}
	}
	return -1
}

// PartitionFiles returns the live files belonging to the given partition key.
// A nil or empty key on a partitioned table matches only files with an empty
// partition, so callers filtering an unpartitioned table get every file.
func (s *Snapshot) PartitionFiles(key PartitionKey) []DataFile {
	var out []DataFile
	for _, f := range s.Files {
		if f.Partition.Equal(key) {
			out = append(out, f)
		}
	}
	return out
}
