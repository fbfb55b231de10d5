package core

// DataFile describes one immutable, closed physical file produced by a
// writer. It is owned exclusively by the writer until handed to the
// coordinator, then by the table snapshot that committed it.
type DataFile struct {
	// Path is relative to the table root.
	Path         string       `json:"path"`
	Format       FileFormat   `json:"format"`
	Partition    PartitionKey `json:"partition,omitempty"`
	RecordCount  int64        `json:"record_count"`
	SizeBytes    int64        `json:"size_bytes"`
	CheckpointID int64        `json:"checkpoint_id"`
}

// WriteResult is the set of data files produced by one writer instance for
// one checkpoint interval. It is emitted exactly once per (writer, checkpoint)
// pair under normal operation; the coordinator tolerates duplicate delivery
// after a restart.
type WriteResult struct {
	WriterID     int
	CheckpointID int64
	Files        []DataFile
}
