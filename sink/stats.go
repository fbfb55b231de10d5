package sink

import (
	"fmt"
	"sync"

	"github.com/caio/go-tdigest/v4"
)

// FileSizeStats tracks the size distribution of data files produced by the
// sink's writers. The compaction trigger and operators use its quantiles to
// judge whether a table is accumulating small files.
type FileSizeStats struct {
	mu sync.Mutex
	td *tdigest.TDigest
}

// NewFileSizeStats creates an empty digest.
func NewFileSizeStats() (*FileSizeStats, error) {
	td, err := tdigest.New()
	if err != nil {
		return nil, fmt.Errorf("tdigest.New failed: %w", err)
	}
	return &FileSizeStats{td: td}, nil
}

// Observe records the size of one finished file.
func (s *FileSizeStats) Observe(sizeBytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// AddWeighted only fails for NaN or non-positive weight.
	_ = s.td.AddWeighted(float64(sizeBytes), 1)
}

// Quantile returns the size at quantile q in [0, 1]. NaN when empty.
func (s *FileSizeStats) Quantile(q float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.td.Quantile(q)
}

// Count returns how many files have been observed.
func (s *FileSizeStats) Count() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.td.Count()
}
