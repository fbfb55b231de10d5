package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSizeStats(t *testing.T) {
	s, err := NewFileSizeStats()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), s.Count())

	for i := int64(1); i <= 100; i++ {
		s.Observe(i * 1024)
	}
	assert.Equal(t, uint64(100), s.Count())

	median := s.Quantile(0.5)
	assert.InDelta(t, 50*1024, median, 5*1024)
	assert.LessOrEqual(t, s.Quantile(0.1), s.Quantile(0.9))
}
