package sink

import (
	"testing"

	"github.com/INLOpen/lakesink/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDistributionMode(t *testing.T) {
	m, err := ParseDistributionMode("HASH")
	require.NoError(t, err)
	assert.Equal(t, ModeHash, m)

	m, err = ParseDistributionMode("  none ")
	require.NoError(t, err)
	assert.Equal(t, ModeNone, m)

	_, err = ParseDistributionMode("round-robin")
	require.Error(t, err)
}

func TestNoneDistributor_PreservesOrigin(t *testing.T) {
	d, err := newDistributor(ModeNone, 2)
	require.NoError(t, err)

	key := core.PartitionKey{{Field: "data", Value: "aaa"}}
	assert.Equal(t, 0, d.route(key, 0))
	assert.Equal(t, 1, d.route(key, 1))
	assert.Equal(t, 0, d.route(key, 2))
	assert.Equal(t, 1, d.route(key, 5))
}

func TestHashDistributor_ClustersPartitions(t *testing.T) {
	d, err := newDistributor(ModeHash, 3)
	require.NoError(t, err)

	keys := []core.PartitionKey{
		{{Field: "data", Value: "aaa"}},
		{{Field: "data", Value: "bbb"}},
		{{Field: "data", Value: "ccc"}},
	}
	for _, key := range keys {
		want := d.route(key, 0)
		// The origin must not matter; every record of a partition lands on
		// the same writer.
		for origin := 0; origin < 7; origin++ {
			assert.Equal(t, want, d.route(key, origin))
		}
		assert.GreaterOrEqual(t, want, 0)
		assert.Less(t, want, 3)
	}
}

func TestHashDistributor_EmptyKey(t *testing.T) {
	d, err := newDistributor(ModeHash, 4)
	require.NoError(t, err)

	want := d.route(nil, 0)
	for origin := 0; origin < 4; origin++ {
		assert.Equal(t, want, d.route(nil, origin))
	}
}

func TestNewDistributor_RangeUnsupported(t *testing.T) {
	_, err := newDistributor(ModeRange, 2)
	require.Error(t, err)
	assert.True(t, core.IsUnsupportedDistributionMode(err))
}
