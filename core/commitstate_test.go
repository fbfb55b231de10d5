package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitState_SeenPairs(t *testing.T) {
	cs := NewCommitState()

	seen, err := cs.AlreadySeen(1, 0)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, cs.MarkSeen(1, 0))
	require.NoError(t, cs.MarkSeen(1, 1))

	seen, err = cs.AlreadySeen(1, 0)
	require.NoError(t, err)
	assert.True(t, seen)

	// A different writer id for the same checkpoint is independent.
	seen, err = cs.AlreadySeen(1, 2)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestCommitState_AdvancePrunes(t *testing.T) {
	cs := NewCommitState()
	require.NoError(t, cs.MarkSeen(1, 0))
	require.NoError(t, cs.MarkSeen(1, 1))
	require.NoError(t, cs.MarkSeen(2, 0))

	require.NoError(t, cs.Advance(1))
	assert.Equal(t, int64(1), cs.LastCommitted)

	// Pairs at or below the committed checkpoint are pruned.
	seen, err := cs.AlreadySeen(1, 0)
	require.NoError(t, err)
	assert.False(t, seen)

	// In-flight pairs survive.
	seen, err = cs.AlreadySeen(2, 0)
	require.NoError(t, err)
	assert.True(t, seen)

	// Commits are strictly increasing.
	assert.Error(t, cs.Advance(1))
	assert.Error(t, cs.Advance(0))
}

func TestCommitState_WriterIDRange(t *testing.T) {
	cs := NewCommitState()
	assert.Error(t, cs.MarkSeen(1, -1))
	assert.Error(t, cs.MarkSeen(1, MaxWriterID+1))
	assert.NoError(t, cs.MarkSeen(1, MaxWriterID))
}

func TestCommitState_Clone(t *testing.T) {
	cs := NewCommitState()
	require.NoError(t, cs.MarkSeen(3, 1))

	clone := cs.Clone()
	require.NoError(t, clone.MarkSeen(3, 2))

	seen, err := cs.AlreadySeen(3, 2)
	require.NoError(t, err)
	assert.False(t, seen, "mutating the clone must not affect the original")
}
