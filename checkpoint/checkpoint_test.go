package checkpoint

import (
	"testing"

	"github.com/INLOpen/lakesink/core"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteRead_RoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	state := core.NewCommitState()
	state.LastCommitted = 7
	require.NoError(t, state.MarkSeen(8, 0))
	require.NoError(t, state.MarkSeen(8, 1))

	require.NoError(t, Write(fs, "job/state", state))

	got, existed, err := Read(fs, "job/state")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, int64(7), got.LastCommitted)

	seen, err := got.AlreadySeen(8, 0)
	require.NoError(t, err)
	assert.True(t, seen)
	seen, err = got.AlreadySeen(8, 2)
	require.NoError(t, err)
	assert.False(t, seen)

	// The temp file must not linger.
	exists, err := afero.Exists(fs, "job/state/"+core.CommitStateFileName+".tmp")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRead_Missing(t *testing.T) {
	fs := afero.NewMemMapFs()
	state, existed, err := Read(fs, "job/state")
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, int64(0), state.LastCommitted)
}

func TestRead_BadMagic(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "job/state/"+core.CommitStateFileName, []byte("garbage-bytes"), 0o644))

	_, existed, err := Read(fs, "job/state")
	require.Error(t, err)
	assert.True(t, existed)
}

func TestWrite_Overwrites(t *testing.T) {
	fs := afero.NewMemMapFs()

	first := core.NewCommitState()
	first.LastCommitted = 1
	require.NoError(t, Write(fs, "job/state", first))

	second := core.NewCommitState()
	second.LastCommitted = 2
	require.NoError(t, Write(fs, "job/state", second))

	got, _, err := Read(fs, "job/state")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.LastCommitted)
}
