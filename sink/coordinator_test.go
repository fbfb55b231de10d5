package sink

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/INLOpen/lakesink/core"
	"github.com/INLOpen/lakesink/hooks"
	"github.com/INLOpen/lakesink/table"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T, tbl *table.Table, parallelism int) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(coordinatorConfig{
		table:       tbl,
		fs:          afero.NewBasePathFs(tbl.FS(), tbl.Dir()),
		parallelism: parallelism,
		hooks:       hooks.NewHookManager(discardLogger()),
		logger:      discardLogger(),
	})
	require.NoError(t, err)
	return c
}

func writeResult(writerID int, checkpointID int64, paths ...string) core.WriteResult {
	res := core.WriteResult{WriterID: writerID, CheckpointID: checkpointID}
	for _, p := range paths {
		res.Files = append(res.Files, core.DataFile{
			Path:         p,
			Format:       core.FormatPlain,
			Partition:    core.PartitionKey{{Field: "data", Value: "aaa"}},
			RecordCount:  1,
			SizeBytes:    64,
			CheckpointID: checkpointID,
		})
	}
	return res
}

func TestCoordinator_CommitsWhenAllWritersReport(t *testing.T) {
	fs := afero.NewMemMapFs()
	tbl := newTestTable(t, fs)
	c := newTestCoordinator(t, tbl, 2)
	ctx := context.Background()

	require.NoError(t, c.Receive(ctx, writeResult(1, 1, "data/b.lake")))
	snap, err := tbl.CurrentSnapshot()
	require.NoError(t, err)
	assert.Empty(t, snap.Files, "half-complete checkpoint must not commit")
	assert.Equal(t, int64(0), c.LastCommitted())

	require.NoError(t, c.Receive(ctx, writeResult(0, 1, "data/a.lake")))
	snap, err = tbl.CurrentSnapshot()
	require.NoError(t, err)
	require.Len(t, snap.Files, 2)
	// Files are ordered by writer id regardless of arrival order.
	assert.Equal(t, "data/a.lake", snap.Files[0].Path)
	assert.Equal(t, "data/b.lake", snap.Files[1].Path)
	assert.Equal(t, int64(1), c.LastCommitted())
}

func TestCoordinator_DuplicateResultIgnored(t *testing.T) {
	fs := afero.NewMemMapFs()
	tbl := newTestTable(t, fs)
	c := newTestCoordinator(t, tbl, 2)
	ctx := context.Background()

	require.NoError(t, c.Receive(ctx, writeResult(0, 1, "data/a.lake")))
	require.NoError(t, c.Receive(ctx, writeResult(0, 1, "data/a-replay.lake")))
	require.NoError(t, c.Receive(ctx, writeResult(1, 1, "data/b.lake")))

	snap, err := tbl.CurrentSnapshot()
	require.NoError(t, err)
	require.Len(t, snap.Files, 2)
	assert.Equal(t, "data/a.lake", snap.Files[0].Path)
}

func TestCoordinator_CommittedCheckpointResultDropped(t *testing.T) {
	fs := afero.NewMemMapFs()
	tbl := newTestTable(t, fs)
	c := newTestCoordinator(t, tbl, 1)
	ctx := context.Background()

	require.NoError(t, c.Receive(ctx, writeResult(0, 1, "data/a.lake")))
	require.Equal(t, int64(1), c.LastCommitted())

	// A restarted writer replays the whole interval.
	require.NoError(t, c.Receive(ctx, writeResult(0, 1, "data/a-replay.lake")))
	snap, err := tbl.CurrentSnapshot()
	require.NoError(t, err)
	assert.Len(t, snap.Files, 1)
	assert.Equal(t, int64(1), snap.ID)
}

func TestCoordinator_EmptyCheckpointAdvancesWatermarkOnly(t *testing.T) {
	fs := afero.NewMemMapFs()
	tbl := newTestTable(t, fs)
	c := newTestCoordinator(t, tbl, 2)
	ctx := context.Background()

	require.NoError(t, c.Receive(ctx, writeResult(0, 1)))
	require.NoError(t, c.Receive(ctx, writeResult(1, 1)))

	assert.Equal(t, int64(1), c.LastCommitted())
	snap, err := tbl.CurrentSnapshot()
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.ID, "empty checkpoint must not create a snapshot")
}

func TestCoordinator_RestartRestoresState(t *testing.T) {
	fs := afero.NewMemMapFs()
	tbl := newTestTable(t, fs)
	c := newTestCoordinator(t, tbl, 1)
	ctx := context.Background()

	require.NoError(t, c.Receive(ctx, writeResult(0, 3, "data/a.lake")))
	require.Equal(t, int64(3), c.LastCommitted())

	c2 := newTestCoordinator(t, tbl, 1)
	assert.Equal(t, int64(3), c2.LastCommitted())
}

func TestCoordinator_RecoversWatermarkFromTable(t *testing.T) {
	fs := afero.NewMemMapFs()
	tbl := newTestTable(t, fs)
	c := newTestCoordinator(t, tbl, 1)
	ctx := context.Background()

	require.NoError(t, c.Receive(ctx, writeResult(0, 2, "data/a.lake")))

	// Simulate a crash after the table commit but before the state file
	// rewrite by deleting the state file.
	stateFile := filepath.Join(tbl.Dir(), core.MetadataDirName, core.CommitStateFileName)
	require.NoError(t, fs.Remove(stateFile))

	c2 := newTestCoordinator(t, tbl, 1)
	assert.Equal(t, int64(2), c2.LastCommitted())

	// The replayed interval must be absorbed.
	require.NoError(t, c2.Receive(ctx, writeResult(0, 2, "data/a-replay.lake")))
	snap, err := tbl.CurrentSnapshot()
	require.NoError(t, err)
	assert.Len(t, snap.Files, 1)
}

func TestCoordinator_PreCommitHookCancels(t *testing.T) {
	fs := afero.NewMemMapFs()
	tbl := newTestTable(t, fs)

	hm := hooks.NewHookManager(discardLogger())
	hm.Register(hooks.EventPreCommit, &hooks.FuncListener{
		Fn: func(ctx context.Context, event hooks.HookEvent) error {
			return assert.AnError
		},
	})
	c, err := NewCoordinator(coordinatorConfig{
		table:       tbl,
		fs:          afero.NewBasePathFs(tbl.FS(), tbl.Dir()),
		parallelism: 1,
		hooks:       hm,
		logger:      discardLogger(),
	})
	require.NoError(t, err)

	err = c.Receive(context.Background(), writeResult(0, 1, "data/a.lake"))
	require.Error(t, err)
	snap, err2 := tbl.CurrentSnapshot()
	require.NoError(t, err2)
	assert.Empty(t, snap.Files)
	assert.Equal(t, int64(0), c.LastCommitted())
}

func TestCoordinator_PostCommitHookObservesSnapshot(t *testing.T) {
	fs := afero.NewMemMapFs()
	tbl := newTestTable(t, fs)

	var got hooks.PostCommitPayload
	hm := hooks.NewHookManager(discardLogger())
	hm.Register(hooks.EventPostCommit, &hooks.FuncListener{
		Fn: func(ctx context.Context, event hooks.HookEvent) error {
			got = event.Payload().(hooks.PostCommitPayload)
			return nil
		},
	})
	c, err := NewCoordinator(coordinatorConfig{
		table:       tbl,
		fs:          afero.NewBasePathFs(tbl.FS(), tbl.Dir()),
		parallelism: 1,
		hooks:       hm,
		logger:      discardLogger(),
	})
	require.NoError(t, err)

	require.NoError(t, c.Receive(context.Background(), writeResult(0, 1, "data/a.lake")))
	assert.Equal(t, int64(1), got.CheckpointID)
	assert.Equal(t, int64(1), got.Snapshot.ID)
	require.Len(t, got.AddedFiles, 1)
	assert.Equal(t, "data/a.lake", got.AddedFiles[0].Path)
}
