package table

import (
	"context"
	"errors"
	"testing"

	"github.com/INLOpen/lakesink/core"
	"github.com/INLOpen/lakesink/partition"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) core.Schema {
	t.Helper()
	s, err := core.NewSchema(
		core.Field{Name: "id", Type: core.FieldInt64},
		core.Field{Name: "data", Type: core.FieldString},
	)
	require.NoError(t, err)
	return s
}

func newTestTable(t *testing.T, fs afero.Fs) *Table {
	t.Helper()
	tbl, err := Create(fs, "warehouse/test", testSchema(t), partition.Identity("data"), nil)
	require.NoError(t, err)
	return tbl
}

func dataFile(path, part string, records int64) core.DataFile {
	df := core.DataFile{Path: path, Format: core.FormatPlain, RecordCount: records, SizeBytes: 100}
	if part != "" {
		df.Partition = core.PartitionKey{{Field: "data", Value: part}}
	}
	return df
}

func TestCreateAndLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	newTestTable(t, fs)

	tbl, err := Load(fs, "warehouse/test")
	require.NoError(t, err)

	snap, err := tbl.CurrentSnapshot()
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.ID)
	assert.Empty(t, snap.Files)

	schema, err := tbl.Schema()
	require.NoError(t, err)
	assert.True(t, schema.Equal(testSchema(t)))

	spec, err := tbl.PartitionSpec()
	require.NoError(t, err)
	assert.False(t, spec.IsUnpartitioned())
}

func TestLoad_Missing(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := Load(fs, "warehouse/nope")
	require.Error(t, err)
}

func TestCommit_AppendsFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	tbl := newTestTable(t, fs)
	ctx := context.Background()

	base, err := tbl.CurrentSnapshot()
	require.NoError(t, err)

	snap, err := tbl.Commit(ctx, base, []core.DataFile{dataFile("data/a", "aaa", 3)}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.ID)
	assert.Equal(t, int64(0), snap.ParentID)
	require.Len(t, snap.Files, 1)

	// A second commit builds on the first.
	snap2, err := tbl.Commit(ctx, snap, []core.DataFile{dataFile("data/b", "bbb", 3)}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap2.ID)
	assert.Len(t, snap2.Files, 2)
}

func TestCommit_Conflict(t *testing.T) {
	fs := afero.NewMemMapFs()
	tbl := newTestTable(t, fs)
	ctx := context.Background()

	base, err := tbl.CurrentSnapshot()
	require.NoError(t, err)

	_, err = tbl.Commit(ctx, base, []core.DataFile{dataFile("data/a", "aaa", 3)}, nil)
	require.NoError(t, err)

	// A commit against the stale base must fail with a conflict.
	_, err = tbl.Commit(ctx, base, []core.DataFile{dataFile("data/b", "bbb", 3)}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCommitConflict))
}

func TestCommit_ConflictAcrossHandles(t *testing.T) {
	fs := afero.NewMemMapFs()
	tbl1 := newTestTable(t, fs)
	ctx := context.Background()

	tbl2, err := Load(fs, "warehouse/test")
	require.NoError(t, err)

	base1, err := tbl1.CurrentSnapshot()
	require.NoError(t, err)
	base2, err := tbl2.CurrentSnapshot()
	require.NoError(t, err)

	_, err = tbl1.Commit(ctx, base1, []core.DataFile{dataFile("data/a", "aaa", 3)}, nil)
	require.NoError(t, err)

	// The second handle's base is stale now.
	_, err = tbl2.Commit(ctx, base2, []core.DataFile{dataFile("data/b", "bbb", 3)}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCommitConflict))

	// After reloading, the commit goes through and sees both files.
	fresh, err := tbl2.CurrentSnapshot()
	require.NoError(t, err)
	snap, err := tbl2.Commit(ctx, fresh, []core.DataFile{dataFile("data/b", "bbb", 3)}, nil)
	require.NoError(t, err)
	assert.Len(t, snap.Files, 2)
}

func TestCommit_ReplacementAndLiveness(t *testing.T) {
	fs := afero.NewMemMapFs()
	tbl := newTestTable(t, fs)
	ctx := context.Background()

	base, err := tbl.CurrentSnapshot()
	require.NoError(t, err)
	small1 := dataFile("data/s1", "aaa", 1)
	small2 := dataFile("data/s2", "aaa", 2)
	snap, err := tbl.Commit(ctx, base, []core.DataFile{small1, small2}, nil)
	require.NoError(t, err)

	// Replace the two small files with one rewritten file.
	merged := dataFile("data/m", "aaa", 3)
	snap2, err := tbl.Commit(ctx, snap, []core.DataFile{merged}, []core.DataFile{small1, small2})
	require.NoError(t, err)
	require.Len(t, snap2.Files, 1)
	assert.Equal(t, "data/m", snap2.Files[0].Path)

	// Removing a file that is no longer live is a conflict.
	_, err = tbl.Commit(ctx, snap2, nil, []core.DataFile{small1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCommitConflict))
}

func TestScan_PartitionFilter(t *testing.T) {
	fs := afero.NewMemMapFs()
	tbl := newTestTable(t, fs)
	ctx := context.Background()

	base, err := tbl.CurrentSnapshot()
	require.NoError(t, err)
	_, err = tbl.Commit(ctx, base, []core.DataFile{
		dataFile("data/a1", "aaa", 1),
		dataFile("data/a2", "aaa", 2),
		dataFile("data/b1", "bbb", 3),
	}, nil)
	require.NoError(t, err)

	all, err := tbl.Scan(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	key := core.PartitionKey{{Field: "data", Value: "aaa"}}
	filtered, err := tbl.Scan(ctx, &key)
	require.NoError(t, err)
	assert.Len(t, filtered, 2)

	missing := core.PartitionKey{{Field: "data", Value: "zzz"}}
	filtered, err = tbl.Scan(ctx, &missing)
	require.NoError(t, err)
	assert.Empty(t, filtered)
}

func TestProperties(t *testing.T) {
	fs := afero.NewMemMapFs()
	tbl := newTestTable(t, fs)

	require.NoError(t, tbl.SetProperty(PropertyDefaultFormat, "zstd"))
	require.NoError(t, tbl.SetProperty(PropertyDistributionMode, "hash"))
	require.NoError(t, tbl.SetProperty(PropertyTargetFileSize, "1024"))

	meta, err := tbl.Metadata()
	require.NoError(t, err)
	assert.Equal(t, core.FormatZstd, meta.DefaultFormat())
	assert.Equal(t, "hash", meta.Properties[PropertyDistributionMode])
	assert.Equal(t, int64(1024), meta.TargetFileSize())

	// Properties survive reload through another handle.
	tbl2, err := Load(fs, "warehouse/test")
	require.NoError(t, err)
	meta2, err := tbl2.Metadata()
	require.NoError(t, err)
	assert.Equal(t, core.FormatZstd, meta2.DefaultFormat())
}

func TestMetadataDefaults(t *testing.T) {
	meta := &Metadata{}
	assert.Equal(t, core.FormatPlain, meta.DefaultFormat())
	assert.Equal(t, DefaultTargetFileSize, meta.TargetFileSize())

	meta.Properties = Properties{
		PropertyDefaultFormat:  "not-a-format",
		PropertyTargetFileSize: "-5",
	}
	assert.Equal(t, core.FormatPlain, meta.DefaultFormat())
	assert.Equal(t, DefaultTargetFileSize, meta.TargetFileSize())
}
