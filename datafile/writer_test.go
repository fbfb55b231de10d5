package datafile

import (
	"context"
	"fmt"
	"testing"

	"github.com/INLOpen/lakesink/core"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, fs afero.Fs, path string, format core.FileFormat, records []core.Record) core.DataFile {
	t.Helper()
	writer, err := Open(WriterOptions{FS: fs, Path: path, Format: format})
	require.NoError(t, err)
	for _, rec := range records {
		require.NoError(t, writer.Append(rec))
	}
	df, err := writer.Finish(context.Background())
	require.NoError(t, err)
	return df
}

func TestWriter_RoundTrip(t *testing.T) {
	records := []core.Record{
		core.MustRow(1, "hello", 1.5, true),
		core.MustRow(2, "world", -2.25, false),
		core.MustRow(3, "foo", 0.0, true),
	}

	for _, format := range []core.FileFormat{core.FormatPlain, core.FormatSnappy, core.FormatZstd, core.FormatLZ4} {
		t.Run(string(format), func(t *testing.T) {
			fs := afero.NewMemMapFs()
			path := fmt.Sprintf("table/data/00000-%s", format)

			df := writeTestFile(t, fs, path, format, records)
			assert.Equal(t, path, df.Path)
			assert.Equal(t, format, df.Format)
			assert.Equal(t, int64(3), df.RecordCount)
			assert.Greater(t, df.SizeBytes, int64(0))

			// The temporary file must be gone.
			exists, err := afero.Exists(fs, path+".tmp")
			require.NoError(t, err)
			assert.False(t, exists)

			got, err := ReadAll(fs, path)
			require.NoError(t, err)
			require.Len(t, got, len(records))
			for i := range records {
				assert.True(t, records[i].Equal(got[i]), "record %d mismatch", i)
			}
		})
	}
}

func TestWriter_ManyBlocks(t *testing.T) {
	fs := afero.NewMemMapFs()
	writer, err := Open(WriterOptions{FS: fs, Path: "big", Format: core.FormatSnappy, BlockSize: 64})
	require.NoError(t, err)

	const n = 500
	for i := 0; i < n; i++ {
		require.NoError(t, writer.Append(core.MustRow(i, fmt.Sprintf("row-%04d", i))))
	}
	df, err := writer.Finish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(n), df.RecordCount)

	got, err := ReadAll(fs, "big")
	require.NoError(t, err)
	require.Len(t, got, n)
	// Order is preserved across block boundaries.
	first, _ := got[0][1].Str()
	last, _ := got[n-1][1].Str()
	assert.Equal(t, "row-0000", first)
	assert.Equal(t, fmt.Sprintf("row-%04d", n-1), last)
}

func TestWriter_Empty(t *testing.T) {
	fs := afero.NewMemMapFs()
	df := writeTestFile(t, fs, "empty", core.FormatPlain, nil)
	assert.Equal(t, int64(0), df.RecordCount)

	got, err := ReadAll(fs, "empty")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWriter_AppendAfterFinish(t *testing.T) {
	fs := afero.NewMemMapFs()
	writer, err := Open(WriterOptions{FS: fs, Path: "f", Format: core.FormatPlain})
	require.NoError(t, err)
	_, err = writer.Finish(context.Background())
	require.NoError(t, err)

	assert.Error(t, writer.Append(core.MustRow(1, "late")))
	_, err = writer.Finish(context.Background())
	assert.Error(t, err)
}

func TestWriter_Abort(t *testing.T) {
	fs := afero.NewMemMapFs()
	writer, err := Open(WriterOptions{FS: fs, Path: "aborted", Format: core.FormatPlain})
	require.NoError(t, err)
	require.NoError(t, writer.Append(core.MustRow(1, "x")))
	writer.Abort()

	for _, path := range []string{"aborted", "aborted.tmp"} {
		exists, err := afero.Exists(fs, path)
		require.NoError(t, err)
		assert.False(t, exists, "%s should not exist after abort", path)
	}
}

func TestWriter_FailsOnReadOnlyFs(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	_, err := Open(WriterOptions{FS: fs, Path: "nope", Format: core.FormatPlain})
	require.Error(t, err)
	assert.True(t, core.IsWriteError(err), "filesystem failures must surface as write errors")
}

func TestReader_CorruptBlock(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTestFile(t, fs, "corrupt", core.FormatPlain, []core.Record{core.MustRow(1, "hello")})

	// Flip a byte past the header to break the block checksum.
	raw, err := afero.ReadFile(fs, "corrupt")
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	require.NoError(t, afero.WriteFile(fs, "corrupt", raw, 0o644))

	_, err = ReadAll(fs, "corrupt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestReader_BadMagic(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "junk", []byte("not a data file at all"), 0o644))

	_, err := OpenReader(fs, "junk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "magic number")
}

func TestRollingWriter_RollsAtTargetSize(t *testing.T) {
	fs := afero.NewMemMapFs()
	rw := NewRollingWriter(RollingOptions{
		FS:             fs,
		Format:         core.FormatPlain,
		NextPath:       func(seq int) string { return fmt.Sprintf("part-%03d", seq) },
		TargetFileSize: 256,
		BlockSize:      64,
	})

	ctx := context.Background()
	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, rw.Append(ctx, core.MustRow(i, "payload-payload-payload")))
	}
	files, err := rw.Finish(ctx)
	require.NoError(t, err)
	require.Greater(t, len(files), 1, "should have rolled to multiple files")

	var total int64
	for i, df := range files {
		assert.Equal(t, fmt.Sprintf("part-%03d", i), df.Path)
		total += df.RecordCount
	}
	assert.Equal(t, int64(n), total)
}

func TestRollingWriter_NoRecordsNoFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	rw := NewRollingWriter(RollingOptions{
		FS:       fs,
		Format:   core.FormatPlain,
		NextPath: func(seq int) string { return fmt.Sprintf("part-%03d", seq) },
	})
	files, err := rw.Finish(context.Background())
	require.NoError(t, err)
	assert.Empty(t, files)
}
