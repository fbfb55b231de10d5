package partition

import (
	"testing"

	"github.com/INLOpen/lakesink/core"
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

func TestExtractor_Identity(t *testing.T) {
	ex, err := NewExtractor(Identity("data"), testSchema(t))
	require.NoError(t, err)

	key, err := ex.Extract(core.MustRow(1, "aaa"))
	require.NoError(t, err)
	assert.Equal(t, core.PartitionKey{{Field: "data", Value: "aaa"}}, key)

	// Deterministic: same record, same key.
	again, err := ex.Extract(core.MustRow(1, "aaa"))
	require.NoError(t, err)
	assert.True(t, key.Equal(again))
}

func TestExtractor_MultiField(t *testing.T) {
	ex, err := NewExtractor(Identity("data", "id"), testSchema(t))
	require.NoError(t, err)

	key, err := ex.Extract(core.MustRow(3, "ccc"))
	require.NoError(t, err)
	assert.Equal(t, "data=ccc/id=3", key.Path())
}

func TestExtractor_Unpartitioned(t *testing.T) {
	ex, err := NewExtractor(Unpartitioned(), testSchema(t))
	require.NoError(t, err)

	key, err := ex.Extract(core.MustRow(1, "aaa"))
	require.NoError(t, err)
	assert.True(t, key.IsEmpty())
}

func TestExtractor_MissingField(t *testing.T) {
	_, err := NewExtractor(Identity("region"), testSchema(t))
	require.Error(t, err)
	assert.True(t, core.IsSchemaMismatch(err))
}
