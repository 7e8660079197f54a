package datafile

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"delta-forge/partition"
	"delta-forge/schema"
	"delta-forge/storage"
)

func testSchema() *schema.Schema {
	return schema.New(
		schema.Field{Name: "id", Type: schema.TypeLong},
		schema.Field{Name: "name", Type: schema.TypeString, Nullable: true},
		schema.Field{Name: "year", Type: schema.TypeLong},
	)
}

func newTestWriter(t *testing.T) *Writer {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewWriter(store, NewParquetCodec(), zap.NewNop())
}

func TestWriteBatchRoundtrip(t *testing.T) {
	w := newTestWriter(t)
	ctx := context.Background()
	sch := testSchema()

	batch := partition.Batch{
		Values: map[string]string{"year": "2024"},
		Rows: []schema.Row{
			{"id": int64(1), "name": "Alice", "year": int64(2024)},
			{"id": int64(2), "name": nil, "year": int64(2024)},
		},
	}

	desc, err := w.WriteBatch(ctx, sch, []string{"year"}, batch)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(desc.Path, "year=2024/part-"))
	assert.True(t, strings.HasSuffix(desc.Path, ".parquet"))
	assert.Equal(t, int64(2), desc.RowCount)
	assert.Greater(t, desc.Size, int64(0))

	rows, err := w.ReadFile(ctx, sch, desc.Path)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.Equal(t, "Alice", rows[0]["name"])
	assert.Nil(t, rows[1]["name"])
}

func TestWriteBatchUniqueNames(t *testing.T) {
	w := newTestWriter(t)
	ctx := context.Background()
	sch := testSchema()

	batch := partition.Batch{
		Values: map[string]string{},
		Rows:   []schema.Row{{"id": int64(1), "name": "x", "year": int64(2024)}},
	}
	a, err := w.WriteBatch(ctx, sch, nil, batch)
	require.NoError(t, err)
	b, err := w.WriteBatch(ctx, sch, nil, batch)
	require.NoError(t, err)
	assert.NotEqual(t, a.Path, b.Path)
}

func TestWriteAllOneFilePerPartition(t *testing.T) {
	w := newTestWriter(t)
	ctx := context.Background()
	sch := testSchema()

	batches := []partition.Batch{
		{Values: map[string]string{"year": "2023"}, Rows: []schema.Row{{"id": int64(1), "name": "a", "year": int64(2023)}}},
		{Values: map[string]string{"year": "2024"}, Rows: []schema.Row{{"id": int64(2), "name": "b", "year": int64(2024)}}},
	}
	descs, err := w.WriteAll(ctx, sch, []string{"year"}, batches)
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, map[string]string{"year": "2023"}, descs[0].PartitionValues)
	assert.Equal(t, map[string]string{"year": "2024"}, descs[1].PartitionValues)
}

func TestWriteBatchEncodingError(t *testing.T) {
	w := newTestWriter(t)
	batch := partition.Batch{
		Values: map[string]string{},
		Rows:   []schema.Row{{"id": "not a number", "name": "x", "year": int64(1)}},
	}
	_, err := w.WriteBatch(context.Background(), testSchema(), nil, batch)
	require.ErrorIs(t, err, ErrEncoding)
}
