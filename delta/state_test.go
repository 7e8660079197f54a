package delta_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delta-forge/delta"
	"delta-forge/schema"
	"delta-forge/storage"
)

func TestReplayIsDeterministic(t *testing.T) {
	tbl, store := newTestTable(t)
	ctx := context.Background()

	_, err := tbl.Create(ctx, productSchema(), []string{"year"}, productRows())
	require.NoError(t, err)
	_, err = tbl.Append(ctx, []schema.Row{{"id": 6, "name": "F", "quantity": 1, "year": 2025}})
	require.NoError(t, err)
	_, err = tbl.Delete(ctx, "id = 4")
	require.NoError(t, err)

	state := delta.NewTableState(store)
	first, err := state.Snapshot(ctx)
	require.NoError(t, err)
	second, err := state.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, livePaths(first), livePaths(second))
	assert.Equal(t, first.NumRows(), second.NumRows())
}

func TestSnapshotAtEarlierVersion(t *testing.T) {
	tbl, _ := newTestTable(t)
	ctx := context.Background()

	_, err := tbl.Create(ctx, productSchema(), []string{"year"}, productRows())
	require.NoError(t, err)
	filesAtZero, err := tbl.Snapshot(ctx)
	require.NoError(t, err)

	_, err = tbl.Overwrite(ctx, productSchema(), []string{"year"}, []schema.Row{
		{"id": 9, "name": "Z", "quantity": 9, "year": 2020},
	})
	require.NoError(t, err)

	old, err := tbl.SnapshotAt(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), old.Version)
	assert.Equal(t, livePaths(filesAtZero), livePaths(old))

	latest, err := tbl.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), latest.Version)
	assert.Equal(t, 1, latest.NumFiles())
}

func TestSnapshotMissingTable(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = delta.NewTableState(store).Snapshot(context.Background())
	require.ErrorIs(t, err, delta.ErrTableNotExists)
}

func TestReplayDetectsVersionGap(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	meta := &delta.Metadata{
		ID:     "t",
		Schema: *schema.New(schema.Field{Name: "id", Type: schema.TypeLong}),
	}
	commit0, err := delta.EncodeCommit([]delta.Action{
		{Protocol: &delta.Protocol{MinReaderVersion: 1, MinWriterVersion: 2}},
		{Metadata: meta},
	})
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, delta.CommitPath(0), commit0))

	commit2, err := delta.EncodeCommit([]delta.Action{
		{Add: &delta.AddFile{Path: "part-x.parquet", PartitionValues: map[string]string{}, DataChange: true}},
	})
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, delta.CommitPath(2), commit2))

	_, err = delta.NewTableState(store).Snapshot(ctx)
	require.ErrorIs(t, err, delta.ErrCorruptLog)
}

func TestReplayDetectsRemoveWithoutAdd(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	commit0, err := delta.EncodeCommit([]delta.Action{
		{Protocol: &delta.Protocol{MinReaderVersion: 1, MinWriterVersion: 2}},
		{Metadata: &delta.Metadata{ID: "t", Schema: *schema.New(schema.Field{Name: "id", Type: schema.TypeLong})}},
		{Remove: &delta.RemoveFile{Path: "never-added.parquet", DataChange: true}},
	})
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, delta.CommitPath(0), commit0))

	_, err = delta.NewTableState(store).Snapshot(ctx)
	require.ErrorIs(t, err, delta.ErrCorruptLog)
}
