package delta_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delta-forge/delta"
	"delta-forge/schema"
)

// TestTableLifecycle walks one table through the create / append / merge /
// delete sequence the sample fixtures use, checking the action shape of
// every commit along the way.
func TestTableLifecycle(t *testing.T) {
	tbl, store := newTestTable(t)
	ctx := context.Background()

	t.Run("create partitioned by year", func(t *testing.T) {
		version, err := tbl.Create(ctx, productSchema(), []string{"year"}, productRows())
		require.NoError(t, err)
		require.Equal(t, int64(0), version)

		adds, removes, metas, protocols := countActions(readCommit(t, store, 0))
		assert.Equal(t, 2, adds, "one add per distinct year")
		assert.Equal(t, 0, removes)
		assert.Equal(t, 1, metas)
		assert.Equal(t, 1, protocols)

		snap, err := tbl.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(5), snap.NumRows())
		for _, f := range snap.LiveFiles() {
			assert.Contains(t, f.PartitionValues, "year")
		}
	})

	t.Run("append two rows in one new year", func(t *testing.T) {
		before, err := tbl.Snapshot(ctx)
		require.NoError(t, err)

		version, err := tbl.Append(ctx, []schema.Row{
			{"id": 6, "name": "Product F", "quantity": 400, "year": 2025},
			{"id": 7, "name": "Product G", "quantity": 350, "year": 2025},
		})
		require.NoError(t, err)
		require.Equal(t, int64(1), version)

		adds, removes, _, _ := countActions(readCommit(t, store, 1))
		assert.Equal(t, 1, adds, "one new partition touched")
		assert.Equal(t, 0, removes)

		after, err := tbl.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, before.NumFiles()+1, after.NumFiles())
		assert.Equal(t, int64(7), after.NumRows())
	})

	t.Run("merge-update two rows by id", func(t *testing.T) {
		before, err := tbl.Snapshot(ctx)
		require.NoError(t, err)

		version, err := tbl.Merge(ctx, "target.id = source.id", []schema.Row{
			{"id": 2, "name": "Product B Updated", "quantity": 250, "year": 2024},
			{"id": 3, "name": "Product C Updated", "quantity": 175, "year": 2024},
		}, delta.MatchedUpdate, false)
		require.NoError(t, err)
		require.Equal(t, int64(2), version)

		adds, removes, _, _ := countActions(readCommit(t, store, 2))
		assert.Equal(t, 1, removes, "one remove per touched file")
		assert.Equal(t, 1, adds, "one rewritten replacement")

		after, err := tbl.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, before.NumRows(), after.NumRows(), "update keeps row count")
	})

	t.Run("delete one row", func(t *testing.T) {
		version, err := tbl.Delete(ctx, "id = 5")
		require.NoError(t, err)
		require.Equal(t, int64(3), version)

		adds, removes, _, _ := countActions(readCommit(t, store, 3))
		assert.Equal(t, 1, removes)
		assert.Equal(t, 1, adds, "id=4 survives in the rewritten 2023 file")

		snap, err := tbl.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(6), snap.NumRows())

		rows := liveRows(t, store, snap)
		ids := make([]int64, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r["id"].(int64))
		}
		assert.Equal(t, []int64{1, 2, 3, 4, 6, 7}, ids)
	})

	t.Run("earlier versions still replay", func(t *testing.T) {
		v0, err := tbl.SnapshotAt(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(5), v0.NumRows())

		v2, err := tbl.SnapshotAt(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(7), v2.NumRows())
	})
}

// TestStringPartitionValues covers multi-column partitioning with string
// keys, the fourth fixture layout.
func TestStringPartitionValues(t *testing.T) {
	tbl, store := newTestTable(t)
	ctx := context.Background()

	sch := schema.New(
		schema.Field{Name: "id", Type: schema.TypeLong},
		schema.Field{Name: "region", Type: schema.TypeString},
		schema.Field{Name: "year", Type: schema.TypeLong},
	)
	rows := []schema.Row{
		{"id": 1, "region": "us-east", "year": 2024},
		{"id": 2, "region": "us-west", "year": 2024},
		{"id": 3, "region": "us-east", "year": 2024},
	}
	_, err := tbl.Create(ctx, sch, []string{"year", "region"}, rows)
	require.NoError(t, err)

	snap, err := tbl.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, snap.NumFiles())
	for _, f := range snap.LiveFiles() {
		assert.Contains(t, f.Path, "year=2024/region=")
		assert.Equal(t, "2024", f.PartitionValues["year"])
	}

	back := liveRows(t, store, snap)
	require.Len(t, back, 3)
	assert.Equal(t, "us-east", back[0]["region"])
}

// TestOverwriteKeepsPartitionSpec checks that an overwrite cannot change the
// partition columns declared at creation; only the creation commit carries a
// metadata action, so a different layout would desynchronize the log.
func TestOverwriteKeepsPartitionSpec(t *testing.T) {
	tbl, _ := newTestTable(t)
	ctx := context.Background()

	_, err := tbl.Create(ctx, productSchema(), []string{"year"}, productRows())
	require.NoError(t, err)

	_, err = tbl.Overwrite(ctx, productSchema(), []string{"quantity"}, productRows())
	require.ErrorIs(t, err, delta.ErrSchemaMismatch)

	snap, err := tbl.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Version, "rejected overwrite must not commit")
	assert.Equal(t, []string{"year"}, snap.Metadata.PartitionColumns)
	for _, f := range snap.LiveFiles() {
		assert.Contains(t, f.PartitionValues, "year")
	}

	// Same spec still overwrites fine.
	version, err := tbl.Overwrite(ctx, productSchema(), []string{"year"}, productRows())
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestCreateRejectsBadPartitionColumn(t *testing.T) {
	tbl, _ := newTestTable(t)
	_, err := tbl.Create(context.Background(), productSchema(), []string{"flavor"}, productRows())
	require.Error(t, err)
}
