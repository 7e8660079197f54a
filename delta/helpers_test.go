package delta_test

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"delta-forge/datafile"
	"delta-forge/delta"
	"delta-forge/schema"
	"delta-forge/storage"
)

func newTestTable(t *testing.T) (*delta.Table, storage.Storage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	tbl := delta.NewTable(store, datafile.NewParquetCodec(), zap.NewNop(), nil)
	return tbl, store
}

func productSchema() *schema.Schema {
	return schema.New(
		schema.Field{Name: "id", Type: schema.TypeLong},
		schema.Field{Name: "name", Type: schema.TypeString},
		schema.Field{Name: "quantity", Type: schema.TypeLong},
		schema.Field{Name: "year", Type: schema.TypeLong},
	)
}

func productRows() []schema.Row {
	return []schema.Row{
		{"id": 1, "name": "Product A", "quantity": 100, "year": 2024},
		{"id": 2, "name": "Product B", "quantity": 200, "year": 2024},
		{"id": 3, "name": "Product C", "quantity": 150, "year": 2024},
		{"id": 4, "name": "Product D", "quantity": 300, "year": 2023},
		{"id": 5, "name": "Product E", "quantity": 250, "year": 2023},
	}
}

// readCommit loads and decodes the stored commit file for a version.
func readCommit(t *testing.T, store storage.Storage, version int64) []delta.Action {
	t.Helper()
	data, err := store.Read(context.Background(), delta.CommitPath(version))
	require.NoError(t, err)
	actions, err := delta.DecodeCommit(data)
	require.NoError(t, err)
	return actions
}

func countActions(actions []delta.Action) (adds, removes, metas, protocols int) {
	for _, a := range actions {
		switch {
		case a.Add != nil:
			adds++
		case a.Remove != nil:
			removes++
		case a.Metadata != nil:
			metas++
		case a.Protocol != nil:
			protocols++
		}
	}
	return
}

// liveRows decodes every live file of a snapshot and returns all rows
// sorted by the "id" column.
func liveRows(t *testing.T, store storage.Storage, snap *delta.Snapshot) []schema.Row {
	t.Helper()
	codec := datafile.NewParquetCodec()
	sch := &snap.Metadata.Schema

	var rows []schema.Row
	for _, f := range snap.LiveFiles() {
		data, err := store.Read(context.Background(), f.Path)
		require.NoError(t, err)
		decoded, err := codec.Decode(sch, data)
		require.NoError(t, err)
		rows = append(rows, decoded...)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i]["id"].(int64) < rows[j]["id"].(int64)
	})
	return rows
}

func livePaths(snap *delta.Snapshot) []string {
	var paths []string
	for _, f := range snap.LiveFiles() {
		paths = append(paths, f.Path)
	}
	return paths
}
