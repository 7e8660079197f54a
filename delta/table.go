package delta

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"delta-forge/datafile"
	"delta-forge/metrics"
	"delta-forge/partition"
	"delta-forge/schema"
	"delta-forge/storage"
)

// Table binds the write-path components together for one table rooted at a
// storage backend. All operations run in a single logical writer; the only
// concurrency hazard is an independent process racing for the same
// version, surfaced as ErrConcurrentWrite.
type Table struct {
	store   storage.Storage
	logger  *zap.Logger
	metrics *metrics.Metrics
	state   *TableState
	log     *LogWriter
	files   *datafile.Writer
	merge   *MergeEngine
}

func NewTable(store storage.Storage, codec datafile.Codec, logger *zap.Logger, m *metrics.Metrics) *Table {
	files := datafile.NewWriter(store, codec, logger)
	log := NewLogWriter(store, logger, m)
	return &Table{
		store:   store,
		logger:  logger,
		metrics: m,
		state:   NewTableState(store),
		log:     log,
		files:   files,
		merge:   NewMergeEngine(files, log, logger),
	}
}

// Snapshot returns the latest materialized state.
func (t *Table) Snapshot(ctx context.Context) (*Snapshot, error) {
	return t.state.Snapshot(ctx)
}

// SnapshotAt returns the state as of an earlier version.
func (t *Table) SnapshotAt(ctx context.Context, version int64) (*Snapshot, error) {
	return t.state.SnapshotAt(ctx, version)
}

// Create writes version 0: protocol, metadata, and one AddFile per
// partition present in the initial rows.
func (t *Table) Create(ctx context.Context, sch *schema.Schema, partitionColumns []string, rows []schema.Row) (int64, error) {
	snap, err := t.existingSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	if snap != nil {
		return 0, fmt.Errorf("create: %w", ErrTableExists)
	}
	meta, adds, err := t.stage(ctx, sch, partitionColumns, rows)
	if err != nil {
		return 0, err
	}
	return t.log.CommitFiles(ctx, nil, ModeCreate, meta, adds)
}

// Append adds rows to an existing table under its registered schema and
// partition spec.
func (t *Table) Append(ctx context.Context, rows []schema.Row) (int64, error) {
	snap, err := t.state.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("append: %w", err)
	}
	sch := &snap.Metadata.Schema
	adds, err := t.stageFiles(ctx, sch, snap.Metadata.PartitionColumns, rows)
	if err != nil {
		return 0, err
	}
	return t.log.CommitFiles(ctx, snap, ModeAppend, nil, adds)
}

// Overwrite replaces the entire live-file set with the given rows in a
// single commit, creating the table if it does not exist. Regenerating a
// table this way is idempotent: the result never depends on prior contents.
func (t *Table) Overwrite(ctx context.Context, sch *schema.Schema, partitionColumns []string, rows []schema.Row) (int64, error) {
	snap, err := t.existingSnapshot(ctx)
	if err != nil {
		return 0, err
	}
	if snap != nil {
		if !sch.Equal(&snap.Metadata.Schema) {
			return 0, fmt.Errorf("overwrite: %w", ErrSchemaMismatch)
		}
		// The partition spec is fixed at creation; an overwrite commit
		// carries no new metadata action to redeclare it.
		if !slices.Equal(partitionColumns, snap.Metadata.PartitionColumns) {
			return 0, fmt.Errorf("overwrite: partition columns %v do not match table spec %v: %w",
				partitionColumns, snap.Metadata.PartitionColumns, ErrSchemaMismatch)
		}
	}
	meta, adds, err := t.stage(ctx, sch, partitionColumns, rows)
	if err != nil {
		return 0, err
	}
	return t.log.CommitFiles(ctx, snap, ModeOverwrite, meta, adds)
}

// Merge applies a source batch with an equality-key predicate; see
// MergeEngine.Merge for the exact semantics.
func (t *Table) Merge(ctx context.Context, predicate string, source []schema.Row, onMatched MatchedAction, insertUnmatched bool) (int64, error) {
	snap, err := t.state.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("merge: %w", err)
	}
	batch := &schema.Batch{Rows: source}
	return t.merge.Merge(ctx, snap, predicate, batch, onMatched, insertUnmatched)
}

// Delete removes the rows matching an equality predicate.
func (t *Table) Delete(ctx context.Context, predicate string) (int64, error) {
	snap, err := t.state.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	return t.merge.Delete(ctx, snap, predicate)
}

// existingSnapshot loads the latest snapshot, mapping a missing table to a
// nil snapshot instead of an error.
func (t *Table) existingSnapshot(ctx context.Context) (*Snapshot, error) {
	snap, err := t.state.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, ErrTableNotExists) {
			return nil, nil
		}
		return nil, err
	}
	return snap, nil
}

// stage validates and writes the data files for a table-defining write and
// builds the metadata action to commit alongside them.
func (t *Table) stage(ctx context.Context, sch *schema.Schema, partitionColumns []string, rows []schema.Row) (*Metadata, []AddFile, error) {
	if err := sch.Validate(); err != nil {
		return nil, nil, fmt.Errorf("schema: %w", err)
	}
	for _, col := range partitionColumns {
		if _, ok := sch.Field(col); !ok {
			return nil, nil, fmt.Errorf("partition column %q not in schema: %w", col, partition.ErrInvalidValue)
		}
	}
	adds, err := t.stageFiles(ctx, sch, partitionColumns, rows)
	if err != nil {
		return nil, nil, err
	}
	meta := &Metadata{
		ID:               uuid.NewString(),
		Schema:           *sch,
		PartitionColumns: partitionColumns,
		CreatedTime:      time.Now().UnixMilli(),
	}
	return meta, adds, nil
}

func (t *Table) stageFiles(ctx context.Context, sch *schema.Schema, partitionColumns []string, rows []schema.Row) ([]AddFile, error) {
	batch := &schema.Batch{Rows: rows}
	if err := sch.ValidateBatch(batch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	batch.Schema = sch
	groups, err := partition.Split(batch, partitionColumns)
	if err != nil {
		return nil, err
	}
	descriptors, err := t.files.WriteAll(ctx, sch, partitionColumns, groups)
	if err != nil {
		return nil, err
	}
	if t.metrics != nil {
		t.metrics.DataFilesWritten.Add(float64(len(descriptors)))
		t.metrics.RowsWritten.Add(float64(len(rows)))
	}
	adds := make([]AddFile, 0, len(descriptors))
	for _, d := range descriptors {
		adds = append(adds, AddFile{
			Path:             d.Path,
			PartitionValues:  d.PartitionValues,
			Size:             d.Size,
			RowCount:         d.RowCount,
			ModificationTime: d.ModificationTime,
			DataChange:       true,
		})
	}
	return adds, nil
}
