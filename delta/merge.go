package delta

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"delta-forge/datafile"
	"delta-forge/partition"
	"delta-forge/schema"
)

// MatchedAction is what happens to a target row the predicate matched.
type MatchedAction int

const (
	// MatchedUpdate replaces the matched row's column values with the
	// source row's values.
	MatchedUpdate MatchedAction = iota
	// MatchedDelete drops the matched row from the rewritten file.
	MatchedDelete
)

// MergeEngine resolves a source batch against the current snapshot and
// rewrites every touched data file, emitting the remove+add pairs as one
// commit.
type MergeEngine struct {
	files  *datafile.Writer
	log    *LogWriter
	logger *zap.Logger
}

func NewMergeEngine(files *datafile.Writer, log *LogWriter, logger *zap.Logger) *MergeEngine {
	return &MergeEngine{
		files:  files,
		log:    log,
		logger: logger,
	}
}

// Merge applies the source batch to the table. The predicate must be an
// equality join on a single key column ("target.id = source.id"). Matched
// target rows get the matched action; unmatched source rows are inserted
// as new files when insertUnmatched is set. When several source rows share
// a key, the last one in batch order wins.
func (m *MergeEngine) Merge(ctx context.Context, snap *Snapshot, predicate string, source *schema.Batch, onMatched MatchedAction, insertUnmatched bool) (int64, error) {
	if snap == nil {
		return 0, fmt.Errorf("merge: %w", ErrTableNotExists)
	}
	key, err := mergeKeyColumn(predicate)
	if err != nil {
		return 0, err
	}
	sch := &snap.Metadata.Schema
	field, ok := sch.Field(key)
	if !ok {
		return 0, fmt.Errorf("merge key column %q not in table schema: %w", key, ErrSchemaMismatch)
	}
	if field.Type == schema.TypeBinary {
		return 0, fmt.Errorf("merge key column %q: binary columns cannot be compared: %w", key, ErrAmbiguousMergeKey)
	}
	if err := sch.ValidateBatch(source); err != nil {
		return 0, fmt.Errorf("source batch: %w: %v", ErrSchemaMismatch, err)
	}

	sourceByKey := make(map[any]schema.Row, len(source.Rows))
	keyOrder := make([]any, 0, len(source.Rows))
	for _, row := range source.Rows {
		k := row[key]
		if k == nil {
			return 0, fmt.Errorf("source row has null merge key %q", key)
		}
		if _, ok := sourceByKey[k]; !ok {
			keyOrder = append(keyOrder, k)
		}
		sourceByKey[k] = row
	}

	matched := make(map[any]bool, len(sourceByKey))
	match := func(row schema.Row) (schema.Row, bool) {
		src, ok := sourceByKey[row[key]]
		if ok {
			matched[row[key]] = true
		}
		return src, ok
	}

	actions, err := m.rewriteTouchedFiles(ctx, snap, key, sourceByKey, match, onMatched)
	if err != nil {
		return 0, err
	}

	if insertUnmatched {
		var inserts []schema.Row
		for _, k := range keyOrder {
			if !matched[k] {
				inserts = append(inserts, sourceByKey[k])
			}
		}
		insertActions, err := m.writeRows(ctx, snap, inserts)
		if err != nil {
			return 0, err
		}
		actions = append(actions, insertActions...)
	}

	if len(actions) == 0 {
		m.logger.Info("merge matched nothing, no commit written")
		return snap.Version, nil
	}
	return m.log.CommitTransaction(ctx, snap, "merge", actions)
}

// Delete removes every row matching an equality predicate on one column
// ("id = 5"). A file losing all of its rows produces a bare RemoveFile.
func (m *MergeEngine) Delete(ctx context.Context, snap *Snapshot, predicate string) (int64, error) {
	if snap == nil {
		return 0, fmt.Errorf("delete: %w", ErrTableNotExists)
	}
	column, literal, err := deletePredicate(predicate)
	if err != nil {
		return 0, err
	}
	sch := &snap.Metadata.Schema
	field, ok := sch.Field(column)
	if !ok {
		return 0, fmt.Errorf("delete column %q not in table schema: %w", column, ErrSchemaMismatch)
	}
	if field.Type == schema.TypeBinary {
		return 0, fmt.Errorf("delete column %q: binary columns cannot be compared: %w", column, ErrAmbiguousMergeKey)
	}
	value, err := schema.Coerce(field.Type, literal)
	if err != nil {
		return 0, fmt.Errorf("delete literal: %w", err)
	}

	match := func(row schema.Row) (schema.Row, bool) {
		return nil, row[column] == value
	}
	actions, err := m.rewriteTouchedFiles(ctx, snap, column, map[any]schema.Row{value: nil}, match, MatchedDelete)
	if err != nil {
		return 0, err
	}
	if len(actions) == 0 {
		m.logger.Info("delete matched nothing, no commit written")
		return snap.Version, nil
	}
	return m.log.CommitTransaction(ctx, snap, "delete", actions)
}

// rewriteTouchedFiles reads every candidate live file, rewrites the ones
// with at least one matched row, and returns the remove+add action pairs.
// Untouched files are left alone. When the key is a partition column,
// files whose partition value cannot match are skipped without a read.
func (m *MergeEngine) rewriteTouchedFiles(ctx context.Context, snap *Snapshot, key string, candidates map[any]schema.Row, match func(schema.Row) (schema.Row, bool), onMatched MatchedAction) ([]Action, error) {
	sch := &snap.Metadata.Schema
	partitionColumns := snap.Metadata.PartitionColumns

	var actions []Action
	for _, file := range snap.LiveFiles() {
		if skipByPartition(file, key, partitionColumns, candidates) {
			continue
		}
		rows, err := m.files.ReadFile(ctx, sch, file.Path)
		if err != nil {
			return nil, err
		}

		rewritten := make([]schema.Row, 0, len(rows))
		touched := false
		for _, row := range rows {
			src, ok := match(row)
			if !ok {
				rewritten = append(rewritten, row)
				continue
			}
			touched = true
			if onMatched == MatchedUpdate {
				rewritten = append(rewritten, src)
			}
		}
		if !touched {
			continue
		}

		now := time.Now().UnixMilli()
		actions = append(actions, Action{Remove: &RemoveFile{
			Path:              file.Path,
			DeletionTimestamp: now,
			DataChange:        true,
		}})
		if len(rewritten) == 0 {
			continue
		}
		addActions, err := m.writeRows(ctx, snap, rewritten)
		if err != nil {
			return nil, err
		}
		actions = append(actions, addActions...)
	}
	return actions, nil
}

func (m *MergeEngine) writeRows(ctx context.Context, snap *Snapshot, rows []schema.Row) ([]Action, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	sch := &snap.Metadata.Schema
	batches, err := partition.Split(&schema.Batch{Schema: sch, Rows: rows}, snap.Metadata.PartitionColumns)
	if err != nil {
		return nil, err
	}
	descriptors, err := m.files.WriteAll(ctx, sch, snap.Metadata.PartitionColumns, batches)
	if err != nil {
		return nil, err
	}
	actions := make([]Action, 0, len(descriptors))
	for _, d := range descriptors {
		actions = append(actions, Action{Add: &AddFile{
			Path:             d.Path,
			PartitionValues:  d.PartitionValues,
			Size:             d.Size,
			RowCount:         d.RowCount,
			ModificationTime: d.ModificationTime,
			DataChange:       true,
		}})
	}
	return actions, nil
}

// skipByPartition prunes a file when the key is a partition column and no
// candidate key renders to the file's partition value.
func skipByPartition(file AddFile, key string, partitionColumns []string, candidates map[any]schema.Row) bool {
	isPartitionKey := false
	for _, col := range partitionColumns {
		if col == key {
			isPartitionKey = true
			break
		}
	}
	if !isPartitionKey {
		return false
	}
	fileValue, ok := file.PartitionValues[key]
	if !ok {
		return false
	}
	for k := range candidates {
		s, err := partition.FormatValue(k)
		if err != nil {
			// Not renderable as a partition value; do not prune.
			return false
		}
		if s == fileValue {
			return false
		}
	}
	return true
}

// mergeKeyColumn extracts the key column from an equality-join predicate.
// Accepted forms: "id", "target.id = source.id", "t.id = s.id". Anything
// with boolean connectives, comparisons other than "=", or different
// columns on each side is ambiguous.
func mergeKeyColumn(predicate string) (string, error) {
	p := strings.TrimSpace(predicate)
	if p == "" {
		return "", fmt.Errorf("empty predicate: %w", ErrAmbiguousMergeKey)
	}
	if err := rejectComplex(p); err != nil {
		return "", err
	}
	if !strings.Contains(p, "=") {
		// Bare column name form.
		if strings.ContainsAny(p, " \t") {
			return "", fmt.Errorf("predicate %q: %w", predicate, ErrAmbiguousMergeKey)
		}
		return stripQualifier(p), nil
	}
	left, right, err := splitEquality(p)
	if err != nil {
		return "", err
	}
	lcol, rcol := stripQualifier(left), stripQualifier(right)
	if lcol == "" || lcol != rcol {
		return "", fmt.Errorf("predicate %q is not an equality on one column: %w", predicate, ErrAmbiguousMergeKey)
	}
	return lcol, nil
}

// deletePredicate parses "column = literal" into its parts, with the
// literal decoded from number, boolean, or (optionally quoted) string form.
func deletePredicate(predicate string) (string, any, error) {
	p := strings.TrimSpace(predicate)
	if err := rejectComplex(p); err != nil {
		return "", nil, err
	}
	left, right, err := splitEquality(p)
	if err != nil {
		return "", nil, err
	}
	column := stripQualifier(left)
	if column == "" || right == "" {
		return "", nil, fmt.Errorf("predicate %q: %w", predicate, ErrAmbiguousMergeKey)
	}
	return column, parseLiteral(right), nil
}

func rejectComplex(p string) error {
	lower := " " + strings.ToLower(p) + " "
	for _, token := range []string{" and ", " or ", " not ", " in ", "<", ">", "!="} {
		if strings.Contains(lower, token) {
			return fmt.Errorf("predicate %q is not a single equality: %w", p, ErrAmbiguousMergeKey)
		}
	}
	return nil
}

func splitEquality(p string) (string, string, error) {
	parts := strings.Split(p, "=")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("predicate %q is not a single equality: %w", p, ErrAmbiguousMergeKey)
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), nil
}

func stripQualifier(s string) string {
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}

func parseLiteral(s string) any {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
