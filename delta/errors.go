package delta

import "errors"

var (
	// ErrTableExists is returned by Create when version 0 is already present.
	ErrTableExists = errors.New("table already exists")
	// ErrTableNotExists is returned when an operation requires an existing table.
	ErrTableNotExists = errors.New("table does not exist")
	// ErrSchemaMismatch is returned when a batch disagrees with the table schema.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrConcurrentWrite is returned when another writer claimed the version
	// first. The engine never retries; callers must re-read the snapshot and
	// decide for themselves.
	ErrConcurrentWrite = errors.New("concurrent write conflict")
	// ErrAmbiguousMergeKey is returned when a merge predicate is anything
	// other than an equality on a single key column.
	ErrAmbiguousMergeKey = errors.New("ambiguous merge key")
	// ErrCorruptLog is returned when replay finds a gap or a malformed commit.
	ErrCorruptLog = errors.New("corrupt transaction log")
)
