package delta

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"delta-forge/metrics"
	"delta-forge/storage"
)

// CommitMode selects how a file commit relates to existing table state.
type CommitMode int

const (
	// ModeCreate writes version 0 with protocol and metadata; fails if the
	// table already exists.
	ModeCreate CommitMode = iota
	// ModeAppend adds files to an existing table.
	ModeAppend
	// ModeOverwrite replaces the whole live-file set in one commit,
	// creating the table when it does not exist yet.
	ModeOverwrite
)

func (m CommitMode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeAppend:
		return "append"
	case ModeOverwrite:
		return "overwrite"
	}
	return "unknown"
}

// Protocol levels written at table creation.
const (
	minReaderVersion = 1
	minWriterVersion = 2
)

// LogWriter appends commits to the transaction log. A commit is durable
// only once the full action file for its version lands; the conditional
// write guarantees at most one writer claims each version.
type LogWriter struct {
	store   storage.Storage
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewLogWriter(store storage.Storage, logger *zap.Logger, m *metrics.Metrics) *LogWriter {
	return &LogWriter{
		store:   store,
		logger:  logger,
		metrics: m,
	}
}

// CommitFiles builds and writes the commit for a file-level write
// operation. snap is the caller's current snapshot, nil when the table does
// not exist yet. It returns the version that landed.
func (w *LogWriter) CommitFiles(ctx context.Context, snap *Snapshot, mode CommitMode, meta *Metadata, adds []AddFile) (int64, error) {
	var actions []Action

	switch mode {
	case ModeCreate:
		if snap != nil {
			return 0, fmt.Errorf("create: %w", ErrTableExists)
		}
		actions = creationActions(meta, adds)
	case ModeAppend:
		if snap == nil {
			return 0, fmt.Errorf("append: %w", ErrTableNotExists)
		}
		for i := range adds {
			actions = append(actions, Action{Add: &adds[i]})
		}
	case ModeOverwrite:
		if snap == nil {
			actions = creationActions(meta, adds)
			break
		}
		now := time.Now().UnixMilli()
		for _, f := range snap.LiveFiles() {
			actions = append(actions, Action{Remove: &RemoveFile{
				Path:              f.Path,
				DeletionTimestamp: now,
				DataChange:        true,
			}})
		}
		for i := range adds {
			actions = append(actions, Action{Add: &adds[i]})
		}
	default:
		return 0, fmt.Errorf("unknown commit mode %d", mode)
	}

	version := int64(0)
	if snap != nil {
		version = snap.Version + 1
	}
	if err := w.commit(ctx, version, snap, actions); err != nil {
		return 0, err
	}
	w.observe(mode.String(), version, len(actions))
	return version, nil
}

// CommitTransaction writes an arbitrary action set as the next version
// after snap. Merge and delete use it for their remove+add pairs.
func (w *LogWriter) CommitTransaction(ctx context.Context, snap *Snapshot, operation string, actions []Action) (int64, error) {
	if snap == nil {
		return 0, fmt.Errorf("%s: %w", operation, ErrTableNotExists)
	}
	version := snap.Version + 1
	if err := w.commit(ctx, version, snap, actions); err != nil {
		return 0, err
	}
	w.observe(operation, version, len(actions))
	return version, nil
}

func creationActions(meta *Metadata, adds []AddFile) []Action {
	actions := []Action{
		{Protocol: &Protocol{MinReaderVersion: minReaderVersion, MinWriterVersion: minWriterVersion}},
		{Metadata: meta},
	}
	for i := range adds {
		actions = append(actions, Action{Add: &adds[i]})
	}
	return actions
}

// commit validates the action set against the snapshot and performs the
// single atomic append for the version.
func (w *LogWriter) commit(ctx context.Context, version int64, snap *Snapshot, actions []Action) error {
	if err := validateActions(snap, actions); err != nil {
		return err
	}
	data, err := EncodeCommit(actions)
	if err != nil {
		return fmt.Errorf("encoding commit %d: %w", version, err)
	}
	if err := w.store.WriteIfAbsent(ctx, CommitPath(version), data); err != nil {
		if errors.Is(err, storage.ErrExists) {
			if w.metrics != nil {
				w.metrics.ConflictsTotal.Inc()
			}
			return fmt.Errorf("version %d already written: %w", version, ErrConcurrentWrite)
		}
		return fmt.Errorf("writing commit %d: %w", version, err)
	}
	return nil
}

// validateActions enforces that a remove only targets a path that is live,
// counting adds from earlier in the same commit. This keeps the
// add-precedes-remove ordering invariant across the whole log.
func validateActions(snap *Snapshot, actions []Action) error {
	added := make(map[string]struct{})
	removed := make(map[string]struct{})
	for _, a := range actions {
		switch {
		case a.Add != nil:
			if _, ok := added[a.Add.Path]; ok {
				return fmt.Errorf("duplicate add for %s in one commit", a.Add.Path)
			}
			added[a.Add.Path] = struct{}{}
		case a.Remove != nil:
			path := a.Remove.Path
			if _, ok := removed[path]; ok {
				return fmt.Errorf("duplicate remove for %s in one commit", path)
			}
			_, addedHere := added[path]
			if !addedHere && (snap == nil || !snap.ContainsFile(path)) {
				return fmt.Errorf("remove for %s, which is not a live file", path)
			}
			removed[path] = struct{}{}
		}
	}
	return nil
}

func (w *LogWriter) observe(operation string, version int64, actionCount int) {
	if w.metrics != nil {
		w.metrics.CommitsTotal.WithLabelValues(operation).Inc()
	}
	w.logger.Info("committed version",
		zap.Int64("version", version),
		zap.String("operation", operation),
		zap.Int("actions", actionCount))
}
