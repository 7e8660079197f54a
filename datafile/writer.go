package datafile

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"delta-forge/partition"
	"delta-forge/schema"
	"delta-forge/storage"
)

// Writer stages partitioned row groups into immutable data files. Every
// call produces exactly one new file with a globally unique name, so
// repeated or concurrent writes can never collide.
type Writer struct {
	store  storage.Storage
	codec  Codec
	logger *zap.Logger
}

func NewWriter(store storage.Storage, codec Codec, logger *zap.Logger) *Writer {
	return &Writer{
		store:  store,
		codec:  codec,
		logger: logger,
	}
}

// WriteBatch encodes one partition group and stores it under its partition
// path, returning the descriptor for the new file.
func (w *Writer) WriteBatch(ctx context.Context, sch *schema.Schema, partitionColumns []string, batch partition.Batch) (Descriptor, error) {
	data, err := w.codec.Encode(sch, batch.Rows)
	if err != nil {
		return Descriptor{}, fmt.Errorf("encoding partition %v: %w", batch.Values, err)
	}

	name := "part-" + uuid.NewString() + w.codec.Extension()
	filePath := path.Join(partition.Path(partitionColumns, batch.Values), name)

	if err := w.store.Write(ctx, filePath, data); err != nil {
		return Descriptor{}, fmt.Errorf("storing data file %s: %w", filePath, err)
	}

	w.logger.Debug("wrote data file",
		zap.String("path", filePath),
		zap.Int("rows", len(batch.Rows)),
		zap.Int("bytes", len(data)))

	return Descriptor{
		Path:             filePath,
		PartitionValues:  batch.Values,
		Size:             int64(len(data)),
		RowCount:         int64(len(batch.Rows)),
		ModificationTime: time.Now().UnixMilli(),
	}, nil
}

// WriteAll writes one file per partition group, fanning out across
// partitions. If any write fails the whole operation fails; files already
// written are left behind as unreferenced garbage, which replay ignores.
func (w *Writer) WriteAll(ctx context.Context, sch *schema.Schema, partitionColumns []string, batches []partition.Batch) ([]Descriptor, error) {
	descriptors := make([]Descriptor, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			d, err := w.WriteBatch(gctx, sch, partitionColumns, batch)
			if err != nil {
				return err
			}
			descriptors[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return descriptors, nil
}

// ReadFile loads a previously written data file back into rows. Merge uses
// this to rewrite the files a predicate touches.
func (w *Writer) ReadFile(ctx context.Context, sch *schema.Schema, filePath string) ([]schema.Row, error) {
	data, err := w.store.Read(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("reading data file %s: %w", filePath, err)
	}
	rows, err := w.codec.Decode(sch, data)
	if err != nil {
		return nil, fmt.Errorf("decoding data file %s: %w", filePath, err)
	}
	return rows, nil
}
