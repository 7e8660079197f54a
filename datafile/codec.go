// Package datafile stages row batches into immutable data files. The
// columnar encoding itself is behind the Codec interface so the engine
// never depends on a concrete file format.
package datafile

import (
	"errors"

	"delta-forge/schema"
)

// ErrEncoding is returned when the codec rejects a batch.
var ErrEncoding = errors.New("encoding batch")

// Codec encodes rows into a file body and back.
type Codec interface {
	// Encode serializes rows under the given schema into a complete file body.
	Encode(sch *schema.Schema, rows []schema.Row) ([]byte, error)
	// Decode parses a file body previously produced by Encode.
	Decode(sch *schema.Schema, data []byte) ([]schema.Row, error)
	// Extension is the file name suffix, e.g. ".parquet".
	Extension() string
}

// Descriptor identifies one written data file.
type Descriptor struct {
	Path             string
	PartitionValues  map[string]string
	Size             int64
	RowCount         int64
	ModificationTime int64
}
