// Package storage abstracts the object store holding data files and the
// transaction log. The conditional write is the atomicity primitive: a
// commit becomes visible in a single WriteIfAbsent, and two writers racing
// for the same key produce exactly one winner.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrExists is returned by WriteIfAbsent when the key is already present.
	ErrExists = errors.New("object already exists")
	// ErrNotFound is returned by Read for a missing key.
	ErrNotFound = errors.New("object not found")
)

type Storage interface {
	// Write stores an object, replacing any existing one.
	Write(ctx context.Context, path string, data []byte) error
	// WriteIfAbsent stores an object only if the key does not exist yet,
	// failing with ErrExists otherwise.
	WriteIfAbsent(ctx context.Context, path string, data []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	// List returns the keys under prefix in lexicographic order.
	List(ctx context.Context, prefix string) ([]string, error)
}
