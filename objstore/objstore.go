// Package objstore defines the object-store collaborator consumed by the
// cloud storage environment, and provides AWS S3 and in-memory
// implementations.
//
// This layer never speaks the object-store wire protocol itself; it
// configures a Store from a bucket descriptor and hands all remote I/O off
// to it.
package objstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotExist is returned (possibly wrapped) when an object is absent.
// Callers should use Store.IsNotExist rather than comparing directly, since
// provider implementations may surface their own not-found types.
var ErrNotExist = errors.New("objstore: object does not exist")

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	// Key is the full object key, including any configured path prefix.
	Key string

	// Size is the object size in bytes.
	Size int64

	// LastModified is the provider-reported modification time.
	LastModified time.Time
}

// Store is the narrow contract the storage environment needs from a remote
// object store. Implementations must be safe for concurrent use.
type Store interface {
	// Put uploads an object, overwriting any existing object with the key.
	Put(ctx context.Context, key string, body io.Reader) error

	// Get downloads an object. The caller must close the returned reader.
	// A missing object yields an error for which IsNotExist returns true.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error

	// List returns the objects whose keys start with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Exists reports whether an object with the key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// IsNotExist reports whether an error returned by Get or Delete means
	// the object does not exist.
	IsNotExist(err error) bool
}
