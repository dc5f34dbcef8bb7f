// Package vectorstore provides vector storage with store-side payload
// filtering. The Qdrant implementation is the production backend; MemoryStore
// mirrors its filter semantics for tests and single-node development.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrUnavailable indicates the store could not be reached. Transient
	// transport failures and open circuit breakers map onto it so callers
	// can make a single degraded-mode decision.
	ErrUnavailable = errors.New("vector store unavailable")

	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid vector store config")

	// ErrInvalidCollectionName indicates a collection name failed validation.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrConnectionFailed indicates the initial connection could not be
	// established.
	ErrConnectionFailed = errors.New("vector store connection failed")
)

// Store is the capability interface for vector storage.
//
// All filters are evaluated by the store before ranking: a point excluded by
// the filter can never appear in a result set, regardless of similarity.
type Store interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, collection string, vectorSize uint64) error

	// Upsert inserts or replaces points.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns up to limit points ranked by similarity to vector,
	// restricted to points matching filter. A nil filter matches everything.
	// An empty result is not an error.
	Search(ctx context.Context, collection string, vector []float32, filter *Filter, limit uint64) ([]SearchResult, error)

	// Scroll returns all points matching filter, paging internally.
	// Vectors are included only when withVectors is true.
	Scroll(ctx context.Context, collection string, filter *Filter, withVectors bool) ([]Point, error)

	// Count returns the number of points matching filter.
	Count(ctx context.Context, collection string, filter *Filter) (uint64, error)

	// Close releases the underlying connection.
	Close() error
}
