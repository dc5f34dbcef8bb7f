// Package embeddings provides embedding generation via a TEI-compatible
// HTTP service.
package embeddings

import "context"

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedQuery generates an embedding for a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments generates embeddings for a batch of texts.
	// The result preserves input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}
