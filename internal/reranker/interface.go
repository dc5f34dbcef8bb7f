// Package reranker provides document re-ranking for improving retrieval
// quality before answer synthesis.
package reranker

import (
	"context"
)

// Document represents a retrieved document chunk with its similarity score.
type Document struct {
	ID      string  // Unique identifier for the chunk
	Content string  // Text content to be re-ranked
	Score   float32 // Original similarity score from vector search
}

// ScoredDocument represents a document with re-ranking scores.
type ScoredDocument struct {
	Document
	RerankerScore float32 // Score from the re-ranker (0.0-1.0)
	OriginalRank  int     // Rank position before re-ranking (0-indexed)
}

// Reranker re-orders documents by query relevance.
type Reranker interface {
	// Rerank re-scores documents against the query and returns the top K,
	// ordered by relevance descending. Ties preserve the input order.
	Rerank(ctx context.Context, query string, docs []Document, topK int) ([]ScoredDocument, error)

	// Close releases any resources held by the reranker.
	Close() error
}
