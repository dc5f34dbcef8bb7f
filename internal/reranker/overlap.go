package reranker

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ErrNilContext is returned when a nil context is passed to Rerank.
var ErrNilContext = errors.New("context cannot be nil")

// OverlapReranker re-ranks documents by lexical term overlap with the query.
// It combines the original similarity score with the overlap score to produce
// the final ranking.
type OverlapReranker struct{}

// NewOverlapReranker creates a new OverlapReranker instance.
func NewOverlapReranker() *OverlapReranker {
	return &OverlapReranker{}
}

// Rerank re-ranks documents using term overlap.
// The algorithm:
//  1. Tokenizes the query into lowercased terms
//  2. For each document, calculates term overlap with the query
//  3. Combines original score (50% weight) with overlap score (50% weight)
//  4. Sorts by combined score and returns the top K results
//
// The sort is stable: documents with equal combined scores keep their
// original retrieval order.
func (r *OverlapReranker) Rerank(ctx context.Context, query string, docs []Document, topK int) ([]ScoredDocument, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if topK <= 0 {
		topK = len(docs)
	}
	if len(docs) == 0 {
		return []ScoredDocument{}, nil
	}

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		// Nothing to overlap against; keep the original ranking.
		return fallbackRank(docs, topK), nil
	}

	type scoredDoc struct {
		doc           ScoredDocument
		combinedScore float32
	}

	scoredDocs := make([]scoredDoc, len(docs))
	for i, doc := range docs {
		docTokens := tokenize(doc.Content)
		overlap := calculateTermOverlap(queryTokens, docTokens)

		// 50% original + 50% overlap keeps some reliance on semantic
		// similarity while boosting documents with high term overlap.
		const originalWeight = 0.5
		const overlapWeight = 0.5
		combinedScore := float32(originalWeight)*doc.Score + float32(overlapWeight)*overlap

		scoredDocs[i] = scoredDoc{
			doc: ScoredDocument{
				Document: Document{
					ID:      doc.ID,
					Content: doc.Content,
					Score:   doc.Score,
				},
				RerankerScore: overlap,
				OriginalRank:  i,
			},
			combinedScore: combinedScore,
		}
	}

	// Stable sort so equal scores keep retrieval order.
	sort.SliceStable(scoredDocs, func(i, j int) bool {
		return scoredDocs[i].combinedScore > scoredDocs[j].combinedScore
	})

	limit := topK
	if limit > len(scoredDocs) {
		limit = len(scoredDocs)
	}

	result := make([]ScoredDocument, limit)
	for i := 0; i < limit; i++ {
		result[i] = scoredDocs[i].doc
	}

	return result, nil
}

// Close closes the reranker. OverlapReranker has no resources to clean up.
func (r *OverlapReranker) Close() error {
	return nil
}

// tokenize splits text into lowercase terms, filtering out common stopwords.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !isAlphanumeric(r)
	})

	filtered := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if !isStopword(token) && len(token) > 2 {
			filtered = append(filtered, token)
		}
	}
	return filtered
}

// isAlphanumeric returns true if the rune is alphanumeric or underscore.
func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_'
}

// isStopword returns true if the token is a common English stopword.
func isStopword(token string) bool {
	stopwords := map[string]bool{
		"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
		"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
		"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
		"are": true, "be": true, "been": true, "being": true, "have": true, "has": true,
		"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
		"could": true, "should": true, "may": true, "might": true, "can": true, "this": true,
		"that": true, "these": true, "those": true, "i": true, "you": true, "he": true,
		"she": true, "it": true, "we": true, "they": true, "what": true, "which": true,
		"who": true, "when": true, "where": true, "why": true, "how": true,
	}
	return stopwords[token]
}

// calculateTermOverlap calculates the ratio of query terms found in document
// tokens. Returns a score between 0.0 and 1.0.
func calculateTermOverlap(queryTokens, docTokens []string) float32 {
	if len(queryTokens) == 0 {
		return 0.0
	}

	docTokenSet := make(map[string]bool)
	for _, token := range docTokens {
		docTokenSet[token] = true
	}

	// Count unique query tokens appearing in the document.
	matchCount := 0
	counted := make(map[string]bool)
	for _, queryToken := range queryTokens {
		if docTokenSet[queryToken] && !counted[queryToken] {
			matchCount++
			counted[queryToken] = true
		}
	}

	return float32(matchCount) / float32(len(queryTokens))
}

// fallbackRank returns documents ranked by original score when reranking
// cannot proceed. The sort is stable.
func fallbackRank(docs []Document, topK int) []ScoredDocument {
	indexed := make([]ScoredDocument, len(docs))
	for i, doc := range docs {
		indexed[i] = ScoredDocument{
			Document:      doc,
			RerankerScore: doc.Score,
			OriginalRank:  i,
		}
	}
	sort.SliceStable(indexed, func(i, j int) bool {
		return indexed[i].Score > indexed[j].Score
	})

	limit := topK
	if limit > len(indexed) {
		limit = len(indexed)
	}
	return indexed[:limit]
}

var _ Reranker = (*OverlapReranker)(nil)
