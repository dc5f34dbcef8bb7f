package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/sentra/internal/embeddings"
	"github.com/fyrsmithlabs/sentra/internal/vectorstore"
)

// ErrEmptyQuery indicates a blank query string.
var ErrEmptyQuery = errors.New("query cannot be empty")

// Retriever performs authorization-filtered similarity search.
//
// The access predicate is part of the search request itself: the store
// excludes unauthorized chunks before ranking, so no chunk with
// uploader_level above the requester's level or a non-matching allow_roles
// list can ever appear in the candidates, regardless of similarity.
//
// Store unavailability is a hard failure. Retrieval correctness is never
// silently degraded; callers see the error and may retry.
type Retriever struct {
	store      vectorstore.Store
	embedder   embeddings.Embedder
	collection string
}

// NewRetriever creates a Retriever over the given documents collection.
func NewRetriever(store vectorstore.Store, embedder embeddings.Embedder, collection string) *Retriever {
	return &Retriever{
		store:      store,
		embedder:   embedder,
		collection: collection,
	}
}

// Retrieve embeds the query and returns up to topK authorized candidates
// ordered by similarity. Zero matching chunks is an empty result, not an
// error.
func (r *Retriever) Retrieve(ctx context.Context, req QueryRequest, topK int) ([]Candidate, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = 20
	}

	vector, err := r.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := r.store.Search(ctx, r.collection, vector, AccessFilter(req.Identity), uint64(topK))
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}

	candidates := make([]Candidate, 0, len(results))
	for _, res := range results {
		candidates = append(candidates, candidateFromResult(res))
	}
	return candidates, nil
}

// AccessFilter builds the store-side authorization predicate for an identity:
//
//	dept == requester dept
//	AND project == requester project
//	AND uploader_level <= requester level
//	AND (allow_roles is empty OR requester role ∈ allow_roles)
func AccessFilter(id Identity) *vectorstore.Filter {
	return &vectorstore.Filter{Must: []vectorstore.Condition{
		vectorstore.MatchKeyword("dept", id.Dept),
		vectorstore.MatchKeyword("project", id.Project),
		vectorstore.MatchLte("uploader_level", float64(id.Level)),
		vectorstore.AnyOf(
			vectorstore.MatchEmpty("allow_roles"),
			vectorstore.MatchKeyword("allow_roles", id.Role),
		),
	}}
}

func candidateFromResult(res vectorstore.SearchResult) Candidate {
	c := Candidate{
		ID:    res.ID,
		Score: res.Score,
	}
	if text, ok := res.Payload["text"].(string); ok {
		c.Text = text
	}
	if filename, ok := res.Payload["filename"].(string); ok {
		c.Filename = filename
	}
	if project, ok := res.Payload["project"].(string); ok {
		c.Project = project
	}
	if dept, ok := res.Payload["dept"].(string); ok {
		c.Dept = dept
	}
	return c
}
