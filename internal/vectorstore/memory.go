package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and single-node development.
//
// It mirrors the Qdrant filter semantics exactly: conditions are evaluated
// against every point before ranking, so filtered-out points can never appear
// in results. SetUnavailable simulates an outage; all operations then return
// ErrUnavailable.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Point
	unavailable bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Point),
	}
}

// SetUnavailable toggles simulated outage mode.
func (s *MemoryStore) SetUnavailable(unavailable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = unavailable
}

func (s *MemoryStore) checkAvailable() error {
	if s.unavailable {
		return fmt.Errorf("memory store: %w", ErrUnavailable)
	}
	return nil
}

// EnsureCollection creates the collection if it does not exist.
func (s *MemoryStore) EnsureCollection(_ context.Context, collection string, _ uint64) error {
	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAvailable(); err != nil {
		return err
	}
	if _, ok := s.collections[collection]; !ok {
		s.collections[collection] = make(map[string]Point)
	}
	return nil
}

// Upsert inserts or replaces points.
func (s *MemoryStore) Upsert(_ context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return fmt.Errorf("points cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAvailable(); err != nil {
		return err
	}
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]Point)
		s.collections[collection] = coll
	}
	for _, p := range points {
		coll[p.ID] = p
	}
	return nil
}

// Search ranks matching points by cosine similarity to vector.
func (s *MemoryStore) Search(_ context.Context, collection string, vector []float32, filter *Filter, limit uint64) ([]SearchResult, error) {
	if limit == 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkAvailable(); err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, p := range s.collections[collection] {
		if !matchesFilter(p.Payload, filter) {
			continue
		}
		results = append(results, SearchResult{
			ID:      p.ID,
			Score:   float32(cosineSimilarity(vector, p.Vector)),
			Payload: p.Payload,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if uint64(len(results)) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Scroll returns all matching points.
func (s *MemoryStore) Scroll(_ context.Context, collection string, filter *Filter, withVectors bool) ([]Point, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkAvailable(); err != nil {
		return nil, err
	}

	var points []Point
	for _, p := range s.collections[collection] {
		if !matchesFilter(p.Payload, filter) {
			continue
		}
		out := Point{ID: p.ID, Payload: p.Payload}
		if withVectors {
			out.Vector = p.Vector
		}
		points = append(points, out)
	}

	// Deterministic order for callers and tests.
	sort.Slice(points, func(i, j int) bool { return points[i].ID < points[j].ID })
	return points, nil
}

// Count returns the number of matching points.
func (s *MemoryStore) Count(_ context.Context, collection string, filter *Filter) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkAvailable(); err != nil {
		return 0, err
	}

	var count uint64
	for _, p := range s.collections[collection] {
		if matchesFilter(p.Payload, filter) {
			count++
		}
	}
	return count, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// matchesFilter reports whether payload satisfies every must condition.
func matchesFilter(payload map[string]any, filter *Filter) bool {
	if filter == nil {
		return true
	}
	for _, c := range filter.Must {
		if !matchesCondition(payload, c) {
			return false
		}
	}
	return true
}

func matchesCondition(payload map[string]any, c Condition) bool {
	switch {
	case len(c.Any) > 0:
		for _, child := range c.Any {
			if matchesCondition(payload, child) {
				return true
			}
		}
		return false
	case c.IsEmpty:
		v, ok := payload[c.Key]
		if !ok || v == nil {
			return true
		}
		if list, isList := v.([]string); isList {
			return len(list) == 0
		}
		return false
	case c.Range != nil:
		num, ok := payloadNumber(payload[c.Key])
		if !ok {
			return false
		}
		if c.Range.Gte != nil && num < *c.Range.Gte {
			return false
		}
		if c.Range.Lte != nil && num > *c.Range.Lte {
			return false
		}
		return true
	case c.Keyword != nil:
		switch v := payload[c.Key].(type) {
		case string:
			return v == *c.Keyword
		case []string:
			for _, item := range v {
				if item == *c.Keyword {
					return true
				}
			}
			return false
		default:
			return false
		}
	default:
		return false
	}
}

func payloadNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// cosineSimilarity computes cosine similarity between two vectors.
// Returns 0 when either vector has zero magnitude or lengths differ.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
