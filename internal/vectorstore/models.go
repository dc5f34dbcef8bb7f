package vectorstore

// Point is a stored vector with its payload.
type Point struct {
	// ID is a UUID string identifying the point.
	ID string

	// Vector is the embedding. Length must match the collection's vector size.
	Vector []float32

	// Payload holds scalar metadata: string, int64, float64, bool, or []string.
	Payload map[string]any
}

// SearchResult is a single ranked hit from a similarity search.
type SearchResult struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Range bounds a numeric payload field. Nil bounds are unconstrained.
type Range struct {
	Gte *float64
	Lte *float64
}

// Condition matches a single payload field.
//
// Exactly one of Keyword, Range, IsEmpty, or Any is set. Any nests a
// disjunction: the condition holds when at least one child holds.
type Condition struct {
	Key     string
	Keyword *string
	Range   *Range
	IsEmpty bool
	Any     []Condition
}

// Filter is a conjunction of conditions evaluated store-side, before ranking.
type Filter struct {
	Must []Condition
}

// MatchKeyword matches payloads whose key equals value. For list payloads the
// match holds when the list contains value.
func MatchKeyword(key, value string) Condition {
	return Condition{Key: key, Keyword: &value}
}

// MatchLte matches payloads whose numeric key is <= value.
func MatchLte(key string, value float64) Condition {
	return Condition{Key: key, Range: &Range{Lte: &value}}
}

// MatchEmpty matches payloads where key is absent, null, or an empty list.
func MatchEmpty(key string) Condition {
	return Condition{Key: key, IsEmpty: true}
}

// AnyOf matches when at least one of the given conditions matches.
func AnyOf(conditions ...Condition) Condition {
	return Condition{Any: conditions}
}
