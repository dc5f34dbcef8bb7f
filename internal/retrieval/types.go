// Package retrieval implements the authorization-filtered query path:
// embed, filtered similarity search, rerank, answer synthesis.
package retrieval

// Identity holds the requester attributes resolved from the authenticated
// session. They drive the store-side access filter.
type Identity struct {
	UserID  string
	Role    string
	Level   int
	Dept    string
	Project string
}

// QueryRequest is a single retrieval query.
type QueryRequest struct {
	Query    string
	TopK     int
	Identity Identity
}

// Candidate is a retrieved document chunk with its similarity score.
type Candidate struct {
	ID       string
	Text     string
	Filename string
	Project  string
	Dept     string
	Score    float32
}

// Source is chunk metadata attached to an answer.
type Source struct {
	Filename string `json:"filename"`
	Project  string `json:"project"`
	Text     string `json:"text"`
}

// Answer is the synthesized response for a query.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}
