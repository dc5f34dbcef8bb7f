// Package httpapi provides the HTTP API for sentra.
package httpapi

// QueryRequest is the request body for POST /api/v1/query.
type QueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// UploadRequest is the request body for POST /api/v1/documents.
type UploadRequest struct {
	Filename    string   `json:"filename"`
	Text        string   `json:"text"`
	Audience    string   `json:"audience,omitempty"`
	CustomRoles []string `json:"custom_roles,omitempty"`
}

// UploadResponse is the response body for POST /api/v1/documents.
type UploadResponse struct {
	Filename string   `json:"filename"`
	Chunks   int      `json:"chunks"`
	ChunkIDs []string `json:"chunk_ids"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the error body for all endpoints.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}
