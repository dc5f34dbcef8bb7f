package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sentra/internal/ingest"
	"github.com/fyrsmithlabs/sentra/internal/reranker"
	"github.com/fyrsmithlabs/sentra/internal/retrieval"
	"github.com/fyrsmithlabs/sentra/internal/smartaccess"
	"github.com/fyrsmithlabs/sentra/internal/vectorstore"
)

type stubEmbedder struct {
	vector []float32
}

func (e *stubEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return e.vector, nil
}

func (e *stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = e.vector
	}
	return vectors, nil
}

type stubGenerator struct {
	response string
}

func (g *stubGenerator) Complete(context.Context, string) (string, error) {
	return g.response, nil
}

func newTestServer(t *testing.T) (*Server, *vectorstore.MemoryStore) {
	t.Helper()

	store := vectorstore.NewMemoryStore()
	embedder := &stubEmbedder{vector: []float32{1, 0}}
	logger := zap.NewNop()

	retriever := retrieval.NewRetriever(store, embedder, "documents")
	synthesizer := retrieval.NewSynthesizer(&stubGenerator{response: "Generated answer."}, 6000)
	retrievalSvc := retrieval.NewService(retrieval.Config{}, retriever, reranker.NewOverlapReranker(), synthesizer, logger)

	ingestSvc := ingest.NewService(ingest.Config{Collection: "documents"}, store, embedder, logger)

	settings, err := smartaccess.NewSettingsStore("", smartaccess.DefaultSettings(), logger)
	require.NoError(t, err)
	smartSvc := smartaccess.NewService(
		smartaccess.Config{Collection: "behavior_events"},
		store, smartaccess.NewCollector(embedder), settings, smartaccess.NoopNotifier{}, logger,
	)

	srv, err := NewServer(nil, retrievalSvc, ingestSvc, smartSvc, nil, logger)
	require.NoError(t, err)
	return srv, store
}

func setIdentityHeaders(req *http.Request, role string, level string) {
	req.Header.Set(HeaderUser, "u1")
	req.Header.Set(HeaderRole, role)
	req.Header.Set(HeaderLevel, level)
	req.Header.Set(HeaderDept, "engineering")
	req.Header.Set(HeaderProject, "atlas")
}

func doJSON(t *testing.T, srv *Server, method, path, body string, decorate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echoContentType, "application/json")
	}
	if decorate != nil {
		decorate(req)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadRequiresIdentity(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/documents",
		`{"filename":"handbook.txt","text":"hello"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "identity headers")
}

func TestUploadRejectsBadLevelHeader(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/documents",
		`{"filename":"handbook.txt","text":"hello"}`, func(req *http.Request) {
			setIdentityHeaders(req, "staff", "senior")
		})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUploadAndQueryRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/documents",
		`{"filename":"handbook.txt","text":"Vacation policy: staff accrue twenty days per year."}`,
		func(req *http.Request) { setIdentityHeaders(req, "staff", "2") })
	require.Equal(t, http.StatusCreated, rec.Code)

	var upload UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &upload))
	assert.Equal(t, "handbook.txt", upload.Filename)
	assert.NotEmpty(t, upload.ChunkIDs)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/query",
		`{"query":"vacation policy"}`,
		func(req *http.Request) { setIdentityHeaders(req, "staff", "2") })
	require.Equal(t, http.StatusOK, rec.Code)

	var answer retrieval.Answer
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answer))
	assert.Equal(t, "Generated answer.", answer.Answer)
	require.NotEmpty(t, answer.Sources)
	assert.Equal(t, "handbook.txt", answer.Sources[0].Filename)
}

func TestUploadRejectsUnknownAudience(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/documents",
		`{"filename":"f.txt","text":"x","audience":"everyone"}`,
		func(req *http.Request) { setIdentityHeaders(req, "staff", "2") })
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid audience")
}

func TestQueryEmptyReturns400(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/query",
		`{"query":"   "}`,
		func(req *http.Request) { setIdentityHeaders(req, "staff", "2") })
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryStoreOutageReturns503(t *testing.T) {
	srv, store := newTestServer(t)
	store.SetUnavailable(true)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/query",
		`{"query":"vacation policy"}`,
		func(req *http.Request) { setIdentityHeaders(req, "staff", "2") })
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCollectStoreOutageStaysUp(t *testing.T) {
	srv, store := newTestServer(t)
	store.SetUnavailable(true)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/smart-access/collect",
		`{"employee_id":"E1","page":"/dash","mouse_moves":10,"typing_cpm":200,"typing_burstiness":0.5,"device_id":"d1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result smartaccess.CollectResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.OK)
	assert.False(t, result.Stored)
	assert.Nil(t, result.Score)
	assert.False(t, result.Flagged)
}

func TestCollectValidationReturns400(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/smart-access/collect",
		`{"employee_id":"","typing_burstiness":3}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Fields, "employee_id")
	assert.Contains(t, resp.Fields, "typing_burstiness")
}

func TestCheckEndpoint(t *testing.T) {
	srv, store := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/smart-access/check?employee_id=E1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result smartaccess.CheckResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Allow)
	assert.Equal(t, smartaccess.ReasonNoRecentScore, result.Reason)

	store.SetUnavailable(true)
	rec = doJSON(t, srv, http.MethodGet, "/api/v1/smart-access/check?employee_id=E1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Allow)
	assert.Equal(t, smartaccess.ReasonStoreUnavailable, result.Reason)
}

func TestCheckMissingIdentityReturns400(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/v1/smart-access/check", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettingsRequireAdminRole(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/smart-access/settings", "",
		func(req *http.Request) { setIdentityHeaders(req, "staff", "2") })
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/smart-access/settings", "",
		func(req *http.Request) { setIdentityHeaders(req, "admin", "5") })
	require.Equal(t, http.StatusOK, rec.Code)

	var settings smartaccess.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.InDelta(t, 0.85, settings.Threshold, 1e-9)
}

func TestSettingsUpdate(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPut, "/api/v1/smart-access/settings",
		`{"threshold":0.7,"baseline_days":14}`,
		func(req *http.Request) { setIdentityHeaders(req, "manager", "5") })
	require.Equal(t, http.StatusOK, rec.Code)

	var settings smartaccess.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.InDelta(t, 0.7, settings.Threshold, 1e-9)
	assert.Equal(t, 14, settings.BaselineDays)

	rec = doJSON(t, srv, http.MethodPut, "/api/v1/smart-access/settings",
		`{"threshold":5,"baseline_days":14}`,
		func(req *http.Request) { setIdentityHeaders(req, "manager", "5") })
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
