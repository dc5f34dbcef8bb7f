package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(Config{
		BaseURL: server.URL,
		Model:   "test-model",
		APIKey:  "test-key",
	})
	require.NoError(t, err)
	return client
}

func TestNewHTTPClientRequiresAPIKey(t *testing.T) {
	_, err := NewHTTPClient(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestComplete(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])

		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"the answer"}}]}`)
	})

	got, err := client.Complete(context.Background(), "what is the policy?")
	require.NoError(t, err)
	assert.Equal(t, "the answer", got)
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream blew up", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"recovered"}}]}`)
	})
	client.maxRetries = 1

	got, err := client.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad prompt"}}`)
	})

	_, err := client.Complete(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.Contains(t, err.Error(), "bad prompt")
	assert.Equal(t, int32(1), calls.Load())
}

func TestCompleteEmptyChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	})

	_, err := client.Complete(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, isRetryableError(&retryableError{err: fmt.Errorf("boom")}))
	assert.True(t, isRetryableError(fmt.Errorf("wrapped: %w", &retryableError{err: fmt.Errorf("boom")})))
	assert.False(t, isRetryableError(fmt.Errorf("plain")))
	assert.False(t, isRetryableError(nil))
}
