package smartaccess

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/sentra/internal/vectorstore"
)

type fixedEmbedder struct {
	vector []float32
	err    error
}

func (e *fixedEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.vector, nil
}

func (e *fixedEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = e.vector
	}
	return vectors, nil
}

type captureNotifier struct {
	events []FlaggedEvent
	err    error
}

func (n *captureNotifier) NotifyFlagged(_ context.Context, event FlaggedEvent) error {
	n.events = append(n.events, event)
	return n.err
}

var testNow = time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *vectorstore.MemoryStore, *fixedEmbedder, *captureNotifier) {
	t.Helper()

	store := vectorstore.NewMemoryStore()
	embedder := &fixedEmbedder{vector: []float32{1, 0}}
	notifier := &captureNotifier{}

	settings, err := NewSettingsStore("", DefaultSettings(), nil)
	require.NoError(t, err)

	svc := NewService(Config{Collection: testCollection}, store, NewCollector(embedder), settings, notifier, nil)
	svc.clock = func() time.Time { return testNow }
	return svc, store, embedder, notifier
}

func TestCollectWithholdsScoreUntilBaselineMatures(t *testing.T) {
	svc, store, embedder, notifier := newTestService(t)

	// 29 distinct days of history ending yesterday. One day short.
	seedEvents(t, store, "E1", 29, testNow.AddDate(0, 0, -1), []float32{1, 0})

	result, err := svc.Collect(context.Background(), Event{IdentityID: "E1", DeviceID: "d1"})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.True(t, result.Stored)
	assert.Nil(t, result.Score)
	assert.False(t, result.Flagged)

	// The stored event added today as the 30th distinct day.
	result, err = svc.Collect(context.Background(), Event{IdentityID: "E1", DeviceID: "d1"})
	require.NoError(t, err)
	assert.True(t, result.Stored)
	require.NotNil(t, result.Score)
	assert.InDelta(t, 1.0, *result.Score, 1e-6)
	assert.False(t, result.Flagged)
	assert.Empty(t, notifier.events)

	// A behavioral shift against the mature baseline gets flagged.
	embedder.vector = []float32{0, 1}
	result, err = svc.Collect(context.Background(), Event{IdentityID: "E1", DeviceID: "d1"})
	require.NoError(t, err)
	assert.True(t, result.Stored)
	require.NotNil(t, result.Score)
	assert.Less(t, *result.Score, 0.85)
	assert.True(t, result.Flagged)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, "E1", notifier.events[0].IdentityID)
	assert.InDelta(t, 0.85, notifier.events[0].Threshold, 1e-9)
}

func TestCollectStoreOutageIsNeutral(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	store.SetUnavailable(true)

	result, err := svc.Collect(context.Background(), Event{IdentityID: "E1", DeviceID: "d1"})
	require.NoError(t, err)
	assert.Equal(t, CollectResult{OK: true, Stored: false, Score: nil, Flagged: false}, result)

	// Nothing was written once the store recovers.
	store.SetUnavailable(false)
	count, err := store.Count(context.Background(), testCollection, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCollectValidationFailureIsHard(t *testing.T) {
	svc, store, _, _ := newTestService(t)

	_, err := svc.Collect(context.Background(), Event{IdentityID: "", TypingBurstiness: 2})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "employee_id")
	assert.Contains(t, verr.Fields, "typing_burstiness")

	count, err := store.Count(context.Background(), testCollection, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCollectEmbeddingFailureIsHard(t *testing.T) {
	svc, store, embedder, _ := newTestService(t)
	embedder.err = errors.New("embedding backend down")

	_, err := svc.Collect(context.Background(), Event{IdentityID: "E1"})
	require.Error(t, err)

	count, err := store.Count(context.Background(), testCollection, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCollectSurvivesNotifierFailure(t *testing.T) {
	svc, store, embedder, notifier := newTestService(t)
	notifier.err = errors.New("broker unreachable")

	seedEvents(t, store, "E1", 30, testNow.AddDate(0, 0, -1), []float32{1, 0})
	embedder.vector = []float32{0, 1}

	result, err := svc.Collect(context.Background(), Event{IdentityID: "E1"})
	require.NoError(t, err)
	assert.True(t, result.Stored)
	assert.True(t, result.Flagged)
}

func TestCheckUsesMostRecentScoredEvent(t *testing.T) {
	svc, store, _, _ := newTestService(t)

	older := testNow.Add(-3 * time.Hour)
	newer := testNow.Add(-1 * time.Hour)
	require.NoError(t, store.Upsert(context.Background(), testCollection, []vectorstore.Point{
		{ID: "old", Vector: []float32{1, 0}, Payload: map[string]any{
			"employee_id": "E1", "ts_iso": older.Format(time.RFC3339), "ts_epoch": float64(older.Unix()), "score": 0.2,
		}},
		{ID: "new", Vector: []float32{1, 0}, Payload: map[string]any{
			"employee_id": "E1", "ts_iso": newer.Format(time.RFC3339), "ts_epoch": float64(newer.Unix()), "score": 0.95,
		}},
	}))

	result, err := svc.Check(context.Background(), "E1")
	require.NoError(t, err)
	assert.True(t, result.Allow)
	require.NotNil(t, result.Score)
	assert.InDelta(t, 0.95, *result.Score, 1e-9)
	require.NotNil(t, result.Threshold)
	assert.InDelta(t, 0.85, *result.Threshold, 1e-9)
	assert.Empty(t, result.Reason)
}

func TestCheckDeniesBelowThreshold(t *testing.T) {
	svc, store, _, _ := newTestService(t)

	ts := testNow.Add(-time.Hour)
	require.NoError(t, store.Upsert(context.Background(), testCollection, []vectorstore.Point{
		{ID: "p", Vector: []float32{1, 0}, Payload: map[string]any{
			"employee_id": "E1", "ts_iso": ts.Format(time.RFC3339), "ts_epoch": float64(ts.Unix()), "score": 0.3,
		}},
	}))

	result, err := svc.Check(context.Background(), "E1")
	require.NoError(t, err)
	assert.False(t, result.Allow)
	require.NotNil(t, result.Score)
	assert.InDelta(t, 0.3, *result.Score, 1e-9)
}

func TestCheckAllowsWithoutRecentScore(t *testing.T) {
	svc, store, _, _ := newTestService(t)

	// Unscored event inside the window, scored event outside it.
	recent := testNow.Add(-time.Hour)
	stale := testNow.Add(-72 * time.Hour)
	require.NoError(t, store.Upsert(context.Background(), testCollection, []vectorstore.Point{
		{ID: "unscored", Vector: []float32{1, 0}, Payload: map[string]any{
			"employee_id": "E1", "ts_iso": recent.Format(time.RFC3339), "ts_epoch": float64(recent.Unix()),
		}},
		{ID: "stale", Vector: []float32{1, 0}, Payload: map[string]any{
			"employee_id": "E1", "ts_iso": stale.Format(time.RFC3339), "ts_epoch": float64(stale.Unix()), "score": 0.1,
		}},
	}))

	result, err := svc.Check(context.Background(), "E1")
	require.NoError(t, err)
	assert.True(t, result.Allow)
	assert.Nil(t, result.Score)
	assert.Equal(t, ReasonNoRecentScore, result.Reason)
}

func TestCheckStoreOutageAllows(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	store.SetUnavailable(true)

	result, err := svc.Check(context.Background(), "E1")
	require.NoError(t, err)
	assert.True(t, result.Allow)
	assert.Equal(t, ReasonStoreUnavailable, result.Reason)
	assert.Nil(t, result.Score)
}

func TestCheckRequiresIdentity(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Check(context.Background(), "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestDeviceFamiliar(t *testing.T) {
	svc, store, _, _ := newTestService(t)

	assert.False(t, svc.DeviceFamiliar(context.Background(), "E1", "d1"))
	assert.False(t, svc.DeviceFamiliar(context.Background(), "E1", ""))

	_, err := svc.Collect(context.Background(), Event{IdentityID: "E1", DeviceID: "d1"})
	require.NoError(t, err)

	assert.True(t, svc.DeviceFamiliar(context.Background(), "E1", "d1"))
	assert.False(t, svc.DeviceFamiliar(context.Background(), "E2", "d1"))

	store.SetUnavailable(true)
	assert.False(t, svc.DeviceFamiliar(context.Background(), "E1", "d1"))
}
