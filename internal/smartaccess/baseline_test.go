package smartaccess

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/sentra/internal/vectorstore"
)

const testCollection = "behavior_events"

// seedEvents inserts one event per day for days consecutive UTC days ending
// at end, all with the given vector.
func seedEvents(t *testing.T, store *vectorstore.MemoryStore, identityID string, days int, end time.Time, vector []float32) {
	t.Helper()
	points := make([]vectorstore.Point, 0, days)
	for i := 0; i < days; i++ {
		ts := end.AddDate(0, 0, -i)
		points = append(points, vectorstore.Point{
			ID:     fmt.Sprintf("%s-day-%d", identityID, i),
			Vector: vector,
			Payload: map[string]any{
				"employee_id": identityID,
				"day":         dayKey(ts),
				"ts_iso":      ts.Format(time.RFC3339),
				"ts_epoch":    float64(ts.Unix()),
				"score":       0.97,
			},
		})
	}
	require.NoError(t, store.Upsert(context.Background(), testCollection, points))
}

func TestBaselineLoadCountsDistinctDays(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	end := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	seedEvents(t, store, "E1", 5, end, []float32{1, 0})

	// Two extra events on an already-counted day: centroid grows, days do not.
	require.NoError(t, store.Upsert(context.Background(), testCollection, []vectorstore.Point{
		{ID: "E1-extra-1", Vector: []float32{1, 0}, Payload: map[string]any{"employee_id": "E1", "day": dayKey(end)}},
		{ID: "E1-extra-2", Vector: []float32{1, 0}, Payload: map[string]any{"employee_id": "E1", "day": dayKey(end)}},
	}))

	baseline, err := NewBaselineManager(store, testCollection).Load(context.Background(), "E1")
	require.NoError(t, err)

	assert.Equal(t, 5, baseline.DistinctDays)
	assert.Equal(t, 7, baseline.Size)
}

func TestBaselineLoadCentroidIsMean(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	require.NoError(t, store.Upsert(context.Background(), testCollection, []vectorstore.Point{
		{ID: "a", Vector: []float32{1, 0}, Payload: map[string]any{"employee_id": "E1", "day": "2026-08-01"}},
		{ID: "b", Vector: []float32{0, 1}, Payload: map[string]any{"employee_id": "E1", "day": "2026-08-02"}},
	}))

	baseline, err := NewBaselineManager(store, testCollection).Load(context.Background(), "E1")
	require.NoError(t, err)

	require.Len(t, baseline.Centroid, 2)
	assert.InDelta(t, 0.5, baseline.Centroid[0], 1e-6)
	assert.InDelta(t, 0.5, baseline.Centroid[1], 1e-6)
}

func TestBaselineLoadIgnoresOtherIdentities(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	end := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	seedEvents(t, store, "E1", 3, end, []float32{1, 0})
	seedEvents(t, store, "E2", 10, end, []float32{0, 1})

	baseline, err := NewBaselineManager(store, testCollection).Load(context.Background(), "E1")
	require.NoError(t, err)

	assert.Equal(t, 3, baseline.DistinctDays)
	assert.Equal(t, 3, baseline.Size)
}

func TestBaselineLoadEmptyHistory(t *testing.T) {
	store := vectorstore.NewMemoryStore()

	baseline, err := NewBaselineManager(store, testCollection).Load(context.Background(), "nobody")
	require.NoError(t, err)

	assert.Equal(t, 0, baseline.DistinctDays)
	assert.Equal(t, 0, baseline.Size)
	assert.Nil(t, baseline.Centroid)
	assert.False(t, baseline.Ready(1))
}

func TestBaselineLoadStoreOutage(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	store.SetUnavailable(true)

	_, err := NewBaselineManager(store, testCollection).Load(context.Background(), "E1")
	require.ErrorIs(t, err, vectorstore.ErrUnavailable)
}
