package smartaccess

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/sentra/internal/vectorstore"
)

// Baseline is an identity's behavioral history summary: how many distinct
// calendar days have events, and the centroid of all event vectors.
//
// Derived, never stored: it is recomputed from the full event history on
// each access, so distinct_days can only grow.
type Baseline struct {
	DistinctDays int
	Centroid     []float32
	Size         int
}

// Ready reports whether the baseline spans enough distinct days to score.
func (b Baseline) Ready(baselineDays int) bool {
	return b.DistinctDays >= baselineDays && b.Size > 0
}

// BaselineManager loads per-identity baselines from the events collection.
type BaselineManager struct {
	store      vectorstore.Store
	collection string
}

// NewBaselineManager creates a BaselineManager.
func NewBaselineManager(store vectorstore.Store, collection string) *BaselineManager {
	return &BaselineManager{store: store, collection: collection}
}

// Load scrolls the identity's full event history and computes the baseline.
// The centroid is the arithmetic mean of all stored event vectors; repeated
// same-day events all contribute.
func (m *BaselineManager) Load(ctx context.Context, identityID string) (Baseline, error) {
	filter := &vectorstore.Filter{Must: []vectorstore.Condition{
		vectorstore.MatchKeyword("employee_id", identityID),
	}}

	points, err := m.store.Scroll(ctx, m.collection, filter, true)
	if err != nil {
		return Baseline{}, fmt.Errorf("loading baseline for %s: %w", identityID, err)
	}

	days := make(map[string]struct{})
	var sum []float32
	size := 0

	for _, p := range points {
		if day, ok := p.Payload["day"].(string); ok && day != "" {
			days[day] = struct{}{}
		}
		if len(p.Vector) == 0 {
			continue
		}
		if sum == nil {
			sum = make([]float32, len(p.Vector))
		}
		if len(p.Vector) != len(sum) {
			// Mixed vector sizes indicate a collection misconfiguration;
			// skip rather than corrupt the centroid.
			continue
		}
		for i, v := range p.Vector {
			sum[i] += v
		}
		size++
	}

	baseline := Baseline{
		DistinctDays: len(days),
		Size:         size,
	}
	if size > 0 {
		centroid := make([]float32, len(sum))
		for i, v := range sum {
			centroid[i] = v / float32(size)
		}
		baseline.Centroid = centroid
	}
	return baseline, nil
}
