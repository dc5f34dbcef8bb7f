package smartaccess

import "math"

// ScoreResult is the outcome of scoring one event against a baseline.
// Score is nil while the baseline is insufficient; the system never flags
// without enough history.
type ScoreResult struct {
	Score   *float64
	Flagged bool
}

// Score computes the anomaly decision for an event vector.
//
// Pure and deterministic: with an insufficient baseline the result is
// unconditionally unscored and unflagged; with a ready baseline the score is
// cosine(event, centroid) and flagged = score < threshold.
func Score(eventVector []float32, baseline Baseline, threshold float64, baselineDays int) ScoreResult {
	if !baseline.Ready(baselineDays) {
		return ScoreResult{}
	}

	score := Cosine(eventVector, baseline.Centroid)
	return ScoreResult{
		Score:   &score,
		Flagged: score < threshold,
	}
}

// Cosine computes cosine similarity between two vectors. The result is
// always within [-1, 1]. Zero-magnitude vectors or mismatched lengths
// yield 0.
func Cosine(a, b []float32) float64 {
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
	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))

	// Clamp float drift at the boundaries.
	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}
	return score
}
