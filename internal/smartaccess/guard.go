package smartaccess

import (
	"context"

	"go.uber.org/zap"
)

// CollectResult is the outcome of a collect call.
type CollectResult struct {
	OK      bool     `json:"ok"`
	Stored  bool     `json:"stored"`
	Score   *float64 `json:"score"`
	Flagged bool     `json:"flagged"`
}

// CheckResult is the outcome of an access check.
type CheckResult struct {
	IdentityID string   `json:"employee_id"`
	Allow      bool     `json:"allow"`
	Score      *float64 `json:"score,omitempty"`
	Threshold  *float64 `json:"threshold,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// Reasons reported by guarded check results.
const (
	ReasonNoRecentScore    = "no_recent_score"
	ReasonStoreUnavailable = "store_unavailable"
)

// guard is the single place degraded-mode policy lives. Every Smart Access
// entry point that touches the vector store routes its store errors through
// here; the retrieval path never does.
//
// Policy: a store failure yields a neutral, non-flagging result. Missing one
// behavioral sample is low-cost; blocking normal usage is high-cost.
type guard struct {
	logger  *zap.Logger
	metrics *Metrics
}

func newGuard(logger *zap.Logger, metrics *Metrics) guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return guard{logger: logger, metrics: metrics}
}

// neutralCollect returns the neutral collect result for a store failure:
// accepted but not stored, unscored, unflagged.
func (g guard) neutralCollect(ctx context.Context, identityID string, err error) CollectResult {
	g.degraded(ctx, "collect", identityID, err)
	return CollectResult{OK: true, Stored: false, Score: nil, Flagged: false}
}

// neutralCheck returns the neutral check result for a store failure:
// allow, with the reason recorded.
func (g guard) neutralCheck(ctx context.Context, identityID string, err error) CheckResult {
	g.degraded(ctx, "check", identityID, err)
	return CheckResult{
		IdentityID: identityID,
		Allow:      true,
		Reason:     ReasonStoreUnavailable,
	}
}

// unfamiliarDevice returns the conservative device answer for a store
// failure: unknown devices are unfamiliar, never an error.
func (g guard) unfamiliarDevice(ctx context.Context, identityID string, err error) bool {
	g.degraded(ctx, "device_familiarity", identityID, err)
	return false
}

func (g guard) degraded(ctx context.Context, operation, identityID string, err error) {
	g.logger.Warn("smart access degraded to neutral result",
		zap.String("operation", operation),
		zap.String("employee_id", identityID),
		zap.Error(err),
	)
	g.metrics.RecordDegraded(ctx, operation)
}
