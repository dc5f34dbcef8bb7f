package smartaccess

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sentra/internal/vectorstore"
)

// defaultCheckWindow bounds how old a scored event may be for access checks.
const defaultCheckWindow = 48 * time.Hour

// Config holds Smart Access service configuration.
type Config struct {
	// Collection is the behavior events collection name.
	Collection string

	// CheckWindow is the recency window for access checks. Default: 48h.
	CheckWindow time.Duration
}

// Service is the Smart Access entry point: collect, check, and device
// familiarity. All store failures route through the degraded-mode guard;
// validation and embedding failures stay hard.
type Service struct {
	config    Config
	store     vectorstore.Store
	collector *Collector
	baselines *BaselineManager
	settings  *SettingsStore
	notifier  Notifier
	guard     guard
	metrics   *Metrics
	logger    *zap.Logger

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

// NewService creates a Smart Access service.
func NewService(config Config, store vectorstore.Store, collector *Collector, settings *SettingsStore, notifier Notifier, logger *zap.Logger) *Service {
	if config.CheckWindow <= 0 {
		config.CheckWindow = defaultCheckWindow
	}
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := NewMetrics(logger)

	return &Service{
		config:    config,
		store:     store,
		collector: collector,
		baselines: NewBaselineManager(store, config.Collection),
		settings:  settings,
		notifier:  notifier,
		guard:     newGuard(logger, metrics),
		metrics:   metrics,
		logger:    logger,
		clock:     time.Now,
	}
}

// Collect validates, embeds, scores, and stores one behavior event.
//
// Validation failure and embedding failure are hard errors; the event never
// reaches the store. Store failure is neutralized by the guard: the caller
// gets {ok:true, stored:false, score:null, flagged:false} and no error.
func (s *Service) Collect(ctx context.Context, event Event) (CollectResult, error) {
	ts, verr := event.Validate(s.clock())
	if verr != nil {
		return CollectResult{}, verr
	}

	deviceSeen := s.DeviceFamiliar(ctx, event.IdentityID, event.DeviceID)

	summary, vector, err := s.collector.Build(ctx, event, ts, deviceSeen)
	if err != nil {
		return CollectResult{}, err
	}

	baseline, err := s.baselines.Load(ctx, event.IdentityID)
	if err != nil {
		s.metrics.RecordCollect(ctx, false, false)
		return s.guard.neutralCollect(ctx, event.IdentityID, err), nil
	}

	settings := s.settings.Get()
	scored := Score(vector, baseline, settings.Threshold, settings.BaselineDays)

	payload := map[string]any{
		"employee_id":        event.IdentityID,
		"page":               event.Page,
		"mouse_moves":        event.MouseMoves,
		"typing_cpm":         event.TypingCPM,
		"typing_burstiness":  event.TypingBurstiness,
		"ip":                 event.IP,
		"device_id":          event.DeviceID,
		"user_agent":         event.UserAgent,
		"seen_device_before": deviceSeen,
		"summary":            summary,
		"ts_iso":             ts.Format(time.RFC3339),
		"ts_epoch":           float64(ts.Unix()),
		"day":                dayKey(ts),
		"flagged":            scored.Flagged,
	}
	if scored.Score != nil {
		payload["score"] = *scored.Score
	}

	point := vectorstore.Point{
		ID:      uuid.New().String(),
		Vector:  vector,
		Payload: payload,
	}
	if err := s.store.Upsert(ctx, s.config.Collection, []vectorstore.Point{point}); err != nil {
		s.metrics.RecordCollect(ctx, false, false)
		return s.guard.neutralCollect(ctx, event.IdentityID, err), nil
	}

	s.metrics.RecordCollect(ctx, true, scored.Score != nil)
	if scored.Score != nil {
		s.metrics.RecordScore(ctx, *scored.Score, scored.Flagged)
	}
	if scored.Flagged {
		s.notifyFlagged(ctx, event, *scored.Score, settings.Threshold, ts)
	}

	return CollectResult{
		OK:      true,
		Stored:  true,
		Score:   scored.Score,
		Flagged: scored.Flagged,
	}, nil
}

// Check answers whether an identity's most recent scored event within the
// check window passes the threshold. No recent score allows by default;
// store outage allows with reason "store_unavailable".
func (s *Service) Check(ctx context.Context, identityID string) (CheckResult, error) {
	if identityID == "" {
		return CheckResult{}, &ValidationError{Fields: map[string]string{"employee_id": "required"}}
	}

	cutoff := s.clock().Add(-s.config.CheckWindow)
	gte := float64(cutoff.Unix())
	filter := &vectorstore.Filter{Must: []vectorstore.Condition{
		vectorstore.MatchKeyword("employee_id", identityID),
		{Key: "ts_epoch", Range: &vectorstore.Range{Gte: &gte}},
	}}

	points, err := s.store.Scroll(ctx, s.config.Collection, filter, false)
	if err != nil {
		return s.guard.neutralCheck(ctx, identityID, err), nil
	}

	// Most recent first.
	sort.Slice(points, func(i, j int) bool {
		ti, _ := points[i].Payload["ts_iso"].(string)
		tj, _ := points[j].Payload["ts_iso"].(string)
		return ti > tj
	})

	threshold := s.settings.Get().Threshold
	for _, p := range points {
		score, ok := p.Payload["score"].(float64)
		if !ok {
			continue
		}
		return CheckResult{
			IdentityID: identityID,
			Allow:      score >= threshold,
			Score:      &score,
			Threshold:  &threshold,
		}, nil
	}

	return CheckResult{
		IdentityID: identityID,
		Allow:      true,
		Reason:     ReasonNoRecentScore,
	}, nil
}

// DeviceFamiliar reports whether any prior stored event for the identity
// used the device. Conservative on failure: unknown devices are unfamiliar,
// and this never returns an error.
func (s *Service) DeviceFamiliar(ctx context.Context, identityID, deviceID string) bool {
	if deviceID == "" {
		return false
	}

	filter := &vectorstore.Filter{Must: []vectorstore.Condition{
		vectorstore.MatchKeyword("employee_id", identityID),
		vectorstore.MatchKeyword("device_id", deviceID),
	}}
	count, err := s.store.Count(ctx, s.config.Collection, filter)
	if err != nil {
		return s.guard.unfamiliarDevice(ctx, identityID, err)
	}
	return count > 0
}

// Settings exposes the settings store for the admin surface.
func (s *Service) Settings() *SettingsStore {
	return s.settings
}

func (s *Service) notifyFlagged(ctx context.Context, event Event, score, threshold float64, ts time.Time) {
	err := s.notifier.NotifyFlagged(ctx, FlaggedEvent{
		IdentityID: event.IdentityID,
		Score:      score,
		Threshold:  threshold,
		Page:       event.Page,
		DeviceID:   event.DeviceID,
		Timestamp:  ts,
	})
	if err != nil {
		s.logger.Warn("flagged event notification failed",
			zap.String("employee_id", event.IdentityID),
			zap.Error(err),
		)
	}
}
