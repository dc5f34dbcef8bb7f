// Package smartaccess implements behavioral anomaly detection: telemetry
// event collection, per-identity baselines, cosine-similarity scoring, and
// the degraded-mode policy for vector store outages.
package smartaccess

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Event is an untrusted behavioral telemetry event supplied by a client.
type Event struct {
	IdentityID       string  `json:"employee_id"`
	Page             string  `json:"page"`
	MouseMoves       int64   `json:"mouse_moves"`
	TypingCPM        float64 `json:"typing_cpm"`
	TypingBurstiness float64 `json:"typing_burstiness"`
	IP               string  `json:"ip,omitempty"`
	DeviceID         string  `json:"device_id"`
	UserAgent        string  `json:"user_agent,omitempty"`
	Timestamp        string  `json:"timestamp,omitempty"`
}

// ValidationError reports per-field validation failures. Events failing
// validation are rejected before any store call.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %s", k, e.Fields[k])
	}
	return "invalid event: " + strings.Join(parts, "; ")
}

// Validate checks required fields and numeric ranges, returning the parsed
// event timestamp. A missing timestamp defaults to now.
func (e *Event) Validate(now time.Time) (time.Time, *ValidationError) {
	fields := make(map[string]string)

	if strings.TrimSpace(e.IdentityID) == "" {
		fields["employee_id"] = "required"
	}
	if e.MouseMoves < 0 {
		fields["mouse_moves"] = "must not be negative"
	}
	if e.TypingCPM < 0 {
		fields["typing_cpm"] = "must not be negative"
	}
	if e.TypingBurstiness < 0 || e.TypingBurstiness > 1 {
		fields["typing_burstiness"] = "must be between 0 and 1"
	}

	ts := now
	if e.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, e.Timestamp)
		if err != nil {
			fields["timestamp"] = "must be RFC 3339"
		} else {
			ts = parsed
		}
	}

	if len(fields) > 0 {
		return time.Time{}, &ValidationError{Fields: fields}
	}
	return ts.UTC(), nil
}

// dayKey buckets a timestamp into a UTC calendar day for distinct-day
// counting.
func dayKey(ts time.Time) string {
	return ts.UTC().Format("2006-01-02")
}
