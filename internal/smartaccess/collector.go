package smartaccess

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/sentra/internal/embeddings"
)

// maxUserAgentLen truncates user agent strings in summaries.
const maxUserAgentLen = 200

// Collector turns a validated event into an embedding via a compact
// behavior summary text.
type Collector struct {
	embedder embeddings.Embedder
}

// NewCollector creates a Collector.
func NewCollector(embedder embeddings.Embedder) *Collector {
	return &Collector{embedder: embedder}
}

// Build produces the summary text and its embedding for a validated event.
// Embedding failure is a hard error; it surfaces to the caller unguarded.
func (c *Collector) Build(ctx context.Context, event Event, ts time.Time, deviceSeen bool) (string, []float32, error) {
	summary := summaryText(event, ts, deviceSeen)

	vector, err := c.embedder.EmbedQuery(ctx, summary)
	if err != nil {
		return "", nil, fmt.Errorf("embedding event summary: %w", err)
	}
	return summary, vector, nil
}

// summaryText builds the compact behavior summary that gets embedded.
// Field order is fixed; changing it shifts every identity's baseline.
func summaryText(event Event, ts time.Time, deviceSeen bool) string {
	ua := event.UserAgent
	if len(ua) > maxUserAgentLen {
		ua = ua[:maxUserAgentLen]
	}

	parts := []string{
		fmt.Sprintf("employee_id: %s", event.IdentityID),
		fmt.Sprintf("page: %s", event.Page),
		fmt.Sprintf("mouse_moves: %d", event.MouseMoves),
		fmt.Sprintf("typing_speed_cpm: %g", event.TypingCPM),
		fmt.Sprintf("typing_burstiness: %g", event.TypingBurstiness),
		fmt.Sprintf("ip: %s", event.IP),
		fmt.Sprintf("device_id: %s", event.DeviceID),
		fmt.Sprintf("seen_device_before: %t", deviceSeen),
		fmt.Sprintf("ua: %s", ua),
		fmt.Sprintf("ts: %s", ts.Format(time.RFC3339)),
	}
	return strings.Join(parts, " | ")
}
