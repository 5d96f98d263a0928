package monitoring

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Health tracks pipeline liveness for the /health endpoint.
type Health struct {
	started   time.Time
	lastEvent atomic.Int64 // unix seconds of the last processed event
}

// NewHealth creates a health tracker.
func NewHealth() *Health {
	h := &Health{started: time.Now()}
	h.lastEvent.Store(time.Now().Unix())
	return h
}

// Touch records pipeline activity.
func (h *Health) Touch() {
	h.lastEvent.Store(time.Now().Unix())
}

// ServeHTTP reports process uptime and the age of the last event.
func (h *Health) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	last := time.Unix(h.lastEvent.Load(), 0)
	resp := map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"last_event_age": int(time.Since(last).Seconds()),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
