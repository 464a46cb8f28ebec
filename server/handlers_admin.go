package server

import (
	"encoding/json"
	"net/http"
)

// HandleAdminResubscribe re-runs the configured subscription ensure set,
// recreating anything missing or near expiry.
func (h *Handlers) HandleAdminResubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.resubscribe == nil {
		http.Error(w, "eventsub not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.resubscribe(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
}

// HandleAdminEvict forces a throttle ledger sweep. max_age bounds which
// entries go; the default of 0 flushes the whole ledger.
func (h *Handlers) HandleAdminEvict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.dispatcher == nil {
		http.Error(w, "dispatcher not configured", http.StatusServiceUnavailable)
		return
	}
	maxAge := parseDurationQuery(r, "max_age", 0)
	if maxAge < 0 {
		http.Error(w, "max_age must not be negative", http.StatusBadRequest)
		return
	}
	evicted := h.dispatcher.EvictStale(maxAge)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"evicted": evicted,
		"max_age": maxAge.String(),
	})
}
