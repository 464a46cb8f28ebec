package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// HandleStatus returns a lightweight status summary: chat connectivity, the
// registered command set, and the subscription snapshot shape. Unconfigured
// subsystems are simply absent from the response.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	resp := map[string]any{}

	if h.chatConnected != nil {
		resp["chat_connected"] = h.chatConnected()
	}
	if h.dispatcher != nil {
		cmds := h.dispatcher.Commands()
		names := make([]string, 0, len(cmds))
		for _, c := range cmds {
			names = append(names, c.Name)
		}
		resp["commands"] = names
	}
	if h.store != nil {
		subs, err := h.store.Load(ctx)
		if err != nil {
			resp["subscriptions_error"] = err.Error()
		} else {
			resp["subscriptions"] = len(subs)
			var next time.Time
			for _, rec := range subs {
				if next.IsZero() || rec.ExpiresAt.Before(next) {
					next = rec.ExpiresAt
				}
			}
			if !next.IsZero() {
				resp["next_expiry"] = next
			}
		}
	}
	resp["db_configured"] = h.db != nil

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// HandleSubscriptions dumps the persisted subscription snapshot, sorted by key.
func (h *Handlers) HandleSubscriptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.store == nil {
		http.Error(w, "subscription store not configured", http.StatusServiceUnavailable)
		return
	}
	subs, err := h.store.Load(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	type entry struct {
		Key       string            `json:"key"`
		ID        string            `json:"id"`
		Type      string            `json:"type"`
		Condition map[string]string `json:"condition"`
		ExpiresAt time.Time         `json:"expires_at"`
	}
	out := make([]entry, 0, len(subs))
	for k, rec := range subs {
		out = append(out, entry{Key: k, ID: rec.ID, Type: rec.Type, Condition: rec.Condition, ExpiresAt: rec.ExpiresAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
