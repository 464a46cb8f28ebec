package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// HandleChatRecent returns the most recent archived chat messages for a
// channel, newest first.
func (h *Handlers) HandleChatRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.db == nil {
		http.Error(w, "chat archive requires DB_DSN", http.StatusServiceUnavailable)
		return
	}
	channel := strings.ToLower(strings.TrimPrefix(r.URL.Query().Get("channel"), "#"))
	if channel == "" {
		http.Error(w, "channel required", http.StatusBadRequest)
		return
	}
	limit := parseIntQuery(r, "limit", 100)
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := h.db.QueryContext(r.Context(),
		`SELECT username, user_id, message, badges, color, sent_at FROM chat_messages WHERE channel=$1 ORDER BY id DESC LIMIT $2`,
		channel, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	type msg struct {
		Username string    `json:"username"`
		UserID   string    `json:"user_id"`
		Message  string    `json:"message"`
		Badges   string    `json:"badges"`
		Color    string    `json:"color"`
		SentAt   time.Time `json:"sent_at"`
	}
	out := make([]msg, 0)
	for rows.Next() {
		var m msg
		if err := rows.Scan(&m.Username, &m.UserID, &m.Message, &m.Badges, &m.Color, &m.SentAt); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out = append(out, m)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
