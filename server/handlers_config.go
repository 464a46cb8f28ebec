package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
)

// safeConfigKeys are the knobs exposed over /admin/config. Secrets and
// credentials must never appear here.
var safeConfigKeys = map[string]bool{
	"LOG_LEVEL":                true,
	"LOG_FORMAT":               true,
	"DATA_DIR":                 true,
	"EVENTSUB_RENEWAL_LEAD":    true,
	"THROTTLE_SWEEP_INTERVAL":  true,
	"THROTTLE_MAX_AGE":         true,
	"TOKEN_REFRESH_INTERVAL":   true,
	"TOKEN_REFRESH_WINDOW":     true,
	"ANNOUNCE_ONLINE_TEMPLATE": true,
}

// HandleAdminConfig handles GET and PUT requests for safe configuration keys.
// Values written here land in the kv table under a cfg: prefix and take effect
// on restart; GET merges stored overrides with the current environment.
func (h *Handlers) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		out := map[string]string{}
		for k := range safeConfigKeys {
			var v string
			if h.db != nil {
				_ = h.db.QueryRowContext(r.Context(), `SELECT value FROM kv WHERE key=$1`, "cfg:"+k).Scan(&v)
			}
			if v == "" {
				v = os.Getenv(k)
			}
			if v != "" {
				out[k] = v
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	case http.MethodPut:
		if h.db == nil {
			http.Error(w, "config overrides require DB_DSN", http.StatusServiceUnavailable)
			return
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		for k, v := range body {
			if !safeConfigKeys[k] {
				continue
			}
			if _, err := h.db.ExecContext(
				r.Context(),
				`INSERT INTO kv (key,value,updated_at) VALUES ($1,$2,NOW()) ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`,
				"cfg:"+k,
				strings.TrimSpace(v),
			); err != nil {
				slog.Error("failed to update config", slog.String("key", k), slog.Any("err", err))
				http.Error(w, "failed to update config", http.StatusInternalServerError)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
