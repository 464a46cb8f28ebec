package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/chat-warden/config"
	dbpkg "github.com/onnwee/chat-warden/db"
	"github.com/onnwee/chat-warden/oauth"
)

// HandleOAuthStart initiates the authorization-code flow by redirecting the
// browser to Twitch.
func (h *Handlers) HandleOAuthStart(w http.ResponseWriter, r *http.Request) {
	cfg, _ := config.Load() // ValidateOAuthReady guards the fields this flow needs
	if err := cfg.ValidateOAuthReady(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "state gen error", http.StatusInternalServerError)
		return
	}
	st := hex.EncodeToString(b)
	h.addOAuthState(st, time.Now().Add(10*time.Minute))

	ocfg := oauth.NewTwitchConfig(cfg.TwitchClientID, cfg.TwitchClientSecret,
		cfg.TwitchRedirectURI, strings.Fields(cfg.TwitchScopes))
	http.Redirect(w, r, ocfg.AuthCodeURL(st), http.StatusFound)
}

// HandleOAuthCallback exchanges the authorization code and stores the tokens.
func (h *Handlers) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	cfg, _ := config.Load()
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", http.StatusBadRequest)
		return
	}
	if !h.consumeOAuthState(st) {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	if h.db == nil {
		http.Error(w, "token storage requires DB_DSN", http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()
	ocfg := oauth.NewTwitchConfig(cfg.TwitchClientID, cfg.TwitchClientSecret,
		cfg.TwitchRedirectURI, strings.Fields(cfg.TwitchScopes))
	access, refresh, expiry, scope, err := oauth.Exchange(ctx, ocfg, code)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := dbpkg.UpsertOAuthToken(ctx, h.db, "twitch", access, refresh, expiry, scope); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	slog.Info("oauth tokens stored", slog.String("provider", "twitch"), slog.Time("expiry", expiry))
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"status": "ok", "scope": scope, "expiry": expiry}); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}
