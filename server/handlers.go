package server

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/onnwee/chat-warden/bot"
	"github.com/onnwee/chat-warden/eventsub"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 10000
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db            *sql.DB
	store         eventsub.Store
	dispatcher    *bot.Dispatcher
	resubscribe   func(ctx context.Context) error
	chatConnected func() bool
	ctx           context.Context
	stateStore    map[string]time.Time
	stateMu       sync.RWMutex
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, deps Deps) *Handlers {
	return &Handlers{
		db:            deps.DB,
		store:         deps.Store,
		dispatcher:    deps.Dispatcher,
		resubscribe:   deps.Resubscribe,
		chatConnected: deps.ChatConnected,
		ctx:           ctx,
		stateStore:    make(map[string]time.Time),
	}
}

// cleanExpiredStates removes expired OAuth states from the store.
// This should be called with stateMu locked.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, expiry := range h.stateStore {
		if now.After(expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState adds a new OAuth state to the store with cleanup if needed.
func (h *Handlers) addOAuthState(state string, expiry time.Time) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	// Clean expired states periodically to prevent unbounded growth
	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}

	// If we're still over the limit after cleanup, refuse to add more
	if len(h.stateStore) >= maxOAuthStates {
		// Don't add the state - this will cause the OAuth flow to fail
		// which is better than a memory exhaustion attack
		return
	}

	h.stateStore[state] = expiry
}

// consumeOAuthState validates and removes a state in one step so each state
// is accepted at most once.
func (h *Handlers) consumeOAuthState(state string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	expiry, ok := h.stateStore[state]
	if !ok {
		return false
	}
	delete(h.stateStore, state)
	return !time.Now().After(expiry)
}
