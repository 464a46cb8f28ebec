package eventsub

import (
	"context"
	"time"
)

// Record is the durable descriptor of one webhook subscription.
type Record struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Condition map[string]string `json:"condition"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// Store persists the full subscription snapshot keyed by SubscriptionKey.
// Save replaces the previous snapshot wholesale. Load returns an empty map when
// nothing has been persisted yet; the manager treats any Load error as empty.
type Store interface {
	Load(ctx context.Context) (map[string]Record, error)
	Save(ctx context.Context, subs map[string]Record) error
}
