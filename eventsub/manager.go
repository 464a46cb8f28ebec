// Package eventsub maintains webhook event subscriptions: it deduplicates
// subscriptions by a canonical key, persists every accepted descriptor, and
// renews each subscription shortly before its lease expires.
package eventsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/chat-warden/telemetry"
	"github.com/onnwee/chat-warden/twitchapi"
)

// DefaultLead is how long before expiry a subscription is renewed.
const DefaultLead = 60 * time.Second

// renewTimeout bounds a single renewal pass triggered by a timer.
const renewTimeout = 30 * time.Second

// API is the remote surface the manager needs; *twitchapi.HelixClient satisfies it.
type API interface {
	CreateEventSubSubscription(ctx context.Context, params twitchapi.EventSubParams) ([]twitchapi.EventSubSubscription, error)
}

// Manager owns the subscription lifecycle. Ensure passes are serialized by one
// mutex, so concurrent callers cannot double-create the same subscription and
// snapshot writes never interleave.
type Manager struct {
	API   API
	Store Store
	Lead  time.Duration    // renewal lead; DefaultLead when zero
	Now   func() time.Time // time source; time.Now when nil

	base     context.Context // governs renewal timers
	mu       sync.Mutex
	renewals map[string]context.CancelFunc
}

// NewManager returns a manager whose renewal timers live until ctx is cancelled.
func NewManager(ctx context.Context, api API, store Store) *Manager {
	return &Manager{
		API:      api,
		Store:    store,
		base:     ctx,
		renewals: make(map[string]context.CancelFunc),
	}
}

func (m *Manager) lead() time.Duration {
	if m.Lead > 0 {
		return m.Lead
	}
	return DefaultLead
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Manager) baseCtx() context.Context {
	if m.base != nil {
		return m.base
	}
	return context.Background()
}

// Ensure makes sure a subscription for (typ, condition) exists and is fresh.
// If the persisted record still has more than the renewal lead left, no remote
// call happens. Otherwise a new subscription is created, the full snapshot is
// persisted, and a renewal timer is armed. Remote and persistence errors
// propagate to the caller; a store read error only degrades to an empty view.
func (m *Manager) Ensure(ctx context.Context, typ string, condition map[string]string, callback, secret string) error {
	if typ == "" {
		return errors.New("subscription type empty")
	}
	ctx, span := telemetry.StartSpan(ctx, "eventsub.ensure")
	defer span.End()
	key := SubscriptionKey(typ, condition)

	m.mu.Lock()
	defer m.mu.Unlock()

	if telemetry.EventSubEnsures != nil {
		telemetry.EventSubEnsures.Inc()
	}

	subs, err := m.Store.Load(ctx)
	if err != nil {
		slog.Warn("subscription store unreadable, assuming empty", slog.Any("err", err))
		subs = map[string]Record{}
	}
	if rec, ok := subs[key]; ok && rec.ExpiresAt.Sub(m.now()) > m.lead() {
		if telemetry.EventSubFreshHits != nil {
			telemetry.EventSubFreshHits.Inc()
		}
		m.scheduleLocked(key, typ, condition, callback, secret, rec.ExpiresAt)
		return nil
	}

	created, err := m.API.CreateEventSubSubscription(ctx, twitchapi.EventSubParams{
		Type:      typ,
		Condition: condition,
		Callback:  callback,
		Secret:    secret,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("create eventsub subscription: %w", err)
	}
	if len(created) == 0 {
		return errors.New("no subscription returned from remote")
	}
	sub := created[0]
	rec := Record{ID: sub.ID, Type: typ, Condition: condition, ExpiresAt: sub.ExpiresAt}
	subs[key] = rec
	if err := m.Store.Save(ctx, subs); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("persist subscription %s: %w", key, err)
	}
	slog.Info("eventsub subscription ensured",
		slog.String("key", key),
		slog.String("id", sub.ID),
		slog.Time("expires_at", sub.ExpiresAt))
	if telemetry.EventSubCreates != nil {
		telemetry.EventSubCreates.Inc()
	}
	telemetry.SetActiveSubscriptions(len(subs))
	m.scheduleLocked(key, typ, condition, callback, secret, rec.ExpiresAt)
	return nil
}

// scheduleLocked arms the renewal timer for key, replacing any timer armed for
// an earlier descriptor of the same subscription. Caller holds m.mu.
func (m *Manager) scheduleLocked(key, typ string, condition map[string]string, callback, secret string, expiresAt time.Time) {
	if cancel, ok := m.renewals[key]; ok {
		cancel()
	}
	if m.renewals == nil {
		m.renewals = make(map[string]context.CancelFunc)
	}
	base := m.baseCtx()
	tctx, cancel := context.WithCancel(base)
	m.renewals[key] = cancel

	delay := expiresAt.Sub(m.now()) - m.lead()
	if delay < 0 {
		delay = 0
	}
	timer := time.NewTimer(delay)
	go func() {
		defer timer.Stop()
		select {
		case <-tctx.Done():
			return
		case <-timer.C:
		}
		rctx, done := context.WithTimeout(tctx, renewTimeout)
		defer done()
		if err := m.Ensure(rctx, typ, condition, callback, secret); err != nil {
			slog.Warn("eventsub renewal failed",
				slog.String("key", key), slog.Any("err", err))
			if telemetry.EventSubRenewalFailures != nil {
				telemetry.EventSubRenewalFailures.Inc()
			}
		}
	}()
}

// Stop cancels every pending renewal timer. Ensure may be called again
// afterwards and will re-arm timers as usual.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, cancel := range m.renewals {
		cancel()
		delete(m.renewals, key)
	}
}
