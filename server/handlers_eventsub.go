package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/onnwee/chat-warden/telemetry"
)

// EventSub webhook transport headers.
const (
	headerMessageID        = "Twitch-Eventsub-Message-Id"
	headerMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	headerMessageSignature = "Twitch-Eventsub-Message-Signature"
	headerMessageType      = "Twitch-Eventsub-Message-Type"
)

const (
	messageTypeVerification = "webhook_callback_verification"
	messageTypeNotification = "notification"
	messageTypeRevocation   = "revocation"
)

// replayWindow is how old a message timestamp may be before the delivery is
// treated as a replay and rejected.
const replayWindow = 10 * time.Minute

// maxSeenMessages bounds the redelivery dedup map.
const maxSeenMessages = 10000

// maxWebhookBody bounds how much of a delivery body is read.
const maxWebhookBody = 1 << 20

// EventHandler receives the event payload of one accepted notification.
type EventHandler func(ctx context.Context, event json.RawMessage)

// WebhookReceiver verifies and routes EventSub webhook deliveries. Every
// delivery is authenticated with an HMAC over message id, timestamp, and raw
// body before anything is parsed; notifications are deduplicated by message id
// so redeliveries never reach a handler twice.
type WebhookReceiver struct {
	secret []byte
	now    func() time.Time // time source; time.Now when nil

	mu       sync.Mutex
	handlers map[string][]EventHandler
	seen     map[string]time.Time
}

// NewWebhookReceiver returns a receiver that authenticates deliveries against
// secret, which must match the secret used when creating subscriptions.
func NewWebhookReceiver(secret string) *WebhookReceiver {
	return &WebhookReceiver{
		secret:   []byte(secret),
		handlers: make(map[string][]EventHandler),
		seen:     make(map[string]time.Time),
	}
}

// OnEvent registers fn for notifications of the given subscription type
// (e.g. "stream.online"). Multiple handlers per type run in registration order.
func (wr *WebhookReceiver) OnEvent(typ string, fn EventHandler) {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	wr.handlers[typ] = append(wr.handlers[typ], fn)
}

func (wr *WebhookReceiver) timeNow() time.Time {
	if wr.now != nil {
		return wr.now()
	}
	return time.Now()
}

// webhookEnvelope is the common shape of every delivery body.
type webhookEnvelope struct {
	Challenge    string              `json:"challenge"`
	Subscription webhookSubscription `json:"subscription"`
	Event        json.RawMessage     `json:"event"`
}

type webhookSubscription struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Type   string `json:"type"`
}

func (wr *WebhookReceiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	log := telemetry.LoggerWithCorr(ctx)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	msgID := r.Header.Get(headerMessageID)
	msgTS := r.Header.Get(headerMessageTimestamp)
	msgSig := r.Header.Get(headerMessageSignature)
	if msgID == "" || msgTS == "" || msgSig == "" {
		wr.reject(w, log, "missing eventsub headers", msgID)
		return
	}

	sentAt, err := time.Parse(time.RFC3339Nano, msgTS)
	if err != nil {
		wr.reject(w, log, "unparseable timestamp", msgID)
		return
	}
	if wr.timeNow().Sub(sentAt) > replayWindow {
		wr.reject(w, log, "timestamp outside replay window", msgID)
		return
	}

	if !wr.validSignature(msgID, msgTS, body, msgSig) {
		wr.reject(w, log, "bad signature", msgID)
		return
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	switch r.Header.Get(headerMessageType) {
	case messageTypeVerification:
		if env.Challenge == "" {
			http.Error(w, "missing challenge", http.StatusBadRequest)
			return
		}
		if telemetry.WebhookVerifications != nil {
			telemetry.WebhookVerifications.Inc()
		}
		log.Info("eventsub callback verified",
			slog.String("subscription_id", env.Subscription.ID),
			slog.String("type", env.Subscription.Type))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(env.Challenge))

	case messageTypeNotification:
		// Signed duplicates only: dedup after authentication so forged ids
		// cannot shadow real deliveries.
		if !wr.markSeen(msgID) {
			if telemetry.WebhookRejected != nil {
				telemetry.WebhookRejected.Inc()
			}
			log.Debug("duplicate eventsub delivery", slog.String("message_id", msgID))
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if telemetry.WebhookNotifications != nil {
			telemetry.WebhookNotifications.Inc()
		}
		nctx, span := telemetry.StartSpan(ctx, "eventsub.notification")
		wr.dispatch(nctx, env.Subscription.Type, env.Event)
		span.End()
		w.WriteHeader(http.StatusNoContent)

	case messageTypeRevocation:
		if telemetry.WebhookRevocations != nil {
			telemetry.WebhookRevocations.Inc()
		}
		log.Warn("eventsub subscription revoked",
			slog.String("subscription_id", env.Subscription.ID),
			slog.String("type", env.Subscription.Type),
			slog.String("status", env.Subscription.Status))
		w.WriteHeader(http.StatusNoContent)

	default:
		// Unknown message types are acked so the sender does not retry them.
		log.Warn("unknown eventsub message type",
			slog.String("message_type", r.Header.Get(headerMessageType)))
		w.WriteHeader(http.StatusNoContent)
	}
}

// validSignature checks the sha256= HMAC over id + timestamp + body.
func (wr *WebhookReceiver) validSignature(id, ts string, body []byte, got string) bool {
	mac := hmac.New(sha256.New, wr.secret)
	mac.Write([]byte(id))
	mac.Write([]byte(ts))
	mac.Write(body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(got))
}

// markSeen records a notification id, reporting false for redeliveries. The
// map is pruned of entries old enough that the replay window would reject
// them anyway.
func (wr *WebhookReceiver) markSeen(id string) bool {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	if _, dup := wr.seen[id]; dup {
		return false
	}
	if len(wr.seen)%100 == 0 {
		cutoff := wr.timeNow().Add(-replayWindow)
		for old, at := range wr.seen {
			if at.Before(cutoff) {
				delete(wr.seen, old)
			}
		}
	}
	if len(wr.seen) >= maxSeenMessages {
		// That many in-window ids means the sender is misbehaving; resetting
		// trades dedup for bounded memory.
		slog.Warn("eventsub dedup map full, resetting", slog.Int("entries", len(wr.seen)))
		wr.seen = make(map[string]time.Time)
	}
	wr.seen[id] = wr.timeNow()
	return true
}

// dispatch runs every handler registered for typ.
func (wr *WebhookReceiver) dispatch(ctx context.Context, typ string, event json.RawMessage) {
	wr.mu.Lock()
	fns := make([]EventHandler, len(wr.handlers[typ]))
	copy(fns, wr.handlers[typ])
	wr.mu.Unlock()

	if len(fns) == 0 {
		slog.Debug("no handler for eventsub type", slog.String("type", typ))
		return
	}
	for _, fn := range fns {
		fn(ctx, event)
	}
}

func (wr *WebhookReceiver) reject(w http.ResponseWriter, log *slog.Logger, reason, msgID string) {
	if telemetry.WebhookRejected != nil {
		telemetry.WebhookRejected.Inc()
	}
	log.Warn("eventsub delivery rejected",
		slog.String("reason", reason),
		slog.String("message_id", msgID))
	http.Error(w, "forbidden", http.StatusForbidden)
}
