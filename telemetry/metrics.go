// Package telemetry provides Prometheus metrics, correlation-id aware logging
// helpers, and OpenTelemetry tracing setup.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// EventSub counters
	EventSubEnsures         prometheus.Counter
	EventSubCreates         prometheus.Counter
	EventSubFreshHits       prometheus.Counter
	EventSubRenewalFailures prometheus.Counter

	// Chat / command counters
	ChatMessages             prometheus.Counter
	CommandsDispatched       prometheus.Counter
	CommandsRejectedRole     prometheus.Counter
	CommandsRejectedCooldown prometheus.Counter
	ThrottleEvictions        prometheus.Counter

	// Webhook counters
	WebhookNotifications prometheus.Counter
	WebhookVerifications prometheus.Counter
	WebhookRevocations   prometheus.Counter
	WebhookRejected      prometheus.Counter

	// Histograms (seconds)
	CommandDuration prometheus.Observer

	// Gauges
	ActiveSubscriptions prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventSubEnsures = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_eventsub_ensure_total", Help: "Number of subscription ensure passes"})
		EventSubCreates = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_eventsub_creates_total", Help: "Number of remote subscription creates"})
		EventSubFreshHits = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_eventsub_fresh_hits_total", Help: "Number of ensure passes satisfied by a fresh persisted record"})
		EventSubRenewalFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_eventsub_renewal_failures_total", Help: "Number of failed renewal passes"})
		ChatMessages = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_chat_messages_total", Help: "Number of chat messages received"})
		CommandsDispatched = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_commands_dispatched_total", Help: "Number of command handlers invoked"})
		CommandsRejectedRole = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_commands_rejected_role_total", Help: "Number of commands rejected by role gating"})
		CommandsRejectedCooldown = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_commands_rejected_cooldown_total", Help: "Number of commands rejected by cooldown throttling"})
		ThrottleEvictions = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_throttle_evictions_total", Help: "Number of stale throttle ledger entries evicted"})
		WebhookNotifications = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_webhook_notifications_total", Help: "Number of webhook notifications accepted"})
		WebhookVerifications = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_webhook_verifications_total", Help: "Number of webhook challenge verifications answered"})
		WebhookRevocations = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_webhook_revocations_total", Help: "Number of subscription revocations received"})
		WebhookRejected = promauto.NewCounter(prometheus.CounterOpts{Name: "warden_webhook_rejected_total", Help: "Number of webhook deliveries rejected (signature, replay, dedup)"})
		CommandDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "warden_command_duration_seconds", Help: "Command handler duration seconds", Buckets: prometheus.DefBuckets})
		ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{Name: "warden_active_subscriptions", Help: "Current number of persisted subscriptions"})
	})
}

// SetActiveSubscriptions records the current persisted subscription count.
func SetActiveSubscriptions(n int) {
	if ActiveSubscriptions != nil {
		ActiveSubscriptions.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records it in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with the corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
