// Package server exposes the HTTP API: health, status, metrics, the EventSub
// webhook callback, and the OAuth authorization flow. It includes permissive
// CORS for development and injects correlation IDs into request contexts for
// consistent logging.
package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/chat-warden/bot"
	"github.com/onnwee/chat-warden/eventsub"
	"github.com/onnwee/chat-warden/telemetry"
)

// Deps carries the subsystems the HTTP layer exposes. Fields may be nil when
// the matching subsystem is not configured; the related endpoints degrade
// instead of failing startup.
type Deps struct {
	// DB backs token storage, the chat archive, and config overrides.
	DB *sql.DB
	// Store is the subscription snapshot read by /status and /subscriptions.
	Store eventsub.Store
	// Dispatcher supplies the registered command set and the throttle ledger.
	Dispatcher *bot.Dispatcher
	// Webhook handles POST /eventsub/callback when EventSub is configured.
	Webhook *WebhookReceiver
	// Resubscribe re-runs the configured subscription ensure set.
	Resubscribe func(ctx context.Context) error
	// ChatConnected reports whether the IRC session is up.
	ChatConnected func() bool
}

// NewMux returns the HTTP handler with all routes.
// The provided context bounds the rate limiter cleanup goroutine.
func NewMux(ctx context.Context, deps Deps) http.Handler {
	authCfg := loadAuthConfig()
	corsCfg := loadCORSConfig()

	var limiter RateLimiter = newIPRateLimiter(ctx, loadRateLimiterConfig())

	handlers := NewHandlers(ctx, deps)

	mux := http.NewServeMux()

	// Metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// EventSub webhook callback
	if deps.Webhook != nil {
		mux.Handle("/eventsub/callback", deps.Webhook)
	}

	// OAuth endpoints
	mux.HandleFunc("/oauth/start", handlers.HandleOAuthStart)
	mux.HandleFunc("/oauth/callback", handlers.HandleOAuthCallback)

	// Health and readiness endpoints
	mux.HandleFunc("/healthz", handlers.HandleHealthz)
	mux.HandleFunc("/readyz", handlers.HandleReadyz)

	// Status and snapshot endpoints
	mux.HandleFunc("/status", handlers.HandleStatus)
	mux.HandleFunc("/subscriptions", handlers.HandleSubscriptions)
	mux.HandleFunc("/chat/recent", handlers.HandleChatRecent)

	// Admin endpoints
	mux.HandleFunc("/admin/config", handlers.HandleAdminConfig)
	mux.HandleFunc("/admin/resubscribe", handlers.HandleAdminResubscribe)
	mux.HandleFunc("/admin/evict", handlers.HandleAdminEvict)

	// Selective middleware wrapper: admin endpoints get auth plus rate limiting,
	// everything else is served directly.
	selectiveHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/admin/") {
			adminAuth(rateLimitMiddleware(mux, limiter), authCfg).ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})

	// Wrap with correlation ID injector and tracing middleware
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Reuse corr header if provided else generate
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, r.Method+" "+r.URL.Path,
			telemetry.HTTPMethodAttr(r.Method),
			telemetry.HTTPRouteAttr(r.URL.Path),
			telemetry.HTTPURLAttr(r.URL.String()),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("component", "http"))

		// Capture status code via custom ResponseWriter
		wrappedWriter := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		selectiveHandler.ServeHTTP(wrappedWriter, r.WithContext(ctx))

		telemetry.SetSpanHTTPStatus(span, wrappedWriter.statusCode)
	})
	return withCORSConfig(handler, corsCfg)
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, deps Deps, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(ctx, deps),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Shutdown goroutine
	go func() {
		<-ctx.Done()
		// Use WithoutCancel to inherit context values but allow shutdown to complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
