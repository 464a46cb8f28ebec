// Command chat-warden is the bot entrypoint. It:
//   - Loads configuration and initializes structured logging.
//   - Optionally connects to Postgres and runs idempotent migrations.
//   - Maintains EventSub webhook subscriptions, renewing each before expiry.
//   - Joins Twitch chat, dispatching prefixed commands and archiving messages.
//   - Exposes an HTTP server with the webhook callback, health, status,
//     metrics, OAuth, and admin endpoints.
//
// Every subsystem degrades independently: missing chat credentials disable
// chat, a missing callback URL disables EventSub, a missing DSN disables the
// archive and token storage. Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/onnwee/chat-warden/bot"
	"github.com/onnwee/chat-warden/chat"
	"github.com/onnwee/chat-warden/config"
	"github.com/onnwee/chat-warden/db"
	"github.com/onnwee/chat-warden/eventsub"
	"github.com/onnwee/chat-warden/oauth"
	"github.com/onnwee/chat-warden/server"
	"github.com/onnwee/chat-warden/telemetry"
	"github.com/onnwee/chat-warden/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("chat-warden", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB is optional: without a DSN the bot runs storeless (no chat archive, no
	// stored tokens, file-backed subscription snapshot only).
	var database *sql.DB
	if cfg.DBDsn != "" {
		database, err = db.Connect()
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()

		// Versioned migrations first; fall back to the embedded SQL for
		// deployments without a schema_migrations table.
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.RunMigrations(database); err != nil {
			slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
				slog.Any("err", err),
				slog.String("component", "db_migrate"))
			if err := db.Migrate(database); err != nil {
				slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
				os.Exit(1)
			}
		}
	} else {
		slog.Info("DB_DSN not set; chat archive and token storage disabled")
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Subscription snapshot store
	var store eventsub.Store
	switch cfg.StoreBackend {
	case "postgres":
		if database == nil {
			slog.Error("SUBSCRIPTION_STORE_BACKEND=postgres requires DB_DSN")
			os.Exit(1)
		}
		store = eventsub.NewPostgresStore(database)
	default:
		store = eventsub.NewFileStore(cfg.StorePath)
	}

	// Helix client for user resolution, stream lookups, and EventSub management.
	var helix *twitchapi.HelixClient
	if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		helix = &twitchapi.HelixClient{
			AppTokenSource: &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret},
			ClientID:       cfg.TwitchClientID,
		}
		// Best-effort early fetch so credential problems surface at boot rather
		// than on the first command.
		ctx2, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		if tok, err := helix.AppTokenSource.Get(ctx2); err != nil {
			slog.Warn("twitch app token fetch failed", slog.Any("err", err))
		} else if len(tok) > 6 {
			slog.Info("twitch app token acquired", slog.String("tail", "***"+tok[len(tok)-6:]))
		}
		cancel()
	}

	// Chat: IRC client plus command dispatcher. The user token comes from the
	// environment or, failing that, from the stored OAuth tokens.
	dispatcher := bot.NewDispatcher()
	ircToken := cfg.TwitchOAuthToken
	if ircToken == "" && database != nil {
		if access, _, _, _, err := db.GetOAuthToken(ctx, database, "twitch"); err == nil && access != "" {
			ircToken = access
			slog.Info("using stored oauth token for chat")
		}
	}
	var chatClient *chat.Client
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Info("chat disabled", slog.Any("reason", err))
	} else if ircToken == "" {
		slog.Warn("chat disabled: no TWITCH_OAUTH_TOKEN and no stored token; complete the /oauth/start flow first")
	} else {
		chatClient = chat.New(chat.Config{
			Username: cfg.TwitchBotUsername,
			Token:    ircToken,
			Channels: cfg.TwitchChannels,
		}, dispatcher.Dispatch)
		if database != nil {
			chatClient.Recorder = &chat.Recorder{DB: database}
		}

		dispatcher.Register(bot.Ping(chatClient))
		dispatcher.Register(bot.Commands(chatClient, dispatcher))
		if helix != nil {
			dispatcher.Register(bot.Uptime(chatClient, helix))
			dispatcher.Register(bot.Shoutout(chatClient, helix))
		}

		go func() {
			// The IRC library reconnects on its own; an error here is fatal
			// (typically bad credentials).
			if err := chatClient.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("chat client exited", slog.Any("err", err))
			}
		}()
	}

	// EventSub: webhook receiver, event reactions, and the subscription manager.
	var webhook *server.WebhookReceiver
	var resubscribe func(context.Context) error
	if err := cfg.ValidateEventSubReady(); err != nil {
		slog.Info("eventsub disabled", slog.Any("reason", err))
	} else {
		webhook = server.NewWebhookReceiver(cfg.EventSubSecret)

		announceTmpl := os.Getenv("ANNOUNCE_ONLINE_TEMPLATE")
		if announceTmpl == "" {
			announceTmpl = "%s just went live!"
		}
		if chatClient != nil {
			announcer := chatClient
			webhook.OnEvent("stream.online", func(_ context.Context, event json.RawMessage) {
				var ev struct {
					BroadcasterUserLogin string `json:"broadcaster_user_login"`
					BroadcasterUserName  string `json:"broadcaster_user_name"`
				}
				if err := json.Unmarshal(event, &ev); err != nil || ev.BroadcasterUserLogin == "" {
					slog.Warn("malformed stream.online event", slog.Any("err", err))
					return
				}
				name := ev.BroadcasterUserName
				if name == "" {
					name = ev.BroadcasterUserLogin
				}
				announcer.Say(ev.BroadcasterUserLogin, fmt.Sprintf(announceTmpl, name))
			})
		}
		webhook.OnEvent("stream.offline", func(_ context.Context, event json.RawMessage) {
			var ev struct {
				BroadcasterUserLogin string `json:"broadcaster_user_login"`
			}
			_ = json.Unmarshal(event, &ev)
			slog.Info("stream went offline", slog.String("broadcaster", ev.BroadcasterUserLogin))
		})

		manager := eventsub.NewManager(ctx, helix, store)
		manager.Lead = cfg.RenewalLead

		channels := cfg.TwitchChannels
		callback, secret := cfg.EventSubCallbackURL, cfg.EventSubSecret
		resubscribe = func(rctx context.Context) error {
			for _, ch := range channels {
				uid, err := helix.GetUserID(rctx, ch)
				if err != nil {
					return fmt.Errorf("resolve channel %s: %w", ch, err)
				}
				cond := map[string]string{"broadcaster_user_id": uid}
				for _, typ := range []string{"stream.online", "stream.offline"} {
					if err := manager.Ensure(rctx, typ, cond, callback, secret); err != nil {
						return err
					}
				}
			}
			return nil
		}
		go func() {
			ectx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := resubscribe(ectx); err != nil {
				slog.Error("initial eventsub ensure failed; retry via POST /admin/resubscribe", slog.Any("err", err))
			}
		}()
	}

	// Background token refresher keeps the stored bot token usable.
	if database != nil && cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		interval := envDuration("TOKEN_REFRESH_INTERVAL", 5*time.Minute)
		window := envDuration("TOKEN_REFRESH_WINDOW", 15*time.Minute)
		ocfg := oauth.NewTwitchConfig(cfg.TwitchClientID, cfg.TwitchClientSecret,
			cfg.TwitchRedirectURI, strings.Fields(cfg.TwitchScopes))
		oauth.StartRefresher(ctx, database, "twitch", interval, window, oauth.TokenRefresher(ocfg))
	}

	// Throttle ledger sweep
	go bot.StartJanitor(ctx, dispatcher)

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			// Use an http.Server with timeouts to satisfy G114 and avoid DoS risks
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (webhook callback, health/status/metrics, oauth, admin).
	// Blocks until the shutdown signal, then drains in-flight requests.
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	deps := server.Deps{
		DB:          database,
		Store:       store,
		Dispatcher:  dispatcher,
		Webhook:     webhook,
		Resubscribe: resubscribe,
	}
	if chatClient != nil {
		deps.ChatConnected = chatClient.Connected
	}
	if err := server.Start(ctx, deps, addr); err != nil {
		slog.Error("http server exited with error", slog.Any("err", err))
	}
	slog.Info("shutting down")
}

// envDuration reads a duration env var, falling back to def when unset or invalid.
func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		slog.Warn("invalid duration, using default",
			slog.String("key", key), slog.String("value", v), slog.Duration("default", def))
	}
	return def
}
