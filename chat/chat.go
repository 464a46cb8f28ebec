package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/chat-warden/bot"
	"github.com/onnwee/chat-warden/telemetry"
)

// Config holds the IRC credentials and channel set.
type Config struct {
	Username string
	Token    string // user OAuth token, with or without the oauth: prefix
	Channels []string
}

// Client connects to Twitch IRC and delivers each inbound message to the
// configured callback. It satisfies bot.Sender for outbound replies.
type Client struct {
	// Recorder, when set before Run, persists every inbound message.
	Recorder *Recorder

	cfg       Config
	irc       *twitch.Client
	onMessage func(context.Context, bot.Message)
	connected atomic.Bool
}

// New builds a client for cfg. Nothing connects until Run.
func New(cfg Config, onMessage func(context.Context, bot.Message)) *Client {
	return &Client{
		cfg:       cfg,
		irc:       twitch.NewClient(cfg.Username, normalizeToken(cfg.Token)),
		onMessage: onMessage,
	}
}

// Run connects and blocks until ctx is cancelled or the connection fails.
// On cancellation the client disconnects and ctx.Err() is returned.
func (c *Client) Run(ctx context.Context) error {
	c.irc.OnConnect(func() {
		c.connected.Store(true)
		slog.Info("chat connected",
			slog.String("username", c.cfg.Username),
			slog.Int("channels", len(c.cfg.Channels)))
	})
	c.irc.OnNoticeMessage(func(m twitch.NoticeMessage) {
		slog.Warn("chat notice",
			slog.String("channel", m.Channel),
			slog.String("msg_id", m.MsgID),
			slog.String("message", m.Message))
	})
	c.irc.OnReconnectMessage(func(twitch.ReconnectMessage) {
		slog.Info("chat server requested reconnect")
	})
	c.irc.OnPrivateMessage(func(m twitch.PrivateMessage) {
		if telemetry.ChatMessages != nil {
			telemetry.ChatMessages.Inc()
		}
		c.Recorder.Record(ctx, m)
		if c.onMessage != nil {
			c.onMessage(ctx, toBotMessage(m, c.cfg.Username))
		}
	})

	for _, ch := range c.cfg.Channels {
		c.irc.Join(strings.TrimPrefix(ch, "#"))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.irc.Connect()
	}()

	select {
	case <-ctx.Done():
		if err := c.irc.Disconnect(); err != nil {
			slog.Warn("chat disconnect", slog.Any("err", err))
		}
		<-errCh
		c.connected.Store(false)
		return ctx.Err()
	case err := <-errCh:
		c.connected.Store(false)
		return err
	}
}

// Connected reports whether the IRC session is currently established.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Say sends text to a channel.
func (c *Client) Say(channel, text string) {
	c.irc.Say(strings.TrimPrefix(channel, "#"), text)
}

// toBotMessage converts an IRC message into the dispatcher's shape. Self is
// derived from the configured login rather than transport echo behavior, so
// the bot never answers itself even if the server echoes its own lines back.
func toBotMessage(m twitch.PrivateMessage, botLogin string) bot.Message {
	sentAt := m.Time
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	return bot.Message{
		ID:      m.ID,
		Channel: m.Channel,
		User: bot.User{
			ID:          m.User.ID,
			Login:       m.User.Name,
			DisplayName: m.User.DisplayName,
			Badges:      m.User.Badges,
		},
		Text: m.Message,
		Self: strings.EqualFold(m.User.Name, botLogin),
		Time: sentAt,
	}
}

// normalizeToken ensures the oauth: prefix the IRC protocol expects.
func normalizeToken(token string) string {
	if token == "" || strings.HasPrefix(token, "oauth:") {
		return token
	}
	return "oauth:" + token
}
