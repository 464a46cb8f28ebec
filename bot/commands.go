package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/chat-warden/twitchapi"
)

// StreamInfoSource yields live-stream metadata for a login.
// *twitchapi.HelixClient satisfies it.
type StreamInfoSource interface {
	GetStreams(ctx context.Context, userLogin string) ([]twitchapi.Stream, error)
}

// UserInfoSource resolves login names to user records.
// *twitchapi.HelixClient satisfies it.
type UserInfoSource interface {
	GetUsers(ctx context.Context, logins ...string) ([]twitchapi.User, error)
}

// Ping replies pong. Doubles as a liveness probe for the bot account.
func Ping(s Sender) Command {
	return Command{
		Name:     "ping",
		Cooldown: time.Second,
		Handler: func(_ context.Context, channel string, _ User, _ string) {
			s.Say(channel, "pong")
		},
	}
}

// Commands lists every registered command name.
func Commands(s Sender, d *Dispatcher) Command {
	return Command{
		Name:     "commands",
		Cooldown: 10 * time.Second,
		Handler: func(_ context.Context, channel string, _ User, _ string) {
			cmds := d.Commands()
			names := make([]string, 0, len(cmds))
			for _, cmd := range cmds {
				names = append(names, "!"+cmd.Name)
			}
			s.Say(channel, "commands: "+strings.Join(names, " "))
		},
	}
}

// Uptime reports how long the channel has been live.
func Uptime(s Sender, src StreamInfoSource) Command {
	return Command{
		Name:     "uptime",
		Cooldown: 10 * time.Second,
		Handler: func(ctx context.Context, channel string, _ User, _ string) {
			login := strings.TrimPrefix(channel, "#")
			streams, err := src.GetStreams(ctx, login)
			if err != nil {
				slog.Warn("uptime lookup failed", slog.String("channel", channel), slog.Any("err", err))
				return
			}
			if len(streams) == 0 {
				s.Say(channel, "stream is offline")
				return
			}
			s.Say(channel, "live for "+humanDuration(time.Since(streams[0].StartedAt)))
		},
	}
}

// Shoutout plugs another streamer: "!so <login>". Moderators and the
// broadcaster only.
func Shoutout(s Sender, src UserInfoSource) Command {
	return Command{
		Name:     "so",
		Cooldown: 5 * time.Second,
		Roles:    []Role{RoleBroadcaster, RoleModerator},
		Handler: func(ctx context.Context, channel string, _ User, args string) {
			fields := strings.Fields(args)
			if len(fields) == 0 {
				s.Say(channel, "usage: !so <login>")
				return
			}
			login := strings.ToLower(strings.TrimPrefix(fields[0], "@"))
			display := login
			if users, err := src.GetUsers(ctx, login); err != nil {
				slog.Warn("shoutout lookup failed", slog.String("login", login), slog.Any("err", err))
			} else if len(users) > 0 && users[0].DisplayName != "" {
				display = users[0].DisplayName
			}
			s.Say(channel, fmt.Sprintf("go check out %s at https://twitch.tv/%s", display, login))
		},
	}
}

// humanDuration renders d as coarse hours and minutes, seconds only under a
// minute.
func humanDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, (d%time.Minute)/time.Second)
	default:
		return fmt.Sprintf("%ds", d/time.Second)
	}
}
