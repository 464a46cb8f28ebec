package bot

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/onnwee/chat-warden/telemetry"
)

// DefaultPrefix marks a chat message as a command invocation.
const DefaultPrefix = '!'

// throttleKey scopes cooldowns per user per command.
type throttleKey struct {
	UserID  string
	Command string
}

// Dispatcher routes prefixed chat messages to registered commands, enforcing
// role allow-lists and cooldowns. The mutex covers registry lookups and the
// throttle ledger; handlers run outside it, so a handler may call back into
// the dispatcher (the !commands handler does).
type Dispatcher struct {
	Prefix byte             // command marker; DefaultPrefix when zero
	Now    func() time.Time // time source; time.Now when nil

	mu       sync.Mutex
	commands map[string]Command
	ledger   map[throttleKey]time.Time
}

// NewDispatcher returns an empty dispatcher using the default prefix.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		commands: make(map[string]Command),
		ledger:   make(map[throttleKey]time.Time),
	}
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Dispatcher) prefix() byte {
	if d.Prefix != 0 {
		return d.Prefix
	}
	return DefaultPrefix
}

// Register adds cmd under its lowercased name. Registering a name again
// replaces the earlier entry.
func (d *Dispatcher) Register(cmd Command) {
	if cmd.Name == "" {
		slog.Warn("ignoring command registration with empty name")
		return
	}
	cmd.Name = strings.ToLower(cmd.Name)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.commands == nil {
		d.commands = make(map[string]Command)
	}
	d.commands[cmd.Name] = cmd
}

// Dispatch routes one inbound message. Messages from the bot itself and
// messages without the command prefix are dropped without a trace; unknown
// commands likewise. Role and cooldown rejections log at debug. The matched
// handler runs synchronously, and the cooldown ledger is written only when a
// handler actually runs.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) {
	if msg.Self || msg.Text == "" || msg.Text[0] != d.prefix() {
		return
	}
	rest := strings.TrimSpace(msg.Text[1:])
	if rest == "" {
		return
	}
	name, args := rest, ""
	if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
		name, args = rest[:i], strings.TrimSpace(rest[i:])
	}
	name = strings.ToLower(name)

	d.mu.Lock()
	cmd, ok := d.commands[name]
	if !ok {
		d.mu.Unlock()
		return
	}
	now := d.now()
	if len(cmd.Roles) > 0 {
		if role := ResolveRole(msg.User); !roleAllowed(role, cmd.Roles) {
			d.mu.Unlock()
			slog.Debug("command rejected: role not allowed",
				slog.String("command", name),
				slog.String("user", msg.User.Login),
				slog.String("role", string(role)))
			if telemetry.CommandsRejectedRole != nil {
				telemetry.CommandsRejectedRole.Inc()
			}
			return
		}
	}
	if cmd.Cooldown > 0 {
		tk := throttleKey{UserID: msg.User.ID, Command: name}
		if last, seen := d.ledger[tk]; seen && now.Sub(last) < cmd.Cooldown {
			d.mu.Unlock()
			slog.Debug("command rejected: cooldown",
				slog.String("command", name),
				slog.String("user", msg.User.Login),
				slog.Duration("remaining", cmd.Cooldown-now.Sub(last)))
			if telemetry.CommandsRejectedCooldown != nil {
				telemetry.CommandsRejectedCooldown.Inc()
			}
			return
		}
		if d.ledger == nil {
			d.ledger = make(map[throttleKey]time.Time)
		}
		d.ledger[tk] = now
	}
	d.mu.Unlock()

	slog.Debug("dispatching command",
		slog.String("command", name),
		slog.String("channel", msg.Channel),
		slog.String("user", msg.User.Login))
	if telemetry.CommandsDispatched != nil {
		telemetry.CommandsDispatched.Inc()
	}
	telemetry.TimeFunc(telemetry.CommandDuration, func() {
		cmd.Handler(ctx, msg.Channel, msg.User, args)
	})
}

// Commands returns a snapshot of the registry sorted by name.
func (d *Dispatcher) Commands() []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Command, 0, len(d.commands))
	for _, cmd := range d.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// EvictStale drops ledger entries older than olderThan and reports how many
// were removed. olderThan must be at least the longest registered cooldown;
// entries that old can no longer gate anything.
func (d *Dispatcher) EvictStale(olderThan time.Duration) int {
	cutoff := d.now().Add(-olderThan)
	d.mu.Lock()
	defer d.mu.Unlock()
	evicted := 0
	for tk, last := range d.ledger {
		if last.Before(cutoff) {
			delete(d.ledger, tk)
			evicted++
		}
	}
	if evicted > 0 && telemetry.ThrottleEvictions != nil {
		telemetry.ThrottleEvictions.Add(float64(evicted))
	}
	return evicted
}
