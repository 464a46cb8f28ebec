// Package bot implements the chat command layer: a registry of prefixed
// commands dispatched against inbound messages, with per-(user, command)
// cooldowns and badge-derived role gating.
package bot

import (
	"context"
	"time"
)

// Role is a coarse permission tier derived from chat badges.
type Role string

// Roles in precedence order, highest first.
const (
	RoleBroadcaster Role = "broadcaster"
	RoleModerator   Role = "moderator"
	RoleVIP         Role = "vip"
	RoleSubscriber  Role = "subscriber"
	RoleViewer      Role = "viewer"
)

// User identifies the sender of a chat message.
type User struct {
	ID          string
	Login       string
	DisplayName string
	Badges      map[string]int
}

// Message is one inbound chat line, already normalized by the transport.
type Message struct {
	ID      string
	Channel string
	User    User
	Text    string
	Self    bool // sent by the bot's own account
	Time    time.Time
}

// HandlerFunc runs a command. args is the message text after the command
// name, surrounding whitespace stripped.
type HandlerFunc func(ctx context.Context, channel string, user User, args string)

// Command is one registered chat command.
type Command struct {
	Name     string
	Handler  HandlerFunc
	Cooldown time.Duration // minimum gap per (user, command); 0 disables
	Roles    []Role        // allow-list; empty means everyone
}

// Sender delivers outbound chat messages. The IRC client satisfies it.
type Sender interface {
	Say(channel, text string)
}
