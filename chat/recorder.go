package chat

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// Recorder persists inbound chat messages into the chat_messages table.
type Recorder struct {
	DB *sql.DB
}

// Record inserts one message. Failures are logged, never returned; losing a
// chat line must not disturb dispatch. Safe to call on a nil receiver.
func (r *Recorder) Record(ctx context.Context, m twitch.PrivateMessage) {
	if r == nil || r.DB == nil {
		return
	}
	badges := ""
	if len(m.User.Badges) > 0 {
		for k, v := range m.User.Badges {
			badges += k + ":" + fmt.Sprintf("%v", v) + ","
		}
	}
	sentAt := m.Time
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	if _, err := r.DB.ExecContext(ctx,
		`INSERT INTO chat_messages (channel, user_id, username, message, badges, color, sent_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.Channel, m.User.ID, m.User.Name, m.Message, badges, m.User.Color, sentAt); err != nil {
		slog.Error("failed to insert chat message", slog.Any("err", err))
	}
}
