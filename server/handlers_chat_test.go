package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/onnwee/chat-warden/testutil"
)

func TestHandleChatRecentWithoutDB(t *testing.T) {
	h := NewHandlers(context.Background(), Deps{})

	req := httptest.NewRequest(http.MethodGet, "/chat/recent?channel=somechannel", nil)
	rr := httptest.NewRecorder()
	h.HandleChatRecent(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a database, got %d", rr.Code)
	}
}

func TestHandleChatRecentMissingChannel(t *testing.T) {
	database := testutil.SetupTestDB(t)
	h := NewHandlers(context.Background(), Deps{DB: database})

	req := httptest.NewRequest(http.MethodGet, "/chat/recent", nil)
	rr := httptest.NewRecorder()
	h.HandleChatRecent(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without channel, got %d", rr.Code)
	}
}

func TestHandleChatRecent(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	if _, err := database.ExecContext(ctx, "DELETE FROM chat_messages WHERE channel IN ('somechannel', 'otherchannel')"); err != nil {
		t.Fatalf("failed to clear chat_messages: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		_, err := database.ExecContext(ctx,
			`INSERT INTO chat_messages (channel, user_id, username, message, badges, color, sent_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			"somechannel", fmt.Sprintf("u%d", i), fmt.Sprintf("viewer%d", i),
			fmt.Sprintf("message %d", i), "subscriber:1,", "#FF0000", base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("failed to insert message: %v", err)
		}
	}
	// A row for another channel must not leak into the result.
	if _, err := database.ExecContext(ctx,
		`INSERT INTO chat_messages (channel, user_id, username, message, badges, color, sent_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		"otherchannel", "u9", "viewer9", "other message", "", "", base); err != nil {
		t.Fatalf("failed to insert message: %v", err)
	}

	h := NewHandlers(ctx, Deps{DB: database})

	// The # prefix and upper case are normalized away.
	req := httptest.NewRequest(http.MethodGet, "/chat/recent?channel=%23SomeChannel", nil)
	rr := httptest.NewRecorder()
	h.HandleChatRecent(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var msgs []struct {
		Username string    `json:"username"`
		UserID   string    `json:"user_id"`
		Message  string    `json:"message"`
		SentAt   time.Time `json:"sent_at"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&msgs); err != nil {
		t.Fatalf("failed to decode messages: %v", err)
	}

	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	// Newest first
	if msgs[0].Message != "message 2" || msgs[2].Message != "message 0" {
		t.Errorf("expected newest-first ordering, got %q ... %q", msgs[0].Message, msgs[2].Message)
	}
	if msgs[0].Username != "viewer2" || msgs[0].UserID != "u2" {
		t.Errorf("unexpected sender on newest message: %+v", msgs[0])
	}
}

func TestHandleChatRecentLimit(t *testing.T) {
	database := testutil.SetupTestDB(t)
	ctx := context.Background()

	if _, err := database.ExecContext(ctx, "DELETE FROM chat_messages WHERE channel='limitchannel'"); err != nil {
		t.Fatalf("failed to clear chat_messages: %v", err)
	}
	for i := 0; i < 5; i++ {
		_, err := database.ExecContext(ctx,
			`INSERT INTO chat_messages (channel, user_id, username, message, badges, color, sent_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			"limitchannel", "u1", "viewer1", fmt.Sprintf("message %d", i), "", "", time.Now().UTC())
		if err != nil {
			t.Fatalf("failed to insert message: %v", err)
		}
	}

	h := NewHandlers(ctx, Deps{DB: database})
	req := httptest.NewRequest(http.MethodGet, "/chat/recent?channel=limitchannel&limit=2", nil)
	rr := httptest.NewRecorder()
	h.HandleChatRecent(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var msgs []json.RawMessage
	if err := json.NewDecoder(rr.Body).Decode(&msgs); err != nil {
		t.Fatalf("failed to decode messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("expected limit to cap results at 2, got %d", len(msgs))
	}
}
