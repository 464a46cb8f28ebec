package bot

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"
)

var (
	testAlice = User{ID: "100", Login: "alice", DisplayName: "Alice"}
	testBob   = User{ID: "200", Login: "bob", DisplayName: "Bob", Badges: map[string]int{"moderator": 1}}
)

// recordingSender captures outbound lines as "text:channel" for easy asserts.
type recordingSender struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordingSender) Say(channel, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, text+":"+channel)
}

func (r *recordingSender) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func chatMsg(u User, text string) Message {
	return Message{ID: "msg-1", Channel: "#chan", User: u, Text: text, Time: time.Now()}
}

func TestDispatchIgnoresSelfAndUnprefixed(t *testing.T) {
	d := NewDispatcher()
	calls := 0
	d.Register(Command{Name: "ping", Handler: func(context.Context, string, User, string) { calls++ }})

	tests := []struct {
		name string
		msg  Message
	}{
		{"self message", Message{Channel: "#chan", User: testAlice, Text: "!ping", Self: true}},
		{"no prefix", chatMsg(testAlice, "ping")},
		{"empty text", chatMsg(testAlice, "")},
		{"bare prefix", chatMsg(testAlice, "!")},
		{"prefix then spaces", chatMsg(testAlice, "!   ")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d.Dispatch(context.Background(), tt.msg)
			if calls != 0 {
				t.Fatalf("handler invoked for %q", tt.msg.Text)
			}
		})
	}
}

func TestDispatchParsesNameAndArgs(t *testing.T) {
	d := NewDispatcher()
	var gotArgs string
	calls := 0
	d.Register(Command{Name: "echo", Handler: func(_ context.Context, _ string, _ User, args string) {
		gotArgs = args
		calls++
	}})

	tests := []struct {
		text string
		args string
	}{
		{"!echo", ""},
		{"!ECHO hello", "hello"},
		{"!echo   hello   world  ", "hello   world"},
		{"!  echo hi", "hi"},
	}
	for _, tt := range tests {
		calls = 0
		d.Dispatch(context.Background(), chatMsg(testAlice, tt.text))
		if calls != 1 {
			t.Fatalf("dispatch %q: got %d invocations, want 1", tt.text, calls)
		}
		if gotArgs != tt.args {
			t.Errorf("dispatch %q: args = %q, want %q", tt.text, gotArgs, tt.args)
		}
	}
}

func TestDispatchUnknownCommandIsSilent(t *testing.T) {
	d := NewDispatcher()
	calls := 0
	d.Register(Command{Name: "ping", Handler: func(context.Context, string, User, string) { calls++ }})

	d.Dispatch(context.Background(), chatMsg(testAlice, "!quack"))
	if calls != 0 {
		t.Fatalf("unknown command reached a handler")
	}
}

func TestCooldownThrottlesPerUser(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := NewDispatcher()
	d.Now = func() time.Time { return now }

	calls := 0
	d.Register(Command{Name: "ping", Cooldown: time.Second, Handler: func(context.Context, string, User, string) { calls++ }})

	d.Dispatch(context.Background(), chatMsg(testAlice, "!ping"))
	d.Dispatch(context.Background(), chatMsg(testAlice, "!ping"))
	if calls != 1 {
		t.Fatalf("back-to-back dispatch: got %d invocations, want 1", calls)
	}

	now = now.Add(999 * time.Millisecond)
	d.Dispatch(context.Background(), chatMsg(testAlice, "!ping"))
	if calls != 1 {
		t.Fatalf("dispatch inside cooldown: got %d invocations, want 1", calls)
	}

	now = now.Add(1 * time.Millisecond) // exactly one cooldown since the invocation
	d.Dispatch(context.Background(), chatMsg(testAlice, "!ping"))
	if calls != 2 {
		t.Fatalf("dispatch after cooldown: got %d invocations, want 2", calls)
	}

	// Another user has an independent window.
	d.Dispatch(context.Background(), chatMsg(testBob, "!ping"))
	if calls != 3 {
		t.Fatalf("other user throttled: got %d invocations, want 3", calls)
	}
}

func TestCooldownRejectionLeavesLedgerUntouched(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := NewDispatcher()
	d.Now = func() time.Time { return now }

	calls := 0
	d.Register(Command{Name: "ping", Cooldown: time.Second, Handler: func(context.Context, string, User, string) { calls++ }})

	d.Dispatch(context.Background(), chatMsg(testAlice, "!ping"))
	now = now.Add(900 * time.Millisecond)
	d.Dispatch(context.Background(), chatMsg(testAlice, "!ping")) // rejected
	// 1100ms since the accepted invocation; if the rejection had stamped the
	// ledger only 200ms would have elapsed and this would be throttled too.
	now = now.Add(200 * time.Millisecond)
	d.Dispatch(context.Background(), chatMsg(testAlice, "!ping"))
	if calls != 2 {
		t.Fatalf("got %d invocations, want 2", calls)
	}
}

func TestNoCooldownCommandsSkipLedger(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := NewDispatcher()
	d.Now = func() time.Time { return now }

	calls := 0
	d.Register(Command{Name: "hi", Handler: func(context.Context, string, User, string) { calls++ }})
	for i := 0; i < 3; i++ {
		d.Dispatch(context.Background(), chatMsg(testAlice, "!hi"))
	}
	if calls != 3 {
		t.Fatalf("got %d invocations, want 3", calls)
	}

	now = now.Add(time.Hour)
	if n := d.EvictStale(time.Minute); n != 0 {
		t.Fatalf("evicted %d entries from a ledger that should be empty", n)
	}
}

func TestRoleGatedCommand(t *testing.T) {
	d := NewDispatcher()
	calls := 0
	d.Register(Command{
		Name:    "modonly",
		Roles:   []Role{RoleModerator},
		Handler: func(context.Context, string, User, string) { calls++ },
	})

	d.Dispatch(context.Background(), chatMsg(testAlice, "!modonly"))
	if calls != 0 {
		t.Fatalf("viewer invoked a moderator-only command")
	}
	d.Dispatch(context.Background(), chatMsg(testBob, "!modonly"))
	if calls != 1 {
		t.Fatalf("moderator rejected: got %d invocations, want 1", calls)
	}
}

func TestRegisterReplacesByName(t *testing.T) {
	d := NewDispatcher()
	s := &recordingSender{}
	d.Register(Command{Name: "ping", Handler: func(_ context.Context, ch string, _ User, _ string) { s.Say(ch, "old") }})
	d.Register(Command{Name: "PING", Handler: func(_ context.Context, ch string, _ User, _ string) { s.Say(ch, "new") }})

	d.Dispatch(context.Background(), chatMsg(testAlice, "!ping"))
	if got := s.sent(); !reflect.DeepEqual(got, []string{"new:#chan"}) {
		t.Fatalf("sent = %v, want [new:#chan]", got)
	}
	cmds := d.Commands()
	if len(cmds) != 1 || cmds[0].Name != "ping" {
		t.Fatalf("registry = %+v, want a single lowercased ping entry", cmds)
	}
}

func TestRegisterEmptyNameIgnored(t *testing.T) {
	d := NewDispatcher()
	d.Register(Command{Name: "", Handler: func(context.Context, string, User, string) {}})
	if got := d.Commands(); len(got) != 0 {
		t.Fatalf("registry = %+v, want empty", got)
	}
}

func TestCommandsSortedByName(t *testing.T) {
	d := NewDispatcher()
	for _, name := range []string{"uptime", "commands", "ping"} {
		d.Register(Command{Name: name, Handler: func(context.Context, string, User, string) {}})
	}
	var names []string
	for _, cmd := range d.Commands() {
		names = append(names, cmd.Name)
	}
	if want := []string{"commands", "ping", "uptime"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
}

func TestEndToEndPingAndModOnly(t *testing.T) {
	d := NewDispatcher()
	s := &recordingSender{}
	d.Register(Command{Name: "ping", Cooldown: time.Second, Handler: func(_ context.Context, ch string, _ User, _ string) {
		s.Say(ch, "pong")
	}})
	d.Register(Command{Name: "modonly", Roles: []Role{RoleModerator}, Handler: func(_ context.Context, ch string, _ User, _ string) {
		s.Say(ch, "mod")
	}})

	d.Dispatch(context.Background(), chatMsg(testAlice, "!ping"))
	d.Dispatch(context.Background(), chatMsg(testAlice, "!ping"))
	if got := s.sent(); !reflect.DeepEqual(got, []string{"pong:#chan"}) {
		t.Fatalf("after double ping: sent = %v, want [pong:#chan]", got)
	}

	d.Dispatch(context.Background(), chatMsg(testAlice, "!modonly"))
	if got := s.sent(); len(got) != 1 {
		t.Fatalf("viewer modonly produced output: %v", got)
	}
	d.Dispatch(context.Background(), chatMsg(testBob, "!modonly"))
	if got := s.sent(); !reflect.DeepEqual(got, []string{"pong:#chan", "mod:#chan"}) {
		t.Fatalf("sent = %v, want [pong:#chan mod:#chan]", got)
	}
}

func TestEvictStale(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := NewDispatcher()
	d.Now = func() time.Time { return now }

	calls := 0
	d.Register(Command{Name: "ping", Cooldown: time.Second, Handler: func(context.Context, string, User, string) { calls++ }})

	d.Dispatch(context.Background(), chatMsg(testAlice, "!ping"))
	now = now.Add(30 * time.Minute)
	d.Dispatch(context.Background(), chatMsg(testBob, "!ping"))

	now = now.Add(31 * time.Minute) // alice's entry is 61m old, bob's 31m
	if n := d.EvictStale(time.Hour); n != 1 {
		t.Fatalf("evicted %d entries, want 1", n)
	}
	if n := d.EvictStale(time.Hour); n != 0 {
		t.Fatalf("second sweep evicted %d entries, want 0", n)
	}
	d.Dispatch(context.Background(), chatMsg(testAlice, "!ping"))
	if calls != 3 {
		t.Fatalf("got %d invocations, want 3", calls)
	}
}

func TestHandlerMayReenterDispatcher(t *testing.T) {
	d := NewDispatcher()
	registered := -1
	d.Register(Command{Name: "list", Handler: func(context.Context, string, User, string) {
		registered = len(d.Commands())
	}})
	d.Dispatch(context.Background(), chatMsg(testAlice, "!list"))
	if registered != 1 {
		t.Fatalf("re-entrant Commands() saw %d entries, want 1", registered)
	}
}
