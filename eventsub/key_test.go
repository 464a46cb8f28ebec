package eventsub

import "testing"

func TestSubscriptionKeyCanonical(t *testing.T) {
	// Maps built in different insertion orders must derive identical keys.
	a := map[string]string{}
	a["broadcaster_user_id"] = "42"
	a["moderator_user_id"] = "7"

	b := map[string]string{}
	b["moderator_user_id"] = "7"
	b["broadcaster_user_id"] = "42"

	ka := SubscriptionKey("channel.follow", a)
	kb := SubscriptionKey("channel.follow", b)
	if ka != kb {
		t.Errorf("keys differ for equal conditions: %q vs %q", ka, kb)
	}
	want := `channel.follow:{"broadcaster_user_id":"42","moderator_user_id":"7"}`
	if ka != want {
		t.Errorf("key = %q, want %q", ka, want)
	}
}

func TestSubscriptionKeyLiteral(t *testing.T) {
	got := SubscriptionKey("stream.online", map[string]string{"broadcaster_user_id": "1"})
	want := `stream.online:{"broadcaster_user_id":"1"}`
	if got != want {
		t.Errorf("key = %q, want %q", got, want)
	}
}

func TestSubscriptionKeyEmptyCondition(t *testing.T) {
	if got, want := SubscriptionKey("stream.online", nil), "stream.online:{}"; got != want {
		t.Errorf("nil condition key = %q, want %q", got, want)
	}
	if got, want := SubscriptionKey("stream.online", map[string]string{}), "stream.online:{}"; got != want {
		t.Errorf("empty condition key = %q, want %q", got, want)
	}
}

func TestSubscriptionKeyDistinguishes(t *testing.T) {
	tests := []struct {
		name   string
		typA   string
		condA  map[string]string
		typB   string
		condB  map[string]string
	}{
		{
			name:  "different types",
			typA:  "stream.online",
			condA: map[string]string{"broadcaster_user_id": "1"},
			typB:  "stream.offline",
			condB: map[string]string{"broadcaster_user_id": "1"},
		},
		{
			name:  "different values",
			typA:  "stream.online",
			condA: map[string]string{"broadcaster_user_id": "1"},
			typB:  "stream.online",
			condB: map[string]string{"broadcaster_user_id": "2"},
		},
		{
			name:  "different keys",
			typA:  "stream.online",
			condA: map[string]string{"broadcaster_user_id": "1"},
			typB:  "stream.online",
			condB: map[string]string{"to_broadcaster_user_id": "1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if SubscriptionKey(tt.typA, tt.condA) == SubscriptionKey(tt.typB, tt.condB) {
				t.Error("distinct subscriptions derived the same key")
			}
		})
	}
}
