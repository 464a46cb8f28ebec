// Package twitchapi contains minimal helpers to interact with Twitch Helix APIs
// for user resolution, live-stream lookups, and EventSub webhook subscription
// management, using an app access token.
package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// HelixClient provides the Helix calls the bot and the subscription manager need.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client
}

// APIError is returned for non-2xx Helix responses so callers can branch on status.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twitch api: %s: %s", e.Status, e.Body)
}

// User is a Helix users entry.
type User struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// Stream is a Helix streams entry; present only while the channel is live.
type Stream struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	UserLogin   string    `json:"user_login"`
	GameName    string    `json:"game_name"`
	Title       string    `json:"title"`
	ViewerCount int       `json:"viewer_count"`
	StartedAt   time.Time `json:"started_at"`
}

// EventSubParams describes a webhook subscription to create.
type EventSubParams struct {
	Type      string
	Version   string
	Condition map[string]string
	Callback  string
	Secret    string
}

// EventSubSubscription is a remote subscription descriptor.
type EventSubSubscription struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	Type      string            `json:"type"`
	Version   string            `json:"version"`
	Condition map[string]string `json:"condition"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Cost      int               `json:"cost"`
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) do(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Response, error) {
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, "https://api.twitch.tv"+path, body)
	if err != nil {
		return nil, err
	}
	if q != nil {
		req.URL.RawQuery = q.Encode()
	}
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := hc.http().Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		closeBody(resp)
		return nil, &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(b)}
	}
	return resp, nil
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}

// GetUsers resolves up to 100 login names to user records.
func (hc *HelixClient) GetUsers(ctx context.Context, logins ...string) ([]User, error) {
	if len(logins) == 0 {
		return nil, fmt.Errorf("no logins given")
	}
	q := url.Values{}
	for _, l := range logins {
		q.Add("login", l)
	}
	resp, err := hc.do(ctx, http.MethodGet, "/helix/users", q, nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	var body struct {
		Data []User `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	users, err := hc.GetUsers(ctx, login)
	if err != nil {
		return "", err
	}
	if len(users) == 0 {
		return "", fmt.Errorf("user not found")
	}
	return users[0].ID, nil
}

// GetStreams returns the live stream for a login, or an empty slice when offline.
func (hc *HelixClient) GetStreams(ctx context.Context, userLogin string) ([]Stream, error) {
	if userLogin == "" {
		return nil, fmt.Errorf("userLogin empty")
	}
	q := url.Values{}
	q.Set("user_login", userLogin)
	resp, err := hc.do(ctx, http.MethodGet, "/helix/streams", q, nil)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	var body struct {
		Data []Stream `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// CreateEventSubSubscription registers a webhook transport subscription and returns
// the descriptors Twitch reports for it.
func (hc *HelixClient) CreateEventSubSubscription(ctx context.Context, params EventSubParams) ([]EventSubSubscription, error) {
	if params.Type == "" {
		return nil, fmt.Errorf("subscription type empty")
	}
	version := params.Version
	if version == "" {
		version = "1"
	}
	condition := params.Condition
	if condition == nil {
		condition = map[string]string{}
	}
	payload := struct {
		Type      string            `json:"type"`
		Version   string            `json:"version"`
		Condition map[string]string `json:"condition"`
		Transport struct {
			Method   string `json:"method"`
			Callback string `json:"callback"`
			Secret   string `json:"secret"`
		} `json:"transport"`
	}{Type: params.Type, Version: version, Condition: condition}
	payload.Transport.Method = "webhook"
	payload.Transport.Callback = params.Callback
	payload.Transport.Secret = params.Secret

	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp, err := hc.do(ctx, http.MethodPost, "/helix/eventsub/subscriptions", nil, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	var body struct {
		Data []EventSubSubscription `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// ListEventSubSubscriptions returns all subscriptions, optionally filtered by type,
// following pagination cursors.
func (hc *HelixClient) ListEventSubSubscriptions(ctx context.Context, typ string) ([]EventSubSubscription, error) {
	var out []EventSubSubscription
	cursor := ""
	for {
		q := url.Values{}
		if typ != "" {
			q.Set("type", typ)
		}
		if cursor != "" {
			q.Set("after", cursor)
		}
		resp, err := hc.do(ctx, http.MethodGet, "/helix/eventsub/subscriptions", q, nil)
		if err != nil {
			return nil, err
		}
		var body struct {
			Data       []EventSubSubscription `json:"data"`
			Pagination struct {
				Cursor string `json:"cursor"`
			} `json:"pagination"`
		}
		err = json.NewDecoder(resp.Body).Decode(&body)
		closeBody(resp)
		if err != nil {
			return nil, err
		}
		out = append(out, body.Data...)
		if body.Pagination.Cursor == "" {
			return out, nil
		}
		cursor = body.Pagination.Cursor
	}
}

// DeleteEventSubSubscription removes a subscription by remote id.
func (hc *HelixClient) DeleteEventSubSubscription(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("subscription id empty")
	}
	q := url.Values{}
	q.Set("id", id)
	resp, err := hc.do(ctx, http.MethodDelete, "/helix/eventsub/subscriptions", q, nil)
	if err != nil {
		return err
	}
	closeBody(resp)
	return nil
}
