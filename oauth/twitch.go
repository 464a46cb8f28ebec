package oauth

import (
	"context"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// NewTwitchConfig builds the authorization-code config for the bot account.
func NewTwitchConfig(clientID, clientSecret, redirectURI string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
		Endpoint:     endpoints.Twitch,
	}
}

// Exchange redeems an authorization code for tokens, flattening the scope
// list into the space-separated form stored alongside the token.
func Exchange(ctx context.Context, cfg *oauth2.Config, code string) (access, refresh string, expiry time.Time, scope string, err error) {
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", "", time.Time{}, "", err
	}
	return tok.AccessToken, tok.RefreshToken, tok.Expiry, scopeString(tok.Extra("scope")), nil
}

// TokenRefresher adapts cfg into a RefreshFunc that redeems a refresh token
// against the Twitch token endpoint.
func TokenRefresher(cfg *oauth2.Config) RefreshFunc {
	return func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
		tok, err := src.Token()
		if err != nil {
			return "", "", time.Time{}, "", err
		}
		return tok.AccessToken, tok.RefreshToken, tok.Expiry, scopeString(tok.Extra("scope")), nil
	}
}

// scopeString flattens the token response scope field. Twitch returns a JSON
// array; other providers return a space-separated string.
func scopeString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []any:
		parts := make([]string, 0, len(s))
		for _, p := range s {
			if str, ok := p.(string); ok {
				parts = append(parts, str)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}
