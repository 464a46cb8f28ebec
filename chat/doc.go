// Package chat wraps the Twitch IRC connection.
//
// Client joins the configured channels, converts inbound traffic into bot
// messages for the command dispatcher, and sends replies (it satisfies
// bot.Sender). An optional Recorder persists every inbound message into the
// chat_messages table.
//
// Credentials: the IRC client requires a bot username and a user OAuth token
// with chat:read/chat:edit scopes. If TWITCH_OAUTH_TOKEN is not provided, the
// process will try to reuse a stored token from the oauth_tokens table for
// provider "twitch".
package chat
