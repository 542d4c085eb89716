// Package chat defines the thin chat-platform interface the bridge engine
// depends on. The engine has no other coupling to the platform; swap the SDK
// by providing a different Adapter.
package chat

import (
	"context"
	"errors"
)

var (
	// ErrForbidden is returned when the platform denies the bot permission
	// for an operation (topic edits, webhook management).
	ErrForbidden = errors.New("missing permissions")

	// ErrRateLimited is returned when the platform asks us to back off.
	ErrRateLimited = errors.New("rate limited")
)

// Embed is a rich message card.
type Embed struct {
	Title        string
	Description  string
	Color        int
	Footer       string
	ThumbnailURL string
	ImageURL     string
}

// File is an attachment uploaded alongside a message.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// WebhookPayload is a message posted through a webhook, optionally as a
// synthetic user with a custom name and avatar.
type WebhookPayload struct {
	Content   string
	Username  string
	AvatarURL string
	Embeds    []Embed
}

// Message is an inbound channel message.
type Message struct {
	ChannelID      string
	Author         string // display name
	AuthorBot      bool
	Content        string
	HasAttachments bool
	HasStickers    bool

	// Reply sends an embed reply to this message without mentioning the
	// author. Nil when the platform cannot reply.
	Reply func(e Embed) error
}

// SlashResponder answers a single slash-command invocation.
type SlashResponder interface {
	// Respond sends the command response. file may be nil; when set, the
	// embed's ImageURL can reference it as attachment://<name>.
	Respond(e Embed, file *File, ephemeral bool) error
}

// Channel is a text channel the bot can manage.
type Channel interface {
	// EditTopic sets the channel topic.
	EditTopic(text string) error

	// GetOrCreateWebhook finds a channel webhook with the given name,
	// creating it if missing.
	GetOrCreateWebhook(name string) (Webhook, error)
}

// Webhook posts messages as a synthetic user.
type Webhook interface {
	Send(p WebhookPayload, files ...File) error
}

// Adapter is the platform surface the bridge uses.
type Adapter interface {
	// Open connects to the platform. Handlers must be registered before.
	Open(ctx context.Context) error
	Close() error

	// OnMessage registers the inbound message handler.
	OnMessage(fn func(Message))

	// RegisterSlash registers a slash command.
	RegisterSlash(name, description string, handler func(SlashResponder)) error

	// Channel resolves a channel by id.
	Channel(id string) (Channel, error)

	// PostWebhookURL posts directly to a configured webhook URL.
	PostWebhookURL(ctx context.Context, url string, p WebhookPayload) error

	// HTTPGetBytes fetches a URL (avatars) using the adapter's HTTP client.
	HTTPGetBytes(ctx context.Context, url string) ([]byte, error)

	// SetPresenceWatching sets the bot presence to "watching <text>".
	SetPresenceWatching(text string) error
}
