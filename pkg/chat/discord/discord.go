// Package discord wires the chat adapter interface to Discord via
// discordgo.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/vulpinegames/kubebridge/pkg/chat"
)

// Adapter implements chat.Adapter on top of a discordgo session.
type Adapter struct {
	Log zerolog.Logger

	session *discordgo.Session
	guildID string
	http    *http.Client

	onMessage func(chat.Message)
	commands  []slashCommand
}

type slashCommand struct {
	name        string
	description string
	handler     func(chat.SlashResponder)
}

// New creates an adapter for the given bot token. guildID may be empty; when
// set, slash commands register to that guild only, which syncs instantly.
func New(token, guildID string, log zerolog.Logger) (*Adapter, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

	return &Adapter{
		Log:     log,
		session: s,
		guildID: guildID,
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (a *Adapter) OnMessage(fn func(chat.Message)) {
	a.onMessage = fn
}

func (a *Adapter) RegisterSlash(name, description string, handler func(chat.SlashResponder)) error {
	a.commands = append(a.commands, slashCommand{name, description, handler})
	return nil
}

// Open connects the session and registers the queued handlers and slash
// commands.
func (a *Adapter) Open(ctx context.Context) error {
	a.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if a.onMessage == nil {
			return
		}
		a.onMessage(a.wrapMessage(m))
	})
	a.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionApplicationCommand {
			return
		}
		name := i.ApplicationCommandData().Name
		for _, c := range a.commands {
			if c.name == name {
				c.handler(&slashResponder{session: s, interaction: i.Interaction})
				return
			}
		}
	})

	if err := a.session.Open(); err != nil {
		return mapErr(err)
	}
	a.Log.Info().Str("user", a.session.State.User.Username).Msg("connected to discord")

	for _, c := range a.commands {
		if _, err := a.session.ApplicationCommandCreate(a.session.State.User.ID, a.guildID, &discordgo.ApplicationCommand{
			Name:        c.name,
			Description: c.description,
		}); err != nil {
			a.session.Close()
			return fmt.Errorf("create command %s: %w", c.name, mapErr(err))
		}
	}
	return nil
}

func (a *Adapter) Close() error {
	return a.session.Close()
}

func (a *Adapter) wrapMessage(m *discordgo.MessageCreate) chat.Message {
	author := ""
	bot := false
	if m.Author != nil {
		author = m.Author.Username
		if m.Author.GlobalName != "" {
			author = m.Author.GlobalName
		}
		bot = m.Author.Bot
	}
	if m.Member != nil && m.Member.Nick != "" {
		author = m.Member.Nick
	}

	s, msg := a.session, m.Message
	return chat.Message{
		ChannelID:      m.ChannelID,
		Author:         author,
		AuthorBot:      bot,
		Content:        m.Content,
		HasAttachments: len(m.Attachments) != 0,
		HasStickers:    len(m.StickerItems) != 0,
		Reply: func(e chat.Embed) error {
			_, err := s.ChannelMessageSendComplex(msg.ChannelID, &discordgo.MessageSend{
				Embeds:    []*discordgo.MessageEmbed{convertEmbed(e)},
				Reference: msg.Reference(),
				AllowedMentions: &discordgo.MessageAllowedMentions{
					RepliedUser: false,
				},
			})
			return mapErr(err)
		},
	}
}

func (a *Adapter) Channel(id string) (chat.Channel, error) {
	if _, err := a.session.Channel(id); err != nil {
		return nil, mapErr(err)
	}
	return &channel{session: a.session, id: id}, nil
}

func (a *Adapter) PostWebhookURL(ctx context.Context, url string, p chat.WebhookPayload) error {
	body := map[string]any{}
	if p.Content != "" {
		body["content"] = p.Content
	}
	if p.Username != "" {
		body["username"] = p.Username
	}
	if p.AvatarURL != "" {
		body["avatar_url"] = p.AvatarURL
	}
	if len(p.Embeds) != 0 {
		var es []*discordgo.MessageEmbed
		for _, e := range p.Embeds {
			es = append(es, convertEmbed(e))
		}
		body["embeds"] = es
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return chat.ErrRateLimited
	case resp.StatusCode == http.StatusForbidden:
		return chat.ErrForbidden
	case resp.StatusCode >= 400:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (a *Adapter) HTTPGetBytes(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (a *Adapter) SetPresenceWatching(text string) error {
	return mapErr(a.session.UpdateWatchStatus(0, text))
}

type channel struct {
	session *discordgo.Session
	id      string
}

func (c *channel) EditTopic(text string) error {
	_, err := c.session.ChannelEdit(c.id, &discordgo.ChannelEdit{Topic: text})
	return mapErr(err)
}

func (c *channel) GetOrCreateWebhook(name string) (chat.Webhook, error) {
	whs, err := c.session.ChannelWebhooks(c.id)
	if err != nil {
		return nil, mapErr(err)
	}
	for _, wh := range whs {
		if wh.Name == name {
			return &webhook{session: c.session, id: wh.ID, token: wh.Token}, nil
		}
	}
	wh, err := c.session.WebhookCreate(c.id, name, "")
	if err != nil {
		return nil, mapErr(err)
	}
	return &webhook{session: c.session, id: wh.ID, token: wh.Token}, nil
}

type webhook struct {
	session *discordgo.Session
	id      string
	token   string
}

func (w *webhook) Send(p chat.WebhookPayload, files ...chat.File) error {
	params := &discordgo.WebhookParams{
		Content:   p.Content,
		Username:  p.Username,
		AvatarURL: p.AvatarURL,
	}
	for _, e := range p.Embeds {
		params.Embeds = append(params.Embeds, convertEmbed(e))
	}
	for _, f := range files {
		params.Files = append(params.Files, &discordgo.File{
			Name:        f.Name,
			ContentType: f.ContentType,
			Reader:      bytes.NewReader(f.Data),
		})
	}
	_, err := w.session.WebhookExecute(w.id, w.token, false, params)
	return mapErr(err)
}

type slashResponder struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction
}

func (r *slashResponder) Respond(e chat.Embed, file *chat.File, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{convertEmbed(e)},
	}
	if file != nil {
		data.Files = []*discordgo.File{{
			Name:        file.Name,
			ContentType: file.ContentType,
			Reader:      bytes.NewReader(file.Data),
		}}
	}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return mapErr(r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}))
}

func convertEmbed(e chat.Embed) *discordgo.MessageEmbed {
	m := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
	}
	if e.Footer != "" {
		m.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	if e.ThumbnailURL != "" {
		m.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.ThumbnailURL}
	}
	if e.ImageURL != "" {
		m.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
	}
	return m
}

// mapErr converts discordgo REST errors to the adapter-neutral sentinels the
// bridge switches on.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Response != nil {
		switch rerr.Response.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", chat.ErrForbidden, err)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", chat.ErrRateLimited, err)
		}
	}
	return err
}

var _ chat.Adapter = (*Adapter)(nil)
