// Package discord adapts a Discord bot gateway session to platform.Client.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/tinyland-inc/autoreact/pkg/logger"
	"github.com/tinyland-inc/autoreact/pkg/platform"
)

const intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent

type Client struct {
	*platform.BaseClient
	token   string
	session *discordgo.Session
	botID   string
}

func New(token string, opts ...platform.BaseClientOption) *Client {
	return &Client{
		BaseClient: platform.NewBaseClient("discord", opts...),
		token:      token,
	}
}

func (c *Client) Initialize(_ context.Context, handler platform.EventHandler) error {
	c.SetHandler(handler)

	session, err := discordgo.New("Bot " + c.token)
	if err != nil {
		return fmt.Errorf("creating discord session: %w", err)
	}
	session.Identify.Intents = intents
	// The session controller owns reconnects.
	session.ShouldReconnectOnError = false

	session.AddHandler(c.onReady)
	session.AddHandler(c.onDisconnect)
	session.AddHandler(c.onMessageCreate)

	c.session = session
	c.SetRunning(true)
	if err := session.Open(); err != nil {
		c.SetRunning(false)
		return fmt.Errorf("opening discord gateway: %w", err)
	}
	return nil
}

func (c *Client) Close(_ context.Context) error {
	c.SetRunning(false)
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}

func (c *Client) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User != nil {
		c.botID = r.User.ID
	}
	logger.InfoCF("discord", "Discord gateway ready", map[string]any{
		"guilds": len(r.Guilds),
	})
	c.EmitReady()
}

func (c *Client) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	c.EmitDisconnected("gateway disconnected")
}

func (c *Client) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil {
		return
	}
	c.HandleMessage(convertMessage(m.Message, c.botID))
}

func convertMessage(m *discordgo.Message, botID string) platform.Message {
	msg := platform.Message{
		ID:        m.ID,
		From:      m.ChannelID,
		Body:      m.Content,
		Timestamp: m.Timestamp,
	}
	if m.Author != nil {
		msg.Author = m.Author.ID
		msg.FromMe = botID != "" && m.Author.ID == botID
	}
	return msg
}

func convertChannel(ch *discordgo.Channel) platform.Chat {
	name := ch.Name
	if name == "" && len(ch.Recipients) > 0 {
		names := make([]string, 0, len(ch.Recipients))
		for _, u := range ch.Recipients {
			names = append(names, u.Username)
		}
		name = strings.Join(names, ", ")
	}
	return platform.Chat{
		ID:      ch.ID,
		Name:    name,
		IsGroup: ch.Type != discordgo.ChannelTypeDM,
	}
}

func isTextChannel(ch *discordgo.Channel) bool {
	switch ch.Type {
	case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeDM, discordgo.ChannelTypeGroupDM:
		return true
	}
	return false
}

func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}

func (c *Client) ready() error {
	if c.session == nil || !c.IsReady() {
		return platform.ErrNotConnected
	}
	return nil
}

func (c *Client) GetChats(ctx context.Context) ([]platform.Chat, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	chats := []platform.Chat{}
	for _, guild := range c.session.State.Guilds {
		channels, err := c.session.GuildChannels(guild.ID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("listing channels of guild %s: %w", guild.ID, err)
		}
		for _, ch := range channels {
			if isTextChannel(ch) {
				chats = append(chats, convertChannel(ch))
			}
		}
	}

	dms, err := c.session.UserChannels(discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("listing direct messages: %w", err)
	}
	for _, ch := range dms {
		chats = append(chats, convertChannel(ch))
	}
	return chats, nil
}

func (c *Client) GetChatByID(ctx context.Context, chatID string) (platform.Chat, error) {
	if err := c.ready(); err != nil {
		return platform.Chat{}, err
	}
	ch, err := c.session.Channel(chatID, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return platform.Chat{}, fmt.Errorf("chat %s: %w", chatID, platform.ErrNotFound)
		}
		return platform.Chat{}, err
	}
	return convertChannel(ch), nil
}

func (c *Client) FetchMessages(ctx context.Context, chatID string, limit int) ([]platform.Message, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	// Discord caps a single page at 100.
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	raw, err := c.session.ChannelMessages(chatID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("chat %s: %w", chatID, platform.ErrNotFound)
		}
		return nil, err
	}
	msgs := make([]platform.Message, 0, len(raw))
	for _, m := range raw {
		msgs = append(msgs, convertMessage(m, c.botID))
	}
	return msgs, nil
}

func (c *Client) React(ctx context.Context, msg platform.Message, emoji string) error {
	if err := c.ready(); err != nil {
		return err
	}
	if emoji == "" {
		return errors.New("empty emoji")
	}
	return c.session.MessageReactionAdd(msg.From, msg.ID, emoji, discordgo.WithContext(ctx))
}

var _ platform.Client = (*Client)(nil)
