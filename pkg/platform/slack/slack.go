// Package slack adapts a Slack app running in socket mode to platform.Client.
package slack

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/tinyland-inc/autoreact/pkg/logger"
	"github.com/tinyland-inc/autoreact/pkg/platform"
)

// shortNames maps the emoji used by the starter rules to Slack reaction
// names. Anything else is passed through with surrounding colons removed.
var shortNames = map[string]string{
	"👍":  "+1",
	"❤️": "heart",
	"😍":  "heart_eyes",
	"🥰":  "smiling_face_with_3_hearts",
	"🔥":  "fire",
	"🚀":  "rocket",
	"💯":  "100",
	"👏":  "clap",
	"😂":  "joy",
	"🤣":  "rolling_on_the_floor_laughing",
	"😆":  "laughing",
	"🎉":  "tada",
}

type Client struct {
	*platform.BaseClient
	botToken string
	appToken string

	api       *slack.Client
	socket    *socketmode.Client
	botUserID string
	cancel    context.CancelFunc
}

func New(botToken, appToken string, opts ...platform.BaseClientOption) *Client {
	return &Client{
		BaseClient: platform.NewBaseClient("slack", opts...),
		botToken:   botToken,
		appToken:   appToken,
	}
}

func (c *Client) Initialize(ctx context.Context, handler platform.EventHandler) error {
	c.SetHandler(handler)

	c.api = slack.New(c.botToken, slack.OptionAppLevelToken(c.appToken))
	auth, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	c.botUserID = auth.UserID
	c.socket = socketmode.New(c.api)

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.SetRunning(true)

	go c.eventLoop(runCtx)
	go func() {
		err := c.socket.RunContext(runCtx)
		if runCtx.Err() != nil {
			return
		}
		reason := "socket mode stopped"
		if err != nil {
			reason = err.Error()
		}
		c.EmitDisconnected(reason)
	}()

	logger.InfoCF("slack", "Slack socket mode starting", map[string]any{
		"team":     auth.Team,
		"bot_user": auth.UserID,
	})
	return nil
}

func (c *Client) Close(_ context.Context) error {
	c.SetRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *Client) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.socket.Events:
			if !ok {
				return
			}
			c.handleEvent(evt)
		}
	}
}

func (c *Client) handleEvent(evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		logger.DebugC("slack", "Connecting to Slack")
	case socketmode.EventTypeConnected:
		c.EmitReady()
	case socketmode.EventTypeConnectionError:
		logger.WarnC("slack", "Slack connection error, socket mode will retry")
	case socketmode.EventTypeInvalidAuth:
		c.EmitDisconnected("invalid auth")
	case socketmode.EventTypeEventsAPI:
		if evt.Request != nil {
			c.socket.Ack(*evt.Request)
		}
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok || apiEvent.Type != slackevents.CallbackEvent {
			return
		}
		if ev, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent); ok && ev.SubType == "" {
			c.HandleMessage(messageFromEvent(ev, c.botUserID))
		}
	}
}

func messageFromEvent(ev *slackevents.MessageEvent, botUserID string) platform.Message {
	return platform.Message{
		ID:        ev.TimeStamp,
		From:      ev.Channel,
		Author:    ev.User,
		Body:      ev.Text,
		Timestamp: parseTS(ev.TimeStamp),
		FromMe:    botUserID != "" && ev.User == botUserID,
	}
}

func messageFromHistory(channelID string, m slack.Message, botUserID string) platform.Message {
	return platform.Message{
		ID:        m.Timestamp,
		From:      channelID,
		Author:    m.User,
		Body:      m.Text,
		Timestamp: parseTS(m.Timestamp),
		FromMe:    botUserID != "" && m.User == botUserID,
	}
}

func chatFromChannel(ch slack.Channel) platform.Chat {
	name := ch.Name
	if name == "" && ch.IsIM {
		name = ch.User
	}
	return platform.Chat{
		ID:          ch.ID,
		Name:        name,
		IsGroup:     !ch.IsIM,
		UnreadCount: ch.UnreadCount,
	}
}

// parseTS converts a Slack "1700000000.123456" timestamp.
func parseTS(ts string) time.Time {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return time.Time{}
	}
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9))
}

// reactionName returns the Slack name for emoji.
func reactionName(emoji string) string {
	if name, ok := shortNames[emoji]; ok {
		return name
	}
	return strings.Trim(emoji, ":")
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "channel_not_found") || strings.Contains(msg, "message_not_found")
}

func (c *Client) ready() error {
	if c.api == nil || !c.IsRunning() {
		return platform.ErrNotConnected
	}
	return nil
}

func (c *Client) GetChats(ctx context.Context) ([]platform.Chat, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	chats := []platform.Chat{}
	cursor := ""
	for {
		channels, next, err := c.api.GetConversationsContext(ctx, &slack.GetConversationsParameters{
			Types:           []string{"public_channel", "private_channel", "mpim", "im"},
			ExcludeArchived: true,
			Limit:           200,
			Cursor:          cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("listing conversations: %w", err)
		}
		for _, ch := range channels {
			chats = append(chats, chatFromChannel(ch))
		}
		if next == "" {
			return chats, nil
		}
		cursor = next
	}
}

func (c *Client) GetChatByID(ctx context.Context, chatID string) (platform.Chat, error) {
	if err := c.ready(); err != nil {
		return platform.Chat{}, err
	}
	ch, err := c.api.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: chatID})
	if err != nil {
		if isNotFound(err) {
			return platform.Chat{}, fmt.Errorf("chat %s: %w", chatID, platform.ErrNotFound)
		}
		return platform.Chat{}, err
	}
	return chatFromChannel(*ch), nil
}

func (c *Client) FetchMessages(ctx context.Context, chatID string, limit int) ([]platform.Message, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	history, err := c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: chatID,
		Limit:     limit,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("chat %s: %w", chatID, platform.ErrNotFound)
		}
		return nil, err
	}
	msgs := make([]platform.Message, 0, len(history.Messages))
	for _, m := range history.Messages {
		msgs = append(msgs, messageFromHistory(chatID, m, c.botUserID))
	}
	return msgs, nil
}

func (c *Client) React(ctx context.Context, msg platform.Message, emoji string) error {
	if err := c.ready(); err != nil {
		return err
	}
	name := reactionName(emoji)
	if name == "" {
		return errors.New("empty emoji")
	}
	err := c.api.AddReactionContext(ctx, name, slack.NewRefToMessage(msg.From, msg.ID))
	if err != nil && strings.Contains(err.Error(), "already_reacted") {
		return nil
	}
	return err
}

var _ platform.Client = (*Client)(nil)
