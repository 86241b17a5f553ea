// Package telegram adapts a Telegram bot to platform.Client.
//
// The Bot API cannot list chats or read history, so the client keeps the
// chats and recent messages it has seen in bounded LRU caches.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/tinyland-inc/autoreact/pkg/logger"
	"github.com/tinyland-inc/autoreact/pkg/platform"
)

const (
	DefaultCacheSize = 1024
	// messagesPerChat bounds the history kept for one chat.
	messagesPerChat = 100
)

// history caches chats and their most recent messages.
type history struct {
	mu       sync.Mutex
	chats    *lru.Cache[int64, platform.Chat]
	messages *lru.Cache[int64, []platform.Message]
}

func newHistory(size int) (*history, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	chats, err := lru.New[int64, platform.Chat](size)
	if err != nil {
		return nil, err
	}
	messages, err := lru.New[int64, []platform.Message](size)
	if err != nil {
		return nil, err
	}
	return &history{chats: chats, messages: messages}, nil
}

func (h *history) add(chat platform.Chat, chatID int64, msg platform.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if prev, ok := h.chats.Peek(chatID); ok {
		chat.UnreadCount = prev.UnreadCount
	}
	chat.UnreadCount++
	h.chats.Add(chatID, chat)

	msgs, _ := h.messages.Get(chatID)
	msgs = append(msgs, msg)
	if len(msgs) > messagesPerChat {
		msgs = msgs[len(msgs)-messagesPerChat:]
	}
	h.messages.Add(chatID, msgs)
}

func (h *history) chatList() []platform.Chat {
	chats := []platform.Chat{}
	for _, id := range h.chats.Keys() {
		if chat, ok := h.chats.Peek(id); ok {
			chats = append(chats, chat)
		}
	}
	return chats
}

func (h *history) chat(chatID int64) (platform.Chat, bool) {
	return h.chats.Get(chatID)
}

// recent returns up to limit of the newest messages, newest first.
func (h *history) recent(chatID int64, limit int) []platform.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs, _ := h.messages.Get(chatID)
	if limit <= 0 || limit > len(msgs) {
		limit = len(msgs)
	}
	out := make([]platform.Message, 0, limit)
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, msgs[i])
	}
	return out
}

type Client struct {
	*platform.BaseClient
	token   string
	bot     *telego.Bot
	botID   int64
	history *history
	cancel  context.CancelFunc
}

func New(token string, cacheSize int, opts ...platform.BaseClientOption) (*Client, error) {
	h, err := newHistory(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating telegram cache: %w", err)
	}
	return &Client{
		BaseClient: platform.NewBaseClient("telegram", opts...),
		token:      token,
		history:    h,
	}, nil
}

func (c *Client) Initialize(ctx context.Context, handler platform.EventHandler) error {
	c.SetHandler(handler)

	bot, err := telego.NewBot(c.token)
	if err != nil {
		return fmt.Errorf("creating telegram bot: %w", err)
	}
	me, err := bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	c.bot = bot
	c.botID = me.ID

	pollCtx, cancel := context.WithCancel(ctx)
	updates, err := bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("starting long polling: %w", err)
	}
	c.cancel = cancel
	c.SetRunning(true)

	go c.pollLoop(pollCtx, updates)

	logger.InfoCF("telegram", "Telegram bot polling", map[string]any{"username": me.Username})
	c.EmitReady()
	return nil
}

func (c *Client) Close(_ context.Context) error {
	c.SetRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *Client) pollLoop(ctx context.Context, updates <-chan telego.Update) {
	for update := range updates {
		if update.Message == nil {
			continue
		}
		chat, msg := convertMessage(update.Message, c.botID)
		c.history.add(chat, update.Message.Chat.ID, msg)
		c.HandleMessage(msg)
	}
	if ctx.Err() == nil {
		c.EmitDisconnected("update stream closed")
	}
}

func convertMessage(m *telego.Message, botID int64) (platform.Chat, platform.Message) {
	chatID := strconv.FormatInt(m.Chat.ID, 10)
	body := m.Text
	if body == "" {
		body = m.Caption
	}
	msg := platform.Message{
		ID:        strconv.Itoa(m.MessageID),
		From:      chatID,
		Author:    chatID,
		Body:      body,
		Timestamp: time.Unix(m.Date, 0),
	}
	if m.From != nil {
		msg.Author = strconv.FormatInt(m.From.ID, 10)
		msg.FromMe = m.From.ID == botID
	}
	return convertChat(m.Chat), msg
}

func convertChat(ch telego.Chat) platform.Chat {
	name := ch.Title
	if name == "" {
		name = strings.TrimSpace(ch.FirstName + " " + ch.LastName)
	}
	if name == "" {
		name = ch.Username
	}
	return platform.Chat{
		ID:      strconv.FormatInt(ch.ID, 10),
		Name:    name,
		IsGroup: ch.Type != telego.ChatTypePrivate,
	}
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("chat %s: %w", chatID, platform.ErrNotFound)
	}
	return id, nil
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "not found")
}

func (c *Client) ready() error {
	if c.bot == nil || !c.IsRunning() {
		return platform.ErrNotConnected
	}
	return nil
}

// GetChats returns the chats seen since the client started.
func (c *Client) GetChats(_ context.Context) ([]platform.Chat, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	return c.history.chatList(), nil
}

func (c *Client) GetChatByID(ctx context.Context, chatID string) (platform.Chat, error) {
	if err := c.ready(); err != nil {
		return platform.Chat{}, err
	}
	id, err := parseChatID(chatID)
	if err != nil {
		return platform.Chat{}, err
	}
	if chat, ok := c.history.chat(id); ok {
		return chat, nil
	}

	info, err := c.bot.GetChat(ctx, &telego.GetChatParams{ChatID: tu.ID(id)})
	if err != nil {
		if isNotFound(err) {
			return platform.Chat{}, fmt.Errorf("chat %s: %w", chatID, platform.ErrNotFound)
		}
		return platform.Chat{}, err
	}
	return convertChat(telego.Chat{
		ID:        info.ID,
		Type:      info.Type,
		Title:     info.Title,
		Username:  info.Username,
		FirstName: info.FirstName,
		LastName:  info.LastName,
	}), nil
}

// FetchMessages serves history from the cache of received messages.
func (c *Client) FetchMessages(_ context.Context, chatID string, limit int) ([]platform.Message, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	id, err := parseChatID(chatID)
	if err != nil {
		return nil, err
	}
	return c.history.recent(id, limit), nil
}

func (c *Client) React(ctx context.Context, msg platform.Message, emoji string) error {
	if err := c.ready(); err != nil {
		return err
	}
	if emoji == "" {
		return errors.New("empty emoji")
	}
	chatID, err := parseChatID(msg.From)
	if err != nil {
		return err
	}
	messageID, err := strconv.Atoi(msg.ID)
	if err != nil {
		return fmt.Errorf("message %s: %w", msg.ID, platform.ErrNotFound)
	}
	return c.bot.SetMessageReaction(ctx, &telego.SetMessageReactionParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
		Reaction: []telego.ReactionType{
			&telego.ReactionTypeEmoji{Type: telego.ReactionEmoji, Emoji: emoji},
		},
	})
}

var _ platform.Client = (*Client)(nil)
