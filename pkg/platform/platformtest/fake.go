// Package platformtest provides an in-memory platform.Client for tests.
package platformtest

import (
	"context"
	"errors"
	"sync"

	"github.com/tinyland-inc/autoreact/pkg/platform"
)

// Reaction records one React call.
type Reaction struct {
	Message platform.Message
	Emoji   string
}

// Client is a scriptable fake. Chats and Messages are served back verbatim;
// ReactErr, when set, is returned from every React call.
type Client struct {
	*platform.BaseClient

	mu        sync.Mutex
	chats     []platform.Chat
	messages  map[string][]platform.Message
	reactions []Reaction
	closed    int
	inits     int

	ReactErr   error
	InitErr    error
	AutoReady  bool
	ReactBlock chan struct{}
}

func New() *Client {
	return &Client{
		BaseClient: platform.NewBaseClient("fake"),
		messages:   make(map[string][]platform.Message),
		AutoReady:  true,
	}
}

// Factory returns a platform.Factory that always hands out c.
func (c *Client) Factory() platform.Factory {
	return func() (platform.Client, error) { return c, nil }
}

func (c *Client) Initialize(_ context.Context, handler platform.EventHandler) error {
	c.mu.Lock()
	c.inits++
	err := c.InitErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.SetHandler(handler)
	c.SetRunning(true)
	if c.AutoReady {
		c.EmitReady()
	}
	return nil
}

func (c *Client) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *Client) AddChat(chat platform.Chat, msgs ...platform.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chats = append(c.chats, chat)
	c.messages[chat.ID] = append(c.messages[chat.ID], msgs...)
}

func (c *Client) GetChats(_ context.Context) ([]platform.Chat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]platform.Chat, len(c.chats))
	copy(out, c.chats)
	return out, nil
}

func (c *Client) GetChatByID(_ context.Context, chatID string) (platform.Chat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, chat := range c.chats {
		if chat.ID == chatID {
			return chat, nil
		}
	}
	return platform.Chat{}, platform.ErrNotFound
}

func (c *Client) FetchMessages(_ context.Context, chatID string, limit int) ([]platform.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs, ok := c.messages[chatID]
	if !ok {
		return nil, platform.ErrNotFound
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]platform.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (c *Client) React(ctx context.Context, msg platform.Message, emoji string) error {
	if c.ReactBlock != nil {
		select {
		case <-c.ReactBlock:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReactErr != nil {
		return c.ReactErr
	}
	if emoji == "" {
		return errors.New("empty emoji")
	}
	c.reactions = append(c.reactions, Reaction{Message: msg, Emoji: emoji})
	return nil
}

// SetReactErr changes the error returned by subsequent React calls.
func (c *Client) SetReactErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ReactErr = err
}

// SetInitErr changes the error returned by subsequent Initialize calls.
func (c *Client) SetInitErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.InitErr = err
}

// Reactions returns a copy of all successful React calls.
func (c *Client) Reactions() []Reaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Reaction, len(c.reactions))
	copy(out, c.reactions)
	return out
}

func (c *Client) Inits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inits
}

func (c *Client) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Deliver pushes an inbound message through the client's event handler.
func (c *Client) Deliver(msg platform.Message) {
	c.HandleMessage(msg)
}
