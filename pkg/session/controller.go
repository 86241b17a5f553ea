// Package session owns the platform client: it connects it, republishes its
// lifecycle as events, fans out inbound messages and reconnects after a
// session loss.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tinyland-inc/autoreact/pkg/events"
	"github.com/tinyland-inc/autoreact/pkg/logger"
	"github.com/tinyland-inc/autoreact/pkg/meter"
	"github.com/tinyland-inc/autoreact/pkg/platform"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultHistoryLimit   = 50
)

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("session already started")

type Options struct {
	Factory   platform.Factory
	Publisher events.Publisher
	Meter     *meter.Store

	// QRFile, when set, mirrors the pending pairing code to disk.
	QRFile         string
	ReconnectDelay time.Duration
	HistoryLimit   int
}

type subscriber struct {
	id uint64
	fn func(platform.Message)
}

// Controller is safe for concurrent use.
type Controller struct {
	opts Options

	mu         sync.RWMutex
	ctx        context.Context
	client     platform.Client
	generation uint64
	connected  bool
	qr         string
	timer      *time.Timer
	started    bool
	closed     bool

	subsMu sync.RWMutex
	subs   map[string]subscriber
	nextID uint64
}

func NewController(opts Options) *Controller {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	return &Controller{opts: opts, subs: make(map[string]subscriber)}
}

// Start creates the first client and begins initializing it. A factory error
// is returned as is; initialization failures are retried in the background.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.ctx = ctx
	c.mu.Unlock()

	client, err := c.opts.Factory()
	if err != nil {
		return fmt.Errorf("creating platform client: %w", err)
	}
	c.initialize(client)
	return nil
}

func (c *Controller) connect() {
	client, err := c.opts.Factory()
	if err != nil {
		logger.ErrorCF("session", "Failed to create platform client", map[string]any{"error": err.Error()})
		c.scheduleReconnect()
		return
	}
	c.initialize(client)
}

func (c *Controller) initialize(client platform.Client) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.generation++
	gen := c.generation
	c.client = client
	c.connected = false
	ctx := c.ctx
	c.mu.Unlock()

	logger.InfoCF("session", "Initializing platform client", map[string]any{"platform": client.Name()})

	if err := client.Initialize(ctx, c.handlerFor(gen)); err != nil {
		logger.ErrorCF("session", "Platform client initialization failed", map[string]any{
			"platform": client.Name(),
			"error":    err.Error(),
		})
		c.mu.Lock()
		if c.generation == gen {
			c.client = nil
		}
		c.mu.Unlock()
		c.closeClient(client)
		c.scheduleReconnect()
	}
}

// handlerFor drops events from clients that have since been replaced.
func (c *Controller) handlerFor(gen uint64) platform.EventHandler {
	return func(evt platform.Event) {
		c.mu.RLock()
		current := c.generation == gen && !c.closed
		c.mu.RUnlock()
		if !current {
			return
		}

		switch evt.Kind {
		case platform.EventQR:
			c.onQR(evt.QR)
		case platform.EventReady:
			c.onReady()
		case platform.EventDisconnected:
			c.onDisconnected(gen, evt.Reason)
		case platform.EventMessage:
			c.onMessage(evt.Message)
		}
	}
}

func (c *Controller) onQR(code string) {
	c.mu.Lock()
	c.qr = code
	c.mu.Unlock()

	logger.InfoC("session", "Pairing code received, scan it to log in")
	if c.opts.QRFile != "" {
		if err := writeQRFile(c.opts.QRFile, code); err != nil {
			logger.WarnCF("session", "Failed to write QR file", map[string]any{
				"path":  c.opts.QRFile,
				"error": err.Error(),
			})
		}
	}
	c.publish(events.QR(code))
}

func (c *Controller) onReady() {
	c.mu.Lock()
	c.connected = true
	c.qr = ""
	c.mu.Unlock()

	if c.opts.QRFile != "" {
		if err := os.Remove(c.opts.QRFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.DebugCF("session", "Failed to remove QR file", map[string]any{"error": err.Error()})
		}
	}
	logger.InfoC("session", "Platform client is ready")
	c.publish(events.Status(true))
}

func (c *Controller) onDisconnected(gen uint64, reason string) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	client := c.client
	c.client = nil
	c.connected = false
	c.mu.Unlock()

	logger.WarnCF("session", "Platform client disconnected", map[string]any{
		"reason":          reason,
		"reconnect_after": c.opts.ReconnectDelay.String(),
	})
	c.publish(events.Status(false))

	if client != nil {
		go c.closeClient(client)
	}
	c.scheduleReconnect()
}

func (c *Controller) onMessage(msg platform.Message) {
	if c.opts.Meter != nil {
		c.opts.Meter.RecordMessage()
	}
	if !msg.FromMe {
		c.publish(events.Message(msg))
	}

	c.subsMu.RLock()
	fns := make([]func(platform.Message), 0, len(c.subs))
	for _, sub := range c.subs {
		fns = append(fns, sub.fn)
	}
	c.subsMu.RUnlock()

	for _, fn := range fns {
		fn(msg)
	}
}

func (c *Controller) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.opts.ReconnectDelay, func() {
		if c.opts.Meter != nil {
			c.opts.Meter.RecordReconnect()
		}
		c.connect()
	})
}

func (c *Controller) closeClient(client platform.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Close(ctx); err != nil {
		logger.DebugCF("session", "Error closing platform client", map[string]any{"error": err.Error()})
	}
}

func (c *Controller) publish(e events.Event) {
	if c.opts.Publisher != nil {
		c.opts.Publisher.Publish(e)
	}
}

// Close stops reconnecting and closes the current client.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
	}
	client := c.client
	c.client = nil
	c.connected = false
	c.mu.Unlock()

	if client != nil {
		c.closeClient(client)
	}
}

// Subscribe registers fn for every inbound message under key. Registering an
// existing key replaces its handler. The returned func removes this
// registration only, so it is safe to call after a replacement.
func (c *Controller) Subscribe(key string, fn func(platform.Message)) (unsubscribe func()) {
	c.subsMu.Lock()
	c.nextID++
	id := c.nextID
	c.subs[key] = subscriber{id: id, fn: fn}
	c.subsMu.Unlock()

	return func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		if cur, ok := c.subs[key]; ok && cur.id == id {
			delete(c.subs, key)
		}
	}
}

// Subscribers returns the number of registered message handlers.
func (c *Controller) Subscribers() int {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return len(c.subs)
}

func (c *Controller) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Snapshot returns the events a newly attached dashboard needs to render the
// current state.
func (c *Controller) Snapshot() []events.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.connected {
		return []events.Event{events.Status(true)}
	}
	out := []events.Event{events.Status(false)}
	if c.qr != "" {
		out = append(out, events.QR(c.qr))
	}
	return out
}

func (c *Controller) ready() (platform.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected || c.client == nil {
		return nil, platform.ErrNotConnected
	}
	return c.client, nil
}

func (c *Controller) GetChats(ctx context.Context) ([]platform.Chat, error) {
	client, err := c.ready()
	if err != nil {
		return nil, err
	}
	chats, err := client.GetChats(ctx)
	if err != nil {
		return nil, platform.External("get chats", err)
	}
	return chats, nil
}

func (c *Controller) GetChatByID(ctx context.Context, chatID string) (platform.Chat, error) {
	client, err := c.ready()
	if err != nil {
		return platform.Chat{}, err
	}
	chat, err := client.GetChatByID(ctx, chatID)
	if err != nil {
		return platform.Chat{}, platform.External("get chat", err)
	}
	return chat, nil
}

// FindMessage looks messageID up among the most recent messages of chatID.
func (c *Controller) FindMessage(ctx context.Context, chatID, messageID string) (platform.Message, error) {
	client, err := c.ready()
	if err != nil {
		return platform.Message{}, err
	}
	msgs, err := client.FetchMessages(ctx, chatID, c.opts.HistoryLimit)
	if err != nil {
		return platform.Message{}, platform.External("fetch messages", err)
	}
	for _, msg := range msgs {
		if msg.ID == messageID {
			return msg, nil
		}
	}
	return platform.Message{}, fmt.Errorf("message %s in %s: %w", messageID, chatID, platform.ErrNotFound)
}

func (c *Controller) React(ctx context.Context, msg platform.Message, emoji string) error {
	client, err := c.ready()
	if err != nil {
		return err
	}
	return platform.External("react", client.React(ctx, msg, emoji))
}

func writeQRFile(path, code string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(code), 0o600)
}
