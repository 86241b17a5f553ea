package platform

import (
	"strings"
	"sync"
	"sync/atomic"
)

// BaseClientOption is a functional option for configuring a BaseClient.
type BaseClientOption func(*BaseClient)

// WithAllowList restricts delivered messages to the given chat or sender ids.
// An empty list allows everything.
func WithAllowList(ids []string) BaseClientOption {
	return func(c *BaseClient) { c.allowList = ids }
}

// BaseClient carries the state every adapter shares: the connection flag,
// the event handler and the allow list.
type BaseClient struct {
	name      string
	running   atomic.Bool
	ready     atomic.Bool
	allowList []string

	mu      sync.RWMutex
	handler EventHandler
}

func NewBaseClient(name string, opts ...BaseClientOption) *BaseClient {
	bc := &BaseClient{name: name}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

func (c *BaseClient) Name() string {
	return c.name
}

func (c *BaseClient) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseClient) SetRunning(running bool) {
	c.running.Store(running)
}

func (c *BaseClient) IsReady() bool {
	return c.ready.Load()
}

func (c *BaseClient) SetHandler(handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// IsAllowed reports whether a message from chatID/senderID passes the allow list.
// Entries may carry a leading "@" or "+".
func (c *BaseClient) IsAllowed(chatID, senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}
	for _, allowed := range c.allowList {
		trimmed := strings.TrimLeft(allowed, "@+")
		if chatID == allowed || senderID == allowed || chatID == trimmed || senderID == trimmed {
			return true
		}
	}
	return false
}

func (c *BaseClient) emit(evt Event) {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h != nil {
		h(evt)
	}
}

func (c *BaseClient) EmitQR(code string) {
	c.emit(Event{Kind: EventQR, QR: code})
}

func (c *BaseClient) EmitReady() {
	c.ready.Store(true)
	c.emit(Event{Kind: EventReady})
}

// EmitDisconnected signals a lost session once; repeated calls while already
// disconnected are ignored.
func (c *BaseClient) EmitDisconnected(reason string) {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	c.ready.Store(false)
	c.emit(Event{Kind: EventDisconnected, Reason: reason})
}

// HandleMessage delivers an inbound message if it passes the allow list.
// The client's own messages always pass.
func (c *BaseClient) HandleMessage(msg Message) {
	if !msg.FromMe && !c.IsAllowed(msg.From, msg.Author) {
		return
	}
	c.emit(Event{Kind: EventMessage, Message: msg})
}
