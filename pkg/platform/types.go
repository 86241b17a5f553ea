package platform

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConnected is returned when an operation needs a ready session.
	ErrNotConnected = errors.New("platform client not connected")
	// ErrNotFound is returned when a referenced chat or message does not exist.
	ErrNotFound = errors.New("not found")
)

// ExternalError wraps a failure reported by the messaging platform
// (network, rate limit, permission).
type ExternalError struct {
	Op  string
	Err error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

// External wraps err as an ExternalError unless it already is one or is a
// sentinel that callers map to a distinct status.
func External(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotConnected) || errors.Is(err, ErrNotFound) {
		return err
	}
	var ee *ExternalError
	if errors.As(err, &ee) {
		return err
	}
	return &ExternalError{Op: op, Err: err}
}

// Message is an inbound message as seen by the rule engine.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`   // chat the message belongs to
	Author    string    `json:"author"` // sender; equals From in direct chats
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	FromMe    bool      `json:"fromMe"`
}

type Chat struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsGroup     bool   `json:"isGroup"`
	UnreadCount int    `json:"unreadCount"`
}

type EventKind string

const (
	EventQR           EventKind = "qr"
	EventReady        EventKind = "ready"
	EventDisconnected EventKind = "disconnected"
	EventMessage      EventKind = "message"
)

// Event is a lifecycle or message notification emitted by a Client.
type Event struct {
	Kind    EventKind
	QR      string
	Reason  string
	Message Message
}

type EventHandler func(Event)

// Client is the capability surface the rest of autoreact needs from a
// messaging platform.
type Client interface {
	Name() string
	// Initialize connects and starts delivering events to handler. It returns
	// once the connection attempt has been started; readiness is signalled
	// with an EventReady.
	Initialize(ctx context.Context, handler EventHandler) error
	Close(ctx context.Context) error
	GetChats(ctx context.Context) ([]Chat, error)
	GetChatByID(ctx context.Context, chatID string) (Chat, error)
	// FetchMessages returns up to limit of the most recent messages of a chat.
	FetchMessages(ctx context.Context, chatID string, limit int) ([]Message, error)
	React(ctx context.Context, msg Message, emoji string) error
}

// Factory creates a fresh Client. The session controller calls it again
// after every disconnect.
type Factory func() (Client, error)
