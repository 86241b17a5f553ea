package events

import (
	"time"

	"github.com/tinyland-inc/autoreact/pkg/platform"
)

// Kind names an event on the push channel. The values are a wire contract
// with the dashboard.
type Kind string

const (
	KindQR           Kind = "qr"
	KindStatus       Kind = "status"
	KindNewMessage   Kind = "new_message"
	KindReactionSent Kind = "reaction_sent"
)

const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// Event is one frame on the push channel.
type Event struct {
	Kind Kind `json:"event"`
	Data any  `json:"data"`
}

type NewMessage struct {
	From      string `json:"from"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"` // unix seconds
}

type ReactionSent struct {
	ChatID string `json:"chatId"`
	Emoji  string `json:"emoji"`
	Count  int    `json:"count"`
	Total  int    `json:"total"`
}

// Publisher is the fire-and-forget side of the hub.
type Publisher interface {
	Publish(Event)
}

func QR(code string) Event {
	return Event{Kind: KindQR, Data: code}
}

func Status(connected bool) Event {
	if connected {
		return Event{Kind: KindStatus, Data: StatusConnected}
	}
	return Event{Kind: KindStatus, Data: StatusDisconnected}
}

func Message(msg platform.Message) Event {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return Event{Kind: KindNewMessage, Data: NewMessage{
		From:      msg.From,
		Body:      msg.Body,
		Timestamp: ts.Unix(),
	}}
}

func Reaction(chatID, emoji string, count, total int) Event {
	return Event{Kind: KindReactionSent, Data: ReactionSent{
		ChatID: chatID,
		Emoji:  emoji,
		Count:  count,
		Total:  total,
	}}
}
