// Package meter aggregates reaction activity per chat and exports it as
// prometheus counters.
package meter

import (
	"sync"
	"time"
)

// Sources of reactions.
const (
	SourceDispatcher = "dispatcher"
	SourceAutoReact  = "autoreact"
	SourceAPI        = "api"
)

// Store holds per-chat meters. The zero value is not usable; use NewStore.
type Store struct {
	mu      sync.RWMutex
	chats   map[string]*ChatMeter
	msgs    int64
	retries int64
}

// ChatMeter tracks reaction activity for one chat.
type ChatMeter struct {
	ChatID       string           `json:"chatId"`
	Reactions    int64            `json:"reactions"`
	Failures     int64            `json:"failures"`
	LastEmoji    string           `json:"lastEmoji,omitempty"`
	LastActivity time.Time        `json:"lastActivity"`
	BySource     map[string]int64 `json:"bySource"`
}

// Totals is a point-in-time summary across every chat.
type Totals struct {
	Reactions  int64 `json:"reactions"`
	Failures   int64 `json:"failures"`
	Messages   int64 `json:"messages"`
	Reconnects int64 `json:"reconnects"`
	Chats      int   `json:"chats"`
}

func NewStore() *Store {
	return &Store{chats: make(map[string]*ChatMeter)}
}

func (s *Store) chat(chatID string) *ChatMeter {
	m, ok := s.chats[chatID]
	if !ok {
		m = &ChatMeter{ChatID: chatID, BySource: make(map[string]int64)}
		s.chats[chatID] = m
	}
	return m
}

// RecordReaction counts a successful reaction.
func (s *Store) RecordReaction(source, chatID, emoji string, at time.Time) {
	reactionsSent.WithLabelValues(source).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.chat(chatID)
	m.Reactions++
	m.BySource[source]++
	m.LastEmoji = emoji
	m.LastActivity = at
}

// RecordFailure counts a react call that returned an error.
func (s *Store) RecordFailure(source, chatID string, at time.Time) {
	reactionFailures.WithLabelValues(source).Inc()

	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.chat(chatID)
	m.Failures++
	m.LastActivity = at
}

func (s *Store) RecordMessage() {
	messagesReceived.Inc()
	s.mu.Lock()
	s.msgs++
	s.mu.Unlock()
}

func (s *Store) RecordReconnect() {
	sessionReconnects.Inc()
	s.mu.Lock()
	s.retries++
	s.mu.Unlock()
}

// Chat returns a copy of the meter for chatID.
func (s *Store) Chat(chatID string) (ChatMeter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.chats[chatID]
	if !ok {
		return ChatMeter{}, false
	}
	return m.clone(), true
}

// Chats returns copies of every chat meter.
func (s *Store) Chats() []ChatMeter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChatMeter, 0, len(s.chats))
	for _, m := range s.chats {
		out = append(out, m.clone())
	}
	return out
}

func (s *Store) Totals() Totals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t := Totals{Messages: s.msgs, Reconnects: s.retries, Chats: len(s.chats)}
	for _, m := range s.chats {
		t.Reactions += m.Reactions
		t.Failures += m.Failures
	}
	return t
}

func (m *ChatMeter) clone() ChatMeter {
	c := *m
	c.BySource = make(map[string]int64, len(m.BySource))
	for k, v := range m.BySource {
		c.BySource[k] = v
	}
	return c
}
