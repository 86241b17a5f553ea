// Package reactlog appends sent reactions to a JSON Lines file.
package reactlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one line of the reaction log.
type Entry struct {
	Timestamp     time.Time `json:"timestamp"`
	Chat          string    `json:"chat"`
	MessageID     string    `json:"messageId"`
	Emoji         string    `json:"emoji"`
	ReactionCount int       `json:"reactionCount"`
}

// Log is an append-only file. Existing lines are never rewritten.
type Log struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Log {
	return &Log{path: path}
}

func (l *Log) Path() string {
	return l.path
}

// Append writes e as a single line.
func (l *Log) Append(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding log entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("creating log dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening reaction log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending reaction log: %w", err)
	}
	return nil
}

// Tail returns up to n of the most recent entries, oldest first. Lines that
// fail to decode are skipped.
func (l *Log) Tail(n int) ([]Entry, error) {
	if n <= 0 {
		return []Entry{}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("opening reaction log: %w", err)
	}
	defer f.Close()

	ring := make([]Entry, 0, n)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading reaction log: %w", err)
	}
	return ring, nil
}
