package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tinyland-inc/autoreact/pkg/logger"
)

// ErrMalformedRules marks a rules file that exists but does not parse.
var ErrMalformedRules = errors.New("malformed rules file")

// Store owns the ordered rule set and its JSON file.
type Store struct {
	path string

	mu    sync.RWMutex
	rules []Rule
	// blocked is set when a malformed file could not be moved aside; Add
	// refuses to overwrite it until a load succeeds.
	blocked error
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load replaces the in-memory set with the file's contents. A missing file
// yields an empty set. A malformed file returns the parse error, leaves the
// set empty and is moved to path+".bad" so a later Add cannot overwrite it.
func (s *Store) Load() error {
	loaded, err := readRules(s.path)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.rules = nil
		if errors.Is(err, ErrMalformedRules) {
			s.blocked = s.quarantine()
		}
		return err
	}
	s.rules = loaded
	s.blocked = nil
	logger.InfoCF("rules", "Loaded reaction rules", map[string]any{
		"count": len(loaded),
		"path":  s.path,
	})
	return nil
}

// Reload re-reads the file, keeping the current set if the file is malformed.
func (s *Store) Reload() error {
	loaded, err := readRules(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.rules = loaded
	s.blocked = nil
	s.mu.Unlock()
	logger.InfoCF("rules", "Reloaded reaction rules", map[string]any{"count": len(loaded)})
	return nil
}

// Add appends rule and rewrites the whole file atomically.
func (s *Store) Add(rule Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocked != nil {
		return s.blocked
	}

	next := make([]Rule, len(s.rules), len(s.rules)+1)
	copy(next, s.rules)
	next = append(next, rule)

	if err := writeRules(s.path, next); err != nil {
		return err
	}
	s.rules = next

	logger.InfoCF("rules", "Rule added", map[string]any{"name": rule.Name, "count": len(next)})
	return nil
}

// Rules returns a copy of the current set in evaluation order.
func (s *Store) Rules() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules)
}

// quarantine moves the malformed rules file aside. It returns a non-nil
// error only when the file is still in place.
func (s *Store) quarantine() error {
	backup := s.path + ".bad"
	if err := os.Rename(s.path, backup); err != nil {
		logger.ErrorCF("rules", "Failed to move malformed rules file aside", map[string]any{
			"path":  s.path,
			"error": err.Error(),
		})
		return fmt.Errorf("rules file %s is malformed and could not be moved aside: %w", s.path, err)
	}
	logger.WarnCF("rules", "Moved malformed rules file aside", map[string]any{
		"path":   s.path,
		"backup": backup,
	})
	return nil
}

func readRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Rule{}, nil
		}
		return nil, fmt.Errorf("reading rules %s: %w", path, err)
	}

	var loaded []Rule
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parsing rules %s: %w: %w", path, ErrMalformedRules, err)
	}
	if loaded == nil {
		loaded = []Rule{}
	}
	return loaded, nil
}

// writeRules writes to a temp file in the same directory and renames it over
// path, so readers see either the old or the new file.
func writeRules(path string, set []Rule) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding rules: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating rules dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".rules-*.json")
	if err != nil {
		return fmt.Errorf("creating temp rules file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp rules file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp rules file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp rules file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp rules file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing rules file: %w", err)
	}
	return nil
}
