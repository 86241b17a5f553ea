// Package rules holds reaction rules, their persisted store and the
// evaluator that decides whether a rule matches an inbound message.
package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
)

var (
	// ErrNoEmoji is returned when a rule has no emoji to react with.
	ErrNoEmoji = errors.New("rule has no emoji")
	// ErrInvalidRule wraps validation failures from Rule.Validate.
	ErrInvalidRule = errors.New("invalid rule")
)

// EmojiSet is either a single emoji or a list sampled uniformly. In JSON it
// accepts both "🔥" and ["🔥", "🚀"].
type EmojiSet []string

func (e *EmojiSet) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*e = EmojiSet{}
			return nil
		}
		*e = EmojiSet{single}
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("emojis must be a string or a list of strings: %w", err)
	}
	*e = EmojiSet(list)
	return nil
}

func (e EmojiSet) MarshalJSON() ([]byte, error) {
	if len(e) == 1 {
		return json.Marshal(e[0])
	}
	return json.Marshal([]string(e))
}

// Resolve picks one emoji. pick(n) must return a value in [0, n); nil uses
// math/rand.
func (e EmojiSet) Resolve(pick func(n int) int) (string, error) {
	usable := make([]string, 0, len(e))
	for _, emoji := range e {
		if strings.TrimSpace(emoji) != "" {
			usable = append(usable, emoji)
		}
	}
	if len(usable) == 0 {
		return "", ErrNoEmoji
	}
	if len(usable) == 1 {
		return usable[0], nil
	}
	if pick == nil {
		pick = rand.IntN
	}
	return usable[pick(len(usable))], nil
}

// Rule is a declarative condition/action pair. Optional fields are pointers
// so "absent" is distinguishable from a zero value.
type Rule struct {
	Name        string   `json:"name"`
	ChatID      *string  `json:"chatId,omitempty"`
	Sender      *string  `json:"sender,omitempty"`
	Emojis      EmojiSet `json:"emojis"`
	Keywords    []string `json:"keywords,omitempty"`
	Probability *float64 `json:"probability,omitempty"`
	Cooldown    *int     `json:"cooldown,omitempty"` // seconds
}

// Validate checks the invariants a rule must satisfy to be stored.
func (r Rule) Validate() error {
	if _, err := r.Emojis.Resolve(func(int) int { return 0 }); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidRule, r.Name, err)
	}
	if r.Probability != nil && (*r.Probability < 0 || *r.Probability > 1) {
		return fmt.Errorf("%w %q: probability %v outside [0,1]", ErrInvalidRule, r.Name, *r.Probability)
	}
	if r.Cooldown != nil && *r.Cooldown < 0 {
		return fmt.Errorf("%w %q: negative cooldown %d", ErrInvalidRule, r.Name, *r.Cooldown)
	}
	return nil
}

// String, Float and Int build optional fields inline.
func String(s string) *string { return &s }

func Float(f float64) *float64 { return &f }

func Int(i int) *int { return &i }

// ExampleRules returns the starter rule set the bot can seed an empty store with.
func ExampleRules() []Rule {
	return []Rule{
		{
			Name:        "Love Reactions",
			ChatID:      String("1234567890@c.us"),
			Emojis:      EmojiSet{"❤️", "😍", "🥰"},
			Keywords:    []string{"love", "miss", "like"},
			Probability: Float(0.8),
			Cooldown:    Int(10),
		},
		{
			Name:        "Group Hype",
			Emojis:      EmojiSet{"🔥", "🚀", "💯", "👏"},
			Keywords:    []string{"amazing", "great", "wow", "nice"},
			Probability: Float(1.0),
		},
		{
			Name:        "Laugh Reactions",
			Emojis:      EmojiSet{"😂", "🤣", "😆"},
			Keywords:    []string{"haha", "lol", "funny", "joke"},
			Probability: Float(0.9),
		},
	}
}
