package rules

import (
	"strings"
	"time"

	"github.com/tinyland-inc/autoreact/pkg/platform"
)

// CooldownReader exposes the last reaction time per scope key.
type CooldownReader interface {
	LastReactionTime(key string) (time.Time, bool)
}

// ScopeKey is the key cooldowns are tracked against: the chat the message
// arrived in.
func ScopeKey(msg platform.Message) string {
	return msg.From
}

// Matches reports whether rule applies to msg. The five predicates (chat,
// sender, keywords, probability, cooldown) are checked in that order and
// evaluation stops at the first failure, so draw is only called when the
// first three pass. draw must return a value in [0, 1).
func Matches(msg platform.Message, rule Rule, cooldowns CooldownReader, now time.Time, draw func() float64) bool {
	if rule.ChatID != nil && *rule.ChatID != msg.From {
		return false
	}

	if rule.Sender != nil && *rule.Sender != msg.Author {
		return false
	}

	if len(rule.Keywords) > 0 && !containsKeyword(msg.Body, rule.Keywords) {
		return false
	}

	if rule.Probability != nil && draw() > *rule.Probability {
		return false
	}

	if rule.Cooldown != nil && cooldowns != nil {
		if last, ok := cooldowns.LastReactionTime(ScopeKey(msg)); ok {
			if now.Sub(last) < time.Duration(*rule.Cooldown)*time.Second {
				return false
			}
		}
	}

	return true
}

func containsKeyword(body string, keywords []string) bool {
	lower := strings.ToLower(body)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// FirstMatch returns the index of the first rule matching msg, or -1.
// Rules after the match are not evaluated.
func FirstMatch(msg platform.Message, set []Rule, cooldowns CooldownReader, now time.Time, draw func() float64) int {
	for i := range set {
		if Matches(msg, set[i], cooldowns, now, draw) {
			return i
		}
	}
	return -1
}
