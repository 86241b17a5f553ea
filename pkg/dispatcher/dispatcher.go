// Package dispatcher reacts to inbound messages according to the rule set
// while reacting is switched on.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tinyland-inc/autoreact/pkg/cooldown"
	"github.com/tinyland-inc/autoreact/pkg/events"
	"github.com/tinyland-inc/autoreact/pkg/logger"
	"github.com/tinyland-inc/autoreact/pkg/meter"
	"github.com/tinyland-inc/autoreact/pkg/platform"
	"github.com/tinyland-inc/autoreact/pkg/reactlog"
	"github.com/tinyland-inc/autoreact/pkg/rules"
)

var (
	ErrAlreadyReacting = errors.New("already reacting")
	ErrNotReacting     = errors.New("not reacting")
)

// SubscriptionKey is the fixed key the dispatcher registers under, so a
// restart replaces its handler instead of adding a second one.
const SubscriptionKey = "dispatcher"

const reactTimeout = 30 * time.Second

// Mode selects which messages are eligible for a reaction.
type Mode string

const (
	// ModeSelf reacts to messages sent by the logged-in account.
	ModeSelf Mode = "self"
	// ModeIncoming reacts to messages sent by others.
	ModeIncoming Mode = "incoming"
	ModeAll      Mode = "all"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSelf, ModeIncoming, ModeAll:
		return Mode(s), nil
	case "":
		return ModeSelf, nil
	}
	return "", fmt.Errorf("unknown reacting mode %q", s)
}

type RuleSource interface {
	Rules() []rules.Rule
	Len() int
}

type MessageSource interface {
	Subscribe(key string, fn func(platform.Message)) (unsubscribe func())
}

type Reactor interface {
	React(ctx context.Context, msg platform.Message, emoji string) error
}

type Options struct {
	Rules     RuleSource
	Source    MessageSource
	Reactor   Reactor
	Cooldowns *cooldown.Tracker
	Log       *reactlog.Log
	Publisher events.Publisher
	Meter     *meter.Store
	Mode      Mode

	// RatePerSecond paces react calls; zero disables pacing.
	RatePerSecond float64
	Burst         int

	Draw func() float64
	Pick func(n int) int
	Now  func() time.Time
}

// Stats is the dispatcher's public counters.
type Stats struct {
	IsReacting    bool `json:"isReacting"`
	ReactionCount int  `json:"reactionCount"`
	RuleCount     int  `json:"ruleCount"`
	SessionCount  int  `json:"sessionCount"`
	CooldownKeys  int  `json:"cooldownKeys"`
}

// Dispatcher is Idle until Start and Active until Stop.
type Dispatcher struct {
	opts    Options
	limiter *rate.Limiter

	mu          sync.Mutex
	active      bool
	unsubscribe func()
	total       int
	session     int
	// gen increments on every Start; reactions from an earlier period
	// still count toward total but not toward session.
	gen uint64

	wg sync.WaitGroup
}

func New(opts Options) *Dispatcher {
	if opts.Cooldowns == nil {
		opts.Cooldowns = cooldown.NewTracker()
	}
	if opts.Mode == "" {
		opts.Mode = ModeSelf
	}
	if opts.Draw == nil {
		opts.Draw = rand.Float64
	}
	if opts.Pick == nil {
		opts.Pick = rand.IntN
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	d := &Dispatcher{opts: opts}
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return d
}

// Start clears cooldowns and begins handling messages.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active {
		return ErrAlreadyReacting
	}

	d.opts.Cooldowns.Reset()
	d.session = 0
	d.gen++
	d.active = true
	d.unsubscribe = d.opts.Source.Subscribe(SubscriptionKey, d.HandleMessage)

	logger.InfoCF("dispatcher", "Auto-reacting started", map[string]any{
		"mode":  string(d.opts.Mode),
		"rules": d.opts.Rules.Len(),
	})
	return nil
}

// Stop detaches from the message source. Reactions already in flight still
// complete and are counted.
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return ErrNotReacting
	}
	d.active = false
	unsubscribe := d.unsubscribe
	d.unsubscribe = nil
	total := d.total
	d.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	logger.InfoCF("dispatcher", "Auto-reacting stopped", map[string]any{"total_reactions": total})
	return nil
}

func (d *Dispatcher) IsReacting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		IsReacting:    d.active,
		ReactionCount: d.total,
		RuleCount:     d.opts.Rules.Len(),
		SessionCount:  d.session,
		CooldownKeys:  d.opts.Cooldowns.Len(),
	}
}

// Wait blocks until every in-flight reaction has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) accepts(msg platform.Message) bool {
	switch d.opts.Mode {
	case ModeSelf:
		return msg.FromMe
	case ModeIncoming:
		return !msg.FromMe
	default:
		return true
	}
}

// HandleMessage evaluates the rules against msg and, on the first match,
// sends the reaction asynchronously.
func (d *Dispatcher) HandleMessage(msg platform.Message) {
	d.mu.Lock()
	if !d.active || !d.accepts(msg) {
		d.mu.Unlock()
		return
	}

	now := d.opts.Now()
	set := d.opts.Rules.Rules()
	idx := rules.FirstMatch(msg, set, d.opts.Cooldowns, now, d.opts.Draw)
	if idx < 0 {
		d.mu.Unlock()
		return
	}
	rule := set[idx]

	emoji, err := rule.Emojis.Resolve(d.opts.Pick)
	if err != nil {
		d.mu.Unlock()
		logger.WarnCF("dispatcher", "Matched rule has no usable emoji", map[string]any{
			"rule":  rule.Name,
			"error": err.Error(),
		})
		return
	}

	undo := d.opts.Cooldowns.Reserve(rules.ScopeKey(msg), now)
	gen := d.gen
	d.wg.Add(1)
	d.mu.Unlock()

	logger.DebugCF("dispatcher", "Rule matched", map[string]any{
		"rule":       rule.Name,
		"chat_id":    msg.From,
		"message_id": msg.ID,
		"emoji":      emoji,
	})
	go d.react(msg, rule.Name, emoji, gen, undo)
}

// react sends one reaction. The scope key was reserved in the cooldown
// tracker when the rule matched; undo releases it if the reaction fails.
func (d *Dispatcher) react(msg platform.Message, ruleName, emoji string, gen uint64, undo func()) {
	defer d.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), reactTimeout)
	defer cancel()

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			undo()
			d.fail(msg, ruleName, err)
			return
		}
	}

	if err := d.opts.Reactor.React(ctx, msg, emoji); err != nil {
		undo()
		d.fail(msg, ruleName, err)
		return
	}

	now := d.opts.Now()
	d.mu.Lock()
	d.total++
	if gen == d.gen {
		d.session++
	}
	total, session := d.total, d.session
	d.mu.Unlock()

	logger.InfoCF("dispatcher", "Reaction sent", map[string]any{
		"rule":    ruleName,
		"chat_id": msg.From,
		"emoji":   emoji,
		"total":   total,
	})

	if d.opts.Log != nil {
		if err := d.opts.Log.Append(reactlog.Entry{
			Timestamp:     now,
			Chat:          msg.From,
			MessageID:     msg.ID,
			Emoji:         emoji,
			ReactionCount: total,
		}); err != nil {
			logger.ErrorCF("dispatcher", "Failed to append reaction log", map[string]any{"error": err.Error()})
		}
	}
	if d.opts.Meter != nil {
		d.opts.Meter.RecordReaction(meter.SourceDispatcher, msg.From, emoji, now)
	}
	if d.opts.Publisher != nil {
		d.opts.Publisher.Publish(events.Reaction(msg.From, emoji, session, total))
	}
}

func (d *Dispatcher) fail(msg platform.Message, ruleName string, err error) {
	logger.ErrorCF("dispatcher", "Reaction failed", map[string]any{
		"rule":       ruleName,
		"chat_id":    msg.From,
		"message_id": msg.ID,
		"error":      err.Error(),
	})
	if d.opts.Meter != nil {
		d.opts.Meter.RecordFailure(meter.SourceDispatcher, msg.From, d.opts.Now())
	}
}
