// Package autoreact runs time-boxed, single-chat reaction sessions started
// from the HTTP API.
//
// A session reacts to every incoming message of one chat with a random emoji
// from its set, after an optional delay, until it has sent maxReactions
// reactions, is stopped, is replaced by a newer session for the same chat, or
// runs past the configured maximum duration.
package autoreact

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinyland-inc/autoreact/pkg/events"
	"github.com/tinyland-inc/autoreact/pkg/logger"
	"github.com/tinyland-inc/autoreact/pkg/meter"
	"github.com/tinyland-inc/autoreact/pkg/platform"
	"github.com/tinyland-inc/autoreact/pkg/reactlog"
)

var (
	ErrInvalidRequest  = errors.New("invalid auto-react request")
	ErrSessionNotFound = errors.New("auto-react session not found")
	ErrNotRunning      = errors.New("auto-react session is not running")
)

const DefaultMaxDuration = 60 * time.Minute

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
	StatusExpired   Status = "expired"
)

// Request starts a session. Delay is in seconds.
type Request struct {
	ChatID       string   `json:"chatId"`
	Emojis       []string `json:"emojis"`
	Delay        float64  `json:"delay"`
	MaxReactions int      `json:"maxReactions"`
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.ChatID) == "" {
		return fmt.Errorf("%w: chatId is required", ErrInvalidRequest)
	}
	if !slices.ContainsFunc(r.Emojis, func(e string) bool { return strings.TrimSpace(e) != "" }) {
		return fmt.Errorf("%w: at least one emoji is required", ErrInvalidRequest)
	}
	if r.Delay < 0 {
		return fmt.Errorf("%w: delay must not be negative", ErrInvalidRequest)
	}
	if r.MaxReactions < 1 {
		return fmt.Errorf("%w: maxReactions must be at least 1", ErrInvalidRequest)
	}
	return nil
}

// Session is a point-in-time view of one auto-react session.
type Session struct {
	ID           string    `json:"id"`
	ChatID       string    `json:"chatId"`
	Emojis       []string  `json:"emojis"`
	Delay        float64   `json:"delay"`
	MaxReactions int       `json:"maxReactions"`
	Status       Status    `json:"status"`
	Count        int       `json:"count"`
	Failures     int       `json:"failures"`
	StartTime    time.Time `json:"startedAt"`
	EndTime      time.Time `json:"endedAt,omitzero"`
	Error        string    `json:"error,omitempty"`
}

// Client is what a session needs from the platform session.
type Client interface {
	Subscribe(key string, fn func(platform.Message)) (unsubscribe func())
	GetChatByID(ctx context.Context, chatID string) (platform.Chat, error)
	React(ctx context.Context, msg platform.Message, emoji string) error
}

type Options struct {
	Client      Client
	Log         *reactlog.Log
	Publisher   events.Publisher
	Meter       *meter.Store
	MaxDuration time.Duration
	Pick        func(n int) int
}

type execution struct {
	Session
	emojis      []string
	pending     int
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

// Runner tracks every session started since it was created.
type Runner struct {
	opts Options

	mu       sync.RWMutex
	sessions map[string]*execution
	byChat   map[string]string

	wg sync.WaitGroup
}

func NewRunner(opts Options) *Runner {
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	if opts.Pick == nil {
		opts.Pick = rand.IntN
	}
	return &Runner{
		opts:     opts,
		sessions: make(map[string]*execution),
		byChat:   make(map[string]string),
	}
}

func subscriptionKey(chatID string) string {
	return "autoreact:" + chatID
}

// Start begins a session and returns immediately. The chat is verified in
// the background; an unknown chat marks the session failed.
func (r *Runner) Start(ctx context.Context, req Request) (Session, error) {
	if err := req.Validate(); err != nil {
		return Session{}, err
	}

	usable := make([]string, 0, len(req.Emojis))
	for _, e := range req.Emojis {
		if strings.TrimSpace(e) != "" {
			usable = append(usable, e)
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, r.opts.MaxDuration)
	exec := &execution{
		Session: Session{
			ID:           uuid.NewString(),
			ChatID:       req.ChatID,
			Emojis:       slices.Clone(usable),
			Delay:        req.Delay,
			MaxReactions: req.MaxReactions,
			Status:       StatusRunning,
			StartTime:    time.Now(),
		},
		emojis: usable,
		ctx:    execCtx,
		cancel: cancel,
	}

	// Replacing the previous session and registering this one happen under
	// one lock so concurrent starts for a chat leave exactly one running.
	r.mu.Lock()
	var replaced func()
	if prevID, ok := r.byChat[req.ChatID]; ok {
		replaced = r.finishLocked(prevID, StatusCanceled, "replaced by a newer session")
	}
	r.sessions[exec.ID] = exec
	r.byChat[exec.ChatID] = exec.ID
	exec.unsubscribe = r.opts.Client.Subscribe(subscriptionKey(exec.ChatID), func(msg platform.Message) {
		r.handle(exec, msg)
	})
	snapshot := exec.snapshot()
	r.mu.Unlock()

	if replaced != nil {
		replaced()
	}
	go r.verify(exec)
	go r.watch(exec)

	logger.InfoCF("autoreact", "Auto-react session started", map[string]any{
		"session_id":    exec.ID,
		"chat_id":       exec.ChatID,
		"max_reactions": exec.MaxReactions,
		"delay":         exec.Delay,
	})
	return snapshot, nil
}

// Stop cancels a running session.
func (r *Runner) Stop(id string) error {
	r.mu.RLock()
	exec, ok := r.sessions[id]
	var status Status
	if ok {
		status = exec.Status
	}
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if status != StatusRunning {
		return fmt.Errorf("%w: %s (status: %s)", ErrNotRunning, id, status)
	}
	r.finish(id, StatusCanceled, "stopped")
	return nil
}

func (r *Runner) Get(id string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return exec.snapshot(), nil
}

// List returns every session, oldest first.
func (r *Runner) List() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, exec := range r.sessions {
		out = append(out, exec.snapshot())
	}
	slices.SortFunc(out, func(a, b Session) int { return a.StartTime.Compare(b.StartTime) })
	return out
}

// Active returns the number of running sessions.
func (r *Runner) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byChat)
}

// Wait blocks until all in-flight reactions have finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close cancels every running session and waits for in-flight reactions.
func (r *Runner) Close() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.byChat))
	for _, id := range r.byChat {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.finish(id, StatusCanceled, "shutting down")
	}
	r.wg.Wait()
}

func (e *execution) snapshot() Session {
	s := e.Session
	s.Emojis = slices.Clone(e.Session.Emojis)
	return s
}

func (r *Runner) verify(exec *execution) {
	if _, err := r.opts.Client.GetChatByID(exec.ctx, exec.ChatID); err != nil {
		if exec.ctx.Err() != nil {
			return
		}
		logger.WarnCF("autoreact", "Auto-react chat lookup failed", map[string]any{
			"session_id": exec.ID,
			"chat_id":    exec.ChatID,
			"error":      err.Error(),
		})
		r.finish(exec.ID, StatusFailed, err.Error())
	}
}

func (r *Runner) watch(exec *execution) {
	<-exec.ctx.Done()
	if errors.Is(exec.ctx.Err(), context.DeadlineExceeded) {
		r.finish(exec.ID, StatusExpired, "maximum duration reached")
		return
	}
	r.finish(exec.ID, StatusCanceled, exec.ctx.Err().Error())
}

// finish moves a running session to a terminal status. It is a no-op for
// sessions that already finished.
func (r *Runner) finish(id string, status Status, reason string) {
	r.mu.Lock()
	done := r.finishLocked(id, status, reason)
	r.mu.Unlock()

	if done != nil {
		done()
	}
}

// finishLocked updates the session under r.mu and returns the cleanup to
// run after the lock is released, or nil if there is nothing to finish.
func (r *Runner) finishLocked(id string, status Status, reason string) func() {
	exec, ok := r.sessions[id]
	if !ok || exec.Status != StatusRunning {
		return nil
	}
	exec.Status = status
	exec.EndTime = time.Now()
	if status != StatusCompleted {
		exec.Error = reason
	}
	if r.byChat[exec.ChatID] == id {
		delete(r.byChat, exec.ChatID)
	}
	unsubscribe := exec.unsubscribe
	count := exec.Count

	return func() {
		if unsubscribe != nil {
			unsubscribe()
		}
		exec.cancel()

		logger.InfoCF("autoreact", "Auto-react session finished", map[string]any{
			"session_id": id,
			"status":     string(status),
			"reactions":  count,
			"reason":     reason,
		})
	}
}

// handle reserves a reaction slot before the delay so concurrent messages
// can never push the session past maxReactions.
func (r *Runner) handle(exec *execution, msg platform.Message) {
	if msg.FromMe || msg.From != exec.ChatID {
		return
	}

	r.mu.Lock()
	if exec.Status != StatusRunning || exec.Count+exec.pending >= exec.MaxReactions {
		r.mu.Unlock()
		return
	}
	exec.pending++
	r.wg.Add(1)
	r.mu.Unlock()

	go r.react(exec, msg)
}

func (r *Runner) react(exec *execution, msg platform.Message) {
	defer r.wg.Done()

	if exec.Delay > 0 {
		timer := time.NewTimer(time.Duration(exec.Delay * float64(time.Second)))
		select {
		case <-timer.C:
		case <-exec.ctx.Done():
			timer.Stop()
			r.release(exec)
			return
		}
	}

	emoji := exec.emojis[0]
	if len(exec.emojis) > 1 {
		emoji = exec.emojis[r.opts.Pick(len(exec.emojis))]
	}

	if err := r.opts.Client.React(exec.ctx, msg, emoji); err != nil {
		r.mu.Lock()
		exec.pending--
		exec.Failures++
		r.mu.Unlock()
		logger.ErrorCF("autoreact", "Auto-react reaction failed", map[string]any{
			"session_id": exec.ID,
			"message_id": msg.ID,
			"error":      err.Error(),
		})
		if r.opts.Meter != nil {
			r.opts.Meter.RecordFailure(meter.SourceAutoReact, exec.ChatID, time.Now())
		}
		return
	}

	now := time.Now()
	r.mu.Lock()
	exec.pending--
	exec.Count++
	count := exec.Count
	done := count >= exec.MaxReactions
	r.mu.Unlock()

	if r.opts.Log != nil {
		if err := r.opts.Log.Append(reactlog.Entry{
			Timestamp:     now,
			Chat:          exec.ChatID,
			MessageID:     msg.ID,
			Emoji:         emoji,
			ReactionCount: count,
		}); err != nil {
			logger.ErrorCF("autoreact", "Failed to append reaction log", map[string]any{"error": err.Error()})
		}
	}
	if r.opts.Meter != nil {
		r.opts.Meter.RecordReaction(meter.SourceAutoReact, exec.ChatID, emoji, now)
	}
	if r.opts.Publisher != nil {
		r.opts.Publisher.Publish(events.Reaction(exec.ChatID, emoji, count, exec.MaxReactions))
	}

	if done {
		r.finish(exec.ID, StatusCompleted, "")
	}
}

func (r *Runner) release(exec *execution) {
	r.mu.Lock()
	exec.pending--
	r.mu.Unlock()
}
