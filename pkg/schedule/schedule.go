// Package schedule switches reacting on and off from cron expressions.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tinyland-inc/autoreact/pkg/dispatcher"
	"github.com/tinyland-inc/autoreact/pkg/logger"
)

// Target is the reacting switch the scheduler drives.
type Target interface {
	Start() error
	Stop() error
}

type Scheduler struct {
	target    Target
	startExpr string
	stopExpr  string
	cron      *gronx.Gronx
}

// New validates the expressions. Either may be empty.
func New(target Target, startExpr, stopExpr string) (*Scheduler, error) {
	cron := gronx.New()
	for _, expr := range []string{startExpr, stopExpr} {
		if expr != "" && !cron.IsValid(expr) {
			return nil, fmt.Errorf("invalid cron expression %q", expr)
		}
	}
	return &Scheduler{target: target, startExpr: startExpr, stopExpr: stopExpr, cron: cron}, nil
}

func (s *Scheduler) Enabled() bool {
	return s.startExpr != "" || s.stopExpr != ""
}

// Run evaluates the schedule at the start of every minute until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	logger.InfoCF("schedule", "Reacting schedule active", map[string]any{
		"start": s.startExpr,
		"stop":  s.stopExpr,
	})

	now := time.Now()
	align := time.NewTimer(now.Truncate(time.Minute).Add(time.Minute).Sub(now))
	defer align.Stop()
	select {
	case <-ctx.Done():
		return
	case t := <-align.C:
		s.Tick(t)
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			s.Tick(t)
		}
	}
}

// Tick applies whichever expressions are due at now. When both are due the
// stop wins.
func (s *Scheduler) Tick(now time.Time) {
	now = now.Truncate(time.Minute)
	if s.due(s.startExpr, now) {
		if err := s.target.Start(); err != nil && !errors.Is(err, dispatcher.ErrAlreadyReacting) {
			logger.ErrorCF("schedule", "Scheduled start failed", map[string]any{"error": err.Error()})
		} else if err == nil {
			logger.InfoC("schedule", "Reacting started by schedule")
		}
	}
	if s.due(s.stopExpr, now) {
		if err := s.target.Stop(); err != nil && !errors.Is(err, dispatcher.ErrNotReacting) {
			logger.ErrorCF("schedule", "Scheduled stop failed", map[string]any{"error": err.Error()})
		} else if err == nil {
			logger.InfoC("schedule", "Reacting stopped by schedule")
		}
	}
}

func (s *Scheduler) due(expr string, now time.Time) bool {
	if expr == "" {
		return false
	}
	ok, err := s.cron.IsDue(expr, now)
	if err != nil {
		logger.WarnCF("schedule", "Cron evaluation failed", map[string]any{"expr": expr, "error": err.Error()})
		return false
	}
	return ok
}
