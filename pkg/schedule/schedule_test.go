package schedule

import (
	"testing"
	"time"

	"github.com/tinyland-inc/autoreact/pkg/dispatcher"
)

type switchTarget struct {
	active bool
	starts int
	stops  int
}

func (s *switchTarget) Start() error {
	if s.active {
		return dispatcher.ErrAlreadyReacting
	}
	s.active = true
	s.starts++
	return nil
}

func (s *switchTarget) Stop() error {
	if !s.active {
		return dispatcher.ErrNotReacting
	}
	s.active = false
	s.stops++
	return nil
}

func TestNew_RejectsInvalidExpression(t *testing.T) {
	if _, err := New(&switchTarget{}, "not a cron", ""); err == nil {
		t.Error("expected error")
	}
	s, err := New(&switchTarget{}, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if s.Enabled() {
		t.Error("empty schedule reported as enabled")
	}
}

func TestScheduler_Tick(t *testing.T) {
	target := &switchTarget{}
	s, err := New(target, "0 9 * * *", "0 17 * * *")
	if err != nil {
		t.Fatal(err)
	}

	day := time.Date(2026, 4, 6, 0, 0, 0, 0, time.Local)
	s.Tick(day.Add(8 * time.Hour))
	if target.active {
		t.Fatal("started before 09:00")
	}

	s.Tick(day.Add(9*time.Hour + 20*time.Second))
	if !target.active || target.starts != 1 {
		t.Fatalf("not started at 09:00: %+v", target)
	}

	s.Tick(day.Add(9 * time.Hour))
	if target.starts != 1 {
		t.Error("second start while active should be ignored")
	}

	s.Tick(day.Add(17 * time.Hour))
	if target.active || target.stops != 1 {
		t.Errorf("not stopped at 17:00: %+v", target)
	}
}
