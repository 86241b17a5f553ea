package cooldown

import (
	"sync"
	"testing"
	"time"
)

func TestTracker_RecordAndLookup(t *testing.T) {
	tr := NewTracker()
	if _, ok := tr.LastReactionTime("chat"); ok {
		t.Fatal("empty tracker returned a record")
	}

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tr.Record("chat", at)
	got, ok := tr.LastReactionTime("chat")
	if !ok || !got.Equal(at) {
		t.Errorf("LastReactionTime = %v, %v; want %v, true", got, ok, at)
	}

	later := at.Add(time.Minute)
	tr.Record("chat", later)
	if got, _ := tr.LastReactionTime("chat"); !got.Equal(later) {
		t.Errorf("Record did not overwrite: got %v", got)
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker()
	tr.Record("a", time.Now())
	tr.Record("b", time.Now())
	if tr.Len() != 2 {
		t.Fatalf("Len = %d, want 2", tr.Len())
	}
	tr.Reset()
	if tr.Len() != 0 {
		t.Errorf("Len after Reset = %d", tr.Len())
	}
	if _, ok := tr.LastReactionTime("a"); ok {
		t.Error("record survived Reset")
	}
}

func TestTracker_Concurrent(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i%5))
			tr.Record(key, time.Now())
			tr.LastReactionTime(key)
		}(i)
	}
	wg.Wait()
	if tr.Len() != 5 {
		t.Errorf("Len = %d, want 5", tr.Len())
	}
}

func TestTracker_ReserveUndo(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tr := NewTracker()
	undo := tr.Reserve("chat", base)
	if got, ok := tr.LastReactionTime("chat"); !ok || !got.Equal(base) {
		t.Fatalf("reservation not visible: %v, %v", got, ok)
	}
	undo()
	if _, ok := tr.LastReactionTime("chat"); ok {
		t.Error("undo left a record behind")
	}

	tr.Record("chat", base)
	undo = tr.Reserve("chat", base.Add(time.Minute))
	undo()
	if got, _ := tr.LastReactionTime("chat"); !got.Equal(base) {
		t.Errorf("undo restored %v, want %v", got, base)
	}
}

func TestTracker_ReserveUndoSkipsNewerState(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tr := NewTracker()
	undo := tr.Reserve("chat", base)
	tr.Record("chat", base.Add(time.Second))
	undo()
	if got, _ := tr.LastReactionTime("chat"); !got.Equal(base.Add(time.Second)) {
		t.Errorf("undo clobbered a newer record: %v", got)
	}

	undo = tr.Reserve("other", base)
	tr.Reset()
	tr.Record("other", base)
	undo()
	if _, ok := tr.LastReactionTime("other"); !ok {
		t.Error("undo from before Reset removed a record made after it")
	}
}
