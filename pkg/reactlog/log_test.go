package reactlog

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLog_AppendWritesOneLinePerEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "reactions.log")
	l := New(path)

	ts := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		if err := l.Append(Entry{Timestamp: ts, Chat: "c", MessageID: "m", Emoji: "👍", ReactionCount: i}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	for _, key := range []string{`"timestamp"`, `"chat":"c"`, `"messageId":"m"`, `"emoji":"👍"`, `"reactionCount":1`} {
		if !strings.Contains(lines[0], key) {
			t.Errorf("line %q missing %s", lines[0], key)
		}
	}
}

func TestLog_AppendPreservesExistingLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reactions.log")
	if err := os.WriteFile(path, []byte("{\"chat\":\"old\"}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := New(path)
	if err := l.Append(Entry{Chat: "new"}); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "{\"chat\":\"old\"}\n") {
		t.Errorf("existing content rewritten: %q", data)
	}
}

func TestLog_Tail(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "reactions.log"))

	got, err := l.Tail(5)
	if err != nil || len(got) != 0 {
		t.Fatalf("Tail on missing file = %v, %v", got, err)
	}

	for i := 1; i <= 10; i++ {
		if err := l.Append(Entry{ReactionCount: i}); err != nil {
			t.Fatal(err)
		}
	}
	got, err = l.Tail(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].ReactionCount != 8 || got[2].ReactionCount != 10 {
		t.Errorf("Tail(3) = %+v, want counts 8..10", got)
	}

	all, _ := l.Tail(100)
	if len(all) != 10 {
		t.Errorf("Tail(100) returned %d entries", len(all))
	}
}

func TestLog_TailSkipsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reactions.log")
	content := "{\"reactionCount\":1}\nnot json\n\n{\"reactionCount\":2}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := New(path).Tail(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %d entries, want 2", len(got))
	}
}

func TestLog_ConcurrentAppend(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "reactions.log"))
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := l.Append(Entry{ReactionCount: i}); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
	got, err := l.Tail(50)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 20 {
		t.Errorf("got %d entries, want 20", len(got))
	}
}
