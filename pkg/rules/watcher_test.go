package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnExternalEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	s := NewStore(path)
	require.NoError(t, s.Load())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := NewWatcher(s)
	w.SetDebounce(20 * time.Millisecond)
	reloaded := make(chan int, 4)
	w.OnReload(func(count int) { reloaded <- count })
	require.NoError(t, w.Start(ctx))

	content := `[{"name":"edited","emojis":"🎉","keywords":["party"]}]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	select {
	case count := <-reloaded:
		require.Equal(t, 1, count)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload within 5s")
	}
	require.Equal(t, "edited", s.Rules()[0].Name)

	cancel()
	w.Wait()
}
