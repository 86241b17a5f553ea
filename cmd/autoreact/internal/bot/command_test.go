package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/autoreact/cmd/autoreact/internal"
	"github.com/tinyland-inc/autoreact/pkg/config"
	"github.com/tinyland-inc/autoreact/pkg/events"
	"github.com/tinyland-inc/autoreact/pkg/platform"
	"github.com/tinyland-inc/autoreact/pkg/platform/platformtest"
)

func TestNewBotCommand(t *testing.T) {
	cmd := NewBotCommand()

	require.NotNil(t, cmd)
	assert.Equal(t, "bot", cmd.Use)
	assert.Equal(t, []string{"b"}, cmd.Aliases)
	assert.True(t, cmd.HasExample())
	assert.False(t, cmd.HasSubCommands())
	assert.NotNil(t, cmd.RunE)

	assert.NotNil(t, cmd.Flags().Lookup("debug"))
	assert.NotNil(t, cmd.Flags().Lookup("seed-examples"))
	assert.NotNil(t, cmd.Flags().Lookup("start"))
}

func newRuntime(t *testing.T) (*internal.Runtime, *platformtest.Client) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.Dir = t.TempDir()
	cfg.Reacting.RatePerSecond = 0

	fake := platformtest.New()
	rt, err := internal.NewRuntime(cfg, fake.Factory())
	require.NoError(t, err)
	require.NoError(t, rt.Start(context.Background()))
	t.Cleanup(rt.Close)
	return rt, fake
}

func TestRunCommand(t *testing.T) {
	rt, fake := newRuntime(t)
	_, err := rt.SeedExamples()
	require.NoError(t, err)

	var out bytes.Buffer
	assert.False(t, runCommand(rt, "start", &out))
	assert.Contains(t, out.String(), "started")

	out.Reset()
	assert.False(t, runCommand(rt, "START", &out))
	assert.Contains(t, out.String(), "Already reacting")

	fake.Deliver(platform.Message{ID: "m1", From: "group", Body: "wow, amazing", FromMe: true})
	require.Eventually(t, func() bool { return len(fake.Reactions()) == 1 }, time.Second, 5*time.Millisecond)
	rt.Dispatcher.Wait()

	out.Reset()
	assert.False(t, runCommand(rt, "stats", &out))
	var stats map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &stats))
	assert.Equal(t, map[string]any{"isReacting": true, "reactionCount": float64(1), "ruleCount": float64(3)}, stats)

	out.Reset()
	assert.False(t, runCommand(rt, "stop", &out))
	assert.Contains(t, out.String(), "stopped")

	out.Reset()
	assert.False(t, runCommand(rt, "stop", &out))
	assert.Contains(t, out.String(), "Not reacting")

	out.Reset()
	assert.False(t, runCommand(rt, "rules", &out))
	assert.Contains(t, out.String(), "1. Love Reactions")
	assert.Contains(t, out.String(), "3. Laugh Reactions")

	out.Reset()
	assert.False(t, runCommand(rt, "dance", &out))
	assert.Contains(t, out.String(), "Unknown command")

	out.Reset()
	assert.False(t, runCommand(rt, "help", &out))
	assert.Contains(t, out.String(), "stats")

	assert.True(t, runCommand(rt, "exit", &out))
}

func TestSimpleInteractiveMode(t *testing.T) {
	rt, _ := newRuntime(t)

	var out bytes.Buffer
	simpleInteractiveMode(rt, strings.NewReader("start\nstats\nexit\nstop\n"), &out)

	assert.Contains(t, out.String(), "started")
	assert.Contains(t, out.String(), `"isReacting": true`)
	assert.Contains(t, out.String(), "Goodbye!")
	assert.NotContains(t, out.String(), "stopped", "lines after exit are not run")

	out.Reset()
	simpleInteractiveMode(rt, strings.NewReader("stats"), &out)
	assert.Contains(t, out.String(), "Goodbye!", "EOF ends the console")
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestSimpleInteractiveMode_ReadError(t *testing.T) {
	rt, _ := newRuntime(t)

	var out bytes.Buffer
	done := make(chan struct{})
	go func() {
		simpleInteractiveMode(rt, failingReader{err: errors.New("tty gone")}, &out)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("console kept looping on a read error")
	}
	assert.Equal(t, 1, strings.Count(out.String(), "Error reading input: tty gone"))
}

func TestPrintEvents(t *testing.T) {
	hub := events.NewHub(8)
	sub := hub.Subscribe()
	require.NotNil(t, sub)

	hub.Publish(events.QR("2@abc"))
	hub.Publish(events.Status(true))
	hub.Publish(events.Reaction("group", "😂", 1, 1))
	hub.Publish(events.Status(false))
	hub.Close()

	var out bytes.Buffer
	printEvents(&out, sub)

	s := out.String()
	assert.Contains(t, s, "2@abc")
	assert.Contains(t, s, "ready")
	assert.Contains(t, s, "Reacted 😂 to message from group")
	assert.Contains(t, s, "Disconnected")
}
