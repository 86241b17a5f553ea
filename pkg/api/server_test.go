package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/autoreact/pkg/autoreact"
	"github.com/tinyland-inc/autoreact/pkg/dispatcher"
	"github.com/tinyland-inc/autoreact/pkg/events"
	"github.com/tinyland-inc/autoreact/pkg/meter"
	"github.com/tinyland-inc/autoreact/pkg/platform"
	"github.com/tinyland-inc/autoreact/pkg/platform/platformtest"
	"github.com/tinyland-inc/autoreact/pkg/reactlog"
	"github.com/tinyland-inc/autoreact/pkg/rules"
	"github.com/tinyland-inc/autoreact/pkg/session"
)

type testEnv struct {
	fake   *platformtest.Client
	ctrl   *session.Controller
	disp   *dispatcher.Dispatcher
	runner *autoreact.Runner
	store  *rules.Store
	log    *reactlog.Log
	hub    *events.Hub
	meter  *meter.Store
	srv    *Server
}

func newTestEnv(t *testing.T, mutate func(*platformtest.Client)) *testEnv {
	t.Helper()
	dir := t.TempDir()

	fake := platformtest.New()
	fake.AddChat(platform.Chat{ID: "chat1", Name: "Friends", IsGroup: true, UnreadCount: 2},
		platform.Message{ID: "m1", From: "chat1", Body: "hello"},
		platform.Message{ID: "m2", From: "chat1", Body: "haha"},
	)
	if mutate != nil {
		mutate(fake)
	}

	hub := events.NewHub(16)
	t.Cleanup(hub.Close)
	ms := meter.NewStore()

	ctrl := session.NewController(session.Options{Factory: fake.Factory(), Publisher: hub, Meter: ms})
	require.NoError(t, ctrl.Start(context.Background()))
	t.Cleanup(ctrl.Close)
	hub.SetSnapshot(ctrl.Snapshot)

	store := rules.NewStore(filepath.Join(dir, "rules.json"))
	require.NoError(t, store.Load())
	log := reactlog.New(filepath.Join(dir, "reactions.log"))

	disp := dispatcher.New(dispatcher.Options{
		Rules:     store,
		Source:    ctrl,
		Reactor:   ctrl,
		Log:       log,
		Publisher: hub,
		Meter:     ms,
	})
	runner := autoreact.NewRunner(autoreact.Options{
		Client:    ctrl,
		Log:       log,
		Publisher: hub,
		Meter:     ms,
	})
	t.Cleanup(runner.Close)

	reg := prometheus.NewRegistry()
	srv := New(Options{
		Session:    ctrl,
		Dispatcher: disp,
		Runner:     runner,
		Rules:      store,
		Log:        log,
		Hub:        hub,
		Meter:      ms,
		Version:    "test",
		Registerer: reg,
		Gatherer:   reg,
	})

	return &testEnv{
		fake:   fake,
		ctrl:   ctrl,
		disp:   disp,
		runner: runner,
		store:  store,
		log:    log,
		hub:    hub,
		meter:  ms,
		srv:    srv,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{platform.ErrNotConnected, http.StatusBadRequest},
		{fmt.Errorf("chat x: %w", platform.ErrNotFound), http.StatusNotFound},
		{&platform.ExternalError{Op: "react", Err: errors.New("boom")}, http.StatusInternalServerError},
		{autoreact.ErrInvalidRequest, http.StatusBadRequest},
		{autoreact.ErrSessionNotFound, http.StatusNotFound},
		{autoreact.ErrNotRunning, http.StatusConflict},
		{rules.ErrInvalidRule, http.StatusBadRequest},
		{dispatcher.ErrAlreadyReacting, http.StatusConflict},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[healthResponse](t, rec).Status)

	rec = env.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	notReady := newTestEnv(t, func(f *platformtest.Client) { f.AutoReady = false })
	rec = notReady.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestChats(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/chats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	chats := decode[[]platform.Chat](t, rec)
	assert.Equal(t, []platform.Chat{{ID: "chat1", Name: "Friends", IsGroup: true, UnreadCount: 2}}, chats)

	notReady := newTestEnv(t, func(f *platformtest.Client) { f.AutoReady = false })
	rec = notReady.do(t, http.MethodGet, "/api/chats", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Error, "not connected")
}

func TestReact(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/react", `{"chatId":"chat1","messageId":"m2","emoji":"😂"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, successResponse{Success: true, Message: "Reaction sent"}, decode[successResponse](t, rec))

	reactions := env.fake.Reactions()
	require.Len(t, reactions, 1)
	assert.Equal(t, "m2", reactions[0].Message.ID)
	assert.Equal(t, "😂", reactions[0].Emoji)

	cm, ok := env.meter.Chat("chat1")
	require.True(t, ok)
	assert.Equal(t, int64(1), cm.BySource[meter.SourceAPI])
}

func TestReact_Errors(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/react", `{"chatId":"chat1","messageId":"missing","emoji":"😂"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/react", `{"chatId":"chat1","emoji":"😂"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/react", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.fake.SetReactErr(errors.New("rate limited"))
	rec = env.do(t, http.MethodPost, "/api/react", `{"chatId":"chat1","messageId":"m1","emoji":"🔥"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Error, "rate limited")
	assert.Equal(t, int64(1), env.meter.Totals().Failures)

	notReady := newTestEnv(t, func(f *platformtest.Client) { f.AutoReady = false })
	rec = notReady.do(t, http.MethodPost, "/api/react", `{"chatId":"chat1","messageId":"m1","emoji":"🔥"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAutoReact(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/auto-react", `{"chatId":"chat1","emojis":[],"maxReactions":3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auto-react", `{"chatId":"chat1","emojis":["😂","🔥"],"delay":0,"maxReactions":3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	started := decode[successResponse](t, rec)
	assert.True(t, started.Success)
	assert.Equal(t, "Auto-react started", started.Message)
	require.NotEmpty(t, started.SessionID)

	rec = env.do(t, http.MethodGet, "/api/auto-react/"+started.SessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, autoreact.StatusRunning, decode[autoreact.Session](t, rec).Status)

	rec = env.do(t, http.MethodGet, "/api/auto-react", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]autoreact.Session](t, rec), 1)

	rec = env.do(t, http.MethodDelete, "/api/auto-react/"+started.SessionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, autoreact.StatusCanceled, decode[autoreact.Session](t, rec).Status)

	rec = env.do(t, http.MethodDelete, "/api/auto-react/"+started.SessionID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/auto-react/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRules(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/rules", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/rules", `{"name":"laugh","emojis":["😂","🤣"],"keywords":["haha"],"cooldown":10}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, env.store.Len())

	rec = env.do(t, http.MethodPost, "/api/rules", `{"name":"empty","emojis":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/rules", `{"name":"odds","emojis":"🔥","probability":2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/rules", "")
	set := decode[[]rules.Rule](t, rec)
	require.Len(t, set, 1)
	assert.Equal(t, "laugh", set[0].Name)
}

func TestReactingControlAndStats(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/reacting/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[dispatcher.Stats](t, rec).IsReacting)

	rec = env.do(t, http.MethodPost, "/api/reacting/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, true, stats["isReacting"])
	assert.Equal(t, float64(0), stats["reactionCount"])
	assert.Equal(t, float64(0), stats["ruleCount"])
	assert.Equal(t, true, stats["connected"])
	assert.Contains(t, stats, "totals")

	rec = env.do(t, http.MethodPost, "/api/reacting/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[dispatcher.Stats](t, rec).IsReacting)

	rec = env.do(t, http.MethodPost, "/api/reacting/stop", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReactions(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/reactions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	for i := 1; i <= 3; i++ {
		require.NoError(t, env.log.Append(reactlog.Entry{
			Timestamp:     time.Now(),
			Chat:          "chat1",
			MessageID:     fmt.Sprintf("m%d", i),
			Emoji:         "😂",
			ReactionCount: i,
		}))
	}

	rec = env.do(t, http.MethodGet, "/api/reactions?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]reactlog.Entry](t, rec)
	require.Len(t, entries, 2)
	assert.Equal(t, 3, entries[len(entries)-1].ReactionCount)

	rec = env.do(t, http.MethodGet, "/api/reactions?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodGet, "/health", "")

	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "autoreact_requests_total")
}

func TestWebsocket(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var frame struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "status", frame.Event)
	assert.JSONEq(t, `"connected"`, string(frame.Data))

	require.Eventually(t, func() bool { return env.hub.Len() == 1 }, time.Second, 5*time.Millisecond)
	env.hub.Publish(events.Reaction("chat1", "😂", 1, 5))

	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "reaction_sent", frame.Event)
	assert.JSONEq(t, `{"chatId":"chat1","emoji":"😂","count":1,"total":5}`, string(frame.Data))
}
