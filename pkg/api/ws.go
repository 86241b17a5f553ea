package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/tinyland-inc/autoreact/pkg/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// handleWebsocket pushes every hub event to the client as a {event, data}
// text frame. The client first receives the current connection snapshot.
func (s *Server) handleWebsocket(c echo.Context) error {
	if s.opts.Hub == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event push disabled")
	}
	sub := s.opts.Hub.Subscribe()
	if sub == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "shutting down")
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(c.Response().Writer, c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return nil
	}
	defer conn.Close()

	logger.DebugCF("api", "Websocket client connected", map[string]any{"remote": c.RealIP()})

	// Drain reads so control frames are processed and a client close is seen.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(wsWriteWait))
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(evt); err != nil {
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return nil
			}
		case <-closed:
			logger.DebugCF("api", "Websocket client disconnected", map[string]any{"remote": c.RealIP()})
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
