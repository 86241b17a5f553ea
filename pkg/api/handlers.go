package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tinyland-inc/autoreact/pkg/autoreact"
	"github.com/tinyland-inc/autoreact/pkg/dispatcher"
	"github.com/tinyland-inc/autoreact/pkg/logger"
	"github.com/tinyland-inc/autoreact/pkg/meter"
	"github.com/tinyland-inc/autoreact/pkg/platform"
	"github.com/tinyland-inc/autoreact/pkg/reactlog"
	"github.com/tinyland-inc/autoreact/pkg/rules"
)

const (
	defaultReactionsLimit = 50
	maxReactionsLimit     = 1000
)

type successResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

type reactRequest struct {
	ChatID    string `json:"chatId"`
	Emoji     string `json:"emoji"`
	MessageID string `json:"messageId"`
}

func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}

func (s *Server) handleReact(c echo.Context) error {
	var req reactRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid JSON body")
	}
	if strings.TrimSpace(req.ChatID) == "" || strings.TrimSpace(req.MessageID) == "" || strings.TrimSpace(req.Emoji) == "" {
		return badRequest("chatId, messageId and emoji are required")
	}

	ctx := c.Request().Context()
	msg, err := s.opts.Session.FindMessage(ctx, req.ChatID, req.MessageID)
	if err != nil {
		return err
	}
	if err := s.opts.Session.React(ctx, msg, req.Emoji); err != nil {
		if s.opts.Meter != nil {
			s.opts.Meter.RecordFailure(meter.SourceAPI, req.ChatID, time.Now())
		}
		return err
	}

	if s.opts.Meter != nil {
		s.opts.Meter.RecordReaction(meter.SourceAPI, req.ChatID, req.Emoji, time.Now())
	}
	logger.InfoCF("api", "Manual reaction sent", map[string]any{
		"chat_id":    req.ChatID,
		"message_id": req.MessageID,
		"emoji":      req.Emoji,
	})
	return c.JSON(http.StatusOK, successResponse{Success: true, Message: "Reaction sent"})
}

func (s *Server) handleChats(c echo.Context) error {
	chats, err := s.opts.Session.GetChats(c.Request().Context())
	if err != nil {
		return err
	}
	if chats == nil {
		chats = []platform.Chat{}
	}
	return c.JSON(http.StatusOK, chats)
}

func (s *Server) handleStartAutoReact(c echo.Context) error {
	var req autoreact.Request
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid JSON body")
	}
	sess, err := s.opts.Runner.Start(s.opts.BaseContext, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, successResponse{
		Success:   true,
		Message:   "Auto-react started",
		SessionID: sess.ID,
	})
}

func (s *Server) handleListAutoReact(c echo.Context) error {
	return c.JSON(http.StatusOK, s.opts.Runner.List())
}

func (s *Server) handleGetAutoReact(c echo.Context) error {
	sess, err := s.opts.Runner.Get(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) handleStopAutoReact(c echo.Context) error {
	id := c.Param("id")
	if err := s.opts.Runner.Stop(id); err != nil {
		return err
	}
	sess, err := s.opts.Runner.Get(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) handleListRules(c echo.Context) error {
	set := s.opts.Rules.Rules()
	if set == nil {
		set = []rules.Rule{}
	}
	return c.JSON(http.StatusOK, set)
}

func (s *Server) handleAddRule(c echo.Context) error {
	var rule rules.Rule
	if err := c.Bind(&rule); err != nil {
		return badRequest("invalid rule: " + err.Error())
	}
	if err := s.opts.Rules.Add(rule); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rule)
}

type statsResponse struct {
	dispatcher.Stats
	Connected         bool              `json:"connected"`
	AutoReactSessions int               `json:"autoReactSessions"`
	Listeners         int               `json:"listeners"`
	Totals            meter.Totals      `json:"totals"`
	Chats             []meter.ChatMeter `json:"chats"`
}

func (s *Server) handleStats(c echo.Context) error {
	resp := statsResponse{
		Stats:     s.opts.Dispatcher.Stats(),
		Connected: s.opts.Session.Connected(),
		Chats:     []meter.ChatMeter{},
	}
	if s.opts.Runner != nil {
		resp.AutoReactSessions = s.opts.Runner.Active()
	}
	if s.opts.Hub != nil {
		resp.Listeners = s.opts.Hub.Len()
	}
	if s.opts.Meter != nil {
		resp.Totals = s.opts.Meter.Totals()
		if chats := s.opts.Meter.Chats(); chats != nil {
			resp.Chats = chats
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStartReacting(c echo.Context) error {
	if err := s.opts.Dispatcher.Start(); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.opts.Dispatcher.Stats())
}

func (s *Server) handleStopReacting(c echo.Context) error {
	if err := s.opts.Dispatcher.Stop(); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.opts.Dispatcher.Stats())
}

func (s *Server) handleReactions(c echo.Context) error {
	limit := defaultReactionsLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return badRequest("limit must be a positive integer")
		}
		limit = min(n, maxReactionsLimit)
	}

	entries, err := s.opts.Log.Tail(limit)
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []reactlog.Entry{}
	}
	return c.JSON(http.StatusOK, entries)
}
