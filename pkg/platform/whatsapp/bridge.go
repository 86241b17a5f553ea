// Package whatsapp talks to a whatsapp-web bridge process over a websocket.
//
// The bridge owns the WhatsApp Web session. Both directions use JSON-RPC 2.0
// framing: the bridge pushes qr, ready, disconnected and message
// notifications, and answers get_chats, get_chat, fetch_messages and react
// requests by id.
package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tinyland-inc/autoreact/pkg/logger"
	"github.com/tinyland-inc/autoreact/pkg/platform"
)

// Error codes the bridge uses in RPC error responses.
const (
	CodeNotFound     = 404
	CodeNotConnected = 503
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// frame is any message read from the bridge: a response when ID is set, a
// notification when Method is set.
type frame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("bridge error %d: %s", e.Code, e.Message)
}

type wireMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Author    string `json:"author,omitempty"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
	FromMe    bool   `json:"fromMe"`
}

func (m wireMessage) toMessage() platform.Message {
	author := m.Author
	if author == "" {
		author = m.From
	}
	var ts time.Time
	if m.Timestamp > 0 {
		ts = time.Unix(m.Timestamp, 0)
	}
	return platform.Message{
		ID:        m.ID,
		From:      m.From,
		Author:    author,
		Body:      m.Body,
		Timestamp: ts,
		FromMe:    m.FromMe,
	}
}

type Client struct {
	*platform.BaseClient
	url    string
	dialer *websocket.Dialer

	connMu  sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	nextID     atomic.Uint64
	callbacks  map[uint64]chan frame
	callbackMu sync.Mutex
}

func New(url string, opts ...platform.BaseClientOption) *Client {
	return &Client{
		BaseClient: platform.NewBaseClient("whatsapp", opts...),
		url:        url,
		dialer:     websocket.DefaultDialer,
		callbacks:  make(map[uint64]chan frame),
	}
}

func (c *Client) Initialize(ctx context.Context, handler platform.EventHandler) error {
	c.SetHandler(handler)

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dialing whatsapp bridge %s: %w", c.url, err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.SetRunning(true)

	go c.readLoop(conn)

	logger.InfoCF("whatsapp", "Connected to bridge", map[string]any{"url": c.url})
	return nil
}

func (c *Client) Close(_ context.Context) error {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()
	c.SetRunning(false)

	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return conn.Close()
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.failPending(err)
			c.EmitDisconnected(err.Error())
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			logger.WarnCF("whatsapp", "Ignoring malformed bridge frame", map[string]any{"error": err.Error()})
			continue
		}

		if f.Method != "" {
			c.handleNotification(f)
			continue
		}

		c.resolve(f)
	}
}

// resolve hands a response to the waiting caller. A duplicate response for
// an id whose caller already has one is dropped.
func (c *Client) resolve(f frame) {
	c.callbackMu.Lock()
	ch, ok := c.callbacks[f.ID]
	c.callbackMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- f:
	default:
		logger.WarnCF("whatsapp", "Dropping duplicate bridge response", map[string]any{"id": f.ID})
	}
}

func (c *Client) handleNotification(f frame) {
	switch f.Method {
	case "qr":
		var p struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal(f.Params, &p); err == nil {
			c.EmitQR(p.Code)
		}
	case "ready":
		c.EmitReady()
	case "disconnected":
		var p struct {
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(f.Params, &p)
		c.EmitDisconnected(p.Reason)
	case "message":
		var m wireMessage
		if err := json.Unmarshal(f.Params, &m); err != nil {
			logger.WarnCF("whatsapp", "Ignoring malformed message notification", map[string]any{"error": err.Error()})
			return
		}
		c.HandleMessage(m.toMessage())
	default:
		logger.DebugCF("whatsapp", "Unknown bridge notification", map[string]any{"method": f.Method})
	}
}

func (c *Client) failPending(err error) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	for id, ch := range c.callbacks {
		select {
		case ch <- frame{ID: id, Error: &RPCError{Code: CodeNotConnected, Message: err.Error()}}:
		default:
		}
	}
}

// call sends a request and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return platform.ErrNotConnected
	}

	id := c.nextID.Add(1)
	ch := make(chan frame, 1)
	c.callbackMu.Lock()
	c.callbacks[id] = ch
	c.callbackMu.Unlock()
	defer func() {
		c.callbackMu.Lock()
		delete(c.callbacks, id)
		c.callbackMu.Unlock()
	}()

	c.writeMu.Lock()
	err := conn.WriteJSON(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("sending %s: %w", method, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			switch resp.Error.Code {
			case CodeNotFound:
				return fmt.Errorf("%s: %w", resp.Error.Message, platform.ErrNotFound)
			case CodeNotConnected:
				return fmt.Errorf("%s: %w", resp.Error.Message, platform.ErrNotConnected)
			}
			return resp.Error
		}
		if out == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) GetChats(ctx context.Context) ([]platform.Chat, error) {
	var chats []platform.Chat
	if err := c.call(ctx, "get_chats", nil, &chats); err != nil {
		return nil, err
	}
	if chats == nil {
		chats = []platform.Chat{}
	}
	return chats, nil
}

func (c *Client) GetChatByID(ctx context.Context, chatID string) (platform.Chat, error) {
	var chat platform.Chat
	err := c.call(ctx, "get_chat", map[string]any{"chatId": chatID}, &chat)
	return chat, err
}

func (c *Client) FetchMessages(ctx context.Context, chatID string, limit int) ([]platform.Message, error) {
	var wire []wireMessage
	if err := c.call(ctx, "fetch_messages", map[string]any{"chatId": chatID, "limit": limit}, &wire); err != nil {
		return nil, err
	}
	msgs := make([]platform.Message, 0, len(wire))
	for _, m := range wire {
		msgs = append(msgs, m.toMessage())
	}
	return msgs, nil
}

func (c *Client) React(ctx context.Context, msg platform.Message, emoji string) error {
	if emoji == "" {
		return errors.New("empty emoji")
	}
	return c.call(ctx, "react", map[string]any{
		"chatId":    msg.From,
		"messageId": msg.ID,
		"emoji":     emoji,
	}, nil)
}

var _ platform.Client = (*Client)(nil)
