package telegram

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/mymmrac/telego"

	"github.com/tinyland-inc/autoreact/pkg/platform"
)

func TestConvertMessage(t *testing.T) {
	m := &telego.Message{
		MessageID: 42,
		Date:      1700000000,
		Chat:      telego.Chat{ID: -100, Type: telego.ChatTypeSupergroup, Title: "friends"},
		From:      &telego.User{ID: 7},
		Text:      "haha",
	}
	chat, msg := convertMessage(m, 7)

	if chat != (platform.Chat{ID: "-100", Name: "friends", IsGroup: true}) {
		t.Errorf("chat = %+v", chat)
	}
	if msg.ID != "42" || msg.From != "-100" || msg.Author != "7" || msg.Body != "haha" || !msg.FromMe {
		t.Errorf("message = %+v", msg)
	}
	if msg.Timestamp.Unix() != 1700000000 {
		t.Errorf("timestamp = %v", msg.Timestamp)
	}
}

func TestConvertMessage_CaptionAndPrivate(t *testing.T) {
	m := &telego.Message{
		MessageID: 1,
		Chat:      telego.Chat{ID: 5, Type: telego.ChatTypePrivate, FirstName: "Ada", LastName: "L"},
		Caption:   "photo lol",
	}
	chat, msg := convertMessage(m, 9)
	if chat.IsGroup || chat.Name != "Ada L" {
		t.Errorf("chat = %+v", chat)
	}
	if msg.Body != "photo lol" || msg.Author != "5" || msg.FromMe {
		t.Errorf("message = %+v", msg)
	}
}

func TestHistory(t *testing.T) {
	h, err := newHistory(2)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < messagesPerChat+10; i++ {
		h.add(platform.Chat{ID: "1"}, 1, platform.Message{ID: strconv.Itoa(i), From: "1"})
	}

	recent := h.recent(1, 3)
	if len(recent) != 3 || recent[0].ID != strconv.Itoa(messagesPerChat+9) {
		t.Errorf("recent = %+v", recent)
	}
	if all := h.recent(1, 0); len(all) != messagesPerChat {
		t.Errorf("kept %d messages, want %d", len(all), messagesPerChat)
	}

	chat, ok := h.chat(1)
	if !ok || chat.UnreadCount != messagesPerChat+10 {
		t.Errorf("chat = %+v, %v", chat, ok)
	}

	h.add(platform.Chat{ID: "2"}, 2, platform.Message{ID: "a"})
	h.add(platform.Chat{ID: "3"}, 3, platform.Message{ID: "b"})
	if _, ok := h.chat(1); ok {
		t.Error("least recently used chat was not evicted")
	}
	if got := len(h.chatList()); got != 2 {
		t.Errorf("chatList len = %d, want 2", got)
	}
}

func TestParseChatID(t *testing.T) {
	if id, err := parseChatID("-100123"); err != nil || id != -100123 {
		t.Errorf("parseChatID = %d, %v", id, err)
	}
	if _, err := parseChatID("general"); !errors.Is(err, platform.ErrNotFound) {
		t.Errorf("parseChatID(general) = %v", err)
	}
}

func TestClient_NotConnected(t *testing.T) {
	c, err := New("123:abc", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetChats(context.Background()); !errors.Is(err, platform.ErrNotConnected) {
		t.Errorf("GetChats = %v", err)
	}
	if _, err := c.FetchMessages(context.Background(), "1", 10); !errors.Is(err, platform.ErrNotConnected) {
		t.Errorf("FetchMessages = %v", err)
	}
}
