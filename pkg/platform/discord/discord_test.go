package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tinyland-inc/autoreact/pkg/platform"
)

func TestConvertMessage(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		Content:   "lol",
		Timestamp: ts,
		Author:    &discordgo.User{ID: "bot"},
	}

	got := convertMessage(m, "bot")
	want := platform.Message{ID: "m1", From: "c1", Author: "bot", Body: "lol", Timestamp: ts, FromMe: true}
	if got != want {
		t.Errorf("convertMessage = %+v, want %+v", got, want)
	}

	if convertMessage(m, "other").FromMe {
		t.Error("message from another user marked FromMe")
	}
	if got := convertMessage(&discordgo.Message{ID: "m2"}, "bot"); got.Author != "" || got.FromMe {
		t.Errorf("authorless message = %+v", got)
	}
}

func TestConvertChannel(t *testing.T) {
	text := &discordgo.Channel{ID: "c1", Name: "general", Type: discordgo.ChannelTypeGuildText}
	if got := convertChannel(text); got != (platform.Chat{ID: "c1", Name: "general", IsGroup: true}) {
		t.Errorf("text channel = %+v", got)
	}

	dm := &discordgo.Channel{
		ID:         "d1",
		Type:       discordgo.ChannelTypeDM,
		Recipients: []*discordgo.User{{Username: "alice"}},
	}
	if got := convertChannel(dm); got.IsGroup || got.Name != "alice" {
		t.Errorf("dm channel = %+v", got)
	}
}

func TestIsTextChannel(t *testing.T) {
	if isTextChannel(&discordgo.Channel{Type: discordgo.ChannelTypeGuildVoice}) {
		t.Error("voice channel treated as text")
	}
	if !isTextChannel(&discordgo.Channel{Type: discordgo.ChannelTypeGroupDM}) {
		t.Error("group dm not treated as text")
	}
}

func TestIsNotFound(t *testing.T) {
	notFound := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}
	if !isNotFound(fmt.Errorf("wrapped: %w", notFound)) {
		t.Error("404 not detected")
	}
	forbidden := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	if isNotFound(forbidden) || isNotFound(errors.New("boom")) {
		t.Error("false positive")
	}
}

func TestClient_NotConnected(t *testing.T) {
	c := New("token")
	if _, err := c.GetChatByID(context.Background(), "c1"); !errors.Is(err, platform.ErrNotConnected) {
		t.Errorf("GetChatByID = %v", err)
	}
	if err := c.React(context.Background(), platform.Message{}, "🔥"); !errors.Is(err, platform.ErrNotConnected) {
		t.Errorf("React = %v", err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Errorf("Close before Initialize = %v", err)
	}
}
