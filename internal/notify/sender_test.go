package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramSender_FormatsByEvent(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("token", "chat-1")
	s.baseURL = srv.URL

	err := s.Send(context.Background(), EventStopLossTriggered, "Stopped out", "BTC/USDT closed at 48200")
	require.NoError(t, err)

	assert.Equal(t, "chat-1", got["chat_id"])
	assert.Equal(t, "Markdown", got["parse_mode"])
	assert.Contains(t, got["text"], "*Stopped out*")
	assert.Contains(t, got["text"], eventIcon(EventStopLossTriggered))
}

func TestTelegramSender_NonOKStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "chat not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewTelegramSender("token", "chat-1")
	s.baseURL = srv.URL

	err := s.Send(context.Background(), EventRiskWarning, "t", "m")
	assert.ErrorContains(t, err, "400")
}

func TestDiscordSender_EmbedColourTracksEvent(t *testing.T) {
	var got struct {
		Embeds []discordEmbed `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	err := s.Send(context.Background(), EventTakeProfit, "Profit taken", "ETH/USDT at target")
	require.NoError(t, err)

	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "Profit taken", got.Embeds[0].Title)
	assert.Equal(t, "ETH/USDT at target", got.Embeds[0].Description)
	assert.Equal(t, eventColour(EventTakeProfit), got.Embeds[0].Color)
}
