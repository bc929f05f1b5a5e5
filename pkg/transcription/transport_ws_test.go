package transcription

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSTransport_StartStreamSendAndRecv_RoundTrips(t *testing.T) {
	var receivedConfig Config
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "closing")

		if err := wsjson.Read(r.Context(), conn, &receivedConfig); err != nil {
			return
		}

		_, _, err = conn.Read(r.Context()) // the binary audio chunk
		if err != nil {
			return
		}

		_ = wsjson.Write(r.Context(), conn, wireEvent{
			ResultID:  "r1",
			IsPartial: false,
			Channel:   "ch_0",
			Alternatives: []struct {
				Content    string  `json:"content"`
				StartTime  float64 `json:"start_time"`
				EndTime    float64 `json:"end_time"`
				Type       string  `json:"type"`
				Confidence float64 `json:"confidence"`
				Speaker    string  `json:"speaker,omitempty"`
			}{{Content: "hello", Confidence: 0.9}},
		})
	}))
	defer server.Close()

	endpoint := "ws" + strings.TrimPrefix(server.URL, "http")
	transport := NewWSTransport(endpoint, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	handle, err := transport.StartStream(ctx, DefaultConfig())
	require.NoError(t, err)

	events, err := transport.RecvEvents(ctx, handle)
	require.NoError(t, err)

	outcome, err := transport.SendAudio(ctx, handle, []byte{0, 1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, SendOK, outcome)

	select {
	case ev := <-events:
		assert.Equal(t, "r1", ev.ResultID)
		assert.False(t, ev.IsPartial)
		assert.Equal(t, "hello", ev.Alternatives[0].Content)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for server event")
	}

	require.NoError(t, transport.EndStream(ctx, handle))
	assert.Equal(t, DefaultConfig().LanguageCode, receivedConfig.LanguageCode)
}
