package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/inspira/internal/testutil"
	"github.com/xhad/inspira/pkg/workflow"
)

func dial(t *testing.T, serverURL string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketChat(t *testing.T) {
	h := newHarness(t, workflow.WithSynthesizer(staticSynth{}))

	resp := upload(t, h.server.URL, "file", "sample.pdf", testutil.BuildPDF("Hello world", "Goodbye"))
	resp.Body.Close()

	conn := dial(t, h.server.URL, nil)
	require.NoError(t, conn.WriteJSON(Message{Type: "chat", Content: "Hello?"}))

	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "context", msg.Type)
	assert.Equal(t, []interface{}{"Hello world Goodbye"}, msg.Data)

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "response", msg.Type)
	assert.Equal(t, "1 chunks considered", msg.Content)
}

func TestWebSocketWithoutAnswer(t *testing.T) {
	h := newHarness(t)
	conn := dial(t, h.server.URL, nil)

	require.NoError(t, conn.WriteJSON(Message{Type: "chat", Content: "anything"}))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "context", msg.Type)

	// Only a context message is sent, so the next reply belongs to the
	// next request.
	require.NoError(t, conn.WriteJSON(Message{Type: "ping"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Content, "unsupported message type")
}

func TestWebSocketInvalidMessage(t *testing.T) {
	h := newHarness(t)
	conn := dial(t, h.server.URL, nil)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{nope")))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	h := newHarness(t)
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
