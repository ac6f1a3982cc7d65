package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// The HTTP server's deadlines do not apply to a long-lived socket.
	conn.UnderlyingConn().SetDeadline(time.Time{})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("Error reading message", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			s.sendMessage(conn, Message{Type: "error", Content: "invalid message: " + err.Error()})
			continue
		}

		// Messages are handled in order so writes to conn never interleave.
		s.handleMessage(r.Context(), conn, msg)
	}
}

func (s *Server) handleMessage(ctx context.Context, conn *websocket.Conn, msg Message) {
	if msg.Type != "chat" {
		s.sendMessage(conn, Message{Type: "error", Content: "unsupported message type: " + msg.Type})
		return
	}
	if msg.Content == "" {
		s.sendMessage(conn, Message{Type: "error", Content: "question is required"})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	state, err := s.deps.Workflow.Invoke(ctx, msg.Content, nil)
	if err != nil {
		s.logger.Error("Chat failed", zap.String("question", msg.Content), zap.Error(err))
		s.sendMessage(conn, Message{Type: "error", Content: "Chat failed: " + err.Error()})
		return
	}

	docs := state.Context
	if docs == nil {
		docs = []string{}
	}
	s.sendMessage(conn, Message{Type: "context", Data: docs})
	if state.Answer != "" {
		s.sendMessage(conn, Message{Type: "response", Content: state.Answer})
	}
}

func (s *Server) sendMessage(conn *websocket.Conn, msg Message) {
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Warn("Error sending message", zap.Error(err))
	}
}
