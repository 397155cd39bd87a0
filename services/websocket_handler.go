package services

import (
	"log/slog"

	"github.com/team-mirai/mirai-gikai-sub000/interview"
	ws "github.com/team-mirai/mirai-gikai-sub000/websocket"
)

// WebSocketHandler runs chat turns received over a websocket connection.
// Frames mirror the server-sent events of the HTTP chat endpoint.
type WebSocketHandler struct {
	chat *ChatService
}

func NewWebSocketHandler(chat *ChatService) *WebSocketHandler {
	return &WebSocketHandler{chat: chat}
}

// HandleWebSocketMessage processes one inbound frame
func (h *WebSocketHandler) HandleWebSocketMessage(client *ws.Client, msg ws.Message) {
	switch msg.Type {
	case "chat":
		h.handleChat(client, msg)
	default:
		slog.Warn("Unknown message type", "type", msg.Type, "client_id", client.ID)
		client.SendFrame(ws.Frame{Type: eventError, Data: ErrorResponse{Error: "unknown message type"}})
	}
}

func (h *WebSocketHandler) handleChat(client *ws.Client, msg ws.Message) {
	req := ChatRequest{
		BillID:  client.BillID,
		Auth:    interview.AuthResult{UserID: client.UserID},
		Text:    msg.Text,
		IsRetry: msg.IsRetry,
	}

	// The client's context ends with the connection, aborting the turn
	result, err := h.chat.Chat(client.Context(), req, func(d Delta) error {
		return client.SendFrame(ws.Frame{Type: eventDelta, Data: d})
	})
	if err != nil {
		slog.Warn("WebSocket chat turn failed", "error", err, "client_id", client.ID, "retryable", IsRetryable(err))
		client.SendFrame(ws.Frame{Type: eventError, Data: newErrorResponse(err)})
		return
	}

	if err := client.SendFrame(ws.Frame{Type: eventDone, Data: result}); err != nil {
		slog.Warn("Failed to send turn result", "error", err, "client_id", client.ID)
	}
}
