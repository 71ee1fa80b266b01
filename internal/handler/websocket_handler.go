// internal/handler/websocket_handler.go
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"siggen-service/internal/model"
	"siggen-service/internal/service"
	"siggen-service/internal/utils"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

// WebSocketHandler streams session notifications to WebSocket clients
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	connections *ConnectionManager
	session     *service.Session
	eventBus    *EventBus
	logger      *utils.ServiceLogger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	session *service.Session,
	eventBus *EventBus,
	allowedOrigins []string,
	logger *zap.Logger,
) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	return &WebSocketHandler{
		upgrader:    upgrader,
		connections: NewConnectionManager(),
		session:     session,
		eventBus:    eventBus,
		logger:      utils.NewServiceLogger(logger, "websocket-handler"),
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/events", h.HandleEventConnection)
	router.GET("/stats", h.GetStats)
}

// Run forwards bus events to connected clients until ctx is cancelled
func (h *WebSocketHandler) Run(ctx context.Context) {
	events, cancel := h.eventBus.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			h.broadcast(event)
		}
	}
}

// HandleEventConnection handles event WebSocket connections
// @Summary Session event stream
// @Description Upgrade to a WebSocket receiving message_success, message_fail, simulated_write and port_connected events
// @Tags Events
// @Router /ws/events [get]
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.connections.Register(client)
	h.logger.Info("Event WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("remote_addr", client.RemoteAddr),
	)

	h.sendMessage(client, &WebSocketMessage{
		Type:      "status",
		Data:      h.session.Status(),
		Timestamp: time.Now(),
	})

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// GetStats returns WebSocket connection statistics
func (h *WebSocketHandler) GetStats(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "WebSocket statistics retrieved", h.connections.GetStats())
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
		h.logger.Info("Event WebSocket client disconnected", zap.String("client_id", client.ID))
	}()

	client.Connection.SetReadDeadline(time.Now().Add(pongWait))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			break
		}

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.logger.Warn("Failed to parse WebSocket message",
				zap.Error(err),
				zap.String("client_id", client.ID),
			)
			h.reply(client, &message, "error", gin.H{"message": "invalid message"})
			continue
		}

		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite handles writing messages to WebSocket client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage answers one client request. Replies carry the
// request_id of the request they answer.
func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	switch message.Type {
	case "subscribe", "unsubscribe":
		eventType, err := eventTypeFrom(message)
		if err != nil {
			h.reply(client, message, "error", gin.H{"message": err.Error()})
			return
		}
		if message.Type == "subscribe" {
			client.Subscribe(eventType)
		} else {
			client.Unsubscribe(eventType)
		}
		h.reply(client, message, message.Type+"_confirmed", gin.H{"event_type": eventType})
	case "status":
		h.reply(client, message, "status", h.session.Status())
	case "ping":
		h.reply(client, message, "pong", nil)
	default:
		h.logger.Debug("Unknown message type",
			zap.String("type", message.Type),
			zap.String("client_id", client.ID),
		)
		h.reply(client, message, "error", gin.H{"message": "unknown message type: " + message.Type})
	}
}

func (h *WebSocketHandler) reply(client *Client, request *WebSocketMessage, messageType string, data interface{}) {
	h.sendMessage(client, &WebSocketMessage{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: request.RequestID,
	})
}

// broadcast sends an event to every interested client
func (h *WebSocketHandler) broadcast(event model.Notification) {
	payload, err := json.Marshal(&WebSocketMessage{
		Type:      "event",
		Data:      event,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.Error(err))
		return
	}

	for _, id := range h.connections.Broadcast(event.Type, payload) {
		h.logger.Warn("Client send buffer full, dropping event",
			zap.String("client_id", id),
			zap.String("event_type", string(event.Type)),
		)
	}
}

// sendMessage queues a message for a single client
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	defer func() {
		// Send is closed once the client is unregistered
		recover()
	}()

	select {
	case client.Send <- payload:
	default:
		h.logger.Warn("Client send buffer full", zap.String("client_id", client.ID))
	}
}

func eventTypeFrom(message *WebSocketMessage) (model.EventType, error) {
	data, _ := message.Data.(map[string]interface{})
	name, _ := data["event_type"].(string)
	if name == "" {
		return "", fmt.Errorf("event_type is required")
	}
	eventType := model.EventType(name)
	if !eventType.Valid() {
		return "", fmt.Errorf("unknown event_type: %s", name)
	}
	return eventType, nil
}

func originChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[origin] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
