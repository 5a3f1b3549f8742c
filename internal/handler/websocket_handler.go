// internal/handler/websocket_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"printer-bridge/internal/dispatch"
	"printer-bridge/internal/model"
	"printer-bridge/internal/utils"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Invoker starts one facade method call
type Invoker interface {
	Call(method string, arguments json.RawMessage) *dispatch.Future[interface{}]
}

// WebSocketHandler streams printer events to WebSocket clients and accepts
// method calls over the same socket
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	clients  *ClientRegistry
	bus      *EventBus
	invoker  Invoker
	logger   *utils.ServiceLogger
	done     chan struct{}
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(bus *EventBus, invoker Invoker, allowedOrigins []string, logger *zap.Logger) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	return &WebSocketHandler{
		upgrader: upgrader,
		clients:  NewClientRegistry(),
		bus:      bus,
		invoker:  invoker,
		logger:   utils.NewServiceLogger(logger, "websocket-handler"),
		done:     make(chan struct{}),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// Start forwards bus events to clients until Stop is called
func (h *WebSocketHandler) Start() {
	events, unsubscribe := h.bus.Subscribe(AllEvents)
	defer unsubscribe()

	for {
		select {
		case event := <-events:
			h.BroadcastEvent(event)
		case <-h.done:
			return
		}
	}
}

// Stop ends forwarding and closes every client
func (h *WebSocketHandler) Stop() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
	h.clients.CloseAll()
}

// HandleEventConnection streams every printer event
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	h.serve(c, ClientTypeEvents)
}

// HandleOperationConnection streams operation events only
func (h *WebSocketHandler) HandleOperationConnection(c *gin.Context) {
	h.serve(c, ClientTypeOperations)
}

func (h *WebSocketHandler) serve(c *gin.Context, clientType string) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		Type:        clientType,
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	h.clients.Register(client)
	h.logger.Info("WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("type", clientType),
		zap.String("remote_addr", client.RemoteAddr),
	)

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.clients.Unregister(client)
		client.Connection.Close()
		h.logger.Info("WebSocket client disconnected", zap.String("client_id", client.ID))
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

		var message incomingMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.sendError(client, "", "malformed message")
			continue
		}

		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite handles writing messages to WebSocket client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(pingPeriod)
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

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *incomingMessage) {
	switch message.Type {
	case "subscribe", "unsubscribe":
		var data struct {
			Topic string `json:"topic"`
		}
		if err := json.Unmarshal(message.Data, &data); err != nil || data.Topic == "" {
			h.sendError(client, message.RequestID, "topic is required")
			return
		}
		if message.Type == "subscribe" {
			client.Subscribe(data.Topic)
			h.sendMessage(client, &WebSocketMessage{
				Type:      "subscription_confirmed",
				Data:      map[string]interface{}{"topic": data.Topic},
				Timestamp: time.Now(),
				RequestID: message.RequestID,
			})
			return
		}
		client.Unsubscribe(data.Topic)

	case "call":
		var call MethodCall
		if err := json.Unmarshal(message.Data, &call); err != nil || call.Method == "" {
			h.sendError(client, message.RequestID, "method is required")
			return
		}
		h.executeCall(client, message.RequestID, call)

	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})

	default:
		h.logger.Warn("Unknown message type",
			zap.String("type", message.Type),
			zap.String("client_id", client.ID),
		)
		h.sendError(client, message.RequestID, "unknown message type: "+message.Type)
	}
}

// executeCall starts a method call and replies with call_result once it
// completes
func (h *WebSocketHandler) executeCall(client *Client, requestID string, call MethodCall) {
	h.invoker.Call(call.Method, call.Arguments).Then(func(result interface{}, err error) {
		h.replyCall(client, requestID, call.Method, result, err)
	})
}

func (h *WebSocketHandler) replyCall(client *Client, requestID, method string, result interface{}, err error) {
	data := map[string]interface{}{
		"method":  method,
		"success": err == nil,
		"result":  result,
	}
	if err != nil {
		data["error"] = err.Error()
		if code := model.CodeOf(err); code != "" {
			data["code"] = string(code)
		}
	}

	h.sendMessage(client, &WebSocketMessage{
		Type:      "call_result",
		Data:      data,
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

// sendMessage sends a message to a client
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	if !h.clients.Send(client, messageBytes) {
		h.logger.Warn("Client gone or send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// sendError sends an error message to a client
func (h *WebSocketHandler) sendError(client *Client, requestID, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type:      "error",
		Data:      map[string]interface{}{"error": errorMsg},
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

// BroadcastEvent sends a printer event to event clients, and operation
// events to operation clients too
func (h *WebSocketHandler) BroadcastEvent(event model.PrinterEvent) {
	messageBytes, err := json.Marshal(&WebSocketMessage{
		Type:      "printer_event",
		Data:      event,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	topic := string(event.EventType)
	_, dropped := h.clients.Deliver(ClientTypeEvents, topic, messageBytes)

	switch event.EventType {
	case model.EventOperationStarted, model.EventOperationCompleted, model.EventOperationFailed:
		_, d := h.clients.Deliver(ClientTypeOperations, topic, messageBytes)
		dropped += d
	}

	if dropped > 0 {
		h.logger.Warn("Client send channel full during broadcast",
			zap.String("event_type", topic),
			zap.Int("dropped", dropped),
		)
	}
}

// GetConnectionStats returns connection statistics
func (h *WebSocketHandler) GetConnectionStats(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "WebSocket connections", h.clients.GetStats())
}
