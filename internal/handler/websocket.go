package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pinspire/internal/domain"
	"pinspire/internal/middleware"
	"pinspire/internal/service"
	"pinspire/pkg/logger"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 90 * time.Second // допускаем потерю 2-3 ping подряд
	pingInterval = 25 * time.Second
	readLimit    = int64(64 << 10)
)

// serverEvent / clientEvent — JSON-конверт realtime-канала: {event, data}.
type serverEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type clientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// wsClient оборачивает соединение; у gorilla ровно один писатель,
// поэтому все записи идут под мьютексом.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

var _ service.Client = (*wsClient)(nil)

func (c *wsClient) Send(event string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(serverEvent{Event: event, Data: data})
}

func (c *wsClient) Close() error {
	return c.conn.Close()
}

func (c *wsClient) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// WebSocketHandler — realtime-шлюз. Аутентифицирует рукопожатие тем же
// сессионным токеном, что и REST, регистрирует присутствие и диспетчеризует
// события соединения в сервисы чата и присутствия.
type WebSocketHandler struct {
	authService service.AuthService
	chatService service.ChatService
	presence    service.PresenceService
	log         logger.Logger
	upgrader    websocket.Upgrader
}

func NewWebSocketHandler(authService service.AuthService, chatService service.ChatService, presence service.PresenceService, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		authService: authService,
		chatService: chatService,
		presence:    presence,
		log:         log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // В продакшене нужно проверять origin
			},
		},
	}
}

func (h *WebSocketHandler) HandleChat(c *gin.Context) {
	// Отказ до upgrade: без валидного токена присутствие не регистрируется
	tokenString := middleware.SessionToken(c.Request)
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"result": false, "message": "Authentication required"})
		return
	}

	user, err := h.authService.ValidateToken(c.Request.Context(), tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"result": false, "message": "Invalid or expired token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "user_id", user.ID, "error", err)
		return
	}

	client := &wsClient{conn: conn}
	ctx := c.Request.Context()

	h.presence.Register(ctx, user.ID, client)

	done := make(chan struct{})
	go h.pingLoop(client, done)

	h.readLoop(ctx, user.ID, client)

	close(done)
	h.presence.Unregister(ctx, user.ID, client)
	_ = conn.Close()
}

func (h *WebSocketHandler) pingLoop(client *wsClient, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := client.ping(); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *WebSocketHandler) readLoop(ctx context.Context, userID uuid.UUID, client *wsClient) {
	conn := client.conn
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			// Любое завершение чтения равнозначно дисконнекту;
			// сообщения не теряются, долговечность уже случилась при отправке
			return
		}

		var evt clientEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			h.sendError(client, "Invalid message data")
			continue
		}

		h.dispatch(ctx, userID, client, evt)
	}
}

// dispatch — по одному обработчику на событие; ошибки уходят только
// отправителю отдельным событием error, никогда не broadcast.
func (h *WebSocketHandler) dispatch(ctx context.Context, userID uuid.UUID, client *wsClient, evt clientEvent) {
	switch evt.Event {
	case domain.EventSendMessage:
		h.handleSendMessage(ctx, userID, client, evt.Data)
	case domain.EventSendFileMessage:
		h.handleSendFileMessage(ctx, userID, client, evt.Data)
	case domain.EventMarkAsRead:
		h.handleMarkAsRead(ctx, userID, client, evt.Data)
	case domain.EventCheckOnlineStatus:
		h.handleCheckOnlineStatus(client, evt.Data)
	default:
		h.sendError(client, "Unknown event: "+evt.Event)
	}
}

type sendMessagePayload struct {
	ConversationID *uuid.UUID `json:"conversationId"`
	RecipientID    *uuid.UUID `json:"recipientId"`
	Content        string     `json:"content"`
}

func (h *WebSocketHandler) handleSendMessage(ctx context.Context, userID uuid.UUID, client *wsClient, data json.RawMessage) {
	var payload sendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(client, "Invalid message data")
		return
	}

	result, err := h.chatService.SendMessage(ctx, userID, service.SendMessageInput{
		ConversationID: payload.ConversationID,
		RecipientID:    payload.RecipientID,
		Content:        payload.Content,
	})
	if err != nil {
		h.sendError(client, err.Error())
		return
	}

	// Подтверждение отправителю с серверными id и timestamp,
	// чтобы клиент сверил свой оптимистичный плейсхолдер
	h.sendToClient(client, domain.EventMessageSent, domain.MessageEvent{
		Message:        result.Message,
		ConversationID: result.Conversation.ID,
	})
}

type sendFileMessagePayload struct {
	ConversationID *uuid.UUID `json:"conversationId"`
	RecipientID    *uuid.UUID `json:"recipientId"`
	FileURL        string     `json:"fileUrl"`
	FileName       string     `json:"fileName"`
	FileType       string     `json:"fileType"`
	FileSize       int64      `json:"fileSize"`
}

func (h *WebSocketHandler) handleSendFileMessage(ctx context.Context, userID uuid.UUID, client *wsClient, data json.RawMessage) {
	var payload sendFileMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		h.sendError(client, "Invalid message data")
		return
	}

	result, err := h.chatService.SendMessage(ctx, userID, service.SendMessageInput{
		ConversationID: payload.ConversationID,
		RecipientID:    payload.RecipientID,
		File: &service.FileInput{
			URL:  payload.FileURL,
			Name: payload.FileName,
			Type: payload.FileType,
			Size: payload.FileSize,
		},
	})
	if err != nil {
		h.sendError(client, err.Error())
		return
	}

	h.sendToClient(client, domain.EventMessageSent, domain.MessageEvent{
		Message:        result.Message,
		ConversationID: result.Conversation.ID,
	})
}

type markAsReadPayload struct {
	ConversationID *uuid.UUID `json:"conversationId"`
}

func (h *WebSocketHandler) handleMarkAsRead(ctx context.Context, userID uuid.UUID, client *wsClient, data json.RawMessage) {
	var payload markAsReadPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConversationID == nil {
		h.sendError(client, "Conversation ID required")
		return
	}

	if err := h.chatService.MarkConversationRead(ctx, userID, *payload.ConversationID); err != nil {
		h.sendError(client, err.Error())
	}
}

func (h *WebSocketHandler) handleCheckOnlineStatus(client *wsClient, data json.RawMessage) {
	// Принимаем и одиночный id, и массив
	var ids []uuid.UUID
	if err := json.Unmarshal(data, &ids); err != nil {
		var single uuid.UUID
		if err := json.Unmarshal(data, &single); err != nil {
			h.sendError(client, "Invalid user ids")
			return
		}
		ids = []uuid.UUID{single}
	}

	statuses := h.presence.BulkStatus(ids)

	response := make(map[string]bool, len(statuses))
	for id, online := range statuses {
		response[id.String()] = online
	}

	h.sendToClient(client, domain.EventOnlineStatusResponse, response)
}

func (h *WebSocketHandler) sendToClient(client *wsClient, event string, data any) {
	if err := client.Send(event, data); err != nil {
		h.log.Warn("Failed to write to connection", "event", event, "error", err)
	}
}

func (h *WebSocketHandler) sendError(client *wsClient, message string) {
	h.sendToClient(client, domain.EventError, domain.ErrorEvent{Message: message})
}
