package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pinspire/internal/service"
	apperrors "pinspire/pkg/errors"
	"pinspire/pkg/logger"
)

// ChatHandler — REST-фасад чата. Никакой бизнес-логики: валидация входа,
// делегирование сервису, маппинг ошибки в статус. Путь нужен для первичной
// загрузки UI и как фолбэк, когда realtime-доставка молча не дошла.
type ChatHandler struct {
	chatService service.ChatService
	log         logger.Logger
}

func NewChatHandler(chatService service.ChatService, log logger.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		log:         log,
	}
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	value, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"result": false, "message": "user not authenticated"})
		return uuid.Nil, false
	}
	return value.(uuid.UUID), true
}

func respondError(c *gin.Context, err error) {
	c.JSON(apperrors.HTTPStatusFromError(err), gin.H{
		"result":  false,
		"message": err.Error(),
	})
}

func (h *ChatHandler) GetConversations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	conversations, err := h.chatService.ListConversations(c.Request.Context(), userID)
	if err != nil {
		h.log.Error("Failed to list conversations", "user_id", userID, "error", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result":        true,
		"conversations": conversations,
	})
}

func (h *ChatHandler) GetMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	conversationID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"result": false, "message": "Invalid conversation ID"})
		return
	}

	// Просмотр переписки попутно помечает её прочитанной для читателя
	detail, err := h.chatService.GetConversation(c.Request.Context(), userID, conversationID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result":       true,
		"conversation": detail,
	})
}

type SendMessageRequest struct {
	ConversationID *uuid.UUID `json:"conversationId"`
	RecipientID    *uuid.UUID `json:"recipientId"`
	Content        string     `json:"content"`
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"result": false, "message": err.Error()})
		return
	}

	result, err := h.chatService.SendMessage(c.Request.Context(), userID, service.SendMessageInput{
		ConversationID: req.ConversationID,
		RecipientID:    req.RecipientID,
		Content:        req.Content,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"result":  true,
		"message": "Message sent successfully",
		"conversation": gin.H{
			"_id":         result.Conversation.ID,
			"otherUser":   result.OtherUser,
			"lastMessage": result.Message,
			"updatedAt":   result.Conversation.LastMessageAt,
		},
	})
}

func (h *ChatHandler) MarkAsRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	conversationID, err := uuid.Parse(c.Param("conversationId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"result": false, "message": "Invalid conversation ID"})
		return
	}

	if err := h.chatService.MarkConversationRead(c.Request.Context(), userID, conversationID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result":  true,
		"message": "Messages marked as read",
	})
}

func (h *ChatHandler) GetUnreadCount(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	count, err := h.chatService.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		h.log.Error("Failed to get unread count", "user_id", userID, "error", err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result":      true,
		"unreadCount": count,
	})
}
