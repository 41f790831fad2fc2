package domain

import "github.com/google/uuid"

// События realtime-канала. Имена совпадают с теми, что слушает фронтенд.
const (
	// client -> server
	EventSendMessage       = "sendMessage"
	EventSendFileMessage   = "sendFileMessage"
	EventMarkAsRead        = "markAsRead"
	EventCheckOnlineStatus = "checkOnlineStatus"

	// server -> client
	EventNewMessage           = "newMessage"
	EventMessageSent          = "messageSent"
	EventConversationRead     = "conversationRead"
	EventUserStatusUpdate     = "userStatusUpdate"
	EventOnlineStatusResponse = "onlineStatusResponse"
	EventError                = "error"
)

type MessageEvent struct {
	Message        *Message  `json:"message"`
	ConversationID uuid.UUID `json:"conversationId"`
}

type ConversationReadEvent struct {
	ConversationID uuid.UUID `json:"conversationId"`
	ReadBy         uuid.UUID `json:"readBy"`
}

type UserStatusEvent struct {
	UserID   uuid.UUID `json:"userId"`
	IsOnline bool      `json:"isOnline"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}
