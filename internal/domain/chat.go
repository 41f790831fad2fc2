package domain

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageTypeText MessageType = "text"
	MessageTypeFile MessageType = "file"
)

// Message — одно сообщение в переписке. После записи не изменяется.
// Файловые поля заполнены только для MessageTypeFile; content для файлового
// сообщения содержит текстовую заглушку для старых клиентов.
type Message struct {
	ID             uuid.UUID   `json:"_id"`
	ConversationID uuid.UUID   `json:"-"`
	Sender         uuid.UUID   `json:"sender"`
	Type           MessageType `json:"type"`
	Content        string      `json:"content"`
	FileURL        string      `json:"fileUrl,omitempty"`
	FileName       string      `json:"fileName,omitempty"`
	FileUniqueName string      `json:"fileUniqueName,omitempty"`
	FileType       string      `json:"fileType,omitempty"`
	FileSize       int64       `json:"fileSize,omitempty"`
	Read           bool        `json:"read"`
	Timestamp      time.Time   `json:"timestamp"`
}

// Conversation — двусторонняя переписка. Пара участников хранится в
// каноническом порядке (User1ID < User2ID), на пару есть уникальный индекс.
type Conversation struct {
	ID            uuid.UUID
	User1ID       uuid.UUID
	User2ID       uuid.UUID
	CreatedAt     time.Time
	LastMessageAt time.Time
}

func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.User1ID == userID || c.User2ID == userID
}

func (c *Conversation) OtherParticipant(userID uuid.UUID) uuid.UUID {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// NormalizePair приводит пару участников к каноническому порядку,
// чтобы (A,B) и (B,A) указывали на одну и ту же переписку.
func NormalizePair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) > 0 {
		return b, a
	}
	return a, b
}

// ConversationPreview — строка списка переписок для текущего пользователя.
type ConversationPreview struct {
	ID          uuid.UUID   `json:"_id"`
	OtherUser   *UserPublic `json:"otherUser"`
	LastMessage *Message    `json:"lastMessage"`
	HasUnread   bool        `json:"hasUnread"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// ConversationDetail — полная переписка при открытии.
type ConversationDetail struct {
	ID        uuid.UUID   `json:"_id"`
	OtherUser *UserPublic `json:"otherUser"`
	Messages  []*Message  `json:"messages"`
	UpdatedAt time.Time   `json:"updatedAt"`
}
