package service

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"pinspire/internal/domain"
	"pinspire/internal/repository"
	apperrors "pinspire/pkg/errors"
	"pinspire/pkg/logger"
)

// FileInput — ссылка на уже загруженный файл. Сами байты принимает
// отдельный upload-сервис, сюда попадает только результат.
type FileInput struct {
	URL  string
	Name string
	Type string
	Size int64
}

type SendMessageInput struct {
	ConversationID *uuid.UUID
	RecipientID    *uuid.UUID
	Content        string
	File           *FileInput
}

type SendResult struct {
	Message      *domain.Message
	Conversation *domain.Conversation
	OtherUser    *domain.UserPublic
}

type ChatService interface {
	SendMessage(ctx context.Context, senderID uuid.UUID, in SendMessageInput) (*SendResult, error)
	MarkConversationRead(ctx context.Context, userID, conversationID uuid.UUID) error
	ListConversations(ctx context.Context, userID uuid.UUID) ([]*domain.ConversationPreview, error)
	GetConversation(ctx context.Context, userID, conversationID uuid.UUID) (*domain.ConversationDetail, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
}

type chatService struct {
	convRepo repository.ConversationRepository
	userRepo repository.UserRepository
	presence PresenceService
	log      logger.Logger
}

func NewChatService(convRepo repository.ConversationRepository, userRepo repository.UserRepository, presence PresenceService, log logger.Logger) ChatService {
	return &chatService{
		convRepo: convRepo,
		userRepo: userRepo,
		presence: presence,
		log:      log,
	}
}

// SendMessage превращает намерение отправки (с любого транспорта) в записанное
// сообщение и best-effort push получателю. Успех определяется записью в
// хранилище; неудача доставки push никогда не фейлит отправку.
func (s *chatService) SendMessage(ctx context.Context, senderID uuid.UUID, in SendMessageInput) (*SendResult, error) {
	message, err := buildMessage(senderID, in)
	if err != nil {
		return nil, err
	}

	conv, err := s.resolveConversation(ctx, senderID, in)
	if err != nil {
		return nil, err
	}

	message.ConversationID = conv.ID
	if err := s.convRepo.AppendMessage(ctx, message); err != nil {
		return nil, err
	}
	conv.LastMessageAt = message.Timestamp

	recipientID := conv.OtherParticipant(senderID)

	recipient, err := s.userRepo.GetByID(ctx, recipientID)
	if err != nil {
		// Сообщение уже записано; профиль получателя нужен только для ответа
		s.log.Warn("Failed to load recipient profile", "user_id", recipientID, "error", err)
	}

	s.presence.Push(ctx, recipientID, domain.EventNewMessage, domain.MessageEvent{
		Message:        message,
		ConversationID: conv.ID,
	})

	result := &SendResult{
		Message:      message,
		Conversation: conv,
	}
	if recipient != nil {
		result.OtherUser = recipient.Public()
	}

	return result, nil
}

func buildMessage(senderID uuid.UUID, in SendMessageInput) (*domain.Message, error) {
	if in.File == nil {
		content := strings.TrimSpace(in.Content)
		if content == "" {
			return nil, apperrors.ErrEmptyContent
		}
		return &domain.Message{
			Sender:  senderID,
			Type:    domain.MessageTypeText,
			Content: content,
		}, nil
	}

	if strings.TrimSpace(in.File.URL) == "" || strings.TrimSpace(in.File.Name) == "" {
		return nil, apperrors.ErrInvalidFileMeta
	}

	return &domain.Message{
		Sender: senderID,
		Type:   domain.MessageTypeFile,
		// Заглушка для клиентов, не понимающих файловый вариант
		Content:        "[File] " + in.File.Name,
		FileURL:        in.File.URL,
		FileName:       in.File.Name,
		FileUniqueName: uuid.New().String() + filepath.Ext(in.File.Name),
		FileType:       in.File.Type,
		FileSize:       in.File.Size,
	}, nil
}

func (s *chatService) resolveConversation(ctx context.Context, senderID uuid.UUID, in SendMessageInput) (*domain.Conversation, error) {
	switch {
	case in.ConversationID != nil:
		conv, err := s.convRepo.GetByID(ctx, *in.ConversationID)
		if err != nil {
			return nil, err
		}
		// Чужая переписка неотличима от несуществующей
		if !conv.HasParticipant(senderID) {
			return nil, apperrors.ErrConversationNotFound
		}
		return conv, nil

	case in.RecipientID != nil:
		recipientID := *in.RecipientID
		if recipientID == senderID {
			return nil, apperrors.ErrCannotMessageSelf
		}
		if _, err := s.userRepo.GetByID(ctx, recipientID); err != nil {
			return nil, apperrors.ErrRecipientNotFound
		}
		return s.convRepo.FindOrCreate(ctx, senderID, recipientID)

	default:
		return nil, apperrors.ErrMissingTarget
	}
}

// MarkConversationRead снимает пометку непрочитанного у читателя и шлёт
// собеседнику информационную квитанцию, если тот онлайн.
func (s *chatService) MarkConversationRead(ctx context.Context, userID, conversationID uuid.UUID) error {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return apperrors.ErrConversationNotFound
	}

	if err := s.convRepo.MarkRead(ctx, conversationID, userID); err != nil {
		return err
	}

	s.presence.Push(ctx, conv.OtherParticipant(userID), domain.EventConversationRead, domain.ConversationReadEvent{
		ConversationID: conversationID,
		ReadBy:         userID,
	})

	return nil
}

func (s *chatService) ListConversations(ctx context.Context, userID uuid.UUID) ([]*domain.ConversationPreview, error) {
	return s.convRepo.ListForUser(ctx, userID)
}

// GetConversation возвращает полную переписку и попутно помечает её
// прочитанной для читателя: открытие переписки гасит бейдж непрочитанного.
func (s *chatService) GetConversation(ctx context.Context, userID, conversationID uuid.UUID) (*domain.ConversationDetail, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, apperrors.ErrConversationNotFound
	}

	messages, err := s.convRepo.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if err := s.convRepo.MarkRead(ctx, conversationID, userID); err != nil {
		s.log.Warn("Failed to mark conversation read on view", "conversation_id", conversationID, "error", err)
	}

	otherID := conv.OtherParticipant(userID)
	other, err := s.userRepo.GetByID(ctx, otherID)
	if err != nil {
		return nil, err
	}

	return &domain.ConversationDetail{
		ID:        conv.ID,
		OtherUser: other.Public(),
		Messages:  messages,
		UpdatedAt: conv.LastMessageAt,
	}, nil
}

func (s *chatService) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.convRepo.UnreadConversationCount(ctx, userID)
}
