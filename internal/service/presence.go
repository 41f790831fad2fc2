package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"pinspire/internal/domain"
	"pinspire/internal/repository"
	"pinspire/pkg/logger"
)

// Client — активное realtime-соединение пользователя. Send обязан быть
// безопасным для конкурентных вызовов.
type Client interface {
	Send(event string, data any) error
	Close() error
}

// PresenceService отвечает на вопрос «доступен ли пользователь по realtime»
// и доставляет push-события в его соединение. Карта присутствия живёт только
// в памяти одного процесса и не является источником истины.
type PresenceService interface {
	Register(ctx context.Context, userID uuid.UUID, client Client)
	Unregister(ctx context.Context, userID uuid.UUID, client Client)
	IsOnline(userID uuid.UUID) bool
	BulkStatus(userIDs []uuid.UUID) map[uuid.UUID]bool
	Push(ctx context.Context, userID uuid.UUID, event string, data any) bool
}

type presenceService struct {
	mu       sync.RWMutex
	clients  map[uuid.UUID]Client
	convRepo repository.ConversationRepository
	log      logger.Logger
}

func NewPresenceService(convRepo repository.ConversationRepository, log logger.Logger) PresenceService {
	return &presenceService{
		clients:  make(map[uuid.UUID]Client),
		convRepo: convRepo,
		log:      log,
	}
}

// Register привязывает соединение к пользователю. Новое соединение того же
// пользователя вытесняет старое: для доставки выигрывает последний вход.
func (s *presenceService) Register(ctx context.Context, userID uuid.UUID, client Client) {
	s.mu.Lock()
	old, existed := s.clients[userID]
	s.clients[userID] = client
	s.mu.Unlock()

	if existed && old != client {
		_ = old.Close()
	}

	s.log.Info("User connected", "user_id", userID)
	s.broadcastStatus(ctx, userID, true)
}

// Unregister удаляет запись только если она всё ещё указывает на закрываемое
// соединение: опоздавшее закрытие старого сокета не сбивает новую регистрацию.
func (s *presenceService) Unregister(ctx context.Context, userID uuid.UUID, client Client) {
	s.mu.Lock()
	current, ok := s.clients[userID]
	if !ok || current != client {
		s.mu.Unlock()
		return
	}
	delete(s.clients, userID)
	s.mu.Unlock()

	s.log.Info("User disconnected", "user_id", userID)
	s.broadcastStatus(ctx, userID, false)
}

func (s *presenceService) IsOnline(userID uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.clients[userID]
	return ok
}

func (s *presenceService) BulkStatus(userIDs []uuid.UUID) map[uuid.UUID]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		_, ok := s.clients[id]
		statuses[id] = ok
	}
	return statuses
}

// Push доставляет событие в активное соединение пользователя, если оно есть.
// Ошибка записи означает протухшее соединение: запись снимается с учёта,
// а неудача доставки никогда не считается ошибкой вызывающей операции.
func (s *presenceService) Push(ctx context.Context, userID uuid.UUID, event string, data any) bool {
	s.mu.RLock()
	client, ok := s.clients[userID]
	s.mu.RUnlock()

	if !ok {
		return false
	}

	if err := client.Send(event, data); err != nil {
		s.log.Warn("Push failed, dropping stale connection", "user_id", userID, "event", event, "error", err)
		s.Unregister(ctx, userID, client)
		_ = client.Close()
		return false
	}

	return true
}

// broadcastStatus рассылает смену статуса всем онлайн-собеседникам пользователя.
// Список собеседников каждый раз берётся из хранилища переписок.
func (s *presenceService) broadcastStatus(ctx context.Context, userID uuid.UUID, isOnline bool) {
	partners, err := s.convRepo.PartnerIDs(ctx, userID)
	if err != nil {
		s.log.Error("Failed to resolve partners for status broadcast", "user_id", userID, "error", err)
		return
	}

	event := domain.UserStatusEvent{UserID: userID, IsOnline: isOnline}
	for _, partnerID := range partners {
		if partnerID == userID {
			continue
		}
		s.Push(ctx, partnerID, domain.EventUserStatusUpdate, event)
	}
}
