package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"pinspire/internal/domain"
	apperrors "pinspire/pkg/errors"
)

// memConvRepo — in-memory реализация ConversationRepository для тестов сервисов.
type memConvRepo struct {
	mu       sync.Mutex
	convs    map[uuid.UUID]*domain.Conversation
	messages map[uuid.UUID][]*domain.Message
	unread   map[uuid.UUID]map[uuid.UUID]bool
}

func newMemConvRepo() *memConvRepo {
	return &memConvRepo{
		convs:    make(map[uuid.UUID]*domain.Conversation),
		messages: make(map[uuid.UUID][]*domain.Message),
		unread:   make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

func (r *memConvRepo) FindByPair(_ context.Context, a, b uuid.UUID) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findByPairLocked(a, b)
}

func (r *memConvRepo) findByPairLocked(a, b uuid.UUID) (*domain.Conversation, error) {
	u1, u2 := domain.NormalizePair(a, b)
	for _, conv := range r.convs {
		if conv.User1ID == u1 && conv.User2ID == u2 {
			return conv, nil
		}
	}
	return nil, apperrors.ErrConversationNotFound
}

func (r *memConvRepo) FindOrCreate(_ context.Context, a, b uuid.UUID) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conv, err := r.findByPairLocked(a, b); err == nil {
		return conv, nil
	}

	u1, u2 := domain.NormalizePair(a, b)
	conv := &domain.Conversation{
		ID:            uuid.New(),
		User1ID:       u1,
		User2ID:       u2,
		CreatedAt:     time.Now(),
		LastMessageAt: time.Now(),
	}
	r.convs[conv.ID] = conv
	return conv, nil
}

func (r *memConvRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[id]
	if !ok {
		return nil, apperrors.ErrConversationNotFound
	}
	return conv, nil
}

func (r *memConvRepo) AppendMessage(_ context.Context, message *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.convs[message.ConversationID]
	if !ok {
		return apperrors.ErrConversationNotFound
	}
	if !conv.HasParticipant(message.Sender) {
		return apperrors.ErrNotParticipant
	}

	message.ID = uuid.New()
	message.Timestamp = time.Now()
	r.messages[conv.ID] = append(r.messages[conv.ID], message)
	conv.LastMessageAt = message.Timestamp

	if r.unread[conv.ID] == nil {
		r.unread[conv.ID] = make(map[uuid.UUID]bool)
	}
	r.unread[conv.ID][conv.OtherParticipant(message.Sender)] = true
	return nil
}

func (r *memConvRepo) MarkRead(_ context.Context, conversationID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.unread[conversationID]; ok {
		delete(set, userID)
	}
	return nil
}

func (r *memConvRepo) ListForUser(_ context.Context, userID uuid.UUID) ([]*domain.ConversationPreview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var previews []*domain.ConversationPreview
	for _, conv := range r.convs {
		if !conv.HasParticipant(userID) {
			continue
		}
		msgs := r.messages[conv.ID]
		if len(msgs) == 0 {
			continue
		}
		previews = append(previews, &domain.ConversationPreview{
			ID:          conv.ID,
			OtherUser:   &domain.UserPublic{ID: conv.OtherParticipant(userID)},
			LastMessage: msgs[len(msgs)-1],
			HasUnread:   r.unread[conv.ID][userID],
			UpdatedAt:   conv.LastMessageAt,
		})
	}
	return previews, nil
}

func (r *memConvRepo) GetMessages(_ context.Context, conversationID uuid.UUID) ([]*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Message(nil), r.messages[conversationID]...), nil
}

func (r *memConvRepo) UnreadConversationCount(_ context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, set := range r.unread {
		if set[userID] {
			count++
		}
	}
	return count, nil
}

func (r *memConvRepo) PartnerIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for _, conv := range r.convs {
		if conv.HasParticipant(userID) {
			ids = append(ids, conv.OtherParticipant(userID))
		}
	}
	return ids, nil
}

func (r *memConvRepo) hasUnread(conversationID, userID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unread[conversationID][userID]
}

// memUserRepo — in-memory реализация UserRepository.
type memUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*domain.User
}

func newMemUserRepo(users ...*domain.User) *memUserRepo {
	repo := &memUserRepo{users: make(map[uuid.UUID]*domain.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return user, nil
}

// fakeClient записывает отправленные события вместо реального соединения.
type fakeClient struct {
	mu       sync.Mutex
	events   []sentEvent
	failSend bool
	closed   bool
}

type sentEvent struct {
	event string
	data  any
}

func (c *fakeClient) Send(event string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return errors.New("connection gone")
	}
	c.events = append(c.events, sentEvent{event: event, data: data})
	return nil
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeClient) sent() []sentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentEvent(nil), c.events...)
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func testUser(username string) *domain.User {
	return &domain.User{ID: uuid.New(), Username: username, CreatedAt: time.Now()}
}
