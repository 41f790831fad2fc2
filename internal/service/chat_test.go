package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinspire/internal/domain"
	apperrors "pinspire/pkg/errors"
	"pinspire/pkg/logger"
)

func newChatFixture(t *testing.T, users ...*domain.User) (ChatService, PresenceService, *memConvRepo) {
	t.Helper()
	log := logger.New("error")
	convRepo := newMemConvRepo()
	userRepo := newMemUserRepo(users...)
	presence := NewPresenceService(convRepo, log)
	return NewChatService(convRepo, userRepo, presence, log), presence, convRepo
}

func TestChatService_SendMessage_Validation(t *testing.T) {
	ctx := context.Background()
	alice := testUser("alice")
	bob := testUser("bob")
	svc, _, _ := newChatFixture(t, alice, bob)

	t.Run("cannot message yourself", func(t *testing.T) {
		_, err := svc.SendMessage(ctx, alice.ID, SendMessageInput{
			RecipientID: &alice.ID,
			Content:     "hi me",
		})
		assert.ErrorIs(t, err, apperrors.ErrCannotMessageSelf)
	})

	t.Run("empty content", func(t *testing.T) {
		_, err := svc.SendMessage(ctx, alice.ID, SendMessageInput{
			RecipientID: &bob.ID,
			Content:     "   ",
		})
		assert.ErrorIs(t, err, apperrors.ErrEmptyContent)
	})

	t.Run("neither conversation nor recipient", func(t *testing.T) {
		_, err := svc.SendMessage(ctx, alice.ID, SendMessageInput{Content: "hi"})
		assert.ErrorIs(t, err, apperrors.ErrMissingTarget)
	})

	t.Run("unknown recipient", func(t *testing.T) {
		ghost := testUser("ghost")
		_, err := svc.SendMessage(ctx, alice.ID, SendMessageInput{
			RecipientID: &ghost.ID,
			Content:     "hello?",
		})
		assert.ErrorIs(t, err, apperrors.ErrRecipientNotFound)
	})

	t.Run("file without url", func(t *testing.T) {
		_, err := svc.SendMessage(ctx, alice.ID, SendMessageInput{
			RecipientID: &bob.ID,
			File:        &FileInput{Name: "pic.png"},
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidFileMeta)
	})
}

func TestChatService_SendMessage_FirstMessageCreatesConversation(t *testing.T) {
	ctx := context.Background()
	alice := testUser("alice")
	bob := testUser("bob")
	svc, _, convRepo := newChatFixture(t, alice, bob)

	result, err := svc.SendMessage(ctx, alice.ID, SendMessageInput{
		RecipientID: &bob.ID,
		Content:     "hi",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Conversation)
	assert.Equal(t, "hi", result.Message.Content)
	assert.Equal(t, domain.MessageTypeText, result.Message.Type)
	assert.Equal(t, bob.ID, result.OtherUser.ID)

	// У получателя появился непрочитанный, у отправителя нет
	assert.True(t, convRepo.hasUnread(result.Conversation.ID, bob.ID))
	assert.False(t, convRepo.hasUnread(result.Conversation.ID, alice.ID))

	count, err := svc.UnreadCount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Ответ в обратную сторону попадает в ту же переписку
	reply, err := svc.SendMessage(ctx, bob.ID, SendMessageInput{
		RecipientID: &alice.ID,
		Content:     "hey",
	})
	require.NoError(t, err)
	assert.Equal(t, result.Conversation.ID, reply.Conversation.ID)
}

func TestChatService_SendMessage_PushesToOnlineRecipient(t *testing.T) {
	ctx := context.Background()
	alice := testUser("alice")
	bob := testUser("bob")
	svc, presence, _ := newChatFixture(t, alice, bob)

	bobConn := &fakeClient{}
	presence.Register(ctx, bob.ID, bobConn)

	result, err := svc.SendMessage(ctx, alice.ID, SendMessageInput{
		RecipientID: &bob.ID,
		Content:     "you there?",
	})
	require.NoError(t, err)

	events := bobConn.sent()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventNewMessage, events[0].event)

	payload, ok := events[0].data.(domain.MessageEvent)
	require.True(t, ok)
	assert.Equal(t, result.Conversation.ID, payload.ConversationID)
	assert.Equal(t, result.Message.ID, payload.Message.ID)
}

func TestChatService_SendMessage_OfflineRecipientStillDurable(t *testing.T) {
	ctx := context.Background()
	alice := testUser("alice")
	bob := testUser("bob")
	svc, _, _ := newChatFixture(t, alice, bob)

	// Никто не онлайн: отправка всё равно успешна, доставка через REST
	result, err := svc.SendMessage(ctx, alice.ID, SendMessageInput{
		RecipientID: &bob.ID,
		Content:     "catch up later",
	})
	require.NoError(t, err)

	previews, err := svc.ListConversations(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, previews, 1)
	assert.True(t, previews[0].HasUnread)
	assert.Equal(t, result.Message.ID, previews[0].LastMessage.ID)
}

func TestChatService_SendMessage_ForeignConversation(t *testing.T) {
	ctx := context.Background()
	alice := testUser("alice")
	bob := testUser("bob")
	eve := testUser("eve")
	svc, _, _ := newChatFixture(t, alice, bob, eve)

	result, err := svc.SendMessage(ctx, alice.ID, SendMessageInput{
		RecipientID: &bob.ID,
		Content:     "private",
	})
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, eve.ID, SendMessageInput{
		ConversationID: &result.Conversation.ID,
		Content:        "let me in",
	})
	assert.ErrorIs(t, err, apperrors.ErrConversationNotFound)
}

func TestChatService_SendFileMessage(t *testing.T) {
	ctx := context.Background()
	alice := testUser("alice")
	bob := testUser("bob")
	svc, _, _ := newChatFixture(t, alice, bob)

	result, err := svc.SendMessage(ctx, alice.ID, SendMessageInput{
		RecipientID: &bob.ID,
		File: &FileInput{
			URL:  "/api/images/uploads/cat.png",
			Name: "cat.png",
			Type: "image/png",
			Size: 12345,
		},
	})
	require.NoError(t, err)

	msg := result.Message
	assert.Equal(t, domain.MessageTypeFile, msg.Type)
	assert.Equal(t, "[File] cat.png", msg.Content)
	assert.Equal(t, "/api/images/uploads/cat.png", msg.FileURL)
	assert.Equal(t, "cat.png", msg.FileName)
	assert.Equal(t, "image/png", msg.FileType)
	assert.Equal(t, int64(12345), msg.FileSize)
	assert.True(t, strings.HasSuffix(msg.FileUniqueName, ".png"))
	assert.NotEqual(t, msg.FileName, msg.FileUniqueName)
}

func TestChatService_MarkConversationRead(t *testing.T) {
	ctx := context.Background()
	alice := testUser("alice")
	bob := testUser("bob")
	svc, presence, convRepo := newChatFixture(t, alice, bob)

	result, err := svc.SendMessage(ctx, alice.ID, SendMessageInput{
		RecipientID: &bob.ID,
		Content:     "read me",
	})
	require.NoError(t, err)
	convID := result.Conversation.ID

	aliceConn := &fakeClient{}
	presence.Register(ctx, alice.ID, aliceConn)

	require.NoError(t, svc.MarkConversationRead(ctx, bob.ID, convID))
	assert.False(t, convRepo.hasUnread(convID, bob.ID))

	// Отправитель получает квитанцию о прочтении
	events := aliceConn.sent()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventConversationRead, events[0].event)
	receipt, ok := events[0].data.(domain.ConversationReadEvent)
	require.True(t, ok)
	assert.Equal(t, convID, receipt.ConversationID)
	assert.Equal(t, bob.ID, receipt.ReadBy)

	// Повторная пометка идемпотентна
	require.NoError(t, svc.MarkConversationRead(ctx, bob.ID, convID))

	// Чужой пользователь пометить не может
	eve := testUser("eve")
	err = svc.MarkConversationRead(ctx, eve.ID, convID)
	assert.ErrorIs(t, err, apperrors.ErrConversationNotFound)
}

func TestChatService_GetConversation_MarksReadOnView(t *testing.T) {
	ctx := context.Background()
	alice := testUser("alice")
	bob := testUser("bob")
	svc, _, convRepo := newChatFixture(t, alice, bob)

	result, err := svc.SendMessage(ctx, alice.ID, SendMessageInput{
		RecipientID: &bob.ID,
		Content:     "first",
	})
	require.NoError(t, err)
	convID := result.Conversation.ID
	require.True(t, convRepo.hasUnread(convID, bob.ID))

	detail, err := svc.GetConversation(ctx, bob.ID, convID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, detail.OtherUser.ID)
	require.Len(t, detail.Messages, 1)
	assert.Equal(t, "first", detail.Messages[0].Content)

	// Открытие переписки гасит непрочитанное у читателя
	assert.False(t, convRepo.hasUnread(convID, bob.ID))

	count, err := svc.UnreadCount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Посторонний переписку не видит
	eve := testUser("eve")
	_, err = svc.GetConversation(ctx, eve.ID, convID)
	assert.ErrorIs(t, err, apperrors.ErrConversationNotFound)
}
