package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pinspire/internal/domain"
	apperrors "pinspire/pkg/errors"
	"pinspire/pkg/logger"
)

type ConversationRepository interface {
	FindByPair(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error)
	FindOrCreate(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	AppendMessage(ctx context.Context, message *domain.Message) error
	MarkRead(ctx context.Context, conversationID, userID uuid.UUID) error
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.ConversationPreview, error)
	GetMessages(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error)
	UnreadConversationCount(ctx context.Context, userID uuid.UUID) (int, error)
	PartnerIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

type conversationRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewConversationRepository(db *pgxpool.Pool, log logger.Logger) ConversationRepository {
	return &conversationRepository{db: db, log: log}
}

func (r *conversationRepository) FindByPair(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error) {
	u1, u2 := domain.NormalizePair(userA, userB)

	query := `
		SELECT id, user1_id, user2_id, created_at, last_message_at
		FROM conversations
		WHERE user1_id = $1 AND user2_id = $2
	`

	conv := &domain.Conversation{}
	err := r.db.QueryRow(ctx, query, u1, u2).Scan(
		&conv.ID, &conv.User1ID, &conv.User2ID, &conv.CreatedAt, &conv.LastMessageAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrConversationNotFound
		}
		r.log.Error("Failed to find conversation by pair", "error", err)
		return nil, err
	}

	return conv, nil
}

// FindOrCreate создаёт переписку для пары атомарно: при гонке проигравший
// insert ничего не возвращает и мы перечитываем существующую строку.
func (r *conversationRepository) FindOrCreate(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error) {
	u1, u2 := domain.NormalizePair(userA, userB)

	query := `
		INSERT INTO conversations (user1_id, user2_id)
		VALUES ($1, $2)
		ON CONFLICT (user1_id, user2_id) DO NOTHING
		RETURNING id, user1_id, user2_id, created_at, last_message_at
	`

	conv := &domain.Conversation{}
	err := r.db.QueryRow(ctx, query, u1, u2).Scan(
		&conv.ID, &conv.User1ID, &conv.User2ID, &conv.CreatedAt, &conv.LastMessageAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.FindByPair(ctx, u1, u2)
		}
		r.log.Error("Failed to create conversation", "error", err)
		return nil, err
	}

	return conv, nil
}

func (r *conversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT id, user1_id, user2_id, created_at, last_message_at
		FROM conversations
		WHERE id = $1
	`

	conv := &domain.Conversation{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&conv.ID, &conv.User1ID, &conv.User2ID, &conv.CreatedAt, &conv.LastMessageAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrConversationNotFound
		}
		r.log.Error("Failed to get conversation", "error", err)
		return nil, err
	}

	return conv, nil
}

// AppendMessage — единственная точка долговечности сообщения. Вставка строки,
// обновление last_message_at и пометка непрочитанного у получателя идут
// одной транзакцией; порядок сообщений определяется порядком коммитов.
func (r *conversationRepository) AppendMessage(ctx context.Context, message *domain.Message) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.log.Error("Failed to begin transaction", "error", err)
		return err
	}
	defer tx.Rollback(ctx)

	var user1ID, user2ID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT user1_id, user2_id FROM conversations WHERE id = $1`,
		message.ConversationID,
	).Scan(&user1ID, &user2ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrConversationNotFound
		}
		r.log.Error("Failed to load conversation for append", "error", err)
		return err
	}

	if message.Sender != user1ID && message.Sender != user2ID {
		return apperrors.ErrNotParticipant
	}

	recipient := user1ID
	if message.Sender == user1ID {
		recipient = user2ID
	}

	insert := `
		INSERT INTO messages (conversation_id, sender_id, message_type, content,
			file_url, file_name, file_unique_name, file_type, file_size)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	err = tx.QueryRow(ctx, insert,
		message.ConversationID, message.Sender, message.Type, message.Content,
		message.FileURL, message.FileName, message.FileUniqueName,
		message.FileType, message.FileSize,
	).Scan(&message.ID, &message.Timestamp)
	if err != nil {
		r.log.Error("Failed to insert message", "error", err)
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE conversations SET last_message_at = $2 WHERE id = $1`,
		message.ConversationID, message.Timestamp,
	)
	if err != nil {
		r.log.Error("Failed to bump last_message_at", "error", err)
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO conversation_unreads (conversation_id, user_id)
		 VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		message.ConversationID, recipient,
	)
	if err != nil {
		r.log.Error("Failed to mark conversation unread", "error", err)
		return err
	}

	return tx.Commit(ctx)
}

func (r *conversationRepository) MarkRead(ctx context.Context, conversationID, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM conversation_unreads WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	)
	if err != nil {
		r.log.Error("Failed to mark conversation read", "error", err)
		return err
	}
	return nil
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.ConversationPreview, error) {
	query := `
		SELECT c.id, c.last_message_at,
		       u.id, u.username, u.avatar_url,
		       m.id, m.sender_id, m.message_type, m.content,
		       m.file_url, m.file_name, m.file_unique_name, m.file_type, m.file_size,
		       m."read", m.created_at,
		       EXISTS (
		           SELECT 1 FROM conversation_unreads cu
		           WHERE cu.conversation_id = c.id AND cu.user_id = $1
		       ) AS has_unread
		FROM conversations c
		JOIN users u ON u.id = CASE WHEN c.user1_id = $1 THEN c.user2_id ELSE c.user1_id END
		JOIN LATERAL (
		    SELECT * FROM messages m
		    WHERE m.conversation_id = c.id
		    ORDER BY m.created_at DESC, m.id DESC
		    LIMIT 1
		) m ON true
		WHERE c.user1_id = $1 OR c.user2_id = $1
		ORDER BY c.last_message_at DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.log.Error("Failed to list conversations", "error", err)
		return nil, err
	}
	defer rows.Close()

	var previews []*domain.ConversationPreview
	for rows.Next() {
		preview := &domain.ConversationPreview{
			OtherUser:   &domain.UserPublic{},
			LastMessage: &domain.Message{},
		}
		msg := preview.LastMessage
		err := rows.Scan(
			&preview.ID, &preview.UpdatedAt,
			&preview.OtherUser.ID, &preview.OtherUser.Username, &preview.OtherUser.AvatarURL,
			&msg.ID, &msg.Sender, &msg.Type, &msg.Content,
			&msg.FileURL, &msg.FileName, &msg.FileUniqueName, &msg.FileType, &msg.FileSize,
			&msg.Read, &msg.Timestamp,
			&preview.HasUnread,
		)
		if err != nil {
			r.log.Error("Failed to scan conversation preview", "error", err)
			return nil, err
		}
		msg.ConversationID = preview.ID
		previews = append(previews, preview)
	}

	return previews, rows.Err()
}

func (r *conversationRepository) GetMessages(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, message_type, content,
		       file_url, file_name, file_unique_name, file_type, file_size,
		       "read", created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		r.log.Error("Failed to get messages", "error", err)
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		msg := &domain.Message{}
		err := rows.Scan(
			&msg.ID, &msg.ConversationID, &msg.Sender, &msg.Type, &msg.Content,
			&msg.FileURL, &msg.FileName, &msg.FileUniqueName, &msg.FileType, &msg.FileSize,
			&msg.Read, &msg.Timestamp,
		)
		if err != nil {
			r.log.Error("Failed to scan message", "error", err)
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (r *conversationRepository) UnreadConversationCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM conversation_unreads WHERE user_id = $1`,
		userID,
	).Scan(&count)
	if err != nil {
		r.log.Error("Failed to count unread conversations", "error", err)
		return 0, err
	}
	return count, nil
}

// PartnerIDs возвращает собеседников пользователя по всем его перепискам.
// Считается по запросу, без кэша: используется рассылкой статуса присутствия.
func (r *conversationRepository) PartnerIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT CASE WHEN user1_id = $1 THEN user2_id ELSE user1_id END
		FROM conversations
		WHERE user1_id = $1 OR user2_id = $1
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.log.Error("Failed to get partner ids", "error", err)
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			r.log.Error("Failed to scan partner id", "error", err)
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
