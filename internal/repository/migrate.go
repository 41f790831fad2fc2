package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate создаёт схему чата, если её ещё нет.
// Уникальный индекс по канонической паре участников гарантирует
// не больше одной переписки на пару даже при гонке create.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		username TEXT NOT NULL UNIQUE,
		avatar_url TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user1_id UUID NOT NULL REFERENCES users(id),
		user2_id UUID NOT NULL REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_message_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT conversations_pair_ordered CHECK (user1_id < user2_id),
		CONSTRAINT conversations_pair_unique UNIQUE (user1_id, user2_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		sender_id UUID NOT NULL REFERENCES users(id),
		message_type TEXT NOT NULL DEFAULT 'text',
		content TEXT NOT NULL,
		file_url TEXT NOT NULL DEFAULT '',
		file_name TEXT NOT NULL DEFAULT '',
		file_unique_name TEXT NOT NULL DEFAULT '',
		file_type TEXT NOT NULL DEFAULT '',
		file_size BIGINT NOT NULL DEFAULT 0,
		"read" BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS conversation_unreads (
		conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		user_id UUID NOT NULL REFERENCES users(id),
		PRIMARY KEY (conversation_id, user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_conversations_user1 ON conversations(user1_id);
	CREATE INDEX IF NOT EXISTS idx_conversations_user2 ON conversations(user2_id);
	CREATE INDEX IF NOT EXISTS idx_conversations_last_message ON conversations(last_message_at DESC);
	CREATE INDEX IF NOT EXISTS idx_unreads_user ON conversation_unreads(user_id);
	`

	_, err := db.Exec(ctx, query)
	return err
}
