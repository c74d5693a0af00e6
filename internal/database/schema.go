package database

import "context"

// schema is applied on startup; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                      UUID PRIMARY KEY,
		email                   TEXT NOT NULL UNIQUE,
		full_name               TEXT NOT NULL,
		password_hash           TEXT NOT NULL,
		profile_pic             TEXT NOT NULL DEFAULT '',
		about                   TEXT NOT NULL DEFAULT '',
		is_verified             BOOLEAN NOT NULL DEFAULT FALSE,
		verification_code       TEXT,
		verification_expires_at TIMESTAMPTZ,
		reset_token             TEXT,
		reset_expires_at        TIMESTAMPTZ,
		created_at              TIMESTAMPTZ NOT NULL,
		updated_at              TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS users_verification_code_idx ON users (verification_code) WHERE verification_code IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS users_reset_token_idx ON users (reset_token) WHERE reset_token IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS user_friends (
		user_id    UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		friend_id  UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, friend_id)
	)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id          UUID PRIMARY KEY,
		sender_id   UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		receiver_id UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		text        TEXT,
		image       TEXT,
		created_at  TIMESTAMPTZ NOT NULL,
		CHECK (COALESCE(text, '') <> '' OR COALESCE(image, '') <> '')
	)`,
	`CREATE INDEX IF NOT EXISTS messages_pair_idx ON messages (sender_id, receiver_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS message_hidden (
		message_id UUID NOT NULL REFERENCES messages (id) ON DELETE CASCADE,
		user_id    UUID NOT NULL,
		PRIMARY KEY (message_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS bot_messages (
		id          UUID PRIMARY KEY,
		exchange_id UUID NOT NULL,
		turn        TEXT NOT NULL CHECK (turn IN ('user', 'bot')),
		sender_id   TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		message     TEXT NOT NULL,
		reply       TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS bot_messages_sender_idx ON bot_messages (sender_id)`,
	`CREATE INDEX IF NOT EXISTS bot_messages_receiver_idx ON bot_messages (receiver_id)`,

	`CREATE TABLE IF NOT EXISTS friend_requests (
		id          UUID PRIMARY KEY,
		sender_id   UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		receiver_id UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		status      TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL,
		UNIQUE (sender_id, receiver_id)
	)`,
}

// Migrate creates the tables if they do not exist
func (db *PostgresDB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
