package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id               BIGSERIAL PRIMARY KEY,
	email            TEXT        NOT NULL UNIQUE,
	username         TEXT        NOT NULL,
	password_hash    TEXT        NOT NULL,
	password_version INTEGER     NOT NULL DEFAULT 1,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS friendships (
	user_id    BIGINT      NOT NULL REFERENCES users(id),
	friend_id  BIGINT      NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, friend_id),
	CHECK (user_id <> friend_id)
);

CREATE TABLE IF NOT EXISTS groups (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT        NOT NULL,
	icon       TEXT        NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS group_members (
	id         BIGSERIAL PRIMARY KEY,
	group_id   BIGINT      NOT NULL REFERENCES groups(id),
	user_id    BIGINT      NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (group_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id         BIGSERIAL PRIMARY KEY,
	group_id   BIGINT      NOT NULL REFERENCES groups(id),
	sender_id  BIGINT      NOT NULL REFERENCES users(id),
	text       TEXT        NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_group_members_user ON group_members (user_id);
CREATE INDEX IF NOT EXISTS idx_messages_group ON messages (group_id, id DESC);
`

// Migrate 建表（幂等）
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, schema)
	return err
}
