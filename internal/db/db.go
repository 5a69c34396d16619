package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) AutoMigrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            name VARCHAR(100) NOT NULL DEFAULT '',
            email VARCHAR(255) UNIQUE NOT NULL,
            username VARCHAR(50) UNIQUE NOT NULL,
            password VARCHAR(255) NOT NULL,
            profile_picture TEXT NOT NULL DEFAULT '',
            is_verified BOOLEAN NOT NULL DEFAULT FALSE,
            online BOOLEAN NOT NULL DEFAULT FALSE,
            last_seen TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
            created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS user_blocks (
            user_id INT REFERENCES users(id) ON DELETE CASCADE,
            blocked_id INT REFERENCES users(id) ON DELETE CASCADE,
            PRIMARY KEY (user_id, blocked_id)
        )`,

		`CREATE TABLE IF NOT EXISTS user_unread (
            user_id INT REFERENCES users(id) ON DELETE CASCADE,
            peer_id INT REFERENCES users(id) ON DELETE CASCADE,
            count INT NOT NULL DEFAULT 0,
            PRIMARY KEY (user_id, peer_id)
        )`,

		`CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            sender_id INT REFERENCES users(id) ON DELETE CASCADE,
            receiver_id INT REFERENCES users(id) ON DELETE CASCADE,
            content TEXT,
            attachment_url TEXT,
            attachment_kind VARCHAR(10) NOT NULL DEFAULT '',
            status VARCHAR(10) NOT NULL DEFAULT 'sent'
                CHECK (status IN ('sent', 'delivered', 'seen')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE INDEX IF NOT EXISTS idx_messages_conversation
            ON messages (sender_id, receiver_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS message_unblurs (
            message_id INT REFERENCES messages(id) ON DELETE CASCADE,
            user_id INT REFERENCES users(id) ON DELETE CASCADE,
            PRIMARY KEY (message_id, user_id)
        )`,

		`CREATE TABLE IF NOT EXISTS broadcast_groups (
            id SERIAL PRIMARY KEY,
            name VARCHAR(100) NOT NULL,
            owner_id INT REFERENCES users(id) ON DELETE CASCADE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS scheduled_broadcasts (
            id SERIAL PRIMARY KEY,
            sender_id INT REFERENCES users(id) ON DELETE CASCADE,
            content TEXT NOT NULL,
            attachment_urls JSONB NOT NULL DEFAULT '[]',
            scheduled_at TIMESTAMPTZ NOT NULL,
            sent BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS scheduled_broadcast_recipients (
            broadcast_id INT REFERENCES scheduled_broadcasts(id) ON DELETE CASCADE,
            recipient_id INT REFERENCES users(id) ON DELETE CASCADE,
            position INT NOT NULL,
            PRIMARY KEY (broadcast_id, recipient_id)
        )`,

		`CREATE INDEX IF NOT EXISTS idx_scheduled_broadcasts_due
            ON scheduled_broadcasts (scheduled_at) WHERE NOT sent`,
	}

	for _, query := range queries {
		_, err := d.Conn.Exec(query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
