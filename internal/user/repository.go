package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ShashwatSecure/WIBE-CHAT/internal/apperr"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, u *User) (*User, error) {
	var id int64
	query := `INSERT INTO users (name, email, username, password)
	          VALUES ($1, $2, $3, $4) RETURNING id`

	err := r.db.QueryRowContext(ctx, query, u.Name, u.Email, u.Username, u.Password).Scan(&id)
	if err != nil {
		return nil, err
	}

	u.ID = id
	return u, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u := &User{}
	query := `SELECT id, name, email, username, password, profile_picture, is_verified, online, last_seen
	          FROM users WHERE username = $1`

	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&u.ID, &u.Name, &u.Email, &u.Username, &u.Password,
		&u.ProfilePicture, &u.IsVerified, &u.Online, &u.LastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, apperr.ErrNotFound)
		}
		return nil, err
	}

	return u, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id int64) (*User, error) {
	u := &User{}
	query := `SELECT id, name, email, username, password, profile_picture, is_verified, online, last_seen
	          FROM users WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Name, &u.Email, &u.Username, &u.Password,
		&u.ProfilePicture, &u.IsVerified, &u.Online, &u.LastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}

	return u, nil
}

func (r *Repository) SearchUsers(ctx context.Context, query string) ([]User, error) {
	// Limit to 10 to keep it fast
	q := `SELECT id, name, username, profile_picture, online FROM users
	      WHERE username ILIKE $1 OR name ILIKE $1 LIMIT 10`
	rows, err := r.db.QueryContext(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Username, &u.ProfilePicture, &u.Online); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// IsBlocked reports whether owner has other on their block-list.
func (r *Repository) IsBlocked(ctx context.Context, owner, other int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM user_blocks WHERE user_id = $1 AND blocked_id = $2)`
	if err := r.db.QueryRowContext(ctx, query, owner, other).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *Repository) SetBlocked(ctx context.Context, owner, other int64, blocked bool) error {
	if blocked {
		query := `INSERT INTO user_blocks (user_id, blocked_id) VALUES ($1, $2)
		          ON CONFLICT DO NOTHING`
		_, err := r.db.ExecContext(ctx, query, owner, other)
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_blocks WHERE user_id = $1 AND blocked_id = $2`, owner, other)
	return err
}

// IncrementUnread bumps owner's unread counter for peer and returns the new count.
func (r *Repository) IncrementUnread(ctx context.Context, owner, peer int64) (int, error) {
	var count int
	query := `INSERT INTO user_unread (user_id, peer_id, count) VALUES ($1, $2, 1)
	          ON CONFLICT (user_id, peer_id) DO UPDATE SET count = user_unread.count + 1
	          RETURNING count`
	if err := r.db.QueryRowContext(ctx, query, owner, peer).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Repository) ResetUnread(ctx context.Context, owner, peer int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE user_unread SET count = 0 WHERE user_id = $1 AND peer_id = $2`, owner, peer)
	return err
}

// UnreadCounts returns owner's per-peer unread counters, omitting zeros.
func (r *Repository) UnreadCounts(ctx context.Context, owner int64) (map[int64]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT peer_id, count FROM user_unread WHERE user_id = $1 AND count > 0`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var peer int64
		var count int
		if err := rows.Scan(&peer, &count); err != nil {
			return nil, err
		}
		counts[peer] = count
	}
	return counts, rows.Err()
}

func (r *Repository) SetOnline(ctx context.Context, id int64, online bool, lastSeen time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET online = $2, last_seen = $3 WHERE id = $1`, id, online, lastSeen)
	return err
}
