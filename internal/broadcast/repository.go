package broadcast

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ShashwatSecure/WIBE-CHAT/internal/apperr"
	"github.com/goccy/go-json"
)

// Store is the persistence boundary for scheduled broadcasts and broadcast
// groups. Claim and delete are atomic conditional updates so a cancel
// racing a dispatch tick resolves to exactly one outcome.
type Store interface {
	CreateScheduled(ctx context.Context, b *ScheduledBroadcast) error
	GetByID(ctx context.Context, id int64) (*ScheduledBroadcast, error)
	ListPendingByUser(ctx context.Context, senderID int64) ([]*ScheduledBroadcast, error)
	DueIDs(ctx context.Context, now time.Time) ([]int64, error)
	ClaimIfPending(ctx context.Context, id int64) (bool, error)
	ReleaseClaim(ctx context.Context, id int64) error
	DeleteIfPending(ctx context.Context, id, ownerID int64) (bool, error)

	CreateGroup(ctx context.Context, g *BroadcastGroup) error
	ListGroupsByOwner(ctx context.Context, ownerID int64) ([]*BroadcastGroup, error)
	DeleteGroup(ctx context.Context, id, ownerID int64) (bool, error)
}

type Repository struct {
	db *sql.DB
}

var _ Store = (*Repository)(nil)

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateScheduled(ctx context.Context, b *ScheduledBroadcast) error {
	b.Recipients = dedupRecipients(b.Recipients)
	if len(b.Recipients) == 0 {
		return fmt.Errorf("broadcast needs at least one recipient: %w", apperr.ErrValidation)
	}

	urls, err := json.Marshal(b.AttachmentURLs)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO scheduled_broadcasts (sender_id, content, attachment_urls, scheduled_at)
	          VALUES ($1, $2, $3, $4) RETURNING id, created_at`
	if err := tx.QueryRowContext(ctx, query,
		b.SenderID, b.Content, urls, b.ScheduledAt).Scan(&b.ID, &b.CreatedAt); err != nil {
		return err
	}

	recQuery := `INSERT INTO scheduled_broadcast_recipients (broadcast_id, recipient_id, position)
	             VALUES ($1, $2, $3)`
	for i, rec := range b.Recipients {
		if _, err := tx.ExecContext(ctx, recQuery, b.ID, rec, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*ScheduledBroadcast, error) {
	b := &ScheduledBroadcast{}
	var urls []byte
	query := `SELECT id, sender_id, content, attachment_urls, scheduled_at, sent, created_at
	          FROM scheduled_broadcasts WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.SenderID, &b.Content, &urls, &b.ScheduledAt, &b.Sent, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("broadcast %d: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	if err := json.Unmarshal(urls, &b.AttachmentURLs); err != nil {
		return nil, err
	}

	b.Recipients, err = r.recipients(ctx, b.ID)
	return b, err
}

func (r *Repository) recipients(ctx context.Context, broadcastID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT recipient_id FROM scheduled_broadcast_recipients
		 WHERE broadcast_id = $1 ORDER BY position`, broadcastID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *Repository) ListPendingByUser(ctx context.Context, senderID int64) ([]*ScheduledBroadcast, error) {
	query := `SELECT id, sender_id, content, attachment_urls, scheduled_at, sent, created_at
	          FROM scheduled_broadcasts
	          WHERE sender_id = $1 AND NOT sent
	          ORDER BY scheduled_at`
	rows, err := r.db.QueryContext(ctx, query, senderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ScheduledBroadcast
	for rows.Next() {
		b := &ScheduledBroadcast{}
		var urls []byte
		if err := rows.Scan(&b.ID, &b.SenderID, &b.Content, &urls,
			&b.ScheduledAt, &b.Sent, &b.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(urls, &b.AttachmentURLs); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, b := range out {
		if b.Recipients, err = r.recipients(ctx, b.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repository) DueIDs(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM scheduled_broadcasts
		 WHERE scheduled_at <= $1 AND NOT sent ORDER BY scheduled_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClaimIfPending flips sent to true only if it is still false. A false
// return means someone else claimed it, or it was cancelled.
func (r *Repository) ClaimIfPending(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_broadcasts SET sent = TRUE WHERE id = $1 AND NOT sent`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ReleaseClaim reverts a claim after a failed materialization so the next
// tick retries the broadcast.
func (r *Repository) ReleaseClaim(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_broadcasts SET sent = FALSE WHERE id = $1`, id)
	return err
}

// DeleteIfPending cancels a broadcast only while it has not been claimed.
func (r *Repository) DeleteIfPending(ctx context.Context, id, ownerID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM scheduled_broadcasts WHERE id = $1 AND sender_id = $2 AND NOT sent`,
		id, ownerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *Repository) CreateGroup(ctx context.Context, g *BroadcastGroup) error {
	query := `INSERT INTO broadcast_groups (name, owner_id) VALUES ($1, $2)
	          RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query, g.Name, g.OwnerID).Scan(&g.ID, &g.CreatedAt)
}

func (r *Repository) ListGroupsByOwner(ctx context.Context, ownerID int64) ([]*BroadcastGroup, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, owner_id, created_at FROM broadcast_groups
		 WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*BroadcastGroup
	for rows.Next() {
		g := &BroadcastGroup{}
		if err := rows.Scan(&g.ID, &g.Name, &g.OwnerID, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteGroup(ctx context.Context, id, ownerID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM broadcast_groups WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
