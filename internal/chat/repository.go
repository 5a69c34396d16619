package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ShashwatSecure/WIBE-CHAT/internal/apperr"
)

// Store is the persistence boundary for messages. The Delivery Engine and
// the broadcast Dispatcher both write through it.
type Store interface {
	Insert(ctx context.Context, m *Message) error
	InsertBatch(ctx context.Context, msgs []*Message) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	ListConversation(ctx context.Context, userA, userB int64) ([]*Message, error)
	AdvanceStatus(ctx context.Context, id int64, to Status) (bool, error)
	MarkSeen(ctx context.Context, senderID, receiverID int64) (int64, error)
	Delete(ctx context.Context, id int64) error
	DeleteMany(ctx context.Context, ids []int64) error
	AddUnblur(ctx context.Context, messageID, userID int64) error
	LastMessagePerPeer(ctx context.Context, userID int64) ([]ConversationPreview, error)
}

type Repository struct {
	db *sql.DB
}

var _ Store = (*Repository)(nil)

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, m *Message) error {
	query := `INSERT INTO messages (sender_id, receiver_id, content, attachment_url, attachment_kind, status)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query,
		m.SenderID, m.ReceiverID, m.Content, m.AttachmentURL, m.AttachmentKind, m.Status,
	).Scan(&m.ID, &m.CreatedAt)
}

// InsertBatch persists all messages in one transaction; either the whole
// fan-out lands or none of it does.
func (r *Repository) InsertBatch(ctx context.Context, msgs []*Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO messages (sender_id, receiver_id, content, attachment_url, attachment_kind, status)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING id, created_at`
	for _, m := range msgs {
		err := tx.QueryRowContext(ctx, query,
			m.SenderID, m.ReceiverID, m.Content, m.AttachmentURL, m.AttachmentKind, m.Status,
		).Scan(&m.ID, &m.CreatedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*Message, error) {
	m := &Message{}
	query := `SELECT id, sender_id, receiver_id, content, attachment_url, attachment_kind, status, created_at
	          FROM messages WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID, &m.SenderID, &m.ReceiverID, &m.Content,
		&m.AttachmentURL, &m.AttachmentKind, &m.Status, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	return m, nil
}

// ListConversation returns all messages between the two users, both
// directions, ordered by creation time.
func (r *Repository) ListConversation(ctx context.Context, userA, userB int64) ([]*Message, error) {
	query := `SELECT id, sender_id, receiver_id, content, attachment_url, attachment_kind, status, created_at
	          FROM messages
	          WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
	          ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, userA, userB)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	byID := make(map[int64]*Message)
	for rows.Next() {
		m := &Message{}
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content,
			&m.AttachmentURL, &m.AttachmentKind, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
		byID[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return messages, nil
	}

	// Attach unblur sets in a second pass.
	unblurQuery := `SELECT mu.message_id, mu.user_id
	                FROM message_unblurs mu
	                JOIN messages m ON m.id = mu.message_id
	                WHERE (m.sender_id = $1 AND m.receiver_id = $2) OR (m.sender_id = $2 AND m.receiver_id = $1)`
	unblurRows, err := r.db.QueryContext(ctx, unblurQuery, userA, userB)
	if err != nil {
		return nil, err
	}
	defer unblurRows.Close()
	for unblurRows.Next() {
		var msgID, uid int64
		if err := unblurRows.Scan(&msgID, &uid); err != nil {
			return nil, err
		}
		if m, ok := byID[msgID]; ok {
			m.UnblurredBy = append(m.UnblurredBy, uid)
		}
	}
	return messages, unblurRows.Err()
}

// allowedFrom lists the statuses a transition target may be applied over.
// The conditional WHERE keeps status monotonic under concurrent updates.
var allowedFrom = map[Status][]string{
	StatusDelivered: {string(StatusSent)},
	StatusSeen:      {string(StatusSent), string(StatusDelivered)},
}

// AdvanceStatus moves a message forward to the given status. Returns false
// without error when the message is already at or past it.
func (r *Repository) AdvanceStatus(ctx context.Context, id int64, to Status) (bool, error) {
	from, ok := allowedFrom[to]
	if !ok {
		return false, fmt.Errorf("cannot transition to status %q: %w", to, apperr.ErrValidation)
	}
	query := `UPDATE messages SET status = $1 WHERE id = $2 AND status = ANY($3)`
	res, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkSeen bulk-advances every message from sender to receiver that is not
// yet seen. Returns the number of rows updated; zero on a repeat call.
func (r *Repository) MarkSeen(ctx context.Context, senderID, receiverID int64) (int64, error) {
	query := `UPDATE messages SET status = 'seen'
	          WHERE sender_id = $1 AND receiver_id = $2 AND status <> 'seen'`
	res, err := r.db.ExecContext(ctx, query, senderID, receiverID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	return err
}

func (r *Repository) DeleteMany(ctx context.Context, ids []int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ANY($1)`, ids)
	return err
}

func (r *Repository) AddUnblur(ctx context.Context, messageID, userID int64) error {
	query := `INSERT INTO message_unblurs (message_id, user_id) VALUES ($1, $2)
	          ON CONFLICT DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, messageID, userID)
	return err
}

// LastMessagePerPeer returns, for each peer the user has exchanged messages
// with, the most recent message of that conversation.
func (r *Repository) LastMessagePerPeer(ctx context.Context, userID int64) ([]ConversationPreview, error) {
	query := `SELECT DISTINCT ON (peer_id)
	              CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS peer_id,
	              id, sender_id, receiver_id, content, attachment_url, attachment_kind, status, created_at
	          FROM messages
	          WHERE sender_id = $1 OR receiver_id = $1
	          ORDER BY peer_id, created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var previews []ConversationPreview
	for rows.Next() {
		m := &Message{}
		var peerID int64
		if err := rows.Scan(&peerID, &m.ID, &m.SenderID, &m.ReceiverID, &m.Content,
			&m.AttachmentURL, &m.AttachmentKind, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		previews = append(previews, ConversationPreview{PeerID: peerID, LastMessage: m})
	}
	return previews, rows.Err()
}
