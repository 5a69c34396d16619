package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ShashwatSecure/WIBE-CHAT/internal/apperr"
)

// Server-to-client delivery events.
const (
	EventNewMessage        = "newMessage"
	EventMessageConfirmed  = "messageConfirmed"
	EventStatusUpdate      = "messageStatusUpdate"
	EventUnreadCountUpdate = "unreadCountUpdate"
	EventMessagesSeen      = "messagesSeen"
	EventMessageDeleted    = "messageDeleted"
)

type ConfirmedPayload struct {
	CorrelationToken string   `json:"correlationToken"`
	Message          *Message `json:"message"`
}

type StatusUpdatePayload struct {
	MessageID int64  `json:"messageId"`
	Status    Status `json:"status"`
}

type UnreadCountPayload struct {
	SenderID int64 `json:"senderId"`
	NewCount int   `json:"newCount"`
}

type SeenPayload struct {
	ChatPartnerID int64 `json:"chatPartnerId"`
	SenderID      int64 `json:"senderId"`
	ReceiverID    int64 `json:"receiverId"`
}

// UserStore is the slice of the user feature the engine needs: block-list
// lookups and unread counters.
type UserStore interface {
	IsBlocked(ctx context.Context, owner, other int64) (bool, error)
	IncrementUnread(ctx context.Context, owner, peer int64) (int, error)
	ResetUnread(ctx context.Context, owner, peer int64) error
}

// Presence answers whether a user has at least one live connection on this
// instance. Cross-instance connectivity is not consulted; a receiver
// connected only to another instance still gets the message through the
// fanout but the delivered transition waits for a submit that sees them.
type Presence interface {
	IsOnline(identity int64) bool
}

// Emitter delivers a named event to every connection of a user.
type Emitter interface {
	EmitToUser(ctx context.Context, userID int64, event string, data interface{})
}

// Engine orchestrates message delivery: persist, fan out to live
// connections, advance status, maintain unread counters.
type Engine struct {
	store    Store
	users    UserStore
	presence Presence
	emitter  Emitter
	log      *slog.Logger
}

func NewEngine(store Store, users UserStore, presence Presence, emitter Emitter, log *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		users:    users,
		presence: presence,
		emitter:  emitter,
		log:      log,
	}
}

// Submit persists and delivers one direct message.
//
// A submit to a receiver who has blocked the sender is dropped without any
// persistence or emission, and without an error: the sender deliberately
// gets no rejection signal. Both return values are nil in that case.
func (e *Engine) Submit(ctx context.Context, req *SubmitRequest) (*Message, error) {
	if req.SenderID <= 0 || req.ReceiverID <= 0 {
		return nil, fmt.Errorf("sender and receiver ids are required: %w", apperr.ErrValidation)
	}
	if req.SenderID == req.ReceiverID {
		return nil, fmt.Errorf("cannot message yourself: %w", apperr.ErrValidation)
	}
	hasContent := req.Content != nil && *req.Content != ""
	if !hasContent && req.AttachmentURL == nil {
		return nil, fmt.Errorf("message needs content or an attachment: %w", apperr.ErrValidation)
	}

	blocked, err := e.users.IsBlocked(ctx, req.ReceiverID, req.SenderID)
	if err != nil {
		return nil, err
	}
	if blocked {
		e.log.Debug("dropping message from blocked sender",
			"sender", req.SenderID, "receiver", req.ReceiverID)
		return nil, nil
	}

	msg := &Message{
		SenderID:       req.SenderID,
		ReceiverID:     req.ReceiverID,
		Content:        req.Content,
		AttachmentURL:  req.AttachmentURL,
		AttachmentKind: req.AttachmentKind,
		Status:         StatusSent,
	}
	// Persistence happens-before any emission. A store failure fails the
	// whole submit; the client keeps its optimistic copy and may retry.
	if err := e.store.Insert(ctx, msg); err != nil {
		return nil, err
	}

	e.emitter.EmitToUser(ctx, msg.ReceiverID, EventNewMessage, msg)
	e.emitter.EmitToUser(ctx, msg.SenderID, EventMessageConfirmed, &ConfirmedPayload{
		CorrelationToken: req.CorrelationToken,
		Message:          msg,
	})

	if e.presence.IsOnline(msg.ReceiverID) {
		advanced, err := e.store.AdvanceStatus(ctx, msg.ID, StatusDelivered)
		if err != nil {
			e.log.Error("delivered transition failed", "message", msg.ID, "error", err)
		} else if advanced {
			msg.Status = StatusDelivered
			update := &StatusUpdatePayload{MessageID: msg.ID, Status: StatusDelivered}
			e.emitter.EmitToUser(ctx, msg.SenderID, EventStatusUpdate, update)
			e.emitter.EmitToUser(ctx, msg.ReceiverID, EventStatusUpdate, update)
		}
	}

	count, err := e.users.IncrementUnread(ctx, msg.ReceiverID, msg.SenderID)
	if err != nil {
		e.log.Error("unread increment failed", "receiver", msg.ReceiverID, "error", err)
	} else {
		e.emitter.EmitToUser(ctx, msg.ReceiverID, EventUnreadCountUpdate, &UnreadCountPayload{
			SenderID: msg.SenderID,
			NewCount: count,
		})
	}

	return msg, nil
}

// MarkSeen bulk-transitions everything sender->receiver to seen and resets
// the receiver's unread counter for that sender. Safe to call repeatedly;
// a repeat updates zero rows and re-announces a count of zero.
func (e *Engine) MarkSeen(ctx context.Context, senderID, receiverID int64) error {
	if senderID <= 0 || receiverID <= 0 {
		return fmt.Errorf("sender and receiver ids are required: %w", apperr.ErrValidation)
	}

	if _, err := e.store.MarkSeen(ctx, senderID, receiverID); err != nil {
		return err
	}
	if err := e.users.ResetUnread(ctx, receiverID, senderID); err != nil {
		return err
	}

	seen := &SeenPayload{ChatPartnerID: receiverID, SenderID: senderID, ReceiverID: receiverID}
	e.emitter.EmitToUser(ctx, senderID, EventMessagesSeen, seen)
	e.emitter.EmitToUser(ctx, receiverID, EventMessagesSeen,
		&SeenPayload{ChatPartnerID: senderID, SenderID: senderID, ReceiverID: receiverID})
	e.emitter.EmitToUser(ctx, receiverID, EventUnreadCountUpdate, &UnreadCountPayload{
		SenderID: senderID,
		NewCount: 0,
	})
	return nil
}

// DeleteMessage removes a single message. Only a participant may delete;
// a non-participant gets an authorization error, a missing id a not-found.
func (e *Engine) DeleteMessage(ctx context.Context, messageID, requesterID int64) error {
	msg, err := e.store.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != requesterID && msg.ReceiverID != requesterID {
		return fmt.Errorf("message %d: %w", messageID, apperr.ErrUnauthorized)
	}

	if err := e.store.Delete(ctx, messageID); err != nil {
		return err
	}

	e.emitter.EmitToUser(ctx, msg.SenderID, EventMessageDeleted, messageID)
	e.emitter.EmitToUser(ctx, msg.ReceiverID, EventMessageDeleted, messageID)
	return nil
}

// DeleteMany is fail-closed: every id is authorized before anything is
// deleted, and one violation rejects the whole batch.
func (e *Engine) DeleteMany(ctx context.Context, messageIDs []int64, requesterID int64) error {
	if len(messageIDs) == 0 {
		return fmt.Errorf("no message ids given: %w", apperr.ErrValidation)
	}

	msgs := make([]*Message, 0, len(messageIDs))
	for _, id := range messageIDs {
		msg, err := e.store.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if msg.SenderID != requesterID && msg.ReceiverID != requesterID {
			return fmt.Errorf("message %d: %w", id, apperr.ErrUnauthorized)
		}
		msgs = append(msgs, msg)
	}

	if err := e.store.DeleteMany(ctx, messageIDs); err != nil {
		return err
	}

	for _, msg := range msgs {
		e.emitter.EmitToUser(ctx, msg.SenderID, EventMessageDeleted, msg.ID)
		e.emitter.EmitToUser(ctx, msg.ReceiverID, EventMessageDeleted, msg.ID)
	}
	return nil
}

// Unblur records that the user revealed a blurred attachment. Idempotent.
func (e *Engine) Unblur(ctx context.Context, messageID, userID int64) error {
	msg, err := e.store.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID && msg.ReceiverID != userID {
		return fmt.Errorf("message %d: %w", messageID, apperr.ErrUnauthorized)
	}
	return e.store.AddUnblur(ctx, messageID, userID)
}

func (e *Engine) History(ctx context.Context, senderID, receiverID int64) ([]*Message, error) {
	if senderID <= 0 || receiverID <= 0 {
		return nil, fmt.Errorf("sender and receiver ids are required: %w", apperr.ErrValidation)
	}
	return e.store.ListConversation(ctx, senderID, receiverID)
}

func (e *Engine) Previews(ctx context.Context, userID int64) ([]ConversationPreview, error) {
	return e.store.LastMessagePerPeer(ctx, userID)
}
