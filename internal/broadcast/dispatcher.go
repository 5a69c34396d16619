package broadcast

import (
	"context"
	"log/slog"
	"time"

	"github.com/ShashwatSecure/WIBE-CHAT/internal/chat"
)

// Emitter is the slice of the socket hub the dispatcher needs.
type Emitter interface {
	EmitToUser(ctx context.Context, userID int64, event string, data interface{})
}

// UnreadCounter bumps the per-sender unread counter of a recipient.
type UnreadCounter interface {
	IncrementUnread(ctx context.Context, owner, peer int64) (int, error)
}

// Dispatcher bridges the periodic scan to the live delivery path. It is a
// ticker around an idempotent Tick so one pass can be driven directly in
// tests or for an immediate send.
type Dispatcher struct {
	store    Store
	messages chat.Store
	unread   UnreadCounter
	emitter  Emitter
	interval time.Duration
	log      *slog.Logger
}

func NewDispatcher(store Store, messages chat.Store, unread UnreadCounter, emitter Emitter, interval time.Duration, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		messages: messages,
		unread:   unread,
		emitter:  emitter,
		interval: interval,
		log:      log,
	}
}

// Run polls for due broadcasts until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick(ctx, time.Now())
		}
	}
}

// Tick runs one scan-and-deliver pass. A transient failure leaves the
// affected broadcast pending for the next tick; the claim guard keyed by
// broadcast id keeps a retry from duplicating messages.
func (d *Dispatcher) Tick(ctx context.Context, now time.Time) {
	ids, err := d.store.DueIDs(ctx, now)
	if err != nil {
		d.log.Error("due-broadcast scan failed", "error", err)
		return
	}

	for _, id := range ids {
		if err := d.DispatchOne(ctx, id); err != nil {
			d.log.Error("broadcast dispatch failed", "broadcast", id, "error", err)
		}
	}
}

// DispatchOne claims and materializes a single broadcast. A broadcast that
// is no longer pending (already claimed, or cancelled) is skipped silently:
// the claim and the cancel are conditional updates on the same row, so
// exactly one of them wins.
func (d *Dispatcher) DispatchOne(ctx context.Context, id int64) error {
	claimed, err := d.store.ClaimIfPending(ctx, id)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	b, err := d.store.GetByID(ctx, id)
	if err != nil {
		d.release(ctx, id)
		return err
	}

	msgs := make([]*chat.Message, 0, len(b.Recipients))
	for _, recipient := range b.Recipients {
		content := b.Content
		m := &chat.Message{
			SenderID:   b.SenderID,
			ReceiverID: recipient,
			Content:    &content,
			Status:     chat.StatusSent,
		}
		if len(b.AttachmentURLs) > 0 {
			url := b.AttachmentURLs[0]
			m.AttachmentURL = &url
			m.AttachmentKind = chat.AttachmentDocument
		}
		msgs = append(msgs, m)
	}

	// Messages carry the dispatch timestamp, not the originally scheduled
	// one. The batch is transactional: all recipients or none.
	if err := d.messages.InsertBatch(ctx, msgs); err != nil {
		d.release(ctx, id)
		return err
	}

	for _, m := range msgs {
		d.emitter.EmitToUser(ctx, m.ReceiverID, chat.EventNewMessage, m)
		count, err := d.unread.IncrementUnread(ctx, m.ReceiverID, m.SenderID)
		if err != nil {
			d.log.Error("unread increment failed", "recipient", m.ReceiverID, "error", err)
			continue
		}
		d.emitter.EmitToUser(ctx, m.ReceiverID, chat.EventUnreadCountUpdate, &chat.UnreadCountPayload{
			SenderID: m.SenderID,
			NewCount: count,
		})
	}

	b.Sent = true
	d.emitter.EmitToUser(ctx, b.SenderID, EventBroadcastSent, b)
	d.log.Info("broadcast dispatched", "broadcast", b.ID, "recipients", len(b.Recipients))
	return nil
}

func (d *Dispatcher) release(ctx context.Context, id int64) {
	if err := d.store.ReleaseClaim(ctx, id); err != nil {
		d.log.Error("claim release failed, broadcast stuck as sent",
			"broadcast", id, "error", err)
	}
}
