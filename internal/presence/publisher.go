package presence

import (
	"context"
	"log/slog"
	"time"
)

// Online/offline transitions and typing relays.
const (
	EventUserOnline  = "userOnline"
	EventUserOffline = "userOffline"
	EventTyping      = "typing"
	EventStopTyping  = "stopTyping"
)

type OnlinePayload struct {
	UserID int64 `json:"userId"`
}

type OfflinePayload struct {
	UserID   int64     `json:"userId"`
	LastSeen time.Time `json:"lastSeen"`
}

type TypingPayload struct {
	SenderID int64 `json:"senderId"`
}

// Emitter is the slice of the socket hub presence needs.
type Emitter interface {
	EmitToUser(ctx context.Context, userID int64, event string, data interface{})
	EmitGlobal(ctx context.Context, event string, data interface{})
}

// OnlineStore persists the durable presence fields on the user record.
type OnlineStore interface {
	SetOnline(ctx context.Context, id int64, online bool, lastSeen time.Time) error
}

// Publisher broadcasts presence transitions. Online/offline go to every
// connected client, not just friends; that matches observed product
// behavior and lives behind this type so a friends-scoped variant is a
// local change.
type Publisher struct {
	emitter Emitter
	store   OnlineStore
	log     *slog.Logger
}

func NewPublisher(emitter Emitter, store OnlineStore, log *slog.Logger) *Publisher {
	return &Publisher{emitter: emitter, store: store, log: log}
}

func (p *Publisher) WentOnline(ctx context.Context, identity int64) {
	if err := p.store.SetOnline(ctx, identity, true, time.Now()); err != nil {
		p.log.Error("persist online flag failed", "identity", identity, "error", err)
	}
	p.emitter.EmitGlobal(ctx, EventUserOnline, &OnlinePayload{UserID: identity})
}

func (p *Publisher) WentOffline(ctx context.Context, identity int64, lastSeen time.Time) {
	if err := p.store.SetOnline(ctx, identity, false, lastSeen); err != nil {
		p.log.Error("persist offline flag failed", "identity", identity, "error", err)
	}
	p.emitter.EmitGlobal(ctx, EventUserOffline, &OfflinePayload{UserID: identity, LastSeen: lastSeen})
}

// Typing indicators are ephemeral: relayed to the receiver's connections,
// never persisted. The idle-to-stop timer is the client's job.
func (p *Publisher) Typing(ctx context.Context, senderID, receiverID int64) {
	p.emitter.EmitToUser(ctx, receiverID, EventTyping, &TypingPayload{SenderID: senderID})
}

func (p *Publisher) StopTyping(ctx context.Context, senderID, receiverID int64) {
	p.emitter.EmitToUser(ctx, receiverID, EventStopTyping, &TypingPayload{SenderID: senderID})
}
