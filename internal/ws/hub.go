package ws

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ShashwatSecure/WIBE-CHAT/internal/chat"
	"github.com/goccy/go-json"
)

// Publisher is the cross-instance fanout backbone. Every emission goes
// through it; the subscription loop hands payloads back to DeliverLocal on
// every instance, including this one, so there is a single delivery path.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Delivery is the slice of the Delivery Engine the socket layer invokes.
type Delivery interface {
	Submit(ctx context.Context, req *chat.SubmitRequest) (*chat.Message, error)
	MarkSeen(ctx context.Context, senderID, receiverID int64) error
}

// PresenceNotifier receives connection-lifecycle transitions and typing
// relays.
type PresenceNotifier interface {
	WentOnline(ctx context.Context, identity int64)
	WentOffline(ctx context.Context, identity int64, lastSeen time.Time)
	Typing(ctx context.Context, senderID, receiverID int64)
	StopTyping(ctx context.Context, senderID, receiverID int64)
}

// Hub ties the session registry, room membership and the fanout backbone
// together and routes inbound socket events to the feature services. It is
// an explicit constructed instance handed to handlers, never a global.
type Hub struct {
	Registry *Registry
	Rooms    *Rooms

	publisher Publisher
	delivery  Delivery
	presence  PresenceNotifier
	log       *slog.Logger
}

func NewHub(publisher Publisher, log *slog.Logger) *Hub {
	return &Hub{
		Registry:  NewRegistry(),
		Rooms:     NewRooms(),
		publisher: publisher,
		log:       log,
	}
}

// Bind attaches the services the hub dispatches to. Separate from NewHub
// because the delivery engine and presence publisher need the hub as their
// emitter.
func (h *Hub) Bind(delivery Delivery, presence PresenceNotifier) {
	h.delivery = delivery
	h.presence = presence
}

// IsOnline satisfies chat.Presence.
func (h *Hub) IsOnline(identity int64) bool {
	return h.Registry.IsOnline(identity)
}

// EmitToUser delivers an event to every connection of the user, across all
// instances.
func (h *Hub) EmitToUser(ctx context.Context, userID int64, event string, data interface{}) {
	h.emit(ctx, "user:"+strconv.FormatInt(userID, 10), event, data)
}

// EmitToRoom delivers an event to every connection subscribed to the room.
func (h *Hub) EmitToRoom(ctx context.Context, roomKey, event string, data interface{}) {
	h.emit(ctx, roomKey, event, data)
}

// EmitGlobal delivers an event to every connected client everywhere.
func (h *Hub) EmitGlobal(ctx context.Context, event string, data interface{}) {
	h.emit(ctx, "global", event, data)
}

func (h *Hub) emit(ctx context.Context, channel, event string, data interface{}) {
	frame, err := encodeEnvelope(event, data)
	if err != nil {
		h.log.Error("encode event failed", "event", event, "error", err)
		return
	}
	if err := h.publisher.Publish(ctx, channel, frame); err != nil {
		// Degrade to single-instance delivery rather than dropping.
		h.log.Error("fanout publish failed, delivering locally",
			"channel", channel, "event", event, "error", err)
		h.DeliverLocal(channel, frame)
	}
}

// DeliverLocal pushes a fanned-out payload to the matching local
// connections. This is the sink the fanout subscription feeds.
func (h *Hub) DeliverLocal(channel string, payload []byte) {
	var targets []*Client
	switch {
	case channel == "global":
		targets = h.Registry.AllHandles()
	case strings.HasPrefix(channel, "user:"):
		id, err := strconv.ParseInt(strings.TrimPrefix(channel, "user:"), 10, 64)
		if err != nil {
			h.log.Warn("malformed user channel", "channel", channel)
			return
		}
		targets = h.Registry.HandlesFor(id)
	default:
		targets = h.Rooms.MembersOf(channel)
	}

	for _, c := range targets {
		if c.trySend(payload) {
			continue
		}
		// Buffer full: the connection is too slow, drop it. The handle
		// leaves the Registry and Rooms before its channel closes so no
		// later delivery can reach a dead channel.
		h.log.Warn("client buffer full, disconnecting", "conn", c.id)
		h.disconnect(context.Background(), c)
	}
}

// handleEnvelope dispatches one inbound client event. Errors are logged
// and answered with an error event to the origin connection only; they
// never affect other sessions.
func (h *Hub) handleEnvelope(ctx context.Context, c *Client, env *Envelope) {
	switch env.Event {
	case EventRegisterUser, EventAuth:
		h.handleRegister(ctx, c, env.Data)

	case EventSendMessage:
		var req chat.SubmitRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			c.sendError("malformed sendMessage payload")
			return
		}
		if !c.registered() || req.SenderID != c.identity.Load() {
			c.sendError("sendMessage sender does not match this connection")
			return
		}
		if _, err := h.delivery.Submit(ctx, &req); err != nil {
			h.log.Error("submit failed", "sender", req.SenderID, "error", err)
			c.sendError("message could not be sent")
		}

	case EventTyping, EventStopTyping:
		var p typingPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		if !c.registered() || p.SenderID != c.identity.Load() {
			c.sendError("typing sender does not match this connection")
			return
		}
		if env.Event == EventTyping {
			h.presence.Typing(ctx, p.SenderID, p.ReceiverID)
		} else {
			h.presence.StopTyping(ctx, p.SenderID, p.ReceiverID)
		}

	case EventMessagesSeen:
		var p seenPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.sendError("malformed messagesSeen payload")
			return
		}
		// Only the receiver of a conversation may mark it seen.
		if !c.registered() || p.ReceiverID != c.identity.Load() {
			c.sendError("messagesSeen receiver does not match this connection")
			return
		}
		if err := h.delivery.MarkSeen(ctx, p.ChatPartnerID, p.ReceiverID); err != nil {
			h.log.Error("markSeen failed", "partner", p.ChatPartnerID, "error", err)
			c.sendError("could not mark messages seen")
		}

	case EventJoinDirectRoom:
		var p roomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomKey == "" {
			return
		}
		h.Rooms.JoinDirect(c, p.RoomKey)

	case EventLeaveDirectRoom:
		var p roomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomKey == "" {
			return
		}
		h.Rooms.Leave(c, p.RoomKey)

	case EventJoinGroup:
		var p roomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.RoomKey == "" {
			return
		}
		h.Rooms.Join(c, p.RoomKey)

	default:
		h.log.Warn("unknown event", "event", env.Event, "conn", c.id)
	}
}

func (h *Hub) handleRegister(ctx context.Context, c *Client, data json.RawMessage) {
	var p registerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError("malformed register payload")
		return
	}
	// The connection was authenticated at upgrade time; registering as
	// anyone else is refused.
	if p.UserID != c.authID {
		c.sendError("cannot register as another user")
		return
	}
	if c.registered() {
		return
	}
	c.identity.Store(p.UserID)
	if wentOnline := h.Registry.Register(p.UserID, c); wentOnline {
		h.presence.WentOnline(ctx, p.UserID)
	}
	h.log.Info("connection registered", "identity", p.UserID, "conn", c.id)
}

// disconnect tears down a handle. Safe to call for a connection that never
// registered.
func (h *Hub) disconnect(ctx context.Context, c *Client) {
	h.Rooms.LeaveAll(c)
	if identity := c.identity.Load(); identity != 0 {
		if wentOffline, lastSeen := h.Registry.Unregister(identity, c); wentOffline {
			h.presence.WentOffline(ctx, identity, lastSeen)
		}
	}
	c.closeSend()
}
