package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ShashwatSecure/WIBE-CHAT/internal/apperr"
)

type fakeStore struct {
	nextID   int64
	messages map[int64]*Message
	unblurs  map[int64][]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:   1,
		messages: make(map[int64]*Message),
		unblurs:  make(map[int64][]int64),
	}
}

func (s *fakeStore) Insert(_ context.Context, m *Message) error {
	m.ID = s.nextID
	s.nextID++
	cp := *m
	s.messages[m.ID] = &cp
	return nil
}

func (s *fakeStore) InsertBatch(_ context.Context, msgs []*Message) error {
	for _, m := range msgs {
		m.ID = s.nextID
		s.nextID++
		cp := *m
		s.messages[m.ID] = &cp
	}
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id int64) (*Message, error) {
	m, ok := s.messages[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) ListConversation(_ context.Context, userA, userB int64) ([]*Message, error) {
	var out []*Message
	for _, m := range s.messages {
		if (m.SenderID == userA && m.ReceiverID == userB) || (m.SenderID == userB && m.ReceiverID == userA) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) AdvanceStatus(_ context.Context, id int64, to Status) (bool, error) {
	m, ok := s.messages[id]
	if !ok {
		return false, nil
	}
	switch to {
	case StatusDelivered:
		if m.Status != StatusSent {
			return false, nil
		}
	case StatusSeen:
		if m.Status != StatusSent && m.Status != StatusDelivered {
			return false, nil
		}
	default:
		return false, nil
	}
	m.Status = to
	return true, nil
}

func (s *fakeStore) MarkSeen(_ context.Context, senderID, receiverID int64) (int64, error) {
	var n int64
	for _, m := range s.messages {
		if m.SenderID == senderID && m.ReceiverID == receiverID && m.Status != StatusSeen {
			m.Status = StatusSeen
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) Delete(_ context.Context, id int64) error {
	if _, ok := s.messages[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(s.messages, id)
	return nil
}

func (s *fakeStore) DeleteMany(_ context.Context, ids []int64) error {
	for _, id := range ids {
		delete(s.messages, id)
	}
	return nil
}

func (s *fakeStore) AddUnblur(_ context.Context, messageID, userID int64) error {
	for _, u := range s.unblurs[messageID] {
		if u == userID {
			return nil
		}
	}
	s.unblurs[messageID] = append(s.unblurs[messageID], userID)
	return nil
}

func (s *fakeStore) LastMessagePerPeer(_ context.Context, _ int64) ([]ConversationPreview, error) {
	return nil, nil
}

type fakeUsers struct {
	blocked map[[2]int64]bool // [owner, other]
	unread  map[[2]int64]int  // [owner, peer]
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		blocked: make(map[[2]int64]bool),
		unread:  make(map[[2]int64]int),
	}
}

func (u *fakeUsers) IsBlocked(_ context.Context, owner, other int64) (bool, error) {
	return u.blocked[[2]int64{owner, other}], nil
}

func (u *fakeUsers) IncrementUnread(_ context.Context, owner, peer int64) (int, error) {
	k := [2]int64{owner, peer}
	u.unread[k]++
	return u.unread[k], nil
}

func (u *fakeUsers) ResetUnread(_ context.Context, owner, peer int64) error {
	u.unread[[2]int64{owner, peer}] = 0
	return nil
}

type fakePresence struct {
	online map[int64]bool
}

func (p *fakePresence) IsOnline(id int64) bool { return p.online[id] }

type emitted struct {
	userID int64
	event  string
	data   interface{}
}

type fakeEmitter struct {
	events []emitted
}

func (e *fakeEmitter) EmitToUser(_ context.Context, userID int64, event string, data interface{}) {
	e.events = append(e.events, emitted{userID: userID, event: event, data: data})
}

func (e *fakeEmitter) eventsFor(userID int64, event string) []emitted {
	var out []emitted
	for _, ev := range e.events {
		if ev.userID == userID && ev.event == event {
			out = append(out, ev)
		}
	}
	return out
}

func testEngine() (*Engine, *fakeStore, *fakeUsers, *fakePresence, *fakeEmitter) {
	store := newFakeStore()
	users := newFakeUsers()
	presence := &fakePresence{online: make(map[int64]bool)}
	emitter := &fakeEmitter{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(store, users, presence, emitter, log), store, users, presence, emitter
}

func strptr(s string) *string { return &s }

func TestSubmitToOnlineReceiver(t *testing.T) {
	engine, store, users, presence, emitter := testEngine()
	presence.online[2] = true

	msg, err := engine.Submit(context.Background(), &SubmitRequest{
		SenderID:         1,
		ReceiverID:       2,
		Content:          strptr("hello"),
		CorrelationToken: "tok-1",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if msg == nil || msg.ID == 0 {
		t.Fatal("expected a persisted message with an id")
	}
	if msg.Status != StatusDelivered {
		t.Fatalf("status = %q, want %q", msg.Status, StatusDelivered)
	}
	if got := store.messages[msg.ID].Status; got != StatusDelivered {
		t.Fatalf("stored status = %q, want %q", got, StatusDelivered)
	}

	if n := len(emitter.eventsFor(2, EventNewMessage)); n != 1 {
		t.Fatalf("receiver got %d newMessage events, want 1", n)
	}
	confirmed := emitter.eventsFor(1, EventMessageConfirmed)
	if len(confirmed) != 1 {
		t.Fatalf("sender got %d messageConfirmed events, want 1", len(confirmed))
	}
	if p := confirmed[0].data.(*ConfirmedPayload); p.CorrelationToken != "tok-1" {
		t.Fatalf("correlation token = %q, want %q", p.CorrelationToken, "tok-1")
	}
	if n := len(emitter.eventsFor(1, EventStatusUpdate)); n != 1 {
		t.Fatalf("sender got %d status updates, want 1", n)
	}
	if users.unread[[2]int64{2, 1}] != 1 {
		t.Fatalf("unread count = %d, want 1", users.unread[[2]int64{2, 1}])
	}
}

func TestSubmitToOfflineReceiverStaysSent(t *testing.T) {
	engine, store, _, _, emitter := testEngine()

	msg, err := engine.Submit(context.Background(), &SubmitRequest{
		SenderID:   1,
		ReceiverID: 2,
		Content:    strptr("hi"),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if msg.Status != StatusSent {
		t.Fatalf("status = %q, want %q", msg.Status, StatusSent)
	}
	if got := store.messages[msg.ID].Status; got != StatusSent {
		t.Fatalf("stored status = %q, want %q", got, StatusSent)
	}
	if n := len(emitter.eventsFor(1, EventStatusUpdate)); n != 0 {
		t.Fatalf("sender got %d status updates for an offline receiver, want 0", n)
	}
	updates := emitter.eventsFor(2, EventUnreadCountUpdate)
	if len(updates) != 1 {
		t.Fatalf("receiver got %d unread updates, want 1", len(updates))
	}
	if p := updates[0].data.(*UnreadCountPayload); p.NewCount != 1 || p.SenderID != 1 {
		t.Fatalf("unread payload = %+v, want count 1 from sender 1", p)
	}
}

func TestSubmitBlockedSenderDroppedSilently(t *testing.T) {
	engine, store, users, _, emitter := testEngine()
	users.blocked[[2]int64{2, 1}] = true // receiver 2 blocked sender 1

	msg, err := engine.Submit(context.Background(), &SubmitRequest{
		SenderID:   1,
		ReceiverID: 2,
		Content:    strptr("ignored"),
	})
	if err != nil {
		t.Fatalf("blocked submit must not error, got %v", err)
	}
	if msg != nil {
		t.Fatalf("blocked submit returned a message: %+v", msg)
	}
	if len(store.messages) != 0 {
		t.Fatal("blocked submit persisted a message")
	}
	if len(emitter.events) != 0 {
		t.Fatalf("blocked submit emitted %d events, want 0", len(emitter.events))
	}
}

func TestSubmitValidation(t *testing.T) {
	engine, _, _, _, _ := testEngine()

	cases := []struct {
		name string
		req  *SubmitRequest
	}{
		{"missing receiver", &SubmitRequest{SenderID: 1, Content: strptr("x")}},
		{"self message", &SubmitRequest{SenderID: 1, ReceiverID: 1, Content: strptr("x")}},
		{"empty body", &SubmitRequest{SenderID: 1, ReceiverID: 2}},
		{"empty content no attachment", &SubmitRequest{SenderID: 1, ReceiverID: 2, Content: strptr("")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Submit(context.Background(), tc.req)
			if !errors.Is(err, apperr.ErrValidation) {
				t.Fatalf("err = %v, want validation error", err)
			}
		})
	}
}

func TestSubmitAttachmentOnly(t *testing.T) {
	engine, _, _, _, _ := testEngine()

	msg, err := engine.Submit(context.Background(), &SubmitRequest{
		SenderID:       1,
		ReceiverID:     2,
		AttachmentURL:  strptr("https://cdn.example/pic.jpg"),
		AttachmentKind: AttachmentImage,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if msg.Content != nil {
		t.Fatalf("content = %v, want nil", *msg.Content)
	}
}

func TestMarkSeenIdempotent(t *testing.T) {
	engine, store, users, _, emitter := testEngine()

	for i := 0; i < 3; i++ {
		if _, err := engine.Submit(context.Background(), &SubmitRequest{
			SenderID:   1,
			ReceiverID: 2,
			Content:    strptr("msg"),
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if users.unread[[2]int64{2, 1}] != 3 {
		t.Fatalf("unread = %d, want 3", users.unread[[2]int64{2, 1}])
	}

	if err := engine.MarkSeen(context.Background(), 1, 2); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	for id, m := range store.messages {
		if m.Status != StatusSeen {
			t.Fatalf("message %d status = %q, want %q", id, m.Status, StatusSeen)
		}
	}
	if users.unread[[2]int64{2, 1}] != 0 {
		t.Fatalf("unread after seen = %d, want 0", users.unread[[2]int64{2, 1}])
	}
	if n := len(emitter.eventsFor(1, EventMessagesSeen)); n != 1 {
		t.Fatalf("sender got %d messagesSeen events, want 1", n)
	}

	// A second call is a no-op that re-announces zero.
	if err := engine.MarkSeen(context.Background(), 1, 2); err != nil {
		t.Fatalf("repeat MarkSeen: %v", err)
	}
	updates := emitter.eventsFor(2, EventUnreadCountUpdate)
	last := updates[len(updates)-1].data.(*UnreadCountPayload)
	if last.NewCount != 0 {
		t.Fatalf("final unread announcement = %d, want 0", last.NewCount)
	}
}

func TestStatusNeverRegresses(t *testing.T) {
	store := newFakeStore()
	m := &Message{SenderID: 1, ReceiverID: 2, Content: strptr("x"), Status: StatusSent}
	if err := store.Insert(context.Background(), m); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if _, err := store.MarkSeen(context.Background(), 1, 2); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
	advanced, err := store.AdvanceStatus(context.Background(), m.ID, StatusDelivered)
	if err != nil {
		t.Fatalf("AdvanceStatus: %v", err)
	}
	if advanced {
		t.Fatal("seen message was demoted to delivered")
	}
	if got := store.messages[m.ID].Status; got != StatusSeen {
		t.Fatalf("status = %q, want %q", got, StatusSeen)
	}
}

func TestDeleteMessageAuthorization(t *testing.T) {
	engine, store, _, _, emitter := testEngine()

	msg, err := engine.Submit(context.Background(), &SubmitRequest{
		SenderID:   1,
		ReceiverID: 2,
		Content:    strptr("to delete"),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := engine.DeleteMessage(context.Background(), msg.ID, 3); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("outsider delete err = %v, want unauthorized", err)
	}
	if _, ok := store.messages[msg.ID]; !ok {
		t.Fatal("unauthorized delete removed the message")
	}

	if err := engine.DeleteMessage(context.Background(), msg.ID, 2); err != nil {
		t.Fatalf("participant delete: %v", err)
	}
	if _, ok := store.messages[msg.ID]; ok {
		t.Fatal("message still present after delete")
	}
	if n := len(emitter.eventsFor(1, EventMessageDeleted)); n != 1 {
		t.Fatalf("sender got %d messageDeleted events, want 1", n)
	}

	if err := engine.DeleteMessage(context.Background(), msg.ID, 2); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing delete err = %v, want not found", err)
	}
}

func TestDeleteManyFailsClosed(t *testing.T) {
	engine, store, _, _, _ := testEngine()

	mine, err := engine.Submit(context.Background(), &SubmitRequest{
		SenderID:   1,
		ReceiverID: 2,
		Content:    strptr("mine"),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	other, err := engine.Submit(context.Background(), &SubmitRequest{
		SenderID:   3,
		ReceiverID: 4,
		Content:    strptr("not mine"),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	err = engine.DeleteMany(context.Background(), []int64{mine.ID, other.ID}, 1)
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
	if _, ok := store.messages[mine.ID]; !ok {
		t.Fatal("authorized message was deleted despite batch rejection")
	}

	if err := engine.DeleteMany(context.Background(), []int64{mine.ID}, 1); err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}
	if _, ok := store.messages[mine.ID]; ok {
		t.Fatal("message still present after batch delete")
	}

	if err := engine.DeleteMany(context.Background(), nil, 1); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("empty batch err = %v, want validation error", err)
	}
}

func TestUnblurIdempotent(t *testing.T) {
	engine, store, _, _, _ := testEngine()

	msg, err := engine.Submit(context.Background(), &SubmitRequest{
		SenderID:       1,
		ReceiverID:     2,
		AttachmentURL:  strptr("https://cdn.example/blur.jpg"),
		AttachmentKind: AttachmentImage,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := engine.Unblur(context.Background(), msg.ID, 2); err != nil {
		t.Fatalf("Unblur: %v", err)
	}
	if err := engine.Unblur(context.Background(), msg.ID, 2); err != nil {
		t.Fatalf("repeat Unblur: %v", err)
	}
	if got := store.unblurs[msg.ID]; len(got) != 1 || got[0] != 2 {
		t.Fatalf("unblurs = %v, want [2]", got)
	}

	if err := engine.Unblur(context.Background(), msg.ID, 9); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("outsider unblur err = %v, want unauthorized", err)
	}
}
