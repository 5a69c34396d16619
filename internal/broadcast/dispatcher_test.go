package broadcast

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ShashwatSecure/WIBE-CHAT/internal/chat"
)

type fakeBroadcastStore struct {
	nextID     int64
	broadcasts map[int64]*ScheduledBroadcast
}

func newFakeBroadcastStore() *fakeBroadcastStore {
	return &fakeBroadcastStore{nextID: 1, broadcasts: make(map[int64]*ScheduledBroadcast)}
}

func (s *fakeBroadcastStore) CreateScheduled(_ context.Context, b *ScheduledBroadcast) error {
	b.ID = s.nextID
	s.nextID++
	b.Recipients = dedupRecipients(b.Recipients)
	cp := *b
	s.broadcasts[b.ID] = &cp
	return nil
}

func (s *fakeBroadcastStore) GetByID(_ context.Context, id int64) (*ScheduledBroadcast, error) {
	b, ok := s.broadcasts[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *b
	return &cp, nil
}

func (s *fakeBroadcastStore) ListPendingByUser(_ context.Context, senderID int64) ([]*ScheduledBroadcast, error) {
	var out []*ScheduledBroadcast
	for _, b := range s.broadcasts {
		if b.SenderID == senderID && !b.Sent {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeBroadcastStore) DueIDs(_ context.Context, now time.Time) ([]int64, error) {
	var out []int64
	for id, b := range s.broadcasts {
		if !b.Sent && !b.ScheduledAt.After(now) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *fakeBroadcastStore) ClaimIfPending(_ context.Context, id int64) (bool, error) {
	b, ok := s.broadcasts[id]
	if !ok || b.Sent {
		return false, nil
	}
	b.Sent = true
	return true, nil
}

func (s *fakeBroadcastStore) ReleaseClaim(_ context.Context, id int64) error {
	if b, ok := s.broadcasts[id]; ok {
		b.Sent = false
	}
	return nil
}

func (s *fakeBroadcastStore) DeleteIfPending(_ context.Context, id, ownerID int64) (bool, error) {
	b, ok := s.broadcasts[id]
	if !ok || b.Sent || b.SenderID != ownerID {
		return false, nil
	}
	delete(s.broadcasts, id)
	return true, nil
}

func (s *fakeBroadcastStore) CreateGroup(_ context.Context, g *BroadcastGroup) error {
	g.ID = s.nextID
	s.nextID++
	return nil
}

func (s *fakeBroadcastStore) ListGroupsByOwner(_ context.Context, _ int64) ([]*BroadcastGroup, error) {
	return nil, nil
}

func (s *fakeBroadcastStore) DeleteGroup(_ context.Context, _, _ int64) (bool, error) {
	return false, nil
}

type fakeMessageStore struct {
	inserted  []*chat.Message
	failBatch bool
}

func (s *fakeMessageStore) Insert(_ context.Context, m *chat.Message) error {
	s.inserted = append(s.inserted, m)
	return nil
}

func (s *fakeMessageStore) InsertBatch(_ context.Context, msgs []*chat.Message) error {
	if s.failBatch {
		return errors.New("insert batch failed")
	}
	s.inserted = append(s.inserted, msgs...)
	return nil
}

func (s *fakeMessageStore) GetByID(_ context.Context, _ int64) (*chat.Message, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeMessageStore) ListConversation(_ context.Context, _, _ int64) ([]*chat.Message, error) {
	return nil, nil
}

func (s *fakeMessageStore) AdvanceStatus(_ context.Context, _ int64, _ chat.Status) (bool, error) {
	return false, nil
}

func (s *fakeMessageStore) MarkSeen(_ context.Context, _, _ int64) (int64, error) {
	return 0, nil
}

func (s *fakeMessageStore) Delete(_ context.Context, _ int64) error { return nil }

func (s *fakeMessageStore) DeleteMany(_ context.Context, _ []int64) error { return nil }

func (s *fakeMessageStore) AddUnblur(_ context.Context, _, _ int64) error { return nil }

func (s *fakeMessageStore) LastMessagePerPeer(_ context.Context, _ int64) ([]chat.ConversationPreview, error) {
	return nil, nil
}

type fakeUnread struct {
	counts map[[2]int64]int
}

func (u *fakeUnread) IncrementUnread(_ context.Context, owner, peer int64) (int, error) {
	if u.counts == nil {
		u.counts = make(map[[2]int64]int)
	}
	u.counts[[2]int64{owner, peer}]++
	return u.counts[[2]int64{owner, peer}], nil
}

type emitted struct {
	userID int64
	event  string
}

type fakeEmitter struct {
	events []emitted
}

func (e *fakeEmitter) EmitToUser(_ context.Context, userID int64, event string, _ interface{}) {
	e.events = append(e.events, emitted{userID: userID, event: event})
}

func (e *fakeEmitter) count(userID int64, event string) int {
	n := 0
	for _, ev := range e.events {
		if ev.userID == userID && ev.event == event {
			n++
		}
	}
	return n
}

func testDispatcher() (*Dispatcher, *fakeBroadcastStore, *fakeMessageStore, *fakeEmitter) {
	store := newFakeBroadcastStore()
	messages := &fakeMessageStore{}
	emitter := &fakeEmitter{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := NewDispatcher(store, messages, &fakeUnread{}, emitter, time.Minute, log)
	return d, store, messages, emitter
}

func dueBroadcast(store *fakeBroadcastStore, recipients []int64) *ScheduledBroadcast {
	b := &ScheduledBroadcast{
		SenderID:    1,
		Recipients:  recipients,
		Content:     "scheduled hello",
		ScheduledAt: time.Now().Add(-time.Minute),
	}
	store.CreateScheduled(context.Background(), b)
	return b
}

func TestDispatchExactlyOnce(t *testing.T) {
	d, store, messages, emitter := testDispatcher()
	b := dueBroadcast(store, []int64{2, 3, 4})

	now := time.Now()
	d.Tick(context.Background(), now)
	d.Tick(context.Background(), now.Add(time.Minute))

	if got := len(messages.inserted); got != 3 {
		t.Fatalf("materialized %d messages over two ticks, want 3", got)
	}
	for _, m := range messages.inserted {
		if m.SenderID != b.SenderID {
			t.Fatalf("message sender = %d, want %d", m.SenderID, b.SenderID)
		}
		if m.Status != chat.StatusSent {
			t.Fatalf("materialized status = %q, want %q", m.Status, chat.StatusSent)
		}
		if m.Content == nil || *m.Content != b.Content {
			t.Fatal("materialized message lost the broadcast content")
		}
	}
	if n := emitter.count(b.SenderID, EventBroadcastSent); n != 1 {
		t.Fatalf("sender got %d broadcastSent events, want 1", n)
	}
	for _, r := range []int64{2, 3, 4} {
		if n := emitter.count(r, chat.EventNewMessage); n != 1 {
			t.Fatalf("recipient %d got %d newMessage events, want 1", r, n)
		}
		if n := emitter.count(r, chat.EventUnreadCountUpdate); n != 1 {
			t.Fatalf("recipient %d got %d unread updates, want 1", r, n)
		}
	}
}

func TestDispatchDuplicateRecipientsCollapsed(t *testing.T) {
	d, store, messages, _ := testDispatcher()
	dueBroadcast(store, []int64{2, 2, 3, 2})

	d.Tick(context.Background(), time.Now())

	if got := len(messages.inserted); got != 2 {
		t.Fatalf("materialized %d messages, want 2 (one per distinct recipient)", got)
	}
}

func TestDispatchSkipsFutureBroadcasts(t *testing.T) {
	d, store, messages, _ := testDispatcher()
	b := &ScheduledBroadcast{
		SenderID:    1,
		Recipients:  []int64{2},
		Content:     "later",
		ScheduledAt: time.Now().Add(time.Hour),
	}
	store.CreateScheduled(context.Background(), b)

	d.Tick(context.Background(), time.Now())

	if len(messages.inserted) != 0 {
		t.Fatal("future broadcast was dispatched early")
	}
	if store.broadcasts[b.ID].Sent {
		t.Fatal("future broadcast was claimed")
	}
}

func TestCancelBeatsDispatch(t *testing.T) {
	d, store, messages, emitter := testDispatcher()
	b := dueBroadcast(store, []int64{2})

	ok, err := store.DeleteIfPending(context.Background(), b.ID, b.SenderID)
	if err != nil || !ok {
		t.Fatalf("cancel failed: ok=%v err=%v", ok, err)
	}

	if err := d.DispatchOne(context.Background(), b.ID); err != nil {
		t.Fatalf("dispatch after cancel must be a silent skip, got %v", err)
	}
	if len(messages.inserted) != 0 {
		t.Fatal("cancelled broadcast still produced messages")
	}
	if n := emitter.count(b.SenderID, EventBroadcastSent); n != 0 {
		t.Fatalf("cancelled broadcast emitted %d broadcastSent events, want 0", n)
	}
}

func TestDispatchBeatsCancel(t *testing.T) {
	d, store, _, _ := testDispatcher()
	b := dueBroadcast(store, []int64{2})

	d.Tick(context.Background(), time.Now())

	ok, err := store.DeleteIfPending(context.Background(), b.ID, b.SenderID)
	if err != nil {
		t.Fatalf("DeleteIfPending: %v", err)
	}
	if ok {
		t.Fatal("cancel succeeded on an already dispatched broadcast")
	}
}

func TestInsertFailureReleasesClaim(t *testing.T) {
	d, store, messages, emitter := testDispatcher()
	b := dueBroadcast(store, []int64{2})
	messages.failBatch = true

	if err := d.DispatchOne(context.Background(), b.ID); err == nil {
		t.Fatal("expected dispatch error when the batch insert fails")
	}
	if store.broadcasts[b.ID].Sent {
		t.Fatal("claim was not released after insert failure")
	}
	if n := emitter.count(2, chat.EventNewMessage); n != 0 {
		t.Fatalf("failed dispatch emitted %d newMessage events, want 0", n)
	}

	// The next tick retries and succeeds.
	messages.failBatch = false
	d.Tick(context.Background(), time.Now())
	if got := len(messages.inserted); got != 1 {
		t.Fatalf("retry materialized %d messages, want 1", got)
	}
}

func TestDispatchCarriesFirstAttachment(t *testing.T) {
	d, store, messages, _ := testDispatcher()
	b := &ScheduledBroadcast{
		SenderID:       1,
		Recipients:     []int64{2},
		Content:        "with files",
		AttachmentURLs: []string{"https://cdn.example/a.pdf", "https://cdn.example/b.pdf"},
		ScheduledAt:    time.Now().Add(-time.Second),
	}
	store.CreateScheduled(context.Background(), b)

	d.Tick(context.Background(), time.Now())

	if len(messages.inserted) != 1 {
		t.Fatalf("materialized %d messages, want 1", len(messages.inserted))
	}
	m := messages.inserted[0]
	if m.AttachmentURL == nil || *m.AttachmentURL != b.AttachmentURLs[0] {
		t.Fatal("materialized message lost the first attachment url")
	}
}
