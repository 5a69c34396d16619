package broadcast

import "time"

// Dispatcher lifecycle events, plus group bookkeeping.
const (
	EventBroadcastScheduled = "broadcastScheduled"
	EventBroadcastSent      = "broadcastSent"
	EventBroadcastCancelled = "broadcastCancelled"
	EventGroupCreated       = "broadcastGroupCreated"
	EventGroupDeleted       = "broadcastGroupDeleted"
)

// ScheduledBroadcast is a deferred fan-out message awaiting a dispatch
// tick. Sent flips false->true exactly once, only by the Dispatcher (or an
// immediate dispatch at creation time, which goes through the same claim).
type ScheduledBroadcast struct {
	ID             int64     `json:"id"`
	SenderID       int64     `json:"sender_id"`
	Recipients     []int64   `json:"recipients"`
	Content        string    `json:"content"`
	AttachmentURLs []string  `json:"attachment_urls,omitempty"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	Sent           bool      `json:"sent"`
	CreatedAt      time.Time `json:"created_at"`
}

type BroadcastGroup struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	OwnerID   int64     `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// dedupRecipients collapses duplicates while keeping first-seen order.
func dedupRecipients(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
