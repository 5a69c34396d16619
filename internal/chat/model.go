package chat

import "time"

// Message status lifecycle. Transitions only ever move forward:
// sent -> delivered -> seen.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusSeen      Status = "seen"
)

// Attachment kinds. Empty means no attachment classification.
const (
	AttachmentImage    = "image"
	AttachmentVideo    = "video"
	AttachmentDocument = "document"
)

type Message struct {
	ID             int64     `json:"id"`
	SenderID       int64     `json:"sender_id"`
	ReceiverID     int64     `json:"receiver_id"`
	Content        *string   `json:"content"`
	AttachmentURL  *string   `json:"attachment_url"`
	AttachmentKind string    `json:"attachment_kind,omitempty"`
	Status         Status    `json:"status"`
	UnblurredBy    []int64   `json:"unblurred_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// SubmitRequest is what the sendMessage socket event carries. The
// correlation token is opaque to the server; it lets the client match the
// confirmed record to its optimistic local echo.
type SubmitRequest struct {
	SenderID         int64   `json:"senderId"`
	ReceiverID       int64   `json:"receiverId"`
	Content          *string `json:"content"`
	AttachmentURL    *string `json:"attachmentUrl"`
	AttachmentKind   string  `json:"attachmentKind"`
	CorrelationToken string  `json:"correlationToken"`
}

// ConversationPreview is one row of the chat-list aggregate: the latest
// message exchanged with a peer.
type ConversationPreview struct {
	PeerID      int64    `json:"peer_id"`
	LastMessage *Message `json:"last_message"`
}
