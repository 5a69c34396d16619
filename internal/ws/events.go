package ws

import "github.com/goccy/go-json"

// Client-to-server event names. Server-to-client names live with the
// features that emit them (chat, presence, broadcast).
const (
	EventRegisterUser    = "registerUser"
	EventAuth            = "auth" // alias kept for older clients
	EventSendMessage     = "sendMessage"
	EventTyping          = "typing"
	EventStopTyping      = "stopTyping"
	EventMessagesSeen    = "messagesSeen"
	EventJoinDirectRoom  = "joinDirectRoom"
	EventLeaveDirectRoom = "leaveDirectRoom"
	EventJoinGroup       = "joinGroup"

	EventError = "error"
)

// Envelope is the wire frame for every socket event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func encodeEnvelope(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Envelope{Event: event, Data: raw})
}

type registerPayload struct {
	UserID int64 `json:"userId"`
}

type typingPayload struct {
	SenderID   int64 `json:"senderId"`
	ReceiverID int64 `json:"receiverId"`
}

type seenPayload struct {
	ChatPartnerID int64 `json:"chatPartnerId"`
	ReceiverID    int64 `json:"receiverId"`
}

type roomPayload struct {
	RoomKey string `json:"roomKey"`
}

type errorPayload struct {
	Message string `json:"message"`
}
