package gateway

import (
	"encoding/json"
	"time"

	"collabgate/internal/core/domain"
)

// Wire event names. These are interop-stable: clients in other
// languages depend on them.
const (
	EventRoomJoin          = "room:join"
	EventRoomLeave         = "room:leave"
	EventRoomUsers         = "room:users"
	EventRoomError         = "room:error"
	EventDocumentOperation = "document:operation"
	EventDocumentCursor    = "document:cursor"
	EventDocumentSync      = "document:sync"
	EventDocumentSave      = "document:save"
	EventDocumentSaved     = "document:saved"
	EventUserCursor        = "user:cursor"
	EventUserTyping        = "user:typing"
	EventCollabDisabled    = "collaboration:disabled"
	EventCollabEnabled     = "collaboration:enabled"
	EventAdminDisconnect   = "admin:disconnect-session"
	EventAdminCollabStatus = "admin:broadcast-collaboration-status"
)

// Envelope is the wire frame: an event name plus a JSON payload.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewEnvelope(event string, payload interface{}) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Payload: raw}, nil
}

type RoomJoinPayload struct {
	DocumentID domain.DocumentID `json:"documentId"`
}

type RoomLeavePayload struct {
	DocumentID domain.DocumentID `json:"documentId"`
}

type RoomErrorPayload struct {
	Message string `json:"message"`
}

type DocumentSyncPayload struct {
	DocumentID domain.DocumentID `json:"documentId"`
	Content    string            `json:"content"`
	Version    int64             `json:"version"`
}

type DocumentSavePayload struct {
	DocumentID domain.DocumentID `json:"documentId"`
	Content    string            `json:"content"`
}

type DocumentSavedPayload struct {
	DocumentID domain.DocumentID `json:"documentId"`
	SavedAt    string            `json:"savedAt"` // ISO 8601
}

type CursorPayload struct {
	DocumentID domain.DocumentID `json:"documentId"`
	Cursor     domain.Cursor     `json:"cursor"`
}

type UserCursorPayload struct {
	UserID domain.UserID `json:"userId"`
	Cursor domain.Cursor `json:"cursor"`
}

type TypingPayload struct {
	DocumentID domain.DocumentID `json:"documentId"`
	IsTyping   bool              `json:"isTyping"`
}

type UserTypingPayload struct {
	UserID   domain.UserID `json:"userId"`
	IsTyping bool          `json:"isTyping"`
}

type CollabDisabledPayload struct {
	Reason string     `json:"reason"`
	Until  *time.Time `json:"until,omitempty"`
}

type CollabEnabledPayload struct {
	Message string `json:"message"`
}

type AdminDisconnectPayload struct {
	SessionID domain.SessionID `json:"sessionId"`
}

type AdminCollabStatusPayload struct {
	Enabled bool       `json:"enabled"`
	Reason  string     `json:"reason,omitempty"`
	Until   *time.Time `json:"until,omitempty"`
}
