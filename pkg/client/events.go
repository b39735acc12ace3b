package client

import (
	"time"

	"collabgate/internal/core/domain"
)

// Status is the client-visible connection state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a tagged variant delivered through the client's single
// event channel. Consumers switch on the concrete type, which keeps
// handling exhaustive and unit-testable.
type Event interface {
	isEvent()
}

// StatusChangedEvent reports a connection state transition. Err is
// set for terminal failures (handshake timeout, reconnect attempts
// exhausted).
type StatusChangedEvent struct {
	Status Status
	Err    error
}

// RosterReplacedEvent carries the full de-duplicated roster. The
// server sends a replace, never a diff.
type RosterReplacedEvent struct {
	Roster []domain.RosterEntry
}

// UserJoinedEvent is derived client-side by comparing consecutive
// rosters.
type UserJoinedEvent struct {
	User domain.RosterEntry
}

type UserLeftEvent struct {
	User domain.RosterEntry
}

// RemoteOperationEvent is an edit made by another room member. Apply
// it with textdiff.Apply and adjust the local cursor with
// textdiff.AdjustCursor.
type RemoteOperationEvent struct {
	Operation domain.Operation
}

// DocumentSyncEvent delivers the full document content after a
// successful join.
type DocumentSyncEvent struct {
	DocumentID domain.DocumentID
	Content    string
	Version    int64
}

type DocumentSavedEvent struct {
	DocumentID domain.DocumentID
	SavedAt    time.Time
}

// RoomErrorEvent reports a join-time or message failure. Permission
// and policy failures are not retried automatically: retrying cannot
// resolve them.
type RoomErrorEvent struct {
	Message string
}

// PolicyChangedEvent reports the administrator toggling
// collaboration. When disabled the server has already removed this
// client from its room.
type PolicyChangedEvent struct {
	Enabled bool
	Reason  string
	Until   *time.Time
}

type UserCursorEvent struct {
	UserID domain.UserID
	Cursor domain.Cursor
}

type UserTypingEvent struct {
	UserID   domain.UserID
	IsTyping bool
}

func (StatusChangedEvent) isEvent()   {}
func (RosterReplacedEvent) isEvent()  {}
func (UserJoinedEvent) isEvent()      {}
func (UserLeftEvent) isEvent()        {}
func (RemoteOperationEvent) isEvent() {}
func (DocumentSyncEvent) isEvent()    {}
func (DocumentSavedEvent) isEvent()   {}
func (RoomErrorEvent) isEvent()       {}
func (PolicyChangedEvent) isEvent()   {}
func (UserCursorEvent) isEvent()      {}
func (UserTypingEvent) isEvent()      {}
