package domain

import "time"

type SessionID string

// CollaborationSession is the persisted audit record of one
// connection's participation in a room. It is written off the hot
// path and is never authoritative for live document state.
type CollaborationSession struct {
	ID              SessionID
	DocumentID      DocumentID
	UserID          UserID
	ConnectionID    ConnectionID
	JoinedAt        time.Time
	LastActivity    time.Time
	IsActive        bool
	OperationsCount int64
	LeftAt          *time.Time
}
