package domain

import "time"

type OperationKind string

const (
	OperationInsert OperationKind = "insert"
	OperationDelete OperationKind = "delete"
)

// Operation is a single atomic text edit. Operations are ephemeral:
// they are relayed to room peers and never persisted individually.
// UserID and Timestamp are overwritten with server-observed values
// before relay: client-supplied identity and time are never trusted.
type Operation struct {
	Kind      OperationKind `json:"kind"`
	Position  int           `json:"position"`
	Content   string        `json:"content,omitempty"`
	Length    int           `json:"length,omitempty"`
	UserID    UserID        `json:"userId,omitempty"`
	Timestamp time.Time     `json:"timestamp,omitempty"`
}

// Span returns the number of characters the operation covers:
// the inserted content length for inserts, Length for deletes.
func (op Operation) Span() int {
	if op.Kind == OperationInsert {
		return len([]rune(op.Content))
	}
	return op.Length
}

// Cursor describes a member's caret or selection inside a document.
type Cursor struct {
	Position       int `json:"position"`
	SelectionStart int `json:"selectionStart,omitempty"`
	SelectionEnd   int `json:"selectionEnd,omitempty"`
}
