package domain

import "time"

type DocumentID string

// Document is the gateway's view of a note held in the external store.
// Only the fields needed for admission and synchronization are carried.
type Document struct {
	ID        DocumentID
	OwnerID   UserID
	Title     string
	Content   string
	Version   int64
	UpdatedAt time.Time
}
