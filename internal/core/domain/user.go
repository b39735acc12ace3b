package domain

import "time"

type UserID string

type User struct {
	ID          UserID
	Username    string
	DisplayName string
	Email       string
	CreatedAt   time.Time
}

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// Capability is the resolved per-document access level for a user.
// It is derived on demand, never stored.
type Capability string

const (
	CapabilityNone Capability = "none"
	CapabilityView Capability = "view"
	CapabilityEdit Capability = "edit"
)

// CanJoin reports whether the capability admits the user into a room.
// Viewing is sufficient to join; the client marks such sessions read-only.
func (c Capability) CanJoin() bool {
	return c == CapabilityView || c == CapabilityEdit
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
)

// Collaborator is an explicit per-document permission grant.
type Collaborator struct {
	DocumentID DocumentID
	UserID     UserID
	Level      Capability
	GrantedAt  time.Time
}

// Invitation grants access once accepted; pending or declined
// invitations confer nothing.
type Invitation struct {
	DocumentID DocumentID
	UserID     UserID
	Level      Capability
	Status     InvitationStatus
	InvitedAt  time.Time
}
