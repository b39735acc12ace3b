package domain

import "time"

type ConnectionID string

// Member is one connection participating in a room. A user may hold
// several concurrent connections to the same room.
type Member struct {
	UserID       UserID
	DisplayName  string
	ConnectionID ConnectionID
	DocumentID   DocumentID
	Capability   Capability
	JoinedAt     time.Time
}

// RosterEntry is one distinct user in a room's roster, de-duplicated
// by user id with the first-seen connection as representative.
type RosterEntry struct {
	UserID       UserID       `json:"userId"`
	DisplayName  string       `json:"displayName"`
	ConnectionID ConnectionID `json:"connectionId"`
	JoinedAt     time.Time    `json:"joinedAt"`
}

// Room is the set of connections collaboratively editing one document.
// It owns its membership index and a user-keyed roster index, mutated
// together on each join and leave. At most one live Room exists per
// document id within a process.
type Room struct {
	DocumentID DocumentID
	CreatedAt  time.Time

	members map[ConnectionID]*Member
	roster  map[UserID]*RosterEntry
}

func NewRoom(documentID DocumentID) *Room {
	return &Room{
		DocumentID: documentID,
		CreatedAt:  time.Now(),
		members:    make(map[ConnectionID]*Member),
		roster:     make(map[UserID]*RosterEntry),
	}
}

// Add registers a member connection. The roster retains the first
// connection seen per user id as that user's representative.
func (r *Room) Add(m *Member) {
	r.members[m.ConnectionID] = m
	if _, seen := r.roster[m.UserID]; !seen {
		r.roster[m.UserID] = &RosterEntry{
			UserID:       m.UserID,
			DisplayName:  m.DisplayName,
			ConnectionID: m.ConnectionID,
			JoinedAt:     m.JoinedAt,
		}
	}
}

// Remove drops a member connection and returns the removed member.
// When the representative connection for a user leaves while another
// of that user's connections remains, the roster entry is reassigned
// to the earliest surviving connection.
func (r *Room) Remove(connID ConnectionID) *Member {
	m, ok := r.members[connID]
	if !ok {
		return nil
	}
	delete(r.members, connID)

	entry, ok := r.roster[m.UserID]
	if !ok || entry.ConnectionID != connID {
		return m
	}
	delete(r.roster, m.UserID)
	var oldest *Member
	for _, other := range r.members {
		if other.UserID != m.UserID {
			continue
		}
		if oldest == nil || other.JoinedAt.Before(oldest.JoinedAt) {
			oldest = other
		}
	}
	if oldest != nil {
		r.roster[m.UserID] = &RosterEntry{
			UserID:       oldest.UserID,
			DisplayName:  oldest.DisplayName,
			ConnectionID: oldest.ConnectionID,
			JoinedAt:     oldest.JoinedAt,
		}
	}
	return m
}

// Member returns the member for a connection id, or nil.
func (r *Room) Member(connID ConnectionID) *Member {
	return r.members[connID]
}

// Members returns every member connection in the room.
func (r *Room) Members() []*Member {
	out := make([]*Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	return out
}

// Roster returns the de-duplicated user list. The full roster is
// rebroadcast as a replace on every membership change, so a lost
// notification is corrected by the next one.
func (r *Room) Roster() []RosterEntry {
	out := make([]RosterEntry, 0, len(r.roster))
	for _, e := range r.roster {
		out = append(out, *e)
	}
	return out
}

func (r *Room) Empty() bool {
	return len(r.members) == 0
}

func (r *Room) Size() int {
	return len(r.members)
}
