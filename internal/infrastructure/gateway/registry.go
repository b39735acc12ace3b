package gateway

import (
	"context"
	"sync"
	"time"

	"collabgate/internal/core/domain"
	"collabgate/internal/core/ports"
	"collabgate/internal/infrastructure/monitoring"
	"collabgate/pkg/utils"

	"go.uber.org/zap"
)

// ConnState is the per-connection lifecycle state.
type ConnState int

const (
	StateUnauthenticated ConnState = iota
	StateAuthenticated
	StateRoomMember
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateRoomMember:
		return "room_member"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Conn is one authenticated client connection as the registry sees
// it. The websocket server provides the concrete implementation;
// tests provide fakes.
type Conn interface {
	ID() domain.ConnectionID
	User() *domain.User
	Role() domain.UserRole
	// Send enqueues an envelope for delivery. It must not block.
	Send(env Envelope)
	// Kick closes the connection server-side. Clients treat this as
	// an intentional disconnect and do not auto-reconnect.
	Kick(reason string)
}

// Registry owns all in-memory room state: membership, rosters, and
// the per-connection state machine. Admission requires the policy
// switch on and a non-none capability. All mutation happens under one
// lock, so membership changes and their roster rebroadcasts are
// atomic with respect to each other.
type Registry struct {
	gate     ports.PermissionGate
	policy   ports.PolicyService
	recorder ports.SessionRecorder
	docs     ports.DocumentStore
	metrics  *monitoring.Collector
	logger   *zap.SugaredLogger

	mu         sync.Mutex
	conns      map[domain.ConnectionID]Conn
	states     map[domain.ConnectionID]ConnState
	rooms      map[domain.DocumentID]*domain.Room
	membership map[domain.ConnectionID]domain.DocumentID
	sessions   map[domain.ConnectionID]domain.SessionID
}

func NewRegistry(
	gate ports.PermissionGate,
	policy ports.PolicyService,
	recorder ports.SessionRecorder,
	docs ports.DocumentStore,
	metrics *monitoring.Collector,
	logger *zap.SugaredLogger,
) *Registry {
	r := &Registry{
		gate:       gate,
		policy:     policy,
		recorder:   recorder,
		docs:       docs,
		metrics:    metrics,
		logger:     logger,
		conns:      make(map[domain.ConnectionID]Conn),
		states:     make(map[domain.ConnectionID]ConnState),
		rooms:      make(map[domain.DocumentID]*domain.Room),
		membership: make(map[domain.ConnectionID]domain.DocumentID),
		sessions:   make(map[domain.ConnectionID]domain.SessionID),
	}
	policy.Subscribe(r)
	return r
}

// Register adds an authenticated connection.
func (r *Registry) Register(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID()] = conn
	r.states[conn.ID()] = StateAuthenticated
	if r.metrics != nil {
		r.metrics.ConnectionOpened()
	}
}

// Unregister removes a connection entirely, leaving its room first.
func (r *Registry) Unregister(connID domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID)
	delete(r.conns, connID)
	delete(r.states, connID)
	if r.metrics != nil {
		r.metrics.ConnectionClosed()
	}
}

// State returns the connection's current lifecycle state.
func (r *Registry) State(connID domain.ConnectionID) ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[connID]; ok {
		return st
	}
	return StateDisconnected
}

// Join admits a connection into the room for docID. Admission
// requires the collaboration policy enabled AND a capability other
// than none; either failure leaves the connection Authenticated. A
// connection already in a different room is atomically moved: the
// old room's roster is recomputed and rebroadcast before the new
// join proceeds.
func (r *Registry) Join(ctx context.Context, conn Conn, docID domain.DocumentID) error {
	enabled, err := r.policy.IsEnabled(ctx)
	if err != nil {
		return err
	}
	if !enabled {
		if r.metrics != nil {
			r.metrics.JoinRejected("policy_disabled")
		}
		return domain.ErrCollaborationDisabled
	}

	capability, err := r.gate.Capability(ctx, conn.User().ID, docID)
	if err != nil {
		return err
	}
	if !capability.CanJoin() {
		if r.metrics != nil {
			r.metrics.JoinRejected("permission_denied")
		}
		return domain.ErrPermissionDenied
	}

	r.mu.Lock()
	if _, registered := r.conns[conn.ID()]; !registered {
		r.mu.Unlock()
		return domain.ErrConnectionClosed
	}

	// Leave-then-join when switching rooms.
	if current, ok := r.membership[conn.ID()]; ok {
		if current == docID {
			r.mu.Unlock()
			return nil
		}
		r.leaveLocked(conn.ID())
	}

	room, ok := r.rooms[docID]
	if !ok {
		room = domain.NewRoom(docID)
		r.rooms[docID] = room
		if r.metrics != nil {
			r.metrics.RoomOpened()
		}
	}

	member := &domain.Member{
		UserID:       conn.User().ID,
		DisplayName:  conn.User().DisplayName,
		ConnectionID: conn.ID(),
		DocumentID:   docID,
		Capability:   capability,
		JoinedAt:     time.Now(),
	}
	room.Add(member)
	r.membership[conn.ID()] = docID
	r.states[conn.ID()] = StateRoomMember

	sessionID := domain.SessionID(utils.GenerateSessionID())
	r.sessions[conn.ID()] = sessionID

	r.broadcastRosterLocked(room)
	r.mu.Unlock()

	r.logger.Infow("member joined room",
		"document_id", docID,
		"user_id", member.UserID,
		"connection_id", conn.ID(),
		"capability", capability,
	)

	r.recorder.RecordJoin(&domain.CollaborationSession{
		ID:           sessionID,
		DocumentID:   docID,
		UserID:       member.UserID,
		ConnectionID: conn.ID(),
		JoinedAt:     member.JoinedAt,
		LastActivity: member.JoinedAt,
		IsActive:     true,
	})

	r.sendDocumentSync(ctx, conn, docID)
	return nil
}

// Leave removes a connection from its room and returns it to
// Authenticated.
func (r *Registry) Leave(connID domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID)
}

// leaveLocked removes the connection from its room, rebroadcasts the
// room's roster, and records the session close. Caller holds r.mu.
func (r *Registry) leaveLocked(connID domain.ConnectionID) {
	docID, ok := r.membership[connID]
	if !ok {
		return
	}
	delete(r.membership, connID)
	if _, stillTracked := r.states[connID]; stillTracked {
		r.states[connID] = StateAuthenticated
	}

	if sessionID, ok := r.sessions[connID]; ok {
		delete(r.sessions, connID)
		r.recorder.RecordLeave(sessionID)
	}

	room, ok := r.rooms[docID]
	if !ok {
		return
	}
	member := room.Remove(connID)
	if member != nil {
		r.logger.Infow("member left room",
			"document_id", docID,
			"user_id", member.UserID,
			"connection_id", connID,
		)
	}

	if room.Empty() {
		delete(r.rooms, docID)
		if r.metrics != nil {
			r.metrics.RoomClosed()
		}
		return
	}
	r.broadcastRosterLocked(room)
}

// Broadcast relays an operation from conn to every other member of
// its room. The operation's user id and timestamp are overwritten
// with server-observed values before relay; operation semantics are
// not validated. Delivery order equals arrival order per room.
func (r *Registry) Broadcast(conn Conn, op domain.Operation) error {
	r.mu.Lock()
	docID, ok := r.membership[conn.ID()]
	if !ok {
		r.mu.Unlock()
		return domain.ErrNotRoomMember
	}
	room := r.rooms[docID]

	op.UserID = conn.User().ID
	op.Timestamp = time.Now()

	env, err := NewEnvelope(EventDocumentOperation, op)
	if err != nil {
		r.mu.Unlock()
		return err
	}

	fanout := 0
	for _, m := range room.Members() {
		if m.ConnectionID == conn.ID() {
			continue
		}
		if peer, ok := r.conns[m.ConnectionID]; ok {
			peer.Send(env)
			fanout++
		}
	}
	sessionID := r.sessions[conn.ID()]
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.OperationRelayed(fanout)
	}
	if sessionID != "" {
		r.recorder.RecordOperation(sessionID)
	}
	return nil
}

// RelayToPeers sends an already-built envelope to every other member
// of the sender's room. Used for cursor and typing rebroadcast.
func (r *Registry) RelayToPeers(conn Conn, env Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	docID, ok := r.membership[conn.ID()]
	if !ok {
		return domain.ErrNotRoomMember
	}
	room := r.rooms[docID]
	for _, m := range room.Members() {
		if m.ConnectionID == conn.ID() {
			continue
		}
		if peer, ok := r.conns[m.ConnectionID]; ok {
			peer.Send(env)
		}
	}
	return nil
}

// Save persists a document snapshot via the external store and
// notifies the whole room. Only an explicit save persists content;
// individual operations never do.
func (r *Registry) Save(ctx context.Context, conn Conn, docID domain.DocumentID, content string) error {
	r.mu.Lock()
	memberOf, ok := r.membership[conn.ID()]
	r.mu.Unlock()
	if !ok || memberOf != docID {
		return domain.ErrNotRoomMember
	}

	if err := r.docs.SaveSnapshot(ctx, docID, content, conn.User().ID); err != nil {
		return err
	}

	env, err := NewEnvelope(EventDocumentSaved, DocumentSavedPayload{
		DocumentID: docID,
		SavedAt:    utils.FormatTimestamp(time.Now()),
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[docID]; ok {
		for _, m := range room.Members() {
			if peer, ok := r.conns[m.ConnectionID]; ok {
				peer.Send(env)
			}
		}
	}
	return nil
}

// Roster returns the current de-duplicated roster for a document, or
// nil when no room is live.
func (r *Registry) Roster(docID domain.DocumentID) []domain.RosterEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[docID]
	if !ok {
		return nil
	}
	return room.Roster()
}

// PolicyChanged implements ports.PolicyListener. Disabling evicts
// every member of every room with a collaboration:disabled notice;
// enabling broadcasts collaboration:enabled to every connection.
func (r *Registry) PolicyChanged(policy *domain.CollaborationPolicy) {
	if policy.Enabled(time.Now()) {
		env, err := NewEnvelope(EventCollabEnabled, CollabEnabledPayload{
			Message: "collaboration has been re-enabled",
		})
		if err != nil {
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, conn := range r.conns {
			conn.Send(env)
		}
		return
	}

	env, err := NewEnvelope(EventCollabDisabled, CollabDisabledPayload{
		Reason: policy.DisabledReason,
		Until:  policy.DisabledUntil,
	})
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for connID := range r.membership {
		if conn, ok := r.conns[connID]; ok {
			conn.Send(env)
		}
	}
	// Rooms are cleared wholesale: no per-room roster rebroadcast is
	// useful when every member is leaving.
	for connID := range r.membership {
		delete(r.membership, connID)
		if _, stillTracked := r.states[connID]; stillTracked {
			r.states[connID] = StateAuthenticated
		}
		if sessionID, ok := r.sessions[connID]; ok {
			delete(r.sessions, connID)
			r.recorder.RecordLeave(sessionID)
		}
		evicted++
	}
	for docID := range r.rooms {
		delete(r.rooms, docID)
		if r.metrics != nil {
			r.metrics.RoomClosed()
		}
	}

	r.logger.Infow("collaboration disabled, rooms evicted",
		"reason", policy.DisabledReason,
		"until", policy.DisabledUntil,
		"members_evicted", evicted,
	)
}

// DisconnectSession kicks the connection owning the given session.
// Used by administrators; the client will not auto-reconnect.
func (r *Registry) DisconnectSession(sessionID domain.SessionID) bool {
	r.mu.Lock()
	var target Conn
	for connID, sid := range r.sessions {
		if sid == sessionID {
			target = r.conns[connID]
			break
		}
	}
	r.mu.Unlock()

	if target == nil {
		return false
	}
	target.Kick("session disconnected by administrator")
	return true
}

// broadcastRosterLocked sends the full de-duplicated roster to every
// member of the room. It is a replace, not a diff, so a lost
// notification is corrected by the next one. Caller holds r.mu.
func (r *Registry) broadcastRosterLocked(room *domain.Room) {
	env, err := NewEnvelope(EventRoomUsers, room.Roster())
	if err != nil {
		r.logger.Errorw("failed to encode roster", "error", err)
		return
	}
	for _, m := range room.Members() {
		if conn, ok := r.conns[m.ConnectionID]; ok {
			conn.Send(env)
		}
	}
}

// sendDocumentSync delivers the document's current content to a
// freshly joined member. A store failure is logged, not fatal: the
// member stays joined and can still receive operations.
func (r *Registry) sendDocumentSync(ctx context.Context, conn Conn, docID domain.DocumentID) {
	content, version, err := r.docs.GetContent(ctx, docID)
	if err != nil {
		r.logger.Warnw("document sync read failed", "document_id", docID, "error", err)
		return
	}
	env, err := NewEnvelope(EventDocumentSync, DocumentSyncPayload{
		DocumentID: docID,
		Content:    content,
		Version:    version,
	})
	if err != nil {
		return
	}
	conn.Send(env)
}
