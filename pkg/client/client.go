// Package client is the Go connection manager for the collaboration
// gateway: a state machine wrapping the websocket transport with
// reconnection and typed event dispatch.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"collabgate/internal/core/domain"
	"collabgate/internal/infrastructure/gateway"
	"collabgate/pkg/utils"

	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout  = 10 * time.Second
	defaultReconnectBase     = 1 * time.Second
	defaultReconnectAttempts = 5
	defaultEventBuffer       = 64
)

var (
	ErrNotConnected   = errors.New("client is not connected")
	ErrAlreadyRunning = errors.New("client is already connected or connecting")
)

// Options tunes the connection manager. Zero values fall back to
// defaults.
type Options struct {
	// HandshakeTimeout bounds the initial dial. Exceeding it is a
	// terminal connect failure, distinct from the reconnect-backoff
	// path that applies to post-connection drops.
	HandshakeTimeout time.Duration
	// ReconnectBase is the first reconnect delay; it doubles each
	// attempt.
	ReconnectBase time.Duration
	// ReconnectAttempts caps automatic reconnection tries.
	ReconnectAttempts int
	EventBuffer       int
}

// Client manages one connection to the gateway. Reconnection with
// exponential backoff applies to transport-level drops only: a close
// frame from the server is an intentional disconnect (for example an
// administrator kicking the session) and is not retried. After a
// reconnect the previous room is NOT rejoined automatically: the
// caller must call JoinRoom again so permission and policy are
// re-checked rather than trusting stale membership.
type Client struct {
	url   string
	token string
	opts  Options

	events chan Event

	mu       sync.Mutex
	ws       *websocket.Conn
	status   Status
	room     domain.DocumentID
	roster   map[domain.UserID]domain.RosterEntry
	manual   bool // caller asked to disconnect; suppress reconnect
	writeMu  sync.Mutex
	connGen  int // incremented per (re)connect; stale read loops exit
}

// New creates a client for the given websocket URL ("ws://host/ws")
// and bearer credential.
func New(url, token string, opts Options) *Client {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = defaultReconnectBase
	}
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = defaultReconnectAttempts
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	return &Client{
		url:    url,
		token:  token,
		opts:   opts,
		events: make(chan Event, opts.EventBuffer),
		status: StatusDisconnected,
		roster: make(map[domain.UserID]domain.RosterEntry),
	}
}

// Events returns the channel all client events are delivered on.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connect dials the gateway. It blocks until the handshake completes
// or its timeout elapses.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.status == StatusConnected || c.status == StatusConnecting {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.manual = false
	c.setStatusLocked(StatusConnecting, nil)
	c.mu.Unlock()

	ws, err := c.dial()
	if err != nil {
		c.mu.Lock()
		c.setStatusLocked(StatusError, err)
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.ws = ws
	c.connGen++
	gen := c.connGen
	c.setStatusLocked(StatusConnected, nil)
	c.mu.Unlock()

	go c.readLoop(ws, gen)
	return nil
}

// Disconnect closes the connection. No reconnect is attempted.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.manual = true
	ws := c.ws
	c.ws = nil
	c.room = ""
	c.roster = make(map[domain.UserID]domain.RosterEntry)
	if c.status != StatusDisconnected {
		c.setStatusLocked(StatusDisconnected, nil)
	}
	c.mu.Unlock()

	if ws != nil {
		c.writeMu.Lock()
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		ws.Close()
	}
}

// JoinRoom asks the server to admit this client into the room for
// documentID. Rejections arrive as a RoomErrorEvent; do not retry
// them automatically.
func (c *Client) JoinRoom(documentID domain.DocumentID) error {
	if err := c.sendEnvelope(gateway.EventRoomJoin, gateway.RoomJoinPayload{DocumentID: documentID}); err != nil {
		return err
	}
	c.mu.Lock()
	c.room = documentID
	c.mu.Unlock()
	return nil
}

// LeaveRoom leaves the current room.
func (c *Client) LeaveRoom() error {
	c.mu.Lock()
	room := c.room
	c.room = ""
	c.roster = make(map[domain.UserID]domain.RosterEntry)
	c.mu.Unlock()
	if room == "" {
		return nil
	}
	return c.sendEnvelope(gateway.EventRoomLeave, gateway.RoomLeavePayload{DocumentID: room})
}

// SendOperation sends a local edit to the room. Derive it with
// textdiff.Diff. The server stamps identity and time; values set
// here are ignored.
func (c *Client) SendOperation(op domain.Operation) error {
	return c.sendEnvelope(gateway.EventDocumentOperation, op)
}

// SendCursorUpdate shares this client's cursor with the room.
func (c *Client) SendCursorUpdate(cursor domain.Cursor) error {
	c.mu.Lock()
	room := c.room
	c.mu.Unlock()
	return c.sendEnvelope(gateway.EventDocumentCursor, gateway.CursorPayload{
		DocumentID: room,
		Cursor:     cursor,
	})
}

// SendTypingStatus shares whether this client is typing.
func (c *Client) SendTypingStatus(isTyping bool) error {
	c.mu.Lock()
	room := c.room
	c.mu.Unlock()
	return c.sendEnvelope(gateway.EventUserTyping, gateway.TypingPayload{
		DocumentID: room,
		IsTyping:   isTyping,
	})
}

// Save persists a full document snapshot through the gateway.
func (c *Client) Save(content string) error {
	c.mu.Lock()
	room := c.room
	c.mu.Unlock()
	if room == "" {
		return domain.ErrNotRoomMember
	}
	return c.sendEnvelope(gateway.EventDocumentSave, gateway.DocumentSavePayload{
		DocumentID: room,
		Content:    content,
	})
}

func (c *Client) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	header := http.Header{"Authorization": {"Bearer " + c.token}}
	ws, _, err := dialer.Dial(c.url, header)
	if err != nil {
		return nil, fmt.Errorf("gateway dial failed: %w", err)
	}
	return ws, nil
}

func (c *Client) sendEnvelope(event string, payload interface{}) error {
	c.mu.Lock()
	ws := c.ws
	status := c.status
	c.mu.Unlock()
	if status != StatusConnected || ws == nil {
		return ErrNotConnected
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteJSON(gateway.Envelope{Event: event, Payload: raw})
}

func (c *Client) readLoop(ws *websocket.Conn, gen int) {
	for {
		var env gateway.Envelope
		err := ws.ReadJSON(&env)
		if err != nil {
			c.handleReadFailure(ws, gen, err)
			return
		}
		c.dispatch(env)
	}
}

// handleReadFailure classifies a broken read. A close frame from the
// server means an intentional disconnect, and reconnecting would
// defeat an administrator kick. Anything else is a transport failure
// that enters the backoff path.
func (c *Client) handleReadFailure(ws *websocket.Conn, gen int, err error) {
	ws.Close()

	c.mu.Lock()
	if gen != c.connGen || c.manual {
		// A newer connection took over, or the caller disconnected.
		c.mu.Unlock()
		return
	}
	c.ws = nil
	c.room = ""
	c.roster = make(map[domain.UserID]domain.RosterEntry)

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		c.setStatusLocked(StatusDisconnected, nil)
		c.mu.Unlock()
		return
	}

	c.setStatusLocked(StatusConnecting, nil)
	c.mu.Unlock()

	go c.reconnect(gen)
}

// reconnect retries the dial with the base delay doubling each
// attempt (1s, 2s, 4s, ...) up to the attempt cap, then reports a
// terminal error status.
func (c *Client) reconnect(gen int) {
	delay := c.opts.ReconnectBase
	var lastErr error

	for attempt := 0; attempt < c.opts.ReconnectAttempts; attempt++ {
		time.Sleep(delay)
		delay *= 2

		c.mu.Lock()
		if gen != c.connGen || c.manual {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		ws, err := c.dial()
		if err != nil {
			lastErr = err
			continue
		}

		c.mu.Lock()
		if c.manual {
			c.mu.Unlock()
			ws.Close()
			return
		}
		c.ws = ws
		c.connGen++
		newGen := c.connGen
		c.setStatusLocked(StatusConnected, nil)
		c.mu.Unlock()

		go c.readLoop(ws, newGen)
		return
	}

	c.mu.Lock()
	c.setStatusLocked(StatusError, fmt.Errorf("reconnect attempts exhausted: %w", lastErr))
	c.mu.Unlock()
}

func (c *Client) setStatusLocked(status Status, err error) {
	if c.status == status && err == nil {
		return
	}
	c.status = status
	c.emit(StatusChangedEvent{Status: status, Err: err})
}

func (c *Client) dispatch(env gateway.Envelope) {
	switch env.Event {
	case gateway.EventRoomUsers:
		var roster []domain.RosterEntry
		if json.Unmarshal(env.Payload, &roster) != nil {
			return
		}
		c.replaceRoster(roster)

	case gateway.EventDocumentOperation:
		var op domain.Operation
		if json.Unmarshal(env.Payload, &op) != nil {
			return
		}
		c.emit(RemoteOperationEvent{Operation: op})

	case gateway.EventDocumentSync:
		var p gateway.DocumentSyncPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		c.emit(DocumentSyncEvent{DocumentID: p.DocumentID, Content: p.Content, Version: p.Version})

	case gateway.EventDocumentSaved:
		var p gateway.DocumentSavedPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		savedAt, err := utils.ParseTimestamp(p.SavedAt)
		if err != nil {
			savedAt = time.Now()
		}
		c.emit(DocumentSavedEvent{DocumentID: p.DocumentID, SavedAt: savedAt})

	case gateway.EventRoomError:
		var p gateway.RoomErrorPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		c.emit(RoomErrorEvent{Message: p.Message})

	case gateway.EventCollabDisabled:
		var p gateway.CollabDisabledPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		// The server has already evicted this client from its room.
		c.mu.Lock()
		c.room = ""
		c.roster = make(map[domain.UserID]domain.RosterEntry)
		c.mu.Unlock()
		c.emit(PolicyChangedEvent{Enabled: false, Reason: p.Reason, Until: p.Until})

	case gateway.EventCollabEnabled:
		c.emit(PolicyChangedEvent{Enabled: true})

	case gateway.EventUserCursor:
		var p gateway.UserCursorPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		c.emit(UserCursorEvent{UserID: p.UserID, Cursor: p.Cursor})

	case gateway.EventUserTyping:
		var p gateway.UserTypingPayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		c.emit(UserTypingEvent{UserID: p.UserID, IsTyping: p.IsTyping})
	}
}

// replaceRoster diffs the incoming full roster against the previous
// one to derive user-joined and user-left events, then emits the
// replace itself.
func (c *Client) replaceRoster(roster []domain.RosterEntry) {
	next := make(map[domain.UserID]domain.RosterEntry, len(roster))
	for _, e := range roster {
		next[e.UserID] = e
	}

	c.mu.Lock()
	prev := c.roster
	c.roster = next
	c.mu.Unlock()

	for id, e := range next {
		if _, ok := prev[id]; !ok {
			c.emit(UserJoinedEvent{User: e})
		}
	}
	for id, e := range prev {
		if _, ok := next[id]; !ok {
			c.emit(UserLeftEvent{User: e})
		}
	}
	c.emit(RosterReplacedEvent{Roster: roster})
}

// emit never blocks; when the consumer lags, events are dropped. The
// roster-replace protocol makes membership state self-correcting.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}
