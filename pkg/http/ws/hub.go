package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	sendQueueSize = 256
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = pongWait * 9 / 10
	maxReadBytes  = 8 << 10
)

// Roles a connection can hold inside a session room.
const (
	RoleHost        = "host"
	RoleParticipant = "participant"
)

// Hub tracks WebSocket connections grouped into per-session rooms. A member
// holds at most one connection: registering a new one closes the old.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Connection // session_id -> member_id -> connection

	// OnDrop is called when a droppable message is discarded for a slow connection.
	OnDrop func(msgType string)
	logger zerolog.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[string]*Connection),
		logger: logger.With().Str("component", "ws_hub").Logger(),
	}
}

// Register adds a connection to its session room.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	room, ok := h.rooms[conn.SessionID]
	if !ok {
		room = make(map[string]*Connection)
		h.rooms[conn.SessionID] = room
	}
	old := room[conn.MemberID]
	room[conn.MemberID] = conn
	h.mu.Unlock()

	if old != nil && old != conn {
		old.Close()
	}
	h.logger.Debug().Str("session_id", conn.SessionID).Str("member_id", conn.MemberID).Str("role", conn.Role).Msg("connection registered")
}

// Unregister removes conn unless it was already replaced by a newer connection.
// It reports whether conn was the current connection of its member.
func (h *Hub) Unregister(conn *Connection) bool {
	h.mu.Lock()
	current := false
	if room, ok := h.rooms[conn.SessionID]; ok && room[conn.MemberID] == conn {
		delete(room, conn.MemberID)
		if len(room) == 0 {
			delete(h.rooms, conn.SessionID)
		}
		current = true
	}
	h.mu.Unlock()

	conn.Close()
	return current
}

// Rebind moves conn to a new member id within its room, used when a
// participant proves an earlier identity after connecting.
func (h *Hub) Rebind(conn *Connection, memberID string) {
	h.mu.Lock()
	if room, ok := h.rooms[conn.SessionID]; ok && room[conn.MemberID] == conn {
		delete(room, conn.MemberID)
	}
	conn.MemberID = memberID
	h.mu.Unlock()
	h.Register(conn)
}

// Broadcast sends msg to every connection of a session.
func (h *Hub) Broadcast(sessionID string, msg Message, droppable bool) {
	for _, conn := range h.members(sessionID, func(*Connection) bool { return true }) {
		h.deliver(conn, msg, droppable)
	}
}

// SendToRole sends msg to the connections of a session holding role.
func (h *Hub) SendToRole(sessionID, role string, msg Message, droppable bool) {
	for _, conn := range h.members(sessionID, func(c *Connection) bool { return c.Role == role }) {
		h.deliver(conn, msg, droppable)
	}
}

// SendToMember delivers msg to one member of a session.
func (h *Hub) SendToMember(sessionID, memberID string, msg Message, droppable bool) error {
	h.mu.RLock()
	conn, ok := h.rooms[sessionID][memberID]
	h.mu.RUnlock()
	if !ok {
		return ErrConnectionNotFound
	}
	return h.deliver(conn, msg, droppable)
}

// CloseSession disconnects every member of a session.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	room := h.rooms[sessionID]
	delete(h.rooms, sessionID)
	h.mu.Unlock()
	for _, conn := range room {
		conn.Close()
	}
}

// CloseConnections closes every connection of a session but leaves them
// registered, so each read loop unregisters its own connection as usual.
func (h *Hub) CloseConnections(sessionID string) {
	for _, conn := range h.members(sessionID, func(*Connection) bool { return true }) {
		conn.Close()
	}
}

// Connected reports whether a member currently holds a connection.
func (h *Hub) Connected(sessionID, memberID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[sessionID][memberID]
	return ok
}

// Count returns the number of connections in a session room.
func (h *Hub) Count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

func (h *Hub) members(sessionID string, keep func(*Connection) bool) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[sessionID]
	out := make([]*Connection, 0, len(room))
	for _, conn := range room {
		if keep(conn) {
			out = append(out, conn)
		}
	}
	return out
}

// deliver queues msg. A full queue drops droppable messages; for anything
// else the connection is closed so the client reconnects and resyncs from a
// fresh snapshot instead of silently missing a transition.
func (h *Hub) deliver(conn *Connection, msg Message, droppable bool) error {
	err := conn.Send(msg)
	if !errors.Is(err, ErrSendQueueFull) {
		return err
	}
	if droppable {
		if h.OnDrop != nil {
			h.OnDrop(msg.Type)
		}
		return nil
	}
	h.logger.Warn().Str("session_id", conn.SessionID).Str("type", msg.Type).Msg("send queue full, closing slow connection")
	conn.Close()
	return err
}

// Connection represents a WebSocket connection with send queue.
type Connection struct {
	SessionID string
	MemberID  string
	Role      string

	conn   *websocket.Conn
	sendCh chan Message
	mu     sync.Mutex
	closed bool
	logger zerolog.Logger
}

// NewConnection wraps a WebSocket connection.
func NewConnection(conn *websocket.Conn, sessionID, memberID, role string, logger zerolog.Logger) *Connection {
	return &Connection{
		SessionID: sessionID,
		MemberID:  memberID,
		Role:      role,
		conn:      conn,
		sendCh:    make(chan Message, sendQueueSize),
		logger:    logger,
	}
}

// Send queues a message for delivery.
func (c *Connection) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.sendCh <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close shuts down the connection. The write pump flushes a close frame.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.sendCh)
}

// WritePump sends messages from the send queue and keeps the peer alive with pings.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Warn().Err(err).Msg("write error")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump receives messages and calls the handler until the peer goes away.
func (c *Connection) ReadPump(handler func(Message) error) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxReadBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("read error")
			}
			break
		}

		if err := handler(msg); err != nil {
			c.logger.Warn().Err(err).Msg("message handler error")
		}
	}
}

var (
	ErrConnectionNotFound = &Error{Code: "connection_not_found", Message: "Member connection not found"}
	ErrConnectionClosed   = &Error{Code: "connection_closed", Message: "Connection is closed"}
	ErrSendQueueFull      = &Error{Code: "send_queue_full", Message: "Send queue is full"}
)

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
