package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection wraps one gorilla socket. Writes are serialized through a
// single writer goroutine; identity is claimed at most once by the first
// *_connect frame the router sees.
type Connection struct {
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu         sync.RWMutex // guards identity and liveness fields
	role       string
	clientID   string
	roomID     string
	identified bool
	alive      bool
}

// NewConnection wraps a raw socket and starts its writer.
func NewConnection(conn *websocket.Conn, bufferSize int, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
		alive:        true,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues v on the writer. Returns ErrConnectionClosed once the
// socket is torn down and ErrWriteTimeout if the buffer stays full.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Ping sends a transport-level ping control frame.
func (c *Connection) Ping() error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// Close stops the writer and closes the underlying socket.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// SetIdentity records the claimed (role, id). A second claim on the same
// socket is rejected; the state machine is Unidentified -> Identified only.
func (c *Connection) SetIdentity(role, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.identified {
		return ErrAlreadyIdentified
	}

	c.role = role
	c.clientID = id
	c.identified = true
	return nil
}

// Identified reports whether an identity was claimed.
func (c *Connection) Identified() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identified
}

// Role returns the claimed role, "" while unidentified.
func (c *Connection) Role() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

// ClientID returns the claimed id, "" while unidentified.
func (c *Connection) ClientID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientID
}

// RoomID returns the currently joined room, "" when none.
func (c *Connection) RoomID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

// SetRoomID records or clears the joined room.
func (c *Connection) SetRoomID(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
}

// Alive reports whether a pong arrived since the last ClearAlive.
func (c *Connection) Alive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.alive
}

// ClearAlive marks the socket unviewed; the pong handler sets it back.
func (c *Connection) ClearAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive = false
}

func (c *Connection) markAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive = true
}
