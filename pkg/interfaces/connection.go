package interfaces

// Conn is the relay's view of one connected socket. The concrete
// implementation lives in internal/websocket; router, registry consumers and
// the sweeper depend only on this interface so they can be exercised without
// a live transport.
type Conn interface {
	// WriteJSON queues v for delivery on the socket's single writer.
	WriteJSON(v interface{}) error

	// Close tears the socket down. Safe to call more than once.
	Close() error

	// Ping sends a transport-level ping frame.
	Ping() error

	// Alive reports whether a pong arrived since the last ClearAlive.
	Alive() bool

	// ClearAlive marks the socket unviewed ahead of the next liveness sweep.
	ClearAlive()

	// SetIdentity records the (role, id) claimed by the first connect frame.
	// Identity is set at most once.
	SetIdentity(role, id string) error

	// Identified reports whether the socket has claimed an identity.
	Identified() bool

	// Role returns the claimed role, or "" while unidentified.
	Role() string

	// ClientID returns the claimed id, or "" while unidentified.
	ClientID() string

	// RoomID returns the joined room for role "user" sockets, or "".
	RoomID() string

	// SetRoomID records or clears the joined room.
	SetRoomID(roomID string)
}
