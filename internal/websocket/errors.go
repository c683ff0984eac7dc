package websocket

import "errors"

var (
	ErrConnectionClosed  = errors.New("connection closed")
	ErrInvalidJSON       = errors.New("invalid json")
	ErrWriteTimeout      = errors.New("write timeout")
	ErrAlreadyIdentified = errors.New("connection already identified")
	ErrNilConnection     = errors.New("nil connection")
	ErrNotIdentified     = errors.New("connection not identified")
)
