package types

import "errors"

var (
	ErrMalformedMessage   = errors.New("malformed message")
	ErrMissingField       = errors.New("missing required field")
	ErrUnknownMessageType = errors.New("unknown message type")
)
