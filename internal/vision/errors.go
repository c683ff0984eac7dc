package vision

import "errors"

var (
	ErrDisabled    = errors.New("vision endpoint not configured")
	ErrBadStatus   = errors.New("vision endpoint returned non-success status")
	ErrEmptyAnswer = errors.New("vision endpoint returned empty answer")
)
