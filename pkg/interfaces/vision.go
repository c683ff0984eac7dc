package interfaces

import "context"

// Describer is the external answer-producing collaborator. Given a saved
// screenshot it returns a free-text answer. Timeouts, non-2xx responses and
// empty answers are all ordinary failures; callers fall back to forwarding
// the image to a human helper.
type Describer interface {
	Describe(ctx context.Context, image []byte) (string, error)
}
