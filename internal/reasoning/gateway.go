// Package reasoning is the tutoring backend: it classifies what the learner's
// latest turn represents and writes probing text and visual descriptions.
package reasoning

import (
	"context"
	"errors"
)

var ErrEmptyResponse = errors.New("reasoning: empty response")

type ClassifyRequest struct {
	Topic    string
	UserText string
	// Context is the recent log window, oldest first, one "kind: text" per line.
	Context string
}

// Gateway is the reasoning backend contract. Any error means "no usable
// result"; callers substitute their own fallback text.
type Gateway interface {
	Classify(ctx context.Context, req ClassifyRequest) (Classification, error)
	OpeningProbe(ctx context.Context, userText string) (string, error)
	VisualDescription(ctx context.Context, topic, thought string) (string, error)
	FollowUpProbe(ctx context.Context, topic, userText string) (string, error)
}
