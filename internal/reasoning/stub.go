package reasoning

import (
	"context"
	"sync"
)

// Stub is a deterministic Gateway. Classifications are consumed in order;
// when the queue is empty Classify returns IntentUnknown.
type Stub struct {
	mu sync.Mutex

	Classifications []Classification
	Opening         string
	Visual          string
	FollowUp        string
	// Err, when set, fails every call.
	Err error

	Requests []ClassifyRequest
	Calls    int
}

var _ Gateway = (*Stub)(nil)

func (s *Stub) Classify(ctx context.Context, req ClassifyRequest) (Classification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	s.Requests = append(s.Requests, req)
	if s.Err != nil {
		return Classification{Intent: IntentUnknown, Tool: ToolImage}, s.Err
	}
	if len(s.Classifications) == 0 {
		return Classification{Intent: IntentUnknown, Tool: ToolImage}, nil
	}
	c := s.Classifications[0]
	s.Classifications = s.Classifications[1:]
	return c, nil
}

func (s *Stub) OpeningProbe(ctx context.Context, userText string) (string, error) {
	return s.text(s.Opening)
}

func (s *Stub) VisualDescription(ctx context.Context, topic, thought string) (string, error) {
	return s.text(s.Visual)
}

func (s *Stub) FollowUpProbe(ctx context.Context, topic, userText string) (string, error) {
	return s.text(s.FollowUp)
}

func (s *Stub) text(v string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Err != nil {
		return "", s.Err
	}
	if v == "" {
		return "", ErrEmptyResponse
	}
	return v, nil
}
