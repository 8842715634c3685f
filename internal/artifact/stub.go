package artifact

import (
	"context"
	"fmt"
	"sync"
)

// Stub is a deterministic Gateway for tests and offline runs.
type Stub struct {
	mu sync.Mutex

	// ImageRef is returned by SynthesizeImage; empty means a numbered
	// stub://image/N reference.
	ImageRef string
	Analysis string

	Descriptions []string
	Analyzed     []Image
}

var _ Gateway = (*Stub)(nil)

func (s *Stub) SynthesizeImage(ctx context.Context, description string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Descriptions = append(s.Descriptions, description)
	if s.ImageRef != "" {
		return s.ImageRef
	}
	return fmt.Sprintf("stub://image/%d", len(s.Descriptions))
}

func (s *Stub) AnalyzeImage(ctx context.Context, img Image, prompt string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Analyzed = append(s.Analyzed, img)
	if s.Analysis == "" {
		return AnalysisFailed
	}
	return s.Analysis
}
