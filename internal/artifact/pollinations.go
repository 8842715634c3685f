package artifact

import (
	"context"
	"net/url"
	"strings"
)

// Pollinations builds image URLs directly; the image is rendered when the
// client fetches it. Analysis is delegated to Vision when set.
type Pollinations struct {
	BaseURL string
	Vision  Gateway
}

var _ Gateway = (*Pollinations)(nil)

func NewPollinations(vision Gateway) *Pollinations {
	return &Pollinations{BaseURL: "https://image.pollinations.ai/prompt/", Vision: vision}
}

func (p *Pollinations) SynthesizeImage(ctx context.Context, description string) string {
	description = strings.TrimSpace(description)
	if description == "" {
		return PlaceholderError
	}
	return p.BaseURL + url.PathEscape(description) + "?nologo=true&width=1024&height=1024&model=flux"
}

func (p *Pollinations) AnalyzeImage(ctx context.Context, img Image, prompt string) string {
	if p.Vision == nil {
		return AnalysisFailed
	}
	return p.Vision.AnalyzeImage(ctx, img, prompt)
}
