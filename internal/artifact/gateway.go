// Package artifact turns visual descriptions into renderable images and
// describes images the learner uploads.
package artifact

import (
	"context"
	"strings"
)

const (
	PlaceholderError      = "https://placehold.co/1024x1024/png?text=Image+Error"
	PlaceholderMissingKey = "https://placehold.co/1024x1024/png?text=API+Key+Missing"

	AnalysisFailed = "Image analysis failed. Could you describe what the picture shows?"
)

// Image locates an uploaded image. Path is a local file and wins over Ref.
type Image struct {
	Ref  string
	Path string
}

// Gateway never fails: synthesis falls back to a placeholder reference and
// analysis to a fixed text, so a turn is never blocked on artifacts.
type Gateway interface {
	SynthesizeImage(ctx context.Context, description string) string
	AnalyzeImage(ctx context.Context, img Image, prompt string) string
}

func IsPlaceholder(ref string) bool {
	return strings.HasPrefix(ref, "https://placehold.co/")
}
