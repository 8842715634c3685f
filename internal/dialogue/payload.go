package dialogue

import (
	"encoding/json"
	"strings"

	"github.com/garywanggali/think-first/internal/reasoning"
)

// Structured payloads travel inside free text as tagged blocks; the
// rendering layer parses these tags.
const (
	challengeOpen  = "<CHALLENGE>"
	challengeClose = "</CHALLENGE>"
	reviewOpen     = "<FINAL_REVIEW>"
	reviewClose    = "</FINAL_REVIEW>"

	challengeTypeFillBlank = "fill_in_the_blank"
)

type ChallengePayload struct {
	Type string              `json:"type"`
	Data reasoning.Challenge `json:"data"`
}

func NewChallengePayload(ch reasoning.Challenge) ChallengePayload {
	return ChallengePayload{Type: challengeTypeFillBlank, Data: ch}
}

// EncodeChallenge appends a challenge block on its own line after guide.
func EncodeChallenge(guide string, p ChallengePayload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return guide + "\n" + challengeOpen + string(b) + challengeClose, nil
}

// DecodeChallenge splits text into its visible part and the embedded
// challenge, if any. Malformed blocks are left in the visible text.
func DecodeChallenge(text string) (string, *ChallengePayload) {
	visible, inner, ok := cutBlock(text, challengeOpen, challengeClose)
	if !ok {
		return text, nil
	}
	var p ChallengePayload
	if err := json.Unmarshal([]byte(inner), &p); err != nil {
		return text, nil
	}
	return strings.TrimRight(visible, "\n"), &p
}

// EncodeFinalReview appends a review block directly after lead.
func EncodeFinalReview(lead string, fr FinalReview) (string, error) {
	b, err := json.Marshal(fr)
	if err != nil {
		return "", err
	}
	return lead + reviewOpen + string(b) + reviewClose, nil
}

func DecodeFinalReview(text string) (string, *FinalReview) {
	visible, inner, ok := cutBlock(text, reviewOpen, reviewClose)
	if !ok {
		return text, nil
	}
	var fr FinalReview
	if err := json.Unmarshal([]byte(inner), &fr); err != nil {
		return text, nil
	}
	return visible, &fr
}

// VisibleText drops every tagged block.
func VisibleText(text string) string {
	text, _ = DecodeChallenge(text)
	text, _ = DecodeFinalReview(text)
	return text
}

func cutBlock(text, open, close string) (rest, inner string, ok bool) {
	i := strings.Index(text, open)
	if i < 0 {
		return text, "", false
	}
	j := strings.Index(text[i+len(open):], close)
	if j < 0 {
		return text, "", false
	}
	inner = text[i+len(open) : i+len(open)+j]
	rest = text[:i] + text[i+len(open)+j+len(close):]
	return rest, inner, true
}
