package dialogue

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/garywanggali/think-first/internal/reasoning"
)

func TestEncodeChallenge_WireFormat(t *testing.T) {
	p := NewChallengePayload(reasoning.Challenge{Question: "q ___", CorrectAnswer: "a", Hint: "h"})
	got, err := EncodeChallenge("Guide.", p)
	require.NoError(t, err)
	require.Equal(t,
		`Guide.`+"\n"+`<CHALLENGE>{"type":"fill_in_the_blank","data":{"question":"q ___","correct_answer":"a","hint":"h"}}</CHALLENGE>`,
		got)

	visible, back := DecodeChallenge(got)
	require.Equal(t, "Guide.", visible)
	if diff := cmp.Diff(&p, back); diff != "" {
		t.Fatalf("challenge mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeChallenge_LeavesMalformedText(t *testing.T) {
	for _, text := range []string{
		"plain text",
		"broken <CHALLENGE>{not json}</CHALLENGE>",
		"unterminated <CHALLENGE>{}",
	} {
		visible, p := DecodeChallenge(text)
		require.Nil(t, p, text)
		require.Equal(t, text, visible)
	}
}

func TestFinalReview_RoundTrip(t *testing.T) {
	fr := FinalReview{
		Summary:      "s",
		ThinkingPath: []PathStage{{Stage: "Done", Description: "d"}},
		Advice:       "a",
	}
	got, err := EncodeFinalReview("Lead.", fr)
	require.NoError(t, err)
	require.Equal(t, `Lead.<FINAL_REVIEW>{"summary":"s","thinking_path":[{"stage":"Done","description":"d"}],"advice":"a"}</FINAL_REVIEW>`, got)

	visible, back := DecodeFinalReview(got)
	require.Equal(t, "Lead.", visible)
	require.Equal(t, &fr, back)
	require.Equal(t, "Lead.", VisibleText(got))
}
