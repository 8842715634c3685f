package reasoning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/garywanggali/think-first/internal/ai"
)

func TestLLM_ClassifySendsContext(t *testing.T) {
	mock := &ai.MockProvider{Replies: []string{`{"intent":"probe_deeper","visual_guide_text":"What color is the sunset?"}`}}
	g := NewLLM(mock, time.Second)

	c, err := g.Classify(context.Background(), ClassifyRequest{
		Topic:    "why is the sky blue?",
		UserText: "no idea",
		Context:  "question: why is the sky blue?",
	})
	require.NoError(t, err)
	require.Equal(t, IntentProbeDeeper, c.Intent)
	require.Equal(t, "What color is the sunset?", c.GuideText)

	require.Len(t, mock.Calls, 1)
	require.Equal(t, "system", mock.Calls[0][0].Role)
	require.Contains(t, mock.Calls[0][1].Content, "Current Question: why is the sky blue?")
	require.Contains(t, mock.Calls[0][1].Content, "question: why is the sky blue?")
}

func TestLLM_ProviderFailure(t *testing.T) {
	mock := &ai.MockProvider{Err: errors.New("connection refused")}
	g := NewLLM(mock, time.Second)

	c, err := g.Classify(context.Background(), ClassifyRequest{})
	require.Error(t, err)
	require.Equal(t, IntentUnknown, c.Intent)

	_, err = g.OpeningProbe(context.Background(), "q")
	require.Error(t, err)
}

func TestLLM_EmptyReply(t *testing.T) {
	g := NewLLM(&ai.MockProvider{Replies: []string{"   "}}, time.Second)
	_, err := g.VisualDescription(context.Background(), "t", "x")
	require.ErrorIs(t, err, ErrEmptyResponse)
}

type slowProvider struct{}

func (slowProvider) Chat(ctx context.Context, _ []ai.Message) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestLLM_Timeout(t *testing.T) {
	g := NewLLM(slowProvider{}, 20*time.Millisecond)
	_, err := g.FollowUpProbe(context.Background(), "t", "dunno")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
