package dialogue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/garywanggali/think-first/internal/artifact"
	"github.com/garywanggali/think-first/internal/reasoning"
)

type resolverFunc func(ref string) string

func (f resolverFunc) Resolve(ref string) string { return f(ref) }

func TestRetry_NoNeedWhenLastIsSystem(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	empty := f.start(t, 1)
	out, err := f.svc.Retry(ctx, 1, empty.ConversationID)
	require.NoError(t, err)
	require.Equal(t, StatusNoRetry, out.Status)

	c := f.opened(t, 2)
	before := f.log(t, c)
	out, err = f.svc.Retry(ctx, 2, c.ConversationID)
	require.NoError(t, err)
	require.Equal(t, StatusNoRetry, out.Status)
	require.Equal(t, before, f.log(t, c))
}

func TestRetry_RegeneratesDanglingTurn(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	c := f.opened(t, 1)

	// a turn that was logged but never answered
	dangling := &Interaction{ConversationID: c.ConversationID, Kind: KindProbeAnswer, Text: "light bends"}
	require.NoError(t, f.repo.AppendInteraction(ctx, dangling))

	f.reasoner.Classifications = []reasoning.Classification{{Intent: reasoning.IntentProbeDeeper, GuideText: "Bends where?"}}
	out, err := f.svc.Retry(ctx, 1, c.ConversationID)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, out.Status)
	require.Equal(t, "Bends where?", out.Reply)

	log := f.log(t, c)
	require.Equal(t, []Kind{KindQuestion, KindAIFeedback, KindProbeAnswer, KindAIFeedback}, kinds(log))
	require.Equal(t, "light bends", log[2].Text)
	require.Greater(t, log[2].ID, dangling.ID)
}

func TestRetry_ReResolvesImage(t *testing.T) {
	f := newFixture(t, Options{Resolver: resolverFunc(func(ref string) string {
		return "/srv" + ref
	})})
	ctx := context.Background()
	c := f.opened(t, 1)

	ref := "/media/uploads/a.png"
	require.NoError(t, f.repo.AppendInteraction(ctx, &Interaction{
		ConversationID: c.ConversationID, Kind: KindProbeAnswer, Text: imageOnlyText, ArtifactRef: ref,
	}))
	calls := f.reasoner.Calls

	out, err := f.svc.Retry(ctx, 1, c.ConversationID)
	require.NoError(t, err)
	require.Equal(t, "a cat sitting on a laptop", out.Reply)
	require.Equal(t, []artifact.Image{{Ref: ref, Path: "/srv" + ref}}, f.artifacts.Analyzed)
	require.Equal(t, calls, f.reasoner.Calls)
}

func TestRetry_FirstTurn(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	c := f.start(t, 1)
	require.NoError(t, f.repo.AppendInteraction(ctx, &Interaction{ConversationID: c.ConversationID, Kind: KindQuestion, Text: "Why do cats purr?"}))

	out, err := f.svc.Retry(ctx, 1, c.ConversationID)
	require.NoError(t, err)
	require.Equal(t, "What have you noticed so far?", out.Reply)
	require.Equal(t, []Kind{KindQuestion, KindAIFeedback}, kinds(f.log(t, c)))
	require.Equal(t, "Why do cats purr?", f.reload(t, c).Topic)
}

func TestRetry_QuestionAfterRollback(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	c := f.opened(t, 1)
	question := f.log(t, c)[0]

	_, err := f.svc.Rollback(ctx, 1, c.ConversationID, question.ID)
	require.NoError(t, err)
	require.Equal(t, PhaseVisualLoop, f.reload(t, c).Phase)

	out, err := f.svc.Retry(ctx, 1, c.ConversationID)
	require.NoError(t, err)
	require.Equal(t, "What have you noticed so far?", out.Reply)
	require.Equal(t, PhaseVisualLoop, out.Phase)
	require.Equal(t, []Kind{KindQuestion, KindAIFeedback}, kinds(f.log(t, c)))
}

func TestRetry_ForeignConversation(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.opened(t, 1)
	_, err := f.svc.Retry(context.Background(), 9, c.ConversationID)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestRollback_TruncatesSuffix(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	c := f.opened(t, 1)
	for _, text := range []string{"a", "b"} {
		_, err := f.svc.ProcessTurn(ctx, 1, c.ConversationID, TurnInput{Text: text})
		require.NoError(t, err)
	}
	log := f.log(t, c)
	require.Len(t, log, 6)

	got, err := f.svc.Rollback(ctx, 1, c.ConversationID, log[3].ID)
	require.NoError(t, err)
	require.Equal(t, PhaseVisualLoop, got.Phase)
	require.Equal(t, log[:4], f.log(t, c))
}

func TestRollback_OutOfCompletedDeletesReview(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	c := f.opened(t, 1)
	f.reasoner.Classifications = []reasoning.Classification{{Intent: reasoning.IntentFinish}}
	for _, text := range []string{"done", "Air scatters blue."} {
		_, err := f.svc.ProcessTurn(ctx, 1, c.ConversationID, TurnInput{Text: text})
		require.NoError(t, err)
	}
	require.True(t, f.reload(t, c).Completed)
	log := f.log(t, c)

	got, err := f.svc.Rollback(ctx, 1, c.ConversationID, log[1].ID)
	require.NoError(t, err)
	require.False(t, got.Completed)
	require.Equal(t, PhaseVisualLoop, got.Phase)

	stored := f.reload(t, c)
	require.False(t, stored.Completed)
	require.Equal(t, PhaseVisualLoop, stored.Phase)
	require.Equal(t, log[:2], f.log(t, c))

	_, err = f.repo.GetReview(ctx, c.ConversationID)
	require.True(t, errors.Is(err, ErrNotFound))

	// the dialogue continues from the restored point
	f.reasoner.Classifications = []reasoning.Classification{{Intent: reasoning.IntentProbeDeeper, GuideText: "Again?"}}
	out, err := f.svc.ProcessTurn(ctx, 1, c.ConversationID, TurnInput{Text: "let me rethink"})
	require.NoError(t, err)
	require.Equal(t, "Again?", out.Reply)
}

func TestRollback_ToReviewEntryDropsIt(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	c := f.opened(t, 1)
	f.reasoner.Classifications = []reasoning.Classification{{Intent: reasoning.IntentFinish}}
	for _, text := range []string{"done", "Air scatters blue."} {
		_, err := f.svc.ProcessTurn(ctx, 1, c.ConversationID, TurnInput{Text: text})
		require.NoError(t, err)
	}
	log := f.log(t, c)
	last := log[len(log)-1]
	require.Equal(t, KindReview, last.Kind)

	got, err := f.svc.Rollback(ctx, 1, c.ConversationID, last.ID)
	require.NoError(t, err)
	require.False(t, got.Completed)
	require.Equal(t, PhaseVisualLoop, got.Phase)
	require.Equal(t, log[:len(log)-1], f.log(t, c))

	view, err := f.svc.GetConversation(ctx, 1, c.ConversationID)
	require.NoError(t, err)
	require.Nil(t, view.Review)
	for _, in := range view.Interactions {
		require.Nil(t, in.Review)
	}

	// the synthesis is now dangling and can be answered again
	out, err := f.svc.Retry(ctx, 1, c.ConversationID)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, out.Status)
}

func TestRollback_FromReviewWithoutCompletion(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	c := f.opened(t, 1)
	f.reasoner.Classifications = []reasoning.Classification{{Intent: reasoning.IntentFinish}}
	_, err := f.svc.ProcessTurn(ctx, 1, c.ConversationID, TurnInput{Text: "done"})
	require.NoError(t, err)
	require.Equal(t, PhaseReview, f.reload(t, c).Phase)

	got, err := f.svc.Rollback(ctx, 1, c.ConversationID, f.log(t, c)[1].ID)
	require.NoError(t, err)
	require.Equal(t, PhaseVisualLoop, got.Phase)
}

func TestRollback_TargetMustBelongToConversation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	a := f.opened(t, 1)
	b := f.opened(t, 2)
	other := f.log(t, b)[0]

	before := f.log(t, a)
	_, err := f.svc.Rollback(ctx, 1, a.ConversationID, other.ID)
	require.True(t, errors.Is(err, ErrNotFound))
	require.Equal(t, before, f.log(t, a))

	_, err = f.svc.Rollback(ctx, 2, a.ConversationID, before[0].ID)
	require.True(t, errors.Is(err, ErrNotFound))
}
