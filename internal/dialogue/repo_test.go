package dialogue

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func seedLog(t *testing.T, r *Repo, convID string, n int) []Interaction {
	t.Helper()
	out := make([]Interaction, 0, n)
	for i := 0; i < n; i++ {
		kind := KindAIFeedback
		if i%2 == 0 {
			kind = KindProbeAnswer
		}
		in := Interaction{ConversationID: convID, Kind: kind, Text: fmt.Sprintf("t%d", i)}
		require.NoError(t, r.AppendInteraction(context.Background(), &in))
		out = append(out, in)
	}
	return out
}

func TestRepo_LogOrdering(t *testing.T) {
	db := openTestDB(t)
	r := NewRepo(db)
	ctx := context.Background()
	require.NoError(t, r.CreateConversation(ctx, &Conversation{ConversationID: "01AAAAAAAAAAAAAAAAAAAAAAAA", UserID: 1, Phase: PhaseVisualLoop, Mode: ModeSocratic}))

	seeded := seedLog(t, r, "01AAAAAAAAAAAAAAAAAAAAAAAA", 7)
	for i := 1; i < len(seeded); i++ {
		require.Greater(t, seeded[i].ID, seeded[i-1].ID)
	}

	recent, err := r.RecentInteractions(ctx, "01AAAAAAAAAAAAAAAAAAAAAAAA", 3)
	require.NoError(t, err)
	require.Equal(t, []string{"t4", "t5", "t6"}, []string{recent[0].Text, recent[1].Text, recent[2].Text})

	last, err := r.LastInteraction(ctx, "01AAAAAAAAAAAAAAAAAAAAAAAA")
	require.NoError(t, err)
	require.Equal(t, seeded[6].ID, last.ID)

	n, err := r.CountByKind(ctx, "01AAAAAAAAAAAAAAAAAAAAAAAA", aiKinds...)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	removed, err := r.DeleteAfter(ctx, "01AAAAAAAAAAAAAAAAAAAAAAAA", seeded[4].ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	removed, err = r.TruncateFrom(ctx, "01AAAAAAAAAAAAAAAAAAAAAAAA", seeded[4].ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	all, err := r.ListInteractions(ctx, "01AAAAAAAAAAAAAAAAAAAAAAAA")
	require.NoError(t, err)
	require.Len(t, all, 4)

	empty, err := r.LastInteraction(ctx, "01BBBBBBBBBBBBBBBBBBBBBBBB")
	require.NoError(t, err)
	require.Nil(t, empty)
}

func TestRepo_PassedMarker(t *testing.T) {
	db := openTestDB(t)
	r := NewRepo(db)
	ctx := context.Background()

	seeded := seedLog(t, r, "01AAAAAAAAAAAAAAAAAAAAAAAA", 3)
	require.NoError(t, r.MarkPassed(ctx, seeded[0].ID))
	require.NoError(t, r.MarkPassed(ctx, seeded[2].ID))

	n, err := r.CountPassed(ctx, "01AAAAAAAAAAAAAAAAAAAAAAAA")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestRepo_FindPendingConversation(t *testing.T) {
	db := openTestDB(t)
	r := NewRepo(db)
	ctx := context.Background()

	_, err := r.FindPendingConversation(ctx, 1)
	require.True(t, errors.Is(err, ErrNotFound))

	used := &Conversation{ConversationID: "01AAAAAAAAAAAAAAAAAAAAAAAA", UserID: 1, Phase: PhaseInitialProbe, Mode: ModeSocratic}
	require.NoError(t, r.CreateConversation(ctx, used))
	seedLog(t, r, used.ConversationID, 1)

	pending := &Conversation{ConversationID: "01BBBBBBBBBBBBBBBBBBBBBBBB", UserID: 1, Phase: PhaseInitialProbe, Mode: ModeSocratic}
	require.NoError(t, r.CreateConversation(ctx, pending))

	got, err := r.FindPendingConversation(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, pending.ConversationID, got.ConversationID)

	list, err := r.ListConversations(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestRepo_ReviewUnique(t *testing.T) {
	db := openTestDB(t)
	r := NewRepo(db)
	ctx := context.Background()

	rv, err := newReview("01AAAAAAAAAAAAAAAAAAAAAAAA", FinalReview{Summary: "s", Advice: "a"})
	require.NoError(t, err)
	require.NoError(t, r.CreateReview(ctx, rv))

	dup, err := newReview("01AAAAAAAAAAAAAAAAAAAAAAAA", FinalReview{Summary: "s2", Advice: "a2"})
	require.NoError(t, err)
	require.Error(t, r.CreateReview(ctx, dup))

	got, err := r.GetReview(ctx, "01AAAAAAAAAAAAAAAAAAAAAAAA")
	require.NoError(t, err)
	fr, err := got.Final()
	require.NoError(t, err)
	require.Equal(t, "s", fr.Summary)
	require.Empty(t, fr.ThinkingPath)

	require.NoError(t, r.DeleteReview(ctx, "01AAAAAAAAAAAAAAAAAAAAAAAA"))
	_, err = r.GetReview(ctx, "01AAAAAAAAAAAAAAAAAAAAAAAA")
	require.True(t, errors.Is(err, ErrNotFound))
}
