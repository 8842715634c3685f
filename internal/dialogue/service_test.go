package dialogue

import (
	"context"
	"errors"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/garywanggali/think-first/internal/artifact"
	"github.com/garywanggali/think-first/internal/reasoning"
)

type fixture struct {
	db        *gorm.DB
	repo      *Repo
	svc       *Service
	reasoner  *reasoning.Stub
	artifacts *artifact.Stub
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(gormsqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&Conversation{}, &Interaction{}, &Review{}, &Job{}))
	return db
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	db := openTestDB(t)
	f := &fixture{
		db:        db,
		repo:      NewRepo(db),
		reasoner:  &reasoning.Stub{Opening: "What have you noticed so far?", Visual: "a glass prism splitting light"},
		artifacts: &artifact.Stub{Analysis: "a cat sitting on a laptop"},
	}
	f.svc = NewService(f.repo, f.reasoner, f.artifacts, opts)
	return f
}

func (f *fixture) start(t *testing.T, userID uint64) *Conversation {
	t.Helper()
	c, created, err := f.svc.StartConversation(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, created)
	return c
}

// opened returns a conversation that went through its first turn.
func (f *fixture) opened(t *testing.T, userID uint64) *Conversation {
	t.Helper()
	c := f.start(t, userID)
	_, err := f.svc.ProcessTurn(context.Background(), userID, c.ConversationID, TurnInput{Text: "Why is the sky blue?"})
	require.NoError(t, err)
	return c
}

func (f *fixture) log(t *testing.T, c *Conversation) []Interaction {
	t.Helper()
	log, err := f.repo.ListInteractions(context.Background(), c.ConversationID)
	require.NoError(t, err)
	return log
}

func (f *fixture) reload(t *testing.T, c *Conversation) *Conversation {
	t.Helper()
	got, err := f.repo.GetConversation(context.Background(), c.ConversationID)
	require.NoError(t, err)
	return got
}

func kinds(log []Interaction) []Kind {
	out := make([]Kind, 0, len(log))
	for _, in := range log {
		out = append(out, in.Kind)
	}
	return out
}

func TestStartConversation_ReusesPending(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	c1, created, err := f.svc.StartConversation(ctx, 1)
	require.NoError(t, err)
	require.True(t, created)
	require.Len(t, c1.ConversationID, 26)
	require.Equal(t, PhaseInitialProbe, c1.Phase)

	c2, created, err := f.svc.StartConversation(ctx, 1)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, c1.ConversationID, c2.ConversationID)

	// another user gets their own
	c3, created, err := f.svc.StartConversation(ctx, 2)
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, c1.ConversationID, c3.ConversationID)
}

func TestGetConversation_HidesForeign(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.opened(t, 1)

	_, err := f.svc.GetConversation(context.Background(), 2, c.ConversationID)
	require.True(t, errors.Is(err, ErrNotFound))

	view, err := f.svc.GetConversation(context.Background(), 1, c.ConversationID)
	require.NoError(t, err)
	require.Len(t, view.Interactions, 2)
	require.Nil(t, view.Review)
}

func TestDeleteConversation_Cascades(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	c := f.opened(t, 1)

	require.True(t, errors.Is(f.svc.DeleteConversation(ctx, 2, c.ConversationID), ErrNotFound))
	require.NoError(t, f.svc.DeleteConversation(ctx, 1, c.ConversationID))

	_, err := f.repo.GetConversation(ctx, c.ConversationID)
	require.True(t, errors.Is(err, ErrNotFound))
	require.Empty(t, f.log(t, c))
}
