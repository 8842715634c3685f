package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/garywanggali/think-first/internal/db"
	"github.com/garywanggali/think-first/internal/dialogue"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	offline, userID = false, 0

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	dsn := "sqlite://" + filepath.Join(dir, "think.db")
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DB_DSN", dsn)
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("MEDIA_ROOT", filepath.Join(dir, "media"))
	t.Setenv("LOG_LEVEL", "error")

	_, err := execute(t, "migrate")
	require.NoError(t, err)

	gdb, err := db.Connect(dsn)
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	repo := dialogue.NewRepo(gdb)
	conv := &dialogue.Conversation{ConversationID: "01HZX3Q7K9M2N4P6R8T0V1W3Y5", UserID: 7, Topic: "Why is the sky blue?", Phase: dialogue.PhaseVisualLoop}
	require.NoError(t, repo.CreateConversation(context.Background(), conv))
	require.NoError(t, repo.AppendInteraction(context.Background(), &dialogue.Interaction{ConversationID: conv.ConversationID, Kind: dialogue.KindQuestion, Text: "Why is the sky blue?"}))

	out, err := execute(t, "list", "--offline", "--user", "7")
	require.NoError(t, err)
	require.Contains(t, out, conv.ConversationID)

	_, err = execute(t, "list", "--offline")
	require.Error(t, err)

	out, err = execute(t, "show", "--offline", conv.ConversationID)
	require.NoError(t, err)
	require.Contains(t, out, `"topic": "Why is the sky blue?"`)

	_, err = execute(t, "show", "--offline", "--user", "8", conv.ConversationID)
	require.ErrorIs(t, err, dialogue.ErrNotFound)

	_, err = execute(t, "rollback", "--offline", conv.ConversationID, "abc")
	require.Error(t, err)

	out, err = execute(t, "delete", "--offline", conv.ConversationID)
	require.NoError(t, err)
	require.Contains(t, out, "deleted")

	_, err = execute(t, "show", "--offline", conv.ConversationID)
	require.ErrorIs(t, err, dialogue.ErrNotFound)
}
