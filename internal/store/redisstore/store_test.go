package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLock_UnreachableRedis(t *testing.T) {
	// nothing listens on port 1
	s := New("127.0.0.1:1", "", 0)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	unlock, err := s.Lock(ctx, "conversation:x")
	require.Error(t, err)
	require.Nil(t, unlock)
}

func TestWithTTL(t *testing.T) {
	s := New("127.0.0.1:1", "", 0)
	defer s.Close()

	require.Equal(t, defaultTTL, s.ttl)
	require.Equal(t, 5*time.Second, s.WithTTL(5*time.Second).ttl)
	require.Equal(t, 5*time.Second, s.WithTTL(0).ttl)
}
