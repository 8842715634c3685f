package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPasswordHash(t *testing.T) {
	h, err := HashPassword("s3cret")
	require.NoError(t, err)
	require.True(t, CheckPassword(h, "s3cret"))
	require.False(t, CheckPassword(h, "nope"))
}

func TestJWTRoundTrip(t *testing.T) {
	tok, err := SignJWT(42, "k", time.Hour)
	require.NoError(t, err)

	id, err := ParseJWT(tok, "k")
	require.NoError(t, err)
	require.Equal(t, uint64(42), id)

	_, err = ParseJWT(tok, "other")
	require.True(t, errors.Is(err, ErrInvalidToken))
}

func TestJWTExpired(t *testing.T) {
	tok, err := SignJWT(7, "k", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(tok, "k")
	require.ErrorIs(t, err, ErrInvalidToken)
}
