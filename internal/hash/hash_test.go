package hash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	h, err := HashPassword("pass1234")
	require.NoError(t, err)
	require.NotEqual(t, "pass1234", h)

	require.True(t, CheckPassword(h, "pass1234"))
	require.False(t, CheckPassword(h, "wrong-password"))
	require.False(t, CheckPassword("", "pass1234"))
}

func TestNewResetToken(t *testing.T) {
	token, digest, err := NewResetToken()
	require.NoError(t, err)
	require.Len(t, token, 128)
	require.NotEqual(t, token, digest)
	require.Equal(t, DigestResetToken(token), digest)

	other, _, err := NewResetToken()
	require.NoError(t, err)
	require.NotEqual(t, token, other)
}
