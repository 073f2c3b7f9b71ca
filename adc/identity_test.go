package adc

import (
	"testing"

	"github.com/direct-connect/go-dc/tiger"
	"github.com/stretchr/testify/require"
)

func TestVerifyIdentityAcceptsMatchingPID(t *testing.T) {
	pid := []byte("0123456789012345678901234567890123")
	h := tiger.HashBytes(pid)
	inf := INF{
		"ID": B32Encode(h[:]),
		"PD": B32Encode(pid),
	}
	require.NoError(t, VerifyIdentity(inf))
}

func TestVerifyIdentityRejectsMismatch(t *testing.T) {
	pid := []byte("some private identifier bytes")
	inf := INF{
		"ID": B32Encode([]byte("not the right hash at all!!")),
		"PD": B32Encode(pid),
	}
	err := VerifyIdentity(inf)
	require.ErrorIs(t, err, ErrPIDMismatch)
}

func TestVerifyIdentityAcceptsAssertedOnly(t *testing.T) {
	inf := INF{"ID": "SOMECID"}
	require.NoError(t, VerifyIdentity(inf))
}

func TestHashPasswordDeterministic(t *testing.T) {
	nonce, err := NewNonce()
	require.NoError(t, err)
	require.Len(t, nonce, 16)

	h1, err := HashPassword("madcap", nonce)
	require.NoError(t, err)
	h2, err := HashPassword("madcap", nonce)
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	h3, err := HashPassword("different", nonce)
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}

func TestNewSIDValid(t *testing.T) {
	for i := 0; i < 20; i++ {
		sid, err := NewSID()
		require.NoError(t, err)
		require.True(t, sid.Valid())
	}
}
