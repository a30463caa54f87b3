package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHMACVerifierRoundTrip(t *testing.T) {
	v, err := NewHMACVerifier([]byte("test-secret"))
	require.NoError(t, err)

	token := v.Sign("user-123")
	subject, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", subject)
}

func TestHMACVerifierRejects(t *testing.T) {
	v, err := NewHMACVerifier([]byte("test-secret"))
	require.NoError(t, err)

	other, err := NewHMACVerifier([]byte("other-secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"no signature", "user-123"},
		{"empty subject", ".c2ln"},
		{"garbage signature", "user-123.bm90LXJlYWw"},
		{"wrong secret", other.Sign("user-123")},
		{"subject swapped", v.Sign("user-123")[len("user-123"):] + "user-456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestNewHMACVerifierRequiresSecret(t *testing.T) {
	_, err := NewHMACVerifier(nil)
	assert.Error(t, err)
}
