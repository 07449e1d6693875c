package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTService_TokenPairRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", "student360")

	access, refresh, err := svc.GenerateTokenPair("user-1", "ada@example.com", "teacher", "sess-1")
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	assert.NotEqual(t, access, refresh)

	claims, err := svc.ValidateAccessToken(access)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "teacher", claims.Role)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "access", claims.TokenType)

	refreshClaims, err := svc.ValidateRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, "user-1", refreshClaims.UserID)
	assert.Equal(t, "refresh", refreshClaims.TokenType)
}

func TestJWTService_TokenTypeIsEnforced(t *testing.T) {
	svc := NewJWTService("test-secret", "student360")

	access, refresh, err := svc.GenerateTokenPair("user-1", "ada@example.com", "teacher", "sess-1")
	require.NoError(t, err)

	// A refresh token must never pass as an access token, and vice versa
	_, err = svc.ValidateAccessToken(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateRefreshToken(access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_RejectsForeignSignature(t *testing.T) {
	svc := NewJWTService("test-secret", "student360")
	other := NewJWTService("different-secret", "student360")

	access, err := other.GenerateAccessToken("user-1", "ada@example.com", "teacher", "sess-1")
	require.NoError(t, err)

	_, err = svc.ValidateToken(access)
	assert.Error(t, err)
}

func TestExtractTokenFromBearer(t *testing.T) {
	assert.Equal(t, "abc123", ExtractTokenFromBearer("Bearer abc123"))
	assert.Equal(t, "", ExtractTokenFromBearer("abc123"))
	assert.Equal(t, "", ExtractTokenFromBearer(""))
	assert.Equal(t, "", ExtractTokenFromBearer("Bearer "))
}

func TestHashToken_Deterministic(t *testing.T) {
	h1 := HashToken("some-token")
	h2 := HashToken("some-token")
	h3 := HashToken("other-token")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}
