package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour)

	token, err := tm.GenerateToken("ops-1", RoleAdmin)
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops-1", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	tm := NewTokenManager("0123456789abcdef0123456789abcdef", time.Minute)
	issued := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	tm.now = func() time.Time { return issued }

	token, err := tm.GenerateToken("ops-1", RoleAdmin)
	require.NoError(t, err)

	tm.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = tm.ValidateToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenManager_RejectsOtherAlgorithms(t *testing.T) {
	tm := NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour)

	claims := jwt.RegisteredClaims{
		Subject:   "ops-1",
		Issuer:    "warden",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = tm.ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenManager_RejectsMissingSubject(t *testing.T) {
	tm := NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour)

	token, err := tm.GenerateToken("", RoleAdmin)
	require.NoError(t, err)

	_, err = tm.ValidateToken(token)
	assert.Error(t, err)
}
