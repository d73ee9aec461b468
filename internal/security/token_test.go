package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)

	token, err := svc.CreateForUser(42, []string{"messaging-settings:update"})
	require.NoError(t, err)

	claims, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, []string{"messaging-settings:update"}, claims.Permissions)
}

func TestTokenRejections(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)

	t.Run("Expired", func(t *testing.T) {
		token, err := svc.CreateWithTTL(1, nil, -time.Minute)
		require.NoError(t, err)
		_, err = svc.Parse(token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		token, err := NewTokenService("other", time.Hour).CreateForUser(1, nil)
		require.NoError(t, err)
		_, err = svc.Parse(token)
		assert.Error(t, err)
	})

	t.Run("NonNumericSubject", func(t *testing.T) {
		raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "alice",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		token, err := raw.SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = svc.Parse(token)
		assert.Error(t, err)
	})
}
