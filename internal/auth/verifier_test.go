package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_Verify(t *testing.T) {
	v := NewVerifier("test-secret")

	t.Run("missing token is unauthenticated", func(t *testing.T) {
		_, err := v.Verify("")
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("round trips a signed principal", func(t *testing.T) {
		token, err := v.Sign(Principal{UserID: "u1", Username: "reader"}, time.Hour)
		require.NoError(t, err)

		p, err := v.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, Principal{UserID: "u1", Username: "reader"}, p)
	})

	t.Run("accepts numeric id claims", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"id":       7,
			"username": "testuser",
			"exp":      time.Now().Add(96 * time.Hour).Unix(),
		}).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		p, err := v.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "7", p.UserID)
		assert.Equal(t, "testuser", p.Username)
	})

	t.Run("falls back to subject", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "u9",
		}).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		p, err := v.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "u9", p.UserID)
	})

	t.Run("rejects wrong secret", func(t *testing.T) {
		token, err := NewVerifier("other-secret").Sign(Principal{UserID: "u1"}, time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("rejects expired token", func(t *testing.T) {
		past := NewVerifier("test-secret")
		past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, err := past.Sign(Principal{UserID: "u1"}, time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		_, err := v.Verify("not-a-jwt")
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("rejects unsigned tokens", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"id": "u1"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("rejects tokens without identity", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"username": "ghost",
		}).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.True(t, errors.Is(err, ErrForbidden))
	})
}
