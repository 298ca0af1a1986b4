package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := NewJWTVerifier("secret", time.Hour)
	token, err := v.Issue(Identity{Subject: "google-123", Role: "student", Email: "a@example.com", Name: "Alice"})
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, Identity{Subject: "google-123", Role: "student", Email: "a@example.com", Name: "Alice"}, id)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := NewJWTVerifier("secret", time.Hour)
	other, err := NewJWTVerifier("other-secret", time.Hour).Issue(Identity{Subject: "x", Role: "student"})
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "student",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "x",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: "student"}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "wrong secret", token: other},
		{name: "expired", token: expired},
		{name: "missing subject", token: noSubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestChain(t *testing.T) {
	first := NewJWTVerifier("one", time.Hour)
	second := NewJWTVerifier("two", time.Hour)
	token, err := second.Issue(Identity{Subject: "s", Role: "instructor"})
	require.NoError(t, err)

	id, err := Chain{first, second}.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "s", id.Subject)

	_, err = Chain{first}.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = Chain{}.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
