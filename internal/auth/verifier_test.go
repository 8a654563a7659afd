package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lecturehall/backend/internal/models"
)

type fakeTokenStore struct {
	users map[string]*models.User
}

func (f *fakeTokenStore) GetByAPIToken(_ context.Context, token string) (*models.User, error) {
	u, ok := f.users[token]
	if !ok {
		return nil, errors.New("not found")
	}
	return u, nil
}

func TestJWTRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", 1)
	userID := uuid.New()

	token, err := svc.Generate(userID, "a@b.c", "Ada", "instructor")
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "a@b.c", claims.Email)
	assert.Equal(t, "Ada", claims.DisplayName)
	assert.Equal(t, "instructor", claims.Role)
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTService("secret-one", 1).Generate(uuid.New(), "a@b.c", "Ada", "student")
	require.NoError(t, err)

	_, err = NewJWTService("secret-two", 1).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTRejectsExpired(t *testing.T) {
	svc := NewJWTService("test-secret", -1)
	token, err := svc.Generate(uuid.New(), "a@b.c", "Ada", "student")
	require.NoError(t, err)

	_, err = svc.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifierEmptyCredential(t *testing.T) {
	v := NewVerifier(NewJWTService("test-secret", 1), nil)
	_, err := v.Verify(context.Background(), "")
	assert.ErrorIs(t, err, ErrTokenRequired)
}

func TestVerifierJWT(t *testing.T) {
	svc := NewJWTService("test-secret", 1)
	userID := uuid.New()
	token, err := svc.Generate(userID, "a@b.c", "Ada", "admin")
	require.NoError(t, err)

	v := NewVerifier(svc, nil)
	id, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, userID, id.UserID)
	assert.Equal(t, "admin", id.Role)
}

func TestVerifierAPITokenFallback(t *testing.T) {
	userID := uuid.New()
	store := &fakeTokenStore{users: map[string]*models.User{
		"opaque-token": {ID: userID, Email: "a@b.c", DisplayName: "Ada", Role: models.RoleStudent},
	}}
	v := NewVerifier(NewJWTService("test-secret", 1), store)

	id, err := v.Verify(context.Background(), "opaque-token")
	require.NoError(t, err)
	assert.Equal(t, userID, id.UserID)
	assert.Equal(t, "student", id.Role)
}

func TestVerifierRejectsUnknownCredential(t *testing.T) {
	v := NewVerifier(NewJWTService("test-secret", 1), &fakeTokenStore{users: map[string]*models.User{}})
	_, err := v.Verify(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
