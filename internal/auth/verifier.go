package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/lecturehall/backend/internal/models"
)

// Identity is the verified identity of a connecting client.
type Identity struct {
	UserID      uuid.UUID
	Email       string
	DisplayName string
	Role        string
}

// TokenStore looks up a user by opaque API token. Satisfied by *Repository.
type TokenStore interface {
	GetByAPIToken(ctx context.Context, token string) (*models.User, error)
}

// Verifier validates bearer credentials. It tries JWT first and falls back to
// an opaque per-user API token looked up in the store when JWT parsing fails.
type Verifier struct {
	jwt   *JWTService
	store TokenStore
}

// NewVerifier creates a credential verifier.
func NewVerifier(jwt *JWTService, store TokenStore) *Verifier {
	return &Verifier{jwt: jwt, store: store}
}

// Verify resolves a bearer credential to an identity.
// Returns ErrTokenRequired for empty credentials and ErrInvalidToken when
// neither scheme accepts the credential.
func (v *Verifier) Verify(ctx context.Context, credential string) (*Identity, error) {
	if credential == "" {
		return nil, ErrTokenRequired
	}
	if claims, err := v.jwt.Validate(credential); err == nil {
		return &Identity{
			UserID:      claims.UserID,
			Email:       claims.Email,
			DisplayName: claims.DisplayName,
			Role:        claims.Role,
		}, nil
	}
	if v.store != nil {
		if u, err := v.store.GetByAPIToken(ctx, credential); err == nil && u != nil {
			return &Identity{
				UserID:      u.ID,
				Email:       u.Email,
				DisplayName: u.DisplayName,
				Role:        string(u.Role),
			}, nil
		}
	}
	return nil, ErrInvalidToken
}
