package middleware

import (
	"context"

	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/recipe-swap/backend/internal/models"
	"github.com/anonto42/recipe-swap/backend/internal/repositories"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// TokenVerifier checks Firebase ID tokens. *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseAuthenticator verifies Firebase ID tokens and maps the Firebase UID
// to a local user, creating the user on first sight.
type FirebaseAuthenticator struct {
	verifier TokenVerifier
	users    repositories.UserRepository
}

func NewFirebaseAuthenticator(verifier TokenVerifier, users repositories.UserRepository) *FirebaseAuthenticator {
	return &FirebaseAuthenticator{verifier: verifier, users: users}
}

func (a *FirebaseAuthenticator) Authenticate(ctx context.Context, idToken string) (uint, error) {
	token, err := a.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		return 0, errors.Wrap(err, "verify id token")
	}

	user, err := a.users.GetUserByFirebaseUID(ctx, token.UID)
	if err == nil {
		return user.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, errors.Wrap(err, "look up firebase user")
	}

	uid := token.UID
	user = &models.User{FirebaseUID: &uid}
	if name, ok := token.Claims["name"].(string); ok {
		user.Name = name
	}
	if email, ok := token.Claims["email"].(string); ok {
		user.Email = email
	}
	if picture, ok := token.Claims["picture"].(string); ok {
		user.AvatarURL = picture
	}
	if err := a.users.CreateUser(ctx, user); err != nil {
		return 0, errors.Wrap(err, "create firebase user")
	}
	return user.ID, nil
}
