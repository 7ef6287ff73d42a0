package consultation

import (
	"context"
	"errors"

	"github.com/upstac/upstac/internal/domain/testrequest"
	"github.com/upstac/upstac/internal/platform/auth"
)

// ErrUnauthenticated is returned by an IdentityProvider when the request
// carries no authenticated user.
var ErrUnauthenticated = errors.New("no authenticated user")

// IdentityProvider resolves the doctor making the current request.
type IdentityProvider interface {
	CurrentDoctor(ctx context.Context) (testrequest.Doctor, error)
}

// IdentityFunc adapts a function to IdentityProvider.
type IdentityFunc func(ctx context.Context) (testrequest.Doctor, error)

func (f IdentityFunc) CurrentDoctor(ctx context.Context) (testrequest.Doctor, error) {
	return f(ctx)
}

// ContextIdentity reads the doctor from the claims the auth middleware put
// on the request context.
type ContextIdentity struct{}

func (ContextIdentity) CurrentDoctor(ctx context.Context) (testrequest.Doctor, error) {
	id := auth.UserIDFromContext(ctx)
	if id == "" {
		return testrequest.Doctor{}, ErrUnauthenticated
	}
	return testrequest.Doctor{ID: id, Name: auth.UserNameFromContext(ctx)}, nil
}
