// Package identity is the boundary with the external identity provider.
// Verification happens there; this package only carries the verified
// {account id, email} pair through the request and trusts it
// unconditionally once present.
package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Identity is a verified account identity.
type Identity struct {
	AccountID uuid.UUID
	Email     string
}

// ErrNoIdentity indicates the request context carries no verified identity.
var ErrNoIdentity = errors.New("no verified identity in context")

type ctxKey struct{}

// WithIdentity returns a context carrying the verified identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the verified identity from the context.
func FromContext(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	if !ok {
		return Identity{}, ErrNoIdentity
	}
	return id, nil
}
