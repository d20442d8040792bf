package identity

import (
	"context"
	"errors"
	"strings"
)

// Authenticator is the single entry point request handlers use to learn
// who is calling. It composes the token verifier and the principal
// resolver and carries no state of its own.
type Authenticator struct {
	verifier TokenVerifier
	resolver *Resolver
}

// NewAuthenticator wires the verification pipeline.
func NewAuthenticator(verifier TokenVerifier, resolver *Resolver) (*Authenticator, error) {
	if verifier == nil {
		return nil, errors.New("identity: token verifier is required")
	}
	if resolver == nil {
		return nil, errors.New("identity: resolver is required")
	}
	return &Authenticator{verifier: verifier, resolver: resolver}, nil
}

// ResolveCurrentPrincipal verifies the Authorization header value and
// resolves the principal. A missing token yields (nil, nil), never an
// error; a malformed, invalid, or expired token yields ErrUnauthorized.
// An authenticated but unknown or disabled subject yields (nil, nil).
func (a *Authenticator) ResolveCurrentPrincipal(ctx context.Context, rawAuthorization string) (*AuthUser, error) {
	raw := StripBearer(rawAuthorization)
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	claims, err := a.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return a.resolver.Resolve(ctx, claims)
}
