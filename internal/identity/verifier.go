package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"tessera.dev/internal/obs"
)

const defaultVerifyTimeout = 5 * time.Second

// TokenVerifier validates a raw bearer token and returns typed claims.
// Every validation failure collapses to ErrUnauthorized; the reason is
// logged internally and never surfaced to the caller.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Claims, error)
}

// StripBearer removes an optional "Bearer " scheme prefix from an
// Authorization header value. The match is case-insensitive.
func StripBearer(header string) string {
	header = strings.TrimSpace(header)
	const scheme = "bearer "
	if len(header) >= len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
		return strings.TrimSpace(header[len(scheme):])
	}
	return header
}

func rejectToken(reason string, err error) error {
	entry := map[string]any{
		"level":  "debug",
		"msg":    "token rejected",
		"reason": reason,
	}
	if err != nil {
		entry["error"] = err.Error()
	}
	obs.Emit(entry)
	return ErrUnauthorized
}

// OIDCVerifier validates tokens against the identity provider's published
// signing keys, discovered from the issuer URL.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
	timeout  time.Duration
}

// NewOIDCVerifier discovers the provider configuration and prepares a
// verifier bound to the expected audience.
func NewOIDCVerifier(ctx context.Context, issuerURL, clientID string, timeout time.Duration) (*OIDCVerifier, error) {
	if strings.TrimSpace(issuerURL) == "" {
		return nil, errors.New("identity: issuer URL is required")
	}
	if strings.TrimSpace(clientID) == "" {
		return nil, errors.New("identity: client id is required")
	}
	if timeout <= 0 {
		timeout = defaultVerifyTimeout
	}
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, err
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		timeout:  timeout,
	}, nil
}

// Verify checks signature, issuer, audience, and expiry, then the token
// class. A timed-out key fetch fails closed like any other failure.
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, rejectToken("empty token", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, rejectToken("oidc verification failed", err)
	}
	var payload struct {
		Username string   `json:"username"`
		Scope    string   `json:"scope"`
		TokenUse string   `json:"token_use"`
		Groups   []string `json:"groups"`
	}
	if err := token.Claims(&payload); err != nil {
		return nil, rejectToken("claim decoding failed", err)
	}
	if payload.TokenUse != TokenUseAccess {
		return nil, rejectToken("unexpected token_use", nil)
	}
	if strings.TrimSpace(token.Subject) == "" {
		return nil, rejectToken("subject missing", nil)
	}
	return &Claims{
		Subject:   token.Subject,
		Username:  payload.Username,
		Scope:     payload.Scope,
		TokenUse:  payload.TokenUse,
		ExpiresAt: token.Expiry.Unix(),
		IssuedAt:  token.IssuedAt.Unix(),
		Groups:    payload.Groups,
	}, nil
}

// StaticVerifier validates HS256 tokens signed with a shared secret. It
// exists for local development and tests, where no identity provider is
// reachable, and applies the same claim checks as the OIDC path.
type StaticVerifier struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewStaticVerifier builds a shared-secret verifier.
func NewStaticVerifier(secret, issuer, audience string) (*StaticVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("identity: static secret is required")
	}
	return &StaticVerifier{
		secret:   []byte(secret),
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
		now:      time.Now,
	}, nil
}

type staticClaims struct {
	Username string   `json:"username"`
	Scope    string   `json:"scope"`
	TokenUse string   `json:"token_use"`
	Groups   []string `json:"groups,omitempty"`
	jwt.RegisteredClaims
}

// Verify parses and validates an HS256 token.
func (v *StaticVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, rejectToken("empty token", nil)
	}
	parsed, err := jwt.ParseWithClaims(rawToken, &staticClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrUnauthorized
		}
		return v.secret, nil
	}, jwt.WithTimeFunc(v.now))
	if err != nil {
		return nil, rejectToken("parse failed", err)
	}
	claims, ok := parsed.Claims.(*staticClaims)
	if !ok || !parsed.Valid {
		return nil, rejectToken("claims invalid", nil)
	}
	if v.issuer != "" && !strings.EqualFold(claims.Issuer, v.issuer) {
		return nil, rejectToken("issuer mismatch", nil)
	}
	if v.audience != "" && !audienceContains(claims.Audience, v.audience) {
		return nil, rejectToken("audience mismatch", nil)
	}
	if claims.TokenUse != TokenUseAccess {
		return nil, rejectToken("unexpected token_use", nil)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, rejectToken("subject missing", nil)
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, rejectToken("timestamps missing", nil)
	}
	return &Claims{
		Subject:   claims.Subject,
		Username:  claims.Username,
		Scope:     claims.Scope,
		TokenUse:  claims.TokenUse,
		ExpiresAt: claims.ExpiresAt.Unix(),
		IssuedAt:  claims.IssuedAt.Unix(),
		Groups:    claims.Groups,
	}, nil
}

// Sign mints an HS256 access token accepted by this verifier. Intended for
// development tooling and tests only; production tokens come from the
// identity provider.
func (v *StaticVerifier) Sign(subject, username, scope string, groups []string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("identity: subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("identity: ttl must be greater than zero")
	}
	now := v.now().UTC()
	claims := staticClaims{
		Username: username,
		Scope:    scope,
		TokenUse: TokenUseAccess,
		Groups:   groups,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func audienceContains(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
