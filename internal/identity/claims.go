package identity

// TokenUseAccess is the only token class accepted for API calls.
const TokenUseAccess = "access"

// Claims are the structured fields extracted from a verified bearer token.
type Claims struct {
	Subject   string   `json:"sub"`
	Username  string   `json:"username"`
	Scope     string   `json:"scope"`
	TokenUse  string   `json:"token_use"`
	ExpiresAt int64    `json:"exp"`
	IssuedAt  int64    `json:"iat"`
	Groups    []string `json:"groups,omitempty"`
}
