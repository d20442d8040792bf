package identity

import (
	"context"

	"tessera.dev/internal/obs"
)

// IsAuthorized decides admission for a set of required capabilities.
//
// An absent principal is always denied. An empty requirement list admits
// any authenticated principal. A non-empty list admits when the principal
// holds at least ONE of the listed capabilities. The any-of rule is
// deliberate; callers needing all-of compose multiple checks.
//
// On denial a single structured audit line is emitted recording the
// principal, the attempted set, and the held set. Admission has no side
// effect beyond the decision metric.
func IsAuthorized(ctx context.Context, principal *AuthUser, required []string) bool {
	if principal == nil {
		logDenial(ctx, "", required, nil)
		obs.CountAuthDecision(false)
		return false
	}
	if len(required) == 0 {
		obs.CountAuthDecision(true)
		return true
	}
	for _, capability := range required {
		if principal.HasPermission(capability) {
			obs.CountAuthDecision(true)
			return true
		}
	}
	logDenial(ctx, principal.ID(), required, principal.Permissions())
	obs.CountAuthDecision(false)
	return false
}

func logDenial(ctx context.Context, principalID string, required, held []string) {
	entry := map[string]any{
		"level":    "warn",
		"type":     "audit",
		"event":    "authorization.denied",
		"required": required,
		"held":     held,
	}
	if principalID != "" {
		entry["principal_id"] = principalID
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	obs.Emit(entry)
}
