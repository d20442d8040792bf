package identity

import (
	"context"
	"errors"
	"strings"
)

// Directory is the read contract the resolver consumes. Collection
// lookups return empty slices when nothing matches; the single-entity
// lookup fails with ErrNotFound.
type Directory interface {
	// FindUserBySubject resolves the live user record for an external
	// identity-provider subject.
	FindUserBySubject(ctx context.Context, subject string) (*User, error)

	// ActiveMembershipsForUser returns the user's memberships that are
	// active and not soft-deleted.
	ActiveMembershipsForUser(ctx context.Context, userID string) ([]Membership, error)

	// RoleNames maps role ids to names for live roles only. Soft-deleted
	// roles are silently dropped from the result.
	RoleNames(ctx context.Context, roleIDs []string) (map[string]string, error)

	// ActivePermissionsForRoles returns the deduplicated union of
	// permission names granted by the given roles, excluding soft-deleted
	// roles, grants, and permissions. One batched query regardless of the
	// number of roles.
	ActivePermissionsForRoles(ctx context.Context, roleIDs []string) ([]string, error)
}

// Resolver turns verified claims into an AuthUser, or determines there is
// none. Absence (nil, nil) is not an error: unknown subjects, disabled
// users, and soft-deleted users all resolve to "no principal".
type Resolver struct {
	dir Directory
}

// NewResolver constructs a Resolver.
func NewResolver(dir Directory) (*Resolver, error) {
	if dir == nil {
		return nil, errors.New("identity: directory is required")
	}
	return &Resolver{dir: dir}, nil
}

// Resolve aggregates roles and permissions across all active tenant
// memberships into a fresh AuthUser. The role-name and role-permission
// lookups are batched across the unique role set.
func (r *Resolver) Resolve(ctx context.Context, claims *Claims) (*AuthUser, error) {
	if claims == nil || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrUnauthorized
	}

	user, err := r.dir.FindUserBySubject(ctx, claims.Subject)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, Internal("resolver.user_lookup", err)
	}
	if user.Disabled || user.DeletedAt != nil {
		return nil, nil
	}

	memberships, err := r.dir.ActiveMembershipsForUser(ctx, user.ID)
	if err != nil {
		return nil, Internal("resolver.memberships", err)
	}

	roleIDs := uniqueRoleIDs(memberships)
	if len(roleIDs) == 0 {
		return NewAuthUser(user, nil, nil), nil
	}

	names, err := r.dir.RoleNames(ctx, roleIDs)
	if err != nil {
		return nil, Internal("resolver.role_names", err)
	}
	liveRoleIDs := make([]string, 0, len(names))
	roleNames := make([]string, 0, len(names))
	for _, id := range roleIDs {
		if name, ok := names[id]; ok {
			liveRoleIDs = append(liveRoleIDs, id)
			roleNames = append(roleNames, name)
		}
	}
	if len(liveRoleIDs) == 0 {
		return NewAuthUser(user, nil, nil), nil
	}

	perms, err := r.dir.ActivePermissionsForRoles(ctx, liveRoleIDs)
	if err != nil {
		return nil, Internal("resolver.permissions", err)
	}
	return NewAuthUser(user, roleNames, perms), nil
}

func uniqueRoleIDs(memberships []Membership) []string {
	seen := make(map[string]struct{}, len(memberships))
	var out []string
	for _, m := range memberships {
		if _, ok := seen[m.RoleID]; ok {
			continue
		}
		seen[m.RoleID] = struct{}{}
		out = append(out, m.RoleID)
	}
	return out
}
