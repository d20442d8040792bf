package identity

import (
	"sort"
	"time"
)

// User is an internal account backed by an external identity-provider
// subject. Users are never physically removed; deletion sets DeletedAt.
type User struct {
	ID        string     `json:"id"`
	Subject   string     `json:"subject"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Disabled  bool       `json:"disabled"`
	Admin     bool       `json:"admin"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Tenant owns roles indirectly through memberships and groups users.
type Tenant struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Role groups permissions. A user holds a role within a tenant via a
// Membership row.
type Role struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Permission is a named, granular capability such as "users:read".
// Names are globally unique.
type Permission struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Membership states that a user holds a role within a tenant. The
// (UserID, TenantID, RoleID) triple is the identity; duplicate live
// triples are a conflict.
type Membership struct {
	UserID    string     `json:"user_id"`
	TenantID  string     `json:"tenant_id"`
	RoleID    string     `json:"role_id"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Grant links a role to a permission it confers.
type Grant struct {
	RoleID       string     `json:"role_id"`
	PermissionID string     `json:"permission_id"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// AuthUser is the request-scoped, immutable answer to "who is calling".
// It carries the union of role names and permission names across every
// live, active membership and holds no reference back to repository state.
type AuthUser struct {
	id       string
	subject  string
	username string
	email    string
	admin    bool
	roles    map[string]struct{}
	perms    map[string]struct{}
}

// NewAuthUser builds the immutable principal. Role and permission names
// are copied and deduplicated.
func NewAuthUser(u *User, roleNames, permNames []string) *AuthUser {
	a := &AuthUser{
		id:       u.ID,
		subject:  u.Subject,
		username: u.Username,
		email:    u.Email,
		admin:    u.Admin,
		roles:    make(map[string]struct{}, len(roleNames)),
		perms:    make(map[string]struct{}, len(permNames)),
	}
	for _, r := range roleNames {
		a.roles[r] = struct{}{}
	}
	for _, p := range permNames {
		a.perms[p] = struct{}{}
	}
	return a
}

func (a *AuthUser) ID() string       { return a.id }
func (a *AuthUser) Subject() string  { return a.subject }
func (a *AuthUser) Username() string { return a.username }
func (a *AuthUser) Email() string    { return a.email }
func (a *AuthUser) Admin() bool      { return a.admin }

// Roles returns the held role names, sorted.
func (a *AuthUser) Roles() []string { return sortedKeys(a.roles) }

// Permissions returns the held permission names, sorted.
func (a *AuthUser) Permissions() []string { return sortedKeys(a.perms) }

// HasRole reports whether the principal holds the named role in any tenant.
func (a *AuthUser) HasRole(name string) bool {
	_, ok := a.roles[name]
	return ok
}

// HasPermission reports whether any held role grants the named capability.
func (a *AuthUser) HasPermission(name string) bool {
	_, ok := a.perms[name]
	return ok
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
