package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// AdminStore is the write surface the admin service orchestrates.
// PGDirectory satisfies it; tests substitute stubs.
type AdminStore interface {
	CreateUser(ctx context.Context, subject, username, email string, admin bool) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	UpdateUser(ctx context.Context, id string, patch map[string]any) (*User, error)
	DeleteUser(ctx context.Context, id string) error

	CreateTenant(ctx context.Context, name, description string) (*Tenant, error)
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	ListTenants(ctx context.Context) ([]*Tenant, error)
	UpdateTenant(ctx context.Context, id string, patch map[string]any) (*Tenant, error)
	DeleteTenant(ctx context.Context, id string) error

	CreateRole(ctx context.Context, name string) (*Role, error)
	GetRole(ctx context.Context, id string) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)
	UpdateRole(ctx context.Context, id string, patch map[string]any) (*Role, error)
	DeleteRole(ctx context.Context, id string) error
	FindRoleByName(ctx context.Context, name string) (*Role, error)

	CreatePermission(ctx context.Context, name string) (*Permission, error)
	GetPermission(ctx context.Context, id string) (*Permission, error)
	ListPermissions(ctx context.Context) ([]*Permission, error)
	DeletePermission(ctx context.Context, id string) error
	FindPermissionByName(ctx context.Context, name string) (*Permission, error)

	GrantPermission(ctx context.Context, roleID, permissionID string) error
	RevokePermission(ctx context.Context, roleID, permissionID string) error
	AssignRole(ctx context.Context, userID, tenantID, roleID string) (*Membership, error)
	RemoveMembership(ctx context.Context, userID, tenantID, roleID string) error
	SetMembershipActive(ctx context.Context, userID, tenantID, roleID string, active bool) error
}

// UserUpdate is a partial user patch; nil fields are untouched.
type UserUpdate struct {
	Username *string
	Email    *string
	Disabled *bool
	Admin    *bool
}

// TenantUpdate is a partial tenant patch.
type TenantUpdate struct {
	Name        *string
	Description *string
}

// RoleUpdate is a partial role patch.
type RoleUpdate struct {
	Name *string
}

// AdminService validates input and orchestrates the store for tenant,
// user, role, and permission management. Business rules for these CRUD
// operations stay thin on purpose; the invariants that matter live in the
// store (soft-delete filtering, duplicate-pair conflicts).
type AdminService struct {
	store AdminStore
}

// NewAdminService constructs the service.
func NewAdminService(store AdminStore) (*AdminService, error) {
	if store == nil {
		return nil, errors.New("identity: admin store is required")
	}
	return &AdminService{store: store}, nil
}

// OnboardUser creates the internal record for an identity-provider subject
// on first successful onboarding. An existing live subject is a conflict.
func (s *AdminService) OnboardUser(ctx context.Context, subject, username, email string) (*User, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email != "" && !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	return s.store.CreateUser(ctx, subject, username, email, false)
}

func (s *AdminService) GetUser(ctx context.Context, id string) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.GetUser(ctx, id)
}

func (s *AdminService) ListUsers(ctx context.Context) ([]*User, error) {
	return s.store.ListUsers(ctx)
}

func (s *AdminService) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	patch := map[string]any{}
	if upd.Username != nil {
		username := strings.TrimSpace(*upd.Username)
		if username == "" {
			return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
		}
		patch["username"] = username
	}
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if email == "" || !strings.Contains(email, "@") {
			return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		patch["email"] = email
	}
	if upd.Disabled != nil {
		patch["disabled"] = *upd.Disabled
	}
	if upd.Admin != nil {
		patch["admin"] = *upd.Admin
	}
	return s.store.UpdateUser(ctx, id, patch)
}

func (s *AdminService) DeleteUser(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.DeleteUser(ctx, id)
}

func (s *AdminService) CreateTenant(ctx context.Context, name, description string) (*Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: tenant name is required", ErrInvalidInput)
	}
	return s.store.CreateTenant(ctx, name, strings.TrimSpace(description))
}

func (s *AdminService) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", ErrInvalidInput)
	}
	return s.store.GetTenant(ctx, id)
}

func (s *AdminService) ListTenants(ctx context.Context) ([]*Tenant, error) {
	return s.store.ListTenants(ctx)
}

func (s *AdminService) UpdateTenant(ctx context.Context, id string, upd TenantUpdate) (*Tenant, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", ErrInvalidInput)
	}
	patch := map[string]any{}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: tenant name is required", ErrInvalidInput)
		}
		patch["name"] = name
	}
	if upd.Description != nil {
		patch["description"] = strings.TrimSpace(*upd.Description)
	}
	return s.store.UpdateTenant(ctx, id, patch)
}

func (s *AdminService) DeleteTenant(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: tenant_id is required", ErrInvalidInput)
	}
	return s.store.DeleteTenant(ctx, id)
}

func (s *AdminService) CreateRole(ctx context.Context, name string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return s.store.CreateRole(ctx, name)
}

func (s *AdminService) GetRole(ctx context.Context, id string) (*Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.GetRole(ctx, id)
}

func (s *AdminService) ListRoles(ctx context.Context) ([]*Role, error) {
	return s.store.ListRoles(ctx)
}

func (s *AdminService) UpdateRole(ctx context.Context, id string, upd RoleUpdate) (*Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	patch := map[string]any{}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
		}
		patch["name"] = name
	}
	return s.store.UpdateRole(ctx, id, patch)
}

func (s *AdminService) DeleteRole(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.DeleteRole(ctx, id)
}

func (s *AdminService) CreatePermission(ctx context.Context, name string) (*Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, " \t") {
		return nil, fmt.Errorf("%w: permission name must be a non-empty token like users:read", ErrInvalidInput)
	}
	return s.store.CreatePermission(ctx, name)
}

func (s *AdminService) GetPermission(ctx context.Context, id string) (*Permission, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: permission_id is required", ErrInvalidInput)
	}
	return s.store.GetPermission(ctx, id)
}

func (s *AdminService) ListPermissions(ctx context.Context) ([]*Permission, error) {
	return s.store.ListPermissions(ctx)
}

func (s *AdminService) DeletePermission(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: permission_id is required", ErrInvalidInput)
	}
	return s.store.DeletePermission(ctx, id)
}

// GrantPermission links a role to a permission by name.
func (s *AdminService) GrantPermission(ctx context.Context, roleID, permissionName string) error {
	roleID = strings.TrimSpace(roleID)
	permissionName = strings.TrimSpace(permissionName)
	if roleID == "" || permissionName == "" {
		return fmt.Errorf("%w: role_id and permission are required", ErrInvalidInput)
	}
	perm, err := s.store.FindPermissionByName(ctx, permissionName)
	if err != nil {
		return err
	}
	return s.store.GrantPermission(ctx, roleID, perm.ID)
}

// RevokePermission removes a role's grant of the named permission.
func (s *AdminService) RevokePermission(ctx context.Context, roleID, permissionName string) error {
	roleID = strings.TrimSpace(roleID)
	permissionName = strings.TrimSpace(permissionName)
	if roleID == "" || permissionName == "" {
		return fmt.Errorf("%w: role_id and permission are required", ErrInvalidInput)
	}
	perm, err := s.store.FindPermissionByName(ctx, permissionName)
	if err != nil {
		return err
	}
	return s.store.RevokePermission(ctx, roleID, perm.ID)
}

// AssignRole grants a user a role within a tenant.
func (s *AdminService) AssignRole(ctx context.Context, userID, tenantID, roleID string) (*Membership, error) {
	userID = strings.TrimSpace(userID)
	tenantID = strings.TrimSpace(tenantID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || tenantID == "" || roleID == "" {
		return nil, fmt.Errorf("%w: user_id, tenant_id and role_id are required", ErrInvalidInput)
	}
	return s.store.AssignRole(ctx, userID, tenantID, roleID)
}

// RemoveMembership revokes a user's role within a tenant.
func (s *AdminService) RemoveMembership(ctx context.Context, userID, tenantID, roleID string) error {
	userID = strings.TrimSpace(userID)
	tenantID = strings.TrimSpace(tenantID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || tenantID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id, tenant_id and role_id are required", ErrInvalidInput)
	}
	return s.store.RemoveMembership(ctx, userID, tenantID, roleID)
}

// SetMembershipActive suspends or restores a membership without deleting it.
func (s *AdminService) SetMembershipActive(ctx context.Context, userID, tenantID, roleID string, active bool) error {
	userID = strings.TrimSpace(userID)
	tenantID = strings.TrimSpace(tenantID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || tenantID == "" || roleID == "" {
		return fmt.Errorf("%w: user_id, tenant_id and role_id are required", ErrInvalidInput)
	}
	return s.store.SetMembershipActive(ctx, userID, tenantID, roleID, active)
}
