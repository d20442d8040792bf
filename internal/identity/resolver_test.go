package identity

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type stubDirectory struct {
	findUserBySubject         func(ctx context.Context, subject string) (*User, error)
	activeMembershipsForUser  func(ctx context.Context, userID string) ([]Membership, error)
	roleNames                 func(ctx context.Context, roleIDs []string) (map[string]string, error)
	activePermissionsForRoles func(ctx context.Context, roleIDs []string) ([]string, error)
}

func (s *stubDirectory) FindUserBySubject(ctx context.Context, subject string) (*User, error) {
	return s.findUserBySubject(ctx, subject)
}

func (s *stubDirectory) ActiveMembershipsForUser(ctx context.Context, userID string) ([]Membership, error) {
	return s.activeMembershipsForUser(ctx, userID)
}

func (s *stubDirectory) RoleNames(ctx context.Context, roleIDs []string) (map[string]string, error) {
	return s.roleNames(ctx, roleIDs)
}

func (s *stubDirectory) ActivePermissionsForRoles(ctx context.Context, roleIDs []string) ([]string, error) {
	return s.activePermissionsForRoles(ctx, roleIDs)
}

func testUser() *User {
	return &User{ID: "u-1", Subject: "sub-1", Username: "alice", Email: "alice@example.com"}
}

func TestResolveRejectsEmptyClaims(t *testing.T) {
	r, err := NewResolver(&stubDirectory{})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if _, err := r.Resolve(context.Background(), nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("nil claims: expected ErrUnauthorized, got %v", err)
	}
	if _, err := r.Resolve(context.Background(), &Claims{Subject: "  "}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("blank subject: expected ErrUnauthorized, got %v", err)
	}
}

func TestResolveUnknownSubjectIsAbsent(t *testing.T) {
	dir := &stubDirectory{
		findUserBySubject: func(ctx context.Context, subject string) (*User, error) {
			return nil, ErrNotFound
		},
	}
	r, _ := NewResolver(dir)
	principal, err := r.Resolve(context.Background(), &Claims{Subject: "nobody"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if principal != nil {
		t.Fatal("unknown subject must resolve to no principal")
	}
}

func TestResolveDisabledUserIsAbsent(t *testing.T) {
	user := testUser()
	user.Disabled = true
	dir := &stubDirectory{
		findUserBySubject: func(ctx context.Context, subject string) (*User, error) {
			return user, nil
		},
	}
	r, _ := NewResolver(dir)
	principal, err := r.Resolve(context.Background(), &Claims{Subject: "sub-1"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if principal != nil {
		t.Fatal("disabled user must resolve to no principal")
	}
}

func TestResolveAggregatesAcrossTenants(t *testing.T) {
	dir := &stubDirectory{
		findUserBySubject: func(ctx context.Context, subject string) (*User, error) {
			return testUser(), nil
		},
		activeMembershipsForUser: func(ctx context.Context, userID string) ([]Membership, error) {
			return []Membership{
				{UserID: "u-1", TenantID: "t-1", RoleID: "r-ops", Active: true},
				{UserID: "u-1", TenantID: "t-2", RoleID: "r-ops", Active: true},
				{UserID: "u-1", TenantID: "t-2", RoleID: "r-audit", Active: true},
			}, nil
		},
		roleNames: func(ctx context.Context, roleIDs []string) (map[string]string, error) {
			if len(roleIDs) != 2 {
				t.Fatalf("role lookup should batch unique ids, got %v", roleIDs)
			}
			return map[string]string{"r-ops": "ops", "r-audit": "auditor"}, nil
		},
		activePermissionsForRoles: func(ctx context.Context, roleIDs []string) ([]string, error) {
			// Union of {users:read, users:write} and {users:read, tenants:read}.
			return []string{"tenants:read", "users:read", "users:write"}, nil
		},
	}
	r, _ := NewResolver(dir)
	principal, err := r.Resolve(context.Background(), &Claims{Subject: "sub-1"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if principal == nil {
		t.Fatal("expected a principal")
	}
	if got := principal.Roles(); !reflect.DeepEqual(got, []string{"auditor", "ops"}) {
		t.Fatalf("unexpected roles: %v", got)
	}
	if got := principal.Permissions(); !reflect.DeepEqual(got, []string{"tenants:read", "users:read", "users:write"}) {
		t.Fatalf("unexpected permissions: %v", got)
	}
	if !principal.HasPermission("users:write") || principal.HasPermission("roles:write") {
		t.Fatal("permission membership checks are wrong")
	}
}

func TestResolveNoMembershipsYieldsEmptySets(t *testing.T) {
	dir := &stubDirectory{
		findUserBySubject: func(ctx context.Context, subject string) (*User, error) {
			return testUser(), nil
		},
		activeMembershipsForUser: func(ctx context.Context, userID string) ([]Membership, error) {
			return nil, nil
		},
	}
	r, _ := NewResolver(dir)
	principal, err := r.Resolve(context.Background(), &Claims{Subject: "sub-1"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if principal == nil {
		t.Fatal("member of no tenant still authenticates")
	}
	if len(principal.Roles()) != 0 || len(principal.Permissions()) != 0 {
		t.Fatalf("expected empty sets, got roles=%v perms=%v", principal.Roles(), principal.Permissions())
	}
}

func TestResolveDropsSoftDeletedRoles(t *testing.T) {
	var permLookup []string
	dir := &stubDirectory{
		findUserBySubject: func(ctx context.Context, subject string) (*User, error) {
			return testUser(), nil
		},
		activeMembershipsForUser: func(ctx context.Context, userID string) ([]Membership, error) {
			return []Membership{
				{UserID: "u-1", TenantID: "t-1", RoleID: "r-live", Active: true},
				{UserID: "u-1", TenantID: "t-1", RoleID: "r-dead", Active: true},
			}, nil
		},
		roleNames: func(ctx context.Context, roleIDs []string) (map[string]string, error) {
			return map[string]string{"r-live": "ops"}, nil
		},
		activePermissionsForRoles: func(ctx context.Context, roleIDs []string) ([]string, error) {
			permLookup = roleIDs
			return []string{"users:read"}, nil
		},
	}
	r, _ := NewResolver(dir)
	principal, err := r.Resolve(context.Background(), &Claims{Subject: "sub-1"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := principal.Roles(); !reflect.DeepEqual(got, []string{"ops"}) {
		t.Fatalf("deleted role leaked into roles: %v", got)
	}
	if !reflect.DeepEqual(permLookup, []string{"r-live"}) {
		t.Fatalf("permission lookup should only see live roles, got %v", permLookup)
	}
}

func TestResolveMasksDirectoryFailures(t *testing.T) {
	dir := &stubDirectory{
		findUserBySubject: func(ctx context.Context, subject string) (*User, error) {
			return nil, errors.New("connection refused")
		},
	}
	r, _ := NewResolver(dir)
	_, err := r.Resolve(context.Background(), &Claims{Subject: "sub-1"})
	var internal *InternalError
	if !errors.As(err, &internal) {
		t.Fatalf("expected masked internal error, got %v", err)
	}
	if internal.CorrelationID == "" {
		t.Fatal("expected a correlation id")
	}
}
