package identity

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"tessera.dev/internal/store"
)

func newMockDirectory(t *testing.T) (*PGDirectory, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return NewPGDirectory(store.NewManager(db)), mock, db
}

func TestFindUserBySubject(t *testing.T) {
	dir, mock, db := newMockDirectory(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("select id, subject, username, email, disabled, admin, created_at, updated_at, deleted_at").
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "subject", "username", "email", "disabled", "admin", "created_at", "updated_at", "deleted_at"}).
			AddRow("u-1", "sub-1", "alice", "alice@example.com", false, false, now, now, nil))

	user, err := dir.FindUserBySubject(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("FindUserBySubject: %v", err)
	}
	if user.ID != "u-1" || user.Username != "alice" || user.DeletedAt != nil {
		t.Fatalf("unexpected user: %+v", user)
	}

	mock.ExpectQuery("select id, subject, username, email, disabled, admin, created_at, updated_at, deleted_at").
		WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)
	if _, err := dir.FindUserBySubject(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestActiveMembershipsForUserJoinsLiveTenants(t *testing.T) {
	dir, mock, db := newMockDirectory(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("from user_tenant_roles m").
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "tenant_id", "role_id", "active", "created_at", "deleted_at"}).
			AddRow("u-1", "t-1", "r-1", true, now, nil).
			AddRow("u-1", "t-2", "r-2", true, now, nil))

	memberships, err := dir.ActiveMembershipsForUser(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("ActiveMembershipsForUser: %v", err)
	}
	if len(memberships) != 2 || memberships[0].TenantID != "t-1" || memberships[1].RoleID != "r-2" {
		t.Fatalf("unexpected memberships: %+v", memberships)
	}
}

func TestRoleNamesBatchesAndSkipsDeleted(t *testing.T) {
	dir, mock, db := newMockDirectory(t)
	defer db.Close()

	names, err := dir.RoleNames(context.Background(), nil)
	if err != nil || len(names) != 0 {
		t.Fatalf("empty input should short-circuit, got %v %v", names, err)
	}

	mock.ExpectQuery("select id, name from roles").
		WithArgs("r-1", "r-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("r-1", "ops"))

	names, err = dir.RoleNames(context.Background(), []string{"r-1", "r-2"})
	if err != nil {
		t.Fatalf("RoleNames: %v", err)
	}
	if len(names) != 1 || names["r-1"] != "ops" {
		t.Fatalf("unexpected names: %v", names)
	}
}

func TestActivePermissionsForRoles(t *testing.T) {
	dir, mock, db := newMockDirectory(t)
	defer db.Close()

	mock.ExpectQuery("select distinct p.name").
		WithArgs("r-1", "r-2").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("users:read").AddRow("users:write"))

	perms, err := dir.ActivePermissionsForRoles(context.Background(), []string{"r-1", "r-2"})
	if err != nil {
		t.Fatalf("ActivePermissionsForRoles: %v", err)
	}
	if len(perms) != 2 || perms[0] != "users:read" {
		t.Fatalf("unexpected permissions: %v", perms)
	}
}

func TestCreateUserMapsConflict(t *testing.T) {
	dir, mock, db := newMockDirectory(t)
	defer db.Close()

	mock.ExpectQuery("insert into users").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := dir.CreateUser(context.Background(), "sub-1", "alice", "", false)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestGrantPermissionDuplicateIsConflict(t *testing.T) {
	dir, mock, db := newMockDirectory(t)
	defer db.Close()

	mock.ExpectExec("insert into role_permissions").
		WithArgs("r-1", "p-1").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	if err := dir.GrantPermission(context.Background(), "r-1", "p-1"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestGrantPermissionUnknownRoleIsNotFound(t *testing.T) {
	dir, mock, db := newMockDirectory(t)
	defer db.Close()

	// The insert selects from the live parents, so a missing or
	// soft-deleted role matches nothing.
	mock.ExpectExec("insert into role_permissions").
		WithArgs("r-missing", "p-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := dir.GrantPermission(context.Background(), "r-missing", "p-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGrantPermissionDeletedPermissionIsNotFound(t *testing.T) {
	dir, mock, db := newMockDirectory(t)
	defer db.Close()

	mock.ExpectExec("insert into role_permissions").
		WithArgs("r-1", "p-gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := dir.GrantPermission(context.Background(), "r-1", "p-gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAssignRoleReturnsMembership(t *testing.T) {
	dir, mock, db := newMockDirectory(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("insert into user_tenant_roles").
		WithArgs("u-1", "t-1", "r-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "tenant_id", "role_id", "active", "created_at", "deleted_at"}).
			AddRow("u-1", "t-1", "r-1", true, now, nil))

	m, err := dir.AssignRole(context.Background(), "u-1", "t-1", "r-1")
	if err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	if m.UserID != "u-1" || m.TenantID != "t-1" || m.RoleID != "r-1" || !m.Active {
		t.Fatalf("unexpected membership: %+v", m)
	}
}

func TestAssignRoleDeletedParentIsNotFound(t *testing.T) {
	dir, mock, db := newMockDirectory(t)
	defer db.Close()

	// No live user/tenant/role triple matches, so the insert returns no row.
	mock.ExpectQuery("insert into user_tenant_roles").
		WithArgs("u-1", "t-gone", "r-1").
		WillReturnError(sql.ErrNoRows)

	if _, err := dir.AssignRole(context.Background(), "u-1", "t-gone", "r-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemoveMembershipRequiresLiveRow(t *testing.T) {
	dir, mock, db := newMockDirectory(t)
	defer db.Close()

	mock.ExpectExec("update user_tenant_roles set deleted_at").
		WithArgs("u-1", "t-1", "r-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := dir.RemoveMembership(context.Background(), "u-1", "t-1", "r-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for absent membership, got %v", err)
	}
}

func TestSetMembershipActive(t *testing.T) {
	dir, mock, db := newMockDirectory(t)
	defer db.Close()

	mock.ExpectExec("update user_tenant_roles set active").
		WithArgs("u-1", "t-1", "r-1", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := dir.SetMembershipActive(context.Background(), "u-1", "t-1", "r-1", false); err != nil {
		t.Fatalf("SetMembershipActive: %v", err)
	}
}

func TestDeleteUserSoftDeleteTwiceFails(t *testing.T) {
	dir, mock, db := newMockDirectory(t)
	defer db.Close()

	mock.ExpectExec("update users set deleted_at").
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update users set deleted_at").
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	if err := dir.DeleteUser(ctx, "u-1"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if err := dir.DeleteUser(ctx, "u-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should fail with ErrNotFound, got %v", err)
	}
}
