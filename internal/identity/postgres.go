package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tessera.dev/internal/ids"
	"tessera.dev/internal/store"
)

var _ Directory = (*PGDirectory)(nil)

// PGDirectory implements the read contract of the resolver and the write
// surface of the admin service on PostgreSQL. Single-id entities go
// through the generic repository; the composite-key join tables and the
// domain lookups have dedicated statements with the same soft-delete
// discipline.
type PGDirectory struct {
	mgr         *store.Manager
	users       *store.Repo[User]
	tenants     *store.Repo[Tenant]
	roles       *store.Repo[Role]
	permissions *store.Repo[Permission]
}

// NewPGDirectory binds the directory to a unit-of-work manager.
func NewPGDirectory(mgr *store.Manager) *PGDirectory {
	return &PGDirectory{
		mgr:         mgr,
		users:       store.NewRepo(mgr, userTable),
		tenants:     store.NewRepo(mgr, tenantTable),
		roles:       store.NewRepo(mgr, roleTable),
		permissions: store.NewRepo(mgr, permissionTable),
	}
}

var userTable = store.Table[User]{
	Name:    "users",
	Columns: []string{"id", "subject", "username", "email", "disabled", "admin", "created_at", "updated_at", "deleted_at"},
	Touch:   true,
	Scan: func(s store.Scanner) (*User, error) {
		var (
			u       User
			deleted sql.NullTime
		)
		if err := s.Scan(&u.ID, &u.Subject, &u.Username, &u.Email, &u.Disabled, &u.Admin, &u.CreatedAt, &u.UpdatedAt, &deleted); err != nil {
			return nil, err
		}
		u.DeletedAt = nullableTime(deleted)
		return &u, nil
	},
}

var tenantTable = store.Table[Tenant]{
	Name:    "tenants",
	Columns: []string{"id", "name", "description", "created_at", "updated_at", "deleted_at"},
	Touch:   true,
	Scan: func(s store.Scanner) (*Tenant, error) {
		var (
			t       Tenant
			deleted sql.NullTime
		)
		if err := s.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt, &t.UpdatedAt, &deleted); err != nil {
			return nil, err
		}
		t.DeletedAt = nullableTime(deleted)
		return &t, nil
	},
}

var roleTable = store.Table[Role]{
	Name:    "roles",
	Columns: []string{"id", "name", "deleted_at"},
	Scan: func(s store.Scanner) (*Role, error) {
		var (
			r       Role
			deleted sql.NullTime
		)
		if err := s.Scan(&r.ID, &r.Name, &deleted); err != nil {
			return nil, err
		}
		r.DeletedAt = nullableTime(deleted)
		return &r, nil
	},
}

var permissionTable = store.Table[Permission]{
	Name:    "permissions",
	Columns: []string{"id", "name", "deleted_at"},
	Scan: func(s store.Scanner) (*Permission, error) {
		var (
			p       Permission
			deleted sql.NullTime
		)
		if err := s.Scan(&p.ID, &p.Name, &deleted); err != nil {
			return nil, err
		}
		p.DeletedAt = nullableTime(deleted)
		return &p, nil
	},
}

// Directory contract -------------------------------------------------------

func (d *PGDirectory) FindUserBySubject(ctx context.Context, subject string) (*User, error) {
	ctx, cancel := d.mgr.StatementContext(ctx)
	defer cancel()
	row := d.mgr.Acquire().QueryRowContext(ctx, `
		select id, subject, username, email, disabled, admin, created_at, updated_at, deleted_at
		from users
		where subject = $1 and deleted_at is null
	`, subject)
	user, err := userTable.Scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (d *PGDirectory) ActiveMembershipsForUser(ctx context.Context, userID string) ([]Membership, error) {
	ctx, cancel := d.mgr.StatementContext(ctx)
	defer cancel()
	rows, err := d.mgr.Acquire().QueryContext(ctx, `
		select m.user_id, m.tenant_id, m.role_id, m.active, m.created_at, m.deleted_at
		from user_tenant_roles m
		join tenants t on t.id = m.tenant_id and t.deleted_at is null
		where m.user_id = $1 and m.active and m.deleted_at is null
		order by m.tenant_id, m.role_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []Membership
	for rows.Next() {
		var (
			m       Membership
			deleted sql.NullTime
		)
		if err := rows.Scan(&m.UserID, &m.TenantID, &m.RoleID, &m.Active, &m.CreatedAt, &deleted); err != nil {
			return nil, err
		}
		m.DeletedAt = nullableTime(deleted)
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return memberships, nil
}

func (d *PGDirectory) RoleNames(ctx context.Context, roleIDs []string) (map[string]string, error) {
	if len(roleIDs) == 0 {
		return map[string]string{}, nil
	}
	query := fmt.Sprintf(`
		select id, name from roles
		where id in (%s) and deleted_at is null
	`, placeholders(len(roleIDs), 1))
	ctx, cancel := d.mgr.StatementContext(ctx)
	defer cancel()
	rows, err := d.mgr.Acquire().QueryContext(ctx, query, asAnySlice(roleIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make(map[string]string, len(roleIDs))
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

func (d *PGDirectory) ActivePermissionsForRoles(ctx context.Context, roleIDs []string) ([]string, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		select distinct p.name
		from role_permissions rp
		join roles r on r.id = rp.role_id and r.deleted_at is null
		join permissions p on p.id = rp.permission_id and p.deleted_at is null
		where rp.role_id in (%s) and rp.deleted_at is null
		order by p.name
	`, placeholders(len(roleIDs), 1))
	ctx, cancel := d.mgr.StatementContext(ctx)
	defer cancel()
	rows, err := d.mgr.Acquire().QueryContext(ctx, query, asAnySlice(roleIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms = append(perms, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

// Entity stores ------------------------------------------------------------

func (d *PGDirectory) CreateUser(ctx context.Context, subject, username, email string, admin bool) (*User, error) {
	user, err := d.users.Create(ctx,
		[]string{"id", "subject", "username", "email", "disabled", "admin"},
		[]any{ids.New(), subject, username, email, false, admin},
	)
	return user, mapStoreErr(err)
}

func (d *PGDirectory) GetUser(ctx context.Context, id string) (*User, error) {
	user, err := d.users.FindByID(ctx, id)
	return user, mapStoreErr(err)
}

func (d *PGDirectory) ListUsers(ctx context.Context) ([]*User, error) {
	users, err := d.users.FindAll(ctx)
	return users, mapStoreErr(err)
}

func (d *PGDirectory) UpdateUser(ctx context.Context, id string, patch map[string]any) (*User, error) {
	user, err := d.users.Update(ctx, id, patch)
	return user, mapStoreErr(err)
}

func (d *PGDirectory) DeleteUser(ctx context.Context, id string) error {
	return mapStoreErr(d.users.Delete(ctx, id))
}

func (d *PGDirectory) CreateTenant(ctx context.Context, name, description string) (*Tenant, error) {
	tenant, err := d.tenants.Create(ctx,
		[]string{"id", "name", "description"},
		[]any{ids.New(), name, description},
	)
	return tenant, mapStoreErr(err)
}

func (d *PGDirectory) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	tenant, err := d.tenants.FindByID(ctx, id)
	return tenant, mapStoreErr(err)
}

func (d *PGDirectory) ListTenants(ctx context.Context) ([]*Tenant, error) {
	tenants, err := d.tenants.FindAll(ctx)
	return tenants, mapStoreErr(err)
}

func (d *PGDirectory) UpdateTenant(ctx context.Context, id string, patch map[string]any) (*Tenant, error) {
	tenant, err := d.tenants.Update(ctx, id, patch)
	return tenant, mapStoreErr(err)
}

func (d *PGDirectory) DeleteTenant(ctx context.Context, id string) error {
	return mapStoreErr(d.tenants.Delete(ctx, id))
}

func (d *PGDirectory) CreateRole(ctx context.Context, name string) (*Role, error) {
	role, err := d.roles.Create(ctx, []string{"id", "name"}, []any{ids.New(), name})
	return role, mapStoreErr(err)
}

func (d *PGDirectory) GetRole(ctx context.Context, id string) (*Role, error) {
	role, err := d.roles.FindByID(ctx, id)
	return role, mapStoreErr(err)
}

func (d *PGDirectory) ListRoles(ctx context.Context) ([]*Role, error) {
	roles, err := d.roles.FindAll(ctx)
	return roles, mapStoreErr(err)
}

func (d *PGDirectory) UpdateRole(ctx context.Context, id string, patch map[string]any) (*Role, error) {
	role, err := d.roles.Update(ctx, id, patch)
	return role, mapStoreErr(err)
}

func (d *PGDirectory) DeleteRole(ctx context.Context, id string) error {
	return mapStoreErr(d.roles.Delete(ctx, id))
}

// FindRoleByName resolves a live role by its unique name.
func (d *PGDirectory) FindRoleByName(ctx context.Context, name string) (*Role, error) {
	ctx, cancel := d.mgr.StatementContext(ctx)
	defer cancel()
	row := d.mgr.Acquire().QueryRowContext(ctx, `
		select id, name, deleted_at from roles
		where name = $1 and deleted_at is null
	`, name)
	role, err := roleTable.Scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return role, nil
}

func (d *PGDirectory) CreatePermission(ctx context.Context, name string) (*Permission, error) {
	perm, err := d.permissions.Create(ctx, []string{"id", "name"}, []any{ids.New(), name})
	return perm, mapStoreErr(err)
}

func (d *PGDirectory) GetPermission(ctx context.Context, id string) (*Permission, error) {
	perm, err := d.permissions.FindByID(ctx, id)
	return perm, mapStoreErr(err)
}

func (d *PGDirectory) ListPermissions(ctx context.Context) ([]*Permission, error) {
	perms, err := d.permissions.FindAll(ctx)
	return perms, mapStoreErr(err)
}

func (d *PGDirectory) DeletePermission(ctx context.Context, id string) error {
	return mapStoreErr(d.permissions.Delete(ctx, id))
}

// FindPermissionByName resolves a live permission by its unique name.
func (d *PGDirectory) FindPermissionByName(ctx context.Context, name string) (*Permission, error) {
	ctx, cancel := d.mgr.StatementContext(ctx)
	defer cancel()
	row := d.mgr.Acquire().QueryRowContext(ctx, `
		select id, name, deleted_at from permissions
		where name = $1 and deleted_at is null
	`, name)
	perm, err := permissionTable.Scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return perm, nil
}

// Join tables --------------------------------------------------------------

// GrantPermission links a role to a permission. Both sides must still be
// live; a soft-deleted role or permission yields ErrNotFound. A duplicate
// live pair is a conflict; the unique partial index enforces it.
func (d *PGDirectory) GrantPermission(ctx context.Context, roleID, permissionID string) error {
	ctx, cancel := d.mgr.StatementContext(ctx)
	defer cancel()
	res, err := d.mgr.Acquire().ExecContext(ctx, `
		insert into role_permissions (role_id, permission_id)
		select r.id, p.id
		from roles r, permissions p
		where r.id = $1 and r.deleted_at is null
		  and p.id = $2 and p.deleted_at is null
	`, roleID, permissionID)
	if err != nil {
		return mapPgWriteErr(err)
	}
	return requireAffected(res)
}

// RevokePermission soft-deletes a live role-permission link.
func (d *PGDirectory) RevokePermission(ctx context.Context, roleID, permissionID string) error {
	ctx, cancel := d.mgr.StatementContext(ctx)
	defer cancel()
	res, err := d.mgr.Acquire().ExecContext(ctx, `
		update role_permissions set deleted_at = now()
		where role_id = $1 and permission_id = $2 and deleted_at is null
	`, roleID, permissionID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// AssignRole records that a user holds a role within a tenant. All three
// parents must still be live; a missing or soft-deleted one yields
// ErrNotFound.
func (d *PGDirectory) AssignRole(ctx context.Context, userID, tenantID, roleID string) (*Membership, error) {
	ctx, cancel := d.mgr.StatementContext(ctx)
	defer cancel()
	row := d.mgr.Acquire().QueryRowContext(ctx, `
		insert into user_tenant_roles (user_id, tenant_id, role_id, active)
		select u.id, t.id, r.id, true
		from users u, tenants t, roles r
		where u.id = $1 and u.deleted_at is null
		  and t.id = $2 and t.deleted_at is null
		  and r.id = $3 and r.deleted_at is null
		returning user_id, tenant_id, role_id, active, created_at, deleted_at
	`, userID, tenantID, roleID)
	var (
		m       Membership
		deleted sql.NullTime
	)
	if err := row.Scan(&m.UserID, &m.TenantID, &m.RoleID, &m.Active, &m.CreatedAt, &deleted); err != nil {
		return nil, mapPgWriteErr(err)
	}
	m.DeletedAt = nullableTime(deleted)
	return &m, nil
}

// RemoveMembership soft-deletes a live membership.
func (d *PGDirectory) RemoveMembership(ctx context.Context, userID, tenantID, roleID string) error {
	ctx, cancel := d.mgr.StatementContext(ctx)
	defer cancel()
	res, err := d.mgr.Acquire().ExecContext(ctx, `
		update user_tenant_roles set deleted_at = now()
		where user_id = $1 and tenant_id = $2 and role_id = $3 and deleted_at is null
	`, userID, tenantID, roleID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// SetMembershipActive toggles a live membership without deleting it.
func (d *PGDirectory) SetMembershipActive(ctx context.Context, userID, tenantID, roleID string, active bool) error {
	ctx, cancel := d.mgr.StatementContext(ctx)
	defer cancel()
	res, err := d.mgr.Acquire().ExecContext(ctx, `
		update user_tenant_roles set active = $4
		where user_id = $1 and tenant_id = $2 and role_id = $3 and deleted_at is null
	`, userID, tenantID, roleID, active)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// helpers ------------------------------------------------------------------

func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, err)
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %s", ErrConflict, err)
	}
	return err
}

func mapPgWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	switch store.PgErrorCode(err) {
	case "23505":
		return ErrConflict
	case "23503":
		return ErrNotFound
	}
	return err
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// placeholders renders "$start, $start+1, ..." for IN lists.
func placeholders(n, start int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

func asAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
