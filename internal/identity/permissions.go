package identity

// Built-in capabilities gating the management API. Seeded by migrations.
const (
	PermTenantsRead  = "tenants:read"
	PermTenantsWrite = "tenants:write"
	PermUsersRead    = "users:read"
	PermUsersWrite   = "users:write"
	PermRolesRead    = "roles:read"
	PermRolesWrite   = "roles:write"
)
