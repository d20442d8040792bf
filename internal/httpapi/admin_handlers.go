package httpapi

import (
	"net/http"

	"tessera.dev/internal/audit"
	"tessera.dev/internal/identity"
	"tessera.dev/internal/ids"
)

// pathID reads the {id} path segment and rejects anything that is not a
// well-formed identifier before a query runs. Malformed ids cannot match a
// row, so the response is the same not-found the lookup would produce.
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if !ids.Valid(id) {
		respondError(w, http.StatusNotFound, "not found")
		return "", false
	}
	return id, true
}

// Users ---------------------------------------------------------------------

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermUsersWrite); err != nil {
		respondFromError(w, err)
		return
	}
	var req struct {
		Subject  string `json:"subject"`
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := a.admin.OnboardUser(r.Context(), req.Subject, req.Username, req.Email)
	if err != nil {
		respondFromError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.onboarded", map[string]any{"user_id": user.ID, "subject": user.Subject})
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermUsersRead); err != nil {
		respondFromError(w, err)
		return
	}
	users, err := a.admin.ListUsers(r.Context())
	if err != nil {
		respondFromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermUsersRead); err != nil {
		respondFromError(w, err)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	user, err := a.admin.GetUser(r.Context(), id)
	if err != nil {
		respondFromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermUsersWrite); err != nil {
		respondFromError(w, err)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Username *string `json:"username"`
		Email    *string `json:"email"`
		Disabled *bool   `json:"disabled"`
		Admin    *bool   `json:"admin"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := a.admin.UpdateUser(r.Context(), id, identity.UserUpdate{
		Username: req.Username,
		Email:    req.Email,
		Disabled: req.Disabled,
		Admin:    req.Admin,
	})
	if err != nil {
		respondFromError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.updated", map[string]any{"user_id": user.ID})
	writeJSON(w, http.StatusOK, user)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermUsersWrite); err != nil {
		respondFromError(w, err)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.admin.DeleteUser(r.Context(), id); err != nil {
		respondFromError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "user.deleted", map[string]any{"user_id": id})
	w.WriteHeader(http.StatusNoContent)
}

// Tenants -------------------------------------------------------------------

func (a *API) createTenant(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermTenantsWrite); err != nil {
		respondFromError(w, err)
		return
	}
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tenant, err := a.admin.CreateTenant(r.Context(), req.Name, req.Description)
	if err != nil {
		respondFromError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "tenant.created", map[string]any{"tenant_id": tenant.ID, "name": tenant.Name})
	writeJSON(w, http.StatusCreated, tenant)
}

func (a *API) listTenants(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermTenantsRead); err != nil {
		respondFromError(w, err)
		return
	}
	tenants, err := a.admin.ListTenants(r.Context())
	if err != nil {
		respondFromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenants": tenants})
}

func (a *API) getTenant(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermTenantsRead); err != nil {
		respondFromError(w, err)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	tenant, err := a.admin.GetTenant(r.Context(), id)
	if err != nil {
		respondFromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

func (a *API) updateTenant(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermTenantsWrite); err != nil {
		respondFromError(w, err)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tenant, err := a.admin.UpdateTenant(r.Context(), id, identity.TenantUpdate{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		respondFromError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "tenant.updated", map[string]any{"tenant_id": tenant.ID})
	writeJSON(w, http.StatusOK, tenant)
}

func (a *API) deleteTenant(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermTenantsWrite); err != nil {
		respondFromError(w, err)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.admin.DeleteTenant(r.Context(), id); err != nil {
		respondFromError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "tenant.deleted", map[string]any{"tenant_id": id})
	w.WriteHeader(http.StatusNoContent)
}

// Roles ---------------------------------------------------------------------

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermRolesWrite); err != nil {
		respondFromError(w, err)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	role, err := a.admin.CreateRole(r.Context(), req.Name)
	if err != nil {
		respondFromError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.created", map[string]any{"role_id": role.ID, "name": role.Name})
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermRolesRead); err != nil {
		respondFromError(w, err)
		return
	}
	roles, err := a.admin.ListRoles(r.Context())
	if err != nil {
		respondFromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) getRole(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermRolesRead); err != nil {
		respondFromError(w, err)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	role, err := a.admin.GetRole(r.Context(), id)
	if err != nil {
		respondFromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) updateRole(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermRolesWrite); err != nil {
		respondFromError(w, err)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Name *string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	role, err := a.admin.UpdateRole(r.Context(), id, identity.RoleUpdate{Name: req.Name})
	if err != nil {
		respondFromError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.updated", map[string]any{"role_id": role.ID})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) deleteRole(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermRolesWrite); err != nil {
		respondFromError(w, err)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.admin.DeleteRole(r.Context(), id); err != nil {
		respondFromError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.deleted", map[string]any{"role_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) grantPermission(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermRolesWrite); err != nil {
		respondFromError(w, err)
		return
	}
	roleID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Permission string `json:"permission"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.admin.GrantPermission(r.Context(), roleID, req.Permission); err != nil {
		respondFromError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.permission_granted", map[string]any{"role_id": roleID, "permission": req.Permission})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) revokePermission(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermRolesWrite); err != nil {
		respondFromError(w, err)
		return
	}
	roleID, ok := pathID(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")
	if err := a.admin.RevokePermission(r.Context(), roleID, name); err != nil {
		respondFromError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "role.permission_revoked", map[string]any{"role_id": roleID, "permission": name})
	w.WriteHeader(http.StatusNoContent)
}

// Permissions ---------------------------------------------------------------

func (a *API) createPermission(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermRolesWrite); err != nil {
		respondFromError(w, err)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	perm, err := a.admin.CreatePermission(r.Context(), req.Name)
	if err != nil {
		respondFromError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "permission.created", map[string]any{"permission_id": perm.ID, "name": perm.Name})
	writeJSON(w, http.StatusCreated, perm)
}

func (a *API) listPermissions(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermRolesRead); err != nil {
		respondFromError(w, err)
		return
	}
	perms, err := a.admin.ListPermissions(r.Context())
	if err != nil {
		respondFromError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (a *API) deletePermission(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermRolesWrite); err != nil {
		respondFromError(w, err)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.admin.DeletePermission(r.Context(), id); err != nil {
		respondFromError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "permission.deleted", map[string]any{"permission_id": id})
	w.WriteHeader(http.StatusNoContent)
}

// Memberships ---------------------------------------------------------------

type membershipRequest struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	RoleID   string `json:"role_id"`
	Active   *bool  `json:"active,omitempty"`
}

func (a *API) assignRole(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermUsersWrite); err != nil {
		respondFromError(w, err)
		return
	}
	var req membershipRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	membership, err := a.admin.AssignRole(r.Context(), req.UserID, req.TenantID, req.RoleID)
	if err != nil {
		respondFromError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "membership.assigned", map[string]any{
		"user_id": req.UserID, "tenant_id": req.TenantID, "role_id": req.RoleID,
	})
	writeJSON(w, http.StatusCreated, membership)
}

func (a *API) removeMembership(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermUsersWrite); err != nil {
		respondFromError(w, err)
		return
	}
	var req membershipRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.admin.RemoveMembership(r.Context(), req.UserID, req.TenantID, req.RoleID); err != nil {
		respondFromError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "membership.removed", map[string]any{
		"user_id": req.UserID, "tenant_id": req.TenantID, "role_id": req.RoleID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setMembershipActive(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCapability(r.Context(), identity.PermUsersWrite); err != nil {
		respondFromError(w, err)
		return
	}
	var req membershipRequest
	if err := decodeJSON(r, &req); err != nil || req.Active == nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.admin.SetMembershipActive(r.Context(), req.UserID, req.TenantID, req.RoleID, *req.Active); err != nil {
		respondFromError(w, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "membership.active_changed", map[string]any{
		"user_id": req.UserID, "tenant_id": req.TenantID, "role_id": req.RoleID, "active": *req.Active,
	})
	w.WriteHeader(http.StatusNoContent)
}
