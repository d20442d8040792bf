package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"tessera.dev/internal/identity"
	"tessera.dev/internal/obs"
)

const serviceName = "tessera-id"

// ReadyProbe checks readiness, e.g. by pinging the database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rp.DB.PingContext(ctx)
}

// Limits carries the transport-level knobs the middleware chain uses.
type Limits struct {
	RateLimitPerSecond int
	RateLimitBurst     int
	MaxBodyBytes       int64
}

// API is the HTTP layer. It maps the identity core onto routes and owns
// nothing of the pipeline itself.
type API struct {
	mux        *http.ServeMux
	auth       *identity.Authenticator
	admin      *identity.AdminService
	readyProbe ReadyProbe
	version    string
	limits     Limits
}

// New wires routes. auth may be nil in degraded setups (probes only).
func New(auth *identity.Authenticator, admin *identity.AdminService, rp ReadyProbe, version string, limits Limits) *API {
	a := &API{
		mux:        http.NewServeMux(),
		auth:       auth,
		admin:      admin,
		readyProbe: rp,
		version:    version,
		limits:     limits,
	}

	a.mux.HandleFunc("GET /healthz", a.healthz)
	a.mux.HandleFunc("GET /readyz", a.readyz)
	a.mux.HandleFunc("GET /v1/info", a.info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("GET /v1/me", a.me)

	if admin != nil {
		a.mux.HandleFunc("POST /v1/users", a.createUser)
		a.mux.HandleFunc("GET /v1/users", a.listUsers)
		a.mux.HandleFunc("GET /v1/users/{id}", a.getUser)
		a.mux.HandleFunc("PATCH /v1/users/{id}", a.updateUser)
		a.mux.HandleFunc("DELETE /v1/users/{id}", a.deleteUser)

		a.mux.HandleFunc("POST /v1/tenants", a.createTenant)
		a.mux.HandleFunc("GET /v1/tenants", a.listTenants)
		a.mux.HandleFunc("GET /v1/tenants/{id}", a.getTenant)
		a.mux.HandleFunc("PATCH /v1/tenants/{id}", a.updateTenant)
		a.mux.HandleFunc("DELETE /v1/tenants/{id}", a.deleteTenant)

		a.mux.HandleFunc("POST /v1/roles", a.createRole)
		a.mux.HandleFunc("GET /v1/roles", a.listRoles)
		a.mux.HandleFunc("GET /v1/roles/{id}", a.getRole)
		a.mux.HandleFunc("PATCH /v1/roles/{id}", a.updateRole)
		a.mux.HandleFunc("DELETE /v1/roles/{id}", a.deleteRole)
		a.mux.HandleFunc("POST /v1/roles/{id}/permissions", a.grantPermission)
		a.mux.HandleFunc("DELETE /v1/roles/{id}/permissions/{name}", a.revokePermission)

		a.mux.HandleFunc("POST /v1/permissions", a.createPermission)
		a.mux.HandleFunc("GET /v1/permissions", a.listPermissions)
		a.mux.HandleFunc("DELETE /v1/permissions/{id}", a.deletePermission)

		a.mux.HandleFunc("POST /v1/memberships", a.assignRole)
		a.mux.HandleFunc("DELETE /v1/memberships", a.removeMembership)
		a.mux.HandleFunc("PATCH /v1/memberships", a.setMembershipActive)
	}

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler for the server. Outermost
// instrumentation, then request plumbing, then authentication, then mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	if a.limits.MaxBodyBytes > 0 {
		h = MaxBodyBytes(h, a.limits.MaxBodyBytes)
	}
	if a.limits.RateLimitPerSecond > 0 {
		h = RateLimit(h, a.limits.RateLimitBurst, a.limits.RateLimitPerSecond)
	}
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}
