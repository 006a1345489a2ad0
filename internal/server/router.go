// Package server wires the HTTP API and the gRPC health listener.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"saas-control-plane/internal/audit"
	audithandler "saas-control-plane/internal/audit/handler"
	couponhandler "saas-control-plane/internal/coupon/handler"
	healthhandler "saas-control-plane/internal/health/handler"
	identityhandler "saas-control-plane/internal/identity/handler"
	invitationhandler "saas-control-plane/internal/invitation/handler"
	membershiphandler "saas-control-plane/internal/membership/handler"
	organizationhandler "saas-control-plane/internal/organization/handler"
	"saas-control-plane/internal/platform/apperr"
	"saas-control-plane/internal/platform/httpx"
	"saas-control-plane/internal/security"
	sessionhandler "saas-control-plane/internal/session/handler"
	userhandler "saas-control-plane/internal/user/handler"
)

// Deps holds the handlers and cross-cutting dependencies of the HTTP API.
type Deps struct {
	Tokens   *security.TokenProvider
	Sessions SessionAuthenticator
	// AuditLogger records successful mutations. If nil, only service-level audit events are written.
	AuditLogger audit.AuditLogger

	Auth          *identityhandler.Handler
	Users         *userhandler.Handler
	Session       *sessionhandler.Handler
	Organizations *organizationhandler.Handler
	Members       *membershiphandler.Handler
	Invitations   *invitationhandler.Handler
	Coupons       *couponhandler.Handler
	AuditLogs     *audithandler.Handler
	Health        *healthhandler.Checker

	Log zerolog.Logger
}

// Routes audited by the service that handles them.
var serviceAudited = map[string]bool{
	"POST /v1/auth/logout":          true,
	"POST /v1/admin/coupons/expire": true,
}

// NewRouter returns the HTTP API handler.
//
// Route → handler mapping:
//   - /v1/auth/*                            → internal/identity/handler
//   - /v1/users/me                          → internal/user/handler
//   - /v1/session, /v1/session/organization → internal/session/handler
//   - /v1/organizations[...]                → internal/organization/handler
//   - /v1/organizations/{orgID}/members     → internal/membership/handler
//   - .../invitations, /v1/invitations      → internal/invitation/handler
//   - .../coupons, /v1/admin/coupons        → internal/coupon/handler
//   - .../audit-logs                        → internal/audit/handler
//   - /healthz, /readyz                     → internal/health/handler
func NewRouter(d Deps) http.Handler {
	auditLogger := d.AuditLogger
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}

	r := mux.NewRouter()
	r.Use(Instrument(d.Log))
	r.NotFoundHandler = notFound(d.Log)
	r.MethodNotAllowedHandler = methodNotAllowed(d.Log)

	r.HandleFunc("/healthz", d.Health.Liveness).Methods(http.MethodGet)
	r.HandleFunc("/readyz", d.Health.Readiness).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	public := r.PathPrefix("/v1/auth").Subrouter()
	public.HandleFunc("/register", d.Auth.Register).Methods(http.MethodPost)
	public.HandleFunc("/login", d.Auth.Login).Methods(http.MethodPost)

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(Authenticate(d.Tokens, d.Sessions))
	api.Use(Audit(auditLogger, serviceAudited))

	api.HandleFunc("/auth/logout", d.Auth.Logout).Methods(http.MethodPost)

	api.HandleFunc("/users/me", d.Users.Me).Methods(http.MethodGet)
	api.HandleFunc("/users/me", d.Users.UpdateMe).Methods(http.MethodPatch)

	api.HandleFunc("/session", d.Session.Get).Methods(http.MethodGet)
	api.HandleFunc("/session/organization", d.Session.SwitchOrganization).Methods(http.MethodPost)

	api.HandleFunc("/organizations", d.Organizations.Create).Methods(http.MethodPost)
	api.HandleFunc("/organizations/current", d.Organizations.Current).Methods(http.MethodGet)
	api.HandleFunc("/organizations/{orgID}", d.Organizations.Delete).Methods(http.MethodDelete)

	api.HandleFunc("/organizations/{orgID}/members", d.Members.List).Methods(http.MethodGet)
	api.HandleFunc("/organizations/{orgID}/members/{userID}", d.Members.UpdateRole).Methods(http.MethodPatch)
	api.HandleFunc("/organizations/{orgID}/members/{userID}", d.Members.Remove).Methods(http.MethodDelete)

	api.HandleFunc("/organizations/{orgID}/invitations", d.Invitations.Create).Methods(http.MethodPost)
	api.HandleFunc("/organizations/{orgID}/invitations", d.Invitations.List).Methods(http.MethodGet)
	api.HandleFunc("/organizations/{orgID}/invitations/{invitationID}", d.Invitations.Revoke).Methods(http.MethodDelete)
	api.HandleFunc("/invitations/{token}/accept", d.Invitations.Accept).Methods(http.MethodPost)

	api.HandleFunc("/organizations/{orgID}/coupons", d.Coupons.List).Methods(http.MethodGet)
	api.HandleFunc("/organizations/{orgID}/coupons/redeem", d.Coupons.Redeem).Methods(http.MethodPost)
	api.HandleFunc("/admin/coupons/expire", d.Coupons.Expire).Methods(http.MethodPost)

	api.HandleFunc("/organizations/{orgID}/audit-logs", d.AuditLogs.List).Methods(http.MethodGet)

	return r
}

func notFound(log zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, log, apperr.ErrNotFound)
	})
}

func methodNotAllowed(log zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusMethodNotAllowed, httpx.ErrorResponse{Error: "method not allowed", Code: "method_not_allowed"})
	})
}
