// Package handler exposes the caller's session and organization switch over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"saas-control-plane/internal/audit"
	"saas-control-plane/internal/platform/apperr"
	"saas-control-plane/internal/platform/authctx"
	"saas-control-plane/internal/platform/httpx"
	"saas-control-plane/internal/session/service"
)

// Resolver is the subset of the session resolver the handler calls.
type Resolver interface {
	Resolve(ctx context.Context, p authctx.Principal) (*service.SessionContext, error)
	Switch(ctx context.Context, p authctx.Principal, orgID string) (*service.SessionContext, error)
}

// Handler serves /v1/session.
type Handler struct {
	resolver Resolver
	log      zerolog.Logger
}

// NewHandler returns a session Handler.
func NewHandler(resolver Resolver, log zerolog.Logger) *Handler {
	return &Handler{resolver: resolver, log: log}
}

type switchRequest struct {
	OrganizationID string `json:"organizationId"`
}

type sessionResponse struct {
	SessionID        string `json:"sessionId"`
	UserID           string `json:"userId"`
	Email            string `json:"email"`
	OrganizationID   string `json:"organizationId"`
	OrganizationName string `json:"organizationName"`
	Role             string `json:"role"`
}

func newSessionResponse(sc *service.SessionContext) sessionResponse {
	return sessionResponse{
		SessionID:        sc.Session.ID,
		UserID:           sc.User.ID,
		Email:            sc.User.Email,
		OrganizationID:   sc.OrgID(),
		OrganizationName: sc.Organization.Name,
		Role:             string(sc.Role()),
	}
}

// Get handles GET /v1/session.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := authctx.PrincipalFrom(r.Context())
	if !ok {
		httpx.WriteError(w, r, h.log, apperr.ErrUnauthenticated)
		return
	}
	sc, err := h.resolver.Resolve(r.Context(), p)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newSessionResponse(sc))
}

// SwitchOrganization handles POST /v1/session/organization.
func (h *Handler) SwitchOrganization(w http.ResponseWriter, r *http.Request) {
	p, ok := authctx.PrincipalFrom(r.Context())
	if !ok {
		httpx.WriteError(w, r, h.log, apperr.ErrUnauthenticated)
		return
	}
	var req switchRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	sc, err := h.resolver.Switch(r.Context(), p, req.OrganizationID)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	audit.SetOrg(r.Context(), sc.OrgID())
	httpx.WriteJSON(w, http.StatusOK, newSessionResponse(sc))
}
