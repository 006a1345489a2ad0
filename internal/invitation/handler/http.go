// Package handler exposes invitations over HTTP.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"saas-control-plane/internal/audit"
	"saas-control-plane/internal/invitation/domain"
	membershipdomain "saas-control-plane/internal/membership/domain"
	"saas-control-plane/internal/platform/apperr"
	"saas-control-plane/internal/platform/httpx"
)

// InvitationService is the subset of the invitation service the handler calls.
type InvitationService interface {
	Create(ctx context.Context, orgID, email string, role membershipdomain.Role) (*domain.Invitation, error)
	List(ctx context.Context, orgID string) ([]*domain.Invitation, error)
	Revoke(ctx context.Context, orgID, invitationID string) error
	Accept(ctx context.Context, rawToken string) (*membershipdomain.Membership, error)
}

// Handler serves invitation routes.
type Handler struct {
	invitations InvitationService
	log         zerolog.Logger
}

// NewHandler returns an invitation Handler.
func NewHandler(invitations InvitationService, log zerolog.Logger) *Handler {
	return &Handler{invitations: invitations, log: log}
}

// invitationView never carries the token; only the invitee's mail does.
type invitationView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	InvitedBy string    `json:"invitedBy"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

func newInvitationView(inv *domain.Invitation) invitationView {
	return invitationView{
		ID:        inv.ID,
		Email:     inv.Email,
		Role:      string(inv.Role),
		InvitedBy: inv.InvitedBy,
		ExpiresAt: inv.ExpiresAt,
		CreatedAt: inv.CreatedAt,
	}
}

type createRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Create handles POST /v1/organizations/{orgID}/invitations.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	role := membershipdomain.RoleUser
	if req.Role != "" {
		parsed, err := membershipdomain.ParseRole(req.Role)
		if err != nil {
			httpx.WriteError(w, r, h.log, fmt.Errorf("%s: %w", err.Error(), apperr.ErrInvalidArgument))
			return
		}
		role = parsed
	}
	inv, err := h.invitations.Create(r.Context(), mux.Vars(r)["orgID"], req.Email, role)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, newInvitationView(inv))
}

// List handles GET /v1/organizations/{orgID}/invitations.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	invs, err := h.invitations.List(r.Context(), mux.Vars(r)["orgID"])
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	out := make([]invitationView, 0, len(invs))
	for _, inv := range invs {
		out = append(out, newInvitationView(inv))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"invitations": out})
}

// Revoke handles DELETE /v1/organizations/{orgID}/invitations/{invitationID}.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.invitations.Revoke(r.Context(), vars["orgID"], vars["invitationID"]); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Accept handles POST /v1/invitations/{token}/accept.
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	m, err := h.invitations.Accept(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	audit.SetOrg(r.Context(), m.OrgID)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"organizationId": m.OrgID,
		"userId":         m.UserID,
		"role":           string(m.Role),
	})
}
