// Package handler exposes organization member listing and mutation over HTTP.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"saas-control-plane/internal/membership/domain"
	"saas-control-plane/internal/membership/service"
	"saas-control-plane/internal/platform/apperr"
	"saas-control-plane/internal/platform/httpx"
)

// MembershipService is the subset of the membership service the handler calls.
type MembershipService interface {
	List(ctx context.Context, orgID string) ([]service.Member, error)
	UpdateRole(ctx context.Context, orgID, targetUserID string, newRole domain.Role) (*domain.Membership, error)
	RemoveMember(ctx context.Context, orgID, targetUserID string) error
}

// Handler serves /v1/organizations/{orgID}/members.
type Handler struct {
	members MembershipService
	log     zerolog.Logger
}

// NewHandler returns a membership Handler.
func NewHandler(members MembershipService, log zerolog.Logger) *Handler {
	return &Handler{members: members, log: log}
}

type memberView struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

// List handles GET /v1/organizations/{orgID}/members.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.members.List(r.Context(), mux.Vars(r)["orgID"])
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	out := make([]memberView, 0, len(members))
	for _, m := range members {
		out = append(out, memberView{
			UserID:    m.Membership.UserID,
			Email:     m.Email,
			Name:      m.Name,
			Role:      string(m.Membership.Role),
			CreatedAt: m.Membership.CreatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"members": out})
}

// UpdateRole handles PATCH /v1/organizations/{orgID}/members/{userID}.
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		httpx.WriteError(w, r, h.log, fmt.Errorf("%s: %w", err.Error(), apperr.ErrInvalidArgument))
		return
	}
	vars := mux.Vars(r)
	m, err := h.members.UpdateRole(r.Context(), vars["orgID"], vars["userID"], role)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"userId": m.UserID, "role": string(m.Role)})
}

// Remove handles DELETE /v1/organizations/{orgID}/members/{userID}.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.members.RemoveMember(r.Context(), vars["orgID"], vars["userID"]); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
