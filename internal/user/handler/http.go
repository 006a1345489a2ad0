// Package handler exposes the caller's profile and organization memberships over HTTP.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	membershipdomain "saas-control-plane/internal/membership/domain"
	"saas-control-plane/internal/platform/apperr"
	"saas-control-plane/internal/platform/authctx"
	"saas-control-plane/internal/platform/httpx"
	"saas-control-plane/internal/user/domain"
)

// UserRepo reads and renames users.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	UpdateName(ctx context.Context, id, name string) error
}

// MembershipLister lists a user's memberships.
type MembershipLister interface {
	ListMembershipsByUser(ctx context.Context, userID string) ([]*membershipdomain.Membership, error)
}

// Handler serves /v1/users/me.
type Handler struct {
	users       UserRepo
	memberships MembershipLister
	log         zerolog.Logger
}

// NewHandler returns a user Handler.
func NewHandler(users UserRepo, memberships MembershipLister, log zerolog.Logger) *Handler {
	return &Handler{users: users, memberships: memberships, log: log}
}

type membershipView struct {
	OrganizationID string `json:"organizationId"`
	Role           string `json:"role"`
}

type meResponse struct {
	ID          string           `json:"id"`
	Email       string           `json:"email"`
	Name        string           `json:"name"`
	Memberships []membershipView `json:"memberships"`
}

type updateRequest struct {
	Name string `json:"name"`
}

// Me handles GET /v1/users/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.caller(r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	ms, err := h.memberships.ListMembershipsByUser(r.Context(), u.ID)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	resp := meResponse{ID: u.ID, Email: u.Email, Name: u.Name, Memberships: make([]membershipView, 0, len(ms))}
	for _, m := range ms {
		resp.Memberships = append(resp.Memberships, membershipView{OrganizationID: m.OrgID, Role: string(m.Role)})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// UpdateMe handles PATCH /v1/users/me. Only the display name is mutable.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	u, err := h.caller(r)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	var req updateRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	u.Name = strings.TrimSpace(req.Name)
	if err := u.Validate(); err != nil {
		httpx.WriteError(w, r, h.log, fmt.Errorf("%s: %w", err.Error(), apperr.ErrInvalidArgument))
		return
	}
	if err := h.users.UpdateName(r.Context(), u.ID, u.Name); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"id": u.ID, "email": u.Email, "name": u.Name})
}

func (h *Handler) caller(r *http.Request) (*domain.User, error) {
	p, ok := authctx.PrincipalFrom(r.Context())
	if !ok {
		return nil, apperr.ErrUnauthenticated
	}
	u, err := h.users.GetByID(r.Context(), p.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.ErrUnauthenticated
	}
	return u, nil
}
