// Package handler exposes organization lifecycle and the current-organization view over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"saas-control-plane/internal/audit"
	"saas-control-plane/internal/organization/domain"
	"saas-control-plane/internal/organization/service"
	plandomain "saas-control-plane/internal/plan/domain"
	"saas-control-plane/internal/platform/httpx"
)

// OrganizationService is the subset of the organization service the handler calls.
type OrganizationService interface {
	Create(ctx context.Context, name string) (*domain.Org, error)
	Current(ctx context.Context) (*service.Current, error)
	Delete(ctx context.Context, orgID string) error
}

// Handler serves /v1/organizations.
type Handler struct {
	orgs OrganizationService
	log  zerolog.Logger
}

// NewHandler returns an organization Handler.
func NewHandler(orgs OrganizationService, log zerolog.Logger) *Handler {
	return &Handler{orgs: orgs, log: log}
}

// OrganizationView is the JSON shape of an organization.
type OrganizationView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PlanID    *string   `json:"planId"`
	CreatedAt time.Time `json:"createdAt"`
}

// PlanView is the JSON shape of a plan.
type PlanView struct {
	ID                  string `json:"id"`
	Codename            string `json:"codename"`
	RequiredCouponCount *int   `json:"requiredCouponCount"`
	Default             bool   `json:"default"`
	TeamMembers         *int   `json:"teamMembers"`
}

type currentResponse struct {
	Organization OrganizationView `json:"organization"`
	Role         string           `json:"role"`
	Plan         *PlanView        `json:"plan"`
	CouponCount  int              `json:"couponCount"`
}

type createRequest struct {
	Name string `json:"name"`
}

// NewOrganizationView converts o for output.
func NewOrganizationView(o *domain.Org) OrganizationView {
	return OrganizationView{ID: o.ID, Name: o.Name, PlanID: o.PlanID, CreatedAt: o.CreatedAt}
}

// NewPlanView converts p for output; nil stays nil.
func NewPlanView(p *plandomain.Plan) *PlanView {
	if p == nil {
		return nil
	}
	return &PlanView{
		ID:                  p.ID,
		Codename:            p.Codename,
		RequiredCouponCount: p.RequiredCouponCount,
		Default:             p.Default,
		TeamMembers:         p.Quotas.TeamMembers,
	}
}

// Create handles POST /v1/organizations.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	org, err := h.orgs.Create(r.Context(), req.Name)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	audit.SetOrg(r.Context(), org.ID)
	httpx.WriteJSON(w, http.StatusCreated, NewOrganizationView(org))
}

// Current handles GET /v1/organizations/current.
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	cur, err := h.orgs.Current(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, currentResponse{
		Organization: NewOrganizationView(cur.Organization),
		Role:         string(cur.Role),
		Plan:         NewPlanView(cur.Plan),
		CouponCount:  cur.CouponCount,
	})
}

// Delete handles DELETE /v1/organizations/{orgID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.orgs.Delete(r.Context(), mux.Vars(r)["orgID"]); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
