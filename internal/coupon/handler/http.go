// Package handler exposes coupon redemption, listing, and batch expiry over HTTP.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"saas-control-plane/internal/coupon/domain"
	"saas-control-plane/internal/entitlement"
	orghandler "saas-control-plane/internal/organization/handler"
	"saas-control-plane/internal/platform/apperr"
	"saas-control-plane/internal/platform/httpx"
)

// maxExpireCodes bounds one batch expiry request.
const maxExpireCodes = 10000

// CouponService is the subset of the coupon service the handler calls.
type CouponService interface {
	Redeem(ctx context.Context, orgID, code string) (*entitlement.Redemption, error)
	ListByOrg(ctx context.Context, orgID string) ([]*domain.Coupon, error)
	ExpireBatch(ctx context.Context, codes []string) (*entitlement.ExpiryReport, error)
}

// Handler serves coupon routes.
type Handler struct {
	coupons CouponService
	log     zerolog.Logger
}

// NewHandler returns a coupon Handler.
func NewHandler(coupons CouponService, log zerolog.Logger) *Handler {
	return &Handler{coupons: coupons, log: log}
}

type redeemRequest struct {
	Code string `json:"code"`
}

type redeemResponse struct {
	Code        string               `json:"code"`
	Plan        *orghandler.PlanView `json:"plan"`
	CouponCount int                  `json:"couponCount"`
}

type couponView struct {
	Code    string     `json:"code"`
	UsedAt  *time.Time `json:"usedAt"`
	Expired bool       `json:"expired"`
}

type expireRequest struct {
	Codes []string `json:"codes"`
}

// Redeem handles POST /v1/organizations/{orgID}/coupons/redeem.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	res, err := h.coupons.Redeem(r.Context(), mux.Vars(r)["orgID"], req.Code)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, redeemResponse{
		Code:        res.Code,
		Plan:        orghandler.NewPlanView(res.Plan),
		CouponCount: res.CouponCount,
	})
}

// List handles GET /v1/organizations/{orgID}/coupons.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.ListByOrg(r.Context(), mux.Vars(r)["orgID"])
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	out := make([]couponView, 0, len(coupons))
	for _, c := range coupons {
		out = append(out, couponView{Code: c.Code, UsedAt: c.UsedAt, Expired: c.Expired})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"coupons": out})
}

// Expire handles POST /v1/admin/coupons/expire. Per-code failures are reported in the body with 200.
func (h *Handler) Expire(w http.ResponseWriter, r *http.Request) {
	var req expireRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	if len(req.Codes) > maxExpireCodes {
		httpx.WriteError(w, r, h.log, fmt.Errorf("at most %d codes per request: %w", maxExpireCodes, apperr.ErrInvalidArgument))
		return
	}
	report, err := h.coupons.ExpireBatch(r.Context(), req.Codes)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}
