// Package handler exposes an organization's audit trail over HTTP.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"saas-control-plane/internal/audit/domain"
	membershipdomain "saas-control-plane/internal/membership/domain"
	"saas-control-plane/internal/platform/apperr"
	"saas-control-plane/internal/platform/authctx"
	"saas-control-plane/internal/platform/httpx"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Lister reads audit entries.
type Lister interface {
	ListByOrg(ctx context.Context, orgID string, limit, offset int32) ([]*domain.AuditLog, error)
}

// Authorizer is the authorization gate.
type Authorizer interface {
	Require(ctx context.Context, orgID string, minimum membershipdomain.Role) (authctx.Principal, membershipdomain.Role, error)
}

// Handler serves /v1/organizations/{orgID}/audit-logs.
type Handler struct {
	logs Lister
	gate Authorizer
	log  zerolog.Logger
}

// NewHandler returns an audit Handler.
func NewHandler(logs Lister, gate Authorizer, log zerolog.Logger) *Handler {
	return &Handler{logs: logs, gate: gate, log: log}
}

type entryView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// List handles GET /v1/organizations/{orgID}/audit-logs. Admins only.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["orgID"]
	if _, _, err := h.gate.Require(r.Context(), orgID, membershipdomain.RoleAdmin); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultLimit)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	if limit <= 0 || limit > maxLimit {
		limit = defaultLimit
	}
	entries, err := h.logs.ListByOrg(r.Context(), orgID, int32(limit), int32(offset))
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryView{
			ID:        e.ID,
			UserID:    e.UserID,
			Action:    e.Action,
			Resource:  e.Resource,
			IP:        e.IP,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer: %w", key, apperr.ErrInvalidArgument)
	}
	return n, nil
}
