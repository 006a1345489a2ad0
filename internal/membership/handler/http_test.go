package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"saas-control-plane/internal/membership/domain"
	"saas-control-plane/internal/membership/service"
	"saas-control-plane/internal/platform/apperr"
)

type fakeMembers struct {
	removed []string
}

func (f *fakeMembers) List(ctx context.Context, orgID string) ([]service.Member, error) {
	return []service.Member{{
		Membership: &domain.Membership{UserID: "u1", OrgID: orgID, Role: domain.RoleOwner},
		Email:      "owner@example.com",
	}}, nil
}

func (f *fakeMembers) UpdateRole(ctx context.Context, orgID, targetUserID string, newRole domain.Role) (*domain.Membership, error) {
	if newRole == domain.RoleOwner {
		return nil, apperr.ErrForbidden
	}
	return &domain.Membership{UserID: targetUserID, OrgID: orgID, Role: newRole}, nil
}

func (f *fakeMembers) RemoveMember(ctx context.Context, orgID, targetUserID string) error {
	if targetUserID == "missing" {
		return apperr.ErrNotFound
	}
	f.removed = append(f.removed, targetUserID)
	return nil
}

func newRouter(f *fakeMembers) *mux.Router {
	h := NewHandler(f, zerolog.Nop())
	r := mux.NewRouter()
	r.HandleFunc("/v1/organizations/{orgID}/members", h.List).Methods(http.MethodGet)
	r.HandleFunc("/v1/organizations/{orgID}/members/{userID}", h.UpdateRole).Methods(http.MethodPatch)
	r.HandleFunc("/v1/organizations/{orgID}/members/{userID}", h.Remove).Methods(http.MethodDelete)
	return r
}

func TestHandler_List(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&fakeMembers{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/organizations/org-1/members", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"owner@example.com"`)
	assert.Contains(t, rec.Body.String(), `"role":"owner"`)
}

func TestHandler_UpdateRole(t *testing.T) {
	testCases := []struct {
		name string
		body string
		want int
	}{
		{"demote", `{"role":"user"}`, http.StatusOK},
		{"case insensitive", `{"role":"Admin"}`, http.StatusOK},
		{"unknown role", `{"role":"superuser"}`, http.StatusBadRequest},
		{"promote to owner", `{"role":"owner"}`, http.StatusForbidden},
	}
	router := newRouter(&fakeMembers{})
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPatch, "/v1/organizations/org-1/members/u2", strings.NewReader(tc.body))
			router.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestHandler_Remove(t *testing.T) {
	f := &fakeMembers{}
	router := newRouter(f)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/organizations/org-1/members/u2", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"u2"}, f.removed)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/organizations/org-1/members/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
