package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saas-control-plane/internal/audit"
	audithandler "saas-control-plane/internal/audit/handler"
	couponhandler "saas-control-plane/internal/coupon/handler"
	couponservice "saas-control-plane/internal/coupon/service"
	"saas-control-plane/internal/entitlement"
	healthhandler "saas-control-plane/internal/health/handler"
	identityhandler "saas-control-plane/internal/identity/handler"
	identityservice "saas-control-plane/internal/identity/service"
	invitationhandler "saas-control-plane/internal/invitation/handler"
	invitationservice "saas-control-plane/internal/invitation/service"
	membershiphandler "saas-control-plane/internal/membership/handler"
	membershipservice "saas-control-plane/internal/membership/service"
	organizationhandler "saas-control-plane/internal/organization/handler"
	organizationservice "saas-control-plane/internal/organization/service"
	"saas-control-plane/internal/platform/rbac"
	"saas-control-plane/internal/policy/engine"
	"saas-control-plane/internal/security"
	sessionhandler "saas-control-plane/internal/session/handler"
	sessionservice "saas-control-plane/internal/session/service"
	"saas-control-plane/internal/storetest"
	userhandler "saas-control-plane/internal/user/handler"
)

type orgUoW struct{ s *storetest.Store }

func (u orgUoW) Do(ctx context.Context, fn func(r organizationservice.TxRepos) error) error {
	return u.s.Tx(ctx, func(v *storetest.View) error {
		return fn(organizationservice.TxRepos{Orgs: v.Orgs, Memberships: v.Memberships, Entitlement: storetest.EntitlementStores(v)})
	})
}

type invitationUoW struct{ s *storetest.Store }

func (u invitationUoW) Do(ctx context.Context, fn func(r invitationservice.TxRepos) error) error {
	return u.s.Tx(ctx, func(v *storetest.View) error {
		return fn(invitationservice.TxRepos{Invitations: v.Invitations, Memberships: v.Memberships, Orgs: v.Orgs, Plans: v.Plans})
	})
}

// newTestAPI wires the full HTTP API over an in-memory store. root@example.com is a super-admin.
func newTestAPI(t *testing.T) (http.Handler, *storetest.Store) {
	t.Helper()
	log := zerolog.Nop()
	s := storetest.New()
	v := s.Repos()
	s.AddPlan("free", nil, true, storetest.Int(3))
	s.AddPlan("ltd1", storetest.Int(1), false, storetest.Int(10))
	s.AddCoupons("LTD-ABC")

	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	policy, err := engine.NewOPAEvaluator(context.Background())
	require.NoError(t, err)

	auditLogger := audit.NewLogger(v.Audit, ClientIPFromContext, log)
	gate := rbac.NewGate(v.Memberships, rbac.NewSuperAdmins([]string{"root@example.com"}), auditLogger, log)
	resolver := sessionservice.NewResolver(v.Sessions, v.Users, v.Memberships, v.Orgs, log)
	ent := entitlement.NewEngine(storetest.EntitlementStores(v), storetest.EntitlementUoW{S: s}, nil, log)

	authSvc := identityservice.NewAuthService(v.Users, v.Identities, v.Sessions, security.NewHasher(4), tokens, time.Hour, auditLogger, log)
	orgSvc := organizationservice.NewService(v.Orgs, v.Sessions, orgUoW{s}, ent, resolver, gate, log)
	memberSvc := membershipservice.NewService(v.Memberships, v.Users, v.Orgs, gate, policy, nil, auditLogger, log)
	couponSvc := couponservice.NewService(v.Coupons, ent, gate, auditLogger, log)
	invitationSvc := invitationservice.NewService(
		invitationservice.TxRepos{Invitations: v.Invitations, Memberships: v.Memberships, Orgs: v.Orgs, Plans: v.Plans},
		v.Users, invitationUoW{s}, gate, nil, nil, time.Hour, log)

	return NewRouter(Deps{
		Tokens:        tokens,
		Sessions:      resolver,
		AuditLogger:   auditLogger,
		Auth:          identityhandler.NewHandler(authSvc, log),
		Users:         userhandler.NewHandler(v.Users, v.Memberships, log),
		Session:       sessionhandler.NewHandler(resolver, log),
		Organizations: organizationhandler.NewHandler(orgSvc, log),
		Members:       membershiphandler.NewHandler(memberSvc, log),
		Invitations:   invitationhandler.NewHandler(invitationSvc, log),
		Coupons:       couponhandler.NewHandler(couponSvc, log),
		AuditLogs:     audithandler.NewHandler(v.Audit, gate, log),
		Health:        healthhandler.NewChecker(nil, policy, log),
		Log:           log,
	}), s
}

func call(t *testing.T, h http.Handler, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	out := map[string]any{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func signup(t *testing.T, h http.Handler, email string) string {
	t.Helper()
	creds := `{"email":"` + email + `","password":"Password123!abc"}`
	rec, _ := call(t, h, http.MethodPost, "/v1/auth/register", "", creds)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec, body := call(t, h, http.MethodPost, "/v1/auth/login", "", creds)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return body["accessToken"].(string)
}

func TestRouter_EntitlementLifecycle(t *testing.T) {
	api, _ := newTestAPI(t)
	alice := signup(t, api, "alice@example.com")
	root := signup(t, api, "root@example.com")

	rec, _ := call(t, api, http.MethodGet, "/v1/organizations/current", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := call(t, api, http.MethodGet, "/v1/organizations/current", alice, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no_organization_selected", body["code"])

	rec, body = call(t, api, http.MethodPost, "/v1/organizations", alice, `{"name":"Acme"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	orgID := body["id"].(string)

	rec, body = call(t, api, http.MethodGet, "/v1/organizations/current", alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "owner", body["role"])
	assert.Equal(t, "free", body["plan"].(map[string]any)["codename"])
	assert.EqualValues(t, 0, body["couponCount"])

	rec, body = call(t, api, http.MethodPost, "/v1/organizations/"+orgID+"/coupons/redeem", alice, `{"code":" ltd-abc "}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ltd1", body["plan"].(map[string]any)["codename"])

	rec, body = call(t, api, http.MethodPost, "/v1/organizations/"+orgID+"/coupons/redeem", alice, `{"code":"LTD-ABC"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_coupon", body["code"])

	rec, _ = call(t, api, http.MethodPost, "/v1/admin/coupons/expire", alice, `{"codes":["LTD-ABC"]}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = call(t, api, http.MethodPost, "/v1/admin/coupons/expire", root, `{"codes":["LTD-ABC","NOPE-1"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, body["totalExpired"])
	assert.EqualValues(t, 1, body["workspacesDowngraded"])
	assert.Len(t, body["errors"], 1)

	rec, body = call(t, api, http.MethodGet, "/v1/organizations/current", alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "free", body["plan"].(map[string]any)["codename"])
	assert.EqualValues(t, 0, body["couponCount"])

	rec, body = call(t, api, http.MethodGet, "/v1/organizations/"+orgID+"/audit-logs", alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var actions []string
	for _, e := range body["entries"].([]any) {
		actions = append(actions, e.(map[string]any)["action"].(string))
	}
	assert.Contains(t, actions, "create")
	assert.Contains(t, actions, "redeem")
}

func TestRouter_SwitchAndMembers(t *testing.T) {
	api, _ := newTestAPI(t)
	alice := signup(t, api, "alice@example.com")
	bob := signup(t, api, "bob@example.com")

	rec, body := call(t, api, http.MethodPost, "/v1/organizations", alice, `{"name":"Acme"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	acme := body["id"].(string)

	rec, _ = call(t, api, http.MethodPost, "/v1/session/organization", bob, `{"organizationId":"`+acme+`"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = call(t, api, http.MethodGet, "/v1/organizations/"+acme+"/members", bob, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = call(t, api, http.MethodGet, "/v1/organizations/"+acme+"/members", alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	members := body["members"].([]any)
	require.Len(t, members, 1)
	aliceID := members[0].(map[string]any)["userId"].(string)

	rec, _ = call(t, api, http.MethodPatch, "/v1/organizations/"+acme+"/members/"+aliceID, alice, `{"role":"user"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code, "nobody changes their own role")

	rec, _ = call(t, api, http.MethodPost, "/v1/auth/logout", alice, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec, _ = call(t, api, http.MethodGet, "/v1/session", alice, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	api, _ := newTestAPI(t)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec, _ := call(t, api, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
	rec, body := call(t, api, http.MethodGet, "/v1/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["code"])
}
