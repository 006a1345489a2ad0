package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"saas-control-plane/internal/entitlement"
	membershipdomain "saas-control-plane/internal/membership/domain"
	"saas-control-plane/internal/platform/apperr"
	"saas-control-plane/internal/platform/authctx"
	"saas-control-plane/internal/platform/rbac"
	"saas-control-plane/internal/storetest"
)

type env struct {
	store *storetest.Store
	svc   *Service
	orgID string
	admin context.Context
	user  context.Context
	root  context.Context
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s := storetest.New()
	v := s.Repos()
	s.AddPlan("ltd-1", storetest.Int(1), false, nil)
	s.AddPlan("free", nil, true, nil)
	org := s.AddOrg("Acme")
	admin := s.AddUser("admin@example.com")
	user := s.AddUser("user@example.com")
	s.AddMember(admin.ID, org.ID, membershipdomain.RoleAdmin, 0)
	s.AddMember(user.ID, org.ID, membershipdomain.RoleUser, 0)

	engine := entitlement.NewEngine(storetest.EntitlementStores(v), storetest.EntitlementUoW{S: s}, nil, zerolog.Nop())
	gate := rbac.NewGate(v.Memberships, rbac.NewSuperAdmins([]string{"root@example.com"}), nil, zerolog.Nop())
	return &env{
		store: s,
		svc:   NewService(v.Coupons, engine, gate, nil, zerolog.Nop()),
		orgID: org.ID,
		admin: authctx.WithPrincipal(context.Background(), authctx.Principal{UserID: admin.ID, Email: admin.Email}),
		user:  authctx.WithPrincipal(context.Background(), authctx.Principal{UserID: user.ID, Email: user.Email}),
		root:  authctx.WithPrincipal(context.Background(), authctx.Principal{UserID: "root-id", Email: "Root@Example.com"}),
	}
}

func TestRedeem_RequiresAdmin(t *testing.T) {
	e := newEnv(t)
	e.store.AddCoupons("LTD-1")

	if _, err := e.svc.Redeem(e.user, e.orgID, "LTD-1"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("user redeem err = %v, want ErrForbidden", err)
	}
	c, _ := e.store.Repos().Coupons.GetByCode(context.Background(), "LTD-1")
	if c.Used() {
		t.Fatal("denied redeem must not claim the coupon")
	}

	r, err := e.svc.Redeem(e.admin, e.orgID, "ltd-1")
	if err != nil {
		t.Fatalf("admin redeem: %v", err)
	}
	if r.Plan == nil || r.Plan.Codename != "ltd-1" {
		t.Errorf("plan = %v, want ltd-1", r.Plan)
	}
	list, err := e.svc.ListByOrg(e.admin, e.orgID)
	if err != nil {
		t.Fatalf("ListByOrg: %v", err)
	}
	if len(list) != 1 || list[0].Code != "LTD-1" {
		t.Errorf("ListByOrg = %v", list)
	}
}

func TestExpireBatch_SuperAdminOnly(t *testing.T) {
	e := newEnv(t)
	e.store.AddCoupons("LTD-1")
	if _, err := e.svc.Redeem(e.admin, e.orgID, "LTD-1"); err != nil {
		t.Fatalf("Redeem: %v", err)
	}

	if _, err := e.svc.ExpireBatch(e.admin, []string{"LTD-1"}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("org admin expire err = %v, want ErrForbidden", err)
	}
	report, err := e.svc.ExpireBatch(e.root, []string{"LTD-1", "MISSING"})
	if err != nil {
		t.Fatalf("ExpireBatch: %v", err)
	}
	if report.TotalExpired != 1 || report.WorkspacesDowngraded != 1 || len(report.Errors) != 1 {
		t.Errorf("report = %+v", report)
	}
	report, err = e.svc.ExpireBatchTrusted(context.Background(), []string{"LTD-1"})
	if err != nil {
		t.Fatalf("ExpireBatchTrusted: %v", err)
	}
	if report.TotalExpired != 0 {
		t.Errorf("re-expired %d coupons", report.TotalExpired)
	}
}

func TestGenerate(t *testing.T) {
	e := newEnv(t)
	codes, err := e.svc.Generate(context.Background(), " ltd ", 25)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(codes) != 25 {
		t.Fatalf("generated %d codes, want 25", len(codes))
	}
	seen := map[string]bool{}
	for _, code := range codes {
		if !strings.HasPrefix(code, "LTD-") || len(code) != len("LTD-")+8 {
			t.Errorf("malformed code %q", code)
		}
		if strings.ContainsAny(code[4:], "01IO") {
			t.Errorf("code %q uses an ambiguous character", code)
		}
		if seen[code] {
			t.Errorf("duplicate code %q", code)
		}
		seen[code] = true
		if c, _ := e.store.Repos().Coupons.GetByCode(context.Background(), code); c == nil {
			t.Errorf("code %q not stored", code)
		}
	}

	for _, n := range []int{0, -1, MaxGenerate + 1} {
		if _, err := e.svc.Generate(context.Background(), "X", n); !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Errorf("Generate(%d) err = %v, want ErrInvalidArgument", n, err)
		}
	}
}

// collidingCoupons reports the first code of every insert as already present.
type collidingCoupons struct {
	*storetest.Coupons
}

func (c collidingCoupons) CreateMany(ctx context.Context, codes []string, createdAt time.Time) ([]string, error) {
	return c.Coupons.CreateMany(ctx, codes[1:], createdAt)
}

func TestGenerate_OmitsExistingCodes(t *testing.T) {
	s := storetest.New()
	svc := NewService(collidingCoupons{s.Repos().Coupons}, nil, nil, nil, zerolog.Nop())

	codes, err := svc.Generate(context.Background(), "ltd", 5)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(codes) != 4 {
		t.Fatalf("Generate returned %d codes, want the 4 inserted", len(codes))
	}
	for _, code := range codes {
		if c, _ := s.Repos().Coupons.GetByCode(context.Background(), code); c == nil {
			t.Errorf("returned code %q was not inserted", code)
		}
	}
}
