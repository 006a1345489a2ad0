package entitlement_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"saas-control-plane/internal/entitlement"
	orgdomain "saas-control-plane/internal/organization/domain"
	"saas-control-plane/internal/platform/apperr"
	"saas-control-plane/internal/storetest"
)

func newEngine(s *storetest.Store) *entitlement.Engine {
	return entitlement.NewEngine(
		storetest.EntitlementStores(s.Repos()),
		storetest.EntitlementUoW{S: s},
		nil,
		zerolog.Nop(),
		entitlement.WithConcurrency(2),
	)
}

// seedCatalog stores plans requiring {0,1,3,5} coupons plus a default plan.
func seedCatalog(s *storetest.Store) {
	s.AddPlan("zero", storetest.Int(0), false, nil)
	s.AddPlan("ltd-1", storetest.Int(1), false, storetest.Int(3))
	s.AddPlan("ltd-3", storetest.Int(3), false, nil)
	s.AddPlan("ltd-5", storetest.Int(5), false, nil)
	s.AddPlan("free", nil, true, storetest.Int(2))
}

func planOf(t *testing.T, s *storetest.Store, orgID string) string {
	t.Helper()
	o, err := s.Repos().Orgs.GetOrganizationByID(context.Background(), orgID)
	if err != nil || o == nil {
		t.Fatalf("load org: %v", err)
	}
	if o.PlanID == nil {
		return ""
	}
	return *o.PlanID
}

func TestDerivePlan_CouponCountTable(t *testing.T) {
	s := storetest.New()
	seedCatalog(s)
	e := newEngine(s)

	testCases := []struct {
		count int
		want  string
	}{
		{0, "plan-zero"},
		{1, "plan-ltd-1"},
		{2, "plan-free"},
		{3, "plan-ltd-3"},
		{4, "plan-free"},
		{5, "plan-ltd-5"},
		{6, "plan-free"},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprint(tc.count), func(t *testing.T) {
			p, err := e.DerivePlan(context.Background(), tc.count)
			if err != nil {
				t.Fatalf("DerivePlan: %v", err)
			}
			if p == nil || p.ID != tc.want {
				t.Errorf("DerivePlan(%d) = %v, want %s", tc.count, p, tc.want)
			}
		})
	}

	if _, err := e.DerivePlan(context.Background(), -1); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("negative count err = %v, want ErrInvalidArgument", err)
	}
}

func TestDerivePlan_PlanlessWithoutDefault(t *testing.T) {
	s := storetest.New()
	s.AddPlan("ltd-1", storetest.Int(1), false, nil)
	p, err := newEngine(s).DerivePlan(context.Background(), 2)
	if err != nil {
		t.Fatalf("DerivePlan: %v", err)
	}
	if p != nil {
		t.Errorf("DerivePlan = %v, want nil", p)
	}
}

func TestRecalculate_Idempotent(t *testing.T) {
	s := storetest.New()
	seedCatalog(s)
	org := s.AddOrg("Acme")
	e := newEngine(s)
	ctx := context.Background()

	first, err := e.Recalculate(ctx, org.ID)
	if err != nil {
		t.Fatalf("Recalculate: %v", err)
	}
	if !first.Changed || first.Plan == nil || first.Plan.ID != "plan-zero" {
		t.Fatalf("first recalculation = %+v", first)
	}
	writes := s.Writes()

	second, err := e.Recalculate(ctx, org.ID)
	if err != nil {
		t.Fatalf("Recalculate: %v", err)
	}
	if second.Changed {
		t.Error("second recalculation should not change anything")
	}
	if second.Plan.ID != first.Plan.ID {
		t.Errorf("plan drifted: %s then %s", first.Plan.ID, second.Plan.ID)
	}
	if s.Writes() != writes {
		t.Errorf("second recalculation wrote %d times", s.Writes()-writes)
	}
}

func TestRecalculate_UnknownOrg(t *testing.T) {
	s := storetest.New()
	if _, err := newEngine(s).Recalculate(context.Background(), "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRecalculate_BillingReferences(t *testing.T) {
	ctx := context.Background()
	sub := "sub_123"
	cus := "cus_123"

	t.Run("plan assigned clears subscriptions", func(t *testing.T) {
		s := storetest.New()
		s.AddPlan("free", nil, true, nil)
		org := s.AddOrg("Acme")
		org.Billing = orgdomain.BillingRefs{StripeCustomerID: &cus, StripeSubscriptionID: &sub}
		_ = s.Repos().Orgs.UpdateOrganization(ctx, org)

		if _, err := newEngine(s).Recalculate(ctx, org.ID); err != nil {
			t.Fatalf("Recalculate: %v", err)
		}
		got, _ := s.Repos().Orgs.GetOrganizationByID(ctx, org.ID)
		if got.Billing.HasSubscription() {
			t.Error("subscription ids should be cleared")
		}
		if got.Billing.StripeCustomerID == nil {
			t.Error("customer id should be kept")
		}
	})

	t.Run("planless keeps subscriptions", func(t *testing.T) {
		s := storetest.New()
		planID := "plan-gone"
		org := s.AddOrg("Acme")
		org.PlanID = &planID
		org.Billing = orgdomain.BillingRefs{StripeSubscriptionID: &sub}
		_ = s.Repos().Orgs.UpdateOrganization(ctx, org)

		rc, err := newEngine(s).Recalculate(ctx, org.ID)
		if err != nil {
			t.Fatalf("Recalculate: %v", err)
		}
		if !rc.Changed || rc.Plan != nil {
			t.Fatalf("recalculation = %+v, want change to planless", rc)
		}
		got, _ := s.Repos().Orgs.GetOrganizationByID(ctx, org.ID)
		if got.PlanID != nil {
			t.Errorf("PlanID = %v, want nil", *got.PlanID)
		}
		if !got.Billing.HasSubscription() {
			t.Error("subscription ids should be kept when planless")
		}
	})
}

func TestRedeem_NormalizesAndUpgrades(t *testing.T) {
	s := storetest.New()
	seedCatalog(s)
	s.AddCoupons("LTD-ABC")
	org := s.AddOrg("Acme")
	user := s.AddUser("owner@example.com")

	r, err := newEngine(s).Redeem(context.Background(), "  ltd-abc ", org.ID, user.ID)
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if r.Code != "LTD-ABC" || r.CouponCount != 1 || r.Plan == nil || r.Plan.ID != "plan-ltd-1" {
		t.Errorf("redemption = %+v", r)
	}
	if got := planOf(t, s, org.ID); got != "plan-ltd-1" {
		t.Errorf("org plan = %q, want plan-ltd-1", got)
	}
	c, _ := s.Repos().Coupons.GetByCode(context.Background(), "LTD-ABC")
	if c.UsedByUserID == nil || *c.UsedByUserID != user.ID {
		t.Errorf("coupon not bound to redeeming user: %+v", c)
	}
}

func TestRedeem_InvalidCouponsAreIndistinguishable(t *testing.T) {
	s := storetest.New()
	seedCatalog(s)
	s.AddCoupons("USED", "EXPIRED")
	org := s.AddOrg("Acme")
	e := newEngine(s)
	ctx := context.Background()

	if _, err := e.Redeem(ctx, "USED", org.ID, "u1"); err != nil {
		t.Fatalf("setup redeem: %v", err)
	}
	if _, err := e.ExpireBatch(ctx, []string{"EXPIRED"}); err != nil {
		t.Fatalf("setup expire: %v", err)
	}

	for _, code := range []string{"", "UNKNOWN", "USED", "expired"} {
		t.Run(code, func(t *testing.T) {
			_, err := e.Redeem(ctx, code, org.ID, "u2")
			if !errors.Is(err, apperr.ErrInvalidCoupon) {
				t.Fatalf("err = %v, want ErrInvalidCoupon", err)
			}
			if err.Error() != apperr.ErrInvalidCoupon.Error() {
				t.Errorf("error text %q leaks detail", err.Error())
			}
		})
	}
}

func TestRedeem_AtMostOnceUnderConcurrency(t *testing.T) {
	s := storetest.New()
	seedCatalog(s)
	s.AddCoupons("LTD-RACE")
	e := newEngine(s)

	const n = 32
	orgs := make([]string, n)
	for i := range orgs {
		orgs[i] = s.AddOrg(fmt.Sprintf("org-%d", i)).ID
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, invalid := 0, 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(orgID string) {
			defer wg.Done()
			_, err := e.Redeem(context.Background(), "LTD-RACE", orgID, "u")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, apperr.ErrInvalidCoupon):
				invalid++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(orgs[i])
	}
	wg.Wait()

	if succeeded != 1 || invalid != n-1 {
		t.Errorf("succeeded=%d invalid=%d, want 1 and %d", succeeded, invalid, n-1)
	}
}

func TestRedeem_FailedRecalculationRollsBackClaim(t *testing.T) {
	s := storetest.New()
	seedCatalog(s)
	s.AddCoupons("LTD-ABC")
	org := s.AddOrg("Acme")
	s.FailPersistPlan[org.ID] = true

	if _, err := newEngine(s).Redeem(context.Background(), "LTD-ABC", org.ID, "u"); err == nil {
		t.Fatal("expected redeem to fail")
	}
	c, _ := s.Repos().Coupons.GetByCode(context.Background(), "LTD-ABC")
	if c.Used() {
		t.Error("claim should have been rolled back")
	}
}

func TestExpireBatch_Cascades(t *testing.T) {
	s := storetest.New()
	seedCatalog(s)
	s.AddCoupons("A-1", "A-2", "A-3", "UNUSED")
	org := s.AddOrg("A")
	e := newEngine(s)
	ctx := context.Background()

	for _, code := range []string{"A-1", "A-2", "A-3"} {
		if _, err := e.Redeem(ctx, code, org.ID, "u"); err != nil {
			t.Fatalf("Redeem %s: %v", code, err)
		}
	}
	if got := planOf(t, s, org.ID); got != "plan-ltd-3" {
		t.Fatalf("plan after 3 redemptions = %q", got)
	}

	report, err := e.ExpireBatch(ctx, []string{"a-2", "A-2", "UNUSED", "NOPE"})
	if err != nil {
		t.Fatalf("ExpireBatch: %v", err)
	}
	if report.TotalExpired != 2 {
		t.Errorf("TotalExpired = %d, want 2", report.TotalExpired)
	}
	if report.WorkspacesDowngraded != 1 {
		t.Errorf("WorkspacesDowngraded = %d, want 1", report.WorkspacesDowngraded)
	}
	if len(report.OrganizationsRecalculated) != 1 || report.OrganizationsRecalculated[0] != org.ID {
		t.Errorf("OrganizationsRecalculated = %v", report.OrganizationsRecalculated)
	}
	if len(report.Errors) != 1 || report.Errors[0].Kind != entitlement.KindNotFoundCode || report.Errors[0].Code != "NOPE" {
		t.Errorf("Errors = %+v", report.Errors)
	}
	if got := planOf(t, s, org.ID); got != "plan-free" {
		t.Errorf("plan after expiry = %q, want plan-free", got)
	}

	again, err := e.ExpireBatch(ctx, []string{"A-2"})
	if err != nil {
		t.Fatalf("ExpireBatch: %v", err)
	}
	if again.TotalExpired != 0 || len(again.Errors) != 1 || again.Errors[0].Kind != entitlement.KindNotFoundCode {
		t.Errorf("re-expiry report = %+v", again)
	}
}

func TestExpireBatch_RecalculationFailureDoesNotAbortOthers(t *testing.T) {
	s := storetest.New()
	seedCatalog(s)
	s.AddCoupons("A-1", "B-1", "C-1")
	e := newEngine(s)
	ctx := context.Background()

	orgA, orgB, orgC := s.AddOrg("A"), s.AddOrg("B"), s.AddOrg("C")
	for code, orgID := range map[string]string{"A-1": orgA.ID, "B-1": orgB.ID, "C-1": orgC.ID} {
		if _, err := e.Redeem(ctx, code, orgID, "u"); err != nil {
			t.Fatalf("Redeem: %v", err)
		}
	}
	s.FailPersistPlan[orgB.ID] = true

	report, err := e.ExpireBatch(ctx, []string{"A-1", "B-1", "C-1"})
	if err != nil {
		t.Fatalf("ExpireBatch: %v", err)
	}
	if report.TotalExpired != 3 {
		t.Errorf("TotalExpired = %d, want 3", report.TotalExpired)
	}
	if report.WorkspacesDowngraded != 2 {
		t.Errorf("WorkspacesDowngraded = %d, want 2", report.WorkspacesDowngraded)
	}
	if len(report.Errors) != 1 || report.Errors[0].Kind != entitlement.KindRecalculationFailure || report.Errors[0].OrgID != orgB.ID {
		t.Errorf("Errors = %+v", report.Errors)
	}
	// Zero valid coupons matches the plan requiring 0 before the default applies.
	if a, c := planOf(t, s, orgA.ID), planOf(t, s, orgC.ID); a != "plan-zero" || c != "plan-zero" {
		t.Errorf("recalculated plans = %q, %q, want plan-zero", a, c)
	}
	if planOf(t, s, orgB.ID) != "plan-ltd-1" {
		t.Error("failed organization should keep its previous plan")
	}
}

func TestExpireBatch_Empty(t *testing.T) {
	report, err := newEngine(storetest.New()).ExpireBatch(context.Background(), []string{" ", ""})
	if err != nil {
		t.Fatalf("ExpireBatch: %v", err)
	}
	if report.TotalExpired != 0 || len(report.Errors) != 0 || report.Message == "" {
		t.Errorf("report = %+v", report)
	}
}

func TestCurrent(t *testing.T) {
	s := storetest.New()
	seedCatalog(s)
	s.AddCoupons("X")
	org := s.AddOrg("Acme")
	e := newEngine(s)
	ctx := context.Background()

	snap, err := e.Current(ctx, org.ID)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if snap.Plan != nil || snap.CouponCount != 0 {
		t.Errorf("fresh org snapshot = %+v", snap)
	}
	if _, err := e.Redeem(ctx, "X", org.ID, "u"); err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	snap, err = e.Current(ctx, org.ID)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if snap.Plan == nil || snap.Plan.ID != "plan-ltd-1" || snap.CouponCount != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
	if _, err := e.Current(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing org err = %v", err)
	}
}
