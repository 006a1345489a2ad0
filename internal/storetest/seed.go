package storetest

import (
	"context"
	"time"

	"github.com/google/uuid"

	membershipdomain "saas-control-plane/internal/membership/domain"
	orgdomain "saas-control-plane/internal/organization/domain"
	plandomain "saas-control-plane/internal/plan/domain"
	sessiondomain "saas-control-plane/internal/session/domain"
	userdomain "saas-control-plane/internal/user/domain"
)

// Epoch is the base time used by seed helpers; later seeds get later timestamps.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Int returns a pointer to n.
func Int(n int) *int {
	return &n
}

// AddPlan stores a plan. required and teamMembers may be nil. Plans are created one minute apart in call order.
func (s *Store) AddPlan(codename string, required *int, isDefault bool, teamMembers *int) *plandomain.Plan {
	s.mu.Lock()
	created := Epoch.Add(time.Duration(len(s.d.plans)) * time.Minute)
	s.mu.Unlock()
	p := &plandomain.Plan{
		ID:                  "plan-" + codename,
		Codename:            codename,
		RequiredCouponCount: required,
		Default:             isDefault,
		Quotas:              plandomain.Quotas{TeamMembers: teamMembers},
		CreatedAt:           created,
	}
	if err := s.Repos().Plans.Upsert(context.Background(), p); err != nil {
		panic(err)
	}
	return p
}

// AddUser stores an active user with the given email.
func (s *Store) AddUser(email string) *userdomain.User {
	u := &userdomain.User{
		ID:        uuid.New().String(),
		Email:     userdomain.NormalizeEmail(email),
		Status:    userdomain.UserStatusActive,
		CreatedAt: Epoch,
		UpdatedAt: Epoch,
	}
	if err := s.Repos().Users.Create(context.Background(), u); err != nil {
		panic(err)
	}
	return u
}

// AddOrg stores a planless organization.
func (s *Store) AddOrg(name string) *orgdomain.Org {
	o := &orgdomain.Org{ID: uuid.New().String(), Name: name, CreatedAt: Epoch, UpdatedAt: Epoch}
	if err := s.Repos().Orgs.CreateOrganization(context.Background(), o); err != nil {
		panic(err)
	}
	return o
}

// AddMember stores a membership created at Epoch plus offset.
func (s *Store) AddMember(userID, orgID string, role membershipdomain.Role, offset time.Duration) *membershipdomain.Membership {
	m := &membershipdomain.Membership{
		ID:        uuid.New().String(),
		UserID:    userID,
		OrgID:     orgID,
		Role:      role,
		CreatedAt: Epoch.Add(offset),
	}
	if err := s.Repos().Memberships.CreateMembership(context.Background(), m); err != nil {
		panic(err)
	}
	return m
}

// AddSession stores an active session for userID expiring at expiresAt.
func (s *Store) AddSession(userID string, currentOrgID *string, expiresAt time.Time) *sessiondomain.Session {
	sess := &sessiondomain.Session{
		ID:           uuid.New().String(),
		UserID:       userID,
		CurrentOrgID: currentOrgID,
		ExpiresAt:    expiresAt,
		CreatedAt:    Epoch,
	}
	if err := s.Repos().Sessions.Create(context.Background(), sess); err != nil {
		panic(err)
	}
	return sess
}

// AddCoupons stores unused coupons.
func (s *Store) AddCoupons(codes ...string) {
	if _, err := s.Repos().Coupons.CreateMany(context.Background(), codes, Epoch); err != nil {
		panic(err)
	}
}
