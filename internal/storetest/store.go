// Package storetest provides an in-memory, transactional implementation of every repository for
// service-level tests. Each call is atomic; Tx runs a function with exclusive access and restores
// the previous state when it returns an error.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	auditdomain "saas-control-plane/internal/audit/domain"
	coupondomain "saas-control-plane/internal/coupon/domain"
	identitydomain "saas-control-plane/internal/identity/domain"
	invitationdomain "saas-control-plane/internal/invitation/domain"
	membershipdomain "saas-control-plane/internal/membership/domain"
	orgdomain "saas-control-plane/internal/organization/domain"
	plandomain "saas-control-plane/internal/plan/domain"
	"saas-control-plane/internal/platform/apperr"
	sessiondomain "saas-control-plane/internal/session/domain"
	userdomain "saas-control-plane/internal/user/domain"
)

type data struct {
	users       map[string]userdomain.User
	identities  map[string]identitydomain.Identity
	orgs        map[string]orgdomain.Org
	memberships map[string]membershipdomain.Membership
	sessions    map[string]sessiondomain.Session
	invitations map[string]invitationdomain.Invitation
	coupons     map[string]coupondomain.Coupon
	plans       map[string]plandomain.Plan
	audit       []auditdomain.AuditLog
	writes      int
}

func newData() *data {
	return &data{
		users:       map[string]userdomain.User{},
		identities:  map[string]identitydomain.Identity{},
		orgs:        map[string]orgdomain.Org{},
		memberships: map[string]membershipdomain.Membership{},
		sessions:    map[string]sessiondomain.Session{},
		invitations: map[string]invitationdomain.Invitation{},
		coupons:     map[string]coupondomain.Coupon{},
		plans:       map[string]plandomain.Plan{},
	}
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.identities {
		c.identities[k] = v
	}
	for k, v := range d.orgs {
		c.orgs[k] = v
	}
	for k, v := range d.memberships {
		c.memberships[k] = v
	}
	for k, v := range d.sessions {
		c.sessions[k] = v
	}
	for k, v := range d.invitations {
		c.invitations[k] = v
	}
	for k, v := range d.coupons {
		c.coupons[k] = v
	}
	for k, v := range d.plans {
		c.plans[k] = v
	}
	c.audit = append(c.audit, d.audit...)
	c.writes = d.writes
	return c
}

// Store is the shared in-memory database.
type Store struct {
	mu sync.Mutex
	d  *data
	// FailPersistPlan makes PersistPlan fail for the listed organization ids.
	FailPersistPlan map[string]bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{d: newData(), FailPersistPlan: map[string]bool{}}
}

// View exposes the repositories over a Store, either auto-locking per call or inside a Tx.
type View struct {
	s    *Store
	inTx bool

	Users       *Users
	Identities  *Identities
	Orgs        *Orgs
	Memberships *Memberships
	Sessions    *Sessions
	Invitations *Invitations
	Coupons     *Coupons
	Plans       *Plans
	Audit       *Audit
}

func newView(s *Store, inTx bool) *View {
	v := &View{s: s, inTx: inTx}
	v.Users = &Users{v}
	v.Identities = &Identities{v}
	v.Orgs = &Orgs{v}
	v.Memberships = &Memberships{v}
	v.Sessions = &Sessions{v}
	v.Invitations = &Invitations{v}
	v.Coupons = &Coupons{v}
	v.Plans = &Plans{v}
	v.Audit = &Audit{v}
	return v
}

// Repos returns the auto-locking view.
func (s *Store) Repos() *View {
	return newView(s, false)
}

// Tx runs fn with exclusive access. If fn returns an error every write it made is discarded.
func (s *Store) Tx(ctx context.Context, fn func(v *View) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.d.clone()
	if err := fn(newView(s, true)); err != nil {
		s.d = snapshot
		return err
	}
	return nil
}

// Writes returns the number of mutating calls committed so far.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.writes
}

func (v *View) acquire() func() {
	if v.inTx {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

func (v *View) db() *data {
	return v.s.d
}

func (v *View) wrote() {
	v.s.d.writes++
}

func strPtr(s string) *string {
	return &s
}

func copyStr(p *string) *string {
	if p == nil {
		return nil
	}
	return strPtr(*p)
}

// Users implements the user repository.
type Users struct{ v *View }

func (r *Users) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	defer r.v.acquire()()
	u, ok := r.v.db().users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *Users) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	defer r.v.acquire()()
	email = userdomain.NormalizeEmail(email)
	for _, u := range r.v.db().users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (r *Users) Create(ctx context.Context, u *userdomain.User) error {
	defer r.v.acquire()()
	for _, existing := range r.v.db().users {
		if existing.Email == u.Email {
			return fmt.Errorf("email already registered: %w", apperr.ErrConflict)
		}
	}
	r.v.db().users[u.ID] = *u
	r.v.wrote()
	return nil
}

func (r *Users) UpdateName(ctx context.Context, id, name string) error {
	defer r.v.acquire()()
	u, ok := r.v.db().users[id]
	if !ok {
		return nil
	}
	u.Name = name
	r.v.db().users[id] = u
	r.v.wrote()
	return nil
}

// Identities implements the identity repository.
type Identities struct{ v *View }

func (r *Identities) GetByUserAndProvider(ctx context.Context, userID string, provider identitydomain.IdentityProvider) (*identitydomain.Identity, error) {
	defer r.v.acquire()()
	for _, i := range r.v.db().identities {
		if i.UserID == userID && i.Provider == provider {
			i := i
			return &i, nil
		}
	}
	return nil, nil
}

func (r *Identities) Create(ctx context.Context, i *identitydomain.Identity) error {
	defer r.v.acquire()()
	r.v.db().identities[i.ID] = *i
	r.v.wrote()
	return nil
}

// Orgs implements the organization repository.
type Orgs struct{ v *View }

func (r *Orgs) GetOrganizationByID(ctx context.Context, id string) (*orgdomain.Org, error) {
	defer r.v.acquire()()
	o, ok := r.v.db().orgs[id]
	if !ok {
		return nil, nil
	}
	o.PlanID = copyStr(o.PlanID)
	return &o, nil
}

func (r *Orgs) CreateOrganization(ctx context.Context, o *orgdomain.Org) error {
	defer r.v.acquire()()
	if _, ok := r.v.db().orgs[o.ID]; ok {
		return fmt.Errorf("organization exists: %w", apperr.ErrConflict)
	}
	r.v.db().orgs[o.ID] = *o
	r.v.wrote()
	return nil
}

func (r *Orgs) UpdateOrganization(ctx context.Context, o *orgdomain.Org) error {
	defer r.v.acquire()()
	r.v.db().orgs[o.ID] = *o
	r.v.wrote()
	return nil
}

// DeleteOrganization removes the organization and cascades like the SQL schema does.
func (r *Orgs) DeleteOrganization(ctx context.Context, id string) error {
	defer r.v.acquire()()
	d := r.v.db()
	delete(d.orgs, id)
	for k, m := range d.memberships {
		if m.OrgID == id {
			delete(d.memberships, k)
		}
	}
	for k, inv := range d.invitations {
		if inv.OrgID == id {
			delete(d.invitations, k)
		}
	}
	for k, s := range d.sessions {
		if s.CurrentOrgID != nil && *s.CurrentOrgID == id {
			s.CurrentOrgID = nil
			d.sessions[k] = s
		}
	}
	for k, c := range d.coupons {
		if c.OrganizationID != nil && *c.OrganizationID == id {
			c.OrganizationID = nil
			d.coupons[k] = c
		}
	}
	r.v.wrote()
	return nil
}

// LockOrganization reports existence; Tx already serializes access.
func (r *Orgs) LockOrganization(ctx context.Context, id string) (bool, error) {
	defer r.v.acquire()()
	_, ok := r.v.db().orgs[id]
	return ok, nil
}

func (r *Orgs) PersistPlan(ctx context.Context, orgID string, planID *string, clearSubscriptions bool) error {
	defer r.v.acquire()()
	if r.v.s.FailPersistPlan[orgID] {
		return fmt.Errorf("persist plan for %s: injected failure", orgID)
	}
	o, ok := r.v.db().orgs[orgID]
	if !ok {
		return nil
	}
	o.PlanID = copyStr(planID)
	if clearSubscriptions {
		o.Billing = o.Billing.WithoutSubscriptions()
	}
	r.v.db().orgs[orgID] = o
	r.v.wrote()
	return nil
}

// Memberships implements the membership repository.
type Memberships struct{ v *View }

func (r *Memberships) GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*membershipdomain.Membership, error) {
	defer r.v.acquire()()
	for _, m := range r.v.db().memberships {
		if m.UserID == userID && m.OrgID == orgID {
			m := m
			return &m, nil
		}
	}
	return nil, nil
}

func (r *Memberships) list(match func(m membershipdomain.Membership) bool) []*membershipdomain.Membership {
	var out []*membershipdomain.Membership
	for _, m := range r.v.db().memberships {
		if match(m) {
			m := m
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *Memberships) ListMembershipsByOrg(ctx context.Context, orgID string) ([]*membershipdomain.Membership, error) {
	defer r.v.acquire()()
	return r.list(func(m membershipdomain.Membership) bool { return m.OrgID == orgID }), nil
}

func (r *Memberships) ListMembershipsByUser(ctx context.Context, userID string) ([]*membershipdomain.Membership, error) {
	defer r.v.acquire()()
	return r.list(func(m membershipdomain.Membership) bool { return m.UserID == userID }), nil
}

func (r *Memberships) CreateMembership(ctx context.Context, m *membershipdomain.Membership) error {
	defer r.v.acquire()()
	for _, existing := range r.v.db().memberships {
		if existing.UserID == m.UserID && existing.OrgID == m.OrgID {
			return fmt.Errorf("membership exists: %w", apperr.ErrConflict)
		}
	}
	r.v.db().memberships[m.ID] = *m
	r.v.wrote()
	return nil
}

func (r *Memberships) DeleteByUserAndOrg(ctx context.Context, userID, orgID string) error {
	defer r.v.acquire()()
	for k, m := range r.v.db().memberships {
		if m.UserID == userID && m.OrgID == orgID {
			delete(r.v.db().memberships, k)
			r.v.wrote()
		}
	}
	return nil
}

func (r *Memberships) UpdateRole(ctx context.Context, userID, orgID string, role membershipdomain.Role) (*membershipdomain.Membership, error) {
	defer r.v.acquire()()
	for k, m := range r.v.db().memberships {
		if m.UserID == userID && m.OrgID == orgID {
			m.Role = role
			r.v.db().memberships[k] = m
			r.v.wrote()
			return &m, nil
		}
	}
	return nil, nil
}

func (r *Memberships) CountByOrg(ctx context.Context, orgID string) (int, error) {
	defer r.v.acquire()()
	n := 0
	for _, m := range r.v.db().memberships {
		if m.OrgID == orgID {
			n++
		}
	}
	return n, nil
}

// Sessions implements the session repository.
type Sessions struct{ v *View }

func (r *Sessions) GetByID(ctx context.Context, id string) (*sessiondomain.Session, error) {
	defer r.v.acquire()()
	s, ok := r.v.db().sessions[id]
	if !ok {
		return nil, nil
	}
	s.CurrentOrgID = copyStr(s.CurrentOrgID)
	return &s, nil
}

func (r *Sessions) Create(ctx context.Context, s *sessiondomain.Session) error {
	defer r.v.acquire()()
	r.v.db().sessions[s.ID] = *s
	r.v.wrote()
	return nil
}

func (r *Sessions) Revoke(ctx context.Context, id string) error {
	defer r.v.acquire()()
	s, ok := r.v.db().sessions[id]
	if !ok || s.RevokedAt != nil {
		return nil
	}
	now := time.Now().UTC()
	s.RevokedAt = &now
	r.v.db().sessions[id] = s
	r.v.wrote()
	return nil
}

func (r *Sessions) SetCurrentOrg(ctx context.Context, id, orgID string) error {
	defer r.v.acquire()()
	s, ok := r.v.db().sessions[id]
	if !ok {
		return nil
	}
	s.CurrentOrgID = strPtr(orgID)
	r.v.db().sessions[id] = s
	r.v.wrote()
	return nil
}

func (r *Sessions) DeleteInactive(ctx context.Context, cutoff time.Time) (int64, error) {
	defer r.v.acquire()()
	var n int64
	for k, s := range r.v.db().sessions {
		if !s.ExpiresAt.After(cutoff) || (s.RevokedAt != nil && !s.RevokedAt.After(cutoff)) {
			delete(r.v.db().sessions, k)
			n++
		}
	}
	if n > 0 {
		r.v.wrote()
	}
	return n, nil
}

// Invitations implements the invitation repository.
type Invitations struct{ v *View }

func (r *Invitations) Create(ctx context.Context, inv *invitationdomain.Invitation) error {
	defer r.v.acquire()()
	for _, existing := range r.v.db().invitations {
		if existing.OrgID == inv.OrgID && strings.EqualFold(existing.Email, inv.Email) {
			return fmt.Errorf("invitation exists: %w", apperr.ErrConflict)
		}
		if existing.Token == inv.Token {
			return fmt.Errorf("invitation token exists: %w", apperr.ErrConflict)
		}
	}
	r.v.db().invitations[inv.ID] = *inv
	r.v.wrote()
	return nil
}

func (r *Invitations) GetByID(ctx context.Context, id string) (*invitationdomain.Invitation, error) {
	defer r.v.acquire()()
	inv, ok := r.v.db().invitations[id]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (r *Invitations) GetByToken(ctx context.Context, token string) (*invitationdomain.Invitation, error) {
	defer r.v.acquire()()
	for _, inv := range r.v.db().invitations {
		if inv.Token == token {
			inv := inv
			return &inv, nil
		}
	}
	return nil, nil
}

func (r *Invitations) ListByOrg(ctx context.Context, orgID string) ([]*invitationdomain.Invitation, error) {
	defer r.v.acquire()()
	var out []*invitationdomain.Invitation
	for _, inv := range r.v.db().invitations {
		if inv.OrgID == orgID {
			inv := inv
			out = append(out, &inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *Invitations) Delete(ctx context.Context, id string) error {
	defer r.v.acquire()()
	if _, ok := r.v.db().invitations[id]; ok {
		delete(r.v.db().invitations, id)
		r.v.wrote()
	}
	return nil
}

func (r *Invitations) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	defer r.v.acquire()()
	var n int64
	for k, inv := range r.v.db().invitations {
		if !inv.ExpiresAt.After(now) {
			delete(r.v.db().invitations, k)
			n++
		}
	}
	if n > 0 {
		r.v.wrote()
	}
	return n, nil
}

// Coupons implements the coupon repository.
type Coupons struct{ v *View }

func (r *Coupons) GetByCode(ctx context.Context, code string) (*coupondomain.Coupon, error) {
	defer r.v.acquire()()
	c, ok := r.v.db().coupons[coupondomain.NormalizeCode(code)]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *Coupons) CreateMany(ctx context.Context, codes []string, createdAt time.Time) ([]string, error) {
	defer r.v.acquire()()
	var inserted []string
	for _, code := range codes {
		code = coupondomain.NormalizeCode(code)
		if _, ok := r.v.db().coupons[code]; ok || code == "" {
			continue
		}
		r.v.db().coupons[code] = coupondomain.Coupon{Code: code, CreatedAt: createdAt}
		inserted = append(inserted, code)
	}
	if len(inserted) > 0 {
		r.v.wrote()
	}
	return inserted, nil
}

func (r *Coupons) Claim(ctx context.Context, code, orgID, userID string, at time.Time) (*coupondomain.Coupon, error) {
	defer r.v.acquire()()
	code = coupondomain.NormalizeCode(code)
	c, ok := r.v.db().coupons[code]
	if !ok || c.UsedAt != nil || c.Expired {
		return nil, nil
	}
	c.UsedAt = &at
	c.OrganizationID = strPtr(orgID)
	c.UsedByUserID = strPtr(userID)
	r.v.db().coupons[code] = c
	r.v.wrote()
	return &c, nil
}

func (r *Coupons) CountValidByOrg(ctx context.Context, orgID string) (int, error) {
	defer r.v.acquire()()
	n := 0
	for _, c := range r.v.db().coupons {
		if c.CountsFor(orgID) {
			n++
		}
	}
	return n, nil
}

func (r *Coupons) ExpireByCodes(ctx context.Context, codes []string) ([]*coupondomain.Coupon, error) {
	defer r.v.acquire()()
	var out []*coupondomain.Coupon
	for _, code := range codes {
		c, ok := r.v.db().coupons[code]
		if !ok || c.Expired {
			continue
		}
		c.Expired = true
		r.v.db().coupons[code] = c
		c2 := c
		out = append(out, &c2)
	}
	if len(out) > 0 {
		r.v.wrote()
	}
	return out, nil
}

func (r *Coupons) ListByOrg(ctx context.Context, orgID string) ([]*coupondomain.Coupon, error) {
	defer r.v.acquire()()
	var out []*coupondomain.Coupon
	for _, c := range r.v.db().coupons {
		if c.OrganizationID != nil && *c.OrganizationID == orgID {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// Plans implements the plan repository.
type Plans struct{ v *View }

func (r *Plans) GetByID(ctx context.Context, id string) (*plandomain.Plan, error) {
	defer r.v.acquire()()
	p, ok := r.v.db().plans[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *Plans) FindByRequiredCouponCount(ctx context.Context, count int) ([]*plandomain.Plan, error) {
	defer r.v.acquire()()
	var out []*plandomain.Plan
	for _, p := range r.v.db().plans {
		if p.RequiredCouponCount != nil && *p.RequiredCouponCount == count {
			p := p
			out = append(out, &p)
		}
	}
	sortPlans(out)
	return out, nil
}

func (r *Plans) FindDefault(ctx context.Context) (*plandomain.Plan, error) {
	defer r.v.acquire()()
	for _, p := range r.v.db().plans {
		if p.Default {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (r *Plans) List(ctx context.Context) ([]*plandomain.Plan, error) {
	defer r.v.acquire()()
	out := make([]*plandomain.Plan, 0, len(r.v.db().plans))
	for _, p := range r.v.db().plans {
		p := p
		out = append(out, &p)
	}
	sortPlans(out)
	return out, nil
}

func (r *Plans) Upsert(ctx context.Context, p *plandomain.Plan) error {
	defer r.v.acquire()()
	for id, existing := range r.v.db().plans {
		if existing.Codename == p.Codename {
			p.ID = id
			break
		}
	}
	if p.Default {
		for id, existing := range r.v.db().plans {
			if existing.Default && id != p.ID {
				return fmt.Errorf("default plan exists: %w", apperr.ErrConflict)
			}
		}
	}
	r.v.db().plans[p.ID] = *p
	r.v.wrote()
	return nil
}

func sortPlans(ps []*plandomain.Plan) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].CreatedAt.Before(ps[j].CreatedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}

// Audit implements the audit repository.
type Audit struct{ v *View }

func (r *Audit) ListByOrg(ctx context.Context, orgID string, limit, offset int32) ([]*auditdomain.AuditLog, error) {
	defer r.v.acquire()()
	var out []*auditdomain.AuditLog
	for i := len(r.v.db().audit) - 1; i >= 0; i-- {
		a := r.v.db().audit[i]
		if a.OrgID == orgID {
			out = append(out, &a)
		}
	}
	if int(offset) >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && int(limit) < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *Audit) Create(ctx context.Context, a *auditdomain.AuditLog) error {
	defer r.v.acquire()()
	r.v.db().audit = append(r.v.db().audit, *a)
	return nil
}
