// Package catalog loads the plan catalog and launch coupons from YAML and writes them to the store.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	coupondomain "saas-control-plane/internal/coupon/domain"
	"saas-control-plane/internal/plan/domain"
)

// Catalog is the seed document.
type Catalog struct {
	Plans   []PlanSpec `yaml:"plans"`
	Coupons []string   `yaml:"coupons"`
}

// PlanSpec is one plan entry. A nil RequiredCoupons never matches a coupon count; nil TeamMembers
// is unlimited.
type PlanSpec struct {
	Codename        string `yaml:"codename"`
	RequiredCoupons *int   `yaml:"required_coupons"`
	Default         bool   `yaml:"default"`
	TeamMembers     *int   `yaml:"team_members"`
}

// PlanUpserter writes plans by codename.
type PlanUpserter interface {
	Upsert(ctx context.Context, p *domain.Plan) error
}

// CouponCreator inserts unused coupons, skipping existing codes.
type CouponCreator interface {
	CreateMany(ctx context.Context, codes []string, createdAt time.Time) ([]string, error)
}

// Result counts what Apply wrote.
type Result struct {
	Plans   int
	Coupons int
}

// LoadFile reads and validates the catalog at path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Load decodes and validates a catalog. Unknown keys are rejected.
func Load(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var c Catalog
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("catalog is empty")
		}
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks codenames are present and unique, at most one plan is the default, no two plans
// share a coupon count, and counts and quotas are non-negative.
func (c *Catalog) Validate() error {
	codenames := make(map[string]bool, len(c.Plans))
	counts := make(map[int]string, len(c.Plans))
	defaults := 0
	for i, p := range c.Plans {
		name := strings.TrimSpace(p.Codename)
		if name == "" {
			return fmt.Errorf("plans[%d]: codename is required", i)
		}
		if codenames[name] {
			return fmt.Errorf("plans[%d]: duplicate codename %q", i, name)
		}
		codenames[name] = true
		if p.Default {
			defaults++
		}
		if p.RequiredCoupons != nil {
			if *p.RequiredCoupons < 0 {
				return fmt.Errorf("plan %q: required_coupons must not be negative", name)
			}
			if other, ok := counts[*p.RequiredCoupons]; ok {
				return fmt.Errorf("plan %q: required_coupons %d already used by %q", name, *p.RequiredCoupons, other)
			}
			counts[*p.RequiredCoupons] = name
		}
		if p.TeamMembers != nil && *p.TeamMembers < 0 {
			return fmt.Errorf("plan %q: team_members must not be negative", name)
		}
	}
	if defaults > 1 {
		return errors.New("at most one plan may be the default")
	}
	for i, code := range c.Coupons {
		if coupondomain.NormalizeCode(code) == "" {
			return fmt.Errorf("coupons[%d]: code is empty", i)
		}
	}
	return nil
}

// Apply upserts every plan by codename and inserts coupons that do not exist yet. Re-applying the
// same catalog changes nothing.
func (c *Catalog) Apply(ctx context.Context, plans PlanUpserter, coupons CouponCreator, now time.Time) (Result, error) {
	var res Result
	for _, p := range c.Plans {
		plan := &domain.Plan{
			ID:                  uuid.New().String(),
			Codename:            strings.TrimSpace(p.Codename),
			RequiredCouponCount: p.RequiredCoupons,
			Default:             p.Default,
			Quotas:              domain.Quotas{TeamMembers: p.TeamMembers},
			CreatedAt:           now,
		}
		if err := plans.Upsert(ctx, plan); err != nil {
			return res, fmt.Errorf("upsert plan %q: %w", plan.Codename, err)
		}
		res.Plans++
	}
	if len(c.Coupons) > 0 {
		inserted, err := coupons.CreateMany(ctx, c.Coupons, now)
		if err != nil {
			return res, fmt.Errorf("create coupons: %w", err)
		}
		res.Coupons = len(inserted)
	}
	return res, nil
}
