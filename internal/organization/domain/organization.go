package domain

import (
	"errors"
	"strings"
	"time"
)

// Org is the tenant boundary. PlanID is nil when the organization has no plan.
type Org struct {
	ID        string
	Name      string
	PlanID    *string
	Billing   BillingRefs
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BillingRefs holds zero-or-one customer and subscription reference per payment provider.
type BillingRefs struct {
	StripeCustomerID           *string
	StripeSubscriptionID       *string
	DodoCustomerID             *string
	DodoSubscriptionID         *string
	LemonSqueezyCustomerID     *string
	LemonSqueezySubscriptionID *string
}

// HasSubscription reports whether any provider subscription is attached.
func (b BillingRefs) HasSubscription() bool {
	return b.StripeSubscriptionID != nil || b.DodoSubscriptionID != nil || b.LemonSqueezySubscriptionID != nil
}

// WithoutSubscriptions returns a copy with every subscription id cleared. Customer ids are kept.
func (b BillingRefs) WithoutSubscriptions() BillingRefs {
	b.StripeSubscriptionID = nil
	b.DodoSubscriptionID = nil
	b.LemonSqueezySubscriptionID = nil
	return b
}

// SamePlan reports whether the organization's plan reference equals planID.
func (o *Org) SamePlan(planID *string) bool {
	if o.PlanID == nil || planID == nil {
		return o.PlanID == nil && planID == nil
	}
	return *o.PlanID == *planID
}

// Validate validates the organization for persistence. Returns an error describing the first validation failure.
func (o *Org) Validate() error {
	o.Name = strings.TrimSpace(o.Name)
	if o.Name == "" {
		return errors.New("name is required")
	}
	if len(o.Name) > 120 {
		return errors.New("name must be at most 120 characters")
	}
	return nil
}
