package storetest

import (
	"context"

	"saas-control-plane/internal/entitlement"
)

// EntitlementStores returns the engine's view of v.
func EntitlementStores(v *View) entitlement.Stores {
	return entitlement.Stores{Coupons: v.Coupons, Plans: v.Plans, Orgs: v.Orgs}
}

// EntitlementUoW runs engine transactions on a Store.
type EntitlementUoW struct {
	S *Store
}

// Do runs fn inside Store.Tx.
func (u EntitlementUoW) Do(ctx context.Context, fn func(s entitlement.Stores) error) error {
	return u.S.Tx(ctx, func(v *View) error {
		return fn(EntitlementStores(v))
	})
}
