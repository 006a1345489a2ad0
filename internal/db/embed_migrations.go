package db

import "embed"

// MigrationFS holds the schema (users, identities, plans, organizations, memberships, sessions,
// invitations, coupons, audit_logs) as golang-migrate up/down pairs.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
