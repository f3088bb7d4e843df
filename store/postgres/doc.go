// Package postgres provides PostgreSQL implementations of
// authshield.UserStore and authshield.EventLog on top of pgx.
//
// Both stores take a [DB], which *pgxpool.Pool satisfies. Call [Migrate]
// once at startup to create the tables.
//
// Token redemption is a single conditional UPDATE, so two concurrent
// redemptions of the same token cannot both succeed.
package postgres
