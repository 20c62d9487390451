// Package postgres implements the store using pgx/v5 with raw SQL.
//
// Every state transition is a single UPDATE, so concurrent readers never see
// a half-written row. Guarded transitions put the expected status in the
// WHERE clause. Migrations are embedded SQL files applied in filename order
// and tracked in herald_migrations.
package postgres
