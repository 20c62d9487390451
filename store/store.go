// Package store is the persistence boundary of the daemon. Each backend
// package (memory, postgres, sqlite, redis) returns a [Store], and every
// one of them runs the conformance suite in store/storetest.
//
// The job state machine only needs single-row compare-and-set updates, so
// a Store is the [job.Store] contract plus connection lifecycle. Nothing
// here spans more than one row.
package store

import (
	"context"
	"fmt"

	"github.com/xraph/herald/job"
)

// Store is a job store with a connection lifecycle.
type Store interface {
	job.Store

	// Migrate brings the schema up to date. It is safe to call from
	// several daemons at once.
	Migrate(ctx context.Context) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases connections the store opened itself.
	Close() error
}

// Prepare checks that s is reachable and migrates it. The daemon calls it
// once before recovery runs, so recovery never sees a stale schema.
func Prepare(ctx context.Context, s Store) error {
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
