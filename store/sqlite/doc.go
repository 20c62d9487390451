// Package sqlite implements store.Store on database/sql with the
// mattn/go-sqlite3 driver. Suitable for single-host deployments where a
// database server is not worth running.
//
// The database is opened in WAL mode with a busy timeout and a single
// connection, so every statement is serialised by the pool:
//
//	import "github.com/xraph/herald/store/sqlite"
//
//	s, err := sqlite.Open(ctx, "/var/lib/herald/herald.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//	s.Migrate(ctx)
//
// Timestamps are stored as fixed-width UTC text so that lexical comparison
// in SQL matches chronological order.
package sqlite
