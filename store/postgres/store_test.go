//go:build integration

package postgres_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/herald/store"
	"github.com/xraph/herald/store/postgres"
	"github.com/xraph/herald/store/storetest"
)

// setupContainer starts Postgres and returns its connection string.
func setupContainer(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("herald_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}
	return connStr
}

func TestConformance(t *testing.T) {
	connStr := setupContainer(t)

	storetest.Run(t, func(t *testing.T) store.Store {
		t.Helper()
		ctx := context.Background()

		s, err := postgres.New(ctx, connStr, postgres.WithLogger(slog.Default()))
		if err != nil {
			t.Fatalf("connect: %v", err)
		}
		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		if _, err := s.Pool().Exec(ctx, `TRUNCATE herald_jobs RESTART IDENTITY`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return s
	})
}

func TestMigrateRecordsFiles(t *testing.T) {
	connStr := setupContainer(t)
	ctx := context.Background()

	s, err := postgres.New(ctx, connStr)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close()

	for range 2 {
		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("migrate: %v", err)
		}
	}

	var n int
	if err := s.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM herald_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 2 {
		t.Errorf("recorded migrations = %d, want 2", n)
	}
}

func TestMigrateConcurrentDaemons(t *testing.T) {
	connStr := setupContainer(t)
	ctx := context.Background()

	var g errgroup.Group
	for range 3 {
		g.Go(func() error {
			s, err := postgres.New(ctx, connStr)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.Migrate(ctx)
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent migrate: %v", err)
	}

	s, err := postgres.New(ctx, connStr)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer s.Close()
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	var n int
	if err := s.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM herald_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 2 {
		t.Errorf("recorded migrations = %d, want 2", n)
	}
}
