//go:build integration

// Package containers provides testcontainers-based fixtures for integration tests.
package containers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/infest-events/registration/pkg/database"
)

// PostgresContainer wraps a Postgres instance with every migration applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	Pool      *pgxpool.Pool
}

var (
	pgOnce    sync.Once
	shared    *PostgresContainer
	sharedErr error
)

// GetPostgres returns the package-wide container, starting it on first use.
// Ryuk removes it when the test binary exits.
func GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	pgOnce.Do(func() {
		shared, sharedErr = start(context.Background())
	})
	if sharedErr != nil {
		t.Fatalf("start postgres container: %v", sharedErr)
	}
	return shared
}

func start(ctx context.Context) (*PostgresContainer, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("infest_test"),
		postgres.WithUsername("infest"),
		postgres.WithPassword("infest_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	pool, err := database.NewPostgresPool(ctx, database.PoolConfig{DSN: dsn, MaxConns: 20}, nil)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	if err := database.Migrate(ctx, pool, nil); err != nil {
		pool.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}
	return &PostgresContainer{Container: container, DSN: dsn, Pool: pool}, nil
}

// TruncateTables clears the given tables between tests.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if _, err := p.Pool.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears every application table.
func (p *PostgresContainer) Reset(ctx context.Context) error {
	return p.TruncateTables(ctx, "email_logs", "payment_events", "registrations", "staff_users")
}
