//go:build integration

package containers

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// PostgresContainer wraps a migrated testcontainers Postgres instance.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        database.DB
}

// NewPostgresContainer starts Postgres, connects, and applies db/pg migrations.
// The container is terminated when the test finishes.
func NewPostgresContainer(t *testing.T, logger ectologger.Logger) *PostgresContainer {
	t.Helper()

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("fern"),
		tcpostgres.WithUsername("fern"),
		tcpostgres.WithPassword("fern"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := database.Open(ctx, dsn, database.PoolOptions{MaxOpenConns: 10, MaxIdleConns: 5}, logger)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: migrationsDir(),
	})
	if err := migrations.MigratePostgres(db); err != nil {
		t.Fatalf("failed to migrate postgres: %v", err)
	}

	return &PostgresContainer{Container: container, DSN: dsn, DB: db}
}

// Truncate empties the contact table and restarts its id sequence.
func (p *PostgresContainer) Truncate(t *testing.T) {
	t.Helper()
	if _, err := p.DB.ExecContext(context.Background(), "TRUNCATE contact RESTART IDENTITY"); err != nil {
		t.Fatalf("failed to truncate contact: %v", err)
	}
}

func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "db", "pg")
}
