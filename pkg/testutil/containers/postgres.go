//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"bastion/internal/platform/database"
	id "bastion/pkg/domain"
)

// PostgresContainer is a PostgreSQL instance with every bastion migration
// applied through the same Migrator the migrate subcommand uses.
type PostgresContainer struct {
	Container testcontainers.Container
	URL       string
	DB        *sql.DB
}

func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("bastion_test"),
		postgres.WithUsername("bastion"),
		postgres.WithPassword("bastion_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	fail := func(format string, args ...any) {
		_ = container.Terminate(ctx)
		t.Fatalf(format, args...)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fail("postgres connection string: %v", err)
	}
	if err := migrateUp(url); err != nil {
		fail("apply migrations: %v", err)
	}
	db, err := sql.Open("pgx", url)
	if err != nil {
		fail("open postgres: %v", err)
	}
	// Stay under the server's max_connections when suites fan out.
	db.SetMaxOpenConns(20)

	// No t.Cleanup: the Manager shares this container across suites and Ryuk
	// removes it when the test binary exits.
	return &PostgresContainer{Container: container, URL: url, DB: db}
}

func migrateUp(url string) error {
	m, err := database.NewMigrator(url)
	if err != nil {
		return err
	}
	defer m.Close() //nolint:errcheck // test fixture
	return m.Up()
}

// TruncateTables empties the named tables between tests.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if _, err := p.DB.ExecContext(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	return nil
}

// TruncateAll empties every bastion table.
func (p *PostgresContainer) TruncateAll(ctx context.Context) error {
	return p.TruncateTables(ctx, "rate_limit_events", "accounts")
}

func (p *PostgresContainer) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return p.DB.QueryRowContext(ctx, query, args...)
}

// CreateTestAccount inserts an unverified, unlocked user account directly,
// bypassing the store under test.
func (p *PostgresContainer) CreateTestAccount(ctx context.Context, t testing.TB, email, passwordHash string) id.AccountID {
	t.Helper()
	accountID := id.NewAccountID()
	_, err := p.DB.ExecContext(ctx, `
		INSERT INTO accounts (id, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, 'user', NOW(), NOW())
	`, uuid.UUID(accountID), email, passwordHash)
	if err != nil {
		t.Fatalf("CreateTestAccount: %v", err)
	}
	return accountID
}
