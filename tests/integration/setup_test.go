package integration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/guildhall-io/guildhall/pkg/audit"
	"github.com/guildhall-io/guildhall/pkg/directory"
	"github.com/guildhall-io/guildhall/pkg/governance"
	"github.com/guildhall-io/guildhall/pkg/grants"
	"github.com/guildhall-io/guildhall/pkg/notify"
	"github.com/guildhall-io/guildhall/pkg/requests"
	"github.com/guildhall-io/guildhall/pkg/storage/postgres"
)

// setupDatabase starts a disposable PostgreSQL container and applies
// every feature migration. Skips when Docker is unavailable or the test
// run is short.
func setupDatabase(t *testing.T) *sql.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker not available, skipping integration tests")
	}
	provider.Close()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("guildhall_test"),
		tcpostgres.WithUsername("guildhall"),
		tcpostgres.WithPassword("guildhall_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Ping())

	var migrations []postgres.Migration
	migrations = append(migrations, directory.Migrations()...)
	migrations = append(migrations, grants.Migrations()...)
	migrations = append(migrations, notify.Migrations()...)
	migrations = append(migrations, requests.Migrations()...)
	migrations = append(migrations, audit.Migrations()...)
	require.NoError(t, postgres.RunMigrations(ctx, db, migrations))

	return db
}

// seedMember inserts a member directly, bypassing the API, and returns
// its id. Identity may be empty for members who never log in.
func seedMember(t *testing.T, db *sql.DB, fullName string, role governance.Role, identity string) int64 {
	t.Helper()

	var id int64
	var err error
	if identity == "" {
		err = db.QueryRow(
			`INSERT INTO members (full_name, role) VALUES ($1, $2) RETURNING id`,
			fullName, role,
		).Scan(&id)
	} else {
		err = db.QueryRow(
			`INSERT INTO members (full_name, role, external_identity) VALUES ($1, $2, $3) RETURNING id`,
			fullName, role, identity,
		).Scan(&id)
	}
	require.NoError(t, err)
	return id
}
