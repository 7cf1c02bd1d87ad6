package testutil

import (
	"context"
	"database/sql"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// PGContainer starts a throwaway Postgres container and returns a connected
// *sql.DB. The container and connection are torn down with the test. Skips
// when Docker is unavailable, so CI without a daemon stays green.
func PGContainer(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("hmsc_test"),
		tcpostgres.WithUsername("hmsc"),
		tcpostgres.WithPassword("hmsc"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("pgtest: start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("pgtest: container connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("pgtest: open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Fatalf("pgtest: connect to database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}
