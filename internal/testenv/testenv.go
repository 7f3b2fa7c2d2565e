// Package testenv provides a migrated PostgreSQL connection for tests.
//
// Tests that need a database call DB(t). When TEST_DATABASE_URL is not set
// the test is skipped, so `go test ./...` stays green on machines without
// PostgreSQL. Packages share the database, so run them with -p 1.
package testenv

import (
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"weblog/internal/db"
)

// EnvDatabaseURL names the DSN of a disposable test database.
const EnvDatabaseURL = "TEST_DATABASE_URL"

var (
	once    sync.Once
	shared  *gorm.DB
	openErr error
	mu      sync.Mutex
)

// DB returns a clean, migrated database and installs it as db.DB.
// Tables are truncated before every call.
func DB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := os.Getenv(EnvDatabaseURL)
	if dsn == "" {
		t.Skipf("%s not set; skipping database test", EnvDatabaseURL)
	}
	once.Do(func() {
		shared, openErr = db.Open(dsn, false)
		if openErr == nil {
			openErr = db.Migrate(shared)
		}
	})
	require.NoError(t, openErr)

	mu.Lock()
	t.Cleanup(mu.Unlock)

	require.NoError(t, truncate(shared))
	db.DB = shared
	return shared
}

func truncate(conn *gorm.DB) error {
	var tables []string
	err := conn.Raw(`SELECT tablename FROM pg_tables WHERE schemaname = current_schema()`).Scan(&tables).Error
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		return nil
	}
	quoted := make([]string, len(tables))
	for i, t := range tables {
		quoted[i] = `"` + t + `"`
	}
	return conn.Exec("TRUNCATE " + strings.Join(quoted, ", ") + " RESTART IDENTITY CASCADE").Error
}
