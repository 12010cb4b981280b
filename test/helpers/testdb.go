package helpers

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"commission_backend/database"
	"commission_backend/internal/app"
	"commission_backend/internal/config"
)

// TestDSN returns TEST_DATABASE_URL and skips the test when it is unset.
func TestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping postgres test")
	}
	return dsn
}

// TestConfig is a configuration pointing at the test database with local storage in a temp dir.
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Env = "test"
	cfg.Database.DSN = TestDSN(t)
	cfg.JWT.Secret = "integration-test-secret-long-enough"
	cfg.Storage.BasePath = t.TempDir()
	cfg.Archive.Enabled = false
	cfg.Commerce.PricePerRevision = "100"
	cfg.Commerce.PinPackPrice = "50"
	return cfg
}

// OpenTestDB connects, migrates and empties every table.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := TestConfig(t)

	db, err := app.OpenDatabase(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	require.NoError(t, database.AutoMigrate(db))
	migrator, err := database.NewMigrator(cfg.Database.DSN)
	require.NoError(t, err)
	defer migrator.Close()
	require.NoError(t, migrator.Run())

	ClearTables(t, db)
	return db
}

// ClearTables truncates every table the service owns.
func ClearTables(t *testing.T, db *gorm.DB) {
	t.Helper()
	tables := make([]string, 0, len(database.Models))
	for _, model := range database.Models {
		stmt := &gorm.Statement{DB: db}
		require.NoError(t, stmt.Parse(model))
		tables = append(tables, stmt.Schema.Table)
	}
	require.NoError(t, db.Exec("TRUNCATE TABLE "+strings.Join(tables, ", ")+" RESTART IDENTITY CASCADE").Error)
}
