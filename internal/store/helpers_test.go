package store

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fleet-history-backend/internal/db"
	"fleet-history-backend/internal/machine"
)

// Any matches every argument.
type Any struct{}

// Match satisfies the sqlmock.Argument interface
func (a Any) Match(v driver.Value) bool {
	return true
}

// newTestDB creates a mock Postgres connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: conn,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

// newSQLiteDB opens a private in-memory database with the schema applied.
func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()[:8])
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func newSQLiteStore(t *testing.T) (Store, *gorm.DB) {
	gdb := newSQLiteDB(t)
	return NewGormStore(gdb, Options{MaxAttempts: 3, DefaultPageSize: 20, MaxPageSize: 100}), gdb
}

var testEpoch = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func createMachine(t *testing.T, s Store, serial string) *machine.Machine {
	t.Helper()
	m, err := machine.New(machine.NewParams{
		SerialNumber: serial,
		Brand:        "Caterpillar",
		ModelName:    "320D",
		OwnerID:      "owner-1",
	}, testEpoch)
	require.NoError(t, err)
	require.NoError(t, s.CreateMachine(t.Context(), m))
	return m
}
