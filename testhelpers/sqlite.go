package testhelpers

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/financeiro_backend/config"
)

// NewSQLiteDB opens a throwaway file database under t.TempDir() with the same
// gorm config and plugins the commands use.
func NewSQLiteDB(t testing.TB) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "financeiro.db")
	db, err := gorm.Open(sqlite.Open(path), config.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	logger, _ := NewLogger()
	config.InstallPlugins(db, logger)

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// one connection keeps sqlite from reporting "database is locked"
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// NewLogger returns a logger that records entries instead of printing them.
func NewLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

// MustExec runs raw SQL for fixtures.
func MustExec(t testing.TB, db *gorm.DB, sql string, args ...any) {
	t.Helper()
	if err := db.Exec(sql, args...).Error; err != nil {
		t.Fatalf("exec %q: %v", sql, err)
	}
}

// Count returns SELECT COUNT(*) for the given query.
func Count(t testing.TB, db *gorm.DB, sql string, args ...any) int64 {
	t.Helper()
	var n int64
	if err := db.Raw(sql, args...).Scan(&n).Error; err != nil {
		t.Fatalf("count %q: %v", sql, err)
	}
	return n
}
