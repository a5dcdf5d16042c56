package config

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"DB_DRIVER", "DB_DSN", "DB_USER", "DB_PASSWORD", "DB_HOST", "DB_PORT", "DB_NAME",
		"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME_SECONDS", "DB_CONNECT_ATTEMPTS",
		"LOG_LEVEL", "LOG_FORMAT", "REDIS_ADDRESS", "MIGRATION_LOCK_TTL_SECONDS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_NAME", "financeiro")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "secret")

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, DriverMySQL, s.DBDriver)
	assert.Equal(t, "3306", s.DBPort)
	assert.Equal(t, 5, s.ConnectAttempts)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, 900, s.LockTTLSeconds)
	assert.Equal(t, "app:secret@tcp(db.internal:3306)/financeiro?parseTime=true", s.DataSourceName())
}

func TestLoadSettingsRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown driver":   {"DB_DRIVER": "oracle", "DB_DSN": "x"},
		"no database":      {"DB_DRIVER": "postgres", "DB_HOST": "db"},
		"no host":          {"DB_DRIVER": "mysql", "DB_NAME": "financeiro"},
		"bad log level":    {"DB_DRIVER": "sqlite", "DB_NAME": "f.db", "LOG_LEVEL": "verbose"},
		"short lock ttl":   {"DB_DRIVER": "sqlite", "DB_NAME": "f.db", "MIGRATION_LOCK_TTL_SECONDS": "5"},
		"too many retries": {"DB_DRIVER": "sqlite", "DB_NAME": "f.db", "DB_CONNECT_ATTEMPTS": "50"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadSettings()
			assert.Error(t, err)
		})
	}
}

func TestDataSourceName(t *testing.T) {
	pg := &Settings{DBDriver: DriverPostgres, DBHost: "db", DBPort: "5432", DBUser: "u", DBPassword: "p", DBName: "fin"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=fin sslmode=disable", pg.DataSourceName())

	lite := &Settings{DBDriver: DriverSQLite, DBName: "/tmp/fin.db"}
	assert.Equal(t, "/tmp/fin.db", lite.DataSourceName())

	cloud := &Settings{DBDriver: DriverMySQL, DBHost: "/cloudsql/proj:region:inst", DBPort: "3306", DBUser: "u", DBPassword: "p", DBName: "fin"}
	assert.Equal(t, "u:p@unix(/cloudsql/proj:region:inst)/fin?parseTime=true", cloud.DataSourceName())

	dsn := &Settings{DBDriver: DriverPostgres, DSN: "postgres://x", DBHost: "ignored"}
	assert.Equal(t, "postgres://x", dsn.DataSourceName())
}

func TestDialectorUnsupported(t *testing.T) {
	_, err := Dialector("oracle", "x")
	assert.Error(t, err)
	d, err := Dialector(DriverSQLite, ":memory:")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())
}

func TestNewLogger(t *testing.T) {
	l := NewLogger(&Settings{LogLevel: "debug", LogFormat: "text"})
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, l.Formatter)

	l = NewLogger(nil)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)
}

func TestNilRunLocker(t *testing.T) {
	var r *RunLocker
	release, err := r.Obtain(context.Background(), MigrationRunLockKey)
	require.NoError(t, err)
	release()
	assert.NoError(t, r.Close())
}

func TestOperatorFallsBackToUserEnv(t *testing.T) {
	t.Setenv("USER", "operador")
	assert.NotEmpty(t, Operator())
}
