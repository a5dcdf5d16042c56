package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// OpenDatabase connects with bounded exponential backoff and returns the session.
// Operator commands are batch jobs, so unlike a server we give up after
// Settings.ConnectAttempts instead of retrying forever.
func OpenDatabase(s *Settings, l *logrus.Logger) (*gorm.DB, error) {
	dialector, err := Dialector(s.DBDriver, s.DataSourceName())
	if err != nil {
		return nil, err
	}

	var attempt int
	for {
		attempt++
		db, err := gorm.Open(dialector, initConfig())
		if err == nil {
			if err = ping(db); err != nil {
				closePool(db)
			}
		}
		if err == nil {
			tunePool(db, s)
			installPlugins(db, l)
			l.WithFields(logrus.Fields{"driver": s.DBDriver, "attempt": attempt}).Info("connected to database")
			return db, nil
		}
		if attempt >= s.ConnectAttempts {
			return nil, fmt.Errorf("connect %s database after %d attempts: %w", s.DBDriver, attempt, err)
		}

		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		l.WithFields(logrus.Fields{"driver": s.DBDriver, "attempt": attempt}).
			Warnf("failed to connect database: %v; retrying in %s", err, sleep)
		time.Sleep(sleep)
	}
}

// Dialector maps DB_DRIVER to the gorm dialector.
func Dialector(driver string, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverMySQL:
		return mysql.Open(dsn), nil
	case DriverPostgres:
		return postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), nil
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

func ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func tunePool(db *gorm.DB, s *Settings) {
	sqlDB, err := db.DB()
	if err != nil || sqlDB == nil {
		return
	}
	if s.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(s.MaxOpenConns)
	}
	if s.MaxIdleConns >= 0 {
		sqlDB.SetMaxIdleConns(s.MaxIdleConns)
	}
	if s.ConnMaxLifetimeSeconds > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(s.ConnMaxLifetimeSeconds) * time.Second)
	}
}

// installPlugins is shared by commands and tests so both run with the same callbacks.
func installPlugins(db *gorm.DB, l *logrus.Logger) {
	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		l.Warnf("db connected but failed to install otelgorm plugin: %v", err)
	}
	if err := db.Use(NewTenantGuardPlugin()); err != nil {
		l.Warnf("db connected but failed to install tenant guard plugin: %v", err)
	}
}

// InstallPlugins exposes the plugin set for sessions opened outside OpenDatabase.
func InstallPlugins(db *gorm.DB, l *logrus.Logger) {
	installPlugins(db, l)
}

func closePool(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: initNamingStrategy(),
	}
}

// initLog Connection Log Configuration
func initLog() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:                  false,
			LogLevel:                  logger.Error,
			SlowThreshold:             time.Second,
			IgnoreRecordNotFoundError: true,
		},
	)
}

func initNamingStrategy() *schema.NamingStrategy {
	return &schema.NamingStrategy{
		SingularTable: false,
		TablePrefix:   "",
	}
}

// GormConfig is the gorm configuration every session in this repository uses.
func GormConfig() *gorm.Config {
	return initConfig()
}
