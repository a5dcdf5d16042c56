package config

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Settings is everything the operator commands read from the environment.
// DSN wins over the individual connection parts when both are set.
type Settings struct {
	DBDriver string `validate:"required,oneof=mysql postgres sqlite"`
	DSN      string

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	MaxOpenConns           int `validate:"gte=0"`
	MaxIdleConns           int `validate:"gte=0"`
	ConnMaxLifetimeSeconds int `validate:"gte=0"`
	ConnectAttempts        int `validate:"gte=1,lte=20"`

	LogLevel  string `validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFormat string `validate:"oneof=json text"`

	RedisAddress   string
	LockTTLSeconds int `validate:"gte=30"`
}

// LoadSettings reads .env (when present) and the process environment.
func LoadSettings() (*Settings, error) {
	// a missing .env is normal outside of local development
	_ = godotenv.Load()

	s := &Settings{
		DBDriver:               strings.ToLower(stringFromEnv("DB_DRIVER", DriverMySQL)),
		DSN:                    strings.TrimSpace(os.Getenv("DB_DSN")),
		DBUser:                 os.Getenv("DB_USER"),
		DBPassword:             os.Getenv("DB_PASSWORD"),
		DBHost:                 strings.TrimSpace(os.Getenv("DB_HOST")),
		DBPort:                 stringFromEnv("DB_PORT", "3306"),
		DBName:                 strings.TrimSpace(os.Getenv("DB_NAME")),
		MaxOpenConns:           intFromEnv("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:           intFromEnv("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetimeSeconds: intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300),
		ConnectAttempts:        intFromEnv("DB_CONNECT_ATTEMPTS", 5),
		LogLevel:               strings.ToLower(stringFromEnv("LOG_LEVEL", "info")),
		LogFormat:              strings.ToLower(stringFromEnv("LOG_FORMAT", "json")),
		RedisAddress:           strings.TrimSpace(os.Getenv("REDIS_ADDRESS")),
		LockTTLSeconds:         intFromEnv("MIGRATION_LOCK_TTL_SECONDS", 900),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if s.DSN != "" {
		return nil
	}
	if s.DBName == "" {
		return errors.New("invalid settings: DB_DSN or DB_NAME is required")
	}
	if s.DBDriver != DriverSQLite && s.DBHost == "" {
		return errors.New("invalid settings: DB_HOST is required without DB_DSN")
	}
	return nil
}

// DataSourceName builds the driver specific DSN from the individual parts.
func (s *Settings) DataSourceName() string {
	if s.DSN != "" {
		return s.DSN
	}
	switch s.DBDriver {
	case DriverPostgres:
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			s.DBHost, s.DBPort, s.DBUser, s.DBPassword, s.DBName)
	case DriverSQLite:
		return s.DBName
	default:
		network := "tcp"
		address := fmt.Sprintf("%s:%s", s.DBHost, s.DBPort)
		// Cloud SQL: DB_HOST=/cloudsql/<CONNECTION_NAME> goes through the auth proxy socket.
		if strings.HasPrefix(s.DBHost, "/cloudsql/") {
			network = "unix"
			address = s.DBHost
		}
		return fmt.Sprintf("%s:%s@%s(%s)/%s?parseTime=true",
			s.DBUser, s.DBPassword, network, address, s.DBName)
	}
}

// Operator is the login recorded as the actor of a command run.
func Operator() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return stringFromEnv("USER", "unknown")
}

func stringFromEnv(key string, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
