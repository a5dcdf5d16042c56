package schema

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ConnectionError means the session is unusable; callers abort the run.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("database connection unusable: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// InspectionError is a genuine introspection failure, never "not found".
type InspectionError struct {
	Table  string
	Column string
	Err    error
}

func (e *InspectionError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("inspect %s.%s: %v", e.Table, e.Column, e.Err)
	}
	return fmt.Sprintf("inspect %s: %v", e.Table, e.Err)
}

func (e *InspectionError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err is, or wraps, a lost connection.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return true
	}
	return isConnectionFailure(err)
}

func isConnectionFailure(err error) bool {
	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, gorm.ErrInvalidDB)
}
