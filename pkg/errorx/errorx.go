// Package errorx defines the error kinds surfaced by the data access layer.
//
// Every kind keeps the error it was built from, so errors.Is and errors.As still reach driver
// errors such as *pgconn.PgError or mssql.Error.
package errorx

import (
	"fmt"
)

type cause struct {
	message string
	err     error
}

func newCause(err error, msg string, args []any) cause {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	return cause{message: msg, err: err}
}

func (c *cause) Error() string {
	if c.err != nil {
		return c.message + ": " + c.err.Error()
	}

	return c.message
}

func (c *cause) Unwrap() error {
	return c.err
}

// GeneralError - failure outside database execution and configuration, e.g. a CLI misuse.
type GeneralError struct{ cause }

func NewGeneralError(msg string, args ...any) *GeneralError {
	return &GeneralError{newCause(nil, msg, args)}
}

func NewGeneralErrorWrapper(err error, msg string, args ...any) *GeneralError {
	return &GeneralError{newCause(err, msg, args)}
}

// DatabaseError - error raised by a provider while opening a connection or executing a command.
type DatabaseError struct{ cause }

func NewDatabaseError(msg string, args ...any) *DatabaseError {
	return &DatabaseError{newCause(nil, msg, args)}
}

// NewDatabaseErrorWrapper wraps the driver error once.
func NewDatabaseErrorWrapper(err error, msg string, args ...any) *DatabaseError {
	return &DatabaseError{newCause(err, msg, args)}
}

// ConfigurationError - missing or malformed specification, unknown provider, bad mapping string.
type ConfigurationError struct{ cause }

func NewConfigurationError(msg string, args ...any) *ConfigurationError {
	return &ConfigurationError{newCause(nil, msg, args)}
}

func NewConfigurationErrorWrapper(err error, msg string, args ...any) *ConfigurationError {
	return &ConfigurationError{newCause(err, msg, args)}
}

// ImpersonationError - the run-as identity could not be acquired and impersonation is required.
type ImpersonationError struct {
	User string
	cause
}

func NewImpersonationError(user string, err error) *ImpersonationError {
	return &ImpersonationError{User: user, cause: newCause(err, "impersonation of user '%s' failed", []any{user})}
}
