package main

import (
	"errors"
	"fmt"
)

var ErrPasswordRequired = errors.New("modem password is required")

const (
	authTokenMissing  = "token_missing"
	authLoginRejected = "login_rejected"
	authTransport     = "transport"
)

// AuthError is returned when the login handshake with the modem fails.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("login failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("login failed (%s)", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError is returned when the status page could not be retrieved.
// StatusCode is 0 for transport failures.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("fetching %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetching %s failed: HTTP status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Err }

type ParseErrorKind string

const (
	TableMissing  ParseErrorKind = "table_missing"
	RowMalformed  ParseErrorKind = "row_malformed"
	NumericFormat ParseErrorKind = "numeric_format"
)

// ParseError describes why the status page could not be turned into channel
// records. Row is the zero-based data row index, header excluded.
type ParseError struct {
	Kind   ParseErrorKind
	Table  string
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case TableMissing:
		return fmt.Sprintf("table %q not found in status page", e.Table)
	case RowMalformed:
		return fmt.Sprintf("table %q row %d: %s", e.Table, e.Row, e.Value)
	default:
		return fmt.Sprintf("table %q row %d column %s: invalid number %q", e.Table, e.Row, e.Column, e.Value)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

// ConfigError is fatal at startup.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// failureStage names the pipeline stage an error came from.
func failureStage(err error) string {
	var (
		authErr  *AuthError
		fetchErr *FetchError
		parseErr *ParseError
	)
	switch {
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &fetchErr):
		return "fetch"
	case errors.As(err, &parseErr):
		return "parse"
	default:
		return "other"
	}
}
