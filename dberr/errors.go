package dberr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotConnected    = errors.New("not connected")
	ErrNoDatabase      = errors.New("no database selected")
	ErrParameterCount  = errors.New("routine parameter count mismatch")
	ErrEmptyStatement  = errors.New("empty statement")
	ErrUnsupported     = errors.New("not supported by engine")
	ErrPayloadTooLarge = errors.New("export payload exceeds size limit")
)

// ConnectionError reports auth or network failures at connect or
// database-switch time.
type ConnectionError struct {
	Op       string
	Engine   string
	Host     string
	Database string
	Err      error
}

func (e *ConnectionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Engine, e.Op)
	if e.Host != "" {
		fmt.Fprintf(&b, " %s", e.Host)
	}
	if e.Database != "" {
		fmt.Fprintf(&b, " database %q", e.Database)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a named object absent from the catalog.
type NotFoundError struct {
	Kind   string
	Schema string
	Name   string
}

func (e *NotFoundError) Error() string {
	if e.Schema != "" {
		return fmt.Sprintf("%s %s.%s not found", e.Kind, e.Schema, e.Name)
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.Name)
}

// ExecutionError reports a statement that failed at the engine or was
// rejected before reaching it.
type ExecutionError struct {
	Statement string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %q: %v", abbreviate(e.Statement, 80), e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// SerializationError reports a payload that cannot be represented in the
// requested export format.
type SerializationError struct {
	Format string
	Err    error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize %s: %v", e.Format, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

func abbreviate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
