// Package session owns the live database handle of one logical session.
//
// Connect validates credentials against the engine's administrative
// database. A business database is only opened by SelectDatabase, which
// closes the previous handle first, so a session never holds more than one
// handle.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jadedragon942/dbharbor/dberr"
	"github.com/jadedragon942/dbharbor/dialect"
	"github.com/jadedragon942/dbharbor/dialect/mysql"
	"github.com/jadedragon942/dbharbor/dialect/postgres"
	"github.com/jadedragon942/dbharbor/dialect/sqlite"
)

// Config is read once by Connect. The session keeps only what it needs to
// reopen handles and clears the password on Disconnect.
type Config struct {
	Engine           dialect.Kind
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	Params           map[string]string
	MaxOpenConns     int
	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
}

// Opener opens a handle for a driver and DSN. sql.Open is used unless a
// test injects another one.
type Opener func(driverName, dsn string) (*sql.DB, error)

type Option func(*Session)

func WithOpener(open Opener) Option {
	return func(s *Session) {
		s.open = open
	}
}

// WithDialect overrides the dialect chosen from Config.Engine.
func WithDialect(d dialect.Dialect) Option {
	return func(s *Session) {
		s.dialect = d
	}
}

type Session struct {
	mu       sync.Mutex
	dialect  dialect.Dialect
	endpoint dialect.Endpoint
	maxOpen  int
	open     Opener
	db       *sql.DB
	database string
	handles  int
	closed   bool
}

// DialectFor returns the dialect of an engine.
func DialectFor(kind dialect.Kind) (dialect.Dialect, error) {
	switch kind {
	case dialect.MySQL:
		return mysql.New(), nil
	case dialect.PostgreSQL:
		return postgres.New(), nil
	case dialect.SQLite:
		return sqlite.New(), nil
	}
	return nil, fmt.Errorf("unknown engine %q", kind)
}

// Connect opens and pings a handle on the administrative database. When
// cfg.Database is set it is selected afterwards.
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Session, error) {
	s := &Session{
		endpoint: dialect.Endpoint{
			Host:             cfg.Host,
			Port:             cfg.Port,
			User:             cfg.User,
			Password:         cfg.Password,
			Params:           cfg.Params,
			ConnectTimeout:   cfg.ConnectTimeout,
			StatementTimeout: cfg.StatementTimeout,
		},
		maxOpen: cfg.MaxOpenConns,
		open:    sql.Open,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialect == nil {
		d, err := DialectFor(cfg.Engine)
		if err != nil {
			return nil, &dberr.ConnectionError{Op: "connect", Engine: string(cfg.Engine), Host: cfg.Host, Err: err}
		}
		s.dialect = d
	}

	s.mu.Lock()
	err := s.openLocked(ctx, s.dialect.AdminDatabase(), "connect")
	if err != nil {
		s.wipeLocked()
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("engine", string(s.dialect.Kind())).
		Str("host", cfg.Host).
		Msg("connected")

	if cfg.Database != "" {
		if err := s.SelectDatabase(ctx, cfg.Database); err != nil {
			_ = s.Disconnect()
			return nil, err
		}
	}
	return s, nil
}

func (s *Session) Engine() dialect.Kind {
	return s.dialect.Kind()
}

func (s *Session) Dialect() dialect.Dialect {
	return s.dialect
}

// CurrentDatabase is empty until a database is selected.
func (s *Session) CurrentDatabase() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.database
}

func (s *Session) Host() string {
	return s.endpoint.Host
}

// Handle returns the live handle or ErrNotConnected.
func (s *Session) Handle() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, dberr.ErrNotConnected
	}
	return s.db, nil
}

// Connected reports whether the session holds a handle.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db != nil
}

// OpenHandles is the number of handles the session currently holds.
func (s *Session) OpenHandles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles
}

// ListDatabases queries the engine every time; nothing is cached.
func (s *Session) ListDatabases(ctx context.Context) ([]string, error) {
	db, err := s.Handle()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, s.dialect.DatabasesQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan database name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SelectDatabase closes the current handle and opens one on name. On
// failure the session is left without a handle until a later
// SelectDatabase succeeds.
func (s *Session) SelectDatabase(ctx context.Context, name string) error {
	if name == "" {
		return &dberr.ConnectionError{Op: "select", Engine: string(s.dialect.Kind()), Host: s.endpoint.Host, Err: dberr.ErrNoDatabase}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &dberr.ConnectionError{Op: "select", Engine: string(s.dialect.Kind()), Host: s.endpoint.Host, Database: name, Err: dberr.ErrNotConnected}
	}
	if err := s.closeLocked(); err != nil {
		log.Warn().Err(err).Msg("closing previous handle")
	}
	if err := s.openLocked(ctx, name, "select"); err != nil {
		return err
	}
	s.database = name
	log.Debug().
		Str("engine", string(s.dialect.Kind())).
		Str("database", name).
		Msg("database selected")
	return nil
}

// Disconnect releases the handle and forgets the credentials. Calling it
// again is a no-op.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.closeLocked()
	s.wipeLocked()
	return err
}

func (s *Session) wipeLocked() {
	s.closed = true
	s.endpoint.Password = ""
	s.endpoint.Params = nil
}

func (s *Session) openLocked(ctx context.Context, database, op string) error {
	connErr := func(err error) error {
		return &dberr.ConnectionError{
			Op:       op,
			Engine:   string(s.dialect.Kind()),
			Host:     s.endpoint.Host,
			Database: database,
			Err:      err,
		}
	}
	dsn, err := s.dialect.DSN(s.endpoint, database)
	if err != nil {
		return connErr(err)
	}
	db, err := s.open(s.dialect.DriverName(), dsn)
	if err != nil {
		return connErr(err)
	}

	if s.dialect.SingleConnection() {
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	} else if s.maxOpen > 0 {
		db.SetMaxOpenConns(s.maxOpen)
	}

	pingCtx := ctx
	if s.endpoint.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, s.endpoint.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return connErr(err)
	}

	s.db = db
	s.handles++
	return nil
}

func (s *Session) closeLocked() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.handles--
	s.database = ""
	if err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("failed to close handle: %w", err)
	}
	return nil
}
