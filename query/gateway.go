// Package query executes statements and routine calls against a session.
//
// Read statements run inside a transaction that is always rolled back, and
// read-only where the engine supports it. Writes run inside a transaction
// that is committed on success. Any failure rolls the transaction back
// before the error is returned in the result, so a connection is never left
// inside a failed transaction. Nothing is retried.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jadedragon942/dbharbor/dberr"
	"github.com/jadedragon942/dbharbor/dialect"
	"github.com/jadedragon942/dbharbor/metrics"
	"github.com/jadedragon942/dbharbor/result"
	"github.com/jadedragon942/dbharbor/schema"
	"github.com/jadedragon942/dbharbor/session"
)

type Option func(*Gateway)

func WithStateHook(hook StateHook) Option {
	return func(g *Gateway) {
		g.hook = hook
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithMaxRows caps how many rows a result set materializes. Results cut
// short carry a truncation warning. Zero means no cap.
func WithMaxRows(n int) Option {
	return func(g *Gateway) {
		g.maxRows = n
	}
}

type Gateway struct {
	hook    StateHook
	metrics *metrics.Metrics
	maxRows int
	history *history
}

func New(opts ...Option) *Gateway {
	g := &Gateway{history: &history{size: DefaultHistorySize}}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type invocationSpec struct {
	statement string
	kind      result.StatementKind
	readOnly  bool
	validate  bool
	// prepare runs while validating and may reject the invocation or
	// replace the statement text.
	prepare func() (string, error)
	run     func(ctx context.Context, tx *sql.Tx) (result.Draft, error)
}

// Execute runs one statement with bound args. The returned result is never
// nil; failures are reported through its Err.
func (g *Gateway) Execute(ctx context.Context, sess *session.Session, statement string, args ...any) *result.Result {
	kind := Classify(statement)
	spec := invocationSpec{
		statement: statement,
		kind:      kind,
		readOnly:  kind == result.StatementRead,
		validate:  true,
	}
	if spec.readOnly {
		spec.run = func(ctx context.Context, tx *sql.Tx) (result.Draft, error) {
			return g.query(ctx, tx, statement, args)
		}
	} else {
		spec.run = func(ctx context.Context, tx *sql.Tx) (result.Draft, error) {
			return exec(ctx, tx, statement, args)
		}
	}
	return g.invoke(ctx, sess, spec)
}

// Explain returns the engine's plan for a statement.
func (g *Gateway) Explain(ctx context.Context, sess *session.Session, statement string, args ...any) *result.Result {
	explained := sess.Dialect().ExplainPrefix() + strings.TrimSpace(statement)
	return g.invoke(ctx, sess, invocationSpec{
		statement: explained,
		kind:      result.StatementRead,
		readOnly:  true,
		validate:  true,
		run: func(ctx context.Context, tx *sql.Tx) (result.Draft, error) {
			return g.query(ctx, tx, explained, args)
		},
	})
}

// Call invokes a routine with positional args in declared parameter order.
// Every parameter that takes a caller value must be supplied; nil binds SQL
// NULL and an empty string stays an empty string. Blank values are only
// dropped for routines that declare no parameters.
func (g *Gateway) Call(ctx context.Context, sess *session.Session, r *schema.Routine, args []any) *result.Result {
	var call dialect.Call
	label := r.Ref().String()

	return g.invoke(ctx, sess, invocationSpec{
		statement: label,
		kind:      result.StatementCall,
		prepare: func() (string, error) {
			args = dropBlankArgs(r, args)
			in := r.InputParameters()
			if len(args) != len(in) {
				return label, fmt.Errorf("%w: %s takes %d values, got %d", dberr.ErrParameterCount, label, len(in), len(args))
			}
			var err error
			call, err = sess.Dialect().CallStatement(r, args)
			if err != nil {
				return label, err
			}
			return call.Query, nil
		},
		run: func(ctx context.Context, tx *sql.Tx) (result.Draft, error) {
			for _, st := range call.Prelude {
				if _, err := tx.ExecContext(ctx, st.Query, st.Args...); err != nil {
					return result.Draft{}, err
				}
			}
			draft, err := g.query(ctx, tx, call.Query, call.Args)
			if err != nil {
				return result.Draft{}, err
			}
			if call.Readback == "" || draft.HasResultSet {
				return draft, nil
			}
			return g.query(ctx, tx, call.Readback, nil)
		},
	})
}

func dropBlankArgs(r *schema.Routine, args []any) []any {
	if len(r.Parameters) > 0 {
		return args
	}
	var kept []any
	for _, a := range args {
		if a == nil {
			continue
		}
		if s, ok := a.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

func (g *Gateway) invoke(ctx context.Context, sess *session.Session, spec invocationSpec) *result.Result {
	start := time.Now()
	engine := string(sess.Engine())
	inv := &invocation{statement: spec.statement, hook: g.hook}

	var warnings []dberr.Warning
	fail := func(err error) *result.Result {
		inv.to(StateFailed)
		elapsed := time.Since(start)
		category := dberr.Classify(err)
		g.metrics.RecordQuery(engine, string(spec.kind), "error", elapsed, 0)
		g.metrics.RecordQueryError(engine, string(category))
		log.Error().
			Err(err).
			Str("engine", engine).
			Str("kind", string(spec.kind)).
			Str("category", string(category)).
			Dur("duration", elapsed).
			Msg("statement failed")
		g.history.add(HistoryEntry{
			At:        start,
			Engine:    sess.Engine(),
			Statement: inv.statement,
			Kind:      spec.kind,
			Duration:  elapsed,
			Err:       err,
		})
		return result.Failed(inv.statement, spec.kind, elapsed, err, warnings)
	}

	inv.to(StateValidating)
	if spec.validate {
		warnings = ValidateFor(sess.Engine(), spec.statement)
		for _, w := range warnings {
			g.metrics.RecordWarning(w.Code)
			log.Warn().Str("code", w.Code).Str("subject", w.Subject).Msg(w.Message)
		}
	}
	if strings.TrimSpace(spec.statement) == "" {
		return fail(&dberr.ExecutionError{Statement: spec.statement, Err: dberr.ErrEmptyStatement})
	}
	if spec.prepare != nil {
		stmt, err := spec.prepare()
		inv.statement = stmt
		if err != nil {
			return fail(&dberr.ExecutionError{Statement: stmt, Err: err})
		}
	}

	db, err := sess.Handle()
	if err != nil {
		return fail(&dberr.ExecutionError{Statement: inv.statement, Err: err})
	}

	inv.to(StateExecuting)
	log.Debug().
		Str("engine", engine).
		Str("kind", string(spec.kind)).
		Str("statement", inv.statement).
		Msg("executing")

	opts := &sql.TxOptions{ReadOnly: spec.readOnly && sess.Dialect().SupportsReadOnlyTx()}
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fail(&dberr.ExecutionError{Statement: inv.statement, Err: err})
	}

	draft, err := spec.run(ctx, tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Warn().Err(rbErr).Msg("rollback after failure")
		}
		return fail(&dberr.ExecutionError{Statement: inv.statement, Err: err})
	}

	if spec.readOnly {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Warn().Err(err).Msg("closing read transaction")
		}
	} else if err := tx.Commit(); err != nil {
		return fail(&dberr.ExecutionError{Statement: inv.statement, Err: fmt.Errorf("commit: %w", err)})
	}

	draft.Statement = inv.statement
	draft.Kind = spec.kind
	draft.Duration = time.Since(start)
	draft.Warnings = append(warnings, draft.Warnings...)
	inv.to(StateSucceeded)

	res := draft.Freeze()
	g.metrics.RecordQuery(engine, string(spec.kind), "success", res.Duration(), res.RowCount())
	g.history.add(HistoryEntry{
		At:        start,
		Engine:    sess.Engine(),
		Statement: inv.statement,
		Kind:      spec.kind,
		Duration:  res.Duration(),
		Rows:      res.RowCount(),
	})
	log.Debug().
		Str("engine", engine).
		Int("rows", res.RowCount()).
		Dur("duration", res.Duration()).
		Msg("statement succeeded")
	return res
}

func (g *Gateway) query(ctx context.Context, tx *sql.Tx, statement string, args []any) (result.Draft, error) {
	rows, err := tx.QueryContext(ctx, statement, args...)
	if err != nil {
		return result.Draft{}, err
	}
	defer rows.Close()

	cols, data, truncated, err := result.Collect(rows, g.maxRows)
	if err != nil {
		return result.Draft{}, err
	}
	draft := result.Draft{Columns: cols, Rows: data, HasResultSet: len(cols) > 0}
	if truncated {
		draft.Warnings = append(draft.Warnings, dberr.Warning{
			Code:    dberr.WarnTruncated,
			Message: fmt.Sprintf("result truncated to %d rows", g.maxRows),
		})
	}
	return draft, nil
}

func exec(ctx context.Context, tx *sql.Tx, statement string, args []any) (result.Draft, error) {
	res, err := tx.ExecContext(ctx, statement, args...)
	if err != nil {
		return result.Draft{}, err
	}
	draft := result.Draft{}
	if n, err := res.RowsAffected(); err == nil {
		draft.RowsAffected = n
		draft.AffectedKnown = true
	}
	return draft, nil
}
