package dberr

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionErrorUnwraps(t *testing.T) {
	cause := &mysql.MySQLError{Number: 1045, Message: "Access denied"}
	err := fmt.Errorf("connect: %w", &ConnectionError{
		Op: "connect", Engine: "mysql", Host: "db:3306", Database: "shop", Err: cause,
	})

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "mysql connect db:3306 database \"shop\": Error 1045: Access denied", connErr.Error())
	assert.Equal(t, CategoryAuthentication, Classify(err))
}

func TestNotFoundError(t *testing.T) {
	assert.Equal(t, "table public.users not found", (&NotFoundError{Kind: "table", Schema: "public", Name: "users"}).Error())
	assert.Equal(t, "routine bump not found", (&NotFoundError{Kind: "routine", Name: "bump"}).Error())
}

func TestExecutionErrorAbbreviates(t *testing.T) {
	stmt := "SELECT\n\t" + strings.Repeat("a, ", 50) + "b FROM t"
	err := &ExecutionError{Statement: stmt, Err: ErrEmptyStatement}
	assert.ErrorIs(t, err, ErrEmptyStatement)
	assert.Contains(t, err.Error(), "...")
	assert.NotContains(t, err.Error(), "\n")
}

func TestSerializationErrorUnwraps(t *testing.T) {
	err := &SerializationError{Format: "json", Err: ErrPayloadTooLarge}
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Equal(t, "serialize json: export payload exceeds size limit", err.Error())
}

func TestClassify(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, CategoryUnknown},
		{"mysql denied", &mysql.MySQLError{Number: 1142}, CategoryPermission},
		{"mysql no table", &mysql.MySQLError{Number: 1146}, CategoryUndefinedObject},
		{"mysql syntax", &mysql.MySQLError{Number: 1064}, CategorySyntax},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, CategoryConstraint},
		{"mysql timeout", &mysql.MySQLError{Number: 3024}, CategoryTimeout},
		{"mysql other", &mysql.MySQLError{Number: 1213}, CategoryUnknown},
		{"pg denied", &pgconn.PgError{Code: "42501"}, CategoryPermission},
		{"pg password", &pgconn.PgError{Code: "28P01"}, CategoryAuthentication},
		{"pg cancel", &pgconn.PgError{Code: "57014"}, CategoryTimeout},
		{"pg syntax", &pgconn.PgError{Code: "42601"}, CategorySyntax},
		{"pg unique", &pgconn.PgError{Code: "23505"}, CategoryConstraint},
		{"pg no relation", &pgconn.PgError{Code: "42P01"}, CategoryUndefinedObject},
		{"pg no database", &pgconn.PgError{Code: "3D000"}, CategoryUndefinedObject},
		{"pg link", &pgconn.PgError{Code: "08006"}, CategoryConnection},
		{"wrapped pg", fmt.Errorf("query: %w", &pgconn.PgError{Code: "42703"}), CategoryUndefinedObject},
		{"bad conn", driver.ErrBadConn, CategoryConnection},
		{"net", &net.OpError{Op: "dial", Err: errors.New("refused")}, CategoryConnection},
		{"not connected", fmt.Errorf("list: %w", ErrNotConnected), CategoryConnection},
		{"plain", context.Canceled, CategoryUnknown},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestWarningString(t *testing.T) {
	assert.Equal(t, "[truncated] cut", Warning{Code: WarnTruncated, Message: "cut"}.String())
	assert.Equal(t, "[high_risk_keyword] destructive statement: DROP",
		Warning{Code: WarnHighRiskKeyword, Message: "destructive statement", Subject: "DROP"}.String())
}
