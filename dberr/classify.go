package dberr

import (
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// Category groups driver errors so callers can attach remediation hints.
type Category string

const (
	CategoryUnknown         Category = "unknown"
	CategoryPermission      Category = "permission_denied"
	CategoryUndefinedObject Category = "undefined_object"
	CategorySyntax          Category = "syntax"
	CategoryConnection      Category = "connection"
	CategoryConstraint      Category = "constraint_violation"
	CategoryAuthentication  Category = "authentication"
	CategoryTimeout         Category = "timeout"
)

// Classify maps MySQL error numbers and PostgreSQL SQLSTATE codes to a
// Category.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1044, 1142, 1143, 1227, 1370:
			return CategoryPermission
		case 1045:
			return CategoryAuthentication
		case 1049, 1146, 1054, 1305:
			return CategoryUndefinedObject
		case 1064:
			return CategorySyntax
		case 1062, 1451, 1452, 3819:
			return CategoryConstraint
		case 3024, 1969:
			return CategoryTimeout
		}
		return CategoryUnknown
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42501":
			return CategoryPermission
		case pgErr.Code == "28P01" || pgErr.Code == "28000":
			return CategoryAuthentication
		case pgErr.Code == "57014":
			return CategoryTimeout
		case pgErr.Code == "42601":
			return CategorySyntax
		case strings.HasPrefix(pgErr.Code, "23"):
			return CategoryConstraint
		case strings.HasPrefix(pgErr.Code, "42P0") || pgErr.Code == "42703" || pgErr.Code == "42883" || pgErr.Code == "3D000":
			return CategoryUndefinedObject
		case strings.HasPrefix(pgErr.Code, "08"):
			return CategoryConnection
		}
		return CategoryUnknown
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) || errors.Is(err, ErrNotConnected) {
		return CategoryConnection
	}

	return CategoryUnknown
}
