package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	goFactor "github.com/MrEthical07/goFactor"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "UNIQUE")
		}
	}
	return false
}

// mapErr translates driver errors into the goFactor store contract.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return goFactor.ErrIdentityNotFound
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %v", goFactor.ErrIdentityConflict, err)
	default:
		return fmt.Errorf("%w: %v", goFactor.ErrStoreUnavailable, err)
	}
}
