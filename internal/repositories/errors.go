package repositories

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrSchemaMissing indicates the catalog tables do not exist; run "migrate up".
var ErrSchemaMissing = errors.New("catalog schema missing")

const undefinedTable = "42P01"

// wrap annotates err with op and maps known Postgres codes to package errors.
func wrap(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return fmt.Errorf("%s: %w: %w", op, ErrSchemaMissing, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
