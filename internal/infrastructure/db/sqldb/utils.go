// Package sqldb implements the repositories on top of database/sql. The
// queries are written for sqlite and rebound for other dialects.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const maxRetries = 5

// Rebind rewrites the ? placeholders of a query for the target dialect.
type Rebind func(query string) string

// QuestionMarks keeps the ? placeholders, as expected by sqlite.
func QuestionMarks(query string) string {
	return query
}

// DollarNumbers turns ? placeholders into $1, $2..., as expected by postgres.
func DollarNumbers(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	for _, r := range query {
		if r != '?' {
			b.WriteRune(r)
			continue
		}
		n++
		b.WriteString("$")
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

func execTx(
	ctx context.Context, db *sql.DB, txBody func(*sql.Tx) error,
) error {
	var lastErr error
	for range maxRetries {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if err := txBody(tx); err != nil {
			//nolint:all
			tx.Rollback()

			if isConflictError(err) {
				lastErr = err
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			if isConflictError(err) {
				lastErr = err
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	}

	return lastErr
}

func isConflictError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "database is locked") ||
		strings.Contains(errMsg, "database table is locked") ||
		strings.Contains(errMsg, "could not serialize access") ||
		strings.Contains(errMsg, "busy")
}
