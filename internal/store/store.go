// Package store is the single gateway to the shared record store. All
// writes are idempotent with respect to natural keys: unique-violation
// inserts are treated as "already present" and the existing row is
// returned where the caller needs it.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store wraps access to the database with typed operations.
type Store struct {
	DB *sql.DB
}

// New creates a new Store that uses a shared *sql.DB with pooling.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// ErrParentDeleted marks failures caused by a deleted owning row (the
// conversation or source is gone). Engines treat it as fatal for the
// current job; every other per-URL error is recoverable.
var ErrParentDeleted = errors.New("store: parent row deleted")

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// classify maps referential-integrity failures onto ErrParentDeleted
// and passes everything else through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return fmt.Errorf("%w: %s", ErrParentDeleted, pgErr.Message)
	}
	return err
}

// encodeVector renders an embedding as a pgvector literal, e.g.
// "[0.1,0.2,0.3]".
func encodeVector(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// explicit_urls is a text[] column; database/sql cannot scan Postgres
// arrays directly, so the worker round-trips it through a
// newline-joined string. URLs cannot contain newlines.

func encodeURLList(urls []string) sql.NullString {
	if len(urls) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: strings.Join(urls, "\n"), Valid: true}
}

func decodeURLList(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	return strings.Split(s.String, "\n")
}
