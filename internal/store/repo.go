package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var (
	// ErrNotFound reports a row that is absent or soft-deleted.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict reports a unique-key violation on insert.
	ErrConflict = errors.New("store: conflict")
)

// Scanner is the subset of *sql.Row and *sql.Rows a table scan needs.
type Scanner interface {
	Scan(dest ...any) error
}

// Table describes how one backing table maps to a record type. Columns is
// the full select list; Scan materializes one row in the same column
// order. Touch marks tables carrying an updated_at column maintained on
// partial updates.
type Table[T any] struct {
	Name    string
	Columns []string
	Touch   bool
	Scan    func(Scanner) (*T, error)
}

// Repo supplies create, find, partial update, and soft delete against one
// backing table. Every default query filters deleted_at-is-null; a
// soft-deleted row never appears in results. All statements go through
// the manager's current handle, so a repo participates transparently in
// whatever transaction scope its manager holds.
type Repo[T any] struct {
	mgr *Manager
	tbl Table[T]
}

// NewRepo binds a table description to a manager.
func NewRepo[T any](mgr *Manager, tbl Table[T]) *Repo[T] {
	return &Repo[T]{mgr: mgr, tbl: tbl}
}

// Manager returns the repo's unit-of-work handle.
func (r *Repo[T]) Manager() *Manager { return r.mgr }

func (r *Repo[T]) selectList() string {
	return strings.Join(r.tbl.Columns, ", ")
}

// Create inserts a row and returns the stored record. Zero rows returned
// from the insert surfaces as ErrNotFound; under correct insert semantics
// it should not happen.
func (r *Repo[T]) Create(ctx context.Context, columns []string, values []any) (*T, error) {
	if len(columns) == 0 || len(columns) != len(values) {
		return nil, fmt.Errorf("store: %s create: column/value mismatch", r.tbl.Name)
	}
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(
		`insert into %s (%s) values (%s) returning %s`,
		r.tbl.Name, strings.Join(columns, ", "), strings.Join(placeholders, ", "), r.selectList(),
	)
	ctx, cancel := r.mgr.StatementContext(ctx)
	defer cancel()
	rec, err := r.tbl.Scan(r.mgr.Acquire().QueryRowContext(ctx, query, values...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s create returned no row", ErrNotFound, r.tbl.Name)
		}
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return nil, ErrConflict
			case pgErrForeignKeyViolation:
				return nil, ErrNotFound
			}
		}
		return nil, err
	}
	return rec, nil
}

// FindByID returns the live record with the given id.
func (r *Repo[T]) FindByID(ctx context.Context, id string) (*T, error) {
	query := fmt.Sprintf(
		`select %s from %s where id = $1 and deleted_at is null`,
		r.selectList(), r.tbl.Name,
	)
	ctx, cancel := r.mgr.StatementContext(ctx)
	defer cancel()
	rec, err := r.tbl.Scan(r.mgr.Acquire().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// FindAll returns every live record.
func (r *Repo[T]) FindAll(ctx context.Context) ([]*T, error) {
	query := fmt.Sprintf(
		`select %s from %s where deleted_at is null`,
		r.selectList(), r.tbl.Name,
	)
	ctx, cancel := r.mgr.StatementContext(ctx)
	defer cancel()
	rows, err := r.mgr.Acquire().QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*T
	for rows.Next() {
		rec, err := r.tbl.Scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Update applies a partial patch to a live record and returns the stored
// result. Patch keys are column names; they are applied in sorted order so
// generated SQL is deterministic.
func (r *Repo[T]) Update(ctx context.Context, id string, patch map[string]any) (*T, error) {
	if len(patch) == 0 {
		return r.FindByID(ctx, id)
	}
	columns := make([]string, 0, len(patch))
	for col := range patch {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	var (
		setClauses []string
		args       []any
		idx        = 1
	)
	for _, col := range columns {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, patch[col])
		idx++
	}
	if r.tbl.Touch {
		setClauses = append(setClauses, "updated_at = now()")
	}
	query := fmt.Sprintf(
		`update %s set %s where id = $%d and deleted_at is null returning %s`,
		r.tbl.Name, strings.Join(setClauses, ", "), idx, r.selectList(),
	)
	args = append(args, id)

	ctx, cancel := r.mgr.StatementContext(ctx)
	defer cancel()
	rec, err := r.tbl.Scan(r.mgr.Acquire().QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return nil, ErrConflict
		}
		return nil, err
	}
	return rec, nil
}

// Delete soft-deletes a live record by stamping deleted_at. Deleting an
// absent or already-deleted row fails with ErrNotFound so client mistakes
// surface instead of silently succeeding.
func (r *Repo[T]) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(
		`update %s set deleted_at = now() where id = $1 and deleted_at is null`,
		r.tbl.Name,
	)
	ctx, cancel := r.mgr.StatementContext(ctx)
	defer cancel()
	res, err := r.mgr.Acquire().ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// PgErrorCode returns the PostgreSQL error code embedded in err, or "".
func PgErrorCode(err error) string {
	if pgErr, ok := maybePgError(err); ok {
		return pgErr.Code
	}
	return ""
}
