package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

type widget struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

var widgetTable = Table[widget]{
	Name:    "widgets",
	Columns: []string{"id", "name", "created_at", "updated_at", "deleted_at"},
	Touch:   true,
	Scan: func(s Scanner) (*widget, error) {
		var (
			w       widget
			deleted sql.NullTime
		)
		if err := s.Scan(&w.ID, &w.Name, &w.CreatedAt, &w.UpdatedAt, &deleted); err != nil {
			return nil, err
		}
		if deleted.Valid {
			t := deleted.Time
			w.DeletedAt = &t
		}
		return &w, nil
	},
}

func newWidgetRepo(t *testing.T) (*Repo[widget], sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return NewRepo(NewManager(db), widgetTable), mock, db
}

func widgetRows(ids ...string) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "name", "created_at", "updated_at", "deleted_at"})
	now := time.Now()
	for _, id := range ids {
		rows.AddRow(id, "name-"+id, now, now, nil)
	}
	return rows
}

func TestRepoCreateReturnsStoredRow(t *testing.T) {
	repo, mock, db := newWidgetRepo(t)
	defer db.Close()

	mock.ExpectQuery("insert into widgets").
		WithArgs("w-1", "gear").
		WillReturnRows(widgetRows("w-1"))

	rec, err := repo.Create(context.Background(), []string{"id", "name"}, []any{"w-1", "gear"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID != "w-1" {
		t.Fatalf("unexpected id: %s", rec.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepoCreateUniqueViolationIsConflict(t *testing.T) {
	repo, mock, db := newWidgetRepo(t)
	defer db.Close()

	mock.ExpectQuery("insert into widgets").
		WithArgs("w-1", "gear").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), []string{"id", "name"}, []any{"w-1", "gear"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRepoCreateColumnValueMismatch(t *testing.T) {
	repo, _, db := newWidgetRepo(t)
	defer db.Close()

	if _, err := repo.Create(context.Background(), []string{"id"}, []any{"w-1", "extra"}); err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestRepoFindByIDFiltersSoftDeleted(t *testing.T) {
	repo, mock, db := newWidgetRepo(t)
	defer db.Close()

	mock.ExpectQuery("select id, name, created_at, updated_at, deleted_at from widgets where id = .. and deleted_at is null").
		WithArgs("w-gone").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "w-gone")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepoFindAll(t *testing.T) {
	repo, mock, db := newWidgetRepo(t)
	defer db.Close()

	mock.ExpectQuery("select id, name, created_at, updated_at, deleted_at from widgets where deleted_at is null").
		WillReturnRows(widgetRows("w-1", "w-2"))

	all, err := repo.FindAll(context.Background())
	if err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(all))
	}
}

func TestRepoUpdateAppliesSortedPatchAndTouch(t *testing.T) {
	repo, mock, db := newWidgetRepo(t)
	defer db.Close()

	// Patch keys apply alphabetically, so "name" binds $1.
	mock.ExpectQuery(`update widgets set name = \$1, updated_at = now\(\) where id = \$2 and deleted_at is null`).
		WithArgs("sprocket", "w-1").
		WillReturnRows(widgetRows("w-1"))

	if _, err := repo.Update(context.Background(), "w-1", map[string]any{"name": "sprocket"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepoUpdateEmptyPatchReadsBack(t *testing.T) {
	repo, mock, db := newWidgetRepo(t)
	defer db.Close()

	mock.ExpectQuery("select id, name, created_at, updated_at, deleted_at from widgets where id = ").
		WithArgs("w-1").
		WillReturnRows(widgetRows("w-1"))

	rec, err := repo.Update(context.Background(), "w-1", nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if rec.ID != "w-1" {
		t.Fatalf("unexpected id: %s", rec.ID)
	}
}

func TestRepoDeleteIsSoftAndNotRepeatable(t *testing.T) {
	repo, mock, db := newWidgetRepo(t)
	defer db.Close()

	mock.ExpectExec("update widgets set deleted_at").
		WithArgs("w-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update widgets set deleted_at").
		WithArgs("w-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	if err := repo.Delete(ctx, "w-1"); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	if err := repo.Delete(ctx, "w-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete should be ErrNotFound, got %v", err)
	}
}

func TestRepoParticipatesInManagerTransaction(t *testing.T) {
	repo, mock, db := newWidgetRepo(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("insert into widgets").
		WithArgs("w-tx", "gear").
		WillReturnRows(widgetRows("w-tx"))
	mock.ExpectRollback()
	// After rollback the pool-backed handle must not see the row.
	mock.ExpectQuery("select id, name, created_at, updated_at, deleted_at from widgets where id = ").
		WithArgs("w-tx").
		WillReturnError(sql.ErrNoRows)

	ctx := context.Background()
	mgr := repo.Manager()
	if err := mgr.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := repo.Create(ctx, []string{"id", "name"}, []any{"w-tx", "gear"}); err != nil {
		t.Fatalf("Create in tx: %v", err)
	}
	if err := mgr.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if _, err := repo.FindByID(ctx, "w-tx"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rolled-back row must not be visible, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepoQueryTimeoutCancelsSlowStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	repo := NewRepo(NewManager(db, WithQueryTimeout(10*time.Millisecond)), widgetTable)

	mock.ExpectQuery("select id, name, created_at, updated_at, deleted_at from widgets where id = ").
		WithArgs("w-slow").
		WillDelayFor(200 * time.Millisecond).
		WillReturnRows(widgetRows("w-slow"))

	_, err = repo.FindByID(context.Background(), "w-slow")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("slow query should hit the deadline, got %v", err)
	}
}
