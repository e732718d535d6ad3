package postgres

import (
	"context"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/bankline/internal/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := New(sqlx.NewDb(db, "postgres"))
	s.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s, mock
}

func TestEnsureSchema(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS cache_entities").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGet(t *testing.T) {
	s, mock := newMockStore(t)
	query := regexp.QuoteMeta("SELECT data FROM cache_entities WHERE kind = $1 AND id = $2")

	mock.ExpectQuery(query).
		WithArgs("accounts", "A1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"id":"A1"}`)))
	mock.ExpectQuery(query).
		WithArgs("accounts", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	data, err := s.Get(context.Background(), storage.KindAccount, "A1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != `{"id":"A1"}` {
		t.Fatalf("data = %s", data)
	}

	if _, err := s.Get(context.Background(), storage.KindAccount, "missing"); err != storage.ErrNotFound {
		t.Fatalf("missing err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestList(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, data FROM cache_entities WHERE kind = $1 ORDER BY id")).
		WithArgs("payees").
		WillReturnRows(sqlmock.NewRows([]string{"id", "data"}).
			AddRow("p1", []byte(`{"id":"p1"}`)).
			AddRow("p2", []byte(`{"id":"p2"}`)))

	records, err := s.List(context.Background(), storage.KindPayee)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 || records[0].ID != "p1" || records[1].ID != "p2" {
		t.Fatalf("records = %+v", records)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPutUpserts(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO cache_entities .* ON CONFLICT \\(kind, id\\) DO UPDATE").
		WithArgs("accounts", "A1", `{"id":"A1"}`, s.now()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Put(context.Background(), storage.KindAccount, "A1", []byte(`{"id":"A1"}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDelete(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM cache_entities WHERE kind = $1 AND id = $2")).
		WithArgs("pending_operations", "op-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.Delete(context.Background(), storage.KindPending, "op-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	ctx := context.Background()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.Put(ctx, storage.KindAccount, "it-1", []byte(`{"id":"it-1"}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	defer s.Delete(ctx, storage.KindAccount, "it-1")

	data, err := s.Get(ctx, storage.KindAccount, "it-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("empty data")
	}
}
