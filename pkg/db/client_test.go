package db

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/projectdash/dashboard-backend/pkg/config"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())))
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := NewFromConn(db)

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	client := NewFromConn(db)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestSupportsRowLocks(t *testing.T) {
	if SupportsRowLocks(newTestDB(t)) {
		t.Fatal("sqlite should not report row lock support")
	}
	if SupportsRowLocks(nil) {
		t.Fatal("nil connection should not report row lock support")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "processed_events_provider_event_id_key"}
	wrapped := fmt.Errorf("insert ledger: %w", pgErr)

	if !IsUniqueViolation(wrapped, "") {
		t.Fatal("expected pgx unique violation to match")
	}
	if !IsUniqueViolation(wrapped, "processed_events_provider_event_id_key") {
		t.Fatal("expected constraint name to match")
	}
	if IsUniqueViolation(wrapped, "accounts_user_id_key") {
		t.Fatal("expected different constraint not to match")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatal("foreign key violation is not a unique violation")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: accounts.user_id"), "accounts.user_id") {
		t.Fatal("expected sqlite message to match")
	}
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil error should not match")
	}
}

func TestUniqueViolationFromSQLite(t *testing.T) {
	db := newTestDB(t)
	if err := db.Exec("CREATE UNIQUE INDEX test_models_name ON test_models(name)").Error; err != nil {
		t.Fatalf("create index: %v", err)
	}
	if err := db.Create(&testModel{Name: "dup"}).Error; err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := db.Create(&testModel{Name: "dup"}).Error
	if !IsUniqueViolation(err, "") {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestSQLiteDSNForcesImmediateTxLock(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "file:dashboard.db", want: "file:dashboard.db?_busy_timeout=5000&_txlock=immediate"},
		{in: "file:dashboard.db?_txlock=deferred", want: "file:dashboard.db?_busy_timeout=5000&_txlock=immediate"},
		{in: "file:dashboard.db?_busy_timeout=100&mode=rwc", want: "file:dashboard.db?_busy_timeout=100&_txlock=immediate&mode=rwc"},
		{in: "file:x?mode=memory&cache=shared", want: "file:x?_busy_timeout=5000&_txlock=immediate&cache=shared&mode=memory"},
	}
	for _, tc := range cases {
		if got := sqliteDSN(tc.in); got != tc.want {
			t.Errorf("sqliteDSN(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNewOpensSQLiteWithImmediateTxLock(t *testing.T) {
	cfg := config.DBConfig{Driver: "sqlite", DSN: "file:" + filepath.Join(t.TempDir(), "ledger.db")}
	client, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer client.Close()

	var timeout int
	if err := client.DB().Raw("PRAGMA busy_timeout").Scan(&timeout).Error; err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if timeout != 5000 {
		t.Fatalf("expected busy timeout from normalized DSN, got %d", timeout)
	}
	if err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return tx.Exec("CREATE TABLE t (id INTEGER)").Error
	}); err != nil {
		t.Fatalf("tx: %v", err)
	}
}
