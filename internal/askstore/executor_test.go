package askstore

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestRunSelectReturnsDynamicRows(t *testing.T) {
	db, mock := newSQLMock(t)
	exec := NewExecutor(db, ExecutorConfig{})

	mock.ExpectQuery("SELECT id, name FROM endmill_types").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), []byte("flat 6mm")).
			AddRow(int64(2), []byte("ball 4mm")))

	rows, err := exec.RunSelect(context.Background(), "SELECT id, name FROM endmill_types")
	if err != nil {
		t.Fatalf("RunSelect() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[0]["name"] != "flat 6mm" {
		t.Fatalf("byte columns should decode to strings, got %#v", rows[0]["name"])
	}
	if rows[1]["id"] != int64(2) {
		t.Fatalf("id = %#v", rows[1]["id"])
	}
	assertSQLMock(t, mock)
}

func TestRunSelectEmptyResult(t *testing.T) {
	db, mock := newSQLMock(t)
	exec := NewExecutor(db, ExecutorConfig{})

	mock.ExpectQuery("SELECT id FROM tool_changes").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rows, err := exec.RunSelect(context.Background(), "SELECT id FROM tool_changes WHERE 1=0")
	if err != nil {
		t.Fatalf("RunSelect() error = %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Fatalf("rows = %#v, want empty non-nil slice", rows)
	}
	assertSQLMock(t, mock)
}

func TestRunSelectTruncatesAtMaxRows(t *testing.T) {
	db, mock := newSQLMock(t)
	exec := NewExecutor(db, ExecutorConfig{MaxRows: 2})

	mock.ExpectQuery("SELECT id FROM inventory").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).
			AddRow(int64(1)).
			AddRow(int64(2)).
			AddRow(int64(3)).
			AddRow(int64(4)))

	rows, err := exec.RunSelect(context.Background(), "SELECT id FROM inventory")
	if err != nil {
		t.Fatalf("RunSelect() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2 after truncation", len(rows))
	}
	if rows[1]["id"] != int64(2) {
		t.Fatalf("truncation must keep the leading rows, got %#v", rows[1]["id"])
	}
}

func TestRunSelectHonorsQueryTimeout(t *testing.T) {
	db, mock := newSQLMock(t)
	exec := NewExecutor(db, ExecutorConfig{QueryTimeout: 20 * time.Millisecond})

	mock.ExpectQuery("SELECT pg_expensive FROM tool_positions").
		WillDelayFor(time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	start := time.Now()
	_, err := exec.RunSelect(context.Background(), "SELECT pg_expensive FROM tool_positions")
	if err == nil {
		t.Fatal("expected an error once the query deadline passed")
	}
	if elapsed := time.Since(start); elapsed >= time.Second {
		t.Fatalf("deadline did not cancel the query, took %v", elapsed)
	}
}
