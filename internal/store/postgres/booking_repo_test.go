package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestOptionsWithDefaults(t *testing.T) {
	got := Options{}.withDefaults()
	if got.MaxOpenConns != defaultMaxOpenConns {
		t.Errorf("MaxOpenConns = %d, want %d", got.MaxOpenConns, defaultMaxOpenConns)
	}
	if got.MaxIdleConns != defaultMaxIdleConns {
		t.Errorf("MaxIdleConns = %d, want %d", got.MaxIdleConns, defaultMaxIdleConns)
	}
	if got.ConnMaxLifetime != defaultConnMaxLifetime {
		t.Errorf("ConnMaxLifetime = %v, want %v", got.ConnMaxLifetime, defaultConnMaxLifetime)
	}
	if got.PingTimeout != defaultPingTimeout {
		t.Errorf("PingTimeout = %v, want %v", got.PingTimeout, defaultPingTimeout)
	}
	if got.ConnMaxIdleTime != 0 {
		t.Errorf("ConnMaxIdleTime = %v, want 0", got.ConnMaxIdleTime)
	}

	// Idle connections are capped by the open-connection limit.
	got = Options{MaxOpenConns: 1}.withDefaults()
	if got.MaxIdleConns != 1 {
		t.Errorf("MaxIdleConns = %d, want 1", got.MaxIdleConns)
	}
}

func TestExtractGooseUp(t *testing.T) {
	sql := "-- +goose Up\nCREATE TABLE a (id int);\n\n-- +goose Down\nDROP TABLE a;\n"
	up, err := extractGooseUp(sql)
	if err != nil {
		t.Fatalf("extractGooseUp error: %v", err)
	}
	if up != "CREATE TABLE a (id int);" {
		t.Fatalf("up = %q", up)
	}

	if _, err := extractGooseUp("CREATE TABLE a (id int);"); err == nil {
		t.Fatal("expected error for missing up marker")
	}

	// A file with no down section keeps everything after the marker.
	up, err = extractGooseUp("-- +goose Up\nCREATE TABLE b (id int);")
	if err != nil {
		t.Fatalf("extractGooseUp error: %v", err)
	}
	if up != "CREATE TABLE b (id int);" {
		t.Fatalf("up = %q", up)
	}
}

func TestSplitSQLStatements(t *testing.T) {
	stmts := splitSQLStatements("CREATE TABLE a (id int);\n\nCREATE INDEX a_idx ON a (id);\n;\n")
	if len(stmts) != 2 {
		t.Fatalf("len(stmts) = %d, want 2", len(stmts))
	}
	if stmts[0] != "CREATE TABLE a (id int)" {
		t.Errorf("stmts[0] = %q", stmts[0])
	}
	if stmts[1] != "CREATE INDEX a_idx ON a (id)" {
		t.Errorf("stmts[1] = %q", stmts[1])
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Error("23505 should be a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("23503 is not a unique violation")
	}
	if isUniqueViolation(errors.New("plain")) {
		t.Error("plain errors are not unique violations")
	}
}
