package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), false)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(false); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestMigrateCreatesSchema(t *testing.T) {
	db := openTestDB(t)

	reports, err := db.Diagnose(context.Background())
	if err != nil {
		t.Fatalf("Diagnose() error = %v", err)
	}
	if len(reports) != len(Tables) {
		t.Fatalf("Diagnose() reports = %d, want %d", len(reports), len(Tables))
	}
	for _, rep := range reports {
		if !rep.Present {
			t.Errorf("table %s missing after migration", rep.Name)
		}
		if rep.Rows != 0 {
			t.Errorf("table %s has %d rows in a fresh database", rep.Name, rep.Rows)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(false); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestBoundStudentUniqueAcrossUsers(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, q := range []string{
		`INSERT INTO users (google_id, email, name) VALUES ('g1', 'a@example.com', '王小明')`,
		`INSERT INTO users (google_id, email, name) VALUES ('g2', 'b@example.com', '李大華')`,
		`INSERT INTO students (student_id, name) VALUES ('123456', '王小明')`,
	} {
		if _, err := db.Client.ExecContext(ctx, q); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	_, err := db.Client.ExecContext(ctx,
		`UPDATE users SET student_id = '123456', binding_status = 'bound' WHERE google_id = 'g1'`)
	if err != nil {
		t.Fatalf("first bind: %v", err)
	}

	_, err = db.Client.ExecContext(ctx,
		`UPDATE users SET student_id = '123456', binding_status = 'bound' WHERE google_id = 'g2'`)
	if err == nil || !strings.Contains(err.Error(), "UNIQUE constraint failed") {
		t.Fatalf("second bind error = %v, want unique violation", err)
	}

	// An unbound row holding the same student id does not trip the partial
	// index.
	_, err = db.Client.ExecContext(ctx,
		`UPDATE users SET student_id = '123456', binding_status = 'unbound' WHERE google_id = 'g2'`)
	if err != nil {
		t.Fatalf("unbound holder: %v", err)
	}
}

func TestAttendanceUniquePerUserDay(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, q := range []string{
		`INSERT INTO users (google_id, email, name) VALUES ('g1', 'a@example.com', '王小明')`,
		`INSERT INTO users (google_id, email, name) VALUES ('g2', 'b@example.com', '李大華')`,
	} {
		if _, err := db.Client.ExecContext(ctx, q); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	insert := `INSERT INTO attendance_records
		(user_id, student_id, latitude, longitude, accuracy, timestamp, local_date)
		VALUES (?, ?, 25.0, 121.5, 10.0, CURRENT_TIMESTAMP, ?)`

	if _, err := db.Client.ExecContext(ctx, insert, 1, "123456", "2024-05-06"); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := db.Client.ExecContext(ctx, insert, 1, "123456", "2024-05-06")
	if err == nil || !strings.Contains(err.Error(), "UNIQUE constraint failed") {
		t.Fatalf("same-day insert error = %v, want unique violation", err)
	}
	if _, err := db.Client.ExecContext(ctx, insert, 1, "123456", "2024-05-07"); err != nil {
		t.Fatalf("next-day insert: %v", err)
	}
	if _, err := db.Client.ExecContext(ctx, insert, 2, "654321", "2024-05-06"); err != nil {
		t.Fatalf("other-user insert: %v", err)
	}
}
