package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrRecordNotFound is returned for lookups and corrections on missing rows.
var ErrRecordNotFound = errors.New("attendance record not found")

// Repository persists attendance records in SQLite.
type Repository struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

// NewRepository creates a repo.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db, q: db}
}

const recordColumns = `id, user_id, student_id, course_id, latitude, longitude, accuracy,
	timestamp, local_date, status, device_info, ip_address, notes, created_at`

// HasRecordOnDate answers the Daily Uniqueness Guard: does a record exist
// for this user on this local calendar date.
func (r *Repository) HasRecordOnDate(ctx context.Context, userID int64, localDate string) (bool, error) {
	var count int
	err := sqlx.GetContext(ctx, r.q, &count,
		`SELECT COUNT(*) FROM attendance_records WHERE user_id = ? AND local_date = ?`,
		userID, localDate)
	if err != nil {
		return false, fmt.Errorf("duplicate check: %w", err)
	}
	return count > 0, nil
}

// Insert writes a new record and returns the stored row including its id.
// A (user_id, local_date) uniqueness violation surfaces as
// ErrDuplicateCheckIn so a racing request fails cleanly.
func (r *Repository) Insert(ctx context.Context, rec Record) (*Record, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO attendance_records (user_id, student_id, course_id, latitude, longitude,
			accuracy, timestamp, local_date, status, device_info, ip_address, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.UserID, rec.StudentID, rec.CourseID, rec.Latitude, rec.Longitude,
		rec.Accuracy, rec.Timestamp, rec.LocalDate, rec.Status,
		rec.DeviceInfo, rec.IPAddress, rec.Notes)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicateCheckIn
		}
		return nil, fmt.Errorf("insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert record id: %w", err)
	}
	return r.Get(ctx, id)
}

// Get returns a single record by id.
func (r *Repository) Get(ctx context.Context, id int64) (*Record, error) {
	var rec Record
	err := sqlx.GetContext(ctx, r.q, &rec,
		`SELECT `+recordColumns+` FROM attendance_records WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return &rec, nil
}

// ListByUser returns a user's records newest first; limit <= 0 means all.
func (r *Repository) ListByUser(ctx context.Context, userID int64, limit int) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance_records
		WHERE user_id = ? ORDER BY timestamp DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var res []Record
	if err := sqlx.SelectContext(ctx, r.q, &res, query, args...); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return res, nil
}

// ListOnDate returns a user's records for one local calendar date.
func (r *Repository) ListOnDate(ctx context.Context, userID int64, localDate string) ([]Record, error) {
	var res []Record
	err := sqlx.SelectContext(ctx, r.q, &res,
		`SELECT `+recordColumns+` FROM attendance_records
		 WHERE user_id = ? AND local_date = ? ORDER BY timestamp DESC`,
		userID, localDate)
	if err != nil {
		return nil, fmt.Errorf("list today records: %w", err)
	}
	return res, nil
}

// GetStats aggregates one user's history. today and weekStart are computed
// by the service so the window semantics live in one place.
func (r *Repository) GetStats(ctx context.Context, userID int64, today string, weekStart time.Time) (Stats, error) {
	var s Stats
	err := sqlx.GetContext(ctx, r.q, &s, `
		SELECT
			COUNT(*) AS total_records,
			COUNT(CASE WHEN status = 'present' THEN 1 END) AS present_count,
			COUNT(CASE WHEN status = 'late' THEN 1 END) AS late_count,
			COUNT(CASE WHEN status = 'absent' THEN 1 END) AS absent_count,
			COUNT(CASE WHEN local_date = ? THEN 1 END) AS today_records,
			COUNT(CASE WHEN timestamp >= ? THEN 1 END) AS week_records,
			COALESCE(AVG(accuracy), 0) AS avg_accuracy
		FROM attendance_records
		WHERE user_id = ?`, today, weekStart, userID)
	if err != nil {
		return Stats{}, fmt.Errorf("attendance stats: %w", err)
	}
	return s, nil
}

// UpdateStatus corrects a record's status and notes. Administrative only.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status string, notes *string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE attendance_records SET status = ?, notes = ? WHERE id = ?`,
		status, notes, id)
	if err != nil {
		return fmt.Errorf("update record status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Delete removes a record. Administrative only.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM attendance_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// InTx runs fn against a transactional view of the store so the duplicate
// check and the insert commit atomically.
func (r *Repository) InTx(ctx context.Context, fn func(Store) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attendance tx: %w", err)
	}
	txRepo := &Repository{db: r.db, q: tx}
	if err := fn(txRepo); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit attendance tx: %w", err)
	}
	return nil
}
