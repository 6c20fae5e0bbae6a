package student

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when no matching roster entry exists.
var ErrNotFound = errors.New("student not found")

// Repository persists roster entries in SQLite.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a repo.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const studentColumns = `id, student_id, name, department, grade, class_code, phone,
	emergency_contact, emergency_phone, status, created_at, updated_at`

// FindActiveByID returns the active student with the given student number.
func (r *Repository) FindActiveByID(ctx context.Context, studentID string) (*Student, error) {
	var s Student
	err := r.db.GetContext(ctx, &s,
		`SELECT `+studentColumns+` FROM students WHERE student_id = ? AND status = 'active'`, studentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active student: %w", err)
	}
	return &s, nil
}

// FindByID returns the student regardless of status.
func (r *Repository) FindByID(ctx context.Context, studentID string) (*Student, error) {
	var s Student
	err := r.db.GetContext(ctx, &s,
		`SELECT `+studentColumns+` FROM students WHERE student_id = ?`, studentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &s, nil
}

// ListActive returns all active students ordered by student number.
func (r *Repository) ListActive(ctx context.Context) ([]Student, error) {
	var res []Student
	err := r.db.SelectContext(ctx, &res,
		`SELECT `+studentColumns+` FROM students WHERE status = 'active' ORDER BY student_id`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return res, nil
}

// Create imports a roster entry. Status defaults to active.
func (r *Repository) Create(ctx context.Context, s Student) (*Student, error) {
	if s.Status == "" {
		s.Status = StatusActive
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (student_id, name, department, grade, class_code, phone,
			emergency_contact, emergency_phone, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.StudentID, s.Name, s.Department, s.Grade, s.ClassCode, s.Phone,
		s.EmergencyContact, s.EmergencyPhone, s.Status)
	if err != nil {
		return nil, fmt.Errorf("insert student: %w", err)
	}
	return r.FindByID(ctx, s.StudentID)
}

// Update replaces the mutable fields of a roster entry.
func (r *Repository) Update(ctx context.Context, s Student) (*Student, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE students
		SET name = ?, department = ?, grade = ?, class_code = ?, phone = ?,
		    emergency_contact = ?, emergency_phone = ?, status = ?, updated_at = ?
		WHERE student_id = ?`,
		s.Name, s.Department, s.Grade, s.ClassCode, s.Phone,
		s.EmergencyContact, s.EmergencyPhone, s.Status, time.Now(), s.StudentID)
	if err != nil {
		return nil, fmt.Errorf("update student: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return r.FindByID(ctx, s.StudentID)
}

// GroupCount is one row of a roster breakdown.
type GroupCount struct {
	Key        string `db:"key" json:"key"`
	Count      int64  `db:"count" json:"count"`
	BoundCount int64  `db:"bound_count" json:"bound_count"`
}

// RosterStats summarizes the roster and its binding coverage.
type RosterStats struct {
	TotalStudents   int64        `json:"total_students"`
	ActiveStudents  int64        `json:"active_students"`
	BoundStudents   int64        `json:"bound_students"`
	UnboundStudents int64        `json:"unbound_students"`
	ByDepartment    []GroupCount `json:"by_department"`
	ByGrade         []GroupCount `json:"by_grade"`
}

// GetRosterStats aggregates roster totals plus department and grade
// breakdowns, counting how many entries have been claimed by a user.
func (r *Repository) GetRosterStats(ctx context.Context) (RosterStats, error) {
	var basic struct {
		Total  int64 `db:"total_students"`
		Active int64 `db:"active_students"`
		Bound  int64 `db:"bound_students"`
	}
	err := r.db.GetContext(ctx, &basic, `
		SELECT
			COUNT(*) AS total_students,
			COUNT(CASE WHEN s.status = 'active' THEN 1 END) AS active_students,
			COUNT(CASE WHEN u.id IS NOT NULL THEN 1 END) AS bound_students
		FROM students s
		LEFT JOIN users u ON s.student_id = u.student_id AND u.binding_status = 'bound'`)
	if err != nil {
		return RosterStats{}, fmt.Errorf("roster stats: %w", err)
	}

	stats := RosterStats{
		TotalStudents:   basic.Total,
		ActiveStudents:  basic.Active,
		BoundStudents:   basic.Bound,
		UnboundStudents: basic.Active - basic.Bound,
	}

	err = r.db.SelectContext(ctx, &stats.ByDepartment, `
		SELECT s.department AS key, COUNT(*) AS count,
		       COUNT(CASE WHEN u.id IS NOT NULL THEN 1 END) AS bound_count
		FROM students s
		LEFT JOIN users u ON s.student_id = u.student_id AND u.binding_status = 'bound'
		WHERE s.status = 'active' AND s.department IS NOT NULL
		GROUP BY s.department
		ORDER BY s.department`)
	if err != nil {
		return RosterStats{}, fmt.Errorf("roster department stats: %w", err)
	}

	err = r.db.SelectContext(ctx, &stats.ByGrade, `
		SELECT CAST(s.grade AS TEXT) AS key, COUNT(*) AS count,
		       COUNT(CASE WHEN u.id IS NOT NULL THEN 1 END) AS bound_count
		FROM students s
		LEFT JOIN users u ON s.student_id = u.student_id AND u.binding_status = 'bound'
		WHERE s.status = 'active' AND s.grade IS NOT NULL
		GROUP BY s.grade
		ORDER BY s.grade`)
	if err != nil {
		return RosterStats{}, fmt.Errorf("roster grade stats: %w", err)
	}
	return stats, nil
}
