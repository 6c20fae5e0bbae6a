package binding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"campusattend/internal/student"
)

// Repository is the SQLite-backed Store. It reuses the users and students
// tables; the binding itself lives on the user row.
type Repository struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

// NewRepository creates a repo.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db, q: db}
}

// UserBinding returns the binding flag and claimed student id of a user.
func (r *Repository) UserBinding(ctx context.Context, userID int64) (string, *string, error) {
	var row struct {
		Status    string  `db:"binding_status"`
		StudentID *string `db:"student_id"`
	}
	err := sqlx.GetContext(ctx, r.q, &row,
		`SELECT binding_status, student_id FROM users WHERE id = ? AND is_active = 1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, fmt.Errorf("user %d: %w", userID, sql.ErrNoRows)
	}
	if err != nil {
		return "", nil, fmt.Errorf("user binding: %w", err)
	}
	return row.Status, row.StudentID, nil
}

// BoundStudent joins the user's claimed student row, nil when unbound.
func (r *Repository) BoundStudent(ctx context.Context, userID int64) (*student.Student, error) {
	var st student.Student
	err := sqlx.GetContext(ctx, r.q, &st, `
		SELECT s.id, s.student_id, s.name, s.department, s.grade, s.class_code,
		       s.phone, s.emergency_contact, s.emergency_phone, s.status,
		       s.created_at, s.updated_at
		FROM users u
		JOIN students s ON u.student_id = s.student_id
		WHERE u.id = ? AND u.binding_status = 'bound'`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bound student: %w", err)
	}
	return &st, nil
}

// ActiveStudent looks a student up among active roster entries.
func (r *Repository) ActiveStudent(ctx context.Context, studentID string) (*student.Student, error) {
	var st student.Student
	err := sqlx.GetContext(ctx, r.q, &st, `
		SELECT id, student_id, name, department, grade, class_code, phone,
		       emergency_contact, emergency_phone, status, created_at, updated_at
		FROM students WHERE student_id = ? AND status = 'active'`, studentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, student.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("active student: %w", err)
	}
	return &st, nil
}

// StudentClaimed reports whether any user already holds studentID bound.
func (r *Repository) StudentClaimed(ctx context.Context, studentID string) (bool, error) {
	var count int
	err := sqlx.GetContext(ctx, r.q, &count,
		`SELECT COUNT(*) FROM users WHERE student_id = ? AND binding_status = 'bound'`, studentID)
	if err != nil {
		return false, fmt.Errorf("student claimed: %w", err)
	}
	return count > 0, nil
}

// SaveBinding persists the claim on the user row. The partial unique index
// on users(student_id) backstops the claim check; a violation from a racing
// request surfaces as ErrAlreadyClaimed.
func (r *Repository) SaveBinding(ctx context.Context, userID int64, studentID string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET student_id = ?, binding_status = 'bound', updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, studentID, userID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyClaimed
		}
		return fmt.Errorf("save binding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("save binding: user %d not found", userID)
	}
	return nil
}

// Unbind clears a claim. Not exposed to end users; kept for admin tooling
// and tests.
func (r *Repository) Unbind(ctx context.Context, userID int64) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE users SET student_id = NULL, binding_status = 'unbound', updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("unbind: %w", err)
	}
	return nil
}

// InTx runs fn against a transactional view of the store.
func (r *Repository) InTx(ctx context.Context, fn func(Store) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin binding tx: %w", err)
	}
	txRepo := &Repository{db: r.db, q: tx}
	if err := fn(txRepo); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyClaimed
		}
		return fmt.Errorf("commit binding tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
