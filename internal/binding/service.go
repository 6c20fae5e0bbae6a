package binding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"campusattend/internal/student"
)

// Binding precondition failures. Each maps to a specific user-facing
// message at the HTTP layer; none are retried automatically.
var (
	ErrAlreadyBound    = errors.New("account is already bound to a student")
	ErrStudentNotFound = errors.New("student id does not exist or is inactive")
	ErrNameMismatch    = errors.New("name does not match the student record")
	ErrAlreadyClaimed  = errors.New("student id is already bound to another account")
)

// Resolution is the answer to "is this user bound, and to whom".
type Resolution struct {
	Bound   bool             `json:"bound"`
	Student *student.Student `json:"student,omitempty"`
}

// Store is the persistence surface the gate needs. The SQLite
// implementation runs InTx on one transaction so the precondition sequence
// and the claiming write commit atomically.
type Store interface {
	// UserBinding returns the binding flag and claimed student id of a user.
	UserBinding(ctx context.Context, userID int64) (status string, studentID *string, err error)
	// BoundStudent returns the joined active student for a bound user, nil
	// when the user is unbound.
	BoundStudent(ctx context.Context, userID int64) (*student.Student, error)
	// ActiveStudent looks a student up among active roster entries.
	ActiveStudent(ctx context.Context, studentID string) (*student.Student, error)
	// StudentClaimed reports whether any user already holds studentID bound.
	StudentClaimed(ctx context.Context, studentID string) (bool, error)
	// SaveBinding persists the claim. Implementations must surface a
	// uniqueness violation as ErrAlreadyClaimed.
	SaveBinding(ctx context.Context, userID int64, studentID string) error
	// InTx runs fn against a transactional view of the store.
	InTx(ctx context.Context, fn func(Store) error) error
}

// Service is the Binding Gate: it decides whether a user may check in and
// performs the one-time user→student claim.
type Service struct {
	store Store
	log   *zap.Logger
}

// NewService creates a gate over a store.
func NewService(store Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log}
}

// ResolveBinding reports whether the user holds a confirmed binding. Bound
// is true only when the flag says bound and a student id is present.
func (s *Service) ResolveBinding(ctx context.Context, userID int64) (Resolution, error) {
	status, studentID, err := s.store.UserBinding(ctx, userID)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve binding: %w", err)
	}
	if status != "bound" || studentID == nil {
		return Resolution{Bound: false}, nil
	}
	st, err := s.store.BoundStudent(ctx, userID)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve binding student: %w", err)
	}
	return Resolution{Bound: true, Student: st}, nil
}

// Bind claims a roster student for a user. Preconditions are checked in
// order, first failure wins, and the full sequence runs inside one
// transaction so two racing binders cannot both claim the same student.
func (s *Service) Bind(ctx context.Context, userID int64, studentID, confirmedName string) (*student.Student, error) {
	studentID = strings.TrimSpace(studentID)
	confirmedName = strings.TrimSpace(confirmedName)

	if err := student.ValidateStudentID(studentID); err != nil {
		return nil, err
	}
	if err := student.ValidateName(confirmedName); err != nil {
		return nil, err
	}

	var claimed *student.Student
	err := s.store.InTx(ctx, func(tx Store) error {
		status, _, err := tx.UserBinding(ctx, userID)
		if err != nil {
			return err
		}
		if status == "bound" {
			return ErrAlreadyBound
		}

		st, err := tx.ActiveStudent(ctx, studentID)
		if err != nil {
			if errors.Is(err, student.ErrNotFound) {
				return ErrStudentNotFound
			}
			return err
		}
		if st.Name != confirmedName {
			return ErrNameMismatch
		}

		taken, err := tx.StudentClaimed(ctx, studentID)
		if err != nil {
			return err
		}
		if taken {
			return ErrAlreadyClaimed
		}

		if err := tx.SaveBinding(ctx, userID, studentID); err != nil {
			return err
		}
		claimed = st
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user bound to student",
		zap.Int64("user_id", userID), zap.String("student_id", studentID))
	return claimed, nil
}
