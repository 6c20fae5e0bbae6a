package attendance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"campusattend/internal/binding"
	"campusattend/internal/metrics"
)

// Check-in failures, in precondition order.
var (
	ErrBindingRequired  = errors.New("check-in requires a confirmed student binding")
	ErrInvalidLocation  = errors.New("latitude and longitude must be finite numbers")
	ErrDuplicateCheckIn = errors.New("already checked in today")
)

// Store is the persistence surface the check-in protocol needs.
type Store interface {
	HasRecordOnDate(ctx context.Context, userID int64, localDate string) (bool, error)
	Insert(ctx context.Context, rec Record) (*Record, error)
	Get(ctx context.Context, id int64) (*Record, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]Record, error)
	ListOnDate(ctx context.Context, userID int64, localDate string) ([]Record, error)
	GetStats(ctx context.Context, userID int64, today string, weekStart time.Time) (Stats, error)
	UpdateStatus(ctx context.Context, id int64, status string, notes *string) error
	Delete(ctx context.Context, id int64) error
	InTx(ctx context.Context, fn func(Store) error) error
}

// Gate resolves whether a user holds a confirmed binding.
type Gate interface {
	ResolveBinding(ctx context.Context, userID int64) (binding.Resolution, error)
}

// CheckInInput is the caller-supplied part of a check-in.
type CheckInInput struct {
	UserID     int64
	Latitude   float64
	Longitude  float64
	Accuracy   float64
	CourseID   *int64
	DeviceInfo *string
	IPAddress  *string
	Notes      *string
}

// Service implements the attendance check-in protocol: binding gate, daily
// uniqueness guard, recorder and statistics aggregator.
type Service struct {
	store Store
	gate  Gate
	log   *zap.Logger
	now   func() time.Time
}

// NewService creates a service.
func NewService(store Store, gate Gate, log *zap.Logger) *Service {
	return &Service{store: store, gate: gate, log: log, now: time.Now}
}

// localDate formats t as the server-local calendar date.
func localDate(t time.Time) string {
	return t.Local().Format("2006-01-02")
}

// HasCheckedInToday reports whether the user already holds a record for the
// current local calendar date.
func (s *Service) HasCheckedInToday(ctx context.Context, userID int64) (bool, error) {
	return s.store.HasRecordOnDate(ctx, userID, localDate(s.now()))
}

// CheckIn validates the preconditions in order (binding, location,
// duplicate) and records the attendance event. The duplicate check and the
// insert run in one transaction; any location, however inaccurate or far
// away, is accepted.
func (s *Service) CheckIn(ctx context.Context, in CheckInInput) (*Record, error) {
	res, err := s.gate.ResolveBinding(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if !res.Bound || res.Student == nil {
		return nil, ErrBindingRequired
	}

	if !finite(in.Latitude) || !finite(in.Longitude) {
		return nil, ErrInvalidLocation
	}

	now := s.now()
	rec := Record{
		UserID:     in.UserID,
		StudentID:  res.Student.StudentID,
		CourseID:   in.CourseID,
		Latitude:   in.Latitude,
		Longitude:  in.Longitude,
		Accuracy:   in.Accuracy,
		Timestamp:  now,
		LocalDate:  localDate(now),
		Status:     StatusPresent,
		DeviceInfo: in.DeviceInfo,
		IPAddress:  in.IPAddress,
		Notes:      in.Notes,
	}

	var stored *Record
	err = s.store.InTx(ctx, func(tx Store) error {
		exists, err := tx.HasRecordOnDate(ctx, in.UserID, rec.LocalDate)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateCheckIn
		}
		stored, err = tx.Insert(ctx, rec)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateCheckIn) {
			metrics.CheckinsRejected.Inc()
		}
		return nil, err
	}

	metrics.CheckinsRecorded.Inc()
	s.log.Info("check-in recorded",
		zap.Int64("user_id", in.UserID),
		zap.String("student_id", rec.StudentID),
		zap.Float64("accuracy", in.Accuracy))
	return stored, nil
}

// History returns the user's records newest first; limit <= 0 means all.
func (s *Service) History(ctx context.Context, userID int64, limit int) ([]Record, error) {
	return s.store.ListByUser(ctx, userID, limit)
}

// Today returns the user's records for the current local calendar date.
func (s *Service) Today(ctx context.Context, userID int64) ([]Record, error) {
	return s.store.ListOnDate(ctx, userID, localDate(s.now()))
}

// Stats aggregates the user's history. Zero records yields all-zero stats.
// "This week" is a trailing 7-day window.
func (s *Service) Stats(ctx context.Context, userID int64) (Stats, error) {
	now := s.now()
	return s.store.GetStats(ctx, userID, localDate(now), now.Add(-7*24*time.Hour))
}

// UpdateStatus corrects a record's status. Administrative; not reachable
// from the check-in flow.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status string, notes *string) error {
	if !ValidStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}
	if err := s.store.UpdateStatus(ctx, id, status, notes); err != nil {
		return err
	}
	s.log.Info("record status corrected", zap.Int64("record_id", id), zap.String("status", status))
	return nil
}

// Delete removes a record. Administrative.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.Delete(ctx, id)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
