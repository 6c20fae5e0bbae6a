package attendance

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"campusattend/internal/binding"
	"campusattend/internal/student"
)

// fakeStore keeps records in memory and enforces the per-day uniqueness the
// SQLite index would.
type fakeStore struct {
	records []Record
	nextID  int64
}

func (f *fakeStore) HasRecordOnDate(_ context.Context, userID int64, localDate string) (bool, error) {
	for _, r := range f.records {
		if r.UserID == userID && r.LocalDate == localDate {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) Insert(_ context.Context, rec Record) (*Record, error) {
	for _, r := range f.records {
		if r.UserID == rec.UserID && r.LocalDate == rec.LocalDate {
			return nil, ErrDuplicateCheckIn
		}
	}
	f.nextID++
	rec.ID = f.nextID
	rec.CreatedAt = rec.Timestamp
	f.records = append(f.records, rec)
	return &rec, nil
}

func (f *fakeStore) Get(_ context.Context, id int64) (*Record, error) {
	for _, r := range f.records {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (f *fakeStore) ListByUser(_ context.Context, userID int64, limit int) ([]Record, error) {
	var res []Record
	for i := len(f.records) - 1; i >= 0; i-- {
		if f.records[i].UserID == userID {
			res = append(res, f.records[i])
			if limit > 0 && len(res) == limit {
				break
			}
		}
	}
	return res, nil
}

func (f *fakeStore) ListOnDate(_ context.Context, userID int64, localDate string) ([]Record, error) {
	var res []Record
	for _, r := range f.records {
		if r.UserID == userID && r.LocalDate == localDate {
			res = append(res, r)
		}
	}
	return res, nil
}

func (f *fakeStore) GetStats(_ context.Context, userID int64, today string, weekStart time.Time) (Stats, error) {
	var s Stats
	var accSum float64
	for _, r := range f.records {
		if r.UserID != userID {
			continue
		}
		s.TotalRecords++
		accSum += r.Accuracy
		switch r.Status {
		case StatusPresent:
			s.PresentCount++
		case StatusLate:
			s.LateCount++
		case StatusAbsent:
			s.AbsentCount++
		}
		if r.LocalDate == today {
			s.TodayRecords++
		}
		if !r.Timestamp.Before(weekStart) {
			s.ThisWeekRecords++
		}
	}
	if s.TotalRecords > 0 {
		s.AverageAccuracy = accSum / float64(s.TotalRecords)
	}
	return s, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id int64, status string, notes *string) error {
	for i := range f.records {
		if f.records[i].ID == id {
			f.records[i].Status = status
			f.records[i].Notes = notes
			return nil
		}
	}
	return ErrRecordNotFound
}

func (f *fakeStore) Delete(_ context.Context, id int64) error {
	for i := range f.records {
		if f.records[i].ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return ErrRecordNotFound
}

func (f *fakeStore) InTx(_ context.Context, fn func(Store) error) error {
	return fn(f)
}

// fakeGate answers ResolveBinding from a fixed map.
type fakeGate struct {
	bound map[int64]string
}

func (g *fakeGate) ResolveBinding(_ context.Context, userID int64) (binding.Resolution, error) {
	sid, ok := g.bound[userID]
	if !ok {
		return binding.Resolution{Bound: false}, nil
	}
	return binding.Resolution{
		Bound:   true,
		Student: &student.Student{StudentID: sid, Name: "王小明", Status: student.StatusActive},
	}, nil
}

func newTestService(store Store, gate Gate, now time.Time) *Service {
	svc := NewService(store, gate, zap.NewNop())
	svc.now = func() time.Time { return now }
	return svc
}

func validInput(userID int64) CheckInInput {
	return CheckInInput{
		UserID:    userID,
		Latitude:  25.0173,
		Longitude: 121.5397,
		Accuracy:  12.5,
	}
}

func TestCheckInRecordsPresent(t *testing.T) {
	now := time.Date(2024, 5, 6, 9, 30, 0, 0, time.Local)
	store := &fakeStore{}
	svc := newTestService(store, &fakeGate{bound: map[int64]string{1: "123456"}}, now)

	rec, err := svc.CheckIn(context.Background(), validInput(1))
	if err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}
	if rec.Status != StatusPresent {
		t.Errorf("status = %q, want %q", rec.Status, StatusPresent)
	}
	if rec.StudentID != "123456" {
		t.Errorf("student_id = %q, want 123456", rec.StudentID)
	}
	if rec.LocalDate != "2024-05-06" {
		t.Errorf("local_date = %q, want 2024-05-06", rec.LocalDate)
	}
	if !rec.Timestamp.Equal(now) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp, now)
	}
}

func TestCheckInRequiresBinding(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store, &fakeGate{bound: map[int64]string{}}, time.Now())

	if _, err := svc.CheckIn(context.Background(), validInput(1)); !errors.Is(err, ErrBindingRequired) {
		t.Fatalf("CheckIn() error = %v, want ErrBindingRequired", err)
	}
	if len(store.records) != 0 {
		t.Errorf("records = %d, want 0", len(store.records))
	}
}

func TestCheckInRejectsNonFiniteCoordinates(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store, &fakeGate{bound: map[int64]string{1: "123456"}}, time.Now())

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		in := validInput(1)
		in.Latitude = bad
		if _, err := svc.CheckIn(context.Background(), in); !errors.Is(err, ErrInvalidLocation) {
			t.Errorf("latitude %v: error = %v, want ErrInvalidLocation", bad, err)
		}
		in = validInput(1)
		in.Longitude = bad
		if _, err := svc.CheckIn(context.Background(), in); !errors.Is(err, ErrInvalidLocation) {
			t.Errorf("longitude %v: error = %v, want ErrInvalidLocation", bad, err)
		}
	}
}

func TestCheckInAcceptsAnyFiniteLocation(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(store, &fakeGate{bound: map[int64]string{1: "123456"}}, time.Now())

	// Far away and wildly inaccurate fixes are still recorded.
	in := validInput(1)
	in.Latitude = -89.9
	in.Longitude = 179.9
	in.Accuracy = 50000
	if _, err := svc.CheckIn(context.Background(), in); err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}
}

func TestCheckInOncePerDay(t *testing.T) {
	day1 := time.Date(2024, 5, 6, 9, 0, 0, 0, time.Local)
	store := &fakeStore{}
	gate := &fakeGate{bound: map[int64]string{1: "123456"}}
	svc := newTestService(store, gate, day1)

	if _, err := svc.CheckIn(context.Background(), validInput(1)); err != nil {
		t.Fatalf("first CheckIn() error = %v", err)
	}

	// Same calendar day, later time.
	svc.now = func() time.Time { return day1.Add(8 * time.Hour) }
	if _, err := svc.CheckIn(context.Background(), validInput(1)); !errors.Is(err, ErrDuplicateCheckIn) {
		t.Fatalf("second CheckIn() error = %v, want ErrDuplicateCheckIn", err)
	}
	if len(store.records) != 1 {
		t.Fatalf("records = %d, want 1", len(store.records))
	}

	// Next calendar day succeeds again.
	svc.now = func() time.Time { return day1.AddDate(0, 0, 1) }
	if _, err := svc.CheckIn(context.Background(), validInput(1)); err != nil {
		t.Fatalf("next-day CheckIn() error = %v", err)
	}

	ok, err := svc.HasCheckedInToday(context.Background(), 1)
	if err != nil {
		t.Fatalf("HasCheckedInToday() error = %v", err)
	}
	if !ok {
		t.Error("HasCheckedInToday() = false after a same-day check-in")
	}
}

func TestCheckInDistinctUsersSameDay(t *testing.T) {
	now := time.Date(2024, 5, 6, 9, 0, 0, 0, time.Local)
	store := &fakeStore{}
	gate := &fakeGate{bound: map[int64]string{1: "123456", 2: "654321"}}
	svc := newTestService(store, gate, now)

	if _, err := svc.CheckIn(context.Background(), validInput(1)); err != nil {
		t.Fatalf("user 1 CheckIn() error = %v", err)
	}
	if _, err := svc.CheckIn(context.Background(), validInput(2)); err != nil {
		t.Fatalf("user 2 CheckIn() error = %v", err)
	}
}

func TestStatsEmptyHistory(t *testing.T) {
	svc := newTestService(&fakeStore{}, &fakeGate{bound: map[int64]string{1: "123456"}}, time.Now())

	s, err := svc.Stats(context.Background(), 1)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if s != (Stats{}) {
		t.Errorf("Stats() = %+v, want all zero", s)
	}
}

func TestStatsCountsWindows(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.Local)
	store := &fakeStore{}
	gate := &fakeGate{bound: map[int64]string{1: "123456"}}
	svc := newTestService(store, gate, now)

	// Ten days ago: outside the trailing week.
	svc.now = func() time.Time { return now.AddDate(0, 0, -10) }
	if _, err := svc.CheckIn(context.Background(), validInput(1)); err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}
	// Three days ago: inside the week.
	svc.now = func() time.Time { return now.AddDate(0, 0, -3) }
	if _, err := svc.CheckIn(context.Background(), validInput(1)); err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}
	// Today.
	svc.now = func() time.Time { return now }
	if _, err := svc.CheckIn(context.Background(), validInput(1)); err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}

	s, err := svc.Stats(context.Background(), 1)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if s.TotalRecords != 3 {
		t.Errorf("TotalRecords = %d, want 3", s.TotalRecords)
	}
	if s.PresentCount != 3 {
		t.Errorf("PresentCount = %d, want 3", s.PresentCount)
	}
	if s.TodayRecords != 1 {
		t.Errorf("TodayRecords = %d, want 1", s.TodayRecords)
	}
	if s.ThisWeekRecords != 2 {
		t.Errorf("ThisWeekRecords = %d, want 2", s.ThisWeekRecords)
	}
	if s.AverageAccuracy != 12.5 {
		t.Errorf("AverageAccuracy = %v, want 12.5", s.AverageAccuracy)
	}
}

func TestUpdateStatusValidation(t *testing.T) {
	now := time.Date(2024, 5, 6, 9, 0, 0, 0, time.Local)
	store := &fakeStore{}
	svc := newTestService(store, &fakeGate{bound: map[int64]string{1: "123456"}}, now)

	rec, err := svc.CheckIn(context.Background(), validInput(1))
	if err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}

	if err := svc.UpdateStatus(context.Background(), rec.ID, "excused", nil); err == nil {
		t.Error("UpdateStatus() accepted an unknown status")
	}
	if err := svc.UpdateStatus(context.Background(), rec.ID, StatusLate, nil); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	s, err := svc.Stats(context.Background(), 1)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if s.LateCount != 1 || s.PresentCount != 0 {
		t.Errorf("Stats after correction = %+v, want one late", s)
	}
}

func TestHistoryLimit(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)
	store := &fakeStore{}
	gate := &fakeGate{bound: map[int64]string{1: "123456"}}
	svc := newTestService(store, gate, now)

	for i := 0; i < 5; i++ {
		day := now.AddDate(0, 0, i)
		svc.now = func() time.Time { return day }
		if _, err := svc.CheckIn(context.Background(), validInput(1)); err != nil {
			t.Fatalf("CheckIn() day %d error = %v", i, err)
		}
	}

	all, err := svc.History(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("History(0) = %d records, want 5", len(all))
	}
	limited, err := svc.History(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("History(2) = %d records, want 2", len(limited))
	}
	if !limited[0].Timestamp.After(limited[1].Timestamp) {
		t.Error("History() not newest first")
	}
}
