package attendance

import "time"

// Record statuses. Nothing in the check-in flow computes late or absent;
// they exist for administrative correction.
const (
	StatusPresent = "present"
	StatusLate    = "late"
	StatusAbsent  = "absent"
)

// Record is an immutable GPS-stamped check-in event. LocalDate is the
// capture date in the server's time zone and carries the once-per-day
// uniqueness constraint.
type Record struct {
	ID         int64     `db:"id" json:"id"`
	UserID     int64     `db:"user_id" json:"user_id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	CourseID   *int64    `db:"course_id" json:"course_id,omitempty"`
	Latitude   float64   `db:"latitude" json:"latitude"`
	Longitude  float64   `db:"longitude" json:"longitude"`
	Accuracy   float64   `db:"accuracy" json:"accuracy"`
	Timestamp  time.Time `db:"timestamp" json:"timestamp"`
	LocalDate  string    `db:"local_date" json:"-"`
	Status     string    `db:"status" json:"status"`
	DeviceInfo *string   `db:"device_info" json:"device_info,omitempty"`
	IPAddress  *string   `db:"ip_address" json:"ip_address,omitempty"`
	Notes      *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Stats summarizes one user's check-in history. ThisWeekRecords is a
// trailing 7-day window, not a calendar week.
type Stats struct {
	TotalRecords    int64   `db:"total_records" json:"total_records"`
	PresentCount    int64   `db:"present_count" json:"present_count"`
	LateCount       int64   `db:"late_count" json:"late_count"`
	AbsentCount     int64   `db:"absent_count" json:"absent_count"`
	TodayRecords    int64   `db:"today_records" json:"today_records"`
	ThisWeekRecords int64   `db:"week_records" json:"this_week_records"`
	AverageAccuracy float64 `db:"avg_accuracy" json:"average_accuracy"`
}

// ValidStatus reports whether s is one of the three record statuses.
func ValidStatus(s string) bool {
	return s == StatusPresent || s == StatusLate || s == StatusAbsent
}
