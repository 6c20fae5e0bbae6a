package student

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Roster entry statuses.
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusGraduated = "graduated"
)

// ValidStatus reports whether s is one of the three roster statuses.
func ValidStatus(s string) bool {
	return s == StatusActive || s == StatusInactive || s == StatusGraduated
}

// Student is a roster entry created by administrative import. End users
// never modify it.
type Student struct {
	ID               int64     `db:"id" json:"id"`
	StudentID        string    `db:"student_id" json:"student_id"`
	Name             string    `db:"name" json:"name"`
	Department       *string   `db:"department" json:"department,omitempty"`
	Grade            *int      `db:"grade" json:"grade,omitempty"`
	ClassCode        *string   `db:"class_code" json:"class_code,omitempty"`
	Phone            *string   `db:"phone" json:"phone,omitempty"`
	EmergencyContact *string   `db:"emergency_contact" json:"emergency_contact,omitempty"`
	EmergencyPhone   *string   `db:"emergency_phone" json:"emergency_phone,omitempty"`
	Status           string    `db:"status" json:"status"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// Validation failures share one sentinel so callers can treat every
// malformed input the same way while still showing the specific message.
var (
	ErrInvalidStudentID = errors.New("student id must be exactly 6 digits")
	ErrInvalidName      = errors.New("name must be 2-20 characters")
)

var studentIDPattern = regexp.MustCompile(`^\d{6}$`)

// ValidateStudentID checks the 6-ASCII-digit student number format. The
// input is trimmed before checking.
func ValidateStudentID(id string) error {
	if !studentIDPattern.MatchString(strings.TrimSpace(id)) {
		return ErrInvalidStudentID
	}
	return nil
}

// ValidateName checks the confirmation name: 2-20 characters after
// trimming, counted in runes so CJK names behave as expected.
func ValidateName(name string) error {
	clean := strings.TrimSpace(name)
	if n := utf8.RuneCountInString(clean); n < 2 || n > 20 {
		return ErrInvalidName
	}
	return nil
}
