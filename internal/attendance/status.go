package attendance

import (
	"fmt"
	"strings"
	"time"

	"coaching/internal/apperr"
)

// DateLayout is the ISO date format used as the key of every mark. Strings in
// this layout sort chronologically.
const DateLayout = "2006-01-02"

// Status is the mark for one (student, date). An unmarked day has no entry.
type Status string

const (
	Present Status = "Present"
	Absent  Status = "Absent"
)

// ParseStatus accepts present/absent in any case.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "present":
		return Present, nil
	case "absent":
		return Absent, nil
	}
	return "", apperr.NewValidationError(
		fmt.Errorf("invalid attendance status %q", s),
		apperr.FieldError{Field: "status", Error: "must be one of: Present Absent"},
	)
}

// ParseDate validates s as YYYY-MM-DD.
func ParseDate(s string) (string, error) {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", apperr.NewValidationError(
			fmt.Errorf("invalid date %q", s),
			apperr.FieldError{Field: "date", Error: "must be YYYY-MM-DD"},
		)
	}
	return s, nil
}

// FormatDate renders t's calendar date in t's location.
func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// Event is one (student, subject, date) attendance fact.
type Event struct {
	ID          string `json:"id,omitempty"`
	StudentID   string `json:"studentId"`
	SubjectCode string `json:"subjectCode"`
	SubjectName string `json:"subjectName"`
	Batch       string `json:"batch"`
	Date        string `json:"date"`
	Status      Status `json:"status"`
	MarkedBy    string `json:"markedBy,omitempty"`
}
