package attendance

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"coaching/internal/apperr"
	"coaching/internal/live"
	"coaching/internal/log"
	"coaching/internal/metrics"
)

var (
	ErrStudentNotFound = fmt.Errorf("student %w", apperr.ErrNotFound)
	ErrTeacherNotFound = fmt.Errorf("teacher %w", apperr.ErrNotFound)
)

// ErrNoBatch means the teacher has no batch assigned and cannot take
// attendance.
var ErrNoBatch = fmt.Errorf("teacher has no batch assigned: %w", apperr.ErrForbidden)

// Store persists marks. UpsertDaily and UpsertEvents overwrite an existing
// mark for the same key; the last write wins.
type Store interface {
	UpsertDaily(ctx context.Context, studentID, date string, status Status) error
	DailyMarks(ctx context.Context, studentID string) (map[string]Status, error)
	UpsertEvents(ctx context.Context, events []Event) error
	StudentEvents(ctx context.Context, studentID string) ([]Event, error)
	BatchEvents(ctx context.Context, batch, since string) ([]Event, error)
	TeacherBatch(ctx context.Context, teacherID string) (string, error)
	StudentsInBatch(ctx context.Context, batch string) ([]string, error)
	StudentExists(ctx context.Context, studentID string) (bool, error)
}

// Publisher pushes live updates to subscribed views.
type Publisher interface {
	Publish(ctx context.Context, topic string, v any) error
}

// Service writes attendance marks and builds the attendance views.
type Service struct {
	store Store
	pub   Publisher
	log   *log.Logger
	now   func() time.Time
}

// NewService creates a service backed by a store. pub may be nil.
func NewService(store Store, pub Publisher, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Discard()
	}
	return &Service{
		store: store,
		pub:   pub,
		log:   logger.WithComponent(log.ComponentAttendance),
		now:   time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Today is the service's current local date.
func (s *Service) Today() string { return FormatDate(s.now()) }

// MarkDaily sets the student's mark for date, replacing any earlier mark.
// An empty date means today. It returns the date the mark was stored under.
func (s *Service) MarkDaily(ctx context.Context, studentID, date string, status Status) (string, error) {
	if studentID == "" {
		return "", apperr.NewValidationError(errors.New("student id required"), apperr.FieldError{Field: "studentId", Error: "this field is required"})
	}
	if date == "" {
		date = s.Today()
	}
	if _, err := ParseDate(date); err != nil {
		return "", err
	}
	status, err := ParseStatus(string(status))
	if err != nil {
		return "", err
	}
	if err := s.store.UpsertDaily(ctx, studentID, date, status); err != nil {
		return "", fmt.Errorf("mark daily: %w", err)
	}
	metrics.AttendanceMarks.WithLabelValues("daily", string(status)).Inc()
	s.log.InfoContext(ctx, "daily attendance marked",
		log.FieldOperation, log.OpMarkDaily,
		log.FieldStudentID, studentID,
		"date", date,
		"status", string(status))
	s.publish(ctx, live.AttendanceTopic(studentID), map[string]any{"date": date, "status": status})
	return date, nil
}

// MarkDailyForTeacher is MarkDaily restricted to students of the teacher's
// batch.
func (s *Service) MarkDailyForTeacher(ctx context.Context, teacherID, studentID, date string, status Status) (string, error) {
	batch, err := s.TeacherBatch(ctx, teacherID)
	if err != nil {
		return "", err
	}
	ids, err := s.store.StudentsInBatch(ctx, batch)
	if err != nil {
		return "", err
	}
	if !slices.Contains(ids, studentID) {
		return "", apperr.NewValidationError(
			fmt.Errorf("student %s is not in batch %s", studentID, batch),
			apperr.FieldError{Field: "studentId", Error: "student is not in your batch"})
	}
	return s.MarkDaily(ctx, studentID, date, status)
}

// SubjectMark is a teacher's attendance sheet for one subject on one date.
type SubjectMark struct {
	Date        string            `json:"date"`
	SubjectCode string            `json:"subjectCode"`
	SubjectName string            `json:"subjectName"`
	Marks       map[string]Status `json:"marks"`
}

// MarkBatch records a subject sheet for the teacher's batch. The teacher must
// have a batch and every student on the sheet must belong to it.
func (s *Service) MarkBatch(ctx context.Context, teacherID string, m SubjectMark) ([]Event, error) {
	var flds []apperr.FieldError
	if strings.TrimSpace(m.SubjectCode) == "" {
		flds = append(flds, apperr.FieldError{Field: "subjectCode", Error: "this field is required"})
	}
	if len(m.Marks) == 0 {
		flds = append(flds, apperr.FieldError{Field: "marks", Error: "at least one mark is required"})
	}
	if len(flds) > 0 {
		return nil, apperr.NewValidationError(errors.New("invalid attendance sheet"), flds...)
	}
	if m.Date == "" {
		m.Date = s.Today()
	}
	if _, err := ParseDate(m.Date); err != nil {
		return nil, err
	}

	batch, err := s.store.TeacherBatch(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	if batch == "" {
		return nil, ErrNoBatch
	}
	roster, err := s.store.StudentsInBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("load batch %s: %w", batch, err)
	}
	inBatch := make(map[string]bool, len(roster))
	for _, id := range roster {
		inBatch[id] = true
	}

	ids := make([]string, 0, len(m.Marks))
	for id := range m.Marks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	events := make([]Event, 0, len(ids))
	for _, id := range ids {
		if !inBatch[id] {
			return nil, apperr.NewValidationError(
				fmt.Errorf("student %s is not in batch %s", id, batch),
				apperr.FieldError{Field: "marks", Error: "student " + id + " is not in batch " + batch},
			)
		}
		st, err := ParseStatus(string(m.Marks[id]))
		if err != nil {
			return nil, err
		}
		events = append(events, Event{
			StudentID:   id,
			SubjectCode: m.SubjectCode,
			SubjectName: m.SubjectName,
			Batch:       batch,
			Date:        m.Date,
			Status:      st,
			MarkedBy:    teacherID,
		})
	}
	if err := s.store.UpsertEvents(ctx, events); err != nil {
		return nil, fmt.Errorf("mark batch: %w", err)
	}
	for _, e := range events {
		metrics.AttendanceMarks.WithLabelValues("subject", string(e.Status)).Inc()
		s.publish(ctx, live.AttendanceTopic(e.StudentID), e)
	}
	s.log.InfoContext(ctx, "subject attendance marked",
		log.FieldOperation, log.OpMarkBatch,
		log.FieldTeacherID, teacherID,
		"batch", batch,
		"subject", m.SubjectCode,
		"date", m.Date,
		"count", len(events))
	return events, nil
}

// Report is the student attendance page.
type Report struct {
	StudentID    string            `json:"studentId"`
	Daily        map[string]Status `json:"daily"`
	DailySummary DailySummary      `json:"dailySummary"`
	Subjects     []SubjectSummary  `json:"subjects"`
	Overall      Overall           `json:"overall"`
	Trend        []TrendPoint      `json:"trend"`
}

// StudentReport builds the student's attendance views from one snapshot.
func (s *Service) StudentReport(ctx context.Context, studentID string, windowDays int) (Report, error) {
	ok, err := s.store.StudentExists(ctx, studentID)
	if err != nil {
		return Report{}, err
	}
	if !ok {
		return Report{}, ErrStudentNotFound
	}
	daily, err := s.store.DailyMarks(ctx, studentID)
	if err != nil {
		return Report{}, err
	}
	if daily == nil {
		daily = map[string]Status{}
	}
	events, err := s.store.StudentEvents(ctx, studentID)
	if err != nil {
		return Report{}, err
	}
	subjects := SummarizeBySubject(events)
	return Report{
		StudentID:    studentID,
		Daily:        daily,
		DailySummary: SummarizeDaily(daily),
		Subjects:     subjects,
		Overall:      OverallOf(subjects),
		Trend:        Trend(events, s.now(), windowDays),
	}, nil
}

// BatchTrend is the trend window across every student of a batch.
func (s *Service) BatchTrend(ctx context.Context, batch string, windowDays int) ([]TrendPoint, error) {
	if batch == "" {
		return nil, apperr.NewValidationError(errors.New("batch required"), apperr.FieldError{Field: "batch", Error: "this field is required"})
	}
	now := s.now()
	events, err := s.store.BatchEvents(ctx, batch, WindowStart(now, windowDays))
	if err != nil {
		return nil, err
	}
	return Trend(events, now, windowDays), nil
}

// TeacherBatch returns the teacher's batch or ErrNoBatch.
func (s *Service) TeacherBatch(ctx context.Context, teacherID string) (string, error) {
	batch, err := s.store.TeacherBatch(ctx, teacherID)
	if err != nil {
		return "", err
	}
	if batch == "" {
		return "", ErrNoBatch
	}
	return batch, nil
}

func (s *Service) publish(ctx context.Context, topic string, v any) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, topic, v); err != nil {
		s.log.WarnContext(ctx, "live update failed", log.FieldTopic, topic, log.FieldError, err)
	}
}
