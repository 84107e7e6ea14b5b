package directory

import (
	"fmt"
	"time"

	"coaching/internal/apperr"
	"coaching/internal/auth"
	"coaching/internal/ledger"
)

var (
	ErrUserNotFound    = fmt.Errorf("user %w", apperr.ErrNotFound)
	ErrStudentNotFound = fmt.Errorf("student %w", apperr.ErrNotFound)
	ErrTeacherNotFound = fmt.Errorf("teacher %w", apperr.ErrNotFound)
	ErrEmailTaken      = fmt.Errorf("email already registered: %w", apperr.ErrConflict)
	ErrNoRole          = fmt.Errorf("account has no role: %w", apperr.ErrForbidden)
)

// StatusActive is the status of a newly registered student.
const StatusActive = "active"

// User is a login account. Role is the only place a role is stored; the id
// equals the student or teacher id the account belongs to.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         auth.Role `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Student is an enrolled student. Due is filled on read from Fees.
type Student struct {
	ID        string      `json:"id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Phone     string      `json:"phone,omitempty"`
	Course    string      `json:"course"`
	Batch     string      `json:"batch"`
	Year      string      `json:"year,omitempty"`
	Status    string      `json:"status"`
	Fees      ledger.Fees `json:"fees"`
	Due       int64       `json:"due"`
	CreatedAt time.Time   `json:"createdAt"`
}

func (s Student) withDue() Student {
	s.Fees = s.Fees.Normalize()
	s.Due = s.Fees.Due()
	return s
}

// Teacher is a staff member. A teacher without a batch cannot take
// attendance.
type Teacher struct {
	ID            string    `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone,omitempty"`
	Subject       string    `json:"subject"`
	Course        string    `json:"course,omitempty"`
	Batch         string    `json:"batch,omitempty"`
	MonthlySalary int64     `json:"monthlySalary"`
	CreatedAt     time.Time `json:"createdAt"`
}

// StudentFilter narrows ListStudents. Empty fields match everything.
type StudentFilter struct {
	Batch  string
	Course string
}

// Registration is a student's self sign-up.
type Registration struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Phone    string `json:"phone"`
	Course   string `json:"course" validate:"required"`
	Batch    string `json:"batch"`
	Year     string `json:"year"`
}

// NewTeacher is the admin input for creating a teacher account.
type NewTeacher struct {
	Name          string `json:"name" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required,min=6"`
	Phone         string `json:"phone"`
	Subject       string `json:"subject" validate:"required"`
	Course        string `json:"course"`
	Batch         string `json:"batch"`
	MonthlySalary int64  `json:"monthlySalary" validate:"gte=0"`
}

// StudentUpdate carries the admin-editable student fields. Nil fields are
// left unchanged.
type StudentUpdate struct {
	Name      *string `json:"name"`
	Phone     *string `json:"phone"`
	Course    *string `json:"course"`
	Batch     *string `json:"batch"`
	Year      *string `json:"year"`
	Status    *string `json:"status"`
	FeesTotal *int64  `json:"feesTotal" validate:"omitempty,gt=0"`
}

// TeacherUpdate carries the admin-editable teacher fields.
type TeacherUpdate struct {
	Name          *string `json:"name"`
	Phone         *string `json:"phone"`
	Subject       *string `json:"subject"`
	Course        *string `json:"course"`
	Batch         *string `json:"batch"`
	MonthlySalary *int64  `json:"monthlySalary" validate:"omitempty,gte=0"`
}

func (u StudentUpdate) apply(s Student) Student {
	set(&s.Name, u.Name)
	set(&s.Phone, u.Phone)
	set(&s.Course, u.Course)
	set(&s.Batch, u.Batch)
	set(&s.Year, u.Year)
	set(&s.Status, u.Status)
	if u.FeesTotal != nil {
		s.Fees.Total = *u.FeesTotal
	}
	return s
}

func (u TeacherUpdate) apply(t Teacher) Teacher {
	set(&t.Name, u.Name)
	set(&t.Phone, u.Phone)
	set(&t.Subject, u.Subject)
	set(&t.Course, u.Course)
	set(&t.Batch, u.Batch)
	if u.MonthlySalary != nil {
		t.MonthlySalary = *u.MonthlySalary
	}
	return t
}

func set(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
