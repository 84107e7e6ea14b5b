package directory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"coaching/internal/apperr"
	"coaching/internal/auth"
	"coaching/internal/ledger"
	"coaching/internal/log"
)

// Store persists accounts and the student and teacher records. The Create*
// account methods insert the user and its record in one transaction.
type Store interface {
	CreateStudentAccount(ctx context.Context, u User, s Student) error
	CreateTeacherAccount(ctx context.Context, u User, t Teacher) error
	CreateUser(ctx context.Context, u User) error
	UserByEmail(ctx context.Context, email string) (User, error)
	SetUserRole(ctx context.Context, userID string, role auth.Role) error
	IsAdminEmail(ctx context.Context, email string) (bool, error)
	AddAdminEmail(ctx context.Context, email string) error

	Student(ctx context.Context, id string) (Student, error)
	StudentByEmail(ctx context.Context, email string) (Student, error)
	ListStudents(ctx context.Context, f StudentFilter) ([]Student, error)
	UpdateStudent(ctx context.Context, s Student) error
	DeleteStudent(ctx context.Context, id string) error
	StudentCodes(ctx context.Context) ([]string, error)

	Teacher(ctx context.Context, id string) (Teacher, error)
	TeacherByEmail(ctx context.Context, email string) (Teacher, error)
	ListTeachers(ctx context.Context) ([]Teacher, error)
	UpdateTeacher(ctx context.Context, t Teacher) error
	DeleteTeacher(ctx context.Context, id string) error
	TeacherCodes(ctx context.Context) ([]string, error)
}

// CodeAllocator hands out sequence codes. *ledger.Service implements it.
type CodeAllocator interface {
	NextCode(ctx context.Context, series ledger.CodeSeries) (string, error)
	SeedCodes(ctx context.Context, series ledger.CodeSeries, existing []string) error
}

// Options configures a Service.
type Options struct {
	StudentSeries   ledger.CodeSeries
	TeacherSeries   ledger.CodeSeries
	DefaultFeeTotal int64
	DefaultSalary   int64
}

// DefaultOptions matches the codes the institute has always issued.
func DefaultOptions() Options {
	return Options{
		StudentSeries:   ledger.CodeSeries{Name: "student", Prefix: "EXC25", Pad: 3},
		TeacherSeries:   ledger.CodeSeries{Name: "teacher", Prefix: "TCH"},
		DefaultFeeTotal: ledger.DefaultFeeTotal,
		DefaultSalary:   50000,
	}
}

// Principal is an authenticated account. Subject is the id tokens carry.
type Principal struct {
	UserID  string    `json:"userId"`
	Subject string    `json:"subject"`
	Email   string    `json:"email"`
	Role    auth.Role `json:"role"`
}

// Service manages accounts, students and teachers.
type Service struct {
	store    Store
	codes    CodeAllocator
	opts     Options
	validate *validator.Validate
	log      *log.Logger
	now      func() time.Time
}

// NewService creates a directory service.
func NewService(store Store, codes CodeAllocator, opts Options, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Discard()
	}
	if opts.DefaultFeeTotal <= 0 {
		opts.DefaultFeeTotal = ledger.DefaultFeeTotal
	}
	return &Service{
		store:    store,
		codes:    codes,
		opts:     opts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      logger.WithComponent(log.ComponentDirectory),
		now:      time.Now,
	}
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

// Register signs a student up: a fresh code, a user with the student role
// and the student record with an untouched fee account.
func (s *Service) Register(ctx context.Context, r Registration) (Student, error) {
	r.Email = normalizeEmail(r.Email)
	if err := s.validate.Struct(r); err != nil {
		return Student{}, apperr.FromValidator(err)
	}
	hash, err := auth.HashPassword(r.Password)
	if err != nil {
		return Student{}, fmt.Errorf("hash password: %w", err)
	}
	code, err := s.codes.NextCode(ctx, s.opts.StudentSeries)
	if err != nil {
		return Student{}, err
	}
	now := s.now().UTC()
	id := uuid.NewString()
	st := Student{
		ID:        id,
		Code:      code,
		Name:      strings.TrimSpace(r.Name),
		Email:     r.Email,
		Phone:     r.Phone,
		Course:    r.Course,
		Batch:     r.Batch,
		Year:      r.Year,
		Status:    StatusActive,
		Fees:      ledger.Fees{Total: s.opts.DefaultFeeTotal},
		CreatedAt: now,
	}
	u := User{ID: id, Email: r.Email, PasswordHash: hash, Role: auth.RoleStudent, CreatedAt: now}
	if err := s.store.CreateStudentAccount(ctx, u, st); err != nil {
		return Student{}, err
	}
	s.log.InfoContext(ctx, "student registered",
		log.FieldOperation, log.OpRegister,
		log.FieldStudentID, id,
		"code", code)
	return st.withDue(), nil
}

// CreateTeacher creates a teacher account with the next teacher code.
func (s *Service) CreateTeacher(ctx context.Context, in NewTeacher) (Teacher, error) {
	in.Email = normalizeEmail(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return Teacher{}, apperr.FromValidator(err)
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return Teacher{}, fmt.Errorf("hash password: %w", err)
	}
	code, err := s.codes.NextCode(ctx, s.opts.TeacherSeries)
	if err != nil {
		return Teacher{}, err
	}
	if in.MonthlySalary == 0 {
		in.MonthlySalary = s.opts.DefaultSalary
	}
	now := s.now().UTC()
	id := uuid.NewString()
	t := Teacher{
		ID:            id,
		Code:          code,
		Name:          strings.TrimSpace(in.Name),
		Email:         in.Email,
		Phone:         in.Phone,
		Subject:       in.Subject,
		Course:        in.Course,
		Batch:         in.Batch,
		MonthlySalary: in.MonthlySalary,
		CreatedAt:     now,
	}
	u := User{ID: id, Email: in.Email, PasswordHash: hash, Role: auth.RoleTeacher, CreatedAt: now}
	if err := s.store.CreateTeacherAccount(ctx, u, t); err != nil {
		return Teacher{}, err
	}
	s.log.InfoContext(ctx, "teacher created", log.FieldTeacherID, id, "code", code)
	return t, nil
}

// Login checks the password and returns the account's principal.
func (s *Service) Login(ctx context.Context, email, password string) (Principal, error) {
	email = normalizeEmail(email)
	u, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return Principal{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return Principal{}, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return Principal{}, err
	}
	return s.Resolve(ctx, u)
}

// Resolve determines the principal of a user. Accounts created before roles
// were stored have an empty role; for those the first match of admin list,
// teacher record, student record wins and is written back so the lookup
// happens once.
func (s *Service) Resolve(ctx context.Context, u User) (Principal, error) {
	p := Principal{UserID: u.ID, Subject: u.ID, Email: u.Email, Role: u.Role}
	if !p.Role.Valid() {
		role, err := s.legacyRole(ctx, u.Email)
		if err != nil {
			return Principal{}, err
		}
		if err := s.store.SetUserRole(ctx, u.ID, role); err != nil {
			return Principal{}, fmt.Errorf("persist role: %w", err)
		}
		s.log.InfoContext(ctx, "legacy role resolved", "user_id", u.ID, "role", string(role))
		p.Role = role
	}

	switch p.Role {
	case auth.RoleTeacher:
		t, err := s.store.TeacherByEmail(ctx, u.Email)
		if err != nil {
			return Principal{}, noRecord(err)
		}
		p.Subject = t.ID
	case auth.RoleStudent:
		st, err := s.store.StudentByEmail(ctx, u.Email)
		if err != nil {
			return Principal{}, noRecord(err)
		}
		p.Subject = st.ID
	}
	return p, nil
}

func (s *Service) legacyRole(ctx context.Context, email string) (auth.Role, error) {
	admin, err := s.store.IsAdminEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if admin {
		return auth.RoleAdmin, nil
	}
	if _, err := s.store.TeacherByEmail(ctx, email); err == nil {
		return auth.RoleTeacher, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return "", err
	}
	if _, err := s.store.StudentByEmail(ctx, email); err == nil {
		return auth.RoleStudent, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return "", err
	}
	return "", ErrNoRole
}

func noRecord(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return ErrNoRole
	}
	return err
}

// EnsureAdmin creates the bootstrap admin account when it does not exist.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}
	if err := s.store.AddAdminEmail(ctx, email); err != nil {
		return err
	}
	_, err := s.store.UserByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	if len(password) < auth.MinPasswordLength {
		return fmt.Errorf("admin password must have at least %d characters", auth.MinPasswordLength)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	u := User{ID: uuid.NewString(), Email: email, PasswordHash: hash, Role: auth.RoleAdmin, CreatedAt: s.now().UTC()}
	if err := s.store.CreateUser(ctx, u); err != nil && !errors.Is(err, ErrEmailTaken) {
		return err
	}
	s.log.Info("admin account created", "email", email)
	return nil
}

// Student returns a student with due computed.
func (s *Service) Student(ctx context.Context, id string) (Student, error) {
	st, err := s.store.Student(ctx, id)
	if err != nil {
		return Student{}, err
	}
	return st.withDue(), nil
}

// ListStudents returns the matching students ordered by code.
func (s *Service) ListStudents(ctx context.Context, f StudentFilter) ([]Student, error) {
	list, err := s.store.ListStudents(ctx, f)
	if err != nil {
		return nil, err
	}
	out := make([]Student, len(list))
	for i, st := range list {
		out[i] = st.withDue()
	}
	return out, nil
}

// StudentsOfTeacher lists the students in the teacher's batch.
func (s *Service) StudentsOfTeacher(ctx context.Context, teacherID string) ([]Student, error) {
	t, err := s.store.Teacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	if t.Batch == "" {
		return []Student{}, nil
	}
	return s.ListStudents(ctx, StudentFilter{Batch: t.Batch})
}

// UpdateStudent applies an admin edit. The paid amount is owned by the
// ledger and cannot be changed here.
func (s *Service) UpdateStudent(ctx context.Context, id string, u StudentUpdate) (Student, error) {
	if err := s.validate.Struct(u); err != nil {
		return Student{}, apperr.FromValidator(err)
	}
	st, err := s.store.Student(ctx, id)
	if err != nil {
		return Student{}, err
	}
	st = u.apply(st)
	if err := s.store.UpdateStudent(ctx, st); err != nil {
		return Student{}, err
	}
	return st.withDue(), nil
}

// DeleteStudent removes the student with its payments and attendance.
func (s *Service) DeleteStudent(ctx context.Context, id string) error {
	if err := s.store.DeleteStudent(ctx, id); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "student deleted", log.FieldStudentID, id)
	return nil
}

// Teacher returns one teacher.
func (s *Service) Teacher(ctx context.Context, id string) (Teacher, error) {
	return s.store.Teacher(ctx, id)
}

// ListTeachers returns every teacher ordered by code.
func (s *Service) ListTeachers(ctx context.Context) ([]Teacher, error) {
	list, err := s.store.ListTeachers(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Teacher{}
	}
	return list, nil
}

// UpdateTeacher applies an admin edit.
func (s *Service) UpdateTeacher(ctx context.Context, id string, u TeacherUpdate) (Teacher, error) {
	if err := s.validate.Struct(u); err != nil {
		return Teacher{}, apperr.FromValidator(err)
	}
	t, err := s.store.Teacher(ctx, id)
	if err != nil {
		return Teacher{}, err
	}
	t = u.apply(t)
	if err := s.store.UpdateTeacher(ctx, t); err != nil {
		return Teacher{}, err
	}
	return t, nil
}

// DeleteTeacher removes the teacher and the salary ledger.
func (s *Service) DeleteTeacher(ctx context.Context, id string) error {
	if err := s.store.DeleteTeacher(ctx, id); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "teacher deleted", log.FieldTeacherID, id)
	return nil
}

// SeedCodeSequences raises both code counters past any code already stored.
func (s *Service) SeedCodeSequences(ctx context.Context) error {
	students, err := s.store.StudentCodes(ctx)
	if err != nil {
		return err
	}
	if err := s.codes.SeedCodes(ctx, s.opts.StudentSeries, students); err != nil {
		return err
	}
	teachers, err := s.store.TeacherCodes(ctx)
	if err != nil {
		return err
	}
	return s.codes.SeedCodes(ctx, s.opts.TeacherSeries, teachers)
}

var exportHeader = []string{"code", "name", "email", "phone", "course", "batch", "year", "status", "fees_total", "fees_paid", "fees_due"}

// ExportCSV writes the matching students as CSV with the computed due.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, f StudentFilter) error {
	list, err := s.ListStudents(ctx, f)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, st := range list {
		row := []string{
			st.Code, st.Name, st.Email, st.Phone, st.Course, st.Batch, st.Year, st.Status,
			strconv.FormatInt(st.Fees.Total, 10),
			strconv.FormatInt(st.Fees.Paid, 10),
			strconv.FormatInt(st.Due, 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
