package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"coaching/internal/apperr"
	"coaching/internal/auth"
	"coaching/internal/store"
)

// Repository persists accounts, students and teachers in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func classify(err error) error {
	if store.IsUniqueViolation(err) {
		switch store.ConstraintName(err) {
		case "users_email_key", "students_email_key", "teachers_email_key":
			return ErrEmailTaken
		}
		return fmt.Errorf("%s: %w", store.ConstraintName(err), apperr.ErrConflict)
	}
	return err
}

const insertUser = `
	INSERT INTO users (id, email, password_hash, role, created_at)
	VALUES ($1, $2, $3, NULLIF($4, ''), $5)`

// CreateStudentAccount inserts the user and the student in one transaction.
func (r *Repository) CreateStudentAccount(ctx context.Context, u User, s Student) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, insertUser, u.ID, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt); err != nil {
		return classify(err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO students (id, code, name, email, phone, course, batch, year, status, fees_total, fees_paid, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, s.ID, s.Code, s.Name, s.Email, s.Phone, s.Course, s.Batch, s.Year, s.Status, s.Fees.Total, s.Fees.Paid, s.CreatedAt)
	if err != nil {
		return classify(err)
	}
	return tx.Commit()
}

// CreateTeacherAccount inserts the user and the teacher in one transaction.
func (r *Repository) CreateTeacherAccount(ctx context.Context, u User, t Teacher) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, insertUser, u.ID, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt); err != nil {
		return classify(err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO teachers (id, code, name, email, phone, subject, course, batch, monthly_salary, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8, ''),$9,$10)
	`, t.ID, t.Code, t.Name, t.Email, t.Phone, t.Subject, t.Course, t.Batch, t.MonthlySalary, t.CreatedAt)
	if err != nil {
		return classify(err)
	}
	return tx.Commit()
}

// CreateUser inserts a bare account.
func (r *Repository) CreateUser(ctx context.Context, u User) error {
	_, err := r.db.ExecContext(ctx, insertUser, u.ID, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt)
	return classify(err)
}

// UserByEmail loads an account. Role is empty for legacy rows.
func (r *Repository) UserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	var role sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, role, created_at FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	u.Role = auth.Role(role.String)
	return u, err
}

// SetUserRole stores the resolved role.
func (r *Repository) SetUserRole(ctx context.Context, userID string, role auth.Role) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET role = $2 WHERE id = $1`, userID, string(role))
	if err != nil {
		return err
	}
	return mustAffect(res, ErrUserNotFound)
}

// IsAdminEmail reports whether email is on the admin list.
func (r *Repository) IsAdminEmail(ctx context.Context, email string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM admins WHERE email = $1)`, email).Scan(&ok)
	return ok, err
}

// AddAdminEmail puts email on the admin list.
func (r *Repository) AddAdminEmail(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO admins (email) VALUES ($1) ON CONFLICT DO NOTHING`, email)
	return err
}

const studentColumns = `id, code, name, email, phone, course, batch, year, status, COALESCE(fees_total, 0), fees_paid, created_at`

func scanStudent(row interface{ Scan(...any) error }) (Student, error) {
	var s Student
	err := row.Scan(&s.ID, &s.Code, &s.Name, &s.Email, &s.Phone, &s.Course, &s.Batch, &s.Year, &s.Status,
		&s.Fees.Total, &s.Fees.Paid, &s.CreatedAt)
	return s, err
}

// Student loads a student by id.
func (r *Repository) Student(ctx context.Context, id string) (Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, ErrStudentNotFound
	}
	return s, err
}

// StudentByEmail loads a student by email.
func (r *Repository) StudentByEmail(ctx context.Context, email string) (Student, error) {
	s, err := scanStudent(r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, ErrStudentNotFound
	}
	return s, err
}

// ListStudents returns the matching students ordered by code.
func (r *Repository) ListStudents(ctx context.Context, f StudentFilter) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+studentColumns+` FROM students
		WHERE ($1 = '' OR batch = $1) AND ($2 = '' OR course = $2)
		ORDER BY code
	`, f.Batch, f.Course)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Student
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// UpdateStudent writes the profile fields and the fee total. fees_paid is
// only ever changed by the ledger.
func (r *Repository) UpdateStudent(ctx context.Context, s Student) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE students SET name=$2, phone=$3, course=$4, batch=$5, year=$6, status=$7, fees_total=$8
		WHERE id = $1
	`, s.ID, s.Name, s.Phone, s.Course, s.Batch, s.Year, s.Status, s.Fees.Total)
	if err != nil {
		return classify(err)
	}
	return mustAffect(res, ErrStudentNotFound)
}

// DeleteStudent removes the student; payments and attendance cascade.
func (r *Repository) DeleteStudent(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var email string
	err = tx.QueryRowContext(ctx, `DELETE FROM students WHERE id = $1 RETURNING email`, id).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrStudentNotFound
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE email = $1 AND role = 'student'`, email); err != nil {
		return err
	}
	return tx.Commit()
}

// StudentCodes returns every stored student code.
func (r *Repository) StudentCodes(ctx context.Context) ([]string, error) {
	return r.codes(ctx, `SELECT code FROM students`)
}

const teacherColumns = `id, code, name, email, phone, subject, course, COALESCE(batch, ''), monthly_salary, created_at`

func scanTeacher(row interface{ Scan(...any) error }) (Teacher, error) {
	var t Teacher
	err := row.Scan(&t.ID, &t.Code, &t.Name, &t.Email, &t.Phone, &t.Subject, &t.Course, &t.Batch, &t.MonthlySalary, &t.CreatedAt)
	return t, err
}

// Teacher loads a teacher by id.
func (r *Repository) Teacher(ctx context.Context, id string) (Teacher, error) {
	t, err := scanTeacher(r.db.QueryRowContext(ctx, `SELECT `+teacherColumns+` FROM teachers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Teacher{}, ErrTeacherNotFound
	}
	return t, err
}

// TeacherByEmail loads a teacher by email.
func (r *Repository) TeacherByEmail(ctx context.Context, email string) (Teacher, error) {
	t, err := scanTeacher(r.db.QueryRowContext(ctx, `SELECT `+teacherColumns+` FROM teachers WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return Teacher{}, ErrTeacherNotFound
	}
	return t, err
}

// ListTeachers returns every teacher ordered by code.
func (r *Repository) ListTeachers(ctx context.Context) ([]Teacher, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+teacherColumns+` FROM teachers ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Teacher
	for rows.Next() {
		t, err := scanTeacher(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// UpdateTeacher writes the editable teacher fields.
func (r *Repository) UpdateTeacher(ctx context.Context, t Teacher) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE teachers SET name=$2, phone=$3, subject=$4, course=$5, batch=NULLIF($6, ''), monthly_salary=$7
		WHERE id = $1
	`, t.ID, t.Name, t.Phone, t.Subject, t.Course, t.Batch, t.MonthlySalary)
	if err != nil {
		return classify(err)
	}
	return mustAffect(res, ErrTeacherNotFound)
}

// DeleteTeacher removes the teacher; the salary ledger cascades.
func (r *Repository) DeleteTeacher(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var email string
	err = tx.QueryRowContext(ctx, `DELETE FROM teachers WHERE id = $1 RETURNING email`, id).Scan(&email)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTeacherNotFound
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE email = $1 AND role = 'teacher'`, email); err != nil {
		return err
	}
	return tx.Commit()
}

// TeacherCodes returns every stored teacher code.
func (r *Repository) TeacherCodes(ctx context.Context) ([]string, error) {
	return r.codes(ctx, `SELECT code FROM teachers`)
}

func (r *Repository) codes(ctx context.Context, query string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func mustAffect(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
