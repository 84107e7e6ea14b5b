package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"coaching/internal/store"
)

// Repository persists the ledger in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const paymentColumns = `id, student_id, amount, method, status, idempotency_key, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.StudentID, &p.Amount, &p.Method, &p.Status, &p.IdempotencyKey, &p.CreatedAt)
	return p, err
}

// ApplyPayment appends the payment and increments fees_paid in one
// transaction. The increment is done by the database, so concurrent payments
// for the same student never lose an update.
func (r *Repository) ApplyPayment(ctx context.Context, p Payment) (Receipt, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Receipt{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id
	`, p.ID, p.StudentID, p.Amount, p.Method, p.Status, p.IdempotencyKey, p.CreatedAt).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		existing, err := scanPayment(tx.QueryRowContext(ctx,
			`SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = $1`, p.IdempotencyKey))
		if err != nil {
			return Receipt{}, fmt.Errorf("load replayed payment: %w", err)
		}
		fees, err := studentFees(ctx, tx, existing.StudentID)
		if err != nil {
			return Receipt{}, err
		}
		if err := tx.Commit(); err != nil {
			return Receipt{}, err
		}
		return Receipt{Payment: existing, Fees: fees, Replayed: true}, nil
	case store.IsForeignKeyViolation(err):
		return Receipt{}, ErrStudentNotFound
	case err != nil:
		return Receipt{}, fmt.Errorf("insert payment: %w", err)
	}

	var fees Fees
	err = tx.QueryRowContext(ctx, `
		UPDATE students
		SET fees_paid = fees_paid + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING COALESCE(fees_total, 0), fees_paid
	`, p.StudentID, p.Amount).Scan(&fees.Total, &fees.Paid)
	if errors.Is(err, sql.ErrNoRows) {
		return Receipt{}, ErrStudentNotFound
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("increment paid: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Receipt{}, err
	}
	return Receipt{Payment: p, Fees: fees}, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func studentFees(ctx context.Context, q queryRower, studentID string) (Fees, error) {
	var f Fees
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(fees_total, 0), fees_paid FROM students WHERE id = $1`, studentID,
	).Scan(&f.Total, &f.Paid)
	if errors.Is(err, sql.ErrNoRows) {
		return Fees{}, ErrStudentNotFound
	}
	return f, err
}

// StudentFees returns the raw fee account; callers normalize it.
func (r *Repository) StudentFees(ctx context.Context, studentID string) (Fees, error) {
	return studentFees(ctx, r.db, studentID)
}

// ListPayments returns a student's payments, newest first.
func (r *Repository) ListPayments(ctx context.Context, studentID string) ([]Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE student_id = $1 ORDER BY created_at DESC`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// PaymentByKey returns the payment stored under an idempotency key.
func (r *Repository) PaymentByKey(ctx context.Context, key string) (Payment, bool, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = $1`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return Payment{}, false, nil
	}
	if err != nil {
		return Payment{}, false, err
	}
	return p, true, nil
}

// MonthlySalary returns the teacher's configured monthly salary.
func (r *Repository) MonthlySalary(ctx context.Context, teacherID string) (int64, error) {
	var monthly int64
	err := r.db.QueryRowContext(ctx, `SELECT monthly_salary FROM teachers WHERE id = $1`, teacherID).Scan(&monthly)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrTeacherNotFound
	}
	return monthly, err
}

// InsertSalaryPayment records the (teacher, month) entry once. The boolean is
// false when the month was already paid, in which case the stored entry is
// returned.
func (r *Repository) InsertSalaryPayment(ctx context.Context, sp SalaryPayment) (SalaryPayment, bool, error) {
	var got SalaryPayment
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO salary_payments (teacher_id, year_month, amount, paid_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (teacher_id, year_month) DO NOTHING
		RETURNING teacher_id, year_month, amount, paid_at
	`, sp.TeacherID, sp.Month, sp.Amount, sp.PaidAt).Scan(&got.TeacherID, &got.Month, &got.Amount, &got.PaidAt)
	switch {
	case err == nil:
		return got, true, nil
	case store.IsForeignKeyViolation(err):
		return SalaryPayment{}, false, ErrTeacherNotFound
	case !errors.Is(err, sql.ErrNoRows):
		return SalaryPayment{}, false, err
	}
	err = r.db.QueryRowContext(ctx, `
		SELECT teacher_id, year_month, amount, paid_at
		FROM salary_payments WHERE teacher_id = $1 AND year_month = $2
	`, sp.TeacherID, sp.Month).Scan(&got.TeacherID, &got.Month, &got.Amount, &got.PaidAt)
	return got, false, err
}

// ListSalaryPayments returns the teacher's salary history, newest month first.
func (r *Repository) ListSalaryPayments(ctx context.Context, teacherID string) ([]SalaryPayment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT teacher_id, year_month, amount, paid_at
		FROM salary_payments WHERE teacher_id = $1
		ORDER BY year_month DESC
	`, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []SalaryPayment
	for rows.Next() {
		var sp SalaryPayment
		if err := rows.Scan(&sp.TeacherID, &sp.Month, &sp.Amount, &sp.PaidAt); err != nil {
			return nil, err
		}
		res = append(res, sp)
	}
	return res, rows.Err()
}

// NextSequence atomically increments the named counter and returns the new
// value; a missing counter starts at 1.
func (r *Repository) NextSequence(ctx context.Context, name string) (int64, error) {
	var v int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO sequences (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = sequences.value + 1
		RETURNING value
	`, name).Scan(&v)
	return v, err
}

// SeedSequence raises the counter to at least atLeast. It never lowers it.
func (r *Repository) SeedSequence(ctx context.Context, name string, atLeast int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sequences (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = GREATEST(sequences.value, EXCLUDED.value)
	`, name, atLeast)
	return err
}
