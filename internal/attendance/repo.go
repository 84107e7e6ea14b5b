package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"coaching/internal/store"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// UpsertDaily writes the student's mark for date, overwriting any earlier one.
func (r *Repository) UpsertDaily(ctx context.Context, studentID, date string, status Status) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO daily_attendance (student_id, date, status, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (student_id, date) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = NOW()
	`, studentID, date, status)
	if store.IsForeignKeyViolation(err) {
		return ErrStudentNotFound
	}
	return err
}

// DailyMarks returns the student's date → status map.
func (r *Repository) DailyMarks(ctx context.Context, studentID string) (map[string]Status, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT to_char(date, 'YYYY-MM-DD'), status
		FROM daily_attendance WHERE student_id = $1
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	marks := make(map[string]Status)
	for rows.Next() {
		var date string
		var st Status
		if err := rows.Scan(&date, &st); err != nil {
			return nil, err
		}
		marks[date] = st
	}
	return marks, rows.Err()
}

// UpsertEvents writes a whole sheet in one transaction.
func (r *Repository) UpsertEvents(ctx context.Context, events []Event) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attendance_events (id, student_id, subject_code, subject_name, batch, date, status, marked_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (student_id, subject_code, batch, date) DO UPDATE SET
			subject_name = EXCLUDED.subject_name,
			status = EXCLUDED.status,
			marked_by = EXCLUDED.marked_by,
			updated_at = NOW()
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.StudentID, e.SubjectCode, e.SubjectName, e.Batch, e.Date, e.Status, e.MarkedBy); err != nil {
			if store.IsForeignKeyViolation(err) {
				return fmt.Errorf("%s: %w", e.StudentID, ErrStudentNotFound)
			}
			return err
		}
	}
	return tx.Commit()
}

const eventColumns = `id, student_id, subject_code, subject_name, batch, to_char(date, 'YYYY-MM-DD'), status, marked_by`

func (r *Repository) queryEvents(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.StudentID, &e.SubjectCode, &e.SubjectName, &e.Batch, &e.Date, &e.Status, &e.MarkedBy); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// StudentEvents returns every subject event of the student in insertion order.
func (r *Repository) StudentEvents(ctx context.Context, studentID string) ([]Event, error) {
	return r.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM attendance_events WHERE student_id = $1 ORDER BY created_at, id`, studentID)
}

// BatchEvents returns the batch's events dated on or after since.
func (r *Repository) BatchEvents(ctx context.Context, batch, since string) ([]Event, error) {
	return r.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM attendance_events WHERE batch = $1 AND date >= $2 ORDER BY date, created_at`, batch, since)
}

// TeacherBatch returns the teacher's batch, empty when unassigned.
func (r *Repository) TeacherBatch(ctx context.Context, teacherID string) (string, error) {
	var batch sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT batch FROM teachers WHERE id = $1`, teacherID).Scan(&batch)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrTeacherNotFound
	}
	return batch.String, err
}

// StudentExists reports whether a student record exists.
func (r *Repository) StudentExists(ctx context.Context, studentID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM students WHERE id = $1)`, studentID).Scan(&ok)
	return ok, err
}

// StudentsInBatch returns the ids of the batch's students.
func (r *Repository) StudentsInBatch(ctx context.Context, batch string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM students WHERE batch = $1 ORDER BY code`, batch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
