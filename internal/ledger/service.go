package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"coaching/internal/apperr"
	"coaching/internal/live"
	"coaching/internal/log"
	"coaching/internal/metrics"
)

// ErrIdempotencyMismatch is returned when an idempotency key is replayed with
// a different student or amount.
var ErrIdempotencyMismatch = fmt.Errorf("idempotency key reused for a different payment: %w", apperr.ErrConflict)

// Store is the persistence the ledger needs. ApplyPayment must append the
// payment and increment paid in one transaction, and must answer a known
// idempotency key with the stored payment and Replayed set.
type Store interface {
	ApplyPayment(ctx context.Context, p Payment) (Receipt, error)
	StudentFees(ctx context.Context, studentID string) (Fees, error)
	ListPayments(ctx context.Context, studentID string) ([]Payment, error)
	PaymentByKey(ctx context.Context, key string) (Payment, bool, error)
	MonthlySalary(ctx context.Context, teacherID string) (int64, error)
	InsertSalaryPayment(ctx context.Context, sp SalaryPayment) (SalaryPayment, bool, error)
	ListSalaryPayments(ctx context.Context, teacherID string) ([]SalaryPayment, error)
	NextSequence(ctx context.Context, name string) (int64, error)
	SeedSequence(ctx context.Context, name string, atLeast int64) error
}

// Publisher pushes live updates to subscribed views.
type Publisher interface {
	Publish(ctx context.Context, topic string, v any) error
}

// Service keeps fee accounts, salary months and code sequences consistent.
type Service struct {
	store Store
	pub   Publisher
	log   *log.Logger
	now   func() time.Time
}

// NewService creates a ledger service. pub may be nil.
func NewService(store Store, pub Publisher, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Discard()
	}
	return &Service{
		store: store,
		pub:   pub,
		log:   logger.WithComponent(log.ComponentLedger),
		now:   time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// PaymentRequest is the input of RecordPayment.
type PaymentRequest struct {
	StudentID      string
	Amount         int64
	Method         Method
	IdempotencyKey string
}

// RecordPayment appends a payment event and increments the student's paid
// total in a single store transaction. Submitting the same idempotency key
// again returns the original receipt without counting it twice. An empty key
// gets a fresh one, so such a call must not be retried blindly.
func (s *Service) RecordPayment(ctx context.Context, req PaymentRequest) (Receipt, error) {
	if req.StudentID == "" {
		return Receipt{}, apperr.NewValidationError(errors.New("student id required"), apperr.FieldError{Field: "studentId", Error: "this field is required"})
	}
	if err := ValidateAmount(req.Amount); err != nil {
		return Receipt{}, err
	}
	if req.Method == "" {
		req.Method = MethodManual
	}
	if !req.Method.Valid() {
		return Receipt{}, apperr.NewValidationError(fmt.Errorf("unknown payment method %q", req.Method), apperr.FieldError{Field: "method", Error: "must be one of: online manual"})
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	p := Payment{
		ID:             uuid.NewString(),
		StudentID:      req.StudentID,
		Amount:         req.Amount,
		Method:         req.Method,
		Status:         StatusSuccess,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      s.now().UTC(),
	}
	rec, err := s.store.ApplyPayment(ctx, p)
	if err != nil {
		s.log.ErrorContext(ctx, "payment failed",
			log.FieldOperation, log.OpRecordPayment,
			log.FieldStudentID, req.StudentID,
			log.FieldAmount, req.Amount,
			log.FieldError, err)
		return Receipt{}, fmt.Errorf("record payment: %w", err)
	}
	if rec.Replayed && (rec.Payment.StudentID != req.StudentID || rec.Payment.Amount != req.Amount || rec.Payment.Method != req.Method) {
		return Receipt{}, ErrIdempotencyMismatch
	}
	rec.Fees = rec.Fees.Normalize()
	rec.Due = rec.Fees.Due()

	if rec.Replayed {
		metrics.PaymentReplays.Inc()
		s.log.InfoContext(ctx, "payment replayed",
			log.FieldStudentID, req.StudentID,
			"payment_id", rec.Payment.ID)
		return rec, nil
	}

	metrics.PaymentsRecorded.WithLabelValues(string(p.Method)).Inc()
	metrics.PaymentAmount.WithLabelValues(string(p.Method)).Add(float64(p.Amount))
	s.log.InfoContext(ctx, "payment recorded",
		log.FieldOperation, log.OpRecordPayment,
		log.FieldStudentID, req.StudentID,
		log.FieldAmount, req.Amount,
		"paid", rec.Fees.Paid,
		"due", rec.Due)
	s.publish(ctx, live.FeesTopic(req.StudentID), rec)
	return rec, nil
}

// StudentFees returns the student's account and payment history.
func (s *Service) StudentFees(ctx context.Context, studentID string) (FeeStatement, error) {
	fees, err := s.store.StudentFees(ctx, studentID)
	if err != nil {
		return FeeStatement{}, err
	}
	payments, err := s.store.ListPayments(ctx, studentID)
	if err != nil {
		return FeeStatement{}, err
	}
	if payments == nil {
		payments = []Payment{}
	}
	fees = fees.Normalize()
	return FeeStatement{StudentID: studentID, Fees: fees, Due: fees.Due(), Payments: payments}, nil
}

// FindPayment looks a payment up by its idempotency key.
func (s *Service) FindPayment(ctx context.Context, key string) (Payment, bool, error) {
	if key == "" {
		return Payment{}, false, nil
	}
	return s.store.PaymentByKey(ctx, key)
}

// PaySalary marks the current month paid for the teacher at the teacher's
// monthly salary. A second call in the same month changes nothing and
// reports alreadyPaid.
func (s *Service) PaySalary(ctx context.Context, teacherID string) (SalaryPayment, bool, error) {
	monthly, err := s.store.MonthlySalary(ctx, teacherID)
	if err != nil {
		return SalaryPayment{}, false, err
	}
	now := s.now()
	sp := SalaryPayment{
		TeacherID: teacherID,
		Month:     YearMonthOf(now),
		Amount:    monthly,
		PaidAt:    now.UTC(),
	}
	got, inserted, err := s.store.InsertSalaryPayment(ctx, sp)
	if err != nil {
		return SalaryPayment{}, false, fmt.Errorf("pay salary: %w", err)
	}
	if !inserted {
		metrics.SalaryPayments.WithLabelValues("already_paid").Inc()
		return got, true, nil
	}
	metrics.SalaryPayments.WithLabelValues("paid").Inc()
	s.log.InfoContext(ctx, "salary paid",
		log.FieldOperation, log.OpPaySalary,
		log.FieldTeacherID, teacherID,
		log.FieldYearMonth, string(got.Month),
		log.FieldAmount, got.Amount)
	return got, false, nil
}

// SalaryStatus derives paid-this-month and the last paid date from the
// salary ledger.
func (s *Service) SalaryStatus(ctx context.Context, teacherID string) (SalaryStatus, error) {
	monthly, err := s.store.MonthlySalary(ctx, teacherID)
	if err != nil {
		return SalaryStatus{}, err
	}
	history, err := s.store.ListSalaryPayments(ctx, teacherID)
	if err != nil {
		return SalaryStatus{}, err
	}
	return DeriveSalaryStatus(teacherID, monthly, YearMonthOf(s.now()), history), nil
}

// NextCode allocates the next code of the series from an atomic counter.
// The first code of a fresh series is 1. A store failure is returned as is;
// guessing a number here could hand out a duplicate.
func (s *Service) NextCode(ctx context.Context, series CodeSeries) (string, error) {
	n, err := s.store.NextSequence(ctx, series.Name)
	if err != nil {
		return "", fmt.Errorf("next %s code: %w", series.Name, err)
	}
	metrics.CodesIssued.WithLabelValues(series.Name).Inc()
	return FormatCode(series.Prefix, n, series.Pad), nil
}

// SeedCodes raises the series counter to the highest code already in use so
// that records created before the counter existed are never duplicated.
func (s *Service) SeedCodes(ctx context.Context, series CodeSeries, existing []string) error {
	highest := HighestCode(series.Prefix, existing)
	if highest == 0 {
		return nil
	}
	if err := s.store.SeedSequence(ctx, series.Name, highest); err != nil {
		return fmt.Errorf("seed %s codes: %w", series.Name, err)
	}
	s.log.Info("code sequence seeded", "series", series.Name, "at_least", highest)
	return nil
}

func (s *Service) publish(ctx context.Context, topic string, v any) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, topic, v); err != nil {
		s.log.WarnContext(ctx, "live update failed", log.FieldTopic, topic, log.FieldError, err)
	}
}
