package ledger

import (
	"fmt"
	"time"

	"coaching/internal/apperr"
)

// DefaultFeeTotal applies to student records that never had a total set.
const DefaultFeeTotal int64 = 75000

var (
	ErrInvalidAmount   = apperr.NewValidationError(fmt.Errorf("amount must be a positive number"), apperr.FieldError{Field: "amount", Error: "must be greater than 0"})
	ErrExceedsDue      = apperr.NewValidationError(fmt.Errorf("amount exceeds the outstanding due"), apperr.FieldError{Field: "amount", Error: "must not exceed the due amount"})
	ErrStudentNotFound = fmt.Errorf("student %w", apperr.ErrNotFound)
	ErrTeacherNotFound = fmt.Errorf("teacher %w", apperr.ErrNotFound)
)

// Fees is a student's fee account. Due is derived and never stored.
type Fees struct {
	Total int64 `json:"total"`
	Paid  int64 `json:"paid"`
}

// Due returns max(0, Total-Paid).
func (f Fees) Due() int64 {
	if d := f.Total - f.Paid; d > 0 {
		return d
	}
	return 0
}

// Normalize fills legacy gaps: a missing total becomes DefaultFeeTotal and a
// missing or negative paid amount becomes zero. Stores report a NULL total
// as zero and never hold an explicit zero, so zero is the only "missing" value.
func (f Fees) Normalize() Fees {
	if f.Total == 0 {
		f.Total = DefaultFeeTotal
	}
	if f.Paid < 0 {
		f.Paid = 0
	}
	return f
}

// FullyPaid reports whether nothing is left to pay.
func (f Fees) FullyPaid() bool { return f.Due() == 0 }

// Method records how a payment reached the institute.
type Method string

const (
	MethodOnline Method = "online"
	MethodManual Method = "manual"
)

// Valid reports whether m is one of the known methods.
func (m Method) Valid() bool { return m == MethodOnline || m == MethodManual }

// StatusSuccess is the only status a persisted payment ever has.
const StatusSuccess = "success"

// Payment is an append-only payment event.
type Payment struct {
	ID             string    `json:"id"`
	StudentID      string    `json:"studentId"`
	Amount         int64     `json:"amount"`
	Method         Method    `json:"method"`
	Status         string    `json:"status"`
	IdempotencyKey string    `json:"idempotencyKey"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Receipt is the outcome of applying a payment.
type Receipt struct {
	Payment  Payment `json:"payment"`
	Fees     Fees    `json:"fees"`
	Due      int64   `json:"due"`
	Replayed bool    `json:"replayed"`
}

// FeeStatement is a student's account together with its payment history.
type FeeStatement struct {
	StudentID string    `json:"studentId"`
	Fees      Fees      `json:"fees"`
	Due       int64     `json:"due"`
	Payments  []Payment `json:"payments"`
}

// ValidateAmount rejects zero and negative amounts.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ValidateAgainstDue is the caller-side cap used by self-service payments.
// The ledger itself never enforces it.
func ValidateAgainstDue(amount int64, f Fees) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	if amount > f.Normalize().Due() {
		return ErrExceedsDue
	}
	return nil
}
