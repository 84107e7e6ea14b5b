package ledger

import (
	"fmt"
	"time"
)

// YearMonth keys salary payments, formatted as 2006-01.
type YearMonth string

// YearMonthOf returns the month t falls in, in t's location.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth(t.Format("2006-01"))
}

// ParseYearMonth validates s as YYYY-MM.
func ParseYearMonth(s string) (YearMonth, error) {
	if _, err := time.Parse("2006-01", s); err != nil {
		return "", fmt.Errorf("invalid month %q: want YYYY-MM", s)
	}
	return YearMonth(s), nil
}

// SalaryPayment is one (teacher, month) entry of the salary ledger.
type SalaryPayment struct {
	TeacherID string    `json:"teacherId"`
	Month     YearMonth `json:"month"`
	Amount    int64     `json:"amount"`
	PaidAt    time.Time `json:"paidAt"`
}

// SalaryStatus is the derived view the dashboards show.
type SalaryStatus struct {
	TeacherID     string          `json:"teacherId"`
	Monthly       int64           `json:"monthly"`
	Month         YearMonth       `json:"month"`
	PaidThisMonth bool            `json:"paidThisMonth"`
	LastPaidDate  *time.Time      `json:"lastPaidDate,omitempty"`
	History       []SalaryPayment `json:"history"`
}

// DeriveSalaryStatus computes the status for month from the history.
func DeriveSalaryStatus(teacherID string, monthly int64, month YearMonth, history []SalaryPayment) SalaryStatus {
	st := SalaryStatus{
		TeacherID: teacherID,
		Monthly:   monthly,
		Month:     month,
		History:   history,
	}
	if st.History == nil {
		st.History = []SalaryPayment{}
	}
	for i := range history {
		p := history[i]
		if p.Month == month {
			st.PaidThisMonth = true
		}
		if st.LastPaidDate == nil || p.PaidAt.After(*st.LastPaidDate) {
			paid := p.PaidAt
			st.LastPaidDate = &paid
		}
	}
	return st
}
