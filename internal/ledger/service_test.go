package ledger_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coaching/internal/apperr"
	"coaching/internal/auth"
	"coaching/internal/directory"
	"coaching/internal/ledger"
	"coaching/internal/live"
	"coaching/internal/store/memory"
)

func seedStudent(t *testing.T, st *memory.Store, id string, fees ledger.Fees) {
	t.Helper()
	email := id + "@example.com"
	err := st.CreateStudentAccount(context.Background(),
		directory.User{ID: id, Email: email, Role: auth.RoleStudent},
		directory.Student{ID: id, Code: "EXC25" + id, Email: email, Fees: fees})
	require.NoError(t, err)
}

func seedTeacher(t *testing.T, st *memory.Store, id string, salary int64) {
	t.Helper()
	email := id + "@example.com"
	err := st.CreateTeacherAccount(context.Background(),
		directory.User{ID: id, Email: email, Role: auth.RoleTeacher},
		directory.Teacher{ID: id, Code: "TCH" + id, Email: email, MonthlySalary: salary})
	require.NoError(t, err)
}

func TestRecordPaymentExample(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedStudent(t, st, "s1", ledger.Fees{Total: 75000, Paid: 20000})
	svc := ledger.NewService(st, nil, nil)

	steps := []struct {
		amount int64
		paid   int64
		due    int64
	}{
		{0, 20000, 55000},
		{55000, 75000, 0},
		{10000, 85000, 0},
	}
	initial, err := svc.StudentFees(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, steps[0].paid, initial.Fees.Paid)
	assert.Equal(t, steps[0].due, initial.Due)

	for _, s := range steps[1:] {
		rec, err := svc.RecordPayment(ctx, ledger.PaymentRequest{StudentID: "s1", Amount: s.amount})
		require.NoError(t, err)
		assert.Equal(t, s.paid, rec.Fees.Paid)
		assert.Equal(t, s.due, rec.Due)
		assert.Equal(t, ledger.MethodManual, rec.Payment.Method)
		assert.Equal(t, ledger.StatusSuccess, rec.Payment.Status)
	}

	stmt, err := svc.StudentFees(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(85000), stmt.Fees.Paid)
	assert.Equal(t, int64(0), stmt.Due)
	require.Len(t, stmt.Payments, 2)
	assert.Equal(t, int64(10000), stmt.Payments[0].Amount, "newest first")
}

func TestRecordPaymentValidation(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedStudent(t, st, "s1", ledger.Fees{Total: 1000})
	svc := ledger.NewService(st, nil, nil)

	cases := []struct {
		name string
		req  ledger.PaymentRequest
		want error
	}{
		{"zero amount", ledger.PaymentRequest{StudentID: "s1", Amount: 0}, ledger.ErrInvalidAmount},
		{"negative amount", ledger.PaymentRequest{StudentID: "s1", Amount: -5}, ledger.ErrInvalidAmount},
		{"missing student id", ledger.PaymentRequest{Amount: 5}, apperr.ErrInvalid},
		{"bad method", ledger.PaymentRequest{StudentID: "s1", Amount: 5, Method: "cash"}, apperr.ErrInvalid},
		{"unknown student", ledger.PaymentRequest{StudentID: "nope", Amount: 5}, ledger.ErrStudentNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RecordPayment(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	fees, err := st.StudentFees(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), fees.Paid, "rejected payments change nothing")
}

func TestRecordPaymentIdempotent(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedStudent(t, st, "s1", ledger.Fees{Total: 75000})
	svc := ledger.NewService(st, nil, nil)

	req := ledger.PaymentRequest{StudentID: "s1", Amount: 5000, Method: ledger.MethodOnline, IdempotencyKey: "order-1"}
	first, err := svc.RecordPayment(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	again, err := svc.RecordPayment(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Payment.ID, again.Payment.ID)
	assert.Equal(t, int64(5000), again.Fees.Paid)

	_, err = svc.RecordPayment(ctx, ledger.PaymentRequest{StudentID: "s1", Amount: 7000, IdempotencyKey: "order-1"})
	assert.ErrorIs(t, err, ledger.ErrIdempotencyMismatch)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	payments, err := st.ListPayments(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestRecordPaymentReplayMismatch(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedStudent(t, st, "s1", ledger.Fees{Total: 75000})
	seedStudent(t, st, "s2", ledger.Fees{Total: 75000})
	svc := ledger.NewService(st, nil, nil)

	_, err := svc.RecordPayment(ctx, ledger.PaymentRequest{StudentID: "s1", Amount: 5000, Method: ledger.MethodOnline, IdempotencyKey: "order-9"})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  ledger.PaymentRequest
	}{
		{"different student", ledger.PaymentRequest{StudentID: "s2", Amount: 5000, Method: ledger.MethodOnline, IdempotencyKey: "order-9"}},
		{"different amount", ledger.PaymentRequest{StudentID: "s1", Amount: 5001, Method: ledger.MethodOnline, IdempotencyKey: "order-9"}},
		{"different method", ledger.PaymentRequest{StudentID: "s1", Amount: 5000, Method: ledger.MethodManual, IdempotencyKey: "order-9"}},
		{"method defaults to manual", ledger.PaymentRequest{StudentID: "s1", Amount: 5000, IdempotencyKey: "order-9"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordPayment(ctx, tt.req)
			assert.ErrorIs(t, err, ledger.ErrIdempotencyMismatch)
		})
	}

	payments, err := st.ListPayments(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, payments, 1)
	fees, err := st.StudentFees(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), fees.Paid)
}

func TestRecordPaymentConcurrentSum(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedStudent(t, st, "s1", ledger.Fees{Total: 75000, Paid: 1000})
	svc := ledger.NewService(st, nil, nil)

	var wg sync.WaitGroup
	var sum int64
	for i := 1; i <= 50; i++ {
		amount := int64(i * 10)
		sum += amount
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordPayment(ctx, ledger.PaymentRequest{StudentID: "s1", Amount: amount})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	fees, err := st.StudentFees(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1000+sum, fees.Paid)
}

func TestRecordPaymentPublishesFees(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedStudent(t, st, "s1", ledger.Fees{Total: 100})
	hub := live.NewMemory(4)
	svc := ledger.NewService(st, hub, nil)

	sub, err := hub.Subscribe(ctx, live.FeesTopic("s1"))
	require.NoError(t, err)
	defer sub.Close()

	_, err = svc.RecordPayment(ctx, ledger.PaymentRequest{StudentID: "s1", Amount: 40})
	require.NoError(t, err)

	select {
	case payload := <-sub.C():
		var rec ledger.Receipt
		require.NoError(t, json.Unmarshal(payload, &rec))
		assert.Equal(t, int64(60), rec.Due)
	case <-time.After(time.Second):
		t.Fatal("no fees update published")
	}
}

func TestPaySalary(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	seedTeacher(t, st, "t1", 50000)
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	svc := ledger.NewService(st, nil, nil).WithClock(func() time.Time { return now })

	status, err := svc.SalaryStatus(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, status.PaidThisMonth)
	assert.Nil(t, status.LastPaidDate)

	sp, already, err := svc.PaySalary(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, ledger.YearMonth("2025-01"), sp.Month)
	assert.Equal(t, int64(50000), sp.Amount)

	now = now.Add(24 * time.Hour)
	again, already, err := svc.PaySalary(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, already)
	assert.Equal(t, sp.PaidAt, again.PaidAt)

	status, err = svc.SalaryStatus(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, status.PaidThisMonth)
	assert.Len(t, status.History, 1)

	now = time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	status, err = svc.SalaryStatus(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, status.PaidThisMonth, "a new month starts unpaid")
	require.NotNil(t, status.LastPaidDate)
	assert.Equal(t, sp.PaidAt, *status.LastPaidDate)

	_, already, err = svc.PaySalary(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, already)

	_, _, err = svc.PaySalary(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestNextCodeUniqueUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	svc := ledger.NewService(memory.New(), nil, nil)
	series := ledger.CodeSeries{Name: "student", Prefix: "EXC25", Pad: 3}

	const n = 100
	codes := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := svc.NextCode(ctx, series)
			assert.NoError(t, err)
			codes <- c
		}()
	}
	wg.Wait()
	close(codes)

	seen := make(map[string]bool, n)
	for c := range codes {
		assert.False(t, seen[c], "duplicate code %s", c)
		seen[c] = true
	}
	assert.Len(t, seen, n)
	assert.True(t, seen["EXC25001"])
	assert.True(t, seen["EXC25100"])
}

func TestSeedCodes(t *testing.T) {
	ctx := context.Background()
	svc := ledger.NewService(memory.New(), nil, nil)
	series := ledger.CodeSeries{Name: "teacher", Prefix: "TCH"}

	require.NoError(t, svc.SeedCodes(ctx, series, []string{"TCH3", "TCH12", "bogus"}))
	code, err := svc.NextCode(ctx, series)
	require.NoError(t, err)
	assert.Equal(t, "TCH13", code)

	require.NoError(t, svc.SeedCodes(ctx, series, []string{"TCH5"}))
	code, err = svc.NextCode(ctx, series)
	require.NoError(t, err)
	assert.Equal(t, "TCH14", code, "seeding never lowers the counter")
}

type failingStore struct {
	ledger.Store
}

func (failingStore) NextSequence(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestNextCodeStoreFailure(t *testing.T) {
	svc := ledger.NewService(failingStore{memory.New()}, nil, nil)
	_, err := svc.NextCode(context.Background(), ledger.CodeSeries{Name: "student", Prefix: "EXC25", Pad: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("next %s code", "student"))
}
