package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYearMonth(t *testing.T) {
	assert.Equal(t, YearMonth("2025-01"), YearMonthOf(time.Date(2025, 1, 31, 23, 59, 0, 0, time.UTC)))

	ym, err := ParseYearMonth("2025-12")
	require.NoError(t, err)
	assert.Equal(t, YearMonth("2025-12"), ym)

	_, err = ParseYearMonth("2025-13")
	assert.Error(t, err)
	_, err = ParseYearMonth("Dec 2025")
	assert.Error(t, err)
}

func TestDeriveSalaryStatus(t *testing.T) {
	jan := time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)
	history := []SalaryPayment{
		{TeacherID: "t1", Month: "2025-02", Amount: 50000, PaidAt: feb},
		{TeacherID: "t1", Month: "2025-01", Amount: 50000, PaidAt: jan},
	}

	st := DeriveSalaryStatus("t1", 50000, "2025-02", history)
	assert.True(t, st.PaidThisMonth)
	require.NotNil(t, st.LastPaidDate)
	assert.Equal(t, feb, *st.LastPaidDate)

	st = DeriveSalaryStatus("t1", 50000, "2025-03", history)
	assert.False(t, st.PaidThisMonth)
	assert.Equal(t, feb, *st.LastPaidDate)

	empty := DeriveSalaryStatus("t2", 40000, "2025-03", nil)
	assert.False(t, empty.PaidThisMonth)
	assert.Nil(t, empty.LastPaidDate)
	assert.NotNil(t, empty.History)
}
