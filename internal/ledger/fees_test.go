package ledger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"coaching/internal/apperr"
)

func TestFeesDue(t *testing.T) {
	cases := []struct {
		name string
		fees Fees
		due  int64
	}{
		{"partly paid", Fees{Total: 75000, Paid: 20000}, 55000},
		{"exactly paid", Fees{Total: 75000, Paid: 75000}, 0},
		{"overpaid clamps to zero", Fees{Total: 75000, Paid: 85000}, 0},
		{"nothing paid", Fees{Total: 1000, Paid: 0}, 1000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.due, tc.fees.Due())
		})
	}
}

func TestFeesDueNeverNegative(t *testing.T) {
	for total := int64(0); total <= 2000; total += 250 {
		for paid := int64(0); paid <= 3000; paid += 125 {
			f := Fees{Total: total, Paid: paid}
			d := f.Due()
			assert.GreaterOrEqual(t, d, int64(0))
			if total >= paid {
				assert.Equal(t, total-paid, d)
			}
		}
	}
}

func TestFeesNormalize(t *testing.T) {
	assert.Equal(t, Fees{Total: DefaultFeeTotal, Paid: 0}, Fees{}.Normalize())
	assert.Equal(t, Fees{Total: DefaultFeeTotal, Paid: 0}, Fees{Paid: -5}.Normalize())
	assert.Equal(t, Fees{Total: 5000, Paid: 100}, Fees{Total: 5000, Paid: 100}.Normalize())
	assert.Equal(t, int64(75000), Fees{}.Normalize().Due())
}

func TestFeesNormalizeKeepsExplicitTotals(t *testing.T) {
	tests := []struct {
		name string
		in   Fees
		want Fees
	}{
		{"missing total", Fees{Paid: 500}, Fees{Total: DefaultFeeTotal, Paid: 500}},
		{"small total", Fees{Total: 1, Paid: 0}, Fees{Total: 1, Paid: 0}},
		{"overpaid", Fees{Total: 100, Paid: 250}, Fees{Total: 100, Paid: 250}},
		{"negative total is not treated as missing", Fees{Total: -10}, Fees{Total: -10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
	assert.Equal(t, int64(0), Fees{Total: -10}.Normalize().Due())
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, ValidateAmount(1))
	for _, amt := range []int64{0, -1, -75000} {
		err := ValidateAmount(amt)
		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.True(t, errors.Is(err, apperr.ErrInvalid))
	}
}

func TestValidateAgainstDue(t *testing.T) {
	f := Fees{Total: 75000, Paid: 20000}
	assert.NoError(t, ValidateAgainstDue(55000, f))
	assert.ErrorIs(t, ValidateAgainstDue(55001, f), ErrExceedsDue)
	assert.ErrorIs(t, ValidateAgainstDue(0, f), ErrInvalidAmount)
	assert.ErrorIs(t, ValidateAgainstDue(1, Fees{Total: 100, Paid: 100}), ErrExceedsDue)
}

func TestMethodValid(t *testing.T) {
	assert.True(t, MethodOnline.Valid())
	assert.True(t, MethodManual.Valid())
	assert.False(t, Method("cash").Valid())
}
