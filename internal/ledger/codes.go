package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// CodeSeries describes one human-readable identifier sequence, for example
// EXC25001 (prefix EXC25, pad 3) or TCH7 (prefix TCH, no padding).
type CodeSeries struct {
	Name   string
	Prefix string
	Pad    int
}

// FormatCode renders n with the prefix, zero-padded to pad digits. Numbers
// wider than pad are never truncated.
func FormatCode(prefix string, n int64, pad int) string {
	if pad <= 0 {
		return prefix + strconv.FormatInt(n, 10)
	}
	return fmt.Sprintf("%s%0*d", prefix, pad, n)
}

// ParseCode returns the numeric suffix of code.
func ParseCode(prefix, code string) (int64, error) {
	if !strings.HasPrefix(code, prefix) {
		return 0, fmt.Errorf("code %q does not start with %q", code, prefix)
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(code, prefix), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("code %q has no numeric suffix", code)
	}
	return n, nil
}

// HighestCode returns the largest suffix among codes with the given prefix,
// ignoring anything unparsable. It is used to seed a counter from legacy
// records and returns 0 when nothing matches.
func HighestCode(prefix string, codes []string) int64 {
	var max int64
	for _, c := range codes {
		if n, err := ParseCode(prefix, c); err == nil && n > max {
			max = n
		}
	}
	return max
}
