package summary

import (
	"fmt"
	"strings"
)

// FormatInt formats an integer with comma separators.
func FormatInt(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	s := fmt.Sprintf("%d", n)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatAmount formats a currency amount with comma separators and two
// decimals, e.g. "-12,345.68".
func FormatAmount(v float64) string {
	s := fmt.Sprintf("%.2f", Round2(v))
	whole, frac, _ := strings.Cut(s, ".")
	neg := strings.HasPrefix(whole, "-")
	whole = strings.TrimPrefix(whole, "-")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	start := len(whole) % 3
	if start > 0 {
		b.WriteString(whole[:start])
	}
	for i := start; i < len(whole); i += 3 {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(whole[i : i+3])
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

// FormatPct formats a percentage value as "X.XX%".
func FormatPct(p float64) string {
	return fmt.Sprintf("%.2f%%", Round2(p))
}
