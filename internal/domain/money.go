package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// KoboPerNaira is the number of minor units in one naira. All amounts in the
// ledger are int64 kobo.
const KoboPerNaira = 100

var ErrInvalidAmount = errors.New("invalid amount")

// FormatKobo renders an amount as naira with two decimals, e.g. "1500.25".
func FormatKobo(kobo int64) string {
	sign := ""
	if kobo < 0 {
		sign = "-"
		kobo = -kobo
	}
	return fmt.Sprintf("%s%d.%02d", sign, kobo/KoboPerNaira, kobo%KoboPerNaira)
}

// ParseNaira parses a non-negative decimal naira string ("500", "12.5",
// "12.50") into kobo. Signs and more than two decimal places are rejected.
func ParseNaira(s string) (int64, error) {
	s = strings.TrimSpace(s)
	whole, frac, hasFrac := strings.Cut(s, ".")
	if s == "" || !digits(whole) || !digits(frac) || (hasFrac && (len(frac) == 0 || len(frac) > 2)) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if whole == "" {
		whole = "0"
	}
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || n > (1<<63-1)/KoboPerNaira-1 {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidAmount, s)
	}
	kobo := n * KoboPerNaira
	switch len(frac) {
	case 1:
		kobo += int64(frac[0]-'0') * 10
	case 2:
		kobo += int64(frac[0]-'0')*10 + int64(frac[1]-'0')
	}
	return kobo, nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ApplyBPS returns amount * bps / 10000 rounded down.
func ApplyBPS(amount, bps int64) int64 {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	// Split to keep the multiplication inside int64 for large amounts.
	return (amount/10000)*bps + (amount%10000)*bps/10000
}
