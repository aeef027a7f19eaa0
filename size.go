package filepulse

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// sizeUnits maps accepted suffixes (lowercased) to their multiplier.
// Decimal-looking suffixes use binary multiples, so "100MB" is 100 MiB.
var sizeUnits = map[string]int64{
	"":    1,
	"b":   1,
	"k":   1 << 10,
	"kb":  1 << 10,
	"kib": 1 << 10,
	"m":   1 << 20,
	"mb":  1 << 20,
	"mib": 1 << 20,
	"g":   1 << 30,
	"gb":  1 << 30,
	"gib": 1 << 30,
	"t":   1 << 40,
	"tb":  1 << 40,
	"tib": 1 << 40,
}

// ParseSize converts a size such as "100MB", "2GB", "1.5g" or "1048576"
// into a byte count. Suffixes are case-insensitive and may be separated
// from the number by spaces. Unknown suffixes, negative values and
// overflowing values are errors.
func ParseSize(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("parse size: %w: empty value", ErrInvalidInput)
	}

	split := strings.IndexFunc(trimmed, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	numPart, unitPart := trimmed, ""
	if split >= 0 {
		numPart, unitPart = trimmed[:split], trimmed[split:]
	}

	unit := strings.ToLower(strings.TrimSpace(unitPart))
	multiplier, ok := sizeUnits[unit]
	if !ok {
		return 0, fmt.Errorf("parse size %q: %w: unknown unit %q", s, ErrInvalidInput, unitPart)
	}

	if numPart == "" {
		return 0, fmt.Errorf("parse size %q: %w: missing number", s, ErrInvalidInput)
	}

	if !strings.Contains(numPart, ".") {
		n, err := strconv.ParseInt(numPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse size %q: %w: %w", s, ErrInvalidInput, err)
		}
		if n > math.MaxInt64/multiplier {
			return 0, fmt.Errorf("parse size %q: %w: value overflows", s, ErrInvalidInput)
		}
		return n * multiplier, nil
	}

	f, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w: %w", s, ErrInvalidInput, err)
	}
	bytes := f * float64(multiplier)
	if bytes >= math.MaxInt64 {
		return 0, fmt.Errorf("parse size %q: %w: value overflows", s, ErrInvalidInput)
	}
	return int64(bytes), nil
}
