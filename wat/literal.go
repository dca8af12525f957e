package wat

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// WAT integer literals accept both the signed and unsigned range of the
// target width, so 0xFFFFFFFF and -1 denote the same i32 bit pattern.

func parseI32(s string) (int32, error) {
	neg, digits, err := splitSign(s)
	if err != nil {
		return 0, err
	}
	mag, err := parseMagnitude(digits)
	if err != nil {
		return 0, err
	}
	if neg {
		if mag > 1<<31 {
			return 0, fmt.Errorf("i32 constant %s out of range", s)
		}
		return int32(-int64(mag)), nil
	}
	if mag > math.MaxUint32 {
		return 0, fmt.Errorf("i32 constant %s out of range", s)
	}
	return int32(uint32(mag)), nil
}

func parseI64(s string) (int64, error) {
	neg, digits, err := splitSign(s)
	if err != nil {
		return 0, err
	}
	mag, err := parseMagnitude(digits)
	if err != nil {
		return 0, err
	}
	if neg {
		if mag > 1<<63 {
			return 0, fmt.Errorf("i64 constant %s out of range", s)
		}
		return -int64(mag - 1) - 1, nil
	}
	return int64(mag), nil
}

func parseU32(s string) (uint32, error) {
	neg, digits, err := splitSign(s)
	if err != nil || neg {
		return 0, fmt.Errorf("expected unsigned integer, got %q", s)
	}
	mag, err := parseMagnitude(digits)
	if err != nil || mag > math.MaxUint32 {
		return 0, fmt.Errorf("expected unsigned integer, got %q", s)
	}
	return uint32(mag), nil
}

func splitSign(s string) (neg bool, rest string, err error) {
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		rest = s[1:]
	case strings.HasPrefix(s, "+"):
		rest = s[1:]
	default:
		rest = s
	}
	if rest == "" {
		return false, "", fmt.Errorf("malformed integer %q", s)
	}
	return neg, rest, nil
}

func parseMagnitude(s string) (uint64, error) {
	s = strings.ReplaceAll(s, "_", "")
	if rest, ok := cutHexPrefix(s); ok {
		return strconv.ParseUint(rest, 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

// parseFloat handles decimal, hexadecimal (0x1.8p3) and the nan/inf forms.
func parseFloat(s string, bits int) (float64, error) {
	neg, rest, err := splitSign(s)
	if err != nil {
		return 0, err
	}
	sign := 1.0
	if neg {
		sign = -1
	}
	switch {
	case rest == "inf":
		return math.Inf(int(sign)), nil
	case rest == "nan" || strings.HasPrefix(rest, "nan:"):
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(rest, "_", ""), bits)
	if err != nil {
		return 0, fmt.Errorf("malformed float constant %q", s)
	}
	return sign * v, nil
}

func cutHexPrefix(s string) (string, bool) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:], true
	}
	return s, false
}
