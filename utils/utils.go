// utils.go — low-level helpers shared by option parsing and diagnostics.
package utils

import "unsafe"

///////////////////////////////////////////////////////////////////////////////
// Conversion Utilities — Zero-Alloc Casts
///////////////////////////////////////////////////////////////////////////////

// B2s converts a []byte to a string **without** allocation.
// ⚠️ Caller must ensure the input slice remains valid and unchanged.
//
//go:nosplit
func B2s(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

///////////////////////////////////////////////////////////////////////////////
// Decimal Formatting — For Diagnostic Lines Without fmt
///////////////////////////////////////////////////////////////////////////////

// Utoa renders an unsigned integer in decimal.
//
//go:nosplit
func Utoa(u uint64) string {
	if u == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for u > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	return string(buf[i:])
}

// Itoa renders a signed integer in decimal.
//
//go:nosplit
func Itoa(n int) string {
	if n < 0 {
		return "-" + Utoa(uint64(-n))
	}
	return Utoa(uint64(n))
}

///////////////////////////////////////////////////////////////////////////////
// Decimal Parsing — Early Exit, No strconv on the Init Path
///////////////////////////////////////////////////////////////////////////////

// ParseDecU64 parses an ASCII decimal string. ok is false on empty input,
// any non-digit byte, or overflow.
//
//go:nosplit
func ParseDecU64(s string) (v uint64, ok bool) {
	if len(s) == 0 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		d := uint64(c - '0')
		if v > (^uint64(0)-d)/10 {
			return 0, false
		}
		v = v*10 + d
	}
	return v, true
}
