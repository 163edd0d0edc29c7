package webhandlers

import "strings"

// urlDecode percent-decodes %HH sequences and converts '+' to space,
// passing other bytes through verbatim, per spec §4.4 step 1.
func urlDecode(encoded string) string {
	var out strings.Builder
	out.Grow(len(encoded))

	for i := 0; i < len(encoded); i++ {
		switch c := encoded[i]; {
		case c == '%' && i+2 < len(encoded):
			hi, okHi := hexDigit(encoded[i+1])
			lo, okLo := hexDigit(encoded[i+2])
			if okHi && okLo {
				out.WriteByte(byte(hi<<4 | lo))
				i += 2
			} else {
				out.WriteByte(c)
			}
		case c == '+':
			out.WriteByte(' ')
		default:
			out.WriteByte(c)
		}
	}

	return out.String()
}

func hexDigit(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	default:
		return 0, false
	}
}
