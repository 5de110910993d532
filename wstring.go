package acsp

import (
	"encoding/binary"
	"unicode/utf16"
	"unicode/utf8"
)

// Wire strings are prefixed by a single byte holding the number of
// characters, never the number of bytes. Narrow strings use one byte per
// character (latin-1), wide strings use 4 bytes per character: an UTF-16LE
// code unit followed by two zero bytes.

func narrowChars(s string) []byte {
	res := make([]byte, 0, len(s))
	for _, r := range s {
		if len(res) == MaxStringLen {
			break
		}
		if r > 0xff {
			r = '?'
		}
		res = append(res, byte(r))
	}
	return res
}

func wideChars(s string) []uint16 {
	units := utf16.Encode([]rune(s))
	if len(units) > MaxStringLen {
		units = units[:MaxStringLen]
		// do not leave half a surrogate pair behind
		if utf16.IsSurrogate(rune(units[MaxStringLen-1])) && units[MaxStringLen-1] < 0xdc00 {
			units = units[:MaxStringLen-1]
		}
	}
	return units
}

// appendNarrow appends the narrow encoding of s to buf.
func appendNarrow(buf []byte, s string) []byte {
	c := narrowChars(s)
	buf = append(buf, byte(len(c)))
	return append(buf, c...)
}

// appendWide appends the wide encoding of s to buf.
func appendWide(buf []byte, s string) []byte {
	units := wideChars(s)
	buf = append(buf, byte(len(units)))
	for _, u := range units {
		buf = binary.LittleEndian.AppendUint16(buf, u)
		buf = append(buf, 0, 0)
	}
	return buf
}

// wideLen returns the number of bytes appendWide will produce for s.
func wideLen(s string) int {
	return 1 + len(wideChars(s))*4
}

func decodeNarrow(b []byte) string {
	if isASCII(b) {
		return string(b)
	}
	res := make([]byte, 0, len(b)*2)
	for _, c := range b {
		res = utf8.AppendRune(res, rune(c))
	}
	return string(res)
}

func decodeWide(b []byte) string {
	units := make([]uint16, len(b)/4)
	for i := range units {
		// upper half of each slot is padding
		units[i] = binary.LittleEndian.Uint16(b[i*4:])
	}
	return string(utf16.Decode(units))
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
