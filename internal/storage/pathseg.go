package storage

import (
	"strings"
)

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

const upperHex = "0123456789ABCDEF"

// SafePathSegment turns a segment or symbol into a file name component that
// is valid on every platform: bytes outside [A-Za-z0-9-_.~=] are
// percent-encoded, reserved device names are wrapped in underscores and
// trailing dots and spaces are trimmed. Existing data directories depend on
// this exact mapping.
func SafePathSegment(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&0x0f])
	}
	seg := b.String()
	if seg == "" {
		seg = "_"
	}
	if reservedNames[strings.ToUpper(seg)] {
		seg = "_" + seg + "_"
	}
	return strings.TrimRight(seg, " .")
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.' || c == '~' || c == '=':
		return true
	}
	return false
}
