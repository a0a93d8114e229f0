package transcript

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// RepairUTF8 undoes a common transport mix-up where UTF-8 bytes were decoded
// one byte per character (Latin-1), e.g. "Ã¼" for "ü".
//
// The text is re-encoded as Latin-1 and the bytes are re-read as UTF-8. If the
// text holds characters outside Latin-1 or the bytes are not valid UTF-8, the
// text was not mangled and is returned unchanged.
func RepairUTF8(s string) string {
	if isASCII(s) {
		return s
	}
	raw, err := charmap.ISO8859_1.NewEncoder().String(s)
	if err != nil || !utf8.ValidString(raw) {
		return s
	}
	return raw
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
