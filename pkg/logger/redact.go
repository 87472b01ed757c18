package logger

import (
	"strings"
	"unicode/utf8"
)

// RedactEmail keeps the first two runes of the local part and the domain,
// e.g. "alice@x.com" becomes "al****@x.com". Malformed or very short
// addresses are returned unchanged.
func RedactEmail(s string) string {
	s = strings.TrimSpace(s)
	at := strings.LastIndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return s
	}

	local, domain := s[:at], s[at+1:]
	if utf8.RuneCountInString(local) < 3 {
		return s
	}

	offset := 0
	for i := 0; i < 2; i++ {
		_, size := utf8.DecodeRuneInString(local[offset:])
		offset += size
	}
	return local[:offset] + "****@" + domain
}
