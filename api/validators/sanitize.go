package validators

import (
	"strings"
	"unicode"
)

// SanitizeString drops control characters, collapses runs of whitespace and
// caps the result at maxLen runes. maxLen <= 0 means no cap.
func SanitizeString(input string, maxLen int) string {
	fields := strings.FieldsFunc(input, unicode.IsSpace)
	var b strings.Builder
	runes := 0
	for i, field := range fields {
		if i > 0 {
			if maxLen > 0 && runes >= maxLen {
				break
			}
			b.WriteByte(' ')
			runes++
		}
		for _, r := range field {
			if unicode.IsControl(r) {
				continue
			}
			if maxLen > 0 && runes >= maxLen {
				break
			}
			b.WriteRune(r)
			runes++
		}
	}
	return strings.TrimSpace(b.String())
}
