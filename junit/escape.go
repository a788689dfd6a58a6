package junit

import (
	"strings"
	"unicode/utf8"
)

// SanitizeText removes characters that are not allowed in XML 1.0 documents,
// as they commonly show up in stack traces and terminal output. Markup
// characters are left alone; they are escaped when the report is written.
func SanitizeText(s string) string {
	valid := true
	for _, r := range s {
		if !isXMLChar(r) {
			valid = false
			break
		}
	}
	if valid && utf8.ValidString(s) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == utf8.RuneError || !isXMLChar(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isXMLChar reports whether r is in the XML 1.0 Char production, minus the
// discouraged C1 control range (NEL is kept).
func isXMLChar(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return true
	case r < 0x20:
		return false
	case r >= 0x7f && r <= 0x9f:
		return r == 0x85
	case r >= 0xd800 && r <= 0xdfff:
		return false
	case r >= 0xfdd0 && r <= 0xfdef:
		return false
	case r == 0xfffe || r == 0xffff:
		return false
	}
	return r <= 0x10ffff
}
