package validators

import (
	"strings"
	"unicode"
)

// FreeText trims a customer-supplied note or reason, drops control characters
// other than newlines, and cuts it to maxRunes without splitting a character.
func FreeText(input string, maxRunes int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r != '\n' && unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))

	if maxRunes <= 0 {
		return cleaned
	}
	runes := []rune(cleaned)
	if len(runes) <= maxRunes {
		return cleaned
	}
	return strings.TrimSpace(string(runes[:maxRunes]))
}
