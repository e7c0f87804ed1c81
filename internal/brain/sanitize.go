package brain

import (
	"regexp"
	"strings"
)

// framingPattern matches a conversational opener on the first line of a draft, such as
// "Sure! Here is the contract:" or "بالتأكيد، إليك العقد:".
var framingPattern = regexp.MustCompile(`(?i)^\s*(?:(?:sure|certainly|of course|absolutely|here is|here's|below is)\b|بالتأكيد|بالطبع|إليك|فيما يلي)[^\n]{0,120}[:!]\s*$`)

// closingPattern matches a trailing offer of further help.
var closingPattern = regexp.MustCompile(`(?i)^\s*(?:(?:let me know|i hope this helps|feel free to|if you need any)\b|هل تحتاج|لا تتردد)[^\n]*$`)

// SanitizeDraft strips conversational framing so only the document body remains.
// Returns the cleaned content and the number of lines removed.
func SanitizeDraft(content string) (string, int) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	removed := 0

	if len(lines) > 1 && framingPattern.MatchString(lines[0]) {
		lines = lines[1:]
		removed++
	}
	if len(lines) > 1 && closingPattern.MatchString(lines[len(lines)-1]) {
		lines = lines[:len(lines)-1]
		removed++
	}

	if removed == 0 {
		return strings.TrimSpace(content), 0
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), removed
}
