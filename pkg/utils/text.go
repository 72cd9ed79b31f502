package utils

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var whitespace = regexp.MustCompile(`\s+`)

// CleanText collapses runs of whitespace and trims the result
func CleanText(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// TruncateText cuts text to at most maxLength bytes without splitting a rune
func TruncateText(text string, maxLength int) string {
	if maxLength <= 0 {
		return ""
	}
	if len(text) <= maxLength {
		return text
	}
	cut := maxLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// Snippet returns a window of roughly width bytes around the first
// case-insensitive occurrence of needle in text. When needle is absent the
// head of text is returned.
func Snippet(text, needle string, width int) string {
	text = CleanText(text)
	if width <= 0 || text == "" {
		return ""
	}
	idx := -1
	if needle != "" {
		idx = strings.Index(strings.ToLower(text), strings.ToLower(needle))
	}
	if idx < 0 || len(text) <= width {
		return TruncateText(text, width)
	}

	start := idx - (width-len(needle))/2
	if start < 0 {
		start = 0
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	return TruncateText(text[start:], width)
}

// SanitizeFilename removes invalid characters from a filename
func SanitizeFilename(filename string) string {
	invalid := regexp.MustCompile(`[<>:"/\\|?*]`)
	filename = invalid.ReplaceAllString(filename, "_")

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, filename)

	return TruncateText(cleaned, 255)
}
