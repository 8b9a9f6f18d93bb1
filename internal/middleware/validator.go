package middleware

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// Input validation and sanitization utilities

// ValidateContentType accepts an absent Content-Type, application/json and
// any +json media type
func ValidateContentType(header string) error {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return fmt.Errorf("invalid Content-Type: %w", err)
	}
	if mt == "application/json" || strings.HasSuffix(mt, "+json") {
		return nil
	}
	return fmt.Errorf("unsupported Content-Type %q (want application/json)", mt)
}

// ValidateWorkingFile checks the working file name stays inside the work dir
func ValidateWorkingFile(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("working file name cannot be empty")
	}
	if filepath.IsAbs(name) {
		return fmt.Errorf("working file must be relative to the work dir")
	}
	cleaned := filepath.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path traversal detected")
	}
	dangerous := []string{"$(", "`", "&", "|", ";", "\n", "\r", "\x00"}
	for _, d := range dangerous {
		if strings.Contains(name, d) {
			return fmt.Errorf("invalid characters in working file name")
		}
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// Truncate caps s at n bytes without splitting a rune
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
