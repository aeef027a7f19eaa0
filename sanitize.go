package filepulse

import (
	"fmt"
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	// MaxDisplayNameLength is the byte limit of a sanitized filename.
	MaxDisplayNameLength = 255
	// DefaultDisplayName replaces an empty filename.
	DefaultDisplayName = "unnamed_file"

	maxRawFilenameLength  = 4096
	reservedFilenameRunes = `<>:"/\|?*`
)

var markupPolicy = bluemonday.StrictPolicy()

// SanitizeFilename turns a client supplied filename into a display name
// that is safe to store, render and send back in a Content-Disposition
// header. It strips markup, directory components, control and reserved
// characters, collapses whitespace and caps the length while keeping the
// extension. An empty name becomes DefaultDisplayName; a name that is not
// valid UTF-8 or sanitizes to nothing is rejected with ErrInvalidName.
func SanitizeFilename(name string) (string, error) {
	if !utf8.ValidString(name) {
		return "", fmt.Errorf("sanitize filename: %w: not valid utf-8", ErrInvalidName)
	}
	if len(name) > maxRawFilenameLength {
		return "", fmt.Errorf("sanitize filename: %w: too long", ErrInvalidName)
	}
	if strings.TrimSpace(name) == "" {
		return DefaultDisplayName, nil
	}

	s := html.UnescapeString(markupPolicy.Sanitize(name))

	if i := strings.LastIndexAny(s, `/\`); i >= 0 {
		s = s[i+1:]
	}

	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(reservedFilenameRunes, r) {
			return -1
		}
		return r
	}, s)

	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, ". -")
	s = truncateFilename(s, MaxDisplayNameLength)

	if s == "" {
		return "", fmt.Errorf("sanitize filename %q: %w", name, ErrInvalidName)
	}

	return s, nil
}

// truncateFilename caps s at limit bytes, keeping the extension when the
// name has one that fits.
func truncateFilename(s string, limit int) string {
	if len(s) <= limit {
		return s
	}

	dot := strings.LastIndexByte(s, '.')
	if dot > 0 && len(s)-dot < limit {
		ext := s[dot:]
		return truncateUTF8(s[:dot], limit-len(ext)) + ext
	}

	return truncateUTF8(s, limit)
}

func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
