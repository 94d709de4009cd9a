package dossier

import (
	"regexp"
	"strings"
)

// Attachment filenames arrive attacker-controlled; everything outside a
// conservative allowlist (latin and cyrillic letters, digits, dot, dash,
// underscore) becomes an underscore.
var (
	unsafeChars    = regexp.MustCompile(`[^0-9A-Za-z_.\-\x{0400}-\x{04FF}]`)
	underscoreRuns = regexp.MustCompile(`_+`)
)

// SanitizeFilename makes a declared filename safe for the local
// filesystem. The result is stable under repeated application.
func SanitizeFilename(name string) string {
	if name == "" {
		return "sanitized_attachment"
	}

	s := unsafeChars.ReplaceAllString(name, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	if strings.HasPrefix(s, ".") {
		s = "_" + s
	}
	if s == "" {
		return "sanitized_attachment"
	}
	return s
}
