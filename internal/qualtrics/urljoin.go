package qualtrics

import "strings"

// URLJoin joins URL fragments with single slashes. A fragment carrying a
// scheme discards everything accumulated before it, so an absolute nextPage
// URL overrides the configured base.
func URLJoin(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, "/")
		if strings.Contains(part, "://") {
			cleaned = cleaned[:0]
		}
		cleaned = append(cleaned, part)
	}
	return strings.Join(cleaned, "/")
}
