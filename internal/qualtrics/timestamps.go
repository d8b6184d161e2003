package qualtrics

import (
	"log/slog"
	"time"
)

// Wire timestamp layouts. Qualtrics expects the simple form for link
// expiration dates and ISO everywhere else.
const (
	LayoutSimple       = "2006-01-02 15:04:05"
	LayoutISO          = "2006-01-02T15:04:05Z"
	layoutISOFractions = "2006-01-02T15:04:05.999999Z"
)

var parseLayouts = []string{LayoutSimple, layoutISOFractions, LayoutISO}

// ParseTime parses a Qualtrics timestamp. It returns nil when no known layout matches.
func ParseTime(value string) *time.Time {
	for _, layout := range parseLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return &t
		}
	}
	if value != "" {
		slog.Debug("unable to parse qualtrics timestamp", "value", value)
	}
	return nil
}

// FormatTime renders t in UTC, in ISO form when iso is true and in the simple form otherwise.
func FormatTime(t time.Time, iso bool) string {
	if iso {
		return t.UTC().Format(LayoutISO)
	}
	return t.UTC().Format(LayoutSimple)
}
