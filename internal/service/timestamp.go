package service

import (
	"strings"
	"time"
)

const (
	// UnknownDate replaces an empty timestamp.
	UnknownDate = "Unknown date"
	// DateNotAvailable replaces a timestamp that captured page script.
	DateNotAvailable = "Date not available"
)

const displayLayout = "2006-01-02 15:04"

// isoLayouts are tried in order; the second covers offsets without seconds.
var isoLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04Z07:00"}

var scriptMarkers = []string{"function", "var loc", "<script", "document.write"}

// CleanTimestamp normalizes a scraped post date for display. ISO-8601
// values with a UTC offset are shown as "YYYY-MM-DD HH:MM" in their own
// offset; anything unrecognized is returned unchanged.
func CleanTimestamp(ts string) string {
	if strings.TrimSpace(ts) == "" {
		return UnknownDate
	}
	for _, m := range scriptMarkers {
		if strings.Contains(ts, m) {
			return DateNotAvailable
		}
	}
	if strings.Contains(ts, "T") {
		for _, layout := range isoLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(ts)); err == nil {
				return t.Format(displayLayout)
			}
		}
	}
	return ts
}
