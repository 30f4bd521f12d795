package store

import "time"

// Dates are persisted as YYYY-MM-DD text, timestamps as RFC3339 text. Both
// sort lexicographically in chronological order, which is what the
// trade_date/timestamp range indexes rely on.

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
