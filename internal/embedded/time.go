package embedded

import "time"

// timeLayout is the wire format for all timestamp columns: RFC3339 with
// nanosecond precision, sortable as text and portable across the
// embedded engine and shard files alike.
const timeLayout = time.RFC3339Nano

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}
