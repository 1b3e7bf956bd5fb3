package printer

import (
	"time"

	"github.com/dustin/go-humanize"
)

// FormatBytes returns a human-readable size of the captured agent output,
// e.g. "512 B", "2.0 KiB" or "1.5 MiB".
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// TimeAgo returns the relative time of history and checkpoint timestamps,
// e.g. "now", "42 seconds ago" or "2 days ago".
func TimeAgo(t time.Time) string {
	return timeAgo(time.Now(), t)
}

func timeAgo(now, t time.Time) string {
	return humanize.RelTime(t, now, "ago", "from now")
}

// FormatTimestamp returns the timestamp in UTC, e.g. "2026-03-01 10:00:00 UTC".
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}
