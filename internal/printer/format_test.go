package printer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatBytes(t *testing.T) {
	tests := map[string]struct {
		bytes int64
		exp   string
	}{
		"No output":               {bytes: 0, exp: "0 B"},
		"Negative sizes are zero": {bytes: -10, exp: "0 B"},
		"Bytes":                   {bytes: 512, exp: "512 B"},
		"Kibibytes":               {bytes: 2048, exp: "2.0 KiB"},
		"Mebibytes":               {bytes: 1536 * 1024, exp: "1.5 MiB"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, FormatBytes(test.bytes))
		})
	}
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		t   time.Time
		exp string
	}{
		"Future":  {t: now.Add(time.Minute), exp: "1 minute from now"},
		"Now":     {t: now, exp: "now"},
		"Seconds": {t: now.Add(-42 * time.Second), exp: "42 seconds ago"},
		"Minutes": {t: now.Add(-3*time.Minute - 10*time.Second), exp: "3 minutes ago"},
		"Hours":   {t: now.Add(-5 * time.Hour), exp: "5 hours ago"},
		"Days":    {t: now.Add(-50 * time.Hour), exp: "2 days ago"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, timeAgo(now, test.t))
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("-", FormatTimestamp(time.Time{}))
	ts := time.Date(2026, 3, 1, 11, 0, 0, 0, time.FixedZone("CET", 3600))
	assert.Equal("2026-03-01 10:00:00 UTC", FormatTimestamp(ts))
}
