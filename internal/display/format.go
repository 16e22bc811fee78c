package display

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatBytes returns a human-readable IEC size ("512 B", "1.5 KiB", "25 MiB").
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatBitrateLabel returns a short label for an audio bitrate in kbps.
func FormatBitrateLabel(kbps int) string {
	return fmt.Sprintf("%d kbps", kbps)
}

// FormatElapsed rounds d for log lines: milliseconds below a second,
// tenths of a second above.
func FormatElapsed(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
