package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// GetStrOr returns value if it is not empty, else defaultValue.
func GetStrOr(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

// GetDurationOr returns timeout if it is positive, else defaultValue, so an
// unset (zero) duration falls back to the default.
func GetDurationOr(timeout, defaultValue time.Duration) time.Duration {
	if timeout <= 0 {
		return defaultValue
	}
	return timeout
}

// LogBannerMsg prints a boxed block of lines to the log, used to announce
// the start of a unit of work (a gallery download, an export run).
func LogBannerMsg(msgs []string, paddingLen int) {
	maxLen := 0
	for i := range msgs {
		if l := len(msgs[i]); l > maxLen {
			maxLen = l
		}
	}

	padding := strings.Repeat(" ", paddingLen)
	stem := strings.Repeat("─", maxLen+paddingLen*2)

	log.Info("╭" + stem + "╮")
	for _, line := range msgs {
		log.Info("│" + padding + line + strings.Repeat(" ", maxLen-len(line)) + padding + "│")
	}
	log.Info("╰" + stem + "╯")
}

// FormatByteRate renders a bytes-per-second value the way the download
// speed meter reports it to the GUI collaborator: B/s, KB/s or MB/s with two
// decimal digits.
func FormatByteRate(bytesPerSec float64) string {
	switch {
	case bytesPerSec >= 1024*1024:
		return fmt.Sprintf("%.2f MB/s", bytesPerSec/(1024*1024))
	case bytesPerSec >= 1024:
		return fmt.Sprintf("%.2f KB/s", bytesPerSec/1024)
	default:
		return fmt.Sprintf("%.2f B/s", bytesPerSec)
	}
}
