package utils

import "fmt"

// FormatDuration formats a millisecond interval into H:MM:SS format
func FormatDuration(ms int64) string {
	totalSeconds := ms / 1000
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

// FormatHoursMinutes formats a millisecond interval as "Xh Ym"
func FormatHoursMinutes(ms int64) string {
	totalMinutes := ms / 60000
	return fmt.Sprintf("%dh %dm", totalMinutes/60, totalMinutes%60)
}
