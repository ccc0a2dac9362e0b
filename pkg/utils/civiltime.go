package utils

import (
	"fmt"
	"strings"
	"time"
)

// CivilTimeLayout is the datetime format accepted by administrative
// commands, interpreted in the bot's configured fixed zone.
const CivilTimeLayout = "2006-01-02 15:04"

// ParseCivilTime parses a "YYYY-MM-DD HH:MM" string in the given zone.
func ParseCivilTime(s string, loc *time.Location) (time.Time, error) {
	ts, err := time.ParseInLocation(CivilTimeLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid datetime %q, expected YYYY-MM-DD HH:MM", s)
	}
	return ts, nil
}

// FormatCivilTime renders a timestamp in the given zone using CivilTimeLayout.
func FormatCivilTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(CivilTimeLayout)
}

// ToDiscordTimestamp converts epoch milliseconds to Discord's inline
// timestamp markup. Style is one of t, T, d, D, f, F, R.
func ToDiscordTimestamp(ms int64, style byte) string {
	return fmt.Sprintf("<t:%d:%c>", ms/1000, style)
}
