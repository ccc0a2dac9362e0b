package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCivilTime(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)

	ts, err := ParseCivilTime("2025-08-10 15:30", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 8, 10, 15, 30, 0, 0, loc).UnixMilli(), ts.UnixMilli())

	// surrounding whitespace is tolerated
	ts, err = ParseCivilTime("  2025-08-10 15:30 ", loc)
	require.NoError(t, err)
	assert.Equal(t, 15, ts.Hour())
}

func TestParseCivilTimeRejectsBadInput(t *testing.T) {
	for _, input := range []string{"", "tomorrow", "2025-08-10", "15:30", "2025-13-40 99:99"} {
		_, err := ParseCivilTime(input, time.UTC)
		assert.Error(t, err, "input %q", input)
	}
}

func TestFormatCivilTimeRoundTrip(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	ts, err := ParseCivilTime("2025-08-10 15:30", loc)
	require.NoError(t, err)
	assert.Equal(t, "2025-08-10 15:30", FormatCivilTime(ts, loc))
}

func TestToDiscordTimestamp(t *testing.T) {
	assert.Equal(t, "<t:1754838600:F>", ToDiscordTimestamp(1754838600000, 'F'))
	assert.Equal(t, "<t:1754838600:R>", ToDiscordTimestamp(1754838600123, 'R'))
}
