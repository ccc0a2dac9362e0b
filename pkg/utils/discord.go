package utils

import "fmt"

// FormatUserMention renders a user id as an inline mention.
func FormatUserMention(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}

// FormatChannelMention renders a channel id as an inline channel link.
func FormatChannelMention(channelID string) string {
	return fmt.Sprintf("<#%s>", channelID)
}

// FormatLeaderboardEntry renders one ranking line: medals for the top
// three ranks, a numeric prefix for the rest.
func FormatLeaderboardEntry(rank int, userMention, duration string) string {
	medal := ""
	switch rank {
	case 1:
		medal = "🥇"
	case 2:
		medal = "🥈"
	case 3:
		medal = "🥉"
	default:
		medal = fmt.Sprintf("%d.", rank)
	}
	return fmt.Sprintf("%s %s - %s", medal, userMention, duration)
}

// TruncateString caps s at maxLen bytes, marking the cut with an
// ellipsis. Embed descriptions reject anything past the platform cap.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
