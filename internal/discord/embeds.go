package discord

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"voicetimer/internal/models"
	"voicetimer/pkg/utils"
)

const (
	rankingPageSize = 10

	// embedDescriptionLimit is Discord's cap on embed description length.
	embedDescriptionLimit = 4096
)

type rankingEntry struct {
	UserID  string
	TotalMs int64
}

// rankingEntries loads one ranking page and adjusts each total with the
// user's live session, re-sorting afterwards so in-call users rank by
// what they would have if they left right now. The adjustment is
// page-local: ordering across page boundaries, and users whose only
// time is a still-open session, settle once those sessions flush.
func (b *Bot) rankingEntries(guildID string, limit, offset int) ([]rankingEntry, error) {
	rows, err := b.repository.GetRanking(guildID, limit, offset)
	if err != nil {
		return nil, err
	}

	entries := make([]rankingEntry, 0, len(rows))
	for _, row := range rows {
		total := row.TotalTimeMs
		if elapsed, live := b.tracker.Elapsed(guildID, row.UserID); live {
			total += elapsed.Milliseconds()
		}
		entries = append(entries, rankingEntry{UserID: row.UserID, TotalMs: total})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].TotalMs > entries[j].TotalMs })
	return entries, nil
}

func formatRankingLines(entries []rankingEntry, offset int) string {
	lines := make([]string, 0, len(entries))
	for i, entry := range entries {
		lines = append(lines, utils.FormatLeaderboardEntry(
			offset+i+1,
			utils.FormatUserMention(entry.UserID),
			utils.FormatDuration(entry.TotalMs)))
	}
	return strings.Join(lines, "\n")
}

// rankingPage renders one page of the guild ranking with pagination
// buttons. Returns a nil embed when the guild has no recorded time.
func (b *Bot) rankingPage(guildID, guildName string, page int) (*discordgo.MessageEmbed, []discordgo.MessageComponent, error) {
	count, err := b.repository.GetRankingCount(guildID)
	if err != nil {
		return nil, nil, err
	}
	if count == 0 {
		return nil, nil, nil
	}

	totalPages := (count + rankingPageSize - 1) / rankingPageSize
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	offset := (page - 1) * rankingPageSize

	entries, err := b.rankingEntries(guildID, rankingPageSize, offset)
	if err != nil {
		return nil, nil, err
	}

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🏆 %s voice time ranking", guildName),
		Description: formatRankingLines(entries, offset),
		Color:       0xFFD700,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Page %d/%d | %d users tracked", page, totalPages, count),
		},
	}

	var buttons []discordgo.MessageComponent
	if page > 1 {
		buttons = append(buttons, discordgo.Button{
			Label:    "Previous",
			Style:    discordgo.PrimaryButton,
			CustomID: rankingCustomID(guildID, page-1),
		})
	}
	if page < totalPages {
		buttons = append(buttons, discordgo.Button{
			Label:    "Next",
			Style:    discordgo.PrimaryButton,
			CustomID: rankingCustomID(guildID, page+1),
		})
	}

	var components []discordgo.MessageComponent
	if len(buttons) > 0 {
		components = []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
	}
	return embed, components, nil
}

func rankingCustomID(guildID string, page int) string {
	return fmt.Sprintf("ranking:%s:%d", guildID, page)
}

func parseRankingCustomID(customID string) (guildID string, page int, ok bool) {
	parts := strings.Split(customID, ":")
	if len(parts) != 3 || parts[0] != "ranking" {
		return "", 0, false
	}
	page, err := strconv.Atoi(parts[2])
	if err != nil || page < 1 {
		return "", 0, false
	}
	return parts[1], page, true
}

func scheduleListDescription(schedules []models.ScheduledReset, nowMs int64) string {
	lines := make([]string, 0, len(schedules))
	for _, s := range schedules {
		status := "waiting to run"
		if remaining := s.NextExecutionAt - nowMs; remaining > 0 {
			status = utils.FormatHoursMinutes(remaining) + " remaining"
		}
		lines = append(lines, fmt.Sprintf(
			"**ID:** `%s`\n**Fires:** %s\n**Recurrence:** %s\n**Status:** %s\n**Executions:** %d\n",
			s.ID, utils.ToDiscordTimestamp(s.NextExecutionAt, 'F'), s.Recurrence, status, s.ExecutionCount))
	}
	return utils.TruncateString(strings.Join(lines, "\n"), embedDescriptionLimit)
}
