package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

type resetSummary struct {
	revoked int
	failed  int
	rebased int
}

// PerformReset implements the scheduler's reset side effects. The error
// covers persistence failure and guild unavailability only; per-member
// role revocation failures are counted and logged, never fatal.
func (b *Bot) PerformReset(guildID string) error {
	_, err := b.performReset(guildID)
	return err
}

func (b *Bot) performReset(guildID string) (resetSummary, error) {
	var summary resetSummary

	guild, err := b.session.State.Guild(guildID)
	if err != nil {
		return summary, fmt.Errorf("guild %s unavailable: %w", guildID, err)
	}

	// Snapshot the outgoing ranking before anything is zeroed.
	b.postFinalRanking(guild)

	summary.revoked, summary.failed = b.revokeTierRoles(guild)

	// Counter zeroing, history clearing, and live-session rebasing run
	// as one critical section per guild inside the tracker.
	summary.rebased, err = b.tracker.ResetGuild(guildID, func() error {
		return b.repository.ResetGuildData(guildID)
	})
	if err != nil {
		return summary, err
	}

	b.log.Info().Str("guild", guildID).
		Int("roles_revoked", summary.revoked).Int("revoke_failures", summary.failed).
		Int("sessions_rebased", summary.rebased).Msg("reset complete")
	return summary, nil
}

// revokeTierRoles strips every rewarded role from every member, best
// effort. Returns revoked and failed counts for the summary reply.
func (b *Bot) revokeTierRoles(guild *discordgo.Guild) (revoked, failed int) {
	tiers, err := b.repository.GetRewardTiers(guild.ID)
	if err != nil {
		b.log.Error().Err(err).Str("guild", guild.ID).Msg("failed to load tiers for revocation")
		return 0, 0
	}
	if len(tiers) == 0 {
		return 0, 0
	}

	rewarded := make(map[string]struct{}, len(tiers))
	for _, tier := range tiers {
		rewarded[tier.RoleID] = struct{}{}
	}

	members := guild.Members
	if len(members) == 0 {
		members = b.fetchMembers(guild.ID)
	}

	for _, member := range members {
		if member.User == nil || member.User.Bot {
			continue
		}
		for _, roleID := range member.Roles {
			if _, ok := rewarded[roleID]; !ok {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), roleCallTimeout)
			err := b.RevokeRole(ctx, guild.ID, member.User.ID, roleID)
			cancel()
			if err != nil {
				failed++
				b.log.Warn().Err(err).Str("guild", guild.ID).
					Str("user", member.User.ID).Str("role", roleID).Msg("failed to revoke tier role")
				continue
			}
			revoked++
		}
	}
	return revoked, failed
}

// fetchMembers pages the full member list when the cache is empty.
func (b *Bot) fetchMembers(guildID string) []*discordgo.Member {
	var all []*discordgo.Member
	after := ""
	for {
		page, err := b.session.GuildMembers(guildID, after, 1000)
		if err != nil {
			b.log.Warn().Err(err).Str("guild", guildID).Msg("failed to page guild members")
			return all
		}
		all = append(all, page...)
		if len(page) < 1000 {
			return all
		}
		after = page[len(page)-1].User.ID
	}
}

// postFinalRanking posts the pre-reset ranking to the configured
// channel, if enabled. Best effort.
func (b *Bot) postFinalRanking(guild *discordgo.Guild) {
	settings, err := b.repository.GetRankingSettings(guild.ID)
	if err != nil {
		b.log.Warn().Err(err).Str("guild", guild.ID).Msg("failed to load ranking settings")
		return
	}
	if !settings.ShowOnReset || settings.ChannelID == "" {
		return
	}

	entries, err := b.rankingEntries(guild.ID, settings.TopCount, 0)
	if err != nil || len(entries) == 0 {
		return
	}

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🏆 %s — final ranking before reset", guild.Name),
		Description: formatRankingLines(entries, 0),
		Color:       0xFFD700,
	}
	if _, err := b.session.ChannelMessageSendEmbed(settings.ChannelID, embed); err != nil {
		b.log.Warn().Err(err).Str("guild", guild.ID).Msg("failed to post final ranking")
	}
}
