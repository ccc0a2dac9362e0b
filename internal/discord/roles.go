package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"voicetimer/internal/models"
	"voicetimer/pkg/utils"
)

// HasRole reports whether the member currently holds the role. Checks
// the session cache first and falls back to a REST lookup.
func (b *Bot) HasRole(guildID, userID, roleID string) (bool, error) {
	member, err := b.session.State.Member(guildID, userID)
	if err != nil {
		member, err = b.session.GuildMember(guildID, userID)
		if err != nil {
			return false, fmt.Errorf("failed to fetch member %s: %w", userID, err)
		}
	}
	for _, id := range member.Roles {
		if id == roleID {
			return true, nil
		}
	}
	return false, nil
}

// GrantRole adds a role to a member, paced by the shared limiter and
// bounded by the caller's context.
func (b *Bot) GrantRole(ctx context.Context, guildID, userID, roleID string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	return b.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx))
}

// RevokeRole removes a role from a member, paced and bounded like GrantRole.
func (b *Bot) RevokeRole(ctx context.Context, guildID, userID, roleID string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	return b.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx))
}

// AFKChannelID returns the guild-level AFK channel, treated as always
// idle alongside the admin-configured set.
func (b *Bot) AFKChannelID(guildID string) string {
	guild, err := b.session.State.Guild(guildID)
	if err != nil || guild == nil {
		return ""
	}
	return guild.AfkChannelID
}

// NotifyReward DMs the user about a newly earned tier role. Best
// effort: users with closed DMs are skipped silently.
func (b *Bot) NotifyReward(guildID, userID string, tier models.RewardTier, totalMs int64) {
	guildName := guildID
	if guild, err := b.session.State.Guild(guildID); err == nil {
		guildName = guild.Name
	}

	channel, err := b.session.UserChannelCreate(userID)
	if err != nil {
		b.log.Debug().Err(err).Str("user", userID).Msg("could not open DM channel")
		return
	}

	embed := &discordgo.MessageEmbed{
		Title:       "🎉 Role reward earned!",
		Description: "Your accumulated voice time unlocked a new role.",
		Color:       0x00AE86,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Role", Value: tier.RoleName, Inline: true},
			{Name: "Required", Value: fmt.Sprintf("%d hours", tier.Hours), Inline: true},
			{Name: "Server", Value: guildName, Inline: true},
			{Name: "Total voice time", Value: utils.FormatDuration(totalMs), Inline: false},
		},
	}

	if _, err := b.session.ChannelMessageSendEmbed(channel.ID, embed); err != nil {
		b.log.Debug().Err(err).Str("user", userID).Msg("could not deliver reward DM")
	}
}
