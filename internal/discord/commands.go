package discord

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"voicetimer/internal/database"
	"voicetimer/internal/models"
	"voicetimer/pkg/utils"
)

var adminPermission int64 = discordgo.PermissionAdministrator

// registerCommands overwrites the application command set. When a guild
// id is configured commands register guild-scoped (instant propagation),
// otherwise globally.
func (b *Bot) registerCommands() error {
	commands := []*discordgo.ApplicationCommand{
		{
			Name:                     "role-reward",
			Description:              "Manage voice-time role rewards",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Add a role reward",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "hours", Description: "Required hours", Required: true},
						{Type: discordgo.ApplicationCommandOptionRole, Name: "role", Description: "Role to grant", Required: true},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "remove",
					Description: "Remove a role reward",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "hours", Description: "Hours of the tier to remove", Required: true},
					},
				},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "list", Description: "List role rewards"},
			},
		},
		{
			Name:                     "afk-channel",
			Description:              "Manage channels excluded from time tracking",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Exclude a voice channel",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionChannel, Name: "channel", Description: "Channel to exclude", Required: true},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "remove",
					Description: "Re-include a voice channel",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionChannel, Name: "channel", Description: "Channel to re-include", Required: true},
					},
				},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "list", Description: "List excluded channels"},
			},
		},
		{
			Name:        "ranking",
			Description: "Show the server voice time ranking",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "page", Description: "Page number (default 1)", MinValue: &one},
			},
		},
		{Name: "my-time", Description: "Show your voice time in this server"},
		{
			Name:                     "reset-time",
			Description:              "Reset all voice time in this server",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "confirm", Description: "Type \"confirm\" to proceed", Required: true},
			},
		},
		{
			Name:                     "schedule-reset",
			Description:              "Manage scheduled voice time resets",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "add",
					Description: "Schedule a reset",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "datetime", Description: "YYYY-MM-DD HH:MM (server timezone)", Required: true},
						{
							Type: discordgo.ApplicationCommandOptionString, Name: "recurrence", Description: "Repeat interval",
							Choices: []*discordgo.ApplicationCommandOptionChoice{
								{Name: "one-shot", Value: "none"},
								{Name: "daily", Value: "daily"},
								{Name: "weekly", Value: "weekly"},
								{Name: "monthly", Value: "monthly"},
							},
						},
					},
				},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "list", Description: "List scheduled resets"},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "cancel",
					Description: "Cancel a scheduled reset",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionString, Name: "id", Description: "Schedule id", Required: true},
					},
				},
			},
		},
		{
			Name:                     "ranking-channel",
			Description:              "Configure the final-ranking post on reset",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "set",
					Description: "Post the final ranking to a channel on reset",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionChannel, Name: "channel", Description: "Target text channel", Required: true},
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "top", Description: "How many entries to show (default 10)", MinValue: &one},
					},
				},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "off", Description: "Disable the final-ranking post"},
			},
		},
	}

	_, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, b.guildID, commands)
	return err
}

var one = float64(1)

func (b *Bot) interactionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" {
		return
	}

	// Interactions can block for seconds (a reset pages members and
	// paces role calls through the limiter). With synchronous event
	// dispatch they must leave the gateway goroutine, or a slow command
	// stalls voice-state delivery for every guild.
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		go b.handleCommand(i)
	case discordgo.InteractionMessageComponent:
		go b.handleComponent(i)
	}
}

func (b *Bot) handleCommand(i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	switch data.Name {
	case "role-reward":
		b.handleRoleReward(i, data)
	case "afk-channel":
		b.handleAfkChannel(i, data)
	case "ranking":
		b.handleRanking(i, data)
	case "my-time":
		b.handleMyTime(i)
	case "reset-time":
		b.handleResetTime(i, data)
	case "schedule-reset":
		b.handleScheduleReset(i, data)
	case "ranking-channel":
		b.handleRankingChannel(i, data)
	}
}

func (b *Bot) handleRoleReward(i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	sub := data.Options[0]
	opts := optionMap(sub.Options)

	switch sub.Name {
	case "add":
		hours := int(opts["hours"].IntValue())
		if hours <= 0 {
			b.replyEphemeral(i, "Hours must be positive.")
			return
		}
		role := opts["role"].RoleValue(b.session, i.GuildID)
		err := b.repository.AddRewardTier(models.RewardTier{
			GuildID: i.GuildID, Hours: hours, RoleID: role.ID, RoleName: role.Name,
		})
		if errors.Is(err, database.ErrDuplicateTier) {
			b.replyEphemeral(i, fmt.Sprintf("A reward for %d hours already exists.", hours))
			return
		}
		if err != nil {
			b.replyError(i, err)
			return
		}
		b.reply(i, fmt.Sprintf("✅ Added reward: %d hours → %s", hours, role.Name))

	case "remove":
		hours := int(opts["hours"].IntValue())
		err := b.repository.RemoveRewardTier(i.GuildID, hours)
		if errors.Is(err, database.ErrTierNotFound) {
			b.replyEphemeral(i, fmt.Sprintf("No reward is configured for %d hours.", hours))
			return
		}
		if err != nil {
			b.replyError(i, err)
			return
		}
		b.reply(i, fmt.Sprintf("✅ Removed the %d hour reward.", hours))

	case "list":
		tiers, err := b.repository.GetRewardTiers(i.GuildID)
		if err != nil {
			b.replyError(i, err)
			return
		}
		if len(tiers) == 0 {
			b.reply(i, "No role rewards are configured.")
			return
		}
		description := ""
		for _, tier := range tiers {
			description += fmt.Sprintf("**%d hours** → %s\n", tier.Hours, tier.RoleName)
		}
		b.replyEmbed(i, &discordgo.MessageEmbed{
			Title:       "🎭 Role rewards",
			Description: description,
			Color:       0x00AE86,
		}, nil, false)
	}
}

func (b *Bot) handleAfkChannel(i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	sub := data.Options[0]
	opts := optionMap(sub.Options)

	switch sub.Name {
	case "add":
		channel := opts["channel"].ChannelValue(b.session)
		err := b.repository.AddIdleChannel(i.GuildID, channel.ID)
		if errors.Is(err, database.ErrDuplicateIdleChannel) {
			b.replyEphemeral(i, fmt.Sprintf("%s is already excluded.", channel.Name))
			return
		}
		if err != nil {
			b.replyError(i, err)
			return
		}
		b.tracker.InvalidateIdleChannels(i.GuildID)
		b.reply(i, fmt.Sprintf("✅ %s is now excluded from time tracking.", channel.Name))

	case "remove":
		channel := opts["channel"].ChannelValue(b.session)
		err := b.repository.RemoveIdleChannel(i.GuildID, channel.ID)
		if errors.Is(err, database.ErrIdleChannelNotFound) {
			b.replyEphemeral(i, fmt.Sprintf("%s is not excluded.", channel.Name))
			return
		}
		if err != nil {
			b.replyError(i, err)
			return
		}
		b.tracker.InvalidateIdleChannels(i.GuildID)
		b.reply(i, fmt.Sprintf("✅ %s now counts toward voice time again.", channel.Name))

	case "list":
		channels, err := b.repository.GetIdleChannels(i.GuildID)
		if err != nil {
			b.replyError(i, err)
			return
		}
		if len(channels) == 0 {
			b.reply(i, "No channels are excluded.")
			return
		}
		description := ""
		for _, id := range channels {
			description += utils.FormatChannelMention(id) + "\n"
		}
		b.replyEmbed(i, &discordgo.MessageEmbed{
			Title:       "💤 Excluded channels",
			Description: description,
			Color:       0x00AE86,
		}, nil, false)
	}
}

func (b *Bot) handleRanking(i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	page := 1
	if opts := optionMap(data.Options); opts["page"] != nil {
		page = int(opts["page"].IntValue())
	}

	embed, components, err := b.rankingPage(i.GuildID, b.guildName(i.GuildID), page)
	if err != nil {
		b.replyError(i, err)
		return
	}
	if embed == nil {
		b.reply(i, "No voice time has been recorded yet.")
		return
	}
	b.replyEmbed(i, embed, components, false)
}

func (b *Bot) handleComponent(i *discordgo.InteractionCreate) {
	guildID, page, ok := parseRankingCustomID(i.MessageComponentData().CustomID)
	if !ok || guildID != i.GuildID {
		return
	}

	embed, components, err := b.rankingPage(guildID, b.guildName(guildID), page)
	if err != nil || embed == nil {
		return
	}
	err = b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
		},
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("failed to update ranking page")
	}
}

func (b *Bot) handleMyTime(i *discordgo.InteractionCreate) {
	userID := interactionUserID(i)
	total, err := b.repository.GetTotalTime(i.GuildID, userID)
	if err != nil {
		b.replyError(i, err)
		return
	}

	var sessionMs int64
	if elapsed, live := b.tracker.Elapsed(i.GuildID, userID); live {
		sessionMs = elapsed.Milliseconds()
	}
	combined := total + sessionMs

	if combined == 0 {
		b.replyEphemeral(i, "You have no recorded voice time in this server yet.")
		return
	}

	description := fmt.Sprintf("**Total voice time:** %s", utils.FormatDuration(combined))
	if sessionMs > 0 {
		description += fmt.Sprintf("\n**Current session:** %s", utils.FormatDuration(sessionMs))
	}

	if tiers, err := b.repository.GetRewardTiers(i.GuildID); err == nil {
		next := ""
		for _, tier := range tiers {
			if tier.ThresholdMs() > combined {
				next = fmt.Sprintf("\n\n**Next reward:** %s (%s to go)",
					tier.RoleName, utils.FormatHoursMinutes(tier.ThresholdMs()-combined))
				break
			}
		}
		if next == "" && len(tiers) > 0 {
			next = "\n\n🎉 You have earned every reward tier!"
		}
		description += next
	}

	b.replyEmbed(i, &discordgo.MessageEmbed{
		Title:       "📊 Your voice time",
		Description: description,
		Color:       0x00AE86,
	}, nil, true)
}

func (b *Bot) handleResetTime(i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if !isAdmin(i) {
		b.replyEphemeral(i, "❌ This command requires administrator permission.")
		return
	}
	if optionMap(data.Options)["confirm"].StringValue() != "confirm" {
		b.replyEphemeral(i, "Type \"confirm\" to reset all voice time.")
		return
	}

	if err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		return
	}

	summary, err := b.performReset(i.GuildID)
	var content string
	if err != nil {
		content = "❌ Reset failed; voice time was left untouched."
		b.log.Error().Err(err).Str("guild", i.GuildID).Msg("manual reset failed")
	} else {
		content = fmt.Sprintf("✅ Voice time reset. Roles revoked: %d, failures: %d, live sessions rebased: %d.",
			summary.revoked, summary.failed, summary.rebased)
	}
	if _, err := b.session.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		b.log.Warn().Err(err).Msg("failed to edit reset reply")
	}
}

func (b *Bot) handleScheduleReset(i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if !isAdmin(i) {
		b.replyEphemeral(i, "❌ This command requires administrator permission.")
		return
	}

	sub := data.Options[0]
	opts := optionMap(sub.Options)

	switch sub.Name {
	case "add":
		datetime := opts["datetime"].StringValue()
		recurrence := models.RecurrenceNone
		if opt := opts["recurrence"]; opt != nil {
			parsed, err := models.ParseRecurrence(opt.StringValue())
			if err != nil {
				b.replyEphemeral(i, "❌ Invalid recurrence value.")
				return
			}
			recurrence = parsed
		}

		at, err := utils.ParseCivilTime(datetime, b.loc)
		if err != nil {
			b.replyEphemeral(i, "❌ Invalid datetime. Use `YYYY-MM-DD HH:MM`, e.g. `2025-08-10 15:30`.")
			return
		}
		if !at.After(time.Now()) {
			b.replyEphemeral(i, "❌ The datetime must be in the future.")
			return
		}

		schedule := models.ScheduledReset{
			ID:              uuid.NewString(),
			GuildID:         i.GuildID,
			OriginalSpec:    datetime,
			NextExecutionAt: at.UnixMilli(),
			Recurrence:      recurrence,
			CreatedBy:       interactionUserID(i),
			ChannelID:       i.ChannelID,
			Active:          true,
		}
		if err := b.repository.AddScheduledReset(schedule); err != nil {
			b.replyError(i, err)
			return
		}
		b.scheduler.Schedule(schedule)

		b.replyEmbed(i, &discordgo.MessageEmbed{
			Title: "⏰ Reset scheduled",
			Color: 0x00AE86,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Fires", Value: utils.ToDiscordTimestamp(schedule.NextExecutionAt, 'F'), Inline: true},
				{Name: "Recurrence", Value: string(recurrence), Inline: true},
				{Name: "Schedule id", Value: schedule.ID, Inline: false},
			},
		}, nil, false)

	case "list":
		schedules, err := b.repository.GetScheduledResets(i.GuildID, true)
		if err != nil {
			b.replyError(i, err)
			return
		}
		if len(schedules) == 0 {
			b.reply(i, "No active scheduled resets.")
			return
		}
		b.replyEmbed(i, &discordgo.MessageEmbed{
			Title:       "⏰ Scheduled resets",
			Description: scheduleListDescription(schedules, time.Now().UnixMilli()),
			Color:       0x00AE86,
		}, nil, false)

	case "cancel":
		id := opts["id"].StringValue()
		if err := b.scheduler.Cancel(id); err != nil {
			b.replyError(i, err)
			return
		}
		b.reply(i, fmt.Sprintf("✅ Scheduled reset `%s` cancelled.", id))
	}
}

func (b *Bot) handleRankingChannel(i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) {
	if !isAdmin(i) {
		b.replyEphemeral(i, "❌ This command requires administrator permission.")
		return
	}

	sub := data.Options[0]
	opts := optionMap(sub.Options)

	switch sub.Name {
	case "set":
		channel := opts["channel"].ChannelValue(b.session)
		top := 10
		if opt := opts["top"]; opt != nil {
			top = int(opt.IntValue())
		}
		err := b.repository.UpdateRankingSettings(models.RankingSettings{
			GuildID: i.GuildID, ChannelID: channel.ID, ShowOnReset: true, TopCount: top,
		})
		if err != nil {
			b.replyError(i, err)
			return
		}
		b.reply(i, fmt.Sprintf("✅ The top %d will be posted to %s when a reset fires.",
			top, utils.FormatChannelMention(channel.ID)))

	case "off":
		err := b.repository.UpdateRankingSettings(models.RankingSettings{
			GuildID: i.GuildID, ShowOnReset: false, TopCount: 10,
		})
		if err != nil {
			b.replyError(i, err)
			return
		}
		b.reply(i, "✅ Final-ranking posts disabled.")
	}
}

// ---- reply helpers ----

func (b *Bot) reply(i *discordgo.InteractionCreate, content string) {
	b.respond(i, content, false)
}

func (b *Bot) replyEphemeral(i *discordgo.InteractionCreate, content string) {
	b.respond(i, content, true)
}

func (b *Bot) replyError(i *discordgo.InteractionCreate, err error) {
	b.log.Error().Err(err).Str("guild", i.GuildID).Msg("command failed")
	b.respond(i, "Something went wrong, please try again later.", true)
}

func (b *Bot) respond(i *discordgo.InteractionCreate, content string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("failed to respond to interaction")
	}
}

func (b *Bot) replyEmbed(i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent, ephemeral bool) {
	data := &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: components,
	}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		b.log.Warn().Err(err).Msg("failed to respond to interaction")
	}
}

func (b *Bot) guildName(guildID string) string {
	if guild, err := b.session.State.Guild(guildID); err == nil {
		return guild.Name
	}
	return "Server"
}

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func isAdmin(i *discordgo.InteractionCreate) bool {
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionAdministrator != 0
}
