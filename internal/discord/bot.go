package discord

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"voicetimer/internal/config"
	"voicetimer/internal/database"
	"voicetimer/internal/scheduler"
	"voicetimer/internal/tracker"
)

// Bot represents the Discord bot. It is the boundary between the
// platform gateway and the tracker/scheduler/store core: it translates
// voice-state events into presence changes, implements the role and
// notification interfaces those packages consume, and serves the
// slash-command surface.
type Bot struct {
	session    *discordgo.Session
	repository *database.Repository
	log        zerolog.Logger
	loc        *time.Location

	// set via Bind before Start
	tracker   *tracker.Tracker
	scheduler *scheduler.Scheduler

	// guildID scopes command registration when set
	guildID string

	// limiter paces role grant/revoke calls against the platform API
	limiter *rate.Limiter

	recoverOnce sync.Once
}

const roleCallTimeout = 10 * time.Second

// New creates a new Discord bot
func New(cfg *config.Config, repository *database.Repository, log zerolog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildVoiceStates

	// The tracker is order-dependent: a join must be observed before
	// the matching leave. Synchronous dispatch preserves delivery order.
	session.SyncEvents = true

	bot := &Bot{
		session:    session,
		repository: repository,
		log:        log,
		loc:        cfg.Location(),
		guildID:    cfg.GuildID,
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
	}

	session.AddHandler(bot.ready)
	session.AddHandler(bot.voiceStateUpdate)
	session.AddHandler(bot.interactionCreate)

	return bot, nil
}

// Bind attaches the tracker and scheduler. Must be called before Start.
func (b *Bot) Bind(t *tracker.Tracker, s *scheduler.Scheduler) {
	b.tracker = t
	b.scheduler = s
}

// Start starts the bot
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	return nil
}

// Stop stops the bot
func (b *Bot) Stop() error {
	return b.session.Close()
}

// ready registers commands and recovers persisted schedules once the
// gateway roster is available.
func (b *Bot) ready(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("gateway ready")

	if err := b.registerCommands(); err != nil {
		b.log.Error().Err(err).Msg("failed to register commands")
	}

	b.recoverOnce.Do(func() {
		go func() {
			if err := b.scheduler.RecoverAll(); err != nil {
				b.log.Error().Err(err).Msg("schedule recovery failed")
			}
		}()
	})
}

// voiceStateUpdate feeds presence changes to the tracker. BeforeUpdate
// carries the previous voice state from the session cache; nil means
// the user was not in voice.
func (b *Bot) voiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.GuildID == "" || vs.UserID == "" {
		return
	}
	oldChannelID := ""
	if vs.BeforeUpdate != nil {
		oldChannelID = vs.BeforeUpdate.ChannelID
	}
	b.tracker.HandleVoiceState(vs.GuildID, vs.UserID, oldChannelID, vs.ChannelID)
}
