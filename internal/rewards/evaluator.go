package rewards

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"voicetimer/internal/models"
)

// TierStore provides the guild's reward tiers, ordered by hours ascending.
type TierStore interface {
	GetRewardTiers(guildID string) ([]models.RewardTier, error)
}

// RoleManager performs role lookups and grants against the platform.
// Calls can fail individually; a failed grant never blocks accounting.
type RoleManager interface {
	HasRole(guildID, userID, roleID string) (bool, error)
	GrantRole(ctx context.Context, guildID, userID, roleID string) error
}

// Notifier delivers the reward notification artifact to the user.
type Notifier interface {
	NotifyReward(guildID, userID string, tier models.RewardTier, totalMs int64)
}

const defaultGrantTimeout = 10 * time.Second

// Evaluator grants tier roles once a user's cumulative total crosses
// their thresholds. Grants are keyed on current role possession, so a
// tier is never re-granted while the user still holds the role.
type Evaluator struct {
	tiers   TierStore
	roles   RoleManager
	notify  Notifier
	log     zerolog.Logger
	timeout time.Duration
}

// NewEvaluator creates an evaluator. notify may be nil.
func NewEvaluator(tiers TierStore, roles RoleManager, notify Notifier, log zerolog.Logger) *Evaluator {
	return &Evaluator{
		tiers:   tiers,
		roles:   roles,
		notify:  notify,
		log:     log,
		timeout: defaultGrantTimeout,
	}
}

// Evaluate checks every satisfied tier the user does not already hold
// and requests the role grant. Per-tier failures are logged and skipped;
// partial success is expected.
func (e *Evaluator) Evaluate(guildID, userID string, totalMs int64) {
	tiers, err := e.tiers.GetRewardTiers(guildID)
	if err != nil {
		e.log.Error().Err(err).Str("guild", guildID).Msg("failed to load reward tiers")
		return
	}

	for _, tier := range tiers {
		if tier.ThresholdMs() > totalMs {
			// tiers are ordered ascending, nothing further is satisfied
			break
		}

		has, err := e.roles.HasRole(guildID, userID, tier.RoleID)
		if err != nil {
			e.log.Warn().Err(err).Str("guild", guildID).Str("user", userID).
				Str("role", tier.RoleID).Msg("failed to check role possession")
			continue
		}
		if has {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		err = e.roles.GrantRole(ctx, guildID, userID, tier.RoleID)
		cancel()
		if err != nil {
			e.log.Warn().Err(err).Str("guild", guildID).Str("user", userID).
				Str("role", tier.RoleID).Int("hours", tier.Hours).Msg("failed to grant tier role")
			continue
		}

		e.log.Info().Str("guild", guildID).Str("user", userID).
			Str("role", tier.RoleName).Int("hours", tier.Hours).Msg("tier role granted")

		if e.notify != nil {
			e.notify.NotifyReward(guildID, userID, tier, totalMs)
		}
	}
}
