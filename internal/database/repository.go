package database

import (
	"database/sql"
	"errors"
	"fmt"

	"voicetimer/internal/models"
)

// Validation errors surfaced to the command front end.
var (
	ErrDuplicateTier        = errors.New("a reward tier already exists for these hours")
	ErrTierNotFound         = errors.New("reward tier not found")
	ErrDuplicateIdleChannel = errors.New("channel is already marked idle")
	ErrIdleChannelNotFound  = errors.New("channel is not marked idle")
)

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// EnsureGuild registers a guild if it is not known yet.
func (r *Repository) EnsureGuild(guildID string) error {
	_, err := r.db.conn.Exec(`
		INSERT INTO guilds (guild_id) VALUES ($1)
		ON CONFLICT (guild_id) DO NOTHING`, guildID)
	if err != nil {
		return fmt.Errorf("failed to ensure guild: %w", err)
	}
	return nil
}

// AddSessionTime commits one closed voice session: the accumulated-time
// increment and the session-history insert succeed or fail together.
// Returns the user's new cumulative total.
func (r *Repository) AddSessionTime(rec models.SessionRecord) (int64, error) {
	tx, err := r.db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin session transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO guilds (guild_id) VALUES ($1)
		ON CONFLICT (guild_id) DO NOTHING`, rec.GuildID); err != nil {
		return 0, fmt.Errorf("failed to ensure guild: %w", err)
	}

	var total int64
	err = tx.QueryRow(`
		INSERT INTO voice_time (guild_id, user_id, total_time_ms, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (guild_id, user_id) DO UPDATE SET
			total_time_ms = voice_time.total_time_ms + EXCLUDED.total_time_ms,
			updated_at = now()
		RETURNING total_time_ms`,
		rec.GuildID, rec.UserID, rec.Duration).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to add session time: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO voice_sessions (guild_id, user_id, channel_id, start_time, end_time, duration)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.GuildID, rec.UserID, rec.ChannelID, rec.StartTime, rec.EndTime, rec.Duration); err != nil {
		return 0, fmt.Errorf("failed to record session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit session transaction: %w", err)
	}
	return total, nil
}

// GetTotalTime gets a user's accumulated voice time in a guild.
func (r *Repository) GetTotalTime(guildID, userID string) (int64, error) {
	var total int64
	err := r.db.conn.QueryRow(
		"SELECT total_time_ms FROM voice_time WHERE guild_id = $1 AND user_id = $2",
		guildID, userID).Scan(&total)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to get total time: %w", err)
	}
	return total, nil
}

// GetRanking returns one page of the guild ranking, highest totals first.
func (r *Repository) GetRanking(guildID string, limit, offset int) ([]models.AccumulatedTime, error) {
	rows, err := r.db.conn.Query(`
		SELECT user_id, total_time_ms FROM voice_time
		WHERE guild_id = $1 AND total_time_ms > 0
		ORDER BY total_time_ms DESC
		LIMIT $2 OFFSET $3`, guildID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get ranking: %w", err)
	}
	defer rows.Close()

	var ranking []models.AccumulatedTime
	for rows.Next() {
		entry := models.AccumulatedTime{GuildID: guildID}
		if err := rows.Scan(&entry.UserID, &entry.TotalTimeMs); err != nil {
			return nil, fmt.Errorf("failed to scan ranking row: %w", err)
		}
		ranking = append(ranking, entry)
	}
	return ranking, rows.Err()
}

// GetRankingCount returns the number of users with recorded time.
func (r *Repository) GetRankingCount(guildID string) (int, error) {
	var count int
	err := r.db.conn.QueryRow(
		"SELECT COUNT(*) FROM voice_time WHERE guild_id = $1 AND total_time_ms > 0",
		guildID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ranking: %w", err)
	}
	return count, nil
}

// AddRewardTier creates a reward tier. Returns ErrDuplicateTier when the
// guild already has a tier at these hours.
func (r *Repository) AddRewardTier(tier models.RewardTier) error {
	if err := r.EnsureGuild(tier.GuildID); err != nil {
		return err
	}
	res, err := r.db.conn.Exec(`
		INSERT INTO reward_tiers (guild_id, hours, role_id, role_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild_id, hours) DO NOTHING`,
		tier.GuildID, tier.Hours, tier.RoleID, tier.RoleName)
	if err != nil {
		return fmt.Errorf("failed to add reward tier: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDuplicateTier
	}
	return nil
}

// RemoveRewardTier deletes a reward tier by hours.
func (r *Repository) RemoveRewardTier(guildID string, hours int) error {
	res, err := r.db.conn.Exec(
		"DELETE FROM reward_tiers WHERE guild_id = $1 AND hours = $2",
		guildID, hours)
	if err != nil {
		return fmt.Errorf("failed to remove reward tier: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTierNotFound
	}
	return nil
}

// GetRewardTiers returns the guild's tiers ordered by hours ascending.
func (r *Repository) GetRewardTiers(guildID string) ([]models.RewardTier, error) {
	rows, err := r.db.conn.Query(`
		SELECT hours, role_id, role_name FROM reward_tiers
		WHERE guild_id = $1 ORDER BY hours ASC`, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reward tiers: %w", err)
	}
	defer rows.Close()

	var tiers []models.RewardTier
	for rows.Next() {
		tier := models.RewardTier{GuildID: guildID}
		if err := rows.Scan(&tier.Hours, &tier.RoleID, &tier.RoleName); err != nil {
			return nil, fmt.Errorf("failed to scan reward tier: %w", err)
		}
		tiers = append(tiers, tier)
	}
	return tiers, rows.Err()
}

// AddIdleChannel marks a channel as excluded from time accrual.
func (r *Repository) AddIdleChannel(guildID, channelID string) error {
	if err := r.EnsureGuild(guildID); err != nil {
		return err
	}
	res, err := r.db.conn.Exec(`
		INSERT INTO idle_channels (guild_id, channel_id)
		VALUES ($1, $2)
		ON CONFLICT (guild_id, channel_id) DO NOTHING`, guildID, channelID)
	if err != nil {
		return fmt.Errorf("failed to add idle channel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDuplicateIdleChannel
	}
	return nil
}

// RemoveIdleChannel removes a channel from the idle set.
func (r *Repository) RemoveIdleChannel(guildID, channelID string) error {
	res, err := r.db.conn.Exec(
		"DELETE FROM idle_channels WHERE guild_id = $1 AND channel_id = $2",
		guildID, channelID)
	if err != nil {
		return fmt.Errorf("failed to remove idle channel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrIdleChannelNotFound
	}
	return nil
}

// GetIdleChannels returns the guild's configured idle channel ids.
func (r *Repository) GetIdleChannels(guildID string) ([]string, error) {
	rows, err := r.db.conn.Query(
		"SELECT channel_id FROM idle_channels WHERE guild_id = $1", guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get idle channels: %w", err)
	}
	defer rows.Close()

	var channels []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan idle channel: %w", err)
		}
		channels = append(channels, id)
	}
	return channels, rows.Err()
}

// ResetGuildData zeroes accumulated time and clears session history for
// a guild in one transaction.
func (r *Repository) ResetGuildData(guildID string) error {
	tx, err := r.db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin reset transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM voice_sessions WHERE guild_id = $1", guildID); err != nil {
		return fmt.Errorf("failed to clear session history: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM voice_time WHERE guild_id = $1", guildID); err != nil {
		return fmt.Errorf("failed to clear accumulated time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reset transaction: %w", err)
	}
	return nil
}
