package database

import (
	"database/sql"
	"fmt"
	"strings"

	"voicetimer/internal/models"
)

// AddScheduledReset persists a new scheduled reset.
func (r *Repository) AddScheduledReset(s models.ScheduledReset) error {
	if err := r.EnsureGuild(s.GuildID); err != nil {
		return err
	}
	_, err := r.db.conn.Exec(`
		INSERT INTO scheduled_resets
			(id, guild_id, original_spec, next_execution, recurrence, created_by, channel_id, active, execution_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.GuildID, s.OriginalSpec, s.NextExecutionAt, string(s.Recurrence),
		s.CreatedBy, s.ChannelID, s.Active, s.ExecutionCount)
	if err != nil {
		return fmt.Errorf("failed to add scheduled reset: %w", err)
	}
	return nil
}

// GetScheduledResets returns a guild's schedules, soonest first.
func (r *Repository) GetScheduledResets(guildID string, activeOnly bool) ([]models.ScheduledReset, error) {
	query := `
		SELECT id, guild_id, original_spec, next_execution, recurrence, created_by, channel_id, active, execution_count
		FROM scheduled_resets WHERE guild_id = $1`
	if activeOnly {
		query += " AND active = TRUE"
	}
	query += " ORDER BY next_execution ASC"

	rows, err := r.db.conn.Query(query, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get scheduled resets: %w", err)
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// ListActiveScheduledResets returns every active schedule across all
// guilds, for startup recovery.
func (r *Repository) ListActiveScheduledResets() ([]models.ScheduledReset, error) {
	rows, err := r.db.conn.Query(`
		SELECT id, guild_id, original_spec, next_execution, recurrence, created_by, channel_id, active, execution_count
		FROM scheduled_resets WHERE active = TRUE
		ORDER BY next_execution ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active scheduled resets: %w", err)
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// UpdateScheduledReset applies a patch to a schedule that is still
// active. Returns false when the row was already cancelled or retired,
// so callers know not to re-arm.
func (r *Repository) UpdateScheduledReset(id string, patch models.SchedulePatch) (bool, error) {
	var sets []string
	var args []interface{}
	add := func(col string, v interface{}) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if patch.NextExecutionAt != nil {
		add("next_execution", *patch.NextExecutionAt)
	}
	if patch.ExecutionCount != nil {
		add("execution_count", *patch.ExecutionCount)
	}
	if patch.Active != nil {
		add("active", *patch.Active)
	}
	if len(sets) == 0 {
		return false, fmt.Errorf("empty schedule patch")
	}

	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE scheduled_resets SET %s WHERE id = $%d AND active = TRUE",
		strings.Join(sets, ", "), len(args))

	res, err := r.db.conn.Exec(query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update scheduled reset: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CancelScheduledReset marks a schedule inactive. Idempotent: cancelling
// an unknown or already-inactive id is not an error.
func (r *Repository) CancelScheduledReset(id string) error {
	_, err := r.db.conn.Exec(
		"UPDATE scheduled_resets SET active = FALSE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to cancel scheduled reset: %w", err)
	}
	return nil
}

// GetRankingSettings returns the guild's ranking settings, or defaults
// when none are stored.
func (r *Repository) GetRankingSettings(guildID string) (models.RankingSettings, error) {
	settings := models.RankingSettings{GuildID: guildID, ShowOnReset: true, TopCount: 10}
	err := r.db.conn.QueryRow(`
		SELECT channel_id, show_on_reset, top_count
		FROM ranking_settings WHERE guild_id = $1`, guildID).
		Scan(&settings.ChannelID, &settings.ShowOnReset, &settings.TopCount)
	if err != nil && err != sql.ErrNoRows {
		return settings, fmt.Errorf("failed to get ranking settings: %w", err)
	}
	return settings, nil
}

// UpdateRankingSettings upserts the guild's ranking settings.
func (r *Repository) UpdateRankingSettings(settings models.RankingSettings) error {
	if err := r.EnsureGuild(settings.GuildID); err != nil {
		return err
	}
	_, err := r.db.conn.Exec(`
		INSERT INTO ranking_settings (guild_id, channel_id, show_on_reset, top_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild_id) DO UPDATE SET
			channel_id = EXCLUDED.channel_id,
			show_on_reset = EXCLUDED.show_on_reset,
			top_count = EXCLUDED.top_count`,
		settings.GuildID, settings.ChannelID, settings.ShowOnReset, settings.TopCount)
	if err != nil {
		return fmt.Errorf("failed to update ranking settings: %w", err)
	}
	return nil
}

func scanSchedules(rows *sql.Rows) ([]models.ScheduledReset, error) {
	var schedules []models.ScheduledReset
	for rows.Next() {
		var s models.ScheduledReset
		var recurrence string
		if err := rows.Scan(&s.ID, &s.GuildID, &s.OriginalSpec, &s.NextExecutionAt,
			&recurrence, &s.CreatedBy, &s.ChannelID, &s.Active, &s.ExecutionCount); err != nil {
			return nil, fmt.Errorf("failed to scan scheduled reset: %w", err)
		}
		s.Recurrence = models.Recurrence(recurrence)
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}
