package database

import (
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicetimer/internal/models"
)

func newRepoWithMock(t *testing.T) (*Repository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewRepository(&DB{conn: conn}), mock, conn
}

func TestAddSessionTimeCommitsBothWrites(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	rec := models.SessionRecord{
		GuildID: "g1", UserID: "u1", ChannelID: "c1",
		StartTime: 1000, EndTime: 61000, Duration: 60000,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO guilds")).
		WithArgs("g1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO voice_time")).
		WithArgs("g1", "u1", int64(60000)).
		WillReturnRows(sqlmock.NewRows([]string{"total_time_ms"}).AddRow(int64(3600000)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO voice_sessions")).
		WithArgs("g1", "u1", "c1", int64(1000), int64(61000), int64(60000)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	total, err := repo.AddSessionTime(rec)
	require.NoError(t, err)
	assert.Equal(t, int64(3600000), total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddSessionTimeRollsBackOnHistoryFailure(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO guilds")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO voice_time")).
		WillReturnRows(sqlmock.NewRows([]string{"total_time_ms"}).AddRow(int64(1000)))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO voice_sessions")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := repo.AddSessionTime(models.SessionRecord{GuildID: "g1", UserID: "u1"})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTotalTimeDefaultsToZero(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT total_time_ms FROM voice_time")).
		WithArgs("g1", "u1").
		WillReturnError(sql.ErrNoRows)

	total, err := repo.GetTotalTime("g1", "u1")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestGetRankingScansPage(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	rows := sqlmock.NewRows([]string{"user_id", "total_time_ms"}).
		AddRow("u1", int64(7200000)).
		AddRow("u2", int64(3600000))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT user_id, total_time_ms FROM voice_time")).
		WithArgs("g1", 10, 0).
		WillReturnRows(rows)

	ranking, err := repo.GetRanking("g1", 10, 0)
	require.NoError(t, err)
	require.Len(t, ranking, 2)
	assert.Equal(t, "u1", ranking[0].UserID)
	assert.Equal(t, int64(7200000), ranking[0].TotalTimeMs)
}

func TestAddRewardTierDuplicate(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO guilds")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reward_tiers")).
		WithArgs("g1", 10, "r1", "Veteran").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AddRewardTier(models.RewardTier{GuildID: "g1", Hours: 10, RoleID: "r1", RoleName: "Veteran"})
	assert.ErrorIs(t, err, ErrDuplicateTier)
}

func TestRemoveRewardTierNotFound(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM reward_tiers")).
		WithArgs("g1", 10).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.RemoveRewardTier("g1", 10)
	assert.ErrorIs(t, err, ErrTierNotFound)
}

func TestAddIdleChannelDuplicate(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO guilds")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO idle_channels")).
		WithArgs("g1", "c1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AddIdleChannel("g1", "c1")
	assert.ErrorIs(t, err, ErrDuplicateIdleChannel)
}

func TestResetGuildDataClearsBothTables(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM voice_sessions WHERE guild_id = $1")).
		WithArgs("g1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM voice_time WHERE guild_id = $1")).
		WithArgs("g1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, repo.ResetGuildData("g1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateScheduledResetPatchesOnlyActiveRows(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	next := int64(1754838600000)
	count := 3
	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE scheduled_resets SET next_execution = $1, execution_count = $2 WHERE id = $3 AND active = TRUE")).
		WithArgs(next, count, "s1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	alive, err := repo.UpdateScheduledReset("s1", models.SchedulePatch{
		NextExecutionAt: &next,
		ExecutionCount:  &count,
	})
	require.NoError(t, err)
	assert.True(t, alive)
}

func TestUpdateScheduledResetReportsCancelledRow(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	next := int64(1754838600000)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE scheduled_resets SET next_execution = $1")).
		WithArgs(next, "s1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	alive, err := repo.UpdateScheduledReset("s1", models.SchedulePatch{NextExecutionAt: &next})
	require.NoError(t, err)
	assert.False(t, alive)
}

func TestUpdateScheduledResetRejectsEmptyPatch(t *testing.T) {
	repo, _, conn := newRepoWithMock(t)
	defer conn.Close()

	_, err := repo.UpdateScheduledReset("s1", models.SchedulePatch{})
	assert.Error(t, err)
}

func TestCancelScheduledResetIdempotent(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE scheduled_resets SET active = FALSE WHERE id = $1")).
		WithArgs("unknown").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.CancelScheduledReset("unknown"))
}

func TestGetScheduledResetsActiveOnly(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	rows := sqlmock.NewRows([]string{
		"id", "guild_id", "original_spec", "next_execution",
		"recurrence", "created_by", "channel_id", "active", "execution_count",
	}).AddRow("s1", "g1", "2025-08-10 15:30", int64(1754838600000), "daily", "u1", "c1", true, 2)
	mock.ExpectQuery("SELECT .+ FROM scheduled_resets WHERE guild_id = .+ AND active = TRUE").
		WithArgs("g1").
		WillReturnRows(rows)

	schedules, err := repo.GetScheduledResets("g1", true)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, models.RecurrenceDaily, schedules[0].Recurrence)
	assert.Equal(t, 2, schedules[0].ExecutionCount)
}

func TestGetRankingSettingsDefaults(t *testing.T) {
	repo, mock, conn := newRepoWithMock(t)
	defer conn.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM ranking_settings")).
		WithArgs("g1").
		WillReturnError(sql.ErrNoRows)

	settings, err := repo.GetRankingSettings("g1")
	require.NoError(t, err)
	assert.True(t, settings.ShowOnReset)
	assert.Equal(t, 10, settings.TopCount)
	assert.Empty(t, settings.ChannelID)
}
