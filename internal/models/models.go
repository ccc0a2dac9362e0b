package models

import (
	"fmt"
	"time"
)

// VoiceSession represents a user's live voice channel session. It only
// exists in memory; closed sessions become SessionRecords.
type VoiceSession struct {
	GuildID   string
	UserID    string
	ChannelID string
	StartedAt time.Time
}

// SessionRecord represents one closed voice session as persisted in the
// session history log. Times are epoch milliseconds UTC.
type SessionRecord struct {
	GuildID   string
	UserID    string
	ChannelID string
	StartTime int64
	EndTime   int64
	Duration  int64
}

// AccumulatedTime represents a user's cumulative voice time in a guild.
type AccumulatedTime struct {
	GuildID     string
	UserID      string
	TotalTimeMs int64
}

// RewardTier maps an hours threshold to a role grant.
type RewardTier struct {
	GuildID  string
	Hours    int
	RoleID   string
	RoleName string
}

// ThresholdMs returns the tier threshold in milliseconds.
func (t RewardTier) ThresholdMs() int64 {
	return int64(t.Hours) * int64(time.Hour/time.Millisecond)
}

// Recurrence describes how a scheduled reset repeats.
type Recurrence string

const (
	RecurrenceNone    Recurrence = "none"
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// ParseRecurrence validates a recurrence value from user input.
func ParseRecurrence(s string) (Recurrence, error) {
	switch Recurrence(s) {
	case RecurrenceNone, RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return Recurrence(s), nil
	}
	return "", fmt.Errorf("invalid recurrence %q", s)
}

// ScheduledReset represents a persisted, possibly recurring, future
// instruction to zero a guild's accumulated time and revoke tier roles.
// OriginalSpec keeps the admin-entered civil datetime so recurring
// occurrences are always derived from it, not from the previous
// execution time. NextExecutionAt is epoch milliseconds UTC.
type ScheduledReset struct {
	ID              string
	GuildID         string
	OriginalSpec    string
	NextExecutionAt int64
	Recurrence      Recurrence
	CreatedBy       string
	ChannelID       string
	Active          bool
	ExecutionCount  int
}

// SchedulePatch enumerates the scheduled-reset fields that may change
// after creation. Nil fields are left untouched.
type SchedulePatch struct {
	NextExecutionAt *int64
	ExecutionCount  *int
	Active          *bool
}

// RankingSettings controls the final-ranking post when a reset fires.
type RankingSettings struct {
	GuildID     string
	ChannelID   string
	ShowOnReset bool
	TopCount    int
}
