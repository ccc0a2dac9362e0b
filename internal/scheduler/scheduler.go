package scheduler

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voicetimer/internal/models"
)

// Store is the persistence surface the scheduler needs.
type Store interface {
	ListActiveScheduledResets() ([]models.ScheduledReset, error)
	// UpdateScheduledReset applies a patch only while the row is still
	// active, returning false when a cancel won the race.
	UpdateScheduledReset(id string, patch models.SchedulePatch) (bool, error)
	CancelScheduledReset(id string) error
}

// Resetter performs the reset side effects for one guild: final ranking
// post, role revocation, counter zeroing, live-session rebase. An error
// means persistence failed or the guild is unreachable; the schedule is
// then left recoverable.
type Resetter interface {
	PerformReset(guildID string) error
}

// Scheduler owns the timers for scheduled resets. Requested delays
// beyond maxDelay are realized by re-arming a bounded timer until the
// remainder fits; every re-chain and recurrence step checks liveness
// first so a cancel takes effect immediately.
type Scheduler struct {
	store    Store
	resetter Resetter
	clock    Clock
	loc      *time.Location
	log      zerolog.Logger
	maxDelay time.Duration

	mu     sync.Mutex
	timers map[string]TimerHandle
}

// New creates a scheduler using the system clock.
func New(store Store, resetter Resetter, loc *time.Location, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		resetter: resetter,
		clock:    systemClock{},
		loc:      loc,
		log:      log,
		maxDelay: DefaultMaxTimerDelay,
		timers:   make(map[string]TimerHandle),
	}
}

// Schedule arms a timer for the schedule's next execution. Past-due
// schedules fire immediately on the caller's goroutine.
func (s *Scheduler) Schedule(sr models.ScheduledReset) {
	delay := time.UnixMilli(sr.NextExecutionAt).Sub(s.clock.Now())
	if delay <= 0 {
		s.dropTimer(sr.ID)
		s.fire(sr)
		return
	}

	arm := delay
	if arm > s.maxDelay {
		arm = s.maxDelay
	}

	s.mu.Lock()
	if old, ok := s.timers[sr.ID]; ok {
		old.Stop()
	}
	var handle TimerHandle
	handle = s.clock.AfterFunc(arm, func() {
		// Bail out if this timer was cancelled or superseded while
		// pending; only the registered handle may proceed.
		s.mu.Lock()
		current, ok := s.timers[sr.ID]
		if !ok || current != handle {
			s.mu.Unlock()
			return
		}
		delete(s.timers, sr.ID)
		s.mu.Unlock()

		// Re-evaluates the remaining delay against the unchanged target:
		// fires when due, re-chains otherwise.
		s.Schedule(sr)
	})
	s.timers[sr.ID] = handle
	s.mu.Unlock()

	s.log.Debug().Str("schedule", sr.ID).Str("guild", sr.GuildID).
		Dur("delay", delay).Dur("armed", arm).Msg("timer armed")
}

// Cancel stops any pending timer and marks the schedule inactive.
// Idempotent: cancelling an unknown or inactive id is a no-op.
func (s *Scheduler) Cancel(id string) error {
	s.dropTimer(id)
	return s.store.CancelScheduledReset(id)
}

// RecoverAll reconciles persisted schedules against wall-clock time at
// startup. A past-due schedule fires exactly once no matter how many
// periods elapsed while the process was down; future schedules are
// re-armed.
func (s *Scheduler) RecoverAll() error {
	schedules, err := s.store.ListActiveScheduledResets()
	if err != nil {
		return err
	}

	now := s.clock.Now().UnixMilli()
	for _, sr := range schedules {
		if sr.NextExecutionAt <= now {
			s.log.Info().Str("schedule", sr.ID).Str("guild", sr.GuildID).
				Int64("was_due", sr.NextExecutionAt).Msg("catching up missed reset")
			s.fire(sr)
		} else {
			s.Schedule(sr)
		}
	}

	s.log.Info().Int("schedules", len(schedules)).Msg("schedule recovery complete")
	return nil
}

// Stop clears all pending timers, for shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, handle := range s.timers {
		handle.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) dropTimer(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if handle, ok := s.timers[id]; ok {
		handle.Stop()
		delete(s.timers, id)
	}
}

// fire runs the firing procedure at the actual execution time and then
// applies recurrence handling.
func (s *Scheduler) fire(sr models.ScheduledReset) {
	s.log.Info().Str("schedule", sr.ID).Str("guild", sr.GuildID).
		Int("execution_count", sr.ExecutionCount).Msg("executing scheduled reset")

	if err := s.resetter.PerformReset(sr.GuildID); err != nil {
		// Leave the row untouched: it stays active with its past due
		// time and is retried on the next recovery.
		s.log.Error().Err(err).Str("schedule", sr.ID).Str("guild", sr.GuildID).
			Msg("scheduled reset failed, schedule left recoverable")
		return
	}

	count := sr.ExecutionCount + 1

	if sr.Recurrence == models.RecurrenceNone {
		inactive := false
		if _, err := s.store.UpdateScheduledReset(sr.ID, models.SchedulePatch{
			Active:         &inactive,
			ExecutionCount: &count,
		}); err != nil {
			s.log.Error().Err(err).Str("schedule", sr.ID).Msg("failed to retire one-shot schedule")
		}
		return
	}

	next, err := NextOccurrence(sr.OriginalSpec, sr.Recurrence, s.clock.Now(), s.loc)
	if err != nil {
		s.log.Error().Err(err).Str("schedule", sr.ID).Msg("failed to compute next occurrence")
		return
	}

	nextMs := next.UnixMilli()
	stillActive, err := s.store.UpdateScheduledReset(sr.ID, models.SchedulePatch{
		NextExecutionAt: &nextMs,
		ExecutionCount:  &count,
	})
	if err != nil {
		s.log.Error().Err(err).Str("schedule", sr.ID).Msg("failed to persist recurrence, schedule left recoverable")
		return
	}
	if !stillActive {
		s.log.Info().Str("schedule", sr.ID).Msg("schedule cancelled during firing, not re-arming")
		return
	}

	sr.NextExecutionAt = nextMs
	sr.ExecutionCount = count
	s.Schedule(sr)
}
