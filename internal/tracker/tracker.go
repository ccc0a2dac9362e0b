package tracker

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"voicetimer/internal/models"
)

// Store is the persistence surface the tracker needs.
type Store interface {
	// AddSessionTime atomically increments accumulated time and appends
	// the session record, returning the new cumulative total.
	AddSessionTime(rec models.SessionRecord) (int64, error)
	GetIdleChannels(guildID string) ([]string, error)
}

// RewardSink receives the new cumulative total after a session flush
// has committed.
type RewardSink interface {
	Evaluate(guildID, userID string, totalMs int64)
}

// GuildInfo exposes the platform-level AFK channel for a guild.
type GuildInfo interface {
	AFKChannelID(guildID string) string
}

const (
	idleCacheTTL     = 5 * time.Minute
	idleCacheCleanup = 10 * time.Minute
)

// Tracker owns the live voice sessions and converts presence-change
// events into persisted durations. Sessions are keyed guildID:userID;
// one mutex per guild serializes presence handling with reset rebasing.
type Tracker struct {
	store   Store
	rewards RewardSink
	guilds  GuildInfo
	log     zerolog.Logger
	now     func() time.Time

	idleCache *cache.Cache

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	sessions map[string]models.VoiceSession
}

// New creates a tracker. rewards and guilds may be nil in tests.
func New(store Store, rewards RewardSink, guilds GuildInfo, log zerolog.Logger) *Tracker {
	return &Tracker{
		store:     store,
		rewards:   rewards,
		guilds:    guilds,
		log:       log,
		now:       time.Now,
		idleCache: cache.New(idleCacheTTL, idleCacheCleanup),
		locks:     make(map[string]*sync.Mutex),
		sessions:  make(map[string]models.VoiceSession),
	}
}

func sessionKey(guildID, userID string) string {
	return guildID + ":" + userID
}

func (t *Tracker) guildLock(guildID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	lock, ok := t.locks[guildID]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[guildID] = lock
	}
	return lock
}

// HandleVoiceState applies one presence-change event. Events for the
// same user must arrive in delivery order; duplicates of a no-op
// transition are ignored.
func (t *Tracker) HandleVoiceState(guildID, userID, oldChannelID, newChannelID string) {
	if guildID == "" || userID == "" || oldChannelID == newChannelID {
		return
	}

	lock := t.guildLock(guildID)
	lock.Lock()

	key := sessionKey(guildID, userID)
	sess, live := t.sessions[key]
	now := t.now()

	var flushed models.SessionRecord
	var flush bool

	switch {
	case oldChannelID == "":
		// join from outside voice
		if !t.isIdle(guildID, newChannelID) && !live {
			t.sessions[key] = models.VoiceSession{
				GuildID:   guildID,
				UserID:    userID,
				ChannelID: newChannelID,
				StartedAt: now,
			}
			t.log.Debug().Str("guild", guildID).Str("user", userID).
				Str("channel", newChannelID).Msg("session started")
		}
	case newChannelID == "":
		// left voice entirely
		if live {
			flushed, flush = t.closeSessionLocked(key, sess, now)
		}
	default:
		// lateral move
		oldIdle := t.isIdle(guildID, oldChannelID)
		newIdle := t.isIdle(guildID, newChannelID)
		switch {
		case !oldIdle && newIdle:
			if live {
				flushed, flush = t.closeSessionLocked(key, sess, now)
			}
		case oldIdle && !newIdle:
			if !live {
				t.sessions[key] = models.VoiceSession{
					GuildID:   guildID,
					UserID:    userID,
					ChannelID: newChannelID,
					StartedAt: now,
				}
			}
		case !oldIdle && !newIdle:
			if live {
				// same session continues in the new channel
				sess.ChannelID = newChannelID
				t.sessions[key] = sess
			}
		}
	}

	// The flush commits under the guild lock so a concurrent reset
	// cannot zero the store between this duration landing and the
	// session leaving the map.
	var total int64
	if flush {
		var err error
		total, err = t.store.AddSessionTime(flushed)
		if err != nil {
			t.log.Error().Err(err).Str("guild", guildID).Str("user", userID).
				Int64("duration_ms", flushed.Duration).Msg("failed to persist session")
			flush = false
		} else {
			t.log.Info().Str("guild", guildID).Str("user", userID).
				Str("channel", flushed.ChannelID).Int64("duration_ms", flushed.Duration).
				Int64("total_ms", total).Msg("session closed")
		}
	}

	lock.Unlock()

	// Reward evaluation runs on its own goroutine: role grants hit the
	// platform API and must not stall the event dispatch path. Grants
	// are keyed on current role possession, so ordering between flushes
	// does not matter.
	if flush && t.rewards != nil {
		go t.rewards.Evaluate(guildID, userID, total)
	}
}

// closeSessionLocked removes the live session and returns the record to
// persist. Removing the entry before persisting guarantees a duration
// is flushed at most once per leave event.
func (t *Tracker) closeSessionLocked(key string, sess models.VoiceSession, now time.Time) (models.SessionRecord, bool) {
	delete(t.sessions, key)
	duration := now.Sub(sess.StartedAt)
	if duration < 0 {
		duration = 0
	}
	return models.SessionRecord{
		GuildID:   sess.GuildID,
		UserID:    sess.UserID,
		ChannelID: sess.ChannelID,
		StartTime: sess.StartedAt.UnixMilli(),
		EndTime:   now.UnixMilli(),
		Duration:  duration.Milliseconds(),
	}, true
}

// Elapsed returns the running duration of a user's live session, if any.
func (t *Tracker) Elapsed(guildID, userID string) (time.Duration, bool) {
	lock := t.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	sess, ok := t.sessions[sessionKey(guildID, userID)]
	if !ok {
		return 0, false
	}
	return t.now().Sub(sess.StartedAt), true
}

// ResetGuild runs clear (the store's reset transaction) and, on
// success, rebases every live session in the guild to start now. Both
// happen under the guild lock so a concurrent leave event can neither
// double-account nor lose the in-progress interval. Returns the number
// of rebased sessions.
func (t *Tracker) ResetGuild(guildID string, clear func() error) (int, error) {
	lock := t.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	if err := clear(); err != nil {
		return 0, err
	}

	now := t.now()
	rebased := 0
	for key, sess := range t.sessions {
		if sess.GuildID != guildID {
			continue
		}
		sess.StartedAt = now
		t.sessions[key] = sess
		rebased++
	}
	return rebased, nil
}

// InvalidateIdleChannels drops the cached idle set after a mutation.
func (t *Tracker) InvalidateIdleChannels(guildID string) {
	t.idleCache.Delete(guildID)
}

// isIdle reports whether a channel is excluded from time accrual: the
// admin-configured idle set plus the guild-level AFK channel.
func (t *Tracker) isIdle(guildID, channelID string) bool {
	if channelID == "" {
		return false
	}
	if _, ok := t.idleSet(guildID)[channelID]; ok {
		return true
	}
	return t.guilds != nil && t.guilds.AFKChannelID(guildID) == channelID
}

func (t *Tracker) idleSet(guildID string) map[string]struct{} {
	if v, ok := t.idleCache.Get(guildID); ok {
		return v.(map[string]struct{})
	}
	channels, err := t.store.GetIdleChannels(guildID)
	if err != nil {
		// fail open: count time rather than silently dropping sessions
		t.log.Warn().Err(err).Str("guild", guildID).Msg("failed to load idle channels")
		return nil
	}
	set := make(map[string]struct{}, len(channels))
	for _, id := range channels {
		set[id] = struct{}{}
	}
	t.idleCache.Set(guildID, set, cache.DefaultExpiration)
	return set
}
