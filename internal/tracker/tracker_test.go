package tracker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicetimer/internal/models"
)

type fakeStore struct {
	mu       sync.Mutex
	records  []models.SessionRecord
	total    int64
	idle     []string
	idleErr  error
	resetErr error
}

func (f *fakeStore) AddSessionTime(rec models.SessionRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	f.total += rec.Duration
	return f.total, nil
}

func (f *fakeStore) GetIdleChannels(guildID string) ([]string, error) {
	return f.idle, f.idleErr
}

type fakeRewards struct {
	mu    sync.Mutex
	calls []int64
	gate  chan struct{} // when set, Evaluate blocks until closed
}

func (f *fakeRewards) Evaluate(guildID, userID string, totalMs int64) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, totalMs)
}

func (f *fakeRewards) snapshot() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.calls...)
}

type fakeGuildInfo struct {
	afk string
}

func (f *fakeGuildInfo) AFKChannelID(guildID string) string { return f.afk }

func newTestTracker(store *fakeStore, rewards *fakeRewards, guilds *fakeGuildInfo) (*Tracker, *time.Time) {
	tr := New(store, rewards, guilds, zerolog.Nop())
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }
	return tr, &now
}

func TestSessionSpansChannelMove(t *testing.T) {
	store := &fakeStore{}
	rewards := &fakeRewards{}
	tr, now := newTestTracker(store, rewards, &fakeGuildInfo{})

	tr.HandleVoiceState("g1", "u1", "", "chanA")
	*now = now.Add(10 * time.Minute)
	tr.HandleVoiceState("g1", "u1", "chanA", "chanB")
	*now = now.Add(15 * time.Minute)
	tr.HandleVoiceState("g1", "u1", "chanB", "")

	require.Len(t, store.records, 1)
	rec := store.records[0]
	assert.Equal(t, "chanB", rec.ChannelID)
	assert.Equal(t, int64(25*60*1000), rec.Duration)
	assert.Equal(t, rec.StartTime+rec.Duration, rec.EndTime)

	// evaluation is asynchronous
	require.Eventually(t, func() bool { return len(rewards.snapshot()) == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(25*60*1000), rewards.snapshot()[0])
}

func TestSlowRewardSinkDoesNotBlockPresenceHandling(t *testing.T) {
	store := &fakeStore{}
	rewards := &fakeRewards{gate: make(chan struct{})}
	tr, now := newTestTracker(store, rewards, &fakeGuildInfo{})

	tr.HandleVoiceState("g1", "u1", "", "general")
	*now = now.Add(time.Minute)
	tr.HandleVoiceState("g1", "u1", "general", "")

	// evaluation is stuck on the gate, presence handling keeps moving
	tr.HandleVoiceState("g1", "u2", "", "general")
	_, live := tr.Elapsed("g1", "u2")
	assert.True(t, live)

	close(rewards.gate)
	require.Eventually(t, func() bool { return len(rewards.snapshot()) == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(60*1000), rewards.snapshot()[0])
}

func TestIdleChannelJoinStartsNothing(t *testing.T) {
	store := &fakeStore{idle: []string{"lounge"}}
	tr, now := newTestTracker(store, nil, &fakeGuildInfo{})

	tr.HandleVoiceState("g1", "u1", "", "lounge")
	*now = now.Add(30 * time.Minute)
	tr.HandleVoiceState("g1", "u1", "lounge", "")

	assert.Empty(t, store.records)
}

func TestMoveOutOfIdleStartsSession(t *testing.T) {
	store := &fakeStore{idle: []string{"lounge"}}
	tr, now := newTestTracker(store, nil, &fakeGuildInfo{})

	tr.HandleVoiceState("g1", "u1", "", "lounge")
	*now = now.Add(5 * time.Minute)
	tr.HandleVoiceState("g1", "u1", "lounge", "general")
	*now = now.Add(20 * time.Minute)
	tr.HandleVoiceState("g1", "u1", "general", "")

	require.Len(t, store.records, 1)
	assert.Equal(t, "general", store.records[0].ChannelID)
	assert.Equal(t, int64(20*60*1000), store.records[0].Duration)
}

func TestMoveIntoIdleClosesSession(t *testing.T) {
	store := &fakeStore{idle: []string{"lounge"}}
	tr, now := newTestTracker(store, nil, &fakeGuildInfo{})

	tr.HandleVoiceState("g1", "u1", "", "general")
	*now = now.Add(12 * time.Minute)
	tr.HandleVoiceState("g1", "u1", "general", "lounge")
	*now = now.Add(40 * time.Minute)
	tr.HandleVoiceState("g1", "u1", "lounge", "")

	// only the pre-idle interval counts
	require.Len(t, store.records, 1)
	assert.Equal(t, int64(12*60*1000), store.records[0].Duration)
}

func TestAfkChannelTreatedAsIdle(t *testing.T) {
	store := &fakeStore{}
	tr, _ := newTestTracker(store, nil, &fakeGuildInfo{afk: "afk-chan"})

	tr.HandleVoiceState("g1", "u1", "", "afk-chan")
	tr.HandleVoiceState("g1", "u1", "afk-chan", "")

	assert.Empty(t, store.records)
}

func TestDuplicateLeaveFlushesOnce(t *testing.T) {
	store := &fakeStore{}
	tr, now := newTestTracker(store, nil, &fakeGuildInfo{})

	tr.HandleVoiceState("g1", "u1", "", "general")
	*now = now.Add(time.Minute)
	tr.HandleVoiceState("g1", "u1", "general", "")
	tr.HandleVoiceState("g1", "u1", "general", "")

	assert.Len(t, store.records, 1)
}

func TestNoopTransitionIgnored(t *testing.T) {
	store := &fakeStore{}
	tr, _ := newTestTracker(store, nil, &fakeGuildInfo{})

	// same-channel event and a move with no live session are both no-ops
	tr.HandleVoiceState("g1", "u1", "general", "general")
	tr.HandleVoiceState("g1", "u1", "chanA", "chanB")
	tr.HandleVoiceState("g1", "u1", "chanB", "")

	assert.Empty(t, store.records)
	_, live := tr.Elapsed("g1", "u1")
	assert.False(t, live)
}

func TestResetRebasesLiveSessions(t *testing.T) {
	store := &fakeStore{}
	tr, now := newTestTracker(store, nil, &fakeGuildInfo{})

	tr.HandleVoiceState("g1", "u1", "", "general")
	*now = now.Add(45 * time.Minute)

	rebased, err := tr.ResetGuild("g1", func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, rebased)

	// the session survived but restarted from the reset instant
	*now = now.Add(10 * time.Minute)
	tr.HandleVoiceState("g1", "u1", "general", "")

	require.Len(t, store.records, 1)
	assert.Equal(t, int64(10*60*1000), store.records[0].Duration)
}

func TestResetFailedClearKeepsSessions(t *testing.T) {
	store := &fakeStore{}
	tr, now := newTestTracker(store, nil, &fakeGuildInfo{})

	tr.HandleVoiceState("g1", "u1", "", "general")
	*now = now.Add(30 * time.Minute)

	_, err := tr.ResetGuild("g1", func() error { return errors.New("db down") })
	require.Error(t, err)

	// not rebased: the full interval still flushes
	*now = now.Add(30 * time.Minute)
	tr.HandleVoiceState("g1", "u1", "general", "")

	require.Len(t, store.records, 1)
	assert.Equal(t, int64(60*60*1000), store.records[0].Duration)
}

func TestResetOnlyRebasesTargetGuild(t *testing.T) {
	store := &fakeStore{}
	tr, now := newTestTracker(store, nil, &fakeGuildInfo{})

	tr.HandleVoiceState("g1", "u1", "", "general")
	tr.HandleVoiceState("g2", "u1", "", "general")
	*now = now.Add(20 * time.Minute)

	rebased, err := tr.ResetGuild("g1", func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, rebased)

	elapsed, live := tr.Elapsed("g2", "u1")
	require.True(t, live)
	assert.Equal(t, 20*time.Minute, elapsed)
}

func TestElapsedReportsLiveSession(t *testing.T) {
	store := &fakeStore{}
	tr, now := newTestTracker(store, nil, &fakeGuildInfo{})

	_, live := tr.Elapsed("g1", "u1")
	assert.False(t, live)

	tr.HandleVoiceState("g1", "u1", "", "general")
	*now = now.Add(7 * time.Minute)

	elapsed, live := tr.Elapsed("g1", "u1")
	require.True(t, live)
	assert.Equal(t, 7*time.Minute, elapsed)
}

func TestIdleLookupFailsOpen(t *testing.T) {
	store := &fakeStore{idleErr: errors.New("db down")}
	tr, now := newTestTracker(store, nil, &fakeGuildInfo{})

	tr.HandleVoiceState("g1", "u1", "", "general")
	*now = now.Add(time.Minute)
	tr.HandleVoiceState("g1", "u1", "general", "")

	// time still accrues when the idle set cannot be loaded
	assert.Len(t, store.records, 1)
}

func TestInvalidateIdleChannels(t *testing.T) {
	store := &fakeStore{idle: []string{"lounge"}}
	tr, _ := newTestTracker(store, nil, &fakeGuildInfo{})

	tr.HandleVoiceState("g1", "u1", "", "lounge")
	_, live := tr.Elapsed("g1", "u1")
	require.False(t, live)
	tr.HandleVoiceState("g1", "u1", "lounge", "")

	store.idle = nil
	tr.InvalidateIdleChannels("g1")

	tr.HandleVoiceState("g1", "u1", "", "lounge")
	_, live = tr.Elapsed("g1", "u1")
	assert.True(t, live)
}
