package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/learnhub/internal/application/storecall"
	"github.com/alem-hub/learnhub/internal/domain/shared"
	"github.com/alem-hub/learnhub/internal/domain/streak"
	"github.com/alem-hub/learnhub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/learnhub/pkg/timeutil"
)

type memoryGuard struct {
	mu    sync.Mutex
	days  map[string]bool
	marks int
}

func newMemoryGuard() *memoryGuard {
	return &memoryGuard{days: make(map[string]bool)}
}

func (g *memoryGuard) key(userID string, day time.Time) string {
	return userID + ":" + day.Format(timeutil.FormatDate)
}

func (g *memoryGuard) Seen(_ context.Context, userID string, day time.Time) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.days[g.key(userID, day)], nil
}

func (g *memoryGuard) Mark(_ context.Context, userID string, day time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.days[g.key(userID, day)] = true
	g.marks++
	return nil
}

func newStreakService(t *testing.T, guard DayGuard) (*StreakService, *memory.Store, *timeutil.FixedClock, *recordingPublisher) {
	t.Helper()
	store := memory.New()
	clock := timeutil.NewFixedClock(time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC))
	events := &recordingPublisher{}
	svc := NewStreakService(store.Streaks(), guard, Deps{
		Calendar:           timeutil.NewCalendar(time.UTC, clock),
		Publisher:          events,
		Store:              storecall.Immediate(3),
		MaxConflictRetries: 50,
	})
	return svc, store, clock, events
}

func TestRecordActivity_ConsecutiveDays(t *testing.T) {
	svc, _, clock, events := newStreakService(t, nil)
	ctx := context.Background()

	snap, err := svc.RecordActivity(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.CurrentStreak)
	assert.Equal(t, streak.StatusActive, snap.Status)

	clock.AdvanceDays(1)
	_, err = svc.RecordActivity(ctx, "user-1")
	require.NoError(t, err)

	clock.AdvanceDays(1)
	snap, err = svc.RecordActivity(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, snap.CurrentStreak)
	assert.Equal(t, 3, snap.LongestStreak)
	assert.Equal(t, 3, events.count(shared.EventStreakUpdated))
}

func TestRecordActivity_SameDayIsIdempotent(t *testing.T) {
	svc, store, clock, events := newStreakService(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		snap, err := svc.RecordActivity(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, 1, snap.CurrentStreak)
		clock.Advance(time.Minute)
	}

	st, err := store.Streaks().Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Version)
	assert.Equal(t, 1, events.count(shared.EventStreakUpdated))
}

func TestRecordActivity_GapRestartsKeepingLongest(t *testing.T) {
	svc, _, clock, _ := newStreakService(t, nil)
	ctx := context.Background()

	_, err := svc.RecordActivity(ctx, "user-1")
	require.NoError(t, err)
	clock.AdvanceDays(1)
	_, err = svc.RecordActivity(ctx, "user-1")
	require.NoError(t, err)

	clock.AdvanceDays(3)
	snap, err := svc.RecordActivity(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.CurrentStreak)
	assert.Equal(t, 2, snap.LongestStreak)
}

func TestRecordActivity_ConcurrentFirstDay(t *testing.T) {
	svc, store, _, _ := newStreakService(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordActivity(ctx, "user-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st, err := store.Streaks().Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.CurrentStreak)
	assert.Equal(t, 1, st.LongestStreak)
}

func TestRecordActivity_GuardShortCircuitsRepeats(t *testing.T) {
	guard := newMemoryGuard()
	svc, store, clock, _ := newStreakService(t, guard)
	ctx := context.Background()

	_, err := svc.RecordActivity(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, guard.marks)

	// A guarded repeat must not touch the write path at all.
	store.SetFault(func(op string) error {
		if op == "UpdateStreak" || op == "CreateStreak" {
			return shared.NewTransientError(op, assert.AnError)
		}
		return nil
	})
	snap, err := svc.RecordActivity(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.CurrentStreak)
	assert.Equal(t, 1, guard.marks)

	store.SetFault(nil)
	clock.AdvanceDays(1)
	snap, err = svc.RecordActivity(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.CurrentStreak)
	assert.Equal(t, 2, guard.marks)
}

func TestRecordActivity_FailedWriteIsNotMarked(t *testing.T) {
	guard := newMemoryGuard()
	svc, store, _, _ := newStreakService(t, guard)
	ctx := context.Background()

	store.SetFault(func(op string) error {
		if op == "CreateStreak" {
			return shared.NewTransientError(op, assert.AnError)
		}
		return nil
	})
	_, err := svc.RecordActivity(ctx, "user-1")
	assert.ErrorIs(t, err, shared.ErrUnavailable)
	assert.Equal(t, 0, guard.marks)

	store.SetFault(nil)
	snap, err := svc.RecordActivity(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.CurrentStreak)
}

func TestRecordActivity_RequiresUser(t *testing.T) {
	svc, _, _, _ := newStreakService(t, nil)

	_, err := svc.RecordActivity(context.Background(), "")
	assert.True(t, shared.IsValidation(err))
}
