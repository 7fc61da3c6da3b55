package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/learnhub/internal/application/storecall"
	"github.com/alem-hub/learnhub/internal/domain/catalog"
	"github.com/alem-hub/learnhub/internal/domain/shared"
	"github.com/alem-hub/learnhub/internal/domain/streak"
	"github.com/alem-hub/learnhub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/learnhub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// FIXTURE
// ══════════════════════════════════════════════════════════════════════════════

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(ev shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) count(t shared.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.EventType() == t {
			n++
		}
	}
	return n
}

type fixture struct {
	store       *memory.Store
	clock       *timeutil.FixedClock
	events      *recordingPublisher
	enrollments *EnrollmentService
	progress    *ContentProgressService
	streaks     *StreakService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.New(),
		clock:  timeutil.NewFixedClock(time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)),
		events: &recordingPublisher{},
	}
	deps := Deps{
		Calendar:           timeutil.NewCalendar(time.UTC, f.clock),
		Publisher:          f.events,
		Store:              storecall.Immediate(3),
		MaxConflictRetries: 100,
	}
	f.enrollments = NewEnrollmentService(f.store.Enrollments(), f.store.Progress(), f.store.Catalog(), deps)
	f.streaks = NewStreakService(f.store.Streaks(), nil, deps)
	f.progress = NewContentProgressService(f.store.Progress(), f.store.Catalog(), f.enrollments, f.streaks, 90, deps)
	return f
}

func (f *fixture) seedModule(t *testing.T, types ...catalog.ContentType) (string, []string) {
	t.Helper()
	ctx := context.Background()
	moduleID := shared.NewID()
	require.NoError(t, f.store.Catalog().SaveModule(ctx, &catalog.Module{ID: moduleID, Title: "Go basics", Published: true}))

	ids := make([]string, 0, len(types))
	for i, typ := range types {
		c := &catalog.Content{ID: shared.NewID(), ModuleID: moduleID, Title: fmt.Sprintf("item %d", i+1), Type: typ, Position: i}
		require.NoError(t, f.store.Catalog().SaveContent(ctx, c))
		ids = append(ids, c.ID)
	}
	return moduleID, ids
}

func documents(n int) []catalog.ContentType {
	out := make([]catalog.ContentType, n)
	for i := range out {
		out[i] = catalog.ContentDocument
	}
	return out
}

var transientFailure = shared.NewTransientError("test", errors.New("connection reset by peer"))

// ══════════════════════════════════════════════════════════════════════════════
// ENROLLMENT
// ══════════════════════════════════════════════════════════════════════════════

func TestEnroll_SecondCallFailsAlreadyEnrolled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, _ := f.seedModule(t, documents(3)...)

	e, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)
	assert.Equal(t, 3, e.TotalSections)
	assert.Equal(t, 0, e.CompletedSections)
	assert.Equal(t, int64(1), e.Version)

	_, err = f.enrollments.Enroll(ctx, "user-1", moduleID)
	assert.ErrorIs(t, err, shared.ErrAlreadyEnrolled)

	list, err := f.enrollments.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, f.events.count(shared.EventEnrollmentCreated))
}

func TestEnroll_UnknownModule(t *testing.T) {
	f := newFixture(t)

	_, err := f.enrollments.Enroll(context.Background(), "user-1", shared.NewID())
	assert.ErrorIs(t, err, shared.ErrModuleNotFound)
}

func TestEnroll_PausedBlocksNewEnrollment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, _ := f.seedModule(t, documents(1)...)

	e, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)
	_, err = f.enrollments.Pause(ctx, "user-1", e.ID)
	require.NoError(t, err)

	_, err = f.enrollments.Enroll(ctx, "user-1", moduleID)
	assert.ErrorIs(t, err, shared.ErrAlreadyEnrolled)
}

func TestEnrollment_QuarterStepsThenExplicitComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, contents := f.seedModule(t, documents(4)...)

	e, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)

	_, err = f.progress.MarkComplete(ctx, "user-1", contents[0], nil, nil)
	require.NoError(t, err)
	got, err := f.enrollments.Get(ctx, "user-1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, got.ProgressPercentage)

	for _, id := range contents[1:3] {
		_, err = f.progress.MarkComplete(ctx, "user-1", id, nil, nil)
		require.NoError(t, err)
	}
	got, err = f.enrollments.Get(ctx, "user-1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, 75, got.ProgressPercentage)
	assert.Equal(t, 3, got.CompletedSections)

	done, err := f.enrollments.Complete(ctx, "user-1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", string(done.Status))
	assert.Equal(t, 100, done.ProgressPercentage)
	assert.Equal(t, 3, done.CompletedSections)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, 1, f.events.count(shared.EventModuleCompleted))
}

func TestEnrollment_PauseResumeAreIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, _ := f.seedModule(t, documents(2)...)
	e, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)

	first, err := f.enrollments.Pause(ctx, "user-1", e.ID)
	require.NoError(t, err)
	second, err := f.enrollments.Pause(ctx, "user-1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, "paused", string(second.Status))

	_, err = f.enrollments.Resume(ctx, "user-1", e.ID)
	require.NoError(t, err)
	resumed, err := f.enrollments.Resume(ctx, "user-1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, "active", string(resumed.Status))

	assert.Equal(t, 2, f.events.count(shared.EventEnrollmentStatusChanged))
}

func TestEnrollment_InvalidTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, _ := f.seedModule(t, documents(2)...)
	e, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)
	_, err = f.enrollments.Complete(ctx, "user-1", e.ID)
	require.NoError(t, err)

	_, err = f.enrollments.Pause(ctx, "user-1", e.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = f.enrollments.Resume(ctx, "user-1", e.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = f.enrollments.Complete(ctx, "user-1", e.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
	_, err = f.enrollments.Unenroll(ctx, "user-1", e.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestEnrollment_OtherUserIsForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, _ := f.seedModule(t, documents(1)...)
	e, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)

	_, err = f.enrollments.Pause(ctx, "user-2", e.ID)
	assert.ErrorIs(t, err, shared.ErrAccessForbidden)
	_, err = f.enrollments.Get(ctx, "user-2", e.ID)
	assert.ErrorIs(t, err, shared.ErrAccessForbidden)
}

func TestEnrollment_UnknownID(t *testing.T) {
	f := newFixture(t)

	_, err := f.enrollments.Pause(context.Background(), "user-1", shared.NewID())
	assert.ErrorIs(t, err, shared.ErrEnrollmentNotFound)
}

func TestUnenroll_RejectsProgressUntilReEnroll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, contents := f.seedModule(t, documents(2)...)
	e, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)

	dropped, err := f.enrollments.Unenroll(ctx, "user-1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, "dropped", string(dropped.Status))

	again, err := f.enrollments.Unenroll(ctx, "user-1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, dropped.Version, again.Version)

	_, err = f.progress.MarkStarted(ctx, "user-1", contents[0])
	assert.ErrorIs(t, err, shared.ErrNotEnrolled)

	fresh, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)
	assert.NotEqual(t, e.ID, fresh.ID)
	assert.Equal(t, 0, fresh.CompletedSections)

	_, err = f.progress.MarkStarted(ctx, "user-1", contents[0])
	assert.NoError(t, err)
}

func TestRecomputeProgress_IsIdempotentAndRefreshesTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, contents := f.seedModule(t, documents(4)...)
	_, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)
	_, err = f.progress.MarkComplete(ctx, "user-1", contents[0], nil, nil)
	require.NoError(t, err)

	// The authoring side removes one item; the recount picks up the new total.
	require.NoError(t, f.store.Catalog().DeleteContent(ctx, contents[3]))

	first, err := f.enrollments.RecomputeProgress(ctx, "user-1", moduleID)
	require.NoError(t, err)
	second, err := f.enrollments.RecomputeProgress(ctx, "user-1", moduleID)
	require.NoError(t, err)

	assert.Equal(t, 3, first.TotalSections)
	assert.Equal(t, 33, first.ProgressPercentage)
	assert.Equal(t, first.CompletedSections, second.CompletedSections)
	assert.Equal(t, first.TotalSections, second.TotalSections)
	assert.Equal(t, first.ProgressPercentage, second.ProgressPercentage)
}

func TestRecomputeProgress_FullDoesNotAutoComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, contents := f.seedModule(t, documents(2)...)
	e, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)

	for _, id := range contents {
		_, err = f.progress.MarkComplete(ctx, "user-1", id, nil, nil)
		require.NoError(t, err)
	}

	got, err := f.enrollments.Get(ctx, "user-1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, "active", string(got.Status))
	assert.Equal(t, 100, got.ProgressPercentage)
	assert.Nil(t, got.CompletedAt)
	assert.Equal(t, 1, f.events.count(shared.EventModuleContentFinished))
	assert.Equal(t, 0, f.events.count(shared.EventModuleCompleted))
}

func TestRecomputeProgress_NoOpenEnrollment(t *testing.T) {
	f := newFixture(t)
	moduleID, _ := f.seedModule(t, documents(1)...)

	_, err := f.enrollments.RecomputeProgress(context.Background(), "user-1", moduleID)
	assert.ErrorIs(t, err, shared.ErrEnrollmentNotFound)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTENT PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

func TestMarkStarted_RequiresActiveEnrollment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, contents := f.seedModule(t, documents(1)...)

	_, err := f.progress.MarkStarted(ctx, "user-1", contents[0])
	assert.ErrorIs(t, err, shared.ErrNotEnrolled)
	assert.Equal(t, shared.CodeNotEnrolled, shared.CodeOf(err))

	e, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)
	_, err = f.enrollments.Pause(ctx, "user-1", e.ID)
	require.NoError(t, err)

	_, err = f.progress.MarkStarted(ctx, "user-1", contents[0])
	assert.ErrorIs(t, err, shared.ErrNotEnrolled)
}

func TestMarkStarted_IsIdempotentAndNeverRegresses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, contents := f.seedModule(t, documents(1)...)
	_, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)

	started, err := f.progress.MarkStarted(ctx, "user-1", contents[0])
	require.NoError(t, err)
	assert.Equal(t, "in-progress", string(started.Status))
	require.NotNil(t, started.StartedAt)

	f.clock.Advance(time.Minute)
	again, err := f.progress.MarkStarted(ctx, "user-1", contents[0])
	require.NoError(t, err)
	assert.Equal(t, started.Version, again.Version)
	assert.True(t, started.StartedAt.Equal(*again.StartedAt))

	_, err = f.progress.MarkComplete(ctx, "user-1", contents[0], nil, nil)
	require.NoError(t, err)
	after, err := f.progress.MarkStarted(ctx, "user-1", contents[0])
	require.NoError(t, err)
	assert.Equal(t, "completed", string(after.Status))
	assert.NotNil(t, after.CompletedAt)
}

func TestMarkComplete_UnknownContent(t *testing.T) {
	f := newFixture(t)

	_, err := f.progress.MarkComplete(context.Background(), "user-1", shared.NewID(), nil, nil)
	assert.ErrorIs(t, err, shared.ErrContentNotFound)
}

func TestMarkComplete_RepeatUpdatesScoreOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, contents := f.seedModule(t, catalog.ContentLab)
	_, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)

	score, maxScore := 6.0, 10.0
	first, err := f.progress.MarkComplete(ctx, "user-1", contents[0], &score, &maxScore)
	require.NoError(t, err)
	require.NotNil(t, first.CompletedAt)

	f.clock.Advance(time.Hour)
	better := 9.0
	second, err := f.progress.MarkComplete(ctx, "user-1", contents[0], &better, &maxScore)
	require.NoError(t, err)

	assert.True(t, first.CompletedAt.Equal(*second.CompletedAt))
	assert.True(t, first.StartedAt.Equal(*second.StartedAt))
	require.NotNil(t, second.Score)
	assert.Equal(t, 9.0, *second.Score)
	assert.Equal(t, 1, f.events.count(shared.EventContentCompleted))
}

func TestMarkComplete_RejectsInvalidScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, contents := f.seedModule(t, catalog.ContentGame)
	_, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)

	score, maxScore := 12.0, 10.0
	_, err = f.progress.MarkComplete(ctx, "user-1", contents[0], &score, &maxScore)
	assert.True(t, shared.IsValidation(err))

	_, err = f.progress.MarkComplete(ctx, "user-1", contents[0], &score, nil)
	assert.True(t, shared.IsValidation(err))
}

func TestUpdateProgress_VideoCrossesThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, contents := f.seedModule(t, catalog.ContentVideo)
	_, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)

	p, err := f.progress.UpdateProgress(ctx, "user-1", contents[0], 40)
	require.NoError(t, err)
	assert.Equal(t, "in-progress", string(p.Status))
	assert.Nil(t, p.CompletedAt)

	f.clock.Advance(time.Minute)
	p, err = f.progress.UpdateProgress(ctx, "user-1", contents[0], 85)
	require.NoError(t, err)
	assert.Equal(t, 85, p.ProgressPercentage)
	assert.Nil(t, p.CompletedAt)

	f.clock.Advance(time.Minute)
	crossing := f.clock.Now()
	p, err = f.progress.UpdateProgress(ctx, "user-1", contents[0], 92)
	require.NoError(t, err)
	assert.Equal(t, "completed", string(p.Status))
	assert.Equal(t, 100, p.ProgressPercentage)
	require.NotNil(t, p.CompletedAt)
	assert.True(t, crossing.Equal(*p.CompletedAt))

	stored, err := f.progress.Get(ctx, "user-1", contents[0])
	require.NoError(t, err)
	assert.Equal(t, "completed", string(stored.Status))
}

func TestUpdateProgress_OutOfOrderKeepsMaximum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, contents := f.seedModule(t, catalog.ContentVideo)
	_, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)

	for _, pct := range []int{70, 30, -5, 55} {
		_, err = f.progress.UpdateProgress(ctx, "user-1", contents[0], pct)
		require.NoError(t, err)
	}
	p, err := f.progress.Get(ctx, "user-1", contents[0])
	require.NoError(t, err)
	assert.Equal(t, 70, p.ProgressPercentage)

	_, err = f.progress.UpdateProgress(ctx, "user-1", contents[0], 150)
	require.NoError(t, err)
	p, err = f.progress.UpdateProgress(ctx, "user-1", contents[0], 10)
	require.NoError(t, err)
	assert.Equal(t, "completed", string(p.Status))
	assert.Equal(t, 100, p.ProgressPercentage)
}

func TestUpdateProgress_ConcurrentWritersMergeToMaximum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, contents := f.seedModule(t, catalog.ContentVideo, catalog.ContentDocument)
	_, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 9)
	for i := 0; i < 9; i++ {
		pct := 5 + i*10
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.progress.UpdateProgress(ctx, "user-1", contents[0], pct)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	p, err := f.progress.Get(ctx, "user-1", contents[0])
	require.NoError(t, err)
	assert.Equal(t, 85, p.ProgressPercentage)
	assert.Equal(t, "in-progress", string(p.Status))
}

func TestConcurrentCompletionsRecountEveryItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, contents := f.seedModule(t, documents(6)...)
	e, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, id := range contents {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.progress.MarkComplete(ctx, "user-1", id, nil, nil)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	got, err := f.enrollments.Get(ctx, "user-1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.CompletedSections)
	assert.Equal(t, 100, got.ProgressPercentage)
}

func TestTransientStoreFailureBecomesUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, contents := f.seedModule(t, documents(1)...)
	_, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)

	var mu sync.Mutex
	calls := 0
	f.store.SetFault(func(op string) error {
		if op != "GetContent" {
			return nil
		}
		mu.Lock()
		calls++
		mu.Unlock()
		return transientFailure
	})

	_, err = f.progress.MarkStarted(ctx, "user-1", contents[0])
	assert.ErrorIs(t, err, shared.ErrUnavailable)
	assert.Equal(t, shared.CodeUnavailable, shared.CodeOf(err))
	assert.Equal(t, 3, calls)
}

func TestTransientFailureIsRetriedTransparently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, contents := f.seedModule(t, documents(1)...)
	_, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)

	failures := 2
	f.store.SetFault(func(op string) error {
		if op == "CreateProgress" && failures > 0 {
			failures--
			return transientFailure
		}
		return nil
	})

	p, err := f.progress.MarkStarted(ctx, "user-1", contents[0])
	require.NoError(t, err)
	assert.Equal(t, "in-progress", string(p.Status))
}

func TestRetriedMarkCompleteHealsFailedRecount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, contents := f.seedModule(t, documents(2)...)
	e, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)

	f.store.SetFault(func(op string) error {
		if op == "UpdateEnrollment" {
			return transientFailure
		}
		return nil
	})
	_, err = f.progress.MarkComplete(ctx, "user-1", contents[0], nil, nil)
	assert.ErrorIs(t, err, shared.ErrUnavailable)

	f.store.SetFault(nil)
	_, err = f.progress.MarkComplete(ctx, "user-1", contents[0], nil, nil)
	require.NoError(t, err)

	got, err := f.enrollments.Get(ctx, "user-1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CompletedSections)
	assert.Equal(t, 50, got.ProgressPercentage)
}

func TestRetriedUpdateProgressHealsFailedRecount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, contents := f.seedModule(t, catalog.ContentVideo, catalog.ContentDocument)
	e, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)

	f.store.SetFault(func(op string) error {
		if op == "UpdateEnrollment" {
			return transientFailure
		}
		return nil
	})
	_, err = f.progress.UpdateProgress(ctx, "user-1", contents[0], 95)
	assert.ErrorIs(t, err, shared.ErrUnavailable)

	f.store.SetFault(nil)
	p, err := f.progress.UpdateProgress(ctx, "user-1", contents[0], 95)
	require.NoError(t, err)
	assert.True(t, p.IsCompleted())

	got, err := f.enrollments.Get(ctx, "user-1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CompletedSections)
	assert.Equal(t, 50, got.ProgressPercentage)
	assert.Equal(t, 1, f.events.count(shared.EventContentCompleted))
}

func TestContentCompletedSurvivesFailedRecount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, contents := f.seedModule(t, documents(2)...)
	_, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)

	f.store.SetFault(func(op string) error {
		if op == "UpdateEnrollment" {
			return transientFailure
		}
		return nil
	})
	_, err = f.progress.MarkComplete(ctx, "user-1", contents[0], nil, nil)
	assert.ErrorIs(t, err, shared.ErrUnavailable)
	assert.Equal(t, 1, f.events.count(shared.EventContentCompleted))

	f.store.SetFault(nil)
	_, err = f.progress.MarkComplete(ctx, "user-1", contents[0], nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.events.count(shared.EventContentCompleted))
}

func TestConflictRetryRechecksEnrollment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, contents := f.seedModule(t, catalog.ContentVideo)
	e, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)
	_, err = f.progress.MarkStarted(ctx, "user-1", contents[0])
	require.NoError(t, err)

	// The user unenrolls while the progress write is in flight.
	f.store.SetFault(func(op string) error {
		if op != "UpdateProgress" {
			return nil
		}
		f.store.SetFault(nil)
		_, err := f.enrollments.Unenroll(ctx, "user-1", e.ID)
		require.NoError(t, err)
		return shared.ErrVersionConflict
	})

	_, err = f.progress.UpdateProgress(ctx, "user-1", contents[0], 50)
	assert.ErrorIs(t, err, shared.ErrNotEnrolled)

	p, err := f.progress.Get(ctx, "user-1", contents[0])
	require.NoError(t, err)
	assert.Equal(t, 0, p.ProgressPercentage)
}

type failingStreaks struct{}

func (failingStreaks) RecordActivity(context.Context, string) (streak.Snapshot, error) {
	return streak.Snapshot{}, errors.New("streak store down")
}

func TestStreakFailureDoesNotFailProgressWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, contents := f.seedModule(t, documents(1)...)
	_, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)

	svc := NewContentProgressService(f.store.Progress(), f.store.Catalog(), f.enrollments, failingStreaks{}, 0, Deps{
		Store: storecall.Immediate(1),
	})
	assert.Equal(t, 90, svc.Threshold())

	p, err := svc.MarkComplete(ctx, "user-1", contents[0], nil, nil)
	require.NoError(t, err)
	assert.True(t, p.IsCompleted())
}

func TestProgressWritesRecordStreakActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	moduleID, contents := f.seedModule(t, documents(1)...)
	_, err := f.enrollments.Enroll(ctx, "user-1", moduleID)
	require.NoError(t, err)

	_, err = f.progress.MarkStarted(ctx, "user-1", contents[0])
	require.NoError(t, err)

	st, err := f.store.Streaks().Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.CurrentStreak)
}
