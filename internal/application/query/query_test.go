package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/learnhub/internal/application/storecall"
	"github.com/alem-hub/learnhub/internal/domain/catalog"
	"github.com/alem-hub/learnhub/internal/domain/enrollment"
	"github.com/alem-hub/learnhub/internal/domain/progress"
	"github.com/alem-hub/learnhub/internal/domain/shared"
	"github.com/alem-hub/learnhub/internal/domain/streak"
	"github.com/alem-hub/learnhub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/learnhub/pkg/timeutil"
)

var day0 = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type env struct {
	t        *testing.T
	store    *memory.Store
	clock    *timeutil.FixedClock
	stats    *StatisticsAggregator
	progress *ProgressQueries
	streaks  *StreakQueries
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.New()
	clock := timeutil.NewFixedClock(day0)
	deps := Deps{Calendar: timeutil.NewCalendar(time.UTC, clock), Store: storecall.Immediate(2)}
	stats := NewStatisticsAggregator(store.Enrollments(), store.Progress(), store.Catalog(), deps)
	return &env{
		t:        t,
		store:    store,
		clock:    clock,
		stats:    stats,
		progress: NewProgressQueries(store.Enrollments(), store.Progress(), store.Catalog(), stats, deps),
		streaks:  NewStreakQueries(store.Streaks(), deps),
	}
}

func (e *env) module(title string, types ...catalog.ContentType) (string, []catalog.Content) {
	ctx := context.Background()
	id := shared.NewID()
	require.NoError(e.t, e.store.Catalog().SaveModule(ctx, &catalog.Module{ID: id, Title: title, Published: true}))
	contents := make([]catalog.Content, 0, len(types))
	for i, typ := range types {
		c := catalog.Content{ID: shared.NewID(), ModuleID: id, Title: title, Type: typ, Position: i}
		require.NoError(e.t, e.store.Catalog().SaveContent(ctx, &c))
		contents = append(contents, c)
	}
	return id, contents
}

func (e *env) enroll(userID, moduleID string, status enrollment.Status, completed, total int) *enrollment.Enrollment {
	en := enrollment.New(shared.NewID(), userID, moduleID, total, e.clock.Now())
	en.ApplyCount(completed, total, e.clock.Now())
	if status == enrollment.StatusCompleted {
		require.NoError(e.t, en.Complete(e.clock.Now()))
	} else {
		en.Status = status
	}
	require.NoError(e.t, e.store.Enrollments().Create(context.Background(), en))
	e.clock.Advance(time.Second)
	return en
}

func (e *env) complete(userID string, c catalog.Content, score, maxScore *float64) {
	p := progress.New(shared.NewID(), userID, c, e.clock.Now())
	p.Complete(score, maxScore, e.clock.Now())
	require.NoError(e.t, e.store.Progress().Create(context.Background(), p))
}

func (e *env) start(userID string, c catalog.Content) {
	p := progress.New(shared.NewID(), userID, c, e.clock.Now())
	p.Start(e.clock.Now())
	require.NoError(e.t, e.store.Progress().Create(context.Background(), p))
}

func ptr(f float64) *float64 { return &f }

// ══════════════════════════════════════════════════════════════════════════════
// STATISTICS
// ══════════════════════════════════════════════════════════════════════════════

func TestModuleStats(t *testing.T) {
	e := newEnv(t)
	moduleID, _ := e.module("Go", catalog.ContentDocument, catalog.ContentDocument)

	e.enroll("u1", moduleID, enrollment.StatusActive, 1, 2)    // 50
	e.enroll("u2", moduleID, enrollment.StatusCompleted, 2, 2) // 100
	e.enroll("u3", moduleID, enrollment.StatusPaused, 0, 2)    // 0
	e.enroll("u4", moduleID, enrollment.StatusDropped, 1, 8)   // 13

	stats, err := e.stats.ModuleStats(context.Background(), moduleID)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.TotalEnrollments)
	assert.Equal(t, map[string]int{"active": 1, "paused": 1, "completed": 1, "dropped": 1}, stats.ByStatus)
	// (50 + 100 + 0 + 13) / 4 = 40.75
	assert.Equal(t, 41, stats.AverageProgress)
	assert.Equal(t, 25, stats.CompletionRate)
}

func TestModuleStats_EmptyAndUnknown(t *testing.T) {
	e := newEnv(t)
	moduleID, _ := e.module("Empty")

	stats, err := e.stats.ModuleStats(context.Background(), moduleID)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalEnrollments)
	assert.Equal(t, 0, stats.AverageProgress)
	assert.Equal(t, 0, stats.CompletionRate)
	assert.Len(t, stats.ByStatus, 4)

	_, err = e.stats.ModuleStats(context.Background(), shared.NewID())
	assert.ErrorIs(t, err, shared.ErrModuleNotFound)
}

func TestUserOverall_ExcludesDropped(t *testing.T) {
	e := newEnv(t)
	m1, _ := e.module("A", catalog.ContentDocument)
	m2, _ := e.module("B", catalog.ContentDocument)
	m3, _ := e.module("C", catalog.ContentDocument)
	m4, _ := e.module("D", catalog.ContentDocument)

	e.enroll("u1", m1, enrollment.StatusCompleted, 1, 1)
	e.enroll("u1", m2, enrollment.StatusActive, 1, 2)
	e.enroll("u1", m3, enrollment.StatusPaused, 1, 3)
	e.enroll("u1", m4, enrollment.StatusDropped, 1, 1)

	overall, err := e.stats.UserOverall(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, overall.TotalModules)
	assert.Equal(t, 1, overall.CompletedModules)
	assert.Equal(t, 2, overall.InProgressModules)
	// (100 + 50 + 33) / 3 = 61
	assert.Equal(t, 61, overall.OverallCompletionPercentage)
}

func TestContentTypeStats_NormalisesScoresPerItem(t *testing.T) {
	e := newEnv(t)
	moduleID, contents := e.module("Labs",
		catalog.ContentLab, catalog.ContentLab, catalog.ContentLab, catalog.ContentVideo, catalog.ContentVideo)
	e.enroll("u1", moduleID, enrollment.StatusActive, 0, len(contents))

	e.complete("u1", contents[0], ptr(5), ptr(10))   // 50%
	e.complete("u1", contents[1], ptr(90), ptr(100)) // 90%
	e.start("u1", contents[2])
	e.complete("u1", contents[3], nil, nil)

	stats, err := e.stats.ContentTypeStats(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, stats, 4)

	byType := make(map[string]ContentTypeStatistics)
	for _, s := range stats {
		byType[s.Type] = s
	}

	lab := byType["lab"]
	assert.Equal(t, 3, lab.Total)
	assert.Equal(t, 2, lab.Completed)
	assert.Equal(t, 1, lab.InProgress)
	assert.Equal(t, 67, lab.CompletionRate)
	require.NotNil(t, lab.AverageScore)
	assert.Equal(t, 70, *lab.AverageScore)

	video := byType["video"]
	assert.Equal(t, 2, video.Total)
	assert.Equal(t, 1, video.Completed)
	assert.Equal(t, 50, video.CompletionRate)
	assert.Nil(t, video.AverageScore)

	assert.Equal(t, 0, byType["game"].Total)
}

func TestContentTypeStats_IgnoresDroppedModules(t *testing.T) {
	e := newEnv(t)
	kept, _ := e.module("Kept", catalog.ContentGame)
	dropped, _ := e.module("Dropped", catalog.ContentGame, catalog.ContentGame)
	e.enroll("u1", kept, enrollment.StatusActive, 0, 1)
	e.enroll("u1", dropped, enrollment.StatusDropped, 0, 2)

	stats, err := e.stats.ContentTypeStats(context.Background(), "u1")
	require.NoError(t, err)
	for _, s := range stats {
		if s.Type == "game" {
			assert.Equal(t, 1, s.Total)
		}
	}
}

func TestStatistics_StoreOutageIsUnavailable(t *testing.T) {
	e := newEnv(t)
	moduleID, _ := e.module("Go", catalog.ContentDocument)
	e.enroll("u1", moduleID, enrollment.StatusActive, 0, 1)

	e.store.SetFault(func(op string) error {
		if op == "ListContents" {
			return shared.NewTransientError(op, errors.New("i/o timeout"))
		}
		return nil
	})

	_, err := e.stats.ContentTypeStats(context.Background(), "u1")
	assert.ErrorIs(t, err, shared.ErrUnavailable)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS VIEWS
// ══════════════════════════════════════════════════════════════════════════════

func TestModuleProgress(t *testing.T) {
	e := newEnv(t)
	moduleID, contents := e.module("Go", catalog.ContentVideo, catalog.ContentLab, catalog.ContentDocument)
	e.enroll("u1", moduleID, enrollment.StatusActive, 1, 3)
	e.complete("u1", contents[1], ptr(8), ptr(10))
	e.start("u1", contents[0])

	res, err := e.progress.ModuleProgress(context.Background(), GetModuleProgressQuery{
		Viewer:   Viewer{UserID: "u1"},
		UserID:   "u1",
		ModuleID: moduleID,
	})
	require.NoError(t, err)

	assert.Equal(t, "Go", res.Module.Title)
	require.NotNil(t, res.Enrollment)
	assert.Equal(t, "active", res.Enrollment.Status)
	require.Len(t, res.Content, 3)
	assert.Equal(t, "in-progress", res.Content[0].Status)
	assert.Equal(t, "completed", res.Content[1].Status)
	assert.Equal(t, "not-started", res.Content[2].Status)
	assert.Equal(t, 3, res.Statistics.TotalContent)
	assert.Equal(t, 1, res.Statistics.CompletedContent)
	assert.Equal(t, 1, res.Statistics.InProgressContent)
	assert.Equal(t, 33, res.Statistics.ProgressPercentage)
	require.NotNil(t, res.Statistics.AverageScore)
	assert.Equal(t, 80, *res.Statistics.AverageScore)
}

func TestModuleProgress_NotEnrolledHasNilEnrollment(t *testing.T) {
	e := newEnv(t)
	moduleID, _ := e.module("Go", catalog.ContentVideo)

	res, err := e.progress.ModuleProgress(context.Background(), GetModuleProgressQuery{
		Viewer: Viewer{UserID: "u1"}, UserID: "u1", ModuleID: moduleID,
	})
	require.NoError(t, err)
	assert.Nil(t, res.Enrollment)
	assert.Equal(t, 0, res.Statistics.ProgressPercentage)
}

func TestProgressViews_Authorization(t *testing.T) {
	e := newEnv(t)
	moduleID, _ := e.module("Go", catalog.ContentVideo)
	ctx := context.Background()

	_, err := e.progress.ModuleProgress(ctx, GetModuleProgressQuery{
		Viewer: Viewer{UserID: "u2"}, UserID: "u1", ModuleID: moduleID,
	})
	assert.ErrorIs(t, err, shared.ErrAccessForbidden)

	_, err = e.progress.Overview(ctx, GetOverviewQuery{Viewer: Viewer{UserID: "u2"}, UserID: "u1"})
	assert.ErrorIs(t, err, shared.ErrAccessForbidden)

	_, err = e.progress.Overview(ctx, GetOverviewQuery{Viewer: Viewer{UserID: "admin", Admin: true}, UserID: "u1"})
	assert.NoError(t, err)

	_, err = e.progress.Overview(ctx, GetOverviewQuery{UserID: "u1"})
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestOverview(t *testing.T) {
	e := newEnv(t)
	m1, c1 := e.module("Alpha", catalog.ContentVideo, catalog.ContentVideo)
	m2, _ := e.module("Beta", catalog.ContentLab)
	m3, _ := e.module("Gamma", catalog.ContentLab)
	e.enroll("u1", m1, enrollment.StatusActive, 1, 2)
	e.enroll("u1", m2, enrollment.StatusCompleted, 1, 1)
	e.enroll("u1", m3, enrollment.StatusDropped, 0, 1)
	e.complete("u1", c1[0], nil, nil)

	res, err := e.progress.Overview(context.Background(), GetOverviewQuery{Viewer: Viewer{UserID: "u1"}, UserID: "u1"})
	require.NoError(t, err)

	assert.Equal(t, 2, res.OverallStats.TotalModules)
	assert.Equal(t, 75, res.OverallStats.OverallCompletionPercentage)
	require.Len(t, res.ModuleProgress, 2)
	// Newest enrollment first.
	assert.Equal(t, "Beta", res.ModuleProgress[0].ModuleTitle)
	assert.Equal(t, "Alpha", res.ModuleProgress[1].ModuleTitle)
	require.Len(t, res.ContentStats, 4)
	assert.Equal(t, "video", res.ContentStats[0].Type)
	assert.Equal(t, 2, res.ContentStats[0].Total)
	assert.Equal(t, 1, res.ContentStats[0].Completed)
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAKS
// ══════════════════════════════════════════════════════════════════════════════

func (e *env) streak(userID string, current, longest int, last time.Time) {
	st := streak.New(userID, timeutil.StartOfDay(last, time.UTC))
	st.CurrentStreak, st.LongestStreak = current, longest
	require.NoError(e.t, e.store.Streaks().Create(context.Background(), st))
}

func TestGetStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.streak("today", 3, 5, day0)
	e.streak("yesterday", 2, 2, day0.AddDate(0, 0, -1))
	e.streak("lapsed", 4, 4, day0.AddDate(0, 0, -3))

	snap, err := e.streaks.GetStatus(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, streak.StatusStart, snap.Status)
	assert.Nil(t, snap.DaysSinceLastActivity)
	assert.Nil(t, snap.LastActivityDate)

	cases := map[string]struct {
		status streak.Status
		gap    int
	}{
		"today":     {streak.StatusActive, 0},
		"yesterday": {streak.StatusAtRisk, 1},
		"lapsed":    {streak.StatusBroken, 3},
	}
	for user, want := range cases {
		snap, err := e.streaks.GetStatus(ctx, user)
		require.NoError(t, err, user)
		assert.Equal(t, want.status, snap.Status, user)
		require.NotNil(t, snap.DaysSinceLastActivity, user)
		assert.Equal(t, want.gap, *snap.DaysSinceLastActivity, user)
	}

	snap, err = e.streaks.GetStatus(ctx, "today")
	require.NoError(t, err)
	dto := NewStreakDTO(snap)
	require.NotNil(t, dto.LastActivityDate)
	assert.Equal(t, "2024-03-10", *dto.LastActivityDate)
	assert.Equal(t, "active", dto.StreakStatus)
}

func TestLeaderboard_RecencyBreaksTies(t *testing.T) {
	e := newEnv(t)
	e.streak("B", 5, 5, day0.AddDate(0, 0, -1))
	e.streak("A", 5, 6, day0)
	e.streak("C", 7, 7, day0.AddDate(0, 0, -1))
	e.streak("D", 1, 9, day0)

	res, err := e.streaks.Leaderboard(context.Background(), GetLeaderboardQuery{Type: "current"})
	require.NoError(t, err)
	assert.Equal(t, "current", res.Type)
	require.Len(t, res.Leaderboard, 4)
	assert.Equal(t, []string{"C", "A", "B", "D"}, []string{
		res.Leaderboard[0].UserID, res.Leaderboard[1].UserID, res.Leaderboard[2].UserID, res.Leaderboard[3].UserID,
	})
	assert.Equal(t, 1, res.Leaderboard[0].Rank)
	assert.Equal(t, "at_risk", res.Leaderboard[0].StreakStatus)

	res, err = e.streaks.Leaderboard(context.Background(), GetLeaderboardQuery{Type: "longest", Limit: 2})
	require.NoError(t, err)
	require.Len(t, res.Leaderboard, 2)
	assert.Equal(t, "D", res.Leaderboard[0].UserID)
	assert.Equal(t, "C", res.Leaderboard[1].UserID)
}

func TestLeaderboard_BrokenStreaksRankAsZero(t *testing.T) {
	e := newEnv(t)
	e.streak("idle", 30, 30, day0.AddDate(0, 0, -14))
	e.streak("fresh", 2, 2, day0)

	res, err := e.streaks.Leaderboard(context.Background(), GetLeaderboardQuery{})
	require.NoError(t, err)
	require.Len(t, res.Leaderboard, 2)
	assert.Equal(t, "fresh", res.Leaderboard[0].UserID)
	assert.Equal(t, "idle", res.Leaderboard[1].UserID)
	assert.Equal(t, 0, res.Leaderboard[1].CurrentStreak)
	assert.Equal(t, 30, res.Leaderboard[1].LongestStreak)
	assert.Equal(t, "broken", res.Leaderboard[1].StreakStatus)

	snap, err := e.streaks.GetStatus(context.Background(), "idle")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.CurrentStreak)
	assert.Equal(t, 30, snap.LongestStreak)
}

func TestLeaderboard_Validation(t *testing.T) {
	e := newEnv(t)

	_, err := e.streaks.Leaderboard(context.Background(), GetLeaderboardQuery{Type: "weekly"})
	assert.True(t, shared.IsValidation(err))

	_, err = e.streaks.Leaderboard(context.Background(), GetLeaderboardQuery{Limit: -1})
	assert.True(t, shared.IsValidation(err))

	q := GetLeaderboardQuery{Limit: 1000}
	_, err = q.Validate()
	require.NoError(t, err)
	assert.Equal(t, 100, q.Limit)
}
