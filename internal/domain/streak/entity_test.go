package streak

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/learnhub/internal/domain/shared"
)

var day0 = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time { return day0.AddDate(0, 0, n) }

func TestRecord_ConsecutiveDays(t *testing.T) {
	s := New("u-1", day(0))

	assert.Equal(t, OutcomeExtended, s.Record(day(1)))
	assert.Equal(t, OutcomeExtended, s.Record(day(2)))

	assert.Equal(t, 3, s.CurrentStreak)
	assert.Equal(t, 3, s.LongestStreak)
	assert.Equal(t, day(2), s.LastActivityDate)
}

func TestRecord_SameDayIsIdempotent(t *testing.T) {
	s := New("u-1", day(0))
	for i := 0; i < 5; i++ {
		assert.Equal(t, OutcomeUnchanged, s.Record(day(0)))
	}
	assert.Equal(t, 1, s.CurrentStreak)
}

func TestRecord_GapResets(t *testing.T) {
	s := New("u-1", day(0))
	s.Record(day(1))
	s.Record(day(2))

	assert.Equal(t, OutcomeRestarted, s.Record(day(5)))
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 3, s.LongestStreak)
}

func TestRecord_DThenDPlusThree(t *testing.T) {
	s := New("u-1", day(0))
	s.Record(day(3))
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 1, s.LongestStreak)
}

func TestRecord_PastDayIgnored(t *testing.T) {
	s := New("u-1", day(4))
	assert.Equal(t, OutcomeUnchanged, s.Record(day(3)))
	assert.Equal(t, day(4), s.LastActivityDate)
}

func TestRecord_LongestNeverBelowCurrent(t *testing.T) {
	s := New("u-1", day(0))
	days := []int{1, 2, 5, 6, 7, 8, 20, 21}
	for _, d := range days {
		s.Record(day(d))
		require.GreaterOrEqual(t, s.LongestStreak, s.CurrentStreak)
	}
	assert.Equal(t, 4, s.LongestStreak)
	assert.Equal(t, 2, s.CurrentStreak)
}

func TestStatusAt(t *testing.T) {
	st, gap := StatusAt(nil, day(0))
	assert.Equal(t, StatusStart, st)
	assert.Nil(t, gap)

	s := New("u-1", day(0))
	for _, tc := range []struct {
		today int
		want  Status
		gap   int
	}{
		{0, StatusActive, 0},
		{1, StatusAtRisk, 1},
		{2, StatusBroken, 2},
		{9, StatusBroken, 9},
	} {
		st, gap := StatusAt(s, day(tc.today))
		assert.Equal(t, tc.want, st)
		require.NotNil(t, gap)
		assert.Equal(t, tc.gap, *gap)
	}
}

func TestLess_RecencyTieBreak(t *testing.T) {
	today := day(5)
	a := &Streak{UserID: "b-user", CurrentStreak: 5, LongestStreak: 5, LastActivityDate: today}
	b := &Streak{UserID: "a-user", CurrentStreak: 5, LongestStreak: 9, LastActivityDate: today.AddDate(0, 0, -1)}
	c := &Streak{UserID: "c-user", CurrentStreak: 7, LongestStreak: 7, LastActivityDate: today.AddDate(0, 0, -1)}

	rows := []*Streak{b, a, c}
	sort.Slice(rows, func(i, j int) bool { return Less(rows[i], rows[j], RankByCurrent, today) })
	assert.Equal(t, []*Streak{c, a, b}, rows)

	sort.Slice(rows, func(i, j int) bool { return Less(rows[i], rows[j], RankByLongest, today) })
	assert.Equal(t, []*Streak{b, c, a}, rows)
}

func TestLess_UserIDBreaksFullTies(t *testing.T) {
	a := &Streak{UserID: "a", CurrentStreak: 2, LastActivityDate: day(0)}
	b := &Streak{UserID: "b", CurrentStreak: 2, LastActivityDate: day(0)}
	assert.True(t, Less(a, b, RankByCurrent, day(0)))
	assert.False(t, Less(b, a, RankByCurrent, day(0)))
}

func TestCurrentAt_BrokenStreakCountsZero(t *testing.T) {
	s := &Streak{UserID: "u", CurrentStreak: 12, LongestStreak: 12, LastActivityDate: day(0)}
	assert.Equal(t, 12, s.CurrentAt(day(0)))
	assert.Equal(t, 12, s.CurrentAt(day(1)))
	assert.Equal(t, 0, s.CurrentAt(day(2)))

	snap := SnapshotAt(s, "u", day(9))
	assert.Equal(t, StatusBroken, snap.Status)
	assert.Equal(t, 0, snap.CurrentStreak)
	assert.Equal(t, 12, snap.LongestStreak)
}

func TestLess_BrokenStreakRanksBelowActive(t *testing.T) {
	today := day(30)
	idle := &Streak{UserID: "a-idle", CurrentStreak: 20, LongestStreak: 20, LastActivityDate: day(3)}
	fresh := &Streak{UserID: "b-fresh", CurrentStreak: 1, LongestStreak: 1, LastActivityDate: today}

	assert.True(t, Less(fresh, idle, RankByCurrent, today))
	assert.True(t, Less(idle, fresh, RankByLongest, today))
}

func TestParseRankBy(t *testing.T) {
	by, err := ParseRankBy("")
	require.NoError(t, err)
	assert.Equal(t, RankByCurrent, by)

	by, err = ParseRankBy("longest")
	require.NoError(t, err)
	assert.Equal(t, RankByLongest, by)

	_, err = ParseRankBy("weekly")
	assert.True(t, shared.IsValidation(err))
}
