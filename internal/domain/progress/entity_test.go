package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/learnhub/internal/domain/catalog"
	"github.com/alem-hub/learnhub/internal/domain/shared"
)

var t0 = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

func video() catalog.Content {
	return catalog.Content{ID: "c-1", ModuleID: "m-1", Type: catalog.ContentVideo}
}

func ptr(f float64) *float64 { return &f }

func assertCompletedInvariant(t *testing.T, p *ContentProgress) {
	t.Helper()
	assert.Equal(t, p.Status == StatusCompleted, p.CompletedAt != nil, "completedAt must be set iff completed")
}

func TestStart_Idempotent(t *testing.T) {
	p := New("p-1", "u-1", video(), t0)

	assert.True(t, p.Start(t0))
	require.NotNil(t, p.StartedAt)
	started := *p.StartedAt

	assert.False(t, p.Start(t0.Add(time.Minute)))
	assert.Equal(t, started, *p.StartedAt)
	assert.Equal(t, StatusInProgress, p.Status)
	assertCompletedInvariant(t, p)
}

func TestStart_DoesNotRegressCompleted(t *testing.T) {
	p := New("p-1", "u-1", video(), t0)
	p.Complete(nil, nil, t0)

	assert.False(t, p.Start(t0))
	assert.Equal(t, StatusCompleted, p.Status)
	assertCompletedInvariant(t, p)
}

func TestReport_VideoCrossesThreshold(t *testing.T) {
	p := New("p-1", "u-1", video(), t0)

	assert.False(t, p.Report(40, DefaultAutoCompleteThreshold, t0))
	assert.Equal(t, StatusInProgress, p.Status)
	assert.Equal(t, 40, p.ProgressPercentage)
	assertCompletedInvariant(t, p)

	assert.False(t, p.Report(85, DefaultAutoCompleteThreshold, t0.Add(time.Minute)))
	assert.Equal(t, 85, p.ProgressPercentage)

	crossed := t0.Add(2 * time.Minute)
	assert.True(t, p.Report(92, DefaultAutoCompleteThreshold, crossed))
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, 100, p.ProgressPercentage)
	require.NotNil(t, p.CompletedAt)
	assert.Equal(t, crossed, *p.CompletedAt)
	assertCompletedInvariant(t, p)
}

func TestReport_MaxWinsOutOfOrder(t *testing.T) {
	orders := [][]int{
		{10, 50, 30},
		{50, 30, 10},
		{30, 10, 50},
	}
	for _, seq := range orders {
		p := New("p-1", "u-1", video(), t0)
		for _, v := range seq {
			p.Report(v, DefaultAutoCompleteThreshold, t0)
		}
		assert.Equal(t, 50, p.ProgressPercentage, "sequence %v", seq)
		assert.Equal(t, StatusInProgress, p.Status)
	}
}

func TestReport_IgnoredAfterCompletion(t *testing.T) {
	p := New("p-1", "u-1", video(), t0)
	p.Report(95, DefaultAutoCompleteThreshold, t0)
	completedAt := *p.CompletedAt

	assert.False(t, p.Report(20, DefaultAutoCompleteThreshold, t0.Add(time.Hour)))
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, 100, p.ProgressPercentage)
	assert.Equal(t, completedAt, *p.CompletedAt)
}

func TestReport_Clamps(t *testing.T) {
	p := New("p-1", "u-1", video(), t0)
	p.Report(-20, DefaultAutoCompleteThreshold, t0)
	assert.Equal(t, 0, p.ProgressPercentage)
	assert.Equal(t, StatusInProgress, p.Status)

	p.Report(250, DefaultAutoCompleteThreshold, t0)
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, 100, p.ProgressPercentage)
}

func TestReport_ExactThreshold(t *testing.T) {
	p := New("p-1", "u-1", video(), t0)
	assert.True(t, p.Report(90, DefaultAutoCompleteThreshold, t0))

	q := New("p-2", "u-1", video(), t0)
	assert.False(t, q.Report(89, DefaultAutoCompleteThreshold, t0))
}

func TestComplete_RepeatUpdatesScoreOnly(t *testing.T) {
	p := New("p-1", "u-1", catalog.Content{ID: "c-2", ModuleID: "m-1", Type: catalog.ContentLab}, t0)

	assert.True(t, p.Complete(ptr(7), ptr(10), t0))
	first := *p.CompletedAt

	assert.False(t, p.Complete(ptr(9), ptr(10), t0.Add(time.Hour)))
	assert.Equal(t, 9.0, *p.Score)
	assert.Equal(t, first, *p.CompletedAt)

	assert.False(t, p.Complete(nil, nil, t0.Add(2*time.Hour)))
	assert.Equal(t, 9.0, *p.Score, "a repeat without a score keeps the stored one")
}

func TestNormalizedScore(t *testing.T) {
	p := New("p-1", "u-1", video(), t0)
	_, ok := p.NormalizedScore()
	assert.False(t, ok)

	p.Complete(ptr(5), ptr(10), t0)
	v, ok := p.NormalizedScore()
	require.True(t, ok)
	assert.InDelta(t, 50.0, v, 1e-9)
}

func TestValidateScore(t *testing.T) {
	assert.NoError(t, ValidateScore(nil, nil))
	assert.NoError(t, ValidateScore(ptr(0), ptr(10)))
	assert.NoError(t, ValidateScore(ptr(10), ptr(10)))

	for _, tc := range []struct {
		name            string
		score, maxScore *float64
	}{
		{"score only", ptr(1), nil},
		{"max only", nil, ptr(1)},
		{"zero max", ptr(0), ptr(0)},
		{"negative score", ptr(-1), ptr(10)},
		{"score over max", ptr(11), ptr(10)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, shared.IsValidation(ValidateScore(tc.score, tc.maxScore)))
		})
	}
}
