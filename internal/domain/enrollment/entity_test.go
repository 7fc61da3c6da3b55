package enrollment

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/learnhub/internal/domain/shared"
)

var t0 = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

func newEnrollment(total int) *Enrollment {
	return New("e-1", "u-1", "m-1", total, t0)
}

func TestNew(t *testing.T) {
	e := newEnrollment(4)

	assert.Equal(t, StatusActive, e.Status)
	assert.Equal(t, 0, e.CompletedSections)
	assert.Equal(t, 4, e.TotalSections)
	assert.Equal(t, 0, e.ProgressPercentage)
	assert.Nil(t, e.CompletedAt)
	assert.Equal(t, t0, e.EnrolledAt)
}

func TestPauseResume_Idempotent(t *testing.T) {
	e := newEnrollment(4)

	changed, err := e.Pause(t0)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = e.Pause(t0)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, StatusPaused, e.Status)

	changed, err = e.Resume(t0)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = e.Resume(t0)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, StatusActive, e.Status)
}

func TestInvalidTransitions(t *testing.T) {
	e := newEnrollment(4)
	require.NoError(t, e.Complete(t0))

	_, err := e.Pause(t0)
	assert.True(t, errors.Is(err, shared.ErrInvalidTransition))

	_, err = e.Resume(t0)
	assert.True(t, errors.Is(err, shared.ErrInvalidTransition))

	assert.True(t, errors.Is(e.Complete(t0), shared.ErrInvalidTransition))

	_, err = e.Drop(t0)
	assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
}

func TestComplete_ForcesHundredKeepsSections(t *testing.T) {
	e := newEnrollment(4)
	e.ApplyCount(3, 4, t0)
	require.Equal(t, 75, e.ProgressPercentage)

	done := t0.Add(time.Hour)
	require.NoError(t, e.Complete(done))

	assert.Equal(t, StatusCompleted, e.Status)
	assert.Equal(t, 100, e.ProgressPercentage)
	assert.Equal(t, 3, e.CompletedSections)
	require.NotNil(t, e.CompletedAt)
	assert.Equal(t, done, *e.CompletedAt)
}

func TestComplete_FromPaused(t *testing.T) {
	e := newEnrollment(2)
	_, _ = e.Pause(t0)
	require.NoError(t, e.Complete(t0))
	assert.Equal(t, StatusCompleted, e.Status)
}

func TestDrop(t *testing.T) {
	e := newEnrollment(2)

	changed, err := e.Drop(t0)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, StatusDropped, e.Status)

	changed, err = e.Drop(t0)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = e.Resume(t0)
	assert.True(t, errors.Is(err, shared.ErrInvalidTransition))
}

func TestApplyCount(t *testing.T) {
	e := newEnrollment(4)

	later := t0.Add(2 * time.Hour)
	full := e.ApplyCount(1, 4, later)
	assert.False(t, full)
	assert.Equal(t, 25, e.ProgressPercentage)
	assert.Equal(t, later, e.LastAccessedAt)
	require.NotNil(t, e.EstimatedCompletionDate)
	// 2h per section, 3 sections left.
	assert.Equal(t, later.Add(6*time.Hour), *e.EstimatedCompletionDate)

	assert.False(t, e.ApplyCount(3, 4, later))
	assert.Equal(t, 75, e.ProgressPercentage)

	assert.True(t, e.ApplyCount(4, 4, later))
	assert.Equal(t, 100, e.ProgressPercentage)
	assert.Equal(t, StatusActive, e.Status, "reaching 100% never completes the enrollment")
	assert.Nil(t, e.EstimatedCompletionDate)

	assert.False(t, e.ApplyCount(4, 4, later), "only the first arrival at 100% is reported")
}

func TestApplyCount_Idempotent(t *testing.T) {
	e := newEnrollment(3)
	e.ApplyCount(2, 3, t0.Add(time.Hour))
	first := e.Clone()

	e.ApplyCount(2, 3, t0.Add(time.Hour))
	assert.Equal(t, first, e)
}

func TestApplyCount_CompletedStaysAtHundred(t *testing.T) {
	e := newEnrollment(4)
	require.NoError(t, e.Complete(t0))

	e.ApplyCount(1, 5, t0)
	assert.Equal(t, 100, e.ProgressPercentage)
	assert.Equal(t, 1, e.CompletedSections)
	assert.Equal(t, 5, e.TotalSections)
}

func TestPercentage_EmptyModule(t *testing.T) {
	assert.Equal(t, 0, Percentage(0, 0))
	e := newEnrollment(0)
	e.ApplyCount(0, 0, t0)
	assert.Equal(t, 0, e.ProgressPercentage)
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("paused")
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, st)

	_, err = ParseStatus("archived")
	assert.True(t, shared.IsValidation(err))
}
