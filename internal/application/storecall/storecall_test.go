package storecall

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/learnhub/internal/domain/shared"
)

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	r := Immediate(3)
	calls := 0

	err := r.Do(context.Background(), "Save", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return shared.NewTransientError("Save", errors.New("connection reset"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustedBecomesUnavailable(t *testing.T) {
	r := Immediate(2)
	calls := 0

	err := r.Do(context.Background(), "Save", func(ctx context.Context) error {
		calls++
		return shared.NewTransientError("Save", errors.New("connection reset"))
	})

	assert.Equal(t, 2, calls)
	assert.True(t, errors.Is(err, shared.ErrUnavailable))
	assert.Equal(t, shared.CodeUnavailable, shared.CodeOf(err))
}

func TestDo_DomainErrorsAreNotRetried(t *testing.T) {
	r := Immediate(5)
	calls := 0

	err := r.Do(context.Background(), "Find", func(ctx context.Context) error {
		calls++
		return shared.ErrModuleNotFound
	})

	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, shared.ErrModuleNotFound))
}

func TestValue(t *testing.T) {
	r := Immediate(2)
	calls := 0
	v, err := Value(context.Background(), r, "Get", func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", shared.NewTransientError("Get", errors.New("timeout"))
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestValue_ExhaustedReturnsZero(t *testing.T) {
	r := Immediate(2)
	v, err := Value(context.Background(), r, "Get", func(ctx context.Context) (string, error) {
		return "partial", shared.NewTransientError("Get", errors.New("timeout"))
	})
	assert.Empty(t, v)
	assert.True(t, errors.Is(err, shared.ErrUnavailable))
}
