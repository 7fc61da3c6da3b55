package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompositeHealthChecker_NoChecks(t *testing.T) {
	status := NewCompositeHealthChecker("v1").Check(context.Background())

	assert.True(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.Equal(t, "v1", status.Version)
}

func TestCompositeHealthChecker_RequiredFailure(t *testing.T) {
	c := NewCompositeHealthChecker("v1")
	c.AddCheck("postgres", func(context.Context) error { return errors.New("down") })
	c.AddCheck("memory", func(context.Context) error { return nil })

	status := c.Check(context.Background())

	assert.False(t, status.Healthy)
	assert.False(t, status.Ready)
	assert.Equal(t, "down", status.Checks["postgres"].Message)
	assert.True(t, status.Checks["memory"].Healthy)
	assert.Equal(t, "Some checks failed: postgres", status.Message)
}

func TestCompositeHealthChecker_OptionalFailureKeepsReady(t *testing.T) {
	c := NewCompositeHealthChecker("v1")
	c.AddOptionalCheck("redis", func(context.Context) error { return errors.New("timeout") })

	status := c.Check(context.Background())

	assert.True(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.True(t, status.Checks["redis"].Optional)
	assert.Equal(t, "Degraded: redis", status.Message)
}
