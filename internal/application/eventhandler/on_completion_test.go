package eventhandler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/learnhub/internal/domain/shared"
)

type recordingSink struct {
	mu   sync.Mutex
	got  []Completion
	fail error
}

func (s *recordingSink) Completed(_ context.Context, c Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, c)
	return s.fail
}

type payloadEvent struct {
	shared.BaseEvent
	payload map[string]interface{}
}

func (e payloadEvent) Payload() map[string]interface{} { return e.payload }

var at = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func TestOnCompletion_TypedEvents(t *testing.T) {
	sink := &recordingSink{}
	h := NewOnCompletionHandler(sink, nil)
	score, maxScore := 8.0, 10.0

	require.NoError(t, h.Handle(shared.NewContentCompletedEvent("u1", "c1", "m1", "lab", &score, &maxScore, at)))
	require.NoError(t, h.Handle(shared.NewModuleCompletedEvent("e1", "u1", "m1", 3, 4, at)))
	require.NoError(t, h.Handle(shared.NewStreakUpdatedEvent("u1", 2, 2, false, at)))

	require.Len(t, sink.got, 2)
	assert.Equal(t, CompletionContent, sink.got[0].Kind)
	assert.Equal(t, "c1", sink.got[0].ContentID)
	assert.Equal(t, 8.0, *sink.got[0].Score)
	assert.Equal(t, CompletionModule, sink.got[1].Kind)
	assert.Equal(t, "m1", sink.got[1].ModuleID)
	assert.Empty(t, sink.got[1].ContentID)
}

func TestOnCompletion_RemotePayload(t *testing.T) {
	sink := &recordingSink{}
	h := NewOnCompletionHandler(sink, nil)

	ev := payloadEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventContentCompleted, "u1", at),
		payload: map[string]interface{}{
			"user_id":      "u1",
			"module_id":    "m1",
			"content_id":   "c9",
			"content_type": "video",
			"score":        float64(50),
		},
	}
	require.NoError(t, h.Handle(ev))

	require.Len(t, sink.got, 1)
	assert.Equal(t, "c9", sink.got[0].ContentID)
	assert.Equal(t, 50.0, *sink.got[0].Score)
	assert.Nil(t, sink.got[0].MaxScore)
	assert.Equal(t, at, sink.got[0].CompletedAt)
}

func TestOnCompletion_SinkErrorIsReturned(t *testing.T) {
	sink := &recordingSink{fail: errors.New("achievements down")}
	h := NewOnCompletionHandler(sink, nil)

	err := h.Handle(shared.NewModuleCompletedEvent("e1", "u1", "m1", 1, 1, at))
	assert.EqualError(t, err, "achievements down")
}
