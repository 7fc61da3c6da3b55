// Package eventhandler contains domain event handlers.
package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/learnhub/internal/domain/shared"
	"github.com/alem-hub/learnhub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ON COMPLETION HANDLER
// Hands content.completed and module.completed events to the achievement
// service. Awarding rules live there; this side only delivers the facts.
// ══════════════════════════════════════════════════════════════════════════════

// CompletionKind says what was completed.
type CompletionKind string

const (
	CompletionContent CompletionKind = "content"
	CompletionModule  CompletionKind = "module"
)

// Completion is the record handed to the achievement service.
type Completion struct {
	Kind        CompletionKind
	UserID      string
	ModuleID    string
	ContentID   string // empty for module completions
	ContentType string // empty for module completions
	Score       *float64
	MaxScore    *float64
	CompletedAt time.Time
}

// AchievementSink receives completions. Implementations must tolerate
// duplicates: the bus may deliver an event more than once across instances.
type AchievementSink interface {
	Completed(ctx context.Context, c Completion) error
}

// OnCompletionHandler forwards completion events.
type OnCompletionHandler struct {
	sink    AchievementSink
	timeout time.Duration
	log     *logger.Logger
}

// NewOnCompletionHandler creates a new OnCompletionHandler.
func NewOnCompletionHandler(sink AchievementSink, log *logger.Logger) *OnCompletionHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnCompletionHandler{
		sink:    sink,
		timeout: 5 * time.Second,
		log:     log.With(logger.Component("on_completion")),
	}
}

// Register subscribes the handler to both completion event types.
func (h *OnCompletionHandler) Register(bus shared.EventSubscriber) error {
	for _, t := range []shared.EventType{shared.EventContentCompleted, shared.EventModuleCompleted} {
		if err := bus.Subscribe(t, h.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}
	return nil
}

// Handle implements shared.EventHandler.
func (h *OnCompletionHandler) Handle(event shared.Event) error {
	c, ok := completionOf(event)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.sink.Completed(ctx, c); err != nil {
		h.log.Warn("achievement delivery failed",
			logger.String("kind", string(c.Kind)),
			logger.UserID(c.UserID),
			logger.Err(err),
		)
		return err
	}
	return nil
}

// completionOf accepts the typed events published in-process as well as
// events decoded from another instance, which only carry a payload map.
func completionOf(event shared.Event) (Completion, bool) {
	switch e := event.(type) {
	case shared.ContentCompletedEvent:
		return Completion{
			Kind:        CompletionContent,
			UserID:      e.UserID,
			ModuleID:    e.ModuleID,
			ContentID:   e.ContentID,
			ContentType: e.ContentType,
			Score:       e.Score,
			MaxScore:    e.MaxScore,
			CompletedAt: e.CompletedAt,
		}, true
	case shared.ModuleCompletedEvent:
		return Completion{
			Kind:        CompletionModule,
			UserID:      e.UserID,
			ModuleID:    e.ModuleID,
			CompletedAt: e.CompletedAt,
		}, true
	}

	p := event.Payload()
	c := Completion{
		UserID:      str(p["user_id"]),
		ModuleID:    str(p["module_id"]),
		CompletedAt: event.OccurredAt(),
	}
	switch event.EventType() {
	case shared.EventContentCompleted:
		c.Kind = CompletionContent
		c.ContentID = str(p["content_id"])
		c.ContentType = str(p["content_type"])
		c.Score = num(p["score"])
		c.MaxScore = num(p["max_score"])
	case shared.EventModuleCompleted:
		c.Kind = CompletionModule
	default:
		return Completion{}, false
	}
	return c, c.UserID != ""
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	}
	return nil
}

// LogSink records completions in the log. It stands in for the achievement
// service when none is configured.
type LogSink struct {
	Log *logger.Logger
}

// Completed implements AchievementSink.
func (s LogSink) Completed(_ context.Context, c Completion) error {
	fields := []logger.Field{
		logger.String("kind", string(c.Kind)),
		logger.UserID(c.UserID),
		logger.ModuleID(c.ModuleID),
		logger.Time("completed_at", c.CompletedAt),
	}
	if c.ContentID != "" {
		fields = append(fields, logger.ContentID(c.ContentID), logger.String("content_type", c.ContentType))
	}
	s.Log.Info("completion ready for achievements", fields...)
	return nil
}
