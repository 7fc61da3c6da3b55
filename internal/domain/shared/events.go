package shared

import "time"

// EventType represents the type of domain event.
type EventType string

// Domain event types. content.completed and module.completed are the
// contract consumed by achievement awarding.
const (
	// Enrollment events
	EventEnrollmentCreated       EventType = "enrollment.created"
	EventEnrollmentStatusChanged EventType = "enrollment.status_changed"

	// Completion events
	EventContentCompleted      EventType = "content.completed"
	EventModuleCompleted       EventType = "module.completed"
	EventModuleContentFinished EventType = "module.content_finished"

	// Streak events
	EventStreakUpdated EventType = "progress.streak_updated"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped at `at`.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Enrollment Events
// ═══════════════════════════════════════════════════════════════════════════

// EnrollmentCreatedEvent is emitted when a user enrolls in a module.
type EnrollmentCreatedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	ModuleID      string `json:"module_id"`
	TotalSections int    `json:"total_sections"`
}

// Payload implements Event interface.
func (e EnrollmentCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"module_id":      e.ModuleID,
		"total_sections": e.TotalSections,
	}
}

// NewEnrollmentCreatedEvent creates a new EnrollmentCreatedEvent.
func NewEnrollmentCreatedEvent(enrollmentID, userID, moduleID string, totalSections int, at time.Time) EnrollmentCreatedEvent {
	return EnrollmentCreatedEvent{
		BaseEvent:     NewBaseEvent(EventEnrollmentCreated, enrollmentID, at),
		UserID:        userID,
		ModuleID:      moduleID,
		TotalSections: totalSections,
	}
}

// EnrollmentStatusChangedEvent is emitted on pause, resume, complete and unenroll.
type EnrollmentStatusChangedEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	ModuleID string `json:"module_id"`
	From     string `json:"from"`
	To       string `json:"to"`
}

// Payload implements Event interface.
func (e EnrollmentStatusChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"module_id": e.ModuleID,
		"from":      e.From,
		"to":        e.To,
	}
}

// NewEnrollmentStatusChangedEvent creates a new EnrollmentStatusChangedEvent.
func NewEnrollmentStatusChangedEvent(enrollmentID, userID, moduleID, from, to string, at time.Time) EnrollmentStatusChangedEvent {
	return EnrollmentStatusChangedEvent{
		BaseEvent: NewBaseEvent(EventEnrollmentStatusChanged, enrollmentID, at),
		UserID:    userID,
		ModuleID:  moduleID,
		From:      from,
		To:        to,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Completion Events
// ═══════════════════════════════════════════════════════════════════════════

// ContentCompletedEvent is emitted the first time a content item is completed.
type ContentCompletedEvent struct {
	BaseEvent
	UserID      string    `json:"user_id"`
	ContentID   string    `json:"content_id"`
	ModuleID    string    `json:"module_id"`
	ContentType string    `json:"content_type"`
	Score       *float64  `json:"score,omitempty"`
	MaxScore    *float64  `json:"max_score,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Payload implements Event interface.
func (e ContentCompletedEvent) Payload() map[string]interface{} {
	p := map[string]interface{}{
		"user_id":      e.UserID,
		"content_id":   e.ContentID,
		"module_id":    e.ModuleID,
		"content_type": e.ContentType,
		"completed_at": e.CompletedAt,
	}
	if e.Score != nil {
		p["score"] = *e.Score
	}
	if e.MaxScore != nil {
		p["max_score"] = *e.MaxScore
	}
	return p
}

// NewContentCompletedEvent creates a new ContentCompletedEvent.
func NewContentCompletedEvent(userID, contentID, moduleID, contentType string, score, maxScore *float64, completedAt time.Time) ContentCompletedEvent {
	return ContentCompletedEvent{
		BaseEvent:   NewBaseEvent(EventContentCompleted, userID, completedAt),
		UserID:      userID,
		ContentID:   contentID,
		ModuleID:    moduleID,
		ContentType: contentType,
		Score:       score,
		MaxScore:    maxScore,
		CompletedAt: completedAt,
	}
}

// ModuleCompletedEvent is emitted when an enrollment transitions to completed.
type ModuleCompletedEvent struct {
	BaseEvent
	UserID            string    `json:"user_id"`
	ModuleID          string    `json:"module_id"`
	CompletedSections int       `json:"completed_sections"`
	TotalSections     int       `json:"total_sections"`
	CompletedAt       time.Time `json:"completed_at"`
}

// Payload implements Event interface.
func (e ModuleCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":            e.UserID,
		"module_id":          e.ModuleID,
		"completed_sections": e.CompletedSections,
		"total_sections":     e.TotalSections,
		"completed_at":       e.CompletedAt,
	}
}

// NewModuleCompletedEvent creates a new ModuleCompletedEvent.
func NewModuleCompletedEvent(enrollmentID, userID, moduleID string, completed, total int, completedAt time.Time) ModuleCompletedEvent {
	return ModuleCompletedEvent{
		BaseEvent:         NewBaseEvent(EventModuleCompleted, enrollmentID, completedAt),
		UserID:            userID,
		ModuleID:          moduleID,
		CompletedSections: completed,
		TotalSections:     total,
		CompletedAt:       completedAt,
	}
}

// ModuleContentFinishedEvent is emitted when a recompute first reaches 100%
// on an active enrollment. It prompts the user to complete the module; it
// does not change state.
type ModuleContentFinishedEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	ModuleID string `json:"module_id"`
}

// Payload implements Event interface.
func (e ModuleContentFinishedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"module_id": e.ModuleID,
	}
}

// NewModuleContentFinishedEvent creates a new ModuleContentFinishedEvent.
func NewModuleContentFinishedEvent(enrollmentID, userID, moduleID string, at time.Time) ModuleContentFinishedEvent {
	return ModuleContentFinishedEvent{
		BaseEvent: NewBaseEvent(EventModuleContentFinished, enrollmentID, at),
		UserID:    userID,
		ModuleID:  moduleID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Streak Events
// ═══════════════════════════════════════════════════════════════════════════

// StreakUpdatedEvent is emitted when a day's first activity moves the streak.
type StreakUpdatedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	CurrentStreak int    `json:"current_streak"`
	LongestStreak int    `json:"longest_streak"`
	Restarted     bool   `json:"restarted"`
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"current_streak": e.CurrentStreak,
		"longest_streak": e.LongestStreak,
		"restarted":      e.Restarted,
	}
}

// NewStreakUpdatedEvent creates a new StreakUpdatedEvent.
func NewStreakUpdatedEvent(userID string, current, longest int, restarted bool, at time.Time) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent:     NewBaseEvent(EventStreakUpdated, userID, at),
		UserID:        userID,
		CurrentStreak: current,
		LongestStreak: longest,
		Restarted:     restarted,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
