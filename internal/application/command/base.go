// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/learnhub/internal/application/storecall"
	"github.com/alem-hub/learnhub/internal/domain/shared"
	"github.com/alem-hub/learnhub/pkg/logger"
	"github.com/alem-hub/learnhub/pkg/timeutil"
)

// DefaultMaxConflictRetries bounds the re-read-and-merge loop run when a
// conditional write loses a version race.
const DefaultMaxConflictRetries = 8

var tracer = otel.Tracer("github.com/alem-hub/learnhub/internal/application/command")

// Deps carries the collaborators every write service needs.
type Deps struct {
	Calendar           *timeutil.Calendar
	Publisher          shared.EventPublisher
	Logger             *logger.Logger
	Store              *storecall.Runner
	MaxConflictRetries int
}

func (d Deps) withDefaults() Deps {
	if d.Calendar == nil {
		d.Calendar = timeutil.NewCalendar(nil, nil)
	}
	if d.Publisher == nil {
		d.Publisher = shared.NopPublisher{}
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Store == nil {
		d.Store = storecall.New(storecall.DefaultMaxAttempts, d.Logger)
	}
	if d.MaxConflictRetries <= 0 {
		d.MaxConflictRetries = DefaultMaxConflictRetries
	}
	return d
}

// merge runs attempt until it stops failing with a version conflict. Each
// attempt must re-read the rows it writes. A conflict that outlives the
// budget is reported as ErrUnavailable.
func (d Deps) merge(ctx context.Context, op string, attempt func(ctx context.Context) error) error {
	var err error
	for i := 0; i < d.MaxConflictRetries; i++ {
		err = attempt(ctx)
		if !shared.IsConflict(err) {
			return err
		}
		d.Logger.Debug("version conflict, re-reading", logger.Operation(op), logger.Int("attempt", i+1))
	}
	d.Logger.Warn("conflict budget exhausted", logger.Operation(op), logger.Err(err))
	return shared.ErrUnavailable.WithOp(op).WithMessage("too many concurrent updates, retry later").Wrap(err)
}

// publish hands an event to the notifier boundary. Delivery failures never
// fail the write that produced the event.
func (d Deps) publish(ctx context.Context, ev shared.Event) {
	if err := d.Publisher.Publish(ev); err != nil {
		d.Logger.Warn("event publish failed",
			logger.String("event_type", string(ev.EventType())),
			logger.String("aggregate_id", ev.AggregateID()),
			logger.Err(err),
		)
	}
}

func storeValue[T any](ctx context.Context, d Deps, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	return storecall.Value(ctx, d.Store, op, fn)
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, shared.CodeOf(err))
	}
	span.End()
}
