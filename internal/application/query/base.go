// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Every number they report is computed from current store state on each
// call; nothing is cached.
package query

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

var tracer = otel.Tracer("github.com/alem-hub/learnhub/internal/application/query")

// Deps carries the collaborators shared by read handlers.
type Deps struct {
	Calendar *timeutil.Calendar
	Logger   *logger.Logger
	Store    *storecall.Runner
}

func (d Deps) withDefaults() Deps {
	if d.Calendar == nil {
		d.Calendar = timeutil.NewCalendar(nil, nil)
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Store == nil {
		d.Store = storecall.New(storecall.DefaultMaxAttempts, d.Logger)
	}
	return d
}

// Viewer is the authenticated identity asking for a read.
type Viewer struct {
	UserID string
	Admin  bool
}

// Authorize allows a viewer to read its own data; admins may read anyone's.
func (v Viewer) Authorize(op, userID string) error {
	if v.UserID == "" {
		return shared.ErrUnauthenticated.WithOp(op)
	}
	if v.UserID != userID && !v.Admin {
		return shared.ErrAccessForbidden.WithOp(op)
	}
	return nil
}

func load[T any](ctx context.Context, d Deps, op string, fn func(ctx context.Context) (T, error)) (T, error) {
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
