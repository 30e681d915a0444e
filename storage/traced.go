package storage

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/daveduya011/wph-task-manager/domain"
)

const tracerName = "github.com/daveduya011/wph-task-manager/storage"

// Traced records one span per store call on the global tracer provider.
type Traced struct {
	base    TaskStore
	backend string
}

// NewTraced wraps base; backend names the implementation in span attributes.
func NewTraced(base TaskStore, backend string) *Traced {
	return &Traced{base: base, backend: backend}
}

func (t *Traced) start(ctx context.Context, op, id string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("store.backend", t.backend)}
	if id != "" {
		attrs = append(attrs, attribute.String("task.id", id))
	}
	return otel.Tracer(tracerName).Start(ctx, "store."+op, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *Traced) Create(ctx context.Context, f domain.TaskFields) (domain.Task, error) {
	ctx, span := t.start(ctx, "create", "")
	task, err := t.base.Create(ctx, f)
	if err == nil {
		span.SetAttributes(attribute.String("task.id", task.ID))
	}
	finish(span, err)
	return task, err
}

func (t *Traced) Get(ctx context.Context, id string) (domain.Task, error) {
	ctx, span := t.start(ctx, "get", id)
	task, err := t.base.Get(ctx, id)
	finish(span, err)
	return task, err
}

func (t *Traced) List(ctx context.Context) ([]domain.Task, error) {
	ctx, span := t.start(ctx, "list", "")
	tasks, err := t.base.List(ctx)
	span.SetAttributes(attribute.Int("tasks.count", len(tasks)))
	finish(span, err)
	return tasks, err
}

func (t *Traced) Update(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	ctx, span := t.start(ctx, "update", id)
	task, err := t.base.Update(ctx, id, p)
	finish(span, err)
	return task, err
}

func (t *Traced) Delete(ctx context.Context, id string) error {
	ctx, span := t.start(ctx, "delete", id)
	err := t.base.Delete(ctx, id)
	finish(span, err)
	return err
}

func (t *Traced) Ping(ctx context.Context) error {
	if p, ok := t.base.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
