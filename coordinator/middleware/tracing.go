package middleware

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/edgechain/edgechain/coordinator"
	"github.com/edgechain/edgechain/pkg/fl"
)

var _ coordinator.Service = (*tracing)(nil)

type tracing struct {
	tracer trace.Tracer
	svc    coordinator.Service
}

func Tracing(tracer trace.Tracer, svc coordinator.Service) coordinator.Service {
	return &tracing{tracer, svc}
}

func (tm *tracing) Submit(ctx context.Context, sub fl.ModelSubmission) (coordinator.SubmitOutcome, error) {
	ctx, span := tm.tracer.Start(ctx, "submit-model-update", trace.WithAttributes(
		attribute.String("participant_id", sub.ParticipantID),
		attribute.Int("dataset_size", sub.DatasetSize),
	))
	defer span.End()

	return tm.svc.Submit(ctx, sub)
}

func (tm *tracing) Status(ctx context.Context) (coordinator.Status, error) {
	ctx, span := tm.tracer.Start(ctx, "get-round-status")
	defer span.End()

	return tm.svc.Status(ctx)
}

func (tm *tracing) Aggregate(ctx context.Context) (fl.AggregationResult, error) {
	ctx, span := tm.tracer.Start(ctx, "aggregate-round")
	defer span.End()

	return tm.svc.Aggregate(ctx)
}

func (tm *tracing) GlobalModel(ctx context.Context) (fl.GlobalModel, error) {
	ctx, span := tm.tracer.Start(ctx, "get-global-model")
	defer span.End()

	return tm.svc.GlobalModel(ctx)
}

func (tm *tracing) History(ctx context.Context, offset, limit uint64) (coordinator.HistoryPage, error) {
	ctx, span := tm.tracer.Start(ctx, "list-aggregation-history", trace.WithAttributes(
		attribute.Int64("offset", int64(offset)),
		attribute.Int64("limit", int64(limit)),
	))
	defer span.End()

	return tm.svc.History(ctx, offset, limit)
}

func (tm *tracing) Subscribe(ctx context.Context) error {
	ctx, span := tm.tracer.Start(ctx, "subscribe")
	defer span.End()

	return tm.svc.Subscribe(ctx)
}
