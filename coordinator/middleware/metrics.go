package middleware

import (
	"context"
	"time"

	"github.com/go-kit/kit/metrics"

	"github.com/edgechain/edgechain/coordinator"
	"github.com/edgechain/edgechain/pkg/fl"
)

var _ coordinator.Service = (*metricsMiddleware)(nil)

type metricsMiddleware struct {
	counter metrics.Counter
	latency metrics.Histogram
	svc     coordinator.Service
}

func Metrics(counter metrics.Counter, latency metrics.Histogram, svc coordinator.Service) coordinator.Service {
	return &metricsMiddleware{
		counter: counter,
		latency: latency,
		svc:     svc,
	}
}

func (mm *metricsMiddleware) Submit(ctx context.Context, sub fl.ModelSubmission) (coordinator.SubmitOutcome, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "submit-model-update").Add(1)
		mm.latency.With("method", "submit-model-update").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Submit(ctx, sub)
}

func (mm *metricsMiddleware) Status(ctx context.Context) (coordinator.Status, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-round-status").Add(1)
		mm.latency.With("method", "get-round-status").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Status(ctx)
}

func (mm *metricsMiddleware) Aggregate(ctx context.Context) (fl.AggregationResult, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "aggregate-round").Add(1)
		mm.latency.With("method", "aggregate-round").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Aggregate(ctx)
}

func (mm *metricsMiddleware) GlobalModel(ctx context.Context) (fl.GlobalModel, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "get-global-model").Add(1)
		mm.latency.With("method", "get-global-model").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.GlobalModel(ctx)
}

func (mm *metricsMiddleware) History(ctx context.Context, offset, limit uint64) (coordinator.HistoryPage, error) {
	defer func(begin time.Time) {
		mm.counter.With("method", "list-aggregation-history").Add(1)
		mm.latency.With("method", "list-aggregation-history").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.History(ctx, offset, limit)
}

func (mm *metricsMiddleware) Subscribe(ctx context.Context) error {
	defer func(begin time.Time) {
		mm.counter.With("method", "subscribe").Add(1)
		mm.latency.With("method", "subscribe").Observe(time.Since(begin).Seconds())
	}(time.Now())

	return mm.svc.Subscribe(ctx)
}
