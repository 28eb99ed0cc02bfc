package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgechain/edgechain/coordinator"
	"github.com/edgechain/edgechain/pkg/fl"
)

var _ coordinator.Service = (*loggingMiddleware)(nil)

type loggingMiddleware struct {
	logger *slog.Logger
	svc    coordinator.Service
}

func Logging(logger *slog.Logger, svc coordinator.Service) coordinator.Service {
	return &loggingMiddleware{
		logger: logger,
		svc:    svc,
	}
}

func (lm *loggingMiddleware) Submit(ctx context.Context, sub fl.ModelSubmission) (outcome coordinator.SubmitOutcome, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Group("submission",
				slog.String("participant_id", sub.ParticipantID),
				slog.Int("dataset_size", sub.DatasetSize),
			),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Submit model update failed", args...)

			return
		}
		args = append(args,
			slog.Int("pool_size", outcome.PoolSize),
			slog.Bool("aggregation_triggered", outcome.AggregationTriggered),
		)
		lm.logger.Info("Submit model update completed successfully", args...)
	}(time.Now())

	return lm.svc.Submit(ctx, sub)
}

func (lm *loggingMiddleware) Status(ctx context.Context) (resp coordinator.Status, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get round status failed", args...)

			return
		}
		args = append(args,
			slog.Int("round", resp.CurrentRound),
			slog.Int("pool_size", resp.PoolSize),
		)
		lm.logger.Info("Get round status completed successfully", args...)
	}(time.Now())

	return lm.svc.Status(ctx)
}

func (lm *loggingMiddleware) Aggregate(ctx context.Context) (resp fl.AggregationResult, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Aggregate round failed", args...)

			return
		}
		args = append(args,
			slog.Group("round",
				slog.Int("number", resp.Round),
				slog.Int("model_version", resp.ModelVersion),
				slog.Int("participants", resp.NumSubmissions),
				slog.Int("outliers_excluded", resp.OutliersExcluded),
			),
		)
		lm.logger.Info("Aggregate round completed successfully", args...)
	}(time.Now())

	return lm.svc.Aggregate(ctx)
}

func (lm *loggingMiddleware) GlobalModel(ctx context.Context) (resp fl.GlobalModel, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Get global model failed", args...)

			return
		}
		args = append(args,
			slog.Group("model",
				slog.Int("version", resp.Version),
				slog.Int("round", resp.Round),
			),
		)
		lm.logger.Info("Get global model completed successfully", args...)
	}(time.Now())

	return lm.svc.GlobalModel(ctx)
}

func (lm *loggingMiddleware) History(ctx context.Context, offset, limit uint64) (resp coordinator.HistoryPage, err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
			slog.Uint64("offset", offset),
			slog.Uint64("limit", limit),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("List aggregation history failed", args...)

			return
		}
		args = append(args, slog.Uint64("total", resp.Total))
		lm.logger.Info("List aggregation history completed successfully", args...)
	}(time.Now())

	return lm.svc.History(ctx, offset, limit)
}

func (lm *loggingMiddleware) Subscribe(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		args := []any{
			slog.String("duration", time.Since(begin).String()),
		}
		if err != nil {
			args = append(args, slog.Any("error", err))
			lm.logger.Warn("Subscribe to MQTT topic failed", args...)

			return
		}
		lm.logger.Info("Subscribe to MQTT topic completed successfully", args...)
	}(time.Now())

	return lm.svc.Subscribe(ctx)
}
