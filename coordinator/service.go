package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/edgechain/edgechain/pkg/blob"
	pkgerrors "github.com/edgechain/edgechain/pkg/errors"
	"github.com/edgechain/edgechain/pkg/fl"
	"github.com/edgechain/edgechain/pkg/mqtt"
	"github.com/edgechain/edgechain/pkg/storage"
	"github.com/edgechain/edgechain/pkg/verify"
)

const (
	globalModelKey = "fl/global-model"
	countersKey    = "fl/counters"
	historyPrefix  = "fl/history/"

	roundCompleteTopic = "edgechain/fl/rounds/complete"
	submissionsTopic   = "edgechain/fl/submissions"
)

type service struct {
	cfg      fl.AggregationConfig
	store    storage.Storage
	blobs    blob.Store
	verifier verify.Gateway
	pubsub   mqtt.PubSub
	logger   *slog.Logger

	// mu guards the pool and counters; it is never held across
	// verification, aggregation arithmetic or storage I/O.
	mu          sync.Mutex
	pool        map[string]fl.ModelSubmission
	counters    fl.RoundCounters
	aggregating bool
}

// NewService constructs a round coordinator. pubsub may be nil when the
// deployment has no broker; round-complete events are then skipped.
// Counters persisted by a previous process are restored from the store.
func NewService(store storage.Storage, blobs blob.Store, verifier verify.Gateway, pubsub mqtt.PubSub, cfg fl.AggregationConfig, logger *slog.Logger) (Service, error) {
	if cfg.MinSubmissions <= 0 {
		cfg.MinSubmissions = fl.DefaultMinSubmissions
	}
	if cfg.OutlierThreshold <= 0 {
		cfg.OutlierThreshold = fl.DefaultOutlierThreshold
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = fl.AlgorithmWeightedFedAvg
	}

	svc := &service{
		cfg:      cfg,
		store:    store,
		blobs:    blobs,
		verifier: verifier,
		pubsub:   pubsub,
		logger:   logger,
		pool:     make(map[string]fl.ModelSubmission),
		counters: fl.RoundCounters{CurrentRound: 1, CurrentVersion: 0},
	}

	data, err := store.Get(context.Background(), countersKey)
	switch {
	case err == nil:
		counters, ok := data.(fl.RoundCounters)
		if !ok {
			return nil, pkgerrors.ErrInvalidData
		}
		svc.counters = counters
	case errors.Is(err, pkgerrors.ErrNotFound):
	default:
		return nil, fmt.Errorf("failed to restore round counters: %w", err)
	}

	return svc, nil
}

func (svc *service) Submit(ctx context.Context, sub fl.ModelSubmission) (SubmitOutcome, error) {
	if err := fl.Validate(sub); err != nil {
		return SubmitOutcome{}, err
	}

	// Verification is the only slow path here; it runs before the pool
	// lock is taken so concurrent intake is not serialized behind it.
	verified, err := svc.verifier.VerifySubmission(ctx, sub)
	if err != nil {
		return SubmitOutcome{}, fmt.Errorf("%w: %w", fl.ErrVerificationFailed, err)
	}
	if !verified {
		return SubmitOutcome{}, fl.ErrVerificationFailed
	}

	svc.mu.Lock()
	svc.pool[sub.ParticipantID] = sub
	poolSize := len(svc.pool)
	thresholdMet := poolSize >= svc.cfg.MinSubmissions && !svc.aggregating
	svc.mu.Unlock()

	outcome := SubmitOutcome{Accepted: true, PoolSize: poolSize}
	if !thresholdMet {
		return outcome, nil
	}

	result, err := svc.Aggregate(ctx)
	switch {
	case err == nil:
		outcome.AggregationTriggered = true
		outcome.NewVersion = &result.ModelVersion
	case errors.Is(err, fl.ErrAggregationInProgress):
		// Another trigger won the race; this submission is pooled for
		// the next round.
	default:
		// The submission itself was accepted; the failed pass keeps the
		// pool intact and is retried on a later trigger.
		outcome.AggregationTriggered = true
		svc.logger.WarnContext(ctx, "Threshold-triggered aggregation failed",
			slog.Int("pool_size", poolSize),
			slog.Any("error", err))
	}

	return outcome, nil
}

func (svc *service) Status(_ context.Context) (Status, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	return Status{
		CurrentRound:          svc.counters.CurrentRound,
		CurrentVersion:        svc.counters.CurrentVersion,
		PoolSize:              len(svc.pool),
		MinSubmissions:        svc.cfg.MinSubmissions,
		AggregationInProgress: svc.aggregating,
	}, nil
}

func (svc *service) Aggregate(ctx context.Context) (fl.AggregationResult, error) {
	snapshot, counters, err := svc.freezePool()
	if err != nil {
		return fl.AggregationResult{}, err
	}

	result, err := svc.runAggregation(ctx, snapshot, counters)
	if err != nil {
		svc.restorePool(snapshot)

		return fl.AggregationResult{}, err
	}

	svc.mu.Lock()
	svc.counters = fl.RoundCounters{
		CurrentRound:   result.Round + 1,
		CurrentVersion: result.ModelVersion,
	}
	svc.aggregating = false
	svc.mu.Unlock()

	svc.announceRound(ctx, result)

	return result, nil
}

// freezePool atomically snapshots and clears the live pool. Submissions
// arriving while the pass runs land in the fresh pool for the next round.
func (svc *service) freezePool() ([]fl.ModelSubmission, fl.RoundCounters, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.aggregating {
		return nil, fl.RoundCounters{}, fl.ErrAggregationInProgress
	}

	svc.aggregating = true
	snapshot := make([]fl.ModelSubmission, 0, len(svc.pool))
	for _, sub := range svc.pool {
		snapshot = append(snapshot, sub)
	}
	svc.pool = make(map[string]fl.ModelSubmission)

	return snapshot, svc.counters, nil
}

// restorePool returns a failed pass's snapshot to the live pool. Entries
// submitted during the pass win over their snapshotted predecessors.
func (svc *service) restorePool(snapshot []fl.ModelSubmission) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	for _, sub := range snapshot {
		if _, ok := svc.pool[sub.ParticipantID]; !ok {
			svc.pool[sub.ParticipantID] = sub
		}
	}
	svc.aggregating = false
}

func (svc *service) runAggregation(ctx context.Context, snapshot []fl.ModelSubmission, counters fl.RoundCounters) (fl.AggregationResult, error) {
	if len(snapshot) < svc.cfg.MinSubmissions {
		return fl.AggregationResult{}, fmt.Errorf("%w: have %d, need %d",
			fl.ErrInsufficientSubmissions, len(snapshot), svc.cfg.MinSubmissions)
	}

	contributing := snapshot
	if svc.cfg.OutlierDetection {
		report := fl.DetectOutliers(snapshot, svc.cfg.OutlierThreshold)
		switch {
		case len(report.Valid) < svc.cfg.MinSubmissions:
			// Fail open to availability: dropping outliers would leave
			// too few contributors, so the full verified set is used.
			svc.logger.WarnContext(ctx, "Outlier filter would drop below minimum, using full set",
				slog.Int("valid", len(report.Valid)),
				slog.Int("outliers", len(report.Outliers)),
				slog.Int("min_submissions", svc.cfg.MinSubmissions))
		default:
			for _, o := range report.Outliers {
				svc.logger.InfoContext(ctx, "Excluding outlier submission",
					slog.String("participant_id", o.ParticipantID),
					slog.Float64("loss", o.Metrics.Loss),
					slog.Float64("accuracy", o.Metrics.Accuracy))
			}
			contributing = report.Valid
		}
	}

	weights, err := fl.Aggregate(contributing, svc.cfg)
	if err != nil {
		if errors.Is(err, fl.ErrShapeMismatch) {
			// Shapes diverging past intake validation is a contract
			// violation elsewhere in the system.
			svc.logger.ErrorContext(ctx, "Shape mismatch reached the aggregator",
				slog.Int("round", counters.CurrentRound),
				slog.Any("error", err))
		}

		return fl.AggregationResult{}, err
	}

	farmers := make([]string, 0, len(contributing))
	for _, sub := range contributing {
		farmers = append(farmers, sub.ParticipantID)
	}
	sort.Strings(farmers)

	result := fl.AggregationResult{
		Round:                counters.CurrentRound,
		ModelVersion:         counters.CurrentVersion + 1,
		GlobalWeights:        weights,
		NumSubmissions:       len(contributing),
		OutliersExcluded:     len(snapshot) - len(contributing),
		ParticipatingFarmers: farmers,
		Metrics:              fl.AggregateMetrics(contributing),
		Timestamp:            time.Now().UTC(),
	}

	model := fl.BuildGlobalModel(result, contributing)

	if svc.blobs != nil {
		payload, err := json.Marshal(weights)
		if err != nil {
			return fl.AggregationResult{}, fmt.Errorf("%w: %w", fl.ErrModelNotPersisted, err)
		}
		blobID, err := svc.blobs.Put(ctx, payload)
		if err != nil {
			return fl.AggregationResult{}, fmt.Errorf("%w: %w", fl.ErrModelNotPersisted, err)
		}
		model.WeightsBlobID = blobID
	}

	if err := svc.persist(ctx, model, result); err != nil {
		return fl.AggregationResult{}, err
	}

	return result, nil
}

// persist writes the new model, advanced counters and history entry. Any
// failure here leaves the previously persisted model in place and the
// round is rolled back by the caller.
func (svc *service) persist(ctx context.Context, model fl.GlobalModel, result fl.AggregationResult) error {
	if err := svc.store.Upsert(ctx, globalModelKey, model); err != nil {
		return fmt.Errorf("%w: %w", fl.ErrModelNotPersisted, err)
	}

	counters := fl.RoundCounters{
		CurrentRound:   result.Round + 1,
		CurrentVersion: result.ModelVersion,
	}
	if err := svc.store.Upsert(ctx, countersKey, counters); err != nil {
		return fmt.Errorf("%w: %w", fl.ErrModelNotPersisted, err)
	}

	historyKey := fmt.Sprintf("%s%08d", historyPrefix, result.ModelVersion)
	if err := svc.store.Create(ctx, historyKey, result); err != nil {
		// History is an audit log; losing one entry does not invalidate
		// the published model.
		svc.logger.WarnContext(ctx, "Failed to append aggregation history",
			slog.String("key", historyKey),
			slog.Any("error", err))
	}

	return nil
}

func (svc *service) announceRound(ctx context.Context, result fl.AggregationResult) {
	if svc.pubsub == nil {
		return
	}

	msg := map[string]any{
		"round":         result.Round,
		"model_version": result.ModelVersion,
		"num_farmers":   len(result.ParticipatingFarmers),
		"timestamp":     result.Timestamp,
	}
	if err := svc.pubsub.Publish(ctx, roundCompleteTopic, msg); err != nil {
		svc.logger.WarnContext(ctx, "Failed to announce completed round",
			slog.Int("round", result.Round),
			slog.Any("error", err))

		return
	}

	svc.logger.InfoContext(ctx, "Announced completed round",
		slog.Int("round", result.Round),
		slog.Int("model_version", result.ModelVersion))
}

func (svc *service) Subscribe(ctx context.Context) error {
	if svc.pubsub == nil {
		return nil
	}

	return svc.pubsub.Subscribe(ctx, submissionsTopic, svc.handleSubmission(ctx))
}

// handleSubmission adapts an inbound broker message onto Submit. Intake
// validation and verification apply to broker submissions exactly as to
// HTTP ones.
func (svc *service) handleSubmission(ctx context.Context) mqtt.Handler {
	return func(topic string, msg map[string]any) error {
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}

		var sub fl.ModelSubmission
		if err := json.Unmarshal(data, &sub); err != nil {
			return fmt.Errorf("failed to decode submission from %s: %w", topic, err)
		}

		if _, err := svc.Submit(ctx, sub); err != nil {
			return fmt.Errorf("failed to pool submission from %s: %w", topic, err)
		}

		return nil
	}
}

func (svc *service) GlobalModel(ctx context.Context) (fl.GlobalModel, error) {
	data, err := svc.store.Get(ctx, globalModelKey)
	if err != nil {
		return fl.GlobalModel{}, err
	}

	model, ok := data.(fl.GlobalModel)
	if !ok {
		return fl.GlobalModel{}, pkgerrors.ErrInvalidData
	}

	return model, nil
}

func (svc *service) History(ctx context.Context, offset, limit uint64) (HistoryPage, error) {
	data, total, err := svc.store.List(ctx, historyPrefix, offset, limit)
	if err != nil {
		return HistoryPage{}, err
	}

	results := make([]fl.AggregationResult, 0, len(data))
	for i := range data {
		r, ok := data[i].(fl.AggregationResult)
		if !ok {
			return HistoryPage{}, pkgerrors.ErrInvalidData
		}
		results = append(results, r)
	}

	return HistoryPage{
		Offset:  offset,
		Limit:   limit,
		Total:   total,
		Results: results,
	}, nil
}
