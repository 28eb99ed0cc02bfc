package coordinator

import (
	"context"

	"github.com/edgechain/edgechain/pkg/fl"
)

// SubmitOutcome reports what happened to one submission at intake.
type SubmitOutcome struct {
	Accepted             bool `json:"accepted"`
	PoolSize             int  `json:"pool_size"`
	AggregationTriggered bool `json:"aggregation_triggered"`
	NewVersion           *int `json:"new_version,omitempty"`
}

// Status is a snapshot of the coordinator's round state.
type Status struct {
	CurrentRound          int  `json:"current_round"`
	CurrentVersion        int  `json:"current_version"`
	PoolSize              int  `json:"pool_size"`
	MinSubmissions        int  `json:"min_submissions"`
	AggregationInProgress bool `json:"aggregation_in_progress"`
}

// HistoryPage is a page of the append-only aggregation audit log.
type HistoryPage struct {
	Offset  uint64                 `json:"offset"`
	Limit   uint64                 `json:"limit"`
	Total   uint64                 `json:"total"`
	Results []fl.AggregationResult `json:"results"`
}

// Service is the aggregation core's in-process entry point. A surrounding
// transport (HTTP, message handler) adapts requests onto it.
type Service interface {
	// Submit validates and verifies one participant submission and, when
	// admitted, inserts or replaces that participant's pool entry for the
	// current round. Reaching the submission threshold triggers an
	// aggregation pass.
	Submit(ctx context.Context, sub fl.ModelSubmission) (SubmitOutcome, error)

	// Status reports the current round, version and pool state.
	Status(ctx context.Context) (Status, error)

	// Aggregate runs one aggregation pass over the pooled submissions.
	// It is a guarded no-op while a pass is already running.
	Aggregate(ctx context.Context) (fl.AggregationResult, error)

	// GlobalModel returns the latest persisted global model.
	GlobalModel(ctx context.Context) (fl.GlobalModel, error)

	// History pages through past aggregation results, oldest first.
	History(ctx context.Context, offset, limit uint64) (HistoryPage, error)

	// Subscribe attaches the coordinator to the broker's submission
	// topic, so collaborators can submit over MQTT as well as HTTP. It
	// is a no-op when the deployment has no broker.
	Subscribe(ctx context.Context) error
}
