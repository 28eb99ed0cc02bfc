package fl

import "errors"

var (
	ErrNoSubmissions           = errors.New("no submissions provided for aggregation")
	ErrInvalidSubmission       = errors.New("invalid submission")
	ErrVerificationFailed      = errors.New("submission verification failed")
	ErrInsufficientSubmissions = errors.New("insufficient submissions for aggregation")
	ErrShapeMismatch           = errors.New("model architecture mismatch between submissions")
	ErrAggregationInProgress   = errors.New("aggregation already in progress")
	ErrModelNotPersisted       = errors.New("aggregated model could not be persisted")
	ErrUnknownAlgorithm        = errors.New("unknown aggregation algorithm")
	ErrUnknownWeighting        = errors.New("unknown weighting strategy")
)
