package fl

import "time"

// Aggregation algorithms selectable via AggregationConfig.
const (
	AlgorithmFedAvg         = "fedavg"
	AlgorithmWeightedFedAvg = "weighted-fedavg"
	AlgorithmMedian         = "median"
)

// Weighting strategies for weighted FedAvg.
const (
	WeightingEqual       = "equal"
	WeightingAccuracy    = "accuracy"
	WeightingDatasetSize = "dataset-size"
)

const (
	DefaultMinSubmissions   = 3
	DefaultOutlierThreshold = 2.5
)

// LayerSpec describes the shape of one layer in a model architecture.
type LayerSpec struct {
	Name       string `json:"name"`
	InputSize  int    `json:"input_size"`
	OutputSize int    `json:"output_size"`
}

// ModelArchitecture identifies the network structure a set of weights was
// produced under. All submissions in one round must share it.
type ModelArchitecture struct {
	Name   string      `json:"name"`
	Layers []LayerSpec `json:"layers"`
}

// LayerWeights holds the parameters of a single layer. Weights is a
// row-major matrix, Bias a vector; either may be empty but not both.
type LayerWeights struct {
	Name    string      `json:"name"`
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

// ModelWeights is an ordered sequence of layer parameters together with
// the architecture they were produced under.
type ModelWeights struct {
	Layers          []LayerWeights    `json:"layers"`
	Architecture    ModelArchitecture `json:"architecture"`
	TotalParameters int               `json:"total_parameters"`
}

// SubmissionMetrics are the training metrics reported alongside a
// submission. All values must be finite; accuracy is in [0, 1].
type SubmissionMetrics struct {
	Loss     float64 `json:"loss"`
	MAE      float64 `json:"mae"`
	Accuracy float64 `json:"accuracy"`
}

// ModelSubmission is one participant's contribution for a round. It is
// created by a training collaborator and never mutated afterwards.
type ModelSubmission struct {
	ParticipantID string            `json:"participant_id"`
	Weights       ModelWeights      `json:"weights"`
	WeightsHash   string            `json:"weights_hash"`
	Metrics       SubmissionMetrics `json:"metrics"`
	DatasetSize   int               `json:"dataset_size"`
	Round         int               `json:"round"`
	ModelVersion  int               `json:"model_version"`
	Timestamp     time.Time         `json:"timestamp"`
	Signature     string            `json:"signature,omitempty"`
	TxHash        string            `json:"tx_hash,omitempty"`
}

// AggregationConfig selects the combination algorithm and its knobs.
type AggregationConfig struct {
	Algorithm         string  `json:"algorithm"`
	MinSubmissions    int     `json:"min_submissions"`
	WeightingStrategy string  `json:"weighting_strategy"`
	OutlierDetection  bool    `json:"outlier_detection"`
	OutlierThreshold  float64 `json:"outlier_threshold"`
}

// DefaultConfig returns the configuration used when a deployment does not
// override anything: weighted FedAvg by dataset size with outlier
// screening enabled.
func DefaultConfig() AggregationConfig {
	return AggregationConfig{
		Algorithm:         AlgorithmWeightedFedAvg,
		MinSubmissions:    DefaultMinSubmissions,
		WeightingStrategy: WeightingDatasetSize,
		OutlierDetection:  true,
		OutlierThreshold:  DefaultOutlierThreshold,
	}
}

// AggregationMetrics are the dataset-size weighted averages of the
// contributing submissions' metrics.
type AggregationMetrics struct {
	AverageLoss     float64 `json:"average_loss"`
	AverageMAE      float64 `json:"average_mae"`
	AverageAccuracy float64 `json:"average_accuracy"`
}

// AggregationResult is the output of one aggregation pass.
type AggregationResult struct {
	Round                int                `json:"round"`
	ModelVersion         int                `json:"model_version"`
	GlobalWeights        ModelWeights       `json:"global_weights"`
	NumSubmissions       int                `json:"num_submissions"`
	OutliersExcluded     int                `json:"outliers_excluded"`
	ParticipatingFarmers []string           `json:"participating_farmers"`
	Metrics              AggregationMetrics `json:"aggregation_metrics"`
	Timestamp            time.Time          `json:"timestamp"`
}

// RoundCounters is the persisted round/version state of a coordinator.
// Rounds start at 1, versions at 0.
type RoundCounters struct {
	CurrentRound   int `json:"current_round"`
	CurrentVersion int `json:"current_version"`
}

// GlobalModelMetadata describes how a global model was produced.
type GlobalModelMetadata struct {
	TrainedBy       int       `json:"trained_by"`
	TotalSamples    int       `json:"total_samples"`
	AverageAccuracy float64   `json:"average_accuracy"`
	CreatedAt       time.Time `json:"created_at"`
}

// PerformanceMetrics summarise the expected quality of a global model.
type PerformanceMetrics struct {
	GlobalMAE  float64 `json:"global_mae"`
	GlobalMSE  float64 `json:"global_mse"`
	Confidence float64 `json:"confidence"`
}

// GlobalModel is the distributable artifact of a completed round. It is
// immutable; the next round supersedes it with a new version.
type GlobalModel struct {
	Version            int                 `json:"version"`
	Round              int                 `json:"round"`
	Weights            ModelWeights        `json:"weights"`
	Architecture       ModelArchitecture   `json:"architecture"`
	Metadata           GlobalModelMetadata `json:"metadata"`
	PerformanceMetrics PerformanceMetrics  `json:"performance_metrics"`
	WeightsBlobID      string              `json:"weights_blob_id,omitempty"`
}
