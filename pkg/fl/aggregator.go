package fl

import (
	"fmt"
	"sort"
	"time"
)

// Aggregate combines submissions into a single set of model weights using
// the configured algorithm. It requires at least one submission and that
// every submission carries the same architecture as the first; a mismatch
// is a caller bug and is reported as ErrShapeMismatch, never repaired by
// truncating to the shortest shape.
func Aggregate(subs []ModelSubmission, cfg AggregationConfig) (ModelWeights, error) {
	if len(subs) == 0 {
		return ModelWeights{}, ErrNoSubmissions
	}

	if err := checkArchitectures(subs); err != nil {
		return ModelWeights{}, err
	}

	switch cfg.Algorithm {
	case AlgorithmFedAvg:
		weights := equalWeights(len(subs))

		return fedAvg(subs, weights), nil
	case AlgorithmWeightedFedAvg, "":
		weights, err := NormalizedWeights(subs, cfg.WeightingStrategy)
		if err != nil {
			return ModelWeights{}, err
		}

		return fedAvg(subs, weights), nil
	case AlgorithmMedian:
		return medianAggregate(subs), nil
	default:
		return ModelWeights{}, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, cfg.Algorithm)
	}
}

// NormalizedWeights computes the per-submission scalar weights for the
// given strategy, normalized to sum to 1.
func NormalizedWeights(subs []ModelSubmission, strategy string) ([]float64, error) {
	raw := make([]float64, len(subs))

	switch strategy {
	case WeightingEqual, "":
		for i := range raw {
			raw[i] = 1
		}
	case WeightingAccuracy:
		for i, s := range subs {
			raw[i] = s.Metrics.Accuracy
		}
	case WeightingDatasetSize:
		for i, s := range subs {
			raw[i] = float64(s.DatasetSize)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownWeighting, strategy)
	}

	var total float64
	for _, w := range raw {
		total += w
	}
	if total <= 0 {
		// All-zero weights (e.g. every accuracy is 0) degrade to equal.
		return equalWeights(len(subs)), nil
	}

	for i := range raw {
		raw[i] /= total
	}

	return raw, nil
}

func equalWeights(n int) []float64 {
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1 / float64(n)
	}

	return weights
}

// fedAvg computes the per-coordinate weighted sum of every weight matrix
// and bias vector. Accumulation is in float64 throughout so that rounding
// drift stays bounded regardless of how contributors stored their weights.
func fedAvg(subs []ModelSubmission, weights []float64) ModelWeights {
	ref := subs[0].Weights
	out := newZeroWeights(ref)

	for s, sub := range subs {
		w := weights[s]
		for l, layer := range sub.Weights.Layers {
			dst := &out.Layers[l]
			for i, row := range layer.Weights {
				for j, v := range row {
					dst.Weights[i][j] += v * w
				}
			}
			for i, v := range layer.Bias {
				dst.Bias[i] += v * w
			}
		}
	}

	return out
}

// medianAggregate takes, for every coordinate independently, the median of
// that coordinate's value across all submissions. For even counts the
// lower median is used. A single adversarial extreme shifts the result by
// at most the gap to the next order statistic, unlike a mean.
func medianAggregate(subs []ModelSubmission) ModelWeights {
	ref := subs[0].Weights
	out := newZeroWeights(ref)
	scratch := make([]float64, len(subs))

	coordinateMedian := func(pick func(ModelWeights) float64) float64 {
		for s, sub := range subs {
			scratch[s] = pick(sub.Weights)
		}
		sort.Float64s(scratch)

		return scratch[(len(scratch)-1)/2]
	}

	for l := range ref.Layers {
		dst := &out.Layers[l]
		for i := range ref.Layers[l].Weights {
			for j := range ref.Layers[l].Weights[i] {
				dst.Weights[i][j] = coordinateMedian(func(mw ModelWeights) float64 {
					return mw.Layers[l].Weights[i][j]
				})
			}
		}
		for i := range ref.Layers[l].Bias {
			dst.Bias[i] = coordinateMedian(func(mw ModelWeights) float64 {
				return mw.Layers[l].Bias[i]
			})
		}
	}

	return out
}

// newZeroWeights allocates an all-zero ModelWeights with the same shape,
// architecture and parameter count as ref.
func newZeroWeights(ref ModelWeights) ModelWeights {
	out := ModelWeights{
		Layers:          make([]LayerWeights, len(ref.Layers)),
		Architecture:    ref.Architecture,
		TotalParameters: ref.TotalParameters,
	}
	for l, layer := range ref.Layers {
		zl := LayerWeights{Name: layer.Name}
		if len(layer.Weights) > 0 {
			zl.Weights = make([][]float64, len(layer.Weights))
			for i, row := range layer.Weights {
				zl.Weights[i] = make([]float64, len(row))
			}
		}
		if len(layer.Bias) > 0 {
			zl.Bias = make([]float64, len(layer.Bias))
		}
		out.Layers[l] = zl
	}

	return out
}

// checkArchitectures verifies the aggregation precondition that every
// submission has the same concrete shape as the first.
func checkArchitectures(subs []ModelSubmission) error {
	ref := subs[0].Weights
	for s := 1; s < len(subs); s++ {
		cand := subs[s].Weights
		if len(cand.Layers) != len(ref.Layers) {
			return fmt.Errorf("%w: submission %q has %d layers, expected %d",
				ErrShapeMismatch, subs[s].ParticipantID, len(cand.Layers), len(ref.Layers))
		}
		for l := range ref.Layers {
			if err := checkLayerShape(ref.Layers[l], cand.Layers[l]); err != nil {
				return fmt.Errorf("%w: submission %q layer %d: %v",
					ErrShapeMismatch, subs[s].ParticipantID, l, err)
			}
		}
	}

	return nil
}

func checkLayerShape(ref, cand LayerWeights) error {
	if len(cand.Weights) != len(ref.Weights) {
		return fmt.Errorf("weight rows %d != %d", len(cand.Weights), len(ref.Weights))
	}
	for i := range ref.Weights {
		if len(cand.Weights[i]) != len(ref.Weights[i]) {
			return fmt.Errorf("weight row %d cols %d != %d", i, len(cand.Weights[i]), len(ref.Weights[i]))
		}
	}
	if len(cand.Bias) != len(ref.Bias) {
		return fmt.Errorf("bias length %d != %d", len(cand.Bias), len(ref.Bias))
	}

	return nil
}

// AggregateMetrics computes the dataset-size weighted averages of the
// contributing submissions' reported metrics.
func AggregateMetrics(subs []ModelSubmission) AggregationMetrics {
	if len(subs) == 0 {
		return AggregationMetrics{}
	}

	var totalSamples float64
	for _, s := range subs {
		totalSamples += float64(s.DatasetSize)
	}

	var m AggregationMetrics
	for _, s := range subs {
		w := float64(s.DatasetSize) / totalSamples
		m.AverageLoss += s.Metrics.Loss * w
		m.AverageMAE += s.Metrics.MAE * w
		m.AverageAccuracy += s.Metrics.Accuracy * w
	}

	return m
}

// BuildGlobalModel is the only constructor of GlobalModel. It derives the
// metadata and performance blocks from an aggregation result and the
// submissions that contributed to it.
func BuildGlobalModel(result AggregationResult, subs []ModelSubmission) GlobalModel {
	var totalSamples int
	for _, s := range subs {
		totalSamples += s.DatasetSize
	}

	return GlobalModel{
		Version:      result.ModelVersion,
		Round:        result.Round,
		Weights:      result.GlobalWeights,
		Architecture: result.GlobalWeights.Architecture,
		Metadata: GlobalModelMetadata{
			TrainedBy:       len(result.ParticipatingFarmers),
			TotalSamples:    totalSamples,
			AverageAccuracy: result.Metrics.AverageAccuracy,
			CreatedAt:       time.Now().UTC(),
		},
		PerformanceMetrics: PerformanceMetrics{
			GlobalMAE:  result.Metrics.AverageMAE,
			GlobalMSE:  result.Metrics.AverageLoss,
			Confidence: result.Metrics.AverageAccuracy,
		},
	}
}
