package fl

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testArchitecture() ModelArchitecture {
	return ModelArchitecture{
		Name: "yield-mlp",
		Layers: []LayerSpec{
			{Name: "dense_1", InputSize: 2, OutputSize: 2},
			{Name: "output", InputSize: 2, OutputSize: 1},
		},
	}
}

func testSubmission(id string, scale float64, datasetSize int) ModelSubmission {
	return ModelSubmission{
		ParticipantID: id,
		DatasetSize:   datasetSize,
		Metrics:       SubmissionMetrics{Loss: 0.1, MAE: 0.05, Accuracy: 0.9},
		Weights: ModelWeights{
			Architecture:    testArchitecture(),
			TotalParameters: 9,
			Layers: []LayerWeights{
				{
					Name:    "dense_1",
					Weights: [][]float64{{scale, 2 * scale}, {3 * scale, 4 * scale}},
					Bias:    []float64{scale, -scale},
				},
				{
					Name:    "output",
					Weights: [][]float64{{5 * scale}, {6 * scale}},
					Bias:    []float64{0.5 * scale},
				},
			},
		},
	}
}

func TestAggregateNoSubmissions(t *testing.T) {
	_, err := Aggregate(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNoSubmissions)
}

func TestAggregateShapeMismatch(t *testing.T) {
	subs := []ModelSubmission{
		testSubmission("farmer-1", 1, 10),
		testSubmission("farmer-2", 2, 10),
	}
	subs[1].Weights.Layers[0].Weights = [][]float64{{1, 2, 3}, {4, 5, 6}}

	_, err := Aggregate(subs, DefaultConfig())
	require.ErrorIs(t, err, ErrShapeMismatch)
	assert.Contains(t, err.Error(), "farmer-2")
}

func TestAggregateUnknownAlgorithm(t *testing.T) {
	subs := []ModelSubmission{testSubmission("farmer-1", 1, 10)}

	_, err := Aggregate(subs, AggregationConfig{Algorithm: "trimmed-mean"})
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestNormalizedWeightsSumToOne(t *testing.T) {
	subs := []ModelSubmission{
		testSubmission("farmer-1", 1, 10),
		testSubmission("farmer-2", 2, 250),
		testSubmission("farmer-3", 3, 37),
		testSubmission("farmer-4", 4, 1),
	}
	subs[0].Metrics.Accuracy = 0.31
	subs[1].Metrics.Accuracy = 0.97
	subs[2].Metrics.Accuracy = 0.66
	subs[3].Metrics.Accuracy = 0.05

	for _, strategy := range []string{WeightingEqual, WeightingAccuracy, WeightingDatasetSize} {
		t.Run(strategy, func(t *testing.T) {
			weights, err := NormalizedWeights(subs, strategy)
			require.NoError(t, err)
			require.Len(t, weights, len(subs))

			var sum float64
			for _, w := range weights {
				sum += w
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
		})
	}
}

func TestNormalizedWeightsUnknownStrategy(t *testing.T) {
	subs := []ModelSubmission{testSubmission("farmer-1", 1, 10)}

	_, err := NormalizedWeights(subs, "stake")
	assert.ErrorIs(t, err, ErrUnknownWeighting)
}

func TestNormalizedWeightsAllZeroFallsBackToEqual(t *testing.T) {
	subs := []ModelSubmission{
		testSubmission("farmer-1", 1, 10),
		testSubmission("farmer-2", 2, 10),
	}
	subs[0].Metrics.Accuracy = 0
	subs[1].Metrics.Accuracy = 0

	weights, err := NormalizedWeights(subs, WeightingAccuracy)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5}, weights)
}

func TestAggregatePreservesArchitecture(t *testing.T) {
	subs := []ModelSubmission{
		testSubmission("farmer-1", 1, 10),
		testSubmission("farmer-2", 2, 20),
		testSubmission("farmer-3", 3, 30),
	}

	for _, algorithm := range []string{AlgorithmFedAvg, AlgorithmWeightedFedAvg, AlgorithmMedian} {
		t.Run(algorithm, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Algorithm = algorithm

			out, err := Aggregate(subs, cfg)
			require.NoError(t, err)
			assert.Equal(t, subs[0].Weights.Architecture, out.Architecture)
			assert.Equal(t, subs[0].Weights.TotalParameters, out.TotalParameters)
			require.Len(t, out.Layers, len(subs[0].Weights.Layers))
			for l, layer := range out.Layers {
				assert.Equal(t, subs[0].Weights.Layers[l].Name, layer.Name)
				assert.Len(t, layer.Weights, len(subs[0].Weights.Layers[l].Weights))
				assert.Len(t, layer.Bias, len(subs[0].Weights.Layers[l].Bias))
			}
		})
	}
}

func TestEqualWeightingMatchesArithmeticMean(t *testing.T) {
	subs := []ModelSubmission{
		testSubmission("farmer-1", 1, 50),
		testSubmission("farmer-2", 4, 50),
		testSubmission("farmer-3", 7, 50),
	}

	cfg := DefaultConfig()
	cfg.WeightingStrategy = WeightingEqual

	out, err := Aggregate(subs, cfg)
	require.NoError(t, err)

	for l := range subs[0].Weights.Layers {
		for i, row := range subs[0].Weights.Layers[l].Weights {
			for j := range row {
				var mean float64
				for _, s := range subs {
					mean += s.Weights.Layers[l].Weights[i][j]
				}
				mean /= float64(len(subs))
				assert.InDelta(t, mean, out.Layers[l].Weights[i][j], 1e-12,
					"layer %d weight (%d,%d)", l, i, j)
			}
		}
		for i := range subs[0].Weights.Layers[l].Bias {
			var mean float64
			for _, s := range subs {
				mean += s.Weights.Layers[l].Bias[i]
			}
			mean /= float64(len(subs))
			assert.InDelta(t, mean, out.Layers[l].Bias[i], 1e-12)
		}
	}
}

func TestDatasetSizeWeighting(t *testing.T) {
	arch := ModelArchitecture{
		Name:   "single",
		Layers: []LayerSpec{{Name: "dense", InputSize: 1, OutputSize: 1}},
	}
	single := func(id string, value float64, datasetSize int) ModelSubmission {
		return ModelSubmission{
			ParticipantID: id,
			DatasetSize:   datasetSize,
			Metrics:       SubmissionMetrics{Accuracy: 0.9},
			Weights: ModelWeights{
				Architecture:    arch,
				TotalParameters: 1,
				Layers: []LayerWeights{
					{Name: "dense", Weights: [][]float64{{value}}},
				},
			},
		}
	}

	subs := []ModelSubmission{
		single("farmer-1", 1.0, 10),
		single("farmer-2", 2.0, 20),
		single("farmer-3", 3.0, 30),
	}

	cfg := DefaultConfig()
	cfg.WeightingStrategy = WeightingDatasetSize

	out, err := Aggregate(subs, cfg)
	require.NoError(t, err)

	// (1*10 + 2*20 + 3*30) / 60
	assert.InDelta(t, 2.3333333333, out.Layers[0].Weights[0][0], 1e-9)
}

func TestMedianOddCountPicksMiddle(t *testing.T) {
	subs := []ModelSubmission{
		testSubmission("farmer-1", 9, 10),
		testSubmission("farmer-2", 1, 10),
		testSubmission("farmer-3", 5, 10),
	}

	cfg := DefaultConfig()
	cfg.Algorithm = AlgorithmMedian

	out, err := Aggregate(subs, cfg)
	require.NoError(t, err)

	// scale 5 is the middle submission at every coordinate.
	assert.Equal(t, subs[2].Weights.Layers[0].Weights, out.Layers[0].Weights)
	assert.Equal(t, subs[2].Weights.Layers[1].Bias, out.Layers[1].Bias)
}

func TestMedianEvenCountUsesLowerMedian(t *testing.T) {
	subs := []ModelSubmission{
		testSubmission("farmer-1", 1, 10),
		testSubmission("farmer-2", 2, 10),
		testSubmission("farmer-3", 3, 10),
		testSubmission("farmer-4", 4, 10),
	}

	cfg := DefaultConfig()
	cfg.Algorithm = AlgorithmMedian

	out, err := Aggregate(subs, cfg)
	require.NoError(t, err)
	assert.Equal(t, subs[1].Weights.Layers[0].Weights, out.Layers[0].Weights)
}

func TestMedianBoundsAdversarialInfluence(t *testing.T) {
	honest := []ModelSubmission{
		testSubmission("farmer-1", 1.0, 10),
		testSubmission("farmer-2", 1.1, 10),
		testSubmission("farmer-3", 1.2, 10),
	}
	poisoned := append([]ModelSubmission{}, honest[0], honest[1],
		testSubmission("farmer-3", 1e9, 10))

	cfg := DefaultConfig()
	cfg.Algorithm = AlgorithmMedian

	clean, err := Aggregate(honest, cfg)
	require.NoError(t, err)
	dirty, err := Aggregate(poisoned, cfg)
	require.NoError(t, err)

	// The median moves from the farmer-3 coordinate to farmer-2's; the
	// shift is bounded by the gap between order statistics.
	assert.InDelta(t, clean.Layers[0].Weights[0][0], dirty.Layers[0].Weights[0][0], 0.2)

	meanCfg := DefaultConfig()
	meanCfg.WeightingStrategy = WeightingEqual
	dirtyMean, err := Aggregate(poisoned, meanCfg)
	require.NoError(t, err)
	assert.Greater(t, dirtyMean.Layers[0].Weights[0][0], 1e8)
}

func TestAggregateMetricsWeightedByDatasetSize(t *testing.T) {
	subs := []ModelSubmission{
		testSubmission("farmer-1", 1, 10),
		testSubmission("farmer-2", 2, 30),
	}
	subs[0].Metrics = SubmissionMetrics{Loss: 0.4, MAE: 0.2, Accuracy: 0.8}
	subs[1].Metrics = SubmissionMetrics{Loss: 0.2, MAE: 0.1, Accuracy: 0.9}

	m := AggregateMetrics(subs)
	assert.InDelta(t, 0.25, m.AverageLoss, 1e-9)
	assert.InDelta(t, 0.125, m.AverageMAE, 1e-9)
	assert.InDelta(t, 0.875, m.AverageAccuracy, 1e-9)
}

func TestBuildGlobalModel(t *testing.T) {
	subs := []ModelSubmission{
		testSubmission("farmer-1", 1, 10),
		testSubmission("farmer-2", 2, 20),
		testSubmission("farmer-3", 3, 30),
	}

	weights, err := Aggregate(subs, DefaultConfig())
	require.NoError(t, err)

	result := AggregationResult{
		Round:                4,
		ModelVersion:         4,
		GlobalWeights:        weights,
		NumSubmissions:       len(subs),
		ParticipatingFarmers: []string{"farmer-1", "farmer-2", "farmer-3"},
		Metrics:              AggregateMetrics(subs),
	}

	model := BuildGlobalModel(result, subs)
	assert.Equal(t, 4, model.Version)
	assert.Equal(t, 4, model.Round)
	assert.Equal(t, 3, model.Metadata.TrainedBy)
	assert.Equal(t, 60, model.Metadata.TotalSamples)
	assert.Equal(t, weights.Architecture, model.Architecture)
	assert.False(t, model.Metadata.CreatedAt.IsZero())
	assert.InDelta(t, result.Metrics.AverageAccuracy, model.PerformanceMetrics.Confidence, 1e-12)
}

func TestFedAvgAccumulatesLargePool(t *testing.T) {
	subs := make([]ModelSubmission, 0, 25)
	for i := range 25 {
		subs = append(subs, testSubmission(fmt.Sprintf("farmer-%d", i), float64(i), 10+i))
	}

	out, err := Aggregate(subs, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, subs[0].Weights.Architecture, out.Architecture)
}
