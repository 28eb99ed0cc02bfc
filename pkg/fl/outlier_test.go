package fl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricSubmission(id string, loss, accuracy float64) ModelSubmission {
	sub := testSubmission(id, 1, 100)
	sub.Metrics.Loss = loss
	sub.Metrics.Accuracy = accuracy

	return sub
}

func TestDetectOutliersTooFewSubmissions(t *testing.T) {
	subs := []ModelSubmission{
		metricSubmission("farmer-1", 0.1, 0.9),
		metricSubmission("farmer-2", 99.0, 0.01),
	}

	report := DetectOutliers(subs, DefaultOutlierThreshold)
	assert.Len(t, report.Valid, 2)
	assert.Empty(t, report.Outliers)
}

func TestDetectOutliersZeroStd(t *testing.T) {
	subs := []ModelSubmission{
		metricSubmission("farmer-1", 0.1, 0.9),
		metricSubmission("farmer-2", 0.1, 0.9),
		metricSubmission("farmer-3", 0.1, 0.9),
	}

	report := DetectOutliers(subs, DefaultOutlierThreshold)
	assert.Len(t, report.Valid, 3)
	assert.Empty(t, report.Outliers)
}

func TestDetectOutliersCorruptAccuracy(t *testing.T) {
	subs := []ModelSubmission{
		metricSubmission("farmer-1", 0.1, 0.80),
		metricSubmission("farmer-2", 0.1, 0.82),
		metricSubmission("farmer-3", 0.1, 0.81),
		metricSubmission("farmer-4", 0.1, 0.83),
		metricSubmission("farmer-5", 0.1, 0.10),
	}

	report := DetectOutliers(subs, DefaultOutlierThreshold)
	require.Len(t, report.Outliers, 1)
	assert.Equal(t, "farmer-5", report.Outliers[0].ParticipantID)
	assert.Len(t, report.Valid, 4)
}

func TestDetectOutliersSymmetric(t *testing.T) {
	base := []ModelSubmission{
		metricSubmission("farmer-1", 0.10, 0.80),
		metricSubmission("farmer-2", 0.10, 0.81),
		metricSubmission("farmer-3", 0.10, 0.82),
		metricSubmission("farmer-4", 0.10, 0.80),
	}

	// Roughly mean +/- 10 std of the clustered peers; the screen must
	// flag implausibly good accuracies the same as implausibly bad ones.
	for name, accuracy := range map[string]float64{"high": 0.99, "low": 0.63} {
		t.Run(name, func(t *testing.T) {
			subs := append([]ModelSubmission{}, base...)
			subs = append(subs, metricSubmission("farmer-x", 0.10, accuracy))

			report := DetectOutliers(subs, DefaultOutlierThreshold)
			require.Len(t, report.Outliers, 1)
			assert.Equal(t, "farmer-x", report.Outliers[0].ParticipantID)
		})
	}
}

func TestDetectOutliersFlagsLoss(t *testing.T) {
	subs := []ModelSubmission{
		metricSubmission("farmer-1", 0.10, 0.85),
		metricSubmission("farmer-2", 0.11, 0.85),
		metricSubmission("farmer-3", 0.12, 0.85),
		metricSubmission("farmer-4", 0.11, 0.85),
		metricSubmission("farmer-5", 50.0, 0.85),
	}

	report := DetectOutliers(subs, DefaultOutlierThreshold)
	require.Len(t, report.Outliers, 1)
	assert.Equal(t, "farmer-5", report.Outliers[0].ParticipantID)
}
