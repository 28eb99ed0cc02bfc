package fl

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// minSubmissionsForDetection is the smallest population for which z-scores
// are meaningful. Below it detection is skipped and every submission is
// returned as valid; this is documented policy, not a gap.
const minSubmissionsForDetection = 3

// OutlierReport partitions one round's submissions into the set used for
// aggregation and the set screened out.
type OutlierReport struct {
	Valid    []ModelSubmission
	Outliers []ModelSubmission
}

// DetectOutliers screens submissions whose reported loss or accuracy
// deviates from their peers by more than threshold standard deviations.
// Each submission is scored against the statistics of the other
// submissions, so a single extreme value cannot mask itself by inflating
// the population deviation. The screen is dual-sided: an unusually good
// accuracy is flagged the same as an unusually bad one, since either
// indicates a miscalibrated or adversarial contributor.
func DetectOutliers(subs []ModelSubmission, threshold float64) OutlierReport {
	if len(subs) < minSubmissionsForDetection {
		return OutlierReport{Valid: subs}
	}

	losses := make([]float64, len(subs))
	accuracies := make([]float64, len(subs))
	for i, s := range subs {
		losses[i] = s.Metrics.Loss
		accuracies[i] = s.Metrics.Accuracy
	}

	report := OutlierReport{}
	for i := range subs {
		lossZ := peerZScore(losses, i)
		accZ := peerZScore(accuracies, i)

		if lossZ > threshold || accZ > threshold {
			report.Outliers = append(report.Outliers, subs[i])

			continue
		}
		report.Valid = append(report.Valid, subs[i])
	}

	return report
}

// peerZScore computes |xs[i] - mean| / std where mean and std are the
// population statistics of xs excluding index i. When the peers carry no
// deviation at all, the score is 0 for a matching value and infinite for
// a deviating one.
func peerZScore(xs []float64, i int) float64 {
	peers := make([]float64, 0, len(xs)-1)
	peers = append(peers, xs[:i]...)
	peers = append(peers, xs[i+1:]...)

	mean := stat.Mean(peers, nil)
	std := stat.PopStdDev(peers, nil)
	if std == 0 {
		if xs[i] == mean {
			return 0
		}

		return math.Inf(1)
	}

	return math.Abs(xs[i]-mean) / std
}
