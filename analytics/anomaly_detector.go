package analytics

import (
	"math"
)

// DefaultThreshold is used when the threshold artifact does not carry tau.
const DefaultThreshold = 0.5

// AnomalyDetector turns a pipeline score into an alert decision.
type AnomalyDetector struct {
	threshold float64
}

func NewAnomalyDetector(threshold float64) *AnomalyDetector {
	return &AnomalyDetector{threshold: threshold}
}

func (ad *AnomalyDetector) Threshold() float64 {
	return ad.threshold
}

// Detect flags scores at or above the threshold. Confidence is the distance
// from the threshold.
func (ad *AnomalyDetector) Detect(score float64) (bool, float64) {
	isAnomaly := score >= ad.threshold
	confidence := math.Abs(score - ad.threshold)
	return isAnomaly, confidence
}
