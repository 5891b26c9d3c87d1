package analytics

import (
	"math"

	"health-alert-inference/models"
)

const (
	DefaultFeatureWindow = 7
	DefaultMinPeriods    = 3

	minSleepHours    = 0.5
	minHRVariability = 1e-3
	sleepBaselineHrs = 7.5
	zeroStdTolerance = 1e-9
	daysPerWeek      = 7.0
)

// ContinuousVars are the telemetry variables that get delta and z-score columns.
var ContinuousVars = []string{
	"heart_rate", "hr_variability", "steps", "mood_score",
	"sleep_duration_hours", "sleep_efficiency", "num_awakenings",
}

// CategoricalVars pass through to the model as 0/1 columns.
var CategoricalVars = []string{"weekend", "medication_taken", "is_female"}

// FeatureBuilder derives model inputs from a sample and the patient's history.
type FeatureBuilder struct {
	window     int
	minPeriods int
}

func NewFeatureBuilder(window, minPeriods int) *FeatureBuilder {
	if window <= 0 {
		window = DefaultFeatureWindow
	}
	if minPeriods <= 0 {
		minPeriods = DefaultMinPeriods
	}
	if minPeriods > window {
		minPeriods = window
	}
	return &FeatureBuilder{window: window, minPeriods: minPeriods}
}

func (fb *FeatureBuilder) Window() int {
	return fb.window
}

// Build computes the feature vector for sample. history must hold the patient's
// earlier samples in ascending date order; only the last window entries count.
// With fewer than minPeriods prior samples every delta and z-score is zero.
func (fb *FeatureBuilder) Build(history []models.TelemetrySample, sample models.TelemetrySample) models.FeatureVector {
	if len(history) > fb.window {
		history = history[len(history)-fb.window:]
	}
	fallback := len(history) < fb.minPeriods

	current := continuousValues(sample)
	fv := models.FeatureVector{Fallback: fallback}

	windows := make([]*RollingWindow, len(ContinuousVars))
	for i := range windows {
		windows[i] = NewRollingWindow(fb.window)
	}
	for _, h := range history {
		for i, v := range continuousValues(h) {
			windows[i].Add(v)
		}
	}

	for i, name := range ContinuousVars {
		var delta, z float64
		if !fallback {
			rw := windows[i]
			delta = current[i] - rw.Last()
			if std := rw.StdDev(); std > zeroStdTolerance {
				z = (current[i] - rw.Average()) / std
			}
		}
		fv.Numeric = append(fv.Numeric,
			models.Feature{Name: name + "_delta", Value: delta},
			models.Feature{Name: name + "_z", Value: z},
		)
	}

	dow := float64(sample.DayOfWeek)
	fv.Numeric = append(fv.Numeric,
		models.Feature{Name: "steps_log1p", Value: math.Log1p(float64(sample.Steps))},
		models.Feature{Name: "awakenings_per_hour", Value: float64(sample.NumAwakenings) / math.Max(sample.SleepDurationHours, minSleepHours)},
		models.Feature{Name: "hr_hrv_ratio", Value: sample.HeartRate / math.Max(sample.HRVariability, minHRVariability)},
		models.Feature{Name: "sleep_debt", Value: math.Max(0, sleepBaselineHrs-sample.SleepDurationHours)},
		models.Feature{Name: "age", Value: float64(sample.Age)},
		models.Feature{Name: "dow_sin", Value: math.Sin(2 * math.Pi * dow / daysPerWeek)},
		models.Feature{Name: "dow_cos", Value: math.Cos(2 * math.Pi * dow / daysPerWeek)},
	)

	fv.Categorical = []models.Feature{
		{Name: "weekend", Value: boolValue(sample.Weekend)},
		{Name: "medication_taken", Value: boolValue(sample.MedicationTaken)},
		{Name: "is_female", Value: boolValue(sample.IsFemale)},
	}
	return fv
}

// continuousValues follows ContinuousVars order.
func continuousValues(s models.TelemetrySample) []float64 {
	return []float64{
		s.HeartRate,
		s.HRVariability,
		float64(s.Steps),
		s.MoodScore,
		s.SleepDurationHours,
		s.SleepEfficiency,
		float64(s.NumAwakenings),
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
