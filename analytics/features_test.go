package analytics

import (
	"fmt"
	"math"
	"testing"

	"health-alert-inference/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseSample(patient, date string) models.TelemetrySample {
	return models.TelemetrySample{
		PatientID:          patient,
		Date:               date,
		HeartRate:          70,
		HRVariability:      50,
		Steps:              5000,
		MoodScore:          6,
		SleepDurationHours: 7.5,
		SleepEfficiency:    90,
		NumAwakenings:      1,
		Age:                40,
		DayOfWeek:          2,
	}
}

func TestRollingWindow(t *testing.T) {
	rw := NewRollingWindow(3)
	assert.Equal(t, 0.0, rw.Average())
	assert.Equal(t, 0.0, rw.StdDev())
	assert.Equal(t, 0.0, rw.Last())

	for _, v := range []float64{1, 2, 3, 4} {
		rw.Add(v)
	}
	require.Equal(t, 3, rw.Len())
	assert.Equal(t, 3.0, rw.Average())
	assert.Equal(t, 1.0, rw.StdDev())
	assert.Equal(t, 4.0, rw.Last())
	assert.ElementsMatch(t, []float64{2, 3, 4}, rw.GetValues())
}

func TestFeatureColumnOrder(t *testing.T) {
	fv := NewFeatureBuilder(7, 3).Build(nil, baseSample("1", "2024-01-10"))

	assert.Equal(t, []string{
		"heart_rate_delta", "heart_rate_z",
		"hr_variability_delta", "hr_variability_z",
		"steps_delta", "steps_z",
		"mood_score_delta", "mood_score_z",
		"sleep_duration_hours_delta", "sleep_duration_hours_z",
		"sleep_efficiency_delta", "sleep_efficiency_z",
		"num_awakenings_delta", "num_awakenings_z",
		"steps_log1p", "awakenings_per_hour", "hr_hrv_ratio", "sleep_debt",
		"age", "dow_sin", "dow_cos",
		"weekend", "medication_taken", "is_female",
	}, fv.Names())
}

func TestFallbackFeatures(t *testing.T) {
	s := baseSample("1", "2024-01-08")
	s.HeartRate = 80
	s.HRVariability = 40
	s.Steps = 0
	s.SleepDurationHours = 0.25
	s.NumAwakenings = 2
	s.DayOfWeek = 0
	s.Age = 30
	s.Weekend = false
	s.MedicationTaken = true
	s.IsFemale = true

	fv := NewFeatureBuilder(7, 3).Build(nil, s)
	require.True(t, fv.Fallback)

	for _, name := range ContinuousVars {
		delta, ok := fv.Lookup(name + "_delta")
		require.True(t, ok)
		assert.Zero(t, delta)
		z, ok := fv.Lookup(name + "_z")
		require.True(t, ok)
		assert.Zero(t, z)
	}

	expect := map[string]float64{
		"steps_log1p":         0,
		"awakenings_per_hour": 4, // sleep clamped to 0.5h
		"hr_hrv_ratio":        2,
		"sleep_debt":          7.25,
		"age":                 30,
		"dow_sin":             0,
		"dow_cos":             1,
		"weekend":             0,
		"medication_taken":    1,
		"is_female":           1,
	}
	for name, want := range expect {
		got, ok := fv.Lookup(name)
		require.True(t, ok, name)
		assert.InDelta(t, want, got, 1e-9, name)
	}
}

func TestDerivedFeatureClamps(t *testing.T) {
	s := baseSample("1", "2024-01-08")
	s.HRVariability = 0
	s.HeartRate = 80
	s.SleepDurationHours = 9
	s.Steps = 99
	s.DayOfWeek = 3

	fv := NewFeatureBuilder(7, 3).Build(nil, s)

	ratio, _ := fv.Lookup("hr_hrv_ratio")
	assert.InDelta(t, 80000, ratio, 1e-6)
	debt, _ := fv.Lookup("sleep_debt")
	assert.Zero(t, debt)
	logSteps, _ := fv.Lookup("steps_log1p")
	assert.InDelta(t, math.Log(100), logSteps, 1e-9)
	sin, _ := fv.Lookup("dow_sin")
	assert.InDelta(t, math.Sin(2*math.Pi*3/7), sin, 1e-9)
}

func TestFallbackBelowMinPeriods(t *testing.T) {
	history := []models.TelemetrySample{
		baseSample("1", "2024-01-01"),
		baseSample("1", "2024-01-02"),
	}
	fv := NewFeatureBuilder(7, 3).Build(history, baseSample("1", "2024-01-03"))
	assert.True(t, fv.Fallback)
}

func TestRollingFeatures(t *testing.T) {
	var history []models.TelemetrySample
	for i, hr := range []float64{60, 70, 80} {
		h := baseSample("1", fmt.Sprintf("2024-01-0%d", i+1))
		h.HeartRate = hr
		history = append(history, h)
	}
	current := baseSample("1", "2024-01-04")
	current.HeartRate = 90
	current.Steps = 6000

	fv := NewFeatureBuilder(7, 3).Build(history, current)
	require.False(t, fv.Fallback)

	delta, _ := fv.Lookup("heart_rate_delta")
	assert.InDelta(t, 10, delta, 1e-9)
	z, _ := fv.Lookup("heart_rate_z")
	assert.InDelta(t, 2, z, 1e-9)

	// constant history: delta from last value, z held at zero
	stepsDelta, _ := fv.Lookup("steps_delta")
	assert.InDelta(t, 1000, stepsDelta, 1e-9)
	stepsZ, _ := fv.Lookup("steps_z")
	assert.Zero(t, stepsZ)
}

func TestRollingFeaturesUseLastWindowOnly(t *testing.T) {
	var history []models.TelemetrySample
	for i := 0; i < 10; i++ {
		h := baseSample("1", fmt.Sprintf("2024-01-%02d", i+1))
		h.HeartRate = 1000
		if i >= 7 {
			h.HeartRate = float64(60 + 10*(i-7))
		}
		history = append(history, h)
	}
	current := baseSample("1", "2024-01-11")
	current.HeartRate = 90

	fv := NewFeatureBuilder(3, 3).Build(history, current)
	z, _ := fv.Lookup("heart_rate_z")
	assert.InDelta(t, 2, z, 1e-9)
}

func TestAnomalyDetector(t *testing.T) {
	ad := NewAnomalyDetector(0.4)

	flag, confidence := ad.Detect(0.9)
	assert.True(t, flag)
	assert.InDelta(t, 0.5, confidence, 1e-12)

	flag, confidence = ad.Detect(0.1)
	assert.False(t, flag)
	assert.InDelta(t, 0.3, confidence, 1e-12)

	flag, confidence = ad.Detect(0.4)
	assert.True(t, flag)
	assert.Zero(t, confidence)
}
