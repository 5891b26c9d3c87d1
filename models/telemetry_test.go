package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completeSample = `{
	"patient_id": 42,
	"date": "2024-03-04",
	"heart_rate": 72.5,
	"hr_variability": 48,
	"steps": 6500,
	"mood_score": 6,
	"sleep_duration_hours": 7.2,
	"sleep_efficiency": 88,
	"num_awakenings": 2,
	"age": 51,
	"day_of_week": 0,
	"weekend": false,
	"medication_taken": true,
	"is_female": true
}`

func TestDecodeTelemetrySample(t *testing.T) {
	s, err := DecodeTelemetrySample([]byte(completeSample))
	require.NoError(t, err)

	assert.Equal(t, "42", s.PatientID)
	assert.Equal(t, "2024-03-04", s.Date)
	assert.Equal(t, 72.5, s.HeartRate)
	assert.Equal(t, 6500, s.Steps)
	assert.Equal(t, 2, s.NumAwakenings)
	assert.True(t, s.MedicationTaken)
	assert.True(t, s.IsFemale)
	assert.False(t, s.Weekend)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), s.Day())
}

func TestDecodeTelemetrySampleCoercesLooseTypes(t *testing.T) {
	s, err := DecodeTelemetrySample([]byte(`{
		"patient_id": "p-7", "date": "2024-03-09", "heart_rate": "80",
		"hr_variability": "35.5", "steps": 1200.0, "mood_score": 4,
		"sleep_duration_hours": "5", "sleep_efficiency": 70, "num_awakenings": "3",
		"age": 63, "day_of_week": 5, "weekend": 1, "medication_taken": "false",
		"is_female": 0
	}`))
	require.NoError(t, err)

	assert.Equal(t, "p-7", s.PatientID)
	assert.Equal(t, 80.0, s.HeartRate)
	assert.Equal(t, 35.5, s.HRVariability)
	assert.Equal(t, 1200, s.Steps)
	assert.Equal(t, 3, s.NumAwakenings)
	assert.True(t, s.Weekend)
	assert.False(t, s.MedicationTaken)
	assert.False(t, s.IsFemale)
}

func TestDecodeTelemetrySampleMissingFields(t *testing.T) {
	_, err := DecodeTelemetrySample([]byte(`{"patient_id": 1, "heart_rate": 70, "steps": null, "date": "2024-01-01"}`))
	require.Error(t, err)

	var missing *MissingFieldsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{
		"hr_variability", "steps", "mood_score", "sleep_duration_hours",
		"sleep_efficiency", "num_awakenings", "age", "day_of_week", "weekend",
		"medication_taken", "is_female",
	}, missing.Fields)
}

func TestDecodeTelemetrySampleRejectsBadValues(t *testing.T) {
	cases := map[string]struct {
		field string
		value string
	}{
		"non numeric heart rate": {"heart_rate", `"fast"`},
		"bad date":               {"date", `"04/03/2024"`},
		"numeric date":           {"date", `20240304`},
		"day out of range":       {"day_of_week", `7`},
		"negative steps":         {"steps", `-5`},
		"bad boolean":            {"weekend", `"yes"`},
		"object id":              {"patient_id", `{"id": 1}`},
		"nan heart rate":         {"heart_rate", `"NaN"`},
		"infinite sleep":         {"sleep_duration_hours", `"Inf"`},
		"negative infinity mood": {"mood_score", `"-Infinity"`},
		"infinite steps":         {"steps", `"+Inf"`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			raw := sampleWith(t, tc.field, tc.value)
			_, err := DecodeTelemetrySample(raw)
			var fieldErr *FieldError
			require.ErrorAs(t, err, &fieldErr)
			assert.Equal(t, tc.field, fieldErr.Field)
		})
	}
}

func TestDecodeTelemetrySampleRejectsNonFinite(t *testing.T) {
	for _, value := range []string{`"NaN"`, `"nan"`, `"Inf"`, `"-inf"`, `"Infinity"`} {
		_, err := DecodeTelemetrySample(sampleWith(t, "heart_rate", value))
		var fieldErr *FieldError
		require.ErrorAs(t, err, &fieldErr, value)
		assert.Equal(t, "heart_rate", fieldErr.Field)
		assert.Equal(t, "must be a finite number", fieldErr.Reason)
	}

	_, err := DecodeTelemetrySample(sampleWith(t, "heart_rate", `"1e400"`))
	var fieldErr *FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "must be numeric", fieldErr.Reason)
}

func TestDecodeTelemetrySampleNotAnObject(t *testing.T) {
	_, err := DecodeTelemetrySample([]byte(`[1, 2]`))
	require.Error(t, err)
	_, err = DecodeTelemetrySample([]byte(`null`))
	require.Error(t, err)
}

func TestSimplePredictionRequestDefaults(t *testing.T) {
	id := int64(9)
	hr := 95.0
	sleep := 4.5
	gender := "f"
	req := SimplePredictionRequest{PatientID: &id, HeartRate: &hr, SleepDurationHours: &sleep, Gender: &gender}

	// Saturday
	s, err := req.ToSample(time.Date(2024, 3, 9, 14, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "9", s.PatientID)
	assert.Equal(t, "2024-03-09", s.Date)
	assert.Equal(t, 5, s.DayOfWeek)
	assert.True(t, s.Weekend)
	assert.True(t, s.IsFemale)
	assert.Equal(t, DefaultAge, s.Age)
	assert.Equal(t, DefaultHRVariability, s.HRVariability)
	assert.Equal(t, DefaultSteps, s.Steps)
	assert.Equal(t, DefaultMoodScore, s.MoodScore)
	assert.Equal(t, DefaultSleepEfficiency, s.SleepEfficiency)
	assert.Equal(t, DefaultNumAwakenings, s.NumAwakenings)
	assert.False(t, s.MedicationTaken)
}

func TestSimplePredictionRequestMonday(t *testing.T) {
	id := int64(1)
	hr := 60.0
	sleep := 8.0
	req := SimplePredictionRequest{PatientID: &id, HeartRate: &hr, SleepDurationHours: &sleep}

	s, err := req.ToSample(time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, s.DayOfWeek)
	assert.False(t, s.Weekend)
	assert.False(t, s.IsFemale)
}

func TestSimplePredictionRequestMissing(t *testing.T) {
	hr := 60.0
	req := SimplePredictionRequest{HeartRate: &hr}

	_, err := req.ToSample(time.Now())
	var missing *MissingFieldsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"patientId", "sleepDurationHours"}, missing.Fields)
}

func sampleWith(t *testing.T, field, value string) []byte {
	t.Helper()
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(completeSample), &raw))
	var v any
	require.NoError(t, json.Unmarshal([]byte(value), &v))
	raw[field] = v
	out, err := json.Marshal(raw)
	require.NoError(t, err)
	return out
}
