package models

import (
	"strconv"
	"strings"
	"time"
)

// Defaults applied to fields a simplified request leaves out.
const (
	DefaultAge             = 45
	DefaultGender          = "M"
	DefaultHRVariability   = 50.0
	DefaultSteps           = 5000
	DefaultMoodScore       = 5.0
	DefaultSleepEfficiency = 85.0
	DefaultNumAwakenings   = 1
)

// SimplePredictionRequest carries the vitals a clinician front end usually has at
// hand. Everything except the patient, heart rate and sleep duration is optional.
type SimplePredictionRequest struct {
	PatientID          *int64   `json:"patientId"`
	Age                *int     `json:"age"`
	Gender             *string  `json:"gender"`
	HeartRate          *float64 `json:"heartRate"`
	HRVariability      *float64 `json:"hrVariability"`
	Steps              *int     `json:"steps"`
	MoodScore          *float64 `json:"moodScore"`
	SleepDurationHours *float64 `json:"sleepDurationHours"`
	SleepEfficiency    *float64 `json:"sleepEfficiency"`
	NumAwakenings      *int     `json:"numAwakenings"`
	MedicationTaken    *bool    `json:"medicationTaken"`
}

// Missing returns the required camelCase fields left out of the request.
func (r *SimplePredictionRequest) Missing() []string {
	var missing []string
	if r.PatientID == nil {
		missing = append(missing, "patientId")
	}
	if r.HeartRate == nil {
		missing = append(missing, "heartRate")
	}
	if r.SleepDurationHours == nil {
		missing = append(missing, "sleepDurationHours")
	}
	return missing
}

// ToSample fills defaults and dates the sample on now. Day of week counts from
// Monday = 0.
func (r *SimplePredictionRequest) ToSample(now time.Time) (TelemetrySample, error) {
	if missing := r.Missing(); len(missing) > 0 {
		return TelemetrySample{}, &MissingFieldsError{Fields: missing}
	}

	gender := DefaultGender
	if r.Gender != nil && *r.Gender != "" {
		gender = *r.Gender
	}
	dow := (int(now.Weekday()) + 6) % 7

	s := TelemetrySample{
		PatientID:          formatID(*r.PatientID),
		Date:               now.Format(DateLayout),
		HeartRate:          *r.HeartRate,
		HRVariability:      floatOr(r.HRVariability, DefaultHRVariability),
		Steps:              intOr(r.Steps, DefaultSteps),
		MoodScore:          floatOr(r.MoodScore, DefaultMoodScore),
		SleepDurationHours: *r.SleepDurationHours,
		SleepEfficiency:    floatOr(r.SleepEfficiency, DefaultSleepEfficiency),
		NumAwakenings:      intOr(r.NumAwakenings, DefaultNumAwakenings),
		Age:                intOr(r.Age, DefaultAge),
		DayOfWeek:          dow,
		Weekend:            now.Weekday() == time.Saturday || now.Weekday() == time.Sunday,
		IsFemale:           strings.EqualFold(gender, "F"),
	}
	if r.MedicationTaken != nil {
		s.MedicationTaken = *r.MedicationTaken
	}
	return s, s.Validate()
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
