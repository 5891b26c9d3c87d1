package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DateLayout is the calendar date format carried by telemetry samples.
const DateLayout = "2006-01-02"

// RequiredFields lists every field a prediction request must carry, in the order
// they are reported when missing.
var RequiredFields = []string{
	"patient_id", "heart_rate", "hr_variability", "steps",
	"mood_score", "sleep_duration_hours", "sleep_efficiency",
	"num_awakenings", "age", "day_of_week", "weekend",
	"medication_taken", "is_female", "date",
}

// TelemetrySample is one patient-day record.
type TelemetrySample struct {
	PatientID          string  `json:"patient_id"`
	Date               string  `json:"date"`
	HeartRate          float64 `json:"heart_rate"`
	HRVariability      float64 `json:"hr_variability"`
	Steps              int     `json:"steps"`
	MoodScore          float64 `json:"mood_score"`
	SleepDurationHours float64 `json:"sleep_duration_hours"`
	SleepEfficiency    float64 `json:"sleep_efficiency"`
	NumAwakenings      int     `json:"num_awakenings"`
	Age                int     `json:"age"`
	DayOfWeek          int     `json:"day_of_week"`
	Weekend            bool    `json:"weekend"`
	MedicationTaken    bool    `json:"medication_taken"`
	IsFemale           bool    `json:"is_female"`
}

// MissingFieldsError reports required fields absent from a request.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// FieldError reports a field that is present but cannot be used.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Reason
}

// DecodeTelemetrySample parses a JSON object into a sample. Absent and null
// fields are both treated as missing.
func DecodeTelemetrySample(data []byte) (TelemetrySample, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return TelemetrySample{}, errors.Wrap(err, "invalid JSON object")
	}
	if raw == nil {
		return TelemetrySample{}, errors.New("invalid JSON object")
	}
	return ParseTelemetrySample(raw)
}

// ParseTelemetrySample converts raw field values into a sample, coercing numeric
// strings and 0/1 booleans the way loosely typed clients send them.
func ParseTelemetrySample(raw map[string]json.RawMessage) (TelemetrySample, error) {
	if missing := MissingFields(raw); len(missing) > 0 {
		return TelemetrySample{}, &MissingFieldsError{Fields: missing}
	}

	var (
		s   TelemetrySample
		err error
	)
	if s.PatientID, err = parseID("patient_id", raw["patient_id"]); err != nil {
		return s, err
	}
	if s.Date, err = parseDate("date", raw["date"]); err != nil {
		return s, err
	}

	floats := []struct {
		name string
		dst  *float64
	}{
		{"heart_rate", &s.HeartRate},
		{"hr_variability", &s.HRVariability},
		{"mood_score", &s.MoodScore},
		{"sleep_duration_hours", &s.SleepDurationHours},
		{"sleep_efficiency", &s.SleepEfficiency},
	}
	for _, f := range floats {
		if *f.dst, err = parseFloat(f.name, raw[f.name]); err != nil {
			return s, err
		}
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"steps", &s.Steps},
		{"num_awakenings", &s.NumAwakenings},
		{"age", &s.Age},
		{"day_of_week", &s.DayOfWeek},
	}
	for _, f := range ints {
		if *f.dst, err = parseInt(f.name, raw[f.name]); err != nil {
			return s, err
		}
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"weekend", &s.Weekend},
		{"medication_taken", &s.MedicationTaken},
		{"is_female", &s.IsFemale},
	}
	for _, f := range bools {
		if *f.dst, err = parseBool(f.name, raw[f.name]); err != nil {
			return s, err
		}
	}

	return s, s.Validate()
}

// MissingFields returns the required fields that are absent or null, in
// RequiredFields order.
func MissingFields(raw map[string]json.RawMessage) []string {
	var missing []string
	for _, field := range RequiredFields {
		v, ok := raw[field]
		if !ok || isNull(v) {
			missing = append(missing, field)
		}
	}
	return missing
}

func (s *TelemetrySample) Validate() error {
	if s.PatientID == "" {
		return &FieldError{Field: "patient_id", Reason: "must not be empty"}
	}
	if _, err := time.Parse(DateLayout, s.Date); err != nil {
		return &FieldError{Field: "date", Reason: "invalid date format, expected YYYY-MM-DD"}
	}
	if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
		return &FieldError{Field: "day_of_week", Reason: "must be between 0 and 6"}
	}
	if s.Steps < 0 {
		return &FieldError{Field: "steps", Reason: "must be non-negative"}
	}
	if s.NumAwakenings < 0 {
		return &FieldError{Field: "num_awakenings", Reason: "must be non-negative"}
	}
	if s.SleepDurationHours < 0 {
		return &FieldError{Field: "sleep_duration_hours", Reason: "must be non-negative"}
	}
	return nil
}

// Day returns the sample date. Samples that passed Validate always parse.
func (s *TelemetrySample) Day() time.Time {
	t, err := time.Parse(DateLayout, s.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isNull(v json.RawMessage) bool {
	return strings.TrimSpace(string(v)) == "null"
}

// scalar unwraps a JSON scalar into its text form, reporting whether it was quoted.
func scalar(v json.RawMessage) (string, bool) {
	var str string
	if err := json.Unmarshal(v, &str); err == nil {
		return strings.TrimSpace(str), true
	}
	return strings.TrimSpace(string(v)), false
}

func parseID(field string, v json.RawMessage) (string, error) {
	text, quoted := scalar(v)
	if !quoted {
		if _, err := strconv.ParseFloat(text, 64); err != nil {
			return "", &FieldError{Field: field, Reason: "must be a number or a string"}
		}
	}
	return text, nil
}

func parseDate(field string, v json.RawMessage) (string, error) {
	text, quoted := scalar(v)
	if !quoted {
		return "", &FieldError{Field: field, Reason: "must be a string"}
	}
	return text, nil
}

func parseFloat(field string, v json.RawMessage) (float64, error) {
	text, _ := scalar(v)
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, &FieldError{Field: field, Reason: "must be numeric"}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &FieldError{Field: field, Reason: "must be a finite number"}
	}
	return f, nil
}

func parseInt(field string, v json.RawMessage) (int, error) {
	f, err := parseFloat(field, v)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func parseBool(field string, v json.RawMessage) (bool, error) {
	text, _ := scalar(v)
	switch strings.ToLower(text) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, &FieldError{Field: field, Reason: "must be a boolean"}
}
