package models

import (
	"encoding/json"
	"time"
)

// Feature is one named column of a feature vector.
type Feature struct {
	Name  string
	Value float64
}

// FeatureVector is the model input derived from a single sample.
type FeatureVector struct {
	Numeric     []Feature
	Categorical []Feature
	// Fallback is set when the patient had too little history for rolling statistics.
	Fallback bool
}

// Lookup returns the value of the named column.
func (fv FeatureVector) Lookup(name string) (float64, bool) {
	for _, f := range fv.Numeric {
		if f.Name == name {
			return f.Value, true
		}
	}
	for _, f := range fv.Categorical {
		if f.Name == name {
			return f.Value, true
		}
	}
	return 0, false
}

// Names returns numeric then categorical column names.
func (fv FeatureVector) Names() []string {
	names := make([]string, 0, len(fv.Numeric)+len(fv.Categorical))
	for _, f := range fv.Numeric {
		names = append(names, f.Name)
	}
	for _, f := range fv.Categorical {
		names = append(names, f.Name)
	}
	return names
}

type PredictionResult struct {
	AlertFlag     bool    `json:"alert_flag"`
	AnomalyScore  float64 `json:"anomaly_score"`
	ThresholdUsed float64 `json:"threshold_used"`
	Confidence    float64 `json:"confidence"`
}

// AlertEvent is published for every flagged sample.
type AlertEvent struct {
	PatientID    string    `json:"patient_id"`
	Date         string    `json:"date"`
	AnomalyScore float64   `json:"anomaly_score"`
	Threshold    float64   `json:"threshold"`
	Confidence   float64   `json:"confidence"`
	RaisedAt     time.Time `json:"raised_at"`
}

type BatchRequest struct {
	Samples []json.RawMessage `json:"samples"`
}

type PredictResponse struct {
	Success    bool             `json:"success"`
	Prediction PredictionResult `json:"prediction"`
}

type BatchResponse struct {
	Success     bool               `json:"success"`
	Predictions []PredictionResult `json:"predictions"`
	Count       int                `json:"count"`
}

type ErrorResponse struct {
	Success       bool     `json:"success"`
	Error         string   `json:"error"`
	MissingFields []string `json:"missing_fields,omitempty"`
	Trace         string   `json:"trace,omitempty"`
}
