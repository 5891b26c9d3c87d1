package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"health-alert-inference/analytics"
	"health-alert-inference/models"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 10 << 20

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	alertsRaisedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alerts_raised_total",
			Help: "Total number of samples flagged as anomalous",
		},
	)

	alertFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alerts_publish_failures_total",
			Help: "Total number of alert events dropped or not delivered",
		},
	)

	featureFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feature_fallback_total",
			Help: "Total number of samples scored with fallback features",
		},
	)

	modelLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "model_loaded",
			Help: "1 when the inference pipeline is loaded",
		},
	)
)

var log = logrus.WithField("component", "handlers")

func RecordAlert() { alertsRaisedTotal.Inc() }
func RecordAlertFailure() { alertFailuresTotal.Inc() }
func RecordFallback() { featureFallbackTotal.Inc() }

func SetModelLoaded(loaded bool) {
	if loaded {
		modelLoaded.Set(1)
	} else {
		modelLoaded.Set(0)
	}
}

// Predictor is the inference engine as seen by the HTTP layer.
type Predictor interface {
	Predict(ctx context.Context, samples []models.TelemetrySample) ([]models.PredictionResult, error)
	ModelLoaded() bool
}

type PredictHandler struct {
	engine  Predictor
	clock   clock.Clock
	version string
}

func NewPredictHandler(engine Predictor, clk clock.Clock, version string) *PredictHandler {
	if clk == nil {
		clk = clock.New()
	}
	return &PredictHandler{engine: engine, clock: clk, version: version}
}

func (h *PredictHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":      "AI Prediction Service",
		"version":      h.version,
		"status":       "running",
		"model_loaded": h.engine.ModelLoaded(),
		"endpoints": map[string]string{
			"health":         "/health",
			"predict":        "/predict (POST)",
			"predict_batch":  "/predict/batch (POST)",
			"predict_simple": "/predict/simple (POST)",
		},
		"usage": map[string]string{
			"health_check":      "GET /health",
			"single_prediction": "POST /predict",
			"batch_prediction":  "POST /predict/batch",
			"simple_prediction": "POST /predict/simple",
		},
	})
}

func (h *PredictHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"model_loaded": h.engine.ModelLoaded(),
	})
}

// HandlePredict scores one sample carrying all required fields.
func (h *PredictHandler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	if !h.engine.ModelLoaded() {
		writeError(w, http.StatusInternalServerError, analytics.ErrModelNotLoaded)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "read request body"))
		return
	}

	sample, err := models.DecodeTelemetrySample(body)
	if err != nil {
		writeRequestError(w, "", err)
		return
	}

	h.predict(w, r, sample)
}

// HandleBatch scores {"samples": [...]}. Every sample must be complete.
func (h *PredictHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	if !h.engine.ModelLoaded() {
		writeError(w, http.StatusInternalServerError, analytics.ErrModelNotLoaded)
		return
	}

	var req models.BatchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON format"))
		return
	}
	if len(req.Samples) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no samples provided"))
		return
	}

	samples := make([]models.TelemetrySample, 0, len(req.Samples))
	for i, raw := range req.Samples {
		sample, err := models.DecodeTelemetrySample(raw)
		if err != nil {
			writeRequestError(w, fmt.Sprintf("samples[%d]: ", i), err)
			return
		}
		samples = append(samples, sample)
	}

	results, err := h.engine.Predict(r.Context(), samples)
	if err != nil {
		writePredictError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.BatchResponse{
		Success:     true,
		Predictions: results,
		Count:       len(results),
	})
}

// HandleSimple scores a sample built from a few vitals plus defaults, dated today.
func (h *PredictHandler) HandleSimple(w http.ResponseWriter, r *http.Request) {
	if !h.engine.ModelLoaded() {
		writeError(w, http.StatusInternalServerError, analytics.ErrModelNotLoaded)
		return
	}

	var req models.SimplePredictionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON format"))
		return
	}

	sample, err := req.ToSample(h.clock.Now())
	if err != nil {
		writeRequestError(w, "", err)
		return
	}

	h.predict(w, r, sample)
}

func (h *PredictHandler) predict(w http.ResponseWriter, r *http.Request, sample models.TelemetrySample) {
	results, err := h.engine.Predict(r.Context(), []models.TelemetrySample{sample})
	if err != nil {
		writePredictError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.PredictResponse{
		Success:    true,
		Prediction: results[0],
	})
}

func writeRequestError(w http.ResponseWriter, prefix string, err error) {
	var missing *models.MissingFieldsError
	if errors.As(err, &missing) {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
			Error:         prefix + missing.Error(),
			MissingFields: missing.Fields,
		})
		return
	}
	writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: prefix + err.Error()})
}

func writePredictError(w http.ResponseWriter, err error) {
	if errors.Is(err, analytics.ErrModelNotLoaded) {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	log.WithError(err).Error("prediction failed")
	writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{
		Error: "prediction failed: " + err.Error(),
		Trace: fmt.Sprintf("%+v", err),
	})
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, models.ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("failed to write response")
	}
}
