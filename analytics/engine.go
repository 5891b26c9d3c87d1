package analytics

import (
	"context"
	"sort"

	"health-alert-inference/models"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrModelNotLoaded = errors.New("model not loaded")

var engineLog = logrus.WithField("component", "analytics.Engine")

// Scorer is the fitted pipeline: one anomaly score per feature vector.
type Scorer interface {
	Score(fv models.FeatureVector) (float64, error)
}

// HistoryStore holds each patient's recent samples.
type HistoryStore interface {
	// Recent returns up to n of the patient's latest samples dated earlier than
	// the before date (no bound when empty), oldest first.
	Recent(ctx context.Context, patientID, before string, n int) ([]models.TelemetrySample, error)
	Append(ctx context.Context, sample models.TelemetrySample) error
}

type AlertCallback func(event models.AlertEvent)

type EngineConfig struct {
	Scorer        Scorer
	Threshold     float64
	Window        int
	MinPeriods    int
	History       HistoryStore
	RecordHistory bool
	Clock         clock.Clock
	OnAlert       AlertCallback
	OnFallback    func()
}

// Engine runs feature building, scoring and thresholding for prediction requests.
// It holds no mutable state of its own; the scorer and threshold are fixed at
// construction.
type Engine struct {
	scorer     Scorer
	detector   *AnomalyDetector
	features   *FeatureBuilder
	history    HistoryStore
	record     bool
	clock      clock.Clock
	onAlert    AlertCallback
	onFallback func()
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Engine{
		scorer:     cfg.Scorer,
		detector:   NewAnomalyDetector(cfg.Threshold),
		features:   NewFeatureBuilder(cfg.Window, cfg.MinPeriods),
		history:    cfg.History,
		record:     cfg.RecordHistory && cfg.History != nil,
		clock:      cfg.Clock,
		onAlert:    cfg.OnAlert,
		onFallback: cfg.OnFallback,
	}
}

func (e *Engine) ModelLoaded() bool {
	return e.scorer != nil
}

func (e *Engine) Threshold() float64 {
	return e.detector.Threshold()
}

// Predict scores samples and returns one result per sample in request order.
// Samples of the same patient are processed in date order so that earlier
// samples of a batch count as history for later ones.
func (e *Engine) Predict(ctx context.Context, samples []models.TelemetrySample) ([]models.PredictionResult, error) {
	if e.scorer == nil {
		return nil, ErrModelNotLoaded
	}

	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := samples[order[a]], samples[order[b]]
		if sa.PatientID != sb.PatientID {
			return sa.PatientID < sb.PatientID
		}
		return sa.Date < sb.Date
	})

	results := make([]models.PredictionResult, len(samples))
	scored := make(map[string][]models.TelemetrySample)

	for _, idx := range order {
		sample := samples[idx]
		hist := mergeHistory(e.loadHistory(ctx, sample), scored[sample.PatientID], sample.Date)

		fv := e.features.Build(hist, sample)
		if fv.Fallback {
			engineLog.WithField("patient_id", sample.PatientID).
				Debugf("insufficient history (%d prior samples), using fallback features", len(hist))
			if e.onFallback != nil {
				e.onFallback()
			}
		}

		score, err := e.scorer.Score(fv)
		if err != nil {
			return nil, errors.Wrapf(err, "scoring patient %s on %s", sample.PatientID, sample.Date)
		}

		flag, confidence := e.detector.Detect(score)
		results[idx] = models.PredictionResult{
			AlertFlag:     flag,
			AnomalyScore:  score,
			ThresholdUsed: e.detector.Threshold(),
			Confidence:    confidence,
		}

		scored[sample.PatientID] = withSample(scored[sample.PatientID], sample)
	}

	for i, sample := range samples {
		if e.record {
			if err := e.history.Append(ctx, sample); err != nil {
				engineLog.WithError(err).WithField("patient_id", sample.PatientID).Warn("failed to record sample history")
			}
		}
		if results[i].AlertFlag {
			engineLog.Infof("ALERT RAISED: patient=%s, date=%s, score=%.4f, threshold=%.4f",
				sample.PatientID, sample.Date, results[i].AnomalyScore, results[i].ThresholdUsed)
			if e.onAlert != nil {
				e.onAlert(models.AlertEvent{
					PatientID:    sample.PatientID,
					Date:         sample.Date,
					AnomalyScore: results[i].AnomalyScore,
					Threshold:    results[i].ThresholdUsed,
					Confidence:   results[i].Confidence,
					RaisedAt:     e.clock.Now().UTC(),
				})
			}
		}
	}

	return results, nil
}

// loadHistory never fails the request: an unreachable store degrades to the
// fallback feature path.
func (e *Engine) loadHistory(ctx context.Context, sample models.TelemetrySample) []models.TelemetrySample {
	if e.history == nil {
		return nil
	}
	hist, err := e.history.Recent(ctx, sample.PatientID, sample.Date, e.features.Window())
	if err != nil {
		engineLog.WithError(err).WithField("patient_id", sample.PatientID).Warn("failed to load history")
		return nil
	}
	return hist
}

// mergeHistory overlays the batch samples already scored onto the stored
// history. Only entries dated before date are kept; batch samples win on equal
// dates.
func mergeHistory(stored, batch []models.TelemetrySample, date string) []models.TelemetrySample {
	hist := priorTo(stored, date)
	for _, s := range priorTo(batch, date) {
		hist = withSample(hist, s)
	}
	return hist
}

// priorTo returns the entries dated strictly before date. hist is sorted by date.
func priorTo(hist []models.TelemetrySample, date string) []models.TelemetrySample {
	n := sort.Search(len(hist), func(i int) bool { return hist[i].Date >= date })
	return hist[:n]
}

// withSample inserts s into the date-sorted history, replacing an entry on the
// same date.
func withSample(hist []models.TelemetrySample, s models.TelemetrySample) []models.TelemetrySample {
	i := sort.Search(len(hist), func(i int) bool { return hist[i].Date >= s.Date })
	out := make([]models.TelemetrySample, 0, len(hist)+1)
	out = append(out, hist[:i]...)
	out = append(out, s)
	if i < len(hist) && hist[i].Date == s.Date {
		i++
	}
	return append(out, hist[i:]...)
}
