package inference

import (
	"math"

	"health-alert-inference/models"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	ClassifierLogistic = "logistic"
	ClassifierLinear   = "linear"
)

// ScalerParams standardises numeric columns: (x - mean) / scale.
type ScalerParams struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// EncoderParams one-hot encodes categorical columns against known categories.
type EncoderParams struct {
	Categories [][]float64 `json:"categories"`
}

type ClassifierParams struct {
	Kind      string    `json:"kind"`
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

// Pipeline is the JSON export of the fitted preprocessing + classifier
// pipeline. It is read-only after Load.
type Pipeline struct {
	Name                string           `json:"name"`
	Version             string           `json:"version"`
	NumericFeatures     []string         `json:"numeric_features"`
	CategoricalFeatures []string         `json:"categorical_features"`
	Scaler              ScalerParams     `json:"scaler"`
	Encoder             EncoderParams    `json:"encoder"`
	Classifier          ClassifierParams `json:"classifier"`
}

// ParsePipeline decodes and validates a pipeline export.
func ParsePipeline(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "decode pipeline")
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Pipeline) validate() error {
	if len(p.NumericFeatures)+len(p.CategoricalFeatures) == 0 {
		return errors.New("pipeline declares no features")
	}
	if len(p.Scaler.Mean) != len(p.NumericFeatures) || len(p.Scaler.Scale) != len(p.NumericFeatures) {
		return errors.Errorf("scaler has %d means and %d scales for %d numeric features",
			len(p.Scaler.Mean), len(p.Scaler.Scale), len(p.NumericFeatures))
	}
	if len(p.Encoder.Categories) != len(p.CategoricalFeatures) {
		return errors.Errorf("encoder has %d category lists for %d categorical features",
			len(p.Encoder.Categories), len(p.CategoricalFeatures))
	}
	switch p.Classifier.Kind {
	case ClassifierLogistic, ClassifierLinear:
	default:
		return errors.Errorf("unsupported classifier kind %q", p.Classifier.Kind)
	}
	if len(p.Classifier.Coef) != p.width() {
		return errors.Errorf("classifier has %d coefficients, expected %d", len(p.Classifier.Coef), p.width())
	}
	return nil
}

// width is the number of columns after one-hot expansion.
func (p *Pipeline) width() int {
	w := len(p.NumericFeatures)
	for _, cats := range p.Encoder.Categories {
		w += len(cats)
	}
	return w
}

// Transform applies the scaler and encoder, returning the expanded row.
func (p *Pipeline) Transform(fv models.FeatureVector) ([]float64, error) {
	row := make([]float64, 0, p.width())

	for i, name := range p.NumericFeatures {
		v, ok := fv.Lookup(name)
		if !ok {
			return nil, errors.Errorf("feature %q required by pipeline is missing", name)
		}
		v -= p.Scaler.Mean[i]
		if scale := p.Scaler.Scale[i]; scale != 0 {
			v /= scale
		}
		row = append(row, v)
	}

	for i, name := range p.CategoricalFeatures {
		v, ok := fv.Lookup(name)
		if !ok {
			return nil, errors.Errorf("feature %q required by pipeline is missing", name)
		}
		for _, cat := range p.Encoder.Categories[i] {
			if v == cat {
				row = append(row, 1)
			} else {
				row = append(row, 0)
			}
		}
	}
	return row, nil
}

// Score returns the anomaly score for one feature vector: the positive class
// probability for logistic classifiers, the raw decision value for linear ones.
func (p *Pipeline) Score(fv models.FeatureVector) (float64, error) {
	row, err := p.Transform(fv)
	if err != nil {
		return 0, err
	}

	z := p.Classifier.Intercept
	for i, x := range row {
		z += p.Classifier.Coef[i] * x
	}

	score := z
	if p.Classifier.Kind == ClassifierLogistic {
		score = 1 / (1 + math.Exp(-z))
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, errors.Errorf("pipeline produced a non-finite score (%v)", score)
	}
	return score, nil
}
