package predictor

import (
	"errors"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/models"
)

// Ensemble weights. They are fixed and never renormalized when a sub-model is missing.
const (
	SequenceWeight = 0.6
	TabularWeight  = 0.4
)

// Sub-model names used in reports, logs and metrics.
const (
	SubModelSequence = "sequence"
	SubModelTabular  = "tabular"
)

var (
	ErrNotTrained       = errors.New("predictor is not trained")
	ErrSingleClass      = errors.New("training labels contain a single class")
	ErrInsufficientData = errors.New("insufficient training data")
	ErrFeatureMismatch  = errors.New("feature layout does not match trained model")
	ErrNoSubModel       = errors.New("no sub-model could be trained")
)

// Capabilities declares which sub-models this deployment can run. It is injected at
// construction time; a disabled sub-model contributes 0 to the ensemble.
type Capabilities struct {
	Sequence bool `yaml:"sequence" json:"sequence"`
	Tabular  bool `yaml:"tabular" json:"tabular"`
}

// FullCapabilities enables both sub-models.
func FullCapabilities() Capabilities {
	return Capabilities{Sequence: true, Tabular: true}
}

// State is the predictor lifecycle.
type State string

const (
	StateUntrained State = "UNTRAINED"
	StateTrained   State = "TRAINED"
)

// Status records the outcome of one sub-model training attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Evaluation holds validation metrics for a sub-model.
type Evaluation struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	AUC       float64 `json:"auc"`
}

// SubModelReport is the independent training outcome of one sub-model.
type SubModelReport struct {
	Name              string      `json:"name"`
	Status            Status      `json:"status"`
	Reason            string      `json:"reason,omitempty"`
	TrainSamples      int         `json:"train_samples"`
	ValidationSamples int         `json:"validation_samples"`
	Iterations        int         `json:"iterations"`
	Validation        *Evaluation `json:"validation,omitempty"`
}

// FeatureImportance is the total split gain attributed to one feature.
type FeatureImportance struct {
	Feature string  `json:"feature"`
	Gain    float64 `json:"gain"`
}

// TrainingReport describes a training run in enough detail to persist and version
// the resulting model.
type TrainingReport struct {
	Version           string              `json:"version"`
	TrainedAt         time.Time           `json:"trained_at"`
	Samples           int                 `json:"samples"`
	Positives         int                 `json:"positives"`
	Features          int                 `json:"features"`
	SequenceLength    int                 `json:"sequence_length"`
	Sequence          SubModelReport      `json:"sequence"`
	Tabular           SubModelReport      `json:"tabular"`
	Degraded          []string            `json:"degraded,omitempty"`
	ScoreQuantiles    map[string]float64  `json:"score_quantiles,omitempty"`
	FeatureImportance []FeatureImportance `json:"feature_importance,omitempty"`
}

// Prediction bundles per-row results with the degraded-mode indicator. Degraded
// names the sub-models whose contribution was 0.
type Prediction struct {
	Version  string                    `json:"version"`
	Results  []models.PredictionResult `json:"results"`
	Degraded []string                  `json:"degraded,omitempty"`
}

// Latest returns the result for the final row.
func (p Prediction) Latest() (models.PredictionResult, bool) {
	if len(p.Results) == 0 {
		return models.PredictionResult{}, false
	}
	return p.Results[len(p.Results)-1], true
}
