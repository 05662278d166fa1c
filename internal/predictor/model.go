package predictor

import (
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/miradorstack/mirador-forecast/internal/features"
	"github.com/miradorstack/mirador-forecast/internal/models"
)

// Model is an immutable trained artifact. A nil sub-model contributes 0 to the ensemble.
type Model struct {
	Version        string           `json:"version"`
	TrainedAt      time.Time        `json:"trained_at"`
	Features       []string         `json:"features"`
	SequenceLength int              `json:"sequence_length"`
	Scaler         *features.Scaler `json:"scaler"`
	Sequence       *SequenceModel   `json:"sequence,omitempty"`
	Tabular        *BoostedModel    `json:"tabular,omitempty"`
}

// Degraded lists the sub-models this model cannot score with.
func (m *Model) Degraded() []string {
	var out []string
	if m.Sequence == nil {
		out = append(out, SubModelSequence)
	}
	if m.Tabular == nil {
		out = append(out, SubModelTabular)
	}
	return out
}

// Predict scores every row of table. The sequence probability is 0 for rows whose
// index is below the sequence length.
func (m *Model) Predict(table *features.Table) (Prediction, error) {
	if err := features.SameColumns(m.Features, table); err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrFeatureMismatch, err)
	}
	scaled, err := m.Scaler.Transform(table)
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrFeatureMismatch, err)
	}

	results := make([]models.PredictionResult, scaled.Len())
	for i, row := range scaled.Rows {
		var seq, tab float64
		if m.Sequence != nil && i >= m.SequenceLength {
			seq = m.Sequence.Score(scaled.Rows, i)
		}
		if m.Tabular != nil {
			tab = m.Tabular.Score(row)
		}
		results[i] = models.PredictionResult{
			Timestamp:           scaled.Timestamps[i],
			EnsembleProbability: SequenceWeight*seq + TabularWeight*tab,
			SequenceProbability: seq,
			TabularProbability:  tab,
		}
	}
	return Prediction{Version: m.Version, Results: results, Degraded: m.Degraded()}, nil
}

// Importance returns total split gain per feature, largest first, omitting zeros.
func (m *Model) Importance() []FeatureImportance {
	if m.Tabular == nil {
		return nil
	}
	var out []FeatureImportance
	for i, g := range m.Tabular.Gain {
		if g > 0 && i < len(m.Features) {
			out = append(out, FeatureImportance{Feature: m.Features[i], Gain: g})
		}
	}
	sortImportance(out)
	return out
}

// Save writes the model as JSON.
func (m *Model) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	return enc.Encode(m)
}

// Load reads a model previously written by Save.
func Load(r io.Reader) (*Model, error) {
	var m Model
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode model artifact: %w", err)
	}
	if m.Scaler == nil || len(m.Features) == 0 {
		return nil, fmt.Errorf("decode model artifact: missing scaler or features")
	}
	if m.Sequence == nil && m.Tabular == nil {
		return nil, fmt.Errorf("decode model artifact: %w", ErrNoSubModel)
	}
	if m.Sequence != nil && m.Sequence.Length != m.SequenceLength {
		return nil, fmt.Errorf("decode model artifact: sequence length %d, expected %d", m.Sequence.Length, m.SequenceLength)
	}
	return &m, nil
}

// Handle is a versioned pointer to the current model. Readers load a snapshot and
// never observe a partially trained model; writers swap in a complete one.
type Handle struct {
	current atomic.Pointer[Model]
}

// Load returns the current model or nil.
func (h *Handle) Load() *Model {
	return h.current.Load()
}

// Swap installs m and returns the previous model.
func (h *Handle) Swap(m *Model) *Model {
	return h.current.Swap(m)
}
