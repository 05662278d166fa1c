package predictor

import (
	"fmt"
	"math/rand"
)

// SequenceModel scores a trailing window of standardized feature rows. Each window
// is summarized as its last row, an exponentially weighted mean and a per-step
// slope, and the summary is fed to a logistic model.
type SequenceModel struct {
	Length  int       `json:"length"`
	Decay   float64   `json:"decay"`
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// summarize condenses window (oldest first) into [last, ewma, slope].
func summarize(window [][]float64, decay float64) []float64 {
	d := len(window[0])
	out := make([]float64, 3*d)
	last := window[len(window)-1]
	copy(out, last)
	ewma := out[d : 2*d]
	copy(ewma, window[0])
	for _, row := range window[1:] {
		for c, v := range row {
			ewma[c] = decay*ewma[c] + (1-decay)*v
		}
	}
	slope := out[2*d:]
	if steps := float64(len(window) - 1); steps > 0 {
		for c := range slope {
			slope[c] = (last[c] - window[0][c]) / steps
		}
	}
	return out
}

func (m *SequenceModel) score(x []float64) float64 {
	z := m.Bias
	for i, w := range m.Weights {
		z += w * x[i]
	}
	return sigmoid(z)
}

// Score returns the probability for the window ending at row end of rows. The caller
// guarantees end >= Length-1.
func (m *SequenceModel) Score(rows [][]float64, end int) float64 {
	return m.score(summarize(rows[end-m.Length+1:end+1], m.Decay))
}

// sequenceSamples returns the positions the sequence model can be trained on or
// score: every p >= length.
func sequenceSamples(n, length int) []int {
	var out []int
	for p := length; p < n; p++ {
		out = append(out, p)
	}
	return out
}

type sequenceTrainResult struct {
	model  *SequenceModel
	report SubModelReport
}

// trainSequence fits the logistic weights by mini-batch SGD with L2 and positive
// class reweighting. rows must already be standardized.
func trainSequence(rows [][]float64, labels []int, cfg Config) (sequenceTrainResult, error) {
	length := cfg.SequenceLength
	report := SubModelReport{Name: SubModelSequence}
	positions := sequenceSamples(len(rows), length)
	if len(positions) < 10 {
		return sequenceTrainResult{report: report}, fmt.Errorf("%w: %d rows for window length %d", ErrInsufficientData, len(rows), length)
	}
	sampleLabels := pick(labels, positions)
	pos := countPositives(sampleLabels)
	if pos == 0 || pos == len(sampleLabels) {
		return sequenceTrainResult{report: report}, ErrSingleClass
	}

	inputs := make([][]float64, len(positions))
	for i, p := range positions {
		inputs[i] = summarize(rows[p-length+1:p+1], cfg.Sequence.Decay)
	}

	trainIdx, valIdx := stratifiedSplit(sampleLabels, cfg.ValidationFraction, cfg.Seed)
	trainLabels := pick(sampleLabels, trainIdx)
	if c := countPositives(trainLabels); c == 0 || c == len(trainLabels) {
		return sequenceTrainResult{report: report}, ErrSingleClass
	}
	posWeight := positiveWeight(trainLabels)

	m := &SequenceModel{Length: length, Decay: cfg.Sequence.Decay, Weights: make([]float64, len(inputs[0]))}
	rng := rand.New(rand.NewSource(cfg.Seed))
	order := append([]int(nil), trainIdx...)
	grad := make([]float64, len(m.Weights))
	sc := cfg.Sequence
	for epoch := 0; epoch < sc.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for start := 0; start < len(order); start += sc.BatchSize {
			batch := order[start:min(start+sc.BatchSize, len(order))]
			clear(grad)
			var gradBias float64
			for _, i := range batch {
				w := 1.0
				if sampleLabels[i] == 1 {
					w = posWeight
				}
				residual := w * (m.score(inputs[i]) - float64(sampleLabels[i]))
				for c, v := range inputs[i] {
					grad[c] += residual * v
				}
				gradBias += residual
			}
			scale := sc.LearningRate / float64(len(batch))
			for c := range m.Weights {
				m.Weights[c] -= scale*grad[c] + sc.LearningRate*sc.L2*m.Weights[c]
			}
			m.Bias -= scale * gradBias
		}
	}

	report.Status = StatusSuccess
	report.TrainSamples = len(trainIdx)
	report.ValidationSamples = len(valIdx)
	report.Iterations = sc.Epochs
	if len(valIdx) > 0 {
		scores := make([]float64, len(valIdx))
		for k, i := range valIdx {
			scores[k] = m.score(inputs[i])
		}
		report.Validation = evaluate(scores, pick(sampleLabels, valIdx))
	}
	return sequenceTrainResult{model: m, report: report}, nil
}
