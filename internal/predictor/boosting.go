package predictor

import (
	"fmt"
	"math"
	"sort"
)

// Node is one tree node. Leaves carry the shrunken output value.
type Node struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
}

// Tree is a flat binary regression tree rooted at Nodes[0].
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// BoostedModel is a gradient-boosted ensemble of trees under logistic loss.
type BoostedModel struct {
	BaseMargin float64   `json:"base_margin"`
	Trees      []Tree    `json:"trees"`
	Gain       []float64 `json:"gain"`
}

func (m *BoostedModel) margin(x []float64) float64 {
	z := m.BaseMargin
	for _, t := range m.Trees {
		z += t.predict(x)
	}
	return z
}

// Score returns the positive-class probability for one feature row.
func (m *BoostedModel) Score(x []float64) float64 {
	return sigmoid(m.margin(x))
}

// binner maps raw values to histogram bins per feature. Bin b holds values <= Cuts[b];
// the final bin holds everything above the last cut.
type binner struct {
	cuts [][]float64
}

func newBinner(rows [][]float64, idx []int, maxBins int) *binner {
	width := len(rows[0])
	b := &binner{cuts: make([][]float64, width)}
	values := make([]float64, len(idx))
	for f := 0; f < width; f++ {
		for k, i := range idx {
			values[k] = rows[i][f]
		}
		sort.Float64s(values)
		uniq := values[:0:0]
		for k, v := range values {
			if k == 0 || v != values[k-1] {
				uniq = append(uniq, v)
			}
		}
		if len(uniq) < 2 {
			continue
		}
		var cuts []float64
		if len(uniq) <= maxBins {
			for k := 0; k+1 < len(uniq); k++ {
				cuts = append(cuts, (uniq[k]+uniq[k+1])/2)
			}
		} else {
			for q := 1; q < maxBins; q++ {
				c := values[q*len(values)/maxBins]
				if len(cuts) == 0 || c > cuts[len(cuts)-1] {
					cuts = append(cuts, c)
				}
			}
		}
		b.cuts[f] = cuts
	}
	return b
}

func (b *binner) bin(f int, v float64) int {
	return sort.SearchFloat64s(b.cuts[f], v)
}

type boostTrainer struct {
	cfg    BoostingConfig
	bins   *binner
	binned [][]uint8
	grad   []float64
	hess   []float64
	gain   []float64
}

// trainBoosted fits trees with second-order logistic gradients on histogram bins,
// weighting positives by neg/pos and stopping early on validation log loss.
func trainBoosted(rows [][]float64, labels []int, cfg Config) (*BoostedModel, SubModelReport, error) {
	report := SubModelReport{Name: SubModelTabular}
	if len(rows) < 10 {
		return nil, report, fmt.Errorf("%w: %d rows", ErrInsufficientData, len(rows))
	}
	if pos := countPositives(labels); pos == 0 || pos == len(labels) {
		return nil, report, ErrSingleClass
	}
	bc := cfg.Boosting
	if bc.MaxBins > 255 {
		bc.MaxBins = 255
	}

	trainIdx, valIdx := stratifiedSplit(labels, cfg.ValidationFraction, cfg.Seed)
	trainLabels := pick(labels, trainIdx)
	if c := countPositives(trainLabels); c == 0 || c == len(trainLabels) {
		return nil, report, ErrSingleClass
	}
	posWeight := positiveWeight(trainLabels)
	width := len(rows[0])

	t := &boostTrainer{
		cfg:    bc,
		bins:   newBinner(rows, trainIdx, bc.MaxBins),
		binned: make([][]uint8, len(trainIdx)),
		grad:   make([]float64, len(trainIdx)),
		hess:   make([]float64, len(trainIdx)),
		gain:   make([]float64, width),
	}
	for k, i := range trainIdx {
		t.binned[k] = make([]uint8, width)
		for f, v := range rows[i] {
			t.binned[k][f] = uint8(t.bins.bin(f, v))
		}
	}

	model := &BoostedModel{}
	trainMargin := make([]float64, len(trainIdx))
	valMargin := make([]float64, len(valIdx))
	valLabels := pick(labels, valIdx)
	valScores := make([]float64, len(valIdx))
	bestLoss := math.Inf(1)
	bestTrees := 0
	bestGain := make([]float64, width)
	sinceBest := 0

	all := make([]int, len(trainIdx))
	for k := range all {
		all[k] = k
	}
	for round := 0; round < bc.Trees; round++ {
		for k, i := range trainIdx {
			w := 1.0
			if labels[i] == 1 {
				w = posWeight
			}
			p := sigmoid(trainMargin[k])
			t.grad[k] = w * (p - float64(labels[i]))
			t.hess[k] = max(w*p*(1-p), 1e-12)
		}
		tree := Tree{}
		t.grow(&tree, all, 0)
		model.Trees = append(model.Trees, tree)
		for k, i := range trainIdx {
			trainMargin[k] += tree.predict(rows[i])
		}

		if len(valIdx) == 0 || bc.EarlyStopping == 0 {
			bestTrees = len(model.Trees)
			copy(bestGain, t.gain)
			continue
		}
		for k, i := range valIdx {
			valMargin[k] += tree.predict(rows[i])
			valScores[k] = sigmoid(valMargin[k])
		}
		loss := logLoss(valScores, valLabels)
		if loss < bestLoss {
			bestLoss = loss
			bestTrees = len(model.Trees)
			copy(bestGain, t.gain)
			sinceBest = 0
			continue
		}
		sinceBest++
		if sinceBest >= bc.EarlyStopping {
			break
		}
	}
	model.Trees = model.Trees[:bestTrees]
	model.Gain = bestGain

	report.Status = StatusSuccess
	report.TrainSamples = len(trainIdx)
	report.ValidationSamples = len(valIdx)
	report.Iterations = bestTrees
	if len(valIdx) > 0 {
		for k, i := range valIdx {
			valScores[k] = model.Score(rows[i])
		}
		report.Validation = evaluate(valScores, valLabels)
	}
	return model, report, nil
}

func (t *boostTrainer) leafValue(idx []int) float64 {
	var g, h float64
	for _, k := range idx {
		g += t.grad[k]
		h += t.hess[k]
	}
	return -g / (h + t.cfg.Lambda) * t.cfg.LearningRate
}

// grow appends the subtree for idx to tree and returns its node index.
func (t *boostTrainer) grow(tree *Tree, idx []int, depth int) int {
	self := len(tree.Nodes)
	tree.Nodes = append(tree.Nodes, Node{})

	feature, bin, gain := -1, 0, 0.0
	if depth < t.cfg.MaxDepth && len(idx) >= 2 {
		feature, bin, gain = t.bestSplit(idx)
	}
	if feature < 0 {
		tree.Nodes[self] = Node{Leaf: true, Value: t.leafValue(idx)}
		return self
	}

	var left, right []int
	for _, k := range idx {
		if int(t.binned[k][feature]) <= bin {
			left = append(left, k)
		} else {
			right = append(right, k)
		}
	}
	t.gain[feature] += gain
	l := t.grow(tree, left, depth+1)
	r := t.grow(tree, right, depth+1)
	tree.Nodes[self] = Node{Feature: feature, Threshold: t.bins.cuts[feature][bin], Left: l, Right: r}
	return self
}

func (t *boostTrainer) bestSplit(idx []int) (int, int, float64) {
	var gTotal, hTotal float64
	for _, k := range idx {
		gTotal += t.grad[k]
		hTotal += t.hess[k]
	}
	lambda := t.cfg.Lambda
	parent := gTotal * gTotal / (hTotal + lambda)

	bestFeature, bestBin, bestGain := -1, 0, 0.0
	gh := make([]float64, 256)
	hh := make([]float64, 256)
	for f, cuts := range t.bins.cuts {
		if len(cuts) == 0 {
			continue
		}
		nb := len(cuts) + 1
		clear(gh[:nb])
		clear(hh[:nb])
		for _, k := range idx {
			b := t.binned[k][f]
			gh[b] += t.grad[k]
			hh[b] += t.hess[k]
		}
		var gl, hl float64
		for b := 0; b < len(cuts); b++ {
			gl += gh[b]
			hl += hh[b]
			gr, hr := gTotal-gl, hTotal-hl
			if hl < t.cfg.MinChildWeight || hr < t.cfg.MinChildWeight {
				continue
			}
			gain := 0.5 * (gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - parent)
			if gain > bestGain {
				bestFeature, bestBin, bestGain = f, b, gain
			}
		}
	}
	return bestFeature, bestBin, bestGain
}
