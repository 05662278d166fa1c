package predictor

import (
	"math"
	"math/rand"
	"sort"
)

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func countPositives(labels []int) int {
	n := 0
	for _, l := range labels {
		if l == 1 {
			n++
		}
	}
	return n
}

// positiveWeight reweights the positive class inversely to its frequency.
func positiveWeight(labels []int) float64 {
	pos := countPositives(labels)
	if pos == 0 {
		return 1
	}
	return float64(len(labels)-pos) / float64(pos)
}

// stratifiedSplit partitions sample positions into train and validation sets,
// keeping the class ratio. A class with a single sample stays in train.
func stratifiedSplit(labels []int, fraction float64, seed int64) (train, val []int) {
	rng := rand.New(rand.NewSource(seed))
	var pos, neg []int
	for i, l := range labels {
		if l == 1 {
			pos = append(pos, i)
		} else {
			neg = append(neg, i)
		}
	}
	for _, class := range [][]int{pos, neg} {
		rng.Shuffle(len(class), func(i, j int) { class[i], class[j] = class[j], class[i] })
		k := int(float64(len(class)) * fraction)
		if k == 0 && len(class) > 1 {
			k = 1
		}
		val = append(val, class[:k]...)
		train = append(train, class[k:]...)
	}
	sort.Ints(train)
	sort.Ints(val)
	return train, val
}

func evaluate(scores []float64, labels []int) *Evaluation {
	if len(scores) == 0 {
		return nil
	}
	var tp, fp, tn, fn float64
	for i, s := range scores {
		predicted := s >= 0.5
		switch {
		case predicted && labels[i] == 1:
			tp++
		case predicted:
			fp++
		case labels[i] == 1:
			fn++
		default:
			tn++
		}
	}
	ev := &Evaluation{Accuracy: (tp + tn) / float64(len(scores)), AUC: rocAUC(scores, labels)}
	if tp+fp > 0 {
		ev.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		ev.Recall = tp / (tp + fn)
	}
	if ev.Precision+ev.Recall > 0 {
		ev.F1 = 2 * ev.Precision * ev.Recall / (ev.Precision + ev.Recall)
	}
	return ev
}

// rocAUC is the Mann-Whitney estimate with tied ranks averaged. A single-class
// set returns 0.5.
func rocAUC(scores []float64, labels []int) float64 {
	pos := countPositives(labels)
	neg := len(labels) - pos
	if pos == 0 || neg == 0 {
		return 0.5
	}
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	var rankSum float64
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && scores[idx[j+1]] == scores[idx[i]] {
			j++
		}
		rank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if labels[idx[k]] == 1 {
				rankSum += rank
			}
		}
		i = j + 1
	}
	return (rankSum - float64(pos)*float64(pos+1)/2) / (float64(pos) * float64(neg))
}

func logLoss(scores []float64, labels []int) float64 {
	const eps = 1e-15
	var sum float64
	for i, s := range scores {
		p := min(max(s, eps), 1-eps)
		if labels[i] == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(len(scores))
}

func pick(labels []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = labels[j]
	}
	return out
}
