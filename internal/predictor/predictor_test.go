package predictor

import (
	"bytes"
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-forecast/internal/features"
)

// syntheticTable builds a table whose label is driven by the first column.
func syntheticTable(n int, seed int64) (*features.Table, []int) {
	rng := rand.New(rand.NewSource(seed))
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	table := &features.Table{Columns: []string{"signal", "noise_a", "noise_b", "constant"}}
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		signal := rng.NormFloat64()
		table.Timestamps = append(table.Timestamps, start.Add(time.Duration(i)*time.Hour))
		table.Rows = append(table.Rows, []float64{signal, rng.NormFloat64(), rng.Float64() * 10, 7})
		if signal > 1 {
			labels[i] = 1
		}
	}
	return table, labels
}

func TestTrainAndPredictWithBothSubModels(t *testing.T) {
	table, labels := syntheticTable(400, 1)
	p := New(DefaultConfig(), FullCapabilities(), nil)
	require.Equal(t, StateUntrained, p.State())

	report, err := p.Train(context.Background(), table, labels)
	require.NoError(t, err)
	assert.Equal(t, StateTrained, p.State())
	assert.Equal(t, StatusSuccess, report.Sequence.Status)
	assert.Equal(t, StatusSuccess, report.Tabular.Status)
	assert.Empty(t, report.Degraded)
	assert.NotEmpty(t, report.Version)
	require.NotNil(t, report.Tabular.Validation)
	assert.Greater(t, report.Tabular.Validation.AUC, 0.8)
	require.NotEmpty(t, report.FeatureImportance)
	assert.Equal(t, "signal", report.FeatureImportance[0].Feature)
	assert.Contains(t, report.ScoreQuantiles, "p90")

	pred, err := p.Predict(table)
	require.NoError(t, err)
	require.Len(t, pred.Results, table.Len())
	assert.Empty(t, pred.Degraded)
	for i, r := range pred.Results {
		if i < DefaultConfig().SequenceLength {
			require.Zero(t, r.SequenceProbability, "row %d", i)
		}
		require.InDelta(t, SequenceWeight*r.SequenceProbability+TabularWeight*r.TabularProbability, r.EnsembleProbability, 1e-12)
		require.GreaterOrEqual(t, r.EnsembleProbability, 0.0)
		require.LessOrEqual(t, r.EnsembleProbability, 1.0)
		require.Equal(t, table.Timestamps[i], r.Timestamp)
	}
	assert.NotZero(t, pred.Results[DefaultConfig().SequenceLength].SequenceProbability)
}

func TestSequenceUnavailableUsesWeightedTabularOnly(t *testing.T) {
	table, labels := syntheticTable(300, 2)
	p := New(DefaultConfig(), Capabilities{Tabular: true}, nil)

	report, err := p.Train(context.Background(), table, labels)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, report.Sequence.Status)
	assert.Equal(t, []string{SubModelSequence}, report.Degraded)

	pred, err := p.Predict(table)
	require.NoError(t, err)
	assert.Equal(t, []string{SubModelSequence}, pred.Degraded)
	for _, r := range pred.Results {
		require.Zero(t, r.SequenceProbability)
		require.Equal(t, 0.4*r.TabularProbability, r.EnsembleProbability)
	}
}

func TestSequenceFailureDoesNotAbortTabular(t *testing.T) {
	table, _ := syntheticTable(200, 3)
	labels := make([]int, table.Len())
	// positives only before the first scorable window
	for i := 0; i < 20; i += 2 {
		labels[i] = 1
	}
	p := New(DefaultConfig(), FullCapabilities(), nil)

	report, err := p.Train(context.Background(), table, labels)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, report.Sequence.Status)
	assert.Contains(t, report.Sequence.Reason, ErrSingleClass.Error())
	assert.Equal(t, StatusSuccess, report.Tabular.Status)
	assert.Equal(t, StateTrained, p.State())
	assert.Equal(t, []string{SubModelSequence}, p.Model().Degraded())
}

func TestTrainFailsWhenNoSubModelSucceeds(t *testing.T) {
	table, _ := syntheticTable(100, 4)
	labels := make([]int, table.Len())
	p := New(DefaultConfig(), FullCapabilities(), nil)

	report, err := p.Train(context.Background(), table, labels)
	require.ErrorIs(t, err, ErrNoSubModel)
	assert.Equal(t, StatusFailed, report.Sequence.Status)
	assert.Equal(t, StatusFailed, report.Tabular.Status)
	assert.Equal(t, StateUntrained, p.State())
}

func TestPredictErrors(t *testing.T) {
	table, labels := syntheticTable(150, 5)
	p := New(DefaultConfig(), FullCapabilities(), nil)

	_, err := p.Predict(table)
	require.ErrorIs(t, err, ErrNotTrained)

	_, err = p.Train(context.Background(), table, labels[:10])
	require.ErrorIs(t, err, ErrFeatureMismatch)

	_, err = p.Train(context.Background(), table, labels)
	require.NoError(t, err)
	other := &features.Table{
		Columns:    []string{"signal", "noise_a"},
		Timestamps: table.Timestamps[:1],
		Rows:       [][]float64{{1, 2}},
	}
	_, err = p.Predict(other)
	require.ErrorIs(t, err, ErrFeatureMismatch)
}

func TestModelSaveLoad(t *testing.T) {
	table, labels := syntheticTable(250, 6)
	p := New(DefaultConfig(), FullCapabilities(), nil)
	_, err := p.Train(context.Background(), table, labels)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, p.Model().Save(&buf))
	loaded, err := Load(&buf)
	require.NoError(t, err)

	want, err := p.Model().Predict(table)
	require.NoError(t, err)
	got, err := loaded.Predict(table)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	restored := New(DefaultConfig(), FullCapabilities(), nil)
	require.NoError(t, restored.Install(loaded))
	assert.Equal(t, StateTrained, restored.State())

	_, err = Load(bytes.NewBufferString(`{"features":["a"],"scaler":{"columns":["a"],"mean":[0],"scale":[1]}}`))
	assert.ErrorIs(t, err, ErrNoSubModel)
}

func TestConcurrentPredictDuringRetrain(t *testing.T) {
	table, labels := syntheticTable(200, 7)
	p := New(DefaultConfig(), FullCapabilities(), nil)
	_, err := p.Train(context.Background(), table, labels)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				pred, err := p.Predict(table)
				if err == nil && len(pred.Results) != table.Len() {
					err = ErrFeatureMismatch
				}
				errs <- err
			}
		}()
	}
	_, err = p.Train(context.Background(), table, labels)
	require.NoError(t, err)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestRocAUCAndSplit(t *testing.T) {
	assert.InDelta(t, 0.75, rocAUC([]float64{0.1, 0.4, 0.35, 0.8}, []int{0, 0, 1, 1}), 1e-12)
	assert.Equal(t, 0.5, rocAUC([]float64{0.2, 0.3}, []int{0, 0}))

	labels := make([]int, 50)
	for i := 0; i < 10; i++ {
		labels[i] = 1
	}
	train, val := stratifiedSplit(labels, 0.2, 42)
	assert.Len(t, val, 10)
	assert.Len(t, train, 40)
	assert.Equal(t, 2, countPositives(pick(labels, val)))

	again, _ := stratifiedSplit(labels, 0.2, 42)
	assert.Equal(t, train, again)
}

func TestLogLossIsFinite(t *testing.T) {
	loss := logLoss([]float64{0, 1}, []int{1, 0})
	assert.False(t, math.IsInf(loss, 0))
}
