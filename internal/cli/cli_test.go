package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-forecast/internal/engine"
	"github.com/miradorstack/mirador-forecast/internal/predictor"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSimulateWritesSeries(t *testing.T) {
	out, err := run(t, "simulate", "--hours", "48", "--seed", "7", "--deployment", "ranker", "--end", "2026-07-01T00:00:00Z")
	require.NoError(t, err)

	var doc seriesDocument
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "ranker", doc.Deployment)
	require.Len(t, doc.Series, 48)
	assert.Equal(t, "2026-06-30T23:00:00Z", doc.Series[47].Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"))
}

func TestTrainAndEvaluateLocally(t *testing.T) {
	dir := t.TempDir()
	seriesPath := filepath.Join(dir, "series.json")
	modelPath := filepath.Join(dir, "model.json")

	_, err := run(t, "simulate", "--hours", "720", "--seed", "3", "--degraded-hours", "96", "--deployment", "ranker", "-o", seriesPath)
	require.NoError(t, err)

	out, err := run(t, "train", "--input", seriesPath, "--save", modelPath)
	require.NoError(t, err)
	var report predictor.TrainingReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 720, report.Samples)
	assert.NotEmpty(t, report.Version)

	out, err = run(t, "evaluate", "--input", seriesPath, "--model", modelPath)
	require.NoError(t, err)
	var eval engine.Evaluation
	require.NoError(t, json.Unmarshal([]byte(out), &eval))
	assert.Equal(t, "ranker", eval.Deployment)
	assert.Equal(t, report.Version, eval.ModelVersion)
	assert.GreaterOrEqual(t, eval.Report.HealthScore, 0.0)
	assert.LessOrEqual(t, eval.Report.HealthScore, 100.0)
}

func TestEvaluateWithoutModelIsDegraded(t *testing.T) {
	seriesPath := filepath.Join(t.TempDir(), "series.json")
	_, err := run(t, "simulate", "--hours", "240", "-o", seriesPath)
	require.NoError(t, err)

	out, err := run(t, "evaluate", "--input", seriesPath, "--deployment", "fraud")
	require.NoError(t, err)
	var eval engine.Evaluation
	require.NoError(t, json.Unmarshal([]byte(out), &eval))
	assert.Equal(t, "fraud", eval.Deployment)
	assert.Equal(t, []string{predictor.SubModelSequence, predictor.SubModelTabular}, eval.Degraded)
}

func TestCommandsValidateFlags(t *testing.T) {
	_, err := run(t, "evaluate")
	assert.ErrorContains(t, err, "--input")

	_, err = run(t, "alerts")
	assert.ErrorContains(t, err, "--server")

	_, err = run(t, "simulate", "--hours", "0")
	assert.Error(t, err)

	_, err = run(t, "--server", "localhost:1", "evaluate")
	assert.ErrorContains(t, err, "deployment is required")
}
