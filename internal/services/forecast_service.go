package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-forecast/internal/alerts"
	"github.com/miradorstack/mirador-forecast/internal/api"
	"github.com/miradorstack/mirador-forecast/internal/cache"
	"github.com/miradorstack/mirador-forecast/internal/engine"
	"github.com/miradorstack/mirador-forecast/internal/features"
	"github.com/miradorstack/mirador-forecast/internal/models"
	"github.com/miradorstack/mirador-forecast/internal/patterns"
	"github.com/miradorstack/mirador-forecast/internal/predictor"
	"github.com/miradorstack/mirador-forecast/internal/source"
	"github.com/miradorstack/mirador-forecast/internal/utils"
)

const (
	modelArtifactKey = "forecast:model:latest"
	trainLockKey     = "forecast:train:lock"
	trainLockTTL     = 15 * time.Minute
)

// Options tunes the service facade.
type Options struct {
	FleetDeployments []string
	FleetConcurrency int
	TrainingHours    int
	ModelTTL         time.Duration
	RequestTimeout   time.Duration
}

// ForecastService implements the gRPC ForecastEngine service.
type ForecastService struct {
	logger       *slog.Logger
	pipeline     *engine.Pipeline
	miner        *patterns.Miner
	patternStore patterns.Loader
	cache        cache.Provider
	latencies    *utils.LatencyTracker
	opts         Options
}

var _ api.ForecastEngineServer = (*ForecastService)(nil)

// NewForecastService constructs the forecast service facade. miner, patternStore and
// provider are optional.
func NewForecastService(logger *slog.Logger, pipeline *engine.Pipeline, miner *patterns.Miner, patternStore patterns.Loader, provider cache.Provider, opts Options) *ForecastService {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if opts.TrainingHours <= 0 {
		opts.TrainingHours = 90 * 24
	}
	return &ForecastService{
		logger:       logger,
		pipeline:     pipeline,
		miner:        miner,
		patternStore: patternStore,
		cache:        provider,
		latencies:    utils.NewLatencyTracker(1024),
		opts:         opts,
	}
}

// Evaluate runs the pipeline for one deployment.
func (s *ForecastService) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in api.EvaluateRequest
	if err := api.DecodeRequest(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if s.pipeline == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	s.logger.Debug("Evaluate called", slog.String("deployment", in.Deployment))
	start := time.Now()
	eval, err := s.pipeline.Evaluate(ctx, in.Deployment)
	if err != nil {
		return nil, s.toStatus(utils.NewAppError("evaluate", in.Deployment, err))
	}
	s.observeLatency(time.Since(start))
	return encode(eval)
}

// EvaluateFleet evaluates the requested deployments, or the configured fleet.
func (s *ForecastService) EvaluateFleet(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in api.EvaluateFleetRequest
	if err := api.FromStruct(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if s.pipeline == nil {
		return nil, status.Error(codes.FailedPrecondition, "pipeline not configured")
	}
	deployments := in.Deployments
	if len(deployments) == 0 {
		deployments = s.opts.FleetDeployments
	}
	if len(deployments) == 0 {
		return nil, status.Error(codes.InvalidArgument, "no deployments requested or configured")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	results := s.pipeline.EvaluateFleet(ctx, deployments, s.opts.FleetConcurrency)
	return encode(fleetResponse(results))
}

// RunFleet evaluates the configured fleet outside of a request, for scheduled runs.
func (s *ForecastService) RunFleet(ctx context.Context) []engine.FleetResult {
	if s.pipeline == nil || len(s.opts.FleetDeployments) == 0 {
		return nil
	}
	results := s.pipeline.EvaluateFleet(ctx, s.opts.FleetDeployments, s.opts.FleetConcurrency)
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			continue
		}
		s.refreshPatterns(ctx, r.Deployment)
	}
	s.logger.Info("fleet evaluation complete", slog.Int("deployments", len(results)), slog.Int("failed", failed))
	return results
}

// Train trains the shared model and publishes it to the cache for other replicas.
func (s *ForecastService) Train(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in api.TrainRequest
	if err := api.DecodeRequest(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	report, err := s.TrainDeployment(ctx, in.Deployment, in.HistoryHours)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return encode(report)
}

// ErrTrainingInProgress is returned when another replica holds the training lock.
var ErrTrainingInProgress = errors.New("training already in progress")

// TrainDeployment trains on hours of deployment history; hours <= 0 uses the default.
func (s *ForecastService) TrainDeployment(ctx context.Context, deployment string, hours int) (predictor.TrainingReport, error) {
	if s.pipeline == nil {
		return predictor.TrainingReport{}, utils.NewAppError("train", deployment, errors.New("pipeline not configured"))
	}
	if hours <= 0 {
		hours = s.opts.TrainingHours
	}

	token := []byte(deployment + "/" + uuid.NewString())
	acquired, err := s.cache.SetNX(ctx, trainLockKey, token, trainLockTTL)
	if err != nil {
		s.logger.Warn("training lock unavailable, training without it", slog.Any("error", err))
		acquired = false
	} else if !acquired {
		return predictor.TrainingReport{}, utils.NewAppError("train", deployment, ErrTrainingInProgress)
	}
	if acquired {
		defer s.releaseTrainLock(context.WithoutCancel(ctx), token)
	}

	report, err := s.pipeline.Train(ctx, deployment, hours)
	if err != nil {
		return report, utils.NewAppError("train", deployment, err)
	}
	s.logger.Info("model trained",
		slog.String("deployment", deployment),
		slog.String("version", report.Version),
		slog.Int("samples", report.Samples),
		slog.Int("positives", report.Positives),
		slog.Any("degraded", report.Degraded))

	s.publishModel(ctx)
	return report, nil
}

// releaseTrainLock deletes the lock only while it still carries token, so a run that
// outlived the lock TTL leaves a newer holder's lock in place.
func (s *ForecastService) releaseTrainLock(ctx context.Context, token []byte) {
	released, err := s.cache.DelIfValue(ctx, trainLockKey, token)
	switch {
	case err != nil:
		s.logger.Warn("release training lock failed", slog.Any("error", err))
	case !released:
		s.logger.Warn("training lock expired before release", slog.Duration("ttl", trainLockTTL))
	}
}

// LoadSharedModel installs the model last published to the cache, if any. It reports
// whether a model was installed.
func (s *ForecastService) LoadSharedModel(ctx context.Context) (bool, error) {
	if s.pipeline == nil || s.pipeline.Predictor() == nil {
		return false, nil
	}
	raw, err := s.cache.Get(ctx, modelArtifactKey)
	if errors.Is(err, cache.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fetch model artifact: %w", err)
	}
	model, err := predictor.Load(bytes.NewReader(raw))
	if err != nil {
		return false, err
	}
	if current := s.pipeline.Predictor().Model(); current != nil && current.Version == model.Version {
		return false, nil
	}
	if err := s.pipeline.Predictor().Install(model); err != nil {
		return false, err
	}
	return true, nil
}

func (s *ForecastService) publishModel(ctx context.Context) {
	model := s.pipeline.Predictor().Model()
	if model == nil {
		return
	}
	var buf bytes.Buffer
	if err := model.Save(&buf); err != nil {
		s.logger.Warn("encode model artifact failed", slog.Any("error", err))
		return
	}
	if err := s.cache.Set(ctx, modelArtifactKey, buf.Bytes(), s.opts.ModelTTL); err != nil {
		s.logger.Warn("publish model artifact failed", slog.Any("error", err))
	}
}

// ListAlerts returns the active view with optional history.
func (s *ForecastService) ListAlerts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in api.ListAlertsRequest
	if err := api.DecodeRequest(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	book := s.book()
	if book == nil {
		return nil, status.Error(codes.FailedPrecondition, "alert book not configured")
	}
	resp := api.ListAlertsResponse{
		Active:  book.Active(models.Severity(in.Severity)),
		Summary: book.Summary(),
	}
	if in.IncludeHistory {
		resp.History = book.History(in.Limit)
	}
	return encode(resp)
}

// AcknowledgeAlert marks an active alert acknowledged.
func (s *ForecastService) AcknowledgeAlert(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.updateAlert(req, "acknowledge", func(book *alerts.Book, id string) (models.Alert, error) {
		return book.Acknowledge(id)
	})
}

// ResolveAlert removes an alert from the active view.
func (s *ForecastService) ResolveAlert(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.updateAlert(req, "resolve", func(book *alerts.Book, id string) (models.Alert, error) {
		return book.Resolve(id)
	})
}

func (s *ForecastService) updateAlert(req *structpb.Struct, op string, apply func(*alerts.Book, string) (models.Alert, error)) (*structpb.Struct, error) {
	var in api.AlertRequest
	if err := api.DecodeRequest(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	book := s.book()
	if book == nil {
		return nil, status.Error(codes.FailedPrecondition, "alert book not configured")
	}
	alert, err := apply(book, in.ID)
	if err != nil {
		return nil, s.toStatus(utils.NewAppError(op, in.ID, err))
	}
	return encode(alert)
}

// GetPatterns mines recurring root causes from the deployment's recent reports,
// falling back to the last patterns stored by any replica.
func (s *ForecastService) GetPatterns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in api.PatternsRequest
	if err := api.DecodeRequest(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp := api.PatternsResponse{Deployment: in.Deployment, Patterns: []models.RecurringCause{}}

	var reports []models.RiskReport
	if s.pipeline != nil && s.pipeline.Reports() != nil {
		reports = s.pipeline.Reports().Recent(in.Deployment)
	}
	resp.Reports = len(reports)

	if len(reports) > 0 && s.miner != nil {
		causes, err := s.miner.Mine(ctx, in.Deployment, reports)
		if err != nil {
			return nil, s.toStatus(utils.NewAppError("patterns", in.Deployment, err))
		}
		resp.Patterns = append(resp.Patterns, causes...)
		return encode(resp)
	}

	if s.patternStore != nil {
		causes, err := s.patternStore.LoadPatterns(ctx, in.Deployment)
		if err != nil {
			s.logger.Warn("load stored patterns failed", slog.String("deployment", in.Deployment), slog.Any("error", err))
		}
		resp.Patterns = append(resp.Patterns, causes...)
	}
	return encode(resp)
}

func (s *ForecastService) refreshPatterns(ctx context.Context, deployment string) {
	if s.miner == nil || s.pipeline.Reports() == nil {
		return
	}
	if _, err := s.miner.Mine(ctx, deployment, s.pipeline.Reports().Recent(deployment)); err != nil {
		s.logger.Warn("pattern mining failed", slog.String("deployment", deployment), slog.Any("error", err))
	}
}

// HealthCheck reports serving status and model state.
func (s *ForecastService) HealthCheck(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	resp := api.HealthResponse{
		Status:       "SERVING",
		ModelState:   string(predictor.StateUntrained),
		LatencyP95Ms: float64(s.LatencyP95()) / float64(time.Millisecond),
	}
	if s.pipeline != nil && s.pipeline.Predictor() != nil {
		pred := s.pipeline.Predictor()
		resp.ModelState = string(pred.State())
		if model := pred.Model(); model != nil {
			resp.ModelVersion = model.Version
			resp.Degraded = model.Degraded()
		} else {
			resp.Degraded = []string{predictor.SubModelSequence, predictor.SubModelTabular}
		}
	}
	return encode(resp)
}

// LatencyP95 returns the current p95 evaluation latency.
func (s *ForecastService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func (s *ForecastService) observeLatency(d time.Duration) {
	s.latencies.Observe(d)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("evaluation latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", count))
	}
}

func (s *ForecastService) book() *alerts.Book {
	if s.pipeline == nil {
		return nil
	}
	return s.pipeline.Book()
}

func (s *ForecastService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.RequestTimeout)
}

// toStatus maps domain errors onto gRPC status codes and logs unexpected failures.
func (s *ForecastService) toStatus(err error) error {
	var verr *features.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, features.ErrEmptySeries):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, alerts.ErrAlertNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, source.ErrNoSamples):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrTrainingInProgress):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, predictor.ErrNotTrained),
		errors.Is(err, predictor.ErrNoSubModel),
		errors.Is(err, predictor.ErrInsufficientData),
		errors.Is(err, predictor.ErrSingleClass),
		errors.Is(err, predictor.ErrFeatureMismatch):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	s.logger.Error("request failed", slog.String("op", utils.OpOf(err)), slog.Any("error", err))
	return status.Error(codes.Internal, err.Error())
}

func encode(v any) (*structpb.Struct, error) {
	out, err := api.ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func fleetResponse(results []engine.FleetResult) api.EvaluateFleetResponse {
	resp := api.EvaluateFleetResponse{Results: make([]api.FleetEntry, 0, len(results))}
	for _, r := range results {
		entry := api.FleetEntry{Deployment: r.Deployment}
		if r.Err != nil {
			entry.Error = r.Err.Error()
		} else {
			entry.Evaluation = r.Evaluation
		}
		resp.Results = append(resp.Results, entry)
	}
	return resp
}
