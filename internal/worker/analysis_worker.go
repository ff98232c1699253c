package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/competeiq/api/internal/model"
	"github.com/competeiq/api/internal/obs"
	"github.com/competeiq/api/internal/progress"
	"github.com/competeiq/api/internal/redislock"
	"github.com/competeiq/api/internal/service"
)

// AnalysisStore is the job record API the worker drives.
type AnalysisStore interface {
	Catalog() progress.Catalog
	GetJob(ctx context.Context, analysisID string) (*model.Job, error)
	StartStep(ctx context.Context, analysisID string, step model.StepName) (*model.ProgressResponse, error)
	CompleteStep(ctx context.Context, analysisID string, step model.StepName) (*model.ProgressResponse, error)
	CompleteJob(ctx context.Context, analysisID string, result *model.AnalysisResult) error
	FailJob(ctx context.Context, analysisID string, errMsg string) error
	SaveScrapedData(ctx context.Context, companyID, data string) error
}

// StepRunner runs the agent of one step.
type StepRunner interface {
	Run(ctx context.Context, step model.StepName, st *service.AnalysisState) error
}

// Broadcaster pushes job updates to live subscribers.
type Broadcaster interface {
	BroadcastProgress(analysisID string, step model.StepName, stepProgress int, status model.JobStatus, overall int)
	BroadcastComplete(analysisID string, result interface{})
	BroadcastError(analysisID string, code, message string)
}

type AnalysisWorkerOptions struct {
	// StepDelay paces steps so progress stays observable with fast agents.
	StepDelay time.Duration
	// Locks, when set, keeps two workers off the same job.
	Locks   *redislock.Client
	LockTTL time.Duration
	Logger  *slog.Logger
}

// AnalysisWorker processes analysis jobs
type AnalysisWorker struct {
	store    AnalysisStore
	agents   StepRunner
	hub      Broadcaster
	opts     AnalysisWorkerOptions
	logger   *slog.Logger
	validate *validator.Validate
}

func NewAnalysisWorker(store AnalysisStore, agents StepRunner, hub Broadcaster, opts AnalysisWorkerOptions) *AnalysisWorker {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 15 * time.Minute
	}
	return &AnalysisWorker{
		store:    store,
		agents:   agents,
		hub:      hub,
		opts:     opts,
		logger:   opts.Logger.With("worker", "analysis"),
		validate: model.NewValidator(),
	}
}

// ProcessTask handles analysis task processing
func (w *AnalysisWorker) ProcessTask(ctx context.Context, t *asynq.Task) (err error) {
	start := time.Now()
	defer func() { obs.RecordWorkerJob("analysis", start, err) }()

	var payload model.AnalysisJobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w: %w", err, asynq.SkipRetry)
	}

	if w.opts.Locks == nil {
		return w.process(ctx, &payload)
	}
	err = w.opts.Locks.WithLock(ctx, "analysis:"+payload.AnalysisID, w.opts.LockTTL, 0, func(ctx context.Context) error {
		return w.process(ctx, &payload)
	})
	if errors.Is(err, redislock.ErrNotAcquired) {
		w.logger.Warn("analysis already being processed", "analysis_id", payload.AnalysisID)
		return nil
	}
	return err
}

func (w *AnalysisWorker) process(ctx context.Context, payload *model.AnalysisJobPayload) error {
	id := payload.AnalysisID
	logger := w.logger.With("analysis_id", id)

	job, err := w.store.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job.Status.IsTerminal() {
		logger.Info("skipping finished analysis", "status", job.Status)
		return nil
	}

	ctx, span := obs.Tracer("competeiq/worker").Start(ctx, "analysis.process")
	span.SetAttributes(attribute.String("analysis.id", id), attribute.String("company.name", payload.Company.Name))
	defer span.End()

	logger.Info("starting analysis", "company", payload.Company.Name)
	st := &service.AnalysisState{
		AnalysisID: id,
		Company:    payload.Company,
		UserName:   payload.UserName,
	}

	for i, step := range w.store.Catalog() {
		if i > 0 && w.opts.StepDelay > 0 {
			select {
			case <-ctx.Done():
				return w.fail(ctx, id, ctx.Err())
			case <-time.After(w.opts.StepDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			return w.fail(ctx, id, err)
		}

		if err := w.runStep(ctx, id, step, st); err != nil {
			return w.fail(ctx, id, fmt.Errorf("%s: %w", step, err))
		}
		if step == model.StepWebScraping && st.Overview != nil {
			if data, err := json.Marshal(st.Overview); err == nil {
				if err := w.store.SaveScrapedData(ctx, payload.CompanyID, string(data)); err != nil {
					logger.Warn("failed to save scraped data", "error", err)
				}
			}
		}
	}

	result := st.Result()
	if err := w.validate.Struct(result); err != nil {
		return w.fail(ctx, id, fmt.Errorf("invalid analysis result: %w", err))
	}
	if err := w.store.CompleteJob(ctx, id, result); err != nil {
		return w.fail(ctx, id, fmt.Errorf("failed to save result: %w", err))
	}
	w.hub.BroadcastComplete(id, result)

	logger.Info("analysis completed", "competitors", len(result.Competitors), "trends", len(result.MarketTrends))
	return nil
}

func (w *AnalysisWorker) runStep(ctx context.Context, id string, step model.StepName, st *service.AnalysisState) (err error) {
	ctx, span := obs.Tracer("competeiq/worker").Start(ctx, "analysis.step."+string(step))
	defer span.End()

	start := time.Now()
	defer func() {
		obs.RecordAnalysisStep(string(step), start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	snap, err := w.store.StartStep(ctx, id, step)
	if err != nil {
		return err
	}
	w.hub.BroadcastProgress(id, step, 0, model.JobStatusInProgress, snap.Progress)

	if err := w.agents.Run(ctx, step, st); err != nil {
		return err
	}

	snap, err = w.store.CompleteStep(ctx, id, step)
	if err != nil {
		return err
	}
	w.hub.BroadcastProgress(id, step, 100, model.JobStatusCompleted, snap.Progress)
	w.logger.Debug("step completed", "analysis_id", id, "step", step, "duration", time.Since(start))
	return nil
}

// fail records the failure and stops asynq from retrying.
func (w *AnalysisWorker) fail(ctx context.Context, id string, cause error) error {
	w.logger.Error("analysis failed", "analysis_id", id, "error", cause)
	// The task context may already be cancelled.
	if err := w.store.FailJob(context.WithoutCancel(ctx), id, cause.Error()); err != nil {
		w.logger.Error("failed to mark job as failed", "analysis_id", id, "error", err)
	}
	w.hub.BroadcastError(id, "ANALYSIS_FAILED", cause.Error())
	return fmt.Errorf("%w: %w", cause, asynq.SkipRetry)
}
