package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/competeiq/api/internal/model"
	"github.com/competeiq/api/internal/progress"
)

const (
	TaskTypeAnalysis = "analysis:process"
	QueueAnalysis    = "analysis"

	recordTTL = 24 * time.Hour
)

// AnalysisService owns the analysis job records in Redis. Only the worker
// moves a job forward, one step at a time.
type AnalysisService struct {
	redis             *redis.Client
	asynqClient       *asynq.Client
	catalog           progress.Catalog
	estimatedDuration int
}

func NewAnalysisService(redisClient *redis.Client, asynqClient *asynq.Client, catalog progress.Catalog, estimatedDuration int) *AnalysisService {
	if len(catalog) == 0 {
		catalog = progress.DefaultCatalog
	}
	if estimatedDuration <= 0 {
		estimatedDuration = 120
	}
	return &AnalysisService{
		redis:             redisClient,
		asynqClient:       asynqClient,
		catalog:           catalog,
		estimatedDuration: estimatedDuration,
	}
}

// Catalog returns the steps every job runs, in order.
func (s *AnalysisService) Catalog() progress.Catalog {
	return s.catalog
}

// Start stores the company and a pending job, then queues the job.
func (s *AnalysisService) Start(ctx context.Context, userID string, req *model.AnalyzeCompanyRequest) (*model.StartAnalysisResponse, error) {
	now := time.Now()
	company := &model.Company{
		ID:                 uuid.New().String(),
		Name:               req.Name,
		WebsiteURL:         req.WebsiteURL,
		ProductDescription: req.ProductDescription,
		MarketCategory:     req.MarketCategory,
		AnalysisStatus:     model.JobStatusPending,
		UserID:             userID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.setJSON(ctx, companyKey(company.ID), company); err != nil {
		return nil, fmt.Errorf("failed to save company: %w", err)
	}

	steps := make([]model.StepProgress, len(s.catalog))
	for i, name := range s.catalog {
		steps[i] = model.StepProgress{
			Name:   name,
			Status: model.JobStatusPending,
			Agent:  progress.Agent(name),
		}
	}
	job := &model.Job{
		ID:        uuid.New().String(),
		Type:      model.JobTypeAnalysis,
		Status:    model.JobStatusPending,
		Steps:     steps,
		CompanyID: company.ID,
		UserID:    userID,
		CreatedAt: now,
	}
	if err := s.saveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	payload, err := json.Marshal(model.AnalysisJobPayload{
		AnalysisID: job.ID,
		CompanyID:  company.ID,
		UserID:     userID,
		UserName:   req.UserName,
		Company:    req.CompanyInput,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	// A retried task would replay steps on a job that only moves forward.
	_, err = s.asynqClient.EnqueueContext(ctx, asynq.NewTask(TaskTypeAnalysis, payload),
		asynq.Queue(QueueAnalysis),
		asynq.MaxRetry(0),
		asynq.Retention(recordTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.StartAnalysisResponse{
		AnalysisID:        job.ID,
		CompanyID:         company.ID,
		Status:            "started",
		EstimatedDuration: s.estimatedDuration,
	}, nil
}

// GetProgress returns the current snapshot of a job.
func (s *AnalysisService) GetProgress(ctx context.Context, analysisID string) (*model.ProgressResponse, error) {
	job, err := s.GetJob(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	return job.Snapshot(), nil
}

// GetResult returns the result of a completed job.
func (s *AnalysisService) GetResult(ctx context.Context, analysisID string) (*model.AnalysisResult, error) {
	job, err := s.GetJob(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case model.JobStatusCompleted:
	case model.JobStatusFailed:
		msg := "unknown error"
		if job.Error != nil {
			msg = *job.Error
		}
		return nil, fmt.Errorf("%w: %s", ErrJobFailed, msg)
	default:
		return nil, ErrJobNotCompleted
	}

	var result model.AnalysisResult
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &result, nil
}

// GetCompany returns the company record a job was started for.
func (s *AnalysisService) GetCompany(ctx context.Context, companyID string) (*model.Company, error) {
	var company model.Company
	if err := s.getJSON(ctx, companyKey(companyID), &company); err != nil {
		return nil, fmt.Errorf("company %s: %w", companyID, err)
	}
	return &company, nil
}

// StartStep marks step in progress (called by worker).
func (s *AnalysisService) StartStep(ctx context.Context, analysisID string, step model.StepName) (*model.ProgressResponse, error) {
	return s.updateStep(ctx, analysisID, step, model.JobStatusInProgress, 0)
}

// CompleteStep marks step completed (called by worker).
func (s *AnalysisService) CompleteStep(ctx context.Context, analysisID string, step model.StepName) (*model.ProgressResponse, error) {
	return s.updateStep(ctx, analysisID, step, model.JobStatusCompleted, 100)
}

// CompleteJob stores the result and marks the job completed (called by worker).
func (s *AnalysisService) CompleteJob(ctx context.Context, analysisID string, result *model.AnalysisResult) error {
	job, err := s.GetJob(ctx, analysisID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("job already %s", job.Status)
	}

	resultBytes, err := json.Marshal(result)
	if err != nil {
		return err
	}
	now := time.Now()
	job.Status = model.JobStatusCompleted
	job.Progress = 100
	job.CurrentStep = string(model.JobStatusCompleted)
	job.Result = resultBytes
	job.CompletedAt = &now
	if err := s.saveJob(ctx, job); err != nil {
		return err
	}
	return s.setCompanyStatus(ctx, job.CompanyID, model.JobStatusCompleted)
}

// FailJob marks the running step and the job failed (called by worker).
func (s *AnalysisService) FailJob(ctx context.Context, analysisID string, errMsg string) error {
	job, err := s.GetJob(ctx, analysisID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil
	}

	for i := range job.Steps {
		if job.Steps[i].Status == model.JobStatusInProgress {
			job.Steps[i].Status = model.JobStatusFailed
		}
	}
	now := time.Now()
	job.Status = model.JobStatusFailed
	job.CurrentStep = string(model.JobStatusFailed)
	job.Error = &errMsg
	job.CompletedAt = &now
	if err := s.saveJob(ctx, job); err != nil {
		return err
	}
	return s.setCompanyStatus(ctx, job.CompanyID, model.JobStatusFailed)
}

// GetJob loads the raw job record.
func (s *AnalysisService) GetJob(ctx context.Context, analysisID string) (*model.Job, error) {
	var job model.Job
	if err := s.getJSON(ctx, jobKey(analysisID), &job); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (s *AnalysisService) updateStep(ctx context.Context, analysisID string, step model.StepName, status model.JobStatus, pct int) (*model.ProgressResponse, error) {
	job, err := s.GetJob(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("job already %s", job.Status)
	}

	found := false
	completed := 0
	for i := range job.Steps {
		if job.Steps[i].Name == step {
			if status.Rank() < job.Steps[i].Status.Rank() {
				return nil, fmt.Errorf("step %s cannot move from %s to %s", step, job.Steps[i].Status, status)
			}
			job.Steps[i].Status = status
			job.Steps[i].Progress = pct
			found = true
		}
		if job.Steps[i].Status == model.JobStatusCompleted {
			completed++
		}
	}
	if !found {
		return nil, fmt.Errorf("unknown step %q", step)
	}

	job.CurrentStep = string(step)
	job.Progress = 100 * completed / len(job.Steps)
	if job.Status == model.JobStatusPending {
		now := time.Now()
		job.Status = model.JobStatusInProgress
		job.StartedAt = &now
		if err := s.setCompanyStatus(ctx, job.CompanyID, model.JobStatusInProgress); err != nil {
			return nil, err
		}
	}
	if err := s.saveJob(ctx, job); err != nil {
		return nil, err
	}
	return job.Snapshot(), nil
}

func (s *AnalysisService) setCompanyStatus(ctx context.Context, companyID string, status model.JobStatus) error {
	company, err := s.GetCompany(ctx, companyID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	company.AnalysisStatus = status
	company.UpdatedAt = time.Now()
	return s.setJSON(ctx, companyKey(companyID), company)
}

// SaveScrapedData keeps the extracted website overview on the company record.
func (s *AnalysisService) SaveScrapedData(ctx context.Context, companyID, data string) error {
	company, err := s.GetCompany(ctx, companyID)
	if err != nil {
		return err
	}
	company.ScrapedData = data
	company.UpdatedAt = time.Now()
	return s.setJSON(ctx, companyKey(companyID), company)
}

func (s *AnalysisService) saveJob(ctx context.Context, job *model.Job) error {
	return s.setJSON(ctx, jobKey(job.ID), job)
}

func (s *AnalysisService) setJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, data, recordTTL).Err()
}

func (s *AnalysisService) getJSON(ctx context.Context, key string, v interface{}) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func jobKey(id string) string     { return fmt.Sprintf("analysis:%s", id) }
func companyKey(id string) string { return fmt.Sprintf("company:%s", id) }
