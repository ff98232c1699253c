package apiclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/competeiq/api/internal/model"
)

// Start submits a company profile for analysis. Missing or blank fields fail
// with a ValidationError before any request is made.
func (c *Client) Start(ctx context.Context, in model.CompanyInput) (*model.StartAnalysisResponse, error) {
	if err := c.checkInput("start", &in); err != nil {
		return nil, err
	}

	req := model.AnalyzeCompanyRequest{CompanyInput: in, UserName: c.currentUserName()}
	var out model.StartAnalysisResponse
	if err := c.post(ctx, "start", "/api/analyze-company", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Poll fetches the current snapshot of a job. It is a pure read and safe to
// repeat.
func (c *Client) Poll(ctx context.Context, jobID string) (*model.ProgressResponse, error) {
	if err := requireID("poll", "analysis_id", jobID); err != nil {
		return nil, err
	}

	var out model.ProgressResponse
	if err := c.get(ctx, "poll", "/api/analysis/"+url.PathEscape(jobID)+"/progress", &out); err != nil {
		return nil, err
	}
	if out.AnalysisID != jobID {
		return nil, &ValidationError{
			Op:  "poll",
			Err: fmt.Errorf("snapshot for %q returned for job %q", out.AnalysisID, jobID),
		}
	}
	return &out, nil
}

// FetchResult returns the analysis of a completed job. The backend rejects
// the call with a PreconditionError while the job is still running.
func (c *Client) FetchResult(ctx context.Context, jobID string) (*model.AnalysisResult, error) {
	if err := requireID("fetch_result", "analysis_id", jobID); err != nil {
		return nil, err
	}

	var out model.AnalysisResult
	if err := c.get(ctx, "fetch_result", "/api/analysis/"+url.PathEscape(jobID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateCompany reports missing or blank company fields without a client.
func ValidateCompany(in model.CompanyInput) error {
	if err := inputValidator.Struct(&in); err != nil {
		return &ValidationError{Op: "start", Fields: fieldErrors(err), Err: err}
	}
	return nil
}

var inputValidator = model.NewValidator()

func requireID(op, field, id string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Op: op, Fields: map[string]string{field: "required"}}
	}
	return nil
}
