package e2e

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/competeiq/api/internal/model"
)

func TestAnalysis_FullLifecycle(t *testing.T) {
	ta := setupApp(t)
	started := startAnalysis(t, ta)

	if started.Status != "started" {
		t.Errorf("expected status 'started', got %q", started.Status)
	}
	if started.EstimatedDuration != 120 {
		t.Errorf("expected estimated_duration 120, got %d", started.EstimatedDuration)
	}

	// Before the worker runs every step is pending and the result is not ready
	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/analysis/"+started.AnalysisID+"/progress", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	var snap model.ProgressResponse
	decodeJSON(t, resp, &snap)
	if snap.Status != model.JobStatusPending || snap.Progress != 0 {
		t.Errorf("unexpected initial snapshot: %+v", snap)
	}
	if len(snap.Steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(snap.Steps))
	}
	for _, s := range snap.Steps {
		if s.Status != model.JobStatusPending {
			t.Errorf("step %s: expected pending, got %s", s.Name, s.Status)
		}
	}

	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/analysis/"+started.AnalysisID, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusConflict)
	assertErrorCode(t, resp, "NOT_READY")

	runAnalysis(t, ta, started)

	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/analysis/"+started.AnalysisID+"/progress", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &snap)
	if snap.Status != model.JobStatusCompleted || snap.Progress != 100 {
		t.Errorf("unexpected final snapshot: %+v", snap)
	}
	for _, s := range snap.Steps {
		if s.Status != model.JobStatusCompleted || s.Progress != 100 {
			t.Errorf("step %s not completed: %+v", s.Name, s)
		}
	}

	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/analysis/"+started.AnalysisID, "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	var result model.AnalysisResult
	decodeJSON(t, resp, &result)
	if len(result.Competitors) == 0 {
		t.Error("expected competitors in result")
	}
	if len(result.MarketTrends) == 0 {
		t.Error("expected market trends in result")
	}
	if result.PositioningStrategy == "" {
		t.Error("expected a positioning strategy")
	}
	if result.Company == nil || result.Company.Name != "Acme Robotics" {
		t.Errorf("unexpected company summary: %+v", result.Company)
	}
}

func TestAnalysis_Export(t *testing.T) {
	ta := setupApp(t)
	started := startAnalysis(t, ta)
	runAnalysis(t, ta, started)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/analysis/"+started.AnalysisID+"/export", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("unexpected content type %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "competeiq-acme-robotics") {
		t.Errorf("unexpected content disposition %q", cd)
	}

	f, err := excelize.OpenReader(bytes.NewReader([]byte(readBody(t, resp))))
	if err != nil {
		t.Fatalf("export is not a workbook: %v", err)
	}
	defer f.Close()
	if idx, _ := f.GetSheetIndex("Competitors"); idx < 0 {
		t.Error("expected a Competitors sheet")
	}
}

func TestAnalysis_ExportNotReady(t *testing.T) {
	ta := setupApp(t)
	started := startAnalysis(t, ta)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/analysis/"+started.AnalysisID+"/export", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusConflict)
}

func TestAnalysis_UnknownID(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/analysis/does-not-exist/progress", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
	assertErrorCode(t, resp, "NOT_FOUND")
}

func TestAnalysis_NoAuth(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/analyze-company", acmeBody, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusUnauthorized)
	assertErrorCode(t, resp, "UNAUTHORIZED")
}

func TestAnalysis_InvalidBody(t *testing.T) {
	ta := setupApp(t)

	bodies := []string{
		`{"name": "Acme"}`,
		`{"name": "  ", "website_url": "https://acme.example", "product_description": "x", "market_category": "y"}`,
		`not json`,
	}
	for _, body := range bodies {
		resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/analyze-company", body)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		assertStatus(t, resp, http.StatusBadRequest)
		assertErrorCode(t, resp, "VALIDATION_ERROR")
	}
}
