package e2e

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/competeiq/api/internal/model"
	"github.com/competeiq/api/internal/service"
)

func TestAssets_Pipeline(t *testing.T) {
	ta := setupApp(t)
	started := startAnalysis(t, ta)
	runAnalysis(t, ta, started)

	body := fmt.Sprintf(`{"analysis_id": %q, "style": "casual", "duration": 30}`, started.AnalysisID)
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/generate-script", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	var script model.ScriptResponse
	decodeJSON(t, resp, &script)
	if strings.TrimSpace(script.Script) == "" {
		t.Fatal("expected a script")
	}
	if words := len(strings.Fields(script.Script)); words > 75 {
		t.Errorf("script exceeds its 30s word budget: %d words", words)
	}

	body = fmt.Sprintf(`{"script": %q, "company_name": "Acme Robotics", "style": "casual"}`, script.Script)
	resp, err = doAuthRequest(t, ta.app, http.MethodPost, "/api/generate-images", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	var images model.ImagesResponse
	decodeJSON(t, resp, &images)
	if len(images.Images) != 3 {
		t.Fatalf("expected 3 images, got %d", len(images.Images))
	}
	for i, img := range images.Images {
		if img.URL == "" {
			t.Errorf("image %d has no url", i)
		}
		if want := float64(i * 10); img.Timestamp != want {
			t.Errorf("image %d: expected timestamp %v, got %v", i, want, img.Timestamp)
		}
	}

	body = fmt.Sprintf(`{"script": %q, "voice": "friendly"}`, script.Script)
	resp, err = doAuthRequest(t, ta.app, http.MethodPost, "/api/generate-audio", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	result := parseJSON(t, resp)
	if result["audio_url"] != service.MockAudioURL {
		t.Errorf("expected mock audio url, got %v", result["audio_url"])
	}
}

func TestAssets_ScriptBeforeAnalysisCompletes(t *testing.T) {
	ta := setupApp(t)
	started := startAnalysis(t, ta)

	body := fmt.Sprintf(`{"analysis_id": %q}`, started.AnalysisID)
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/generate-script", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusConflict)
}

func TestAssets_InvalidBody(t *testing.T) {
	ta := setupApp(t)

	cases := map[string]string{
		"/api/generate-script": `{"analysis_id": "x", "duration": 5}`,
		"/api/generate-images": `{"script": "Hello"}`,
		"/api/generate-audio":  `{"script": "Hello", "voice": "robot"}`,
	}
	for path, body := range cases {
		resp, err := doAuthRequest(t, ta.app, http.MethodPost, path, body)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}
