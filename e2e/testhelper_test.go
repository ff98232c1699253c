package e2e

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/competeiq/api/internal/auth"
	"github.com/competeiq/api/internal/client"
	"github.com/competeiq/api/internal/config"
	"github.com/competeiq/api/internal/handler"
	"github.com/competeiq/api/internal/middleware"
	"github.com/competeiq/api/internal/model"
	"github.com/competeiq/api/internal/progress"
	"github.com/competeiq/api/internal/redislock"
	"github.com/competeiq/api/internal/scrape"
	"github.com/competeiq/api/internal/service"
	ws "github.com/competeiq/api/internal/websocket"
	"github.com/competeiq/api/internal/worker"
)

const (
	testJWTSecret = "test-secret-for-e2e"
	testUserID    = "test-user-123"
)

// testApp holds all components needed for testing
type testApp struct {
	app    *fiber.App
	worker *worker.AnalysisWorker
	hub    *ws.Hub
}

// setupApp creates a Fiber app identical to main.go but with unconfigured external clients.
// This triggers fallback responses in all services.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	// Redis (localhost, DB 15 for tests)
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { redisClient.Close() })

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: "localhost:6379",
		DB:   15,
	})
	t.Cleanup(func() { asynqClient.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	validate := model.NewValidator()

	hubCtx, stopHub := context.WithCancel(context.Background())
	t.Cleanup(stopHub)
	hub := ws.NewHub(log)
	go hub.Run(hubCtx)

	// External clients, all unconfigured so services use fallbacks
	groqClient := client.NewGroqClient(&config.GroqConfig{})
	identityClient := client.NewIdentityClient(&config.IdentityConfig{})
	authenticator := auth.NewAuthenticator(nil, testJWTSecret)

	// Services
	locks := redislock.New(redisClient, "")
	analysisService := service.NewAnalysisService(redisClient, asynqClient, progress.DefaultCatalog, 0)
	assetService := service.NewAssetService(redisClient, groqClient, groqClient, nil, analysisService, log)
	sessionService := service.NewSessionService(redisClient, locks)
	authService := service.NewAuthService(redisClient, identityClient, testJWTSecret, time.Hour)
	exportService := service.NewExportService(analysisService)
	agents := service.NewAgents(groqClient, scrape.New(0), log)

	// Handlers
	analysisHandler := handler.NewAnalysisHandler(analysisService, exportService, validate)
	assetHandler := handler.NewAssetHandler(assetService, validate)
	sessionHandler := handler.NewSessionHandler(sessionService, validate)
	authHandler := handler.NewAuthHandler(authService, authenticator, validate)

	// Auth middleware, legacy HMAC only
	authMiddleware := middleware.NewLegacyAuthMiddleware(testJWTSecret).Authenticate()
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		BodyLimit: 4 * 1024 * 1024,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"groq":     groqClient.IsConfigured(),
				"r2":       false,
				"identity": identityClient.IsConfigured(),
				"auth":     true,
			},
		})
	})

	authGroup := app.Group("/auth")
	authGroup.Post("/login", authHandler.Login)
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/logout", authMiddleware, authHandler.Logout)
	authGroup.Get("/user", authMiddleware, authHandler.User)
	authGroup.Get("/verify", authHandler.Verify)

	// Use very high rate limits so tests don't get blocked
	api := app.Group("/api", authMiddleware)
	api.Post("/analyze-company", rateLimiter.AnalyzeLimit(10000), analysisHandler.Start)
	api.Get("/analysis/:id/progress", analysisHandler.Progress)
	api.Get("/analysis/:id/export", rateLimiter.ExportLimit(10000), analysisHandler.Export)
	api.Get("/analysis/:id", analysisHandler.Result)

	assetsLimit := rateLimiter.AssetsLimit(10000)
	api.Post("/generate-script", assetsLimit, assetHandler.Script)
	api.Post("/generate-images", assetsLimit, assetHandler.Images)
	api.Post("/generate-audio", assetsLimit, assetHandler.Audio)

	sessions := api.Group("/sessions", rateLimiter.SessionsLimit(10000))
	sessions.Get("/", sessionHandler.List)
	sessions.Post("/", sessionHandler.Create)
	sessions.Get("/active", sessionHandler.Active)
	sessions.Put("/:id", sessionHandler.Update)
	sessions.Post("/:id/activate", sessionHandler.Activate)
	sessions.Delete("/:id", sessionHandler.Delete)

	analysisWorker := worker.NewAnalysisWorker(analysisService, agents, hub, worker.AnalysisWorkerOptions{
		Locks:  locks,
		Logger: log,
	})

	return &testApp{app: app, worker: analysisWorker, hub: hub}
}

// generateToken issues a service HMAC token for test requests.
func generateToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.IssueToken(testJWTSecret, auth.Identity{
		UserID: userID,
		Email:  "test@example.com",
		Name:   "Test User",
	}, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs a request as testUserID.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doUserRequest(t, app, testUserID, method, path, body)
}

// doUserRequest performs a request as userID.
func doUserRequest(t *testing.T, app *fiber.App, userID, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t, userID),
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// decodeJSON parses the response body into out.
func decodeJSON(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	body := readBody(t, resp)
	if err := json.Unmarshal([]byte(body), out); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// assertErrorCode checks the code of an error envelope.
func assertErrorCode(t *testing.T, resp *http.Response, code string) {
	t.Helper()
	result := parseJSON(t, resp)
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatal("expected error object in response")
	}
	if errObj["code"] != code {
		t.Errorf("expected error code %s, got %v", code, errObj["code"])
	}
}

const acmeBody = `{
	"name": "Acme Robotics",
	"website_url": "https://acme.example",
	"product_description": "Warehouse picking robots",
	"market_category": "Logistics automation"
}`

// startAnalysis submits acmeBody and returns the start response.
func startAnalysis(t *testing.T, ta *testApp) model.StartAnalysisResponse {
	t.Helper()
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/analyze-company", acmeBody)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	var started model.StartAnalysisResponse
	decodeJSON(t, resp, &started)
	if started.AnalysisID == "" {
		t.Fatal("expected analysis_id in response")
	}
	return started
}

// runAnalysis processes the job inline, as the asynq server would.
func runAnalysis(t *testing.T, ta *testApp, started model.StartAnalysisResponse) {
	t.Helper()
	payload, err := json.Marshal(model.AnalysisJobPayload{
		AnalysisID: started.AnalysisID,
		CompanyID:  started.CompanyID,
		UserID:     testUserID,
		UserName:   "Test User",
		Company: model.CompanyInput{
			Name:               "Acme Robotics",
			WebsiteURL:         "https://acme.example",
			ProductDescription: "Warehouse picking robots",
			MarketCategory:     "Logistics automation",
		},
	})
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	task := asynq.NewTask(service.TaskTypeAnalysis, payload)
	if err := ta.worker.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("ProcessTask failed: %v", err)
	}
}
