package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/reelforge/api/internal/auth"
	"github.com/reelforge/api/internal/client"
	"github.com/reelforge/api/internal/config"
	"github.com/reelforge/api/internal/handler"
	"github.com/reelforge/api/internal/logger"
	"github.com/reelforge/api/internal/middleware"
	"github.com/reelforge/api/internal/model"
	"github.com/reelforge/api/internal/pipeline"
	"github.com/reelforge/api/internal/service"
	"github.com/reelforge/api/internal/store"
	"github.com/reelforge/api/internal/worker"
	"github.com/reelforge/api/internal/ws"
)

const testJWTSecret = "test-secret-for-e2e"

// memEnqueuer records tasks instead of pushing them to Redis. Tests drain it
// synchronously through the worker mux.
type memEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (m *memEnqueuer) Enqueue(ctx context.Context, taskType string, payload interface{}, delay time.Duration) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.tasks = append(m.tasks, asynq.NewTask(taskType, raw))
	m.mu.Unlock()
	return nil
}

func (m *memEnqueuer) pop() *asynq.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tasks) == 0 {
		return nil
	}
	t := m.tasks[0]
	m.tasks = m.tasks[1:]
	return t
}

// testApp wires the full stack against an in-memory database, the mock
// provider and an in-memory task queue.
type testApp struct {
	app   *fiber.App
	store store.Store
	enq   *memEnqueuer
	mux   *asynq.ServeMux
}

func setupApp(t *testing.T) *testApp {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	st, err := store.NewGormStoreWithDB(db)
	if err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	zlog := logger.NewNop()
	validate := validator.New()
	enq := &memEnqueuer{}

	hub := ws.NewHub(zlog)
	go hub.Run()

	provider := client.NewMockProvider()

	costCfg := config.CostConfig{
		KeyframeUSD: 0.35,
		VideoUSD:    1.80,
		AudioUSD:    0.25,
		BrollUSD:    0.90,
		EditUSD:     0.04,
		TextUSD:     0.02,
		AssembleUSD: 0.10,
		StageEstimate: map[string]float64{
			"scripting": 0.02,
			"casting":   2.80,
			"directing": 7.20,
		},
	}

	graph := pipeline.DefaultGraph()
	machine := pipeline.NewMachine(graph, st, hub, zlog)
	costs := service.NewCostTable(&costCfg)
	ledger := service.NewLedger(st, zlog)
	lifecycle := service.NewLifecycle(
		st, provider, nil, ledger, enq, hub, costs,
		time.Millisecond, time.Hour, zlog,
	)
	orchestrator := service.NewOrchestrator(machine, lifecycle, st, provider, ledger, enq, costs, zlog)
	analyzer := service.NewImpactAnalyzer(graph, model.DefaultImpactRules(), costs)
	propagator := service.NewPropagator(st, lifecycle, costs, zlog)

	projectHandler := handler.NewProjectHandler(orchestrator, machine, analyzer, ledger, st, validate)
	assetHandler := handler.NewAssetHandler(lifecycle, propagator, st, validate)
	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)

	// Redis is not required: the limiter skips itself when it is unreachable.
	rateLimiter := middleware.NewRateLimiter(redis.NewClient(&redis.Options{Addr: "localhost:1"}))

	app := fiber.New()
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"provider": provider.IsConfigured(),
				"storage":  false,
				"auth":     true,
			},
		})
	})

	api := app.Group("/api", authMiddleware.Authenticate())

	projects := api.Group("/projects")
	projects.Post("/", rateLimiter.GenerateLimit(10000), projectHandler.Create)
	projects.Get("/", projectHandler.List)
	projects.Get("/:id", projectHandler.Get)
	projects.Post("/:id/approve", projectHandler.Approve)
	projects.Post("/:id/cancel", projectHandler.Cancel)
	projects.Post("/:id/impact-preview", projectHandler.ImpactPreview)
	projects.Get("/:id/costs", projectHandler.Costs)
	projects.Get("/:id/scenes", projectHandler.ListScenes)
	projects.Put("/:id/scenes/:sceneId", rateLimiter.EditLimit(10000), projectHandler.EditScene)
	projects.Get("/:id/assets", assetHandler.List)

	assets := api.Group("/assets")
	assets.Get("/:id", assetHandler.Get)
	assets.Post("/:id/edit", rateLimiter.EditLimit(10000), assetHandler.Edit)
	assets.Get("/:id/propagation-preview", assetHandler.PropagationPreview)
	assets.Post("/:id/propagate", rateLimiter.EditLimit(10000), assetHandler.Propagate)
	assets.Post("/:id/regenerate", rateLimiter.GenerateLimit(10000), assetHandler.Regenerate)
	assets.Post("/:id/reject", assetHandler.Reject)
	assets.Post("/:id/grade", assetHandler.Grade)
	assets.Post("/:id/cancel", assetHandler.Cancel)

	pollWorker := worker.NewPollWorker(lifecycle, orchestrator, enq, zlog)

	return &testApp{
		app:   app,
		store: st,
		enq:   enq,
		mux:   worker.NewMux(pollWorker),
	}
}

// drain runs queued tasks until the queue is empty. The mock provider
// settles every job on its second poll, so this always terminates.
func (ta *testApp) drain(t *testing.T) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		task := ta.enq.pop()
		if task == nil {
			return
		}
		if err := ta.mux.ProcessTask(context.Background(), task); err != nil {
			t.Fatalf("task %s failed: %v", task.Type(), err)
		}
	}
	t.Fatal("task queue did not drain")
}

func generateToken(t *testing.T) string {
	t.Helper()
	signed, err := auth.NewToken(testJWTSecret, "test-user-123", "test@example.com", time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

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

func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

func parseJSONList(t *testing.T, resp *http.Response) []map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result []map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON list: %v\nbody: %s", err, body)
	}
	return result
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

const createProjectBody = `{
	"title": "Desk Organizer Launch",
	"productName": "TidyDesk Pro",
	"productDescription": "A modular desk organizer that ends cable chaos.",
	"targetAudience": "remote workers",
	"brandTone": "playful"
}`

// createProject starts a run and returns its ID.
func createProject(t *testing.T, ta *testApp) string {
	t.Helper()
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/projects/", createProjectBody)
	if err != nil {
		t.Fatalf("create project failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)
	body := parseJSON(t, resp)
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatal("create project returned no id")
	}
	return id
}

func getProjectStatus(t *testing.T, ta *testApp, id string) string {
	t.Helper()
	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/projects/"+id, "")
	if err != nil {
		t.Fatalf("get project failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	body := parseJSON(t, resp)
	status, _ := body["status"].(string)
	return status
}

func approve(t *testing.T, ta *testApp, id string) {
	t.Helper()
	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/projects/"+id+"/approve", "")
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
}
