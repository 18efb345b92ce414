package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reelforge/api/internal/config"
)

// Job kinds submitted to the generation provider.
type JobKind string

const (
	JobImage     JobKind = "image"
	JobImageEdit JobKind = "image_edit"
	JobVideo     JobKind = "video"
	JobVoice     JobKind = "voice"
	JobBroll     JobKind = "broll"
	JobText      JobKind = "text"
	JobAssemble  JobKind = "assemble"
)

// Job states reported by the provider.
type JobState string

const (
	JobPending JobState = "pending"
	JobDone    JobState = "done"
	JobError   JobState = "error"
)

// JobStatus is one poll result for a provider task.
type JobStatus struct {
	TaskID    string          `json:"task_id"`
	State     JobState        `json:"state"`
	ResultURL string          `json:"result_url,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// GenerationProvider is the opaque async job boundary. Submission returns
// immediately with a task handle; completion arrives via polling. The core
// assumes nothing about latency.
type GenerationProvider interface {
	SubmitJob(ctx context.Context, kind JobKind, payload map[string]interface{}) (string, error)
	PollJob(ctx context.Context, taskID string) (*JobStatus, error)
	// CancelJob is best-effort: an error means the provider may still run the
	// job, not that local cancellation failed.
	CancelJob(ctx context.Context, taskID string) error
	IsConfigured() bool
}

// HTTPProvider talks to the generation gateway over JSON/HTTP.
type HTTPProvider struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewHTTPProvider(cfg *config.ProviderConfig) *HTTPProvider {
	return &HTTPProvider{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
	}
}

func (p *HTTPProvider) IsConfigured() bool {
	return p.apiKey != "" && p.baseURL != ""
}

func (p *HTTPProvider) SubmitJob(ctx context.Context, kind JobKind, payload map[string]interface{}) (string, error) {
	body := map[string]interface{}{
		"kind":    kind,
		"payload": payload,
	}
	var resp struct {
		TaskID string `json:"task_id"`
	}
	if err := p.post(ctx, "/v1/jobs", body, &resp); err != nil {
		return "", err
	}
	if resp.TaskID == "" {
		return "", fmt.Errorf("provider returned empty task id")
	}
	return resp.TaskID, nil
}

func (p *HTTPProvider) PollJob(ctx context.Context, taskID string) (*JobStatus, error) {
	var status JobStatus
	if err := p.get(ctx, "/v1/jobs/"+taskID, &status); err != nil {
		return nil, err
	}
	if status.TaskID == "" {
		status.TaskID = taskID
	}
	return &status, nil
}

func (p *HTTPProvider) CancelJob(ctx context.Context, taskID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.baseURL+"/v1/jobs/"+taskID, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("provider cancel returned status %d", resp.StatusCode)
	}
	return nil
}

func (p *HTTPProvider) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	return p.do(req, result)
}

func (p *HTTPProvider) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	return p.do(req, result)
}

func (p *HTTPProvider) do(req *http.Request, result interface{}) error {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(raw))
	}
	return json.Unmarshal(raw, result)
}

// MockProvider stands in when no provider credentials are configured. Jobs
// complete on the second poll, text jobs with canned JSON and everything
// else with a placeholder URL, which keeps the full pipeline walkable in
// development.
type MockProvider struct {
	mu     sync.Mutex
	polled map[string]bool
	tasks  map[string]string // taskID -> the payload's "task" field
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		polled: make(map[string]bool),
		tasks:  make(map[string]string),
	}
}

func (m *MockProvider) IsConfigured() bool { return false }

func (m *MockProvider) SubmitJob(ctx context.Context, kind JobKind, payload map[string]interface{}) (string, error) {
	taskID := fmt.Sprintf("mock-%s-%s", kind, uuid.New().String())
	if task, ok := payload["task"].(string); ok {
		m.mu.Lock()
		m.tasks[taskID] = task
		m.mu.Unlock()
	}
	return taskID, nil
}

func (m *MockProvider) PollJob(ctx context.Context, taskID string) (*JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.polled[taskID] {
		m.polled[taskID] = true
		return &JobStatus{TaskID: taskID, State: JobPending}, nil
	}
	status := &JobStatus{TaskID: taskID, State: JobDone}
	switch m.tasks[taskID] {
	case "analyze_product":
		status.Result = json.RawMessage(`{"angle":"problem-solution","hooks":["stop scrolling"],"painPoints":["wasted time"]}`)
	case "write_script":
		status.Result = json.RawMessage(`[
			{"segment_index":0,"section":"hook","script_text":"Stop scrolling.","shot_breakdown":"tight close-up","energy_arc":"spike","camera_spec":"handheld"},
			{"segment_index":1,"section":"problem","script_text":"Tired of wasted time?","shot_breakdown":"medium shot","energy_arc":"build","camera_spec":"static"},
			{"segment_index":2,"section":"solution","script_text":"Meet the fix.","shot_breakdown":"product hero shot","energy_arc":"peak","camera_spec":"slow push-in"},
			{"segment_index":3,"section":"cta","script_text":"Get yours today.","shot_breakdown":"end card","energy_arc":"resolve","camera_spec":"static"}
		]`)
	default:
		status.ResultURL = fmt.Sprintf("https://cdn.reelforge.dev/mock/%s", taskID)
	}
	return status, nil
}

func (m *MockProvider) CancelJob(ctx context.Context, taskID string) error { return nil }
