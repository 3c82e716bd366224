package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/optisuite/optisuite/internal/claude"
	"github.com/optisuite/optisuite/internal/config"
	"github.com/optisuite/optisuite/internal/content"
	"github.com/optisuite/optisuite/internal/revenue"
	"github.com/optisuite/optisuite/internal/usage"
	"github.com/optisuite/optisuite/internal/workflow"
)

// echoMessenger answers every prompt with "out: <prompt>".
type echoMessenger struct {
	failOn string
}

func (e *echoMessenger) Messages(_ context.Context, req claude.MessageRequest) (*claude.MessageResponse, error) {
	if e.failOn != "" && strings.Contains(req.Prompt, e.failOn) {
		return nil, &claude.APIError{StatusCode: http.StatusTooManyRequests, Type: "rate_limit_error", Message: "slow down"}
	}
	return &claude.MessageResponse{Text: "out: " + req.Prompt}, nil
}

func newTestServer(t *testing.T, apiKeys []string) *Server {
	t.Helper()

	cfg, err := config.LoadConfigOptional("", true)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.APIKeys = apiKeys

	messenger := &echoMessenger{failOn: "fail-me"}
	generator := content.NewGenerator(messenger)
	engine := workflow.NewEngine(messenger, cfg.Batch.MaxWorkers)
	if err = engine.Register("greet", []workflow.Step{
		{Type: workflow.StepPrompt, Content: "say hi to {name}"},
	}); err != nil {
		t.Fatalf("register workflow: %v", err)
	}

	pricing := revenue.NewPricing(cfg.Pricing, cfg.CostPerRequest)
	ledger, err := revenue.NewFileLedger(t.TempDir())
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	t.Cleanup(func() { _ = ledger.Close() })

	return NewServer(cfg, Deps{
		Messenger: messenger,
		Generator: generator,
		Engine:    engine,
		Pricing:   pricing,
		Ledger:    ledger,
		Packager:  revenue.NewPackager(pricing, generator),
		Stats:     usage.NewStats(true),
		Registry:  prometheus.NewRegistry(),
	})
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func TestHealth(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, nil)
	recorder := doJSON(t, server.Handler(), http.MethodGet, "/health", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestAuthGuard(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, []string{"secret"})
	handler := server.Handler()

	recorder := doJSON(t, handler, http.MethodGet, "/v1/stats", nil, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", recorder.Code)
	}

	recorder = doJSON(t, handler, http.MethodGet, "/v1/stats", nil, map[string]string{"x-api-key": "wrong"})
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", recorder.Code)
	}

	recorder = doJSON(t, handler, http.MethodGet, "/v1/stats", nil, map[string]string{"x-api-key": "secret"})
	if recorder.Code != http.StatusOK {
		t.Errorf("x-api-key: status = %d, want 200", recorder.Code)
	}

	recorder = doJSON(t, handler, http.MethodGet, "/v1/stats", nil, map[string]string{"Authorization": "Bearer secret"})
	if recorder.Code != http.StatusOK {
		t.Errorf("bearer: status = %d, want 200", recorder.Code)
	}

	// Health stays open.
	recorder = doJSON(t, handler, http.MethodGet, "/health", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Errorf("health: status = %d, want 200", recorder.Code)
	}
}

func TestGenerateEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, nil)
	recorder := doJSON(t, server.Handler(), http.MethodPost, "/v1/generate", map[string]any{
		"content_type": "blog_post",
		"topic":        "Go concurrency",
	}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	text, _ := payload["content"].(string)
	if !strings.Contains(text, "Go concurrency") {
		t.Errorf("content = %q", text)
	}
}

func TestGenerateEndpointValidation(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, nil)
	recorder := doJSON(t, server.Handler(), http.MethodPost, "/v1/generate", map[string]any{"topic": "Go"}, nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Code)
	}
	payload := decodeBody(t, recorder)
	detail, _ := payload["error"].(map[string]any)
	if detail["type"] != "invalid_request_error" {
		t.Errorf("error = %v", payload)
	}
}

func TestGenerateEndpointUpstreamStatus(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, nil)
	recorder := doJSON(t, server.Handler(), http.MethodPost, "/v1/generate", map[string]any{
		"content_type": "blog_post",
		"topic":        "fail-me",
	}, nil)
	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want upstream 429 passed through", recorder.Code)
	}
}

func TestBatchEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, nil)
	recorder := doJSON(t, server.Handler(), http.MethodPost, "/v1/batch", map[string]any{
		"prompts": []string{"one", "fail-me", "three"},
	}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body.String())
	}

	var payload struct {
		Results []struct {
			Index int    `json:"index"`
			Text  string `json:"text"`
			Error string `json:"error"`
		} `json:"results"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Results) != 3 {
		t.Fatalf("results = %+v", payload.Results)
	}
	if payload.Results[0].Text != "out: one" {
		t.Errorf("results[0] = %+v", payload.Results[0])
	}
	if payload.Results[1].Error == "" || payload.Results[1].Text != "" {
		t.Errorf("results[1] = %+v, want isolated failure", payload.Results[1])
	}
	if payload.Results[2].Text != "out: three" {
		t.Errorf("results[2] = %+v", payload.Results[2])
	}
}

func TestWorkflowEndpoints(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, nil)
	handler := server.Handler()

	recorder := doJSON(t, handler, http.MethodGet, "/v1/workflows", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("list status = %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "greet") {
		t.Errorf("workflows = %s", recorder.Body.String())
	}

	recorder = doJSON(t, handler, http.MethodPost, "/v1/workflows/greet/execute", map[string]any{
		"context": map[string]any{"name": "Ada"},
	}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("execute status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	if !strings.Contains(recorder.Body.String(), "out: say hi to Ada") {
		t.Errorf("execute body = %s", recorder.Body.String())
	}

	recorder = doJSON(t, handler, http.MethodPost, "/v1/workflows/nope/execute", nil, nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("unknown workflow status = %d, want 404", recorder.Code)
	}
}

func TestEstimateEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, nil)
	recorder := doJSON(t, server.Handler(), http.MethodPost, "/v1/revenue/estimate", map[string]any{
		"service_type": "blog_post",
		"quantity":     10,
	}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	if payload["quantity"] != float64(10) {
		t.Errorf("estimate = %v", payload)
	}
	if _, ok := payload["profit_margin"]; !ok {
		t.Errorf("estimate missing margin: %v", payload)
	}
}

func TestEstimateEndpointAcceptsZeroQuantity(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, nil)
	handler := server.Handler()

	recorder := doJSON(t, handler, http.MethodPost, "/v1/revenue/estimate", map[string]any{
		"service_type": "blog_post",
		"quantity":     0,
	}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	if payload["total_revenue"] != float64(0) || payload["profit_margin"] != float64(0) {
		t.Errorf("zero-quantity estimate = %v", payload)
	}

	recorder = doJSON(t, handler, http.MethodPost, "/v1/revenue/estimate", map[string]any{
		"service_type": "blog_post",
		"quantity":     -1,
	}, nil)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("negative quantity status = %d, want 400", recorder.Code)
	}
}

func TestApplyConfigConcurrentWithBatch(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, nil)
	handler := server.Handler()

	cfg, err := config.LoadConfigOptional("", true)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			cfg.Batch.MaxWorkers = i%4 + 1
			server.ApplyConfig(cfg)
		}
	}()

	for i := 0; i < 20; i++ {
		recorder := doJSON(t, handler, http.MethodPost, "/v1/batch", map[string]any{
			"prompts": []string{"a", "b"},
		}, nil)
		if recorder.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body.String())
		}
	}
	<-done
}

func TestTransactionEndpoints(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, nil)
	handler := server.Handler()

	recorder := doJSON(t, handler, http.MethodGet, "/v1/revenue/transactions", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("empty list status = %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `"transactions":[]`) {
		t.Errorf("empty list body = %s", recorder.Body.String())
	}

	recorder = doJSON(t, handler, http.MethodPost, "/v1/revenue/transactions", map[string]any{
		"service": "blog_post",
		"amount":  50.0,
		"tokens":  1200,
	}, nil)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("log status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	if payload["id"] == "" {
		t.Errorf("transaction = %v", payload)
	}

	recorder = doJSON(t, handler, http.MethodGet, "/v1/revenue/transactions", nil, nil)
	payload = decodeBody(t, recorder)
	if payload["total"] != float64(50) {
		t.Errorf("total = %v, want 50", payload["total"])
	}
}

func TestBuildPackageEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, nil)
	recorder := doJSON(t, server.Handler(), http.MethodPost, "/v1/revenue/packages", map[string]any{
		"package_name": "starter",
		"services": []map[string]any{
			{"type": "blog_post", "quantity": 2, "topic": "Go"},
		},
	}, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	if payload["package_name"] != "starter" {
		t.Errorf("package = %v", payload)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, nil)
	recorder := doJSON(t, server.Handler(), http.MethodGet, "/metrics", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
}

func TestApplyConfigReloadsKeysAndPrices(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, nil)

	cfg, err := config.LoadConfigOptional("", true)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.APIKeys = []string{"rotated"}
	cfg.Pricing = map[string]float64{"blog_post": 99}
	server.ApplyConfig(cfg)

	handler := server.Handler()
	recorder := doJSON(t, handler, http.MethodGet, "/v1/stats", nil, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("stats without rotated key: status = %d, want 401", recorder.Code)
	}

	recorder = doJSON(t, handler, http.MethodPost, "/v1/revenue/estimate", map[string]any{
		"service_type": "blog_post",
		"quantity":     1,
	}, map[string]string{"x-api-key": "rotated"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("estimate status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeBody(t, recorder)
	if payload["price_per_unit"] != float64(99) {
		t.Errorf("price_per_unit = %v, want reloaded 99", payload["price_per_unit"])
	}
}
