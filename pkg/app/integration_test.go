package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/QualityUnit/flowbatch/pkg/config"
	"github.com/QualityUnit/flowbatch/pkg/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
)

type stubInvoker struct{}

func (stubInvoker) Invoke(_ context.Context, _ domain.FlowRef, input map[string]string, _ bool) (*domain.InvocationResult, error) {
	var payload domain.ResultPayload
	_ = payload.UnmarshalJSON([]byte(`{"ai_answer":"answer to: ` + input[domain.InputKey] + `"}`))
	return &domain.InvocationResult{
		ID:      "inv-" + input[domain.InputKey],
		Status:  domain.FlowSuccess,
		Result:  payload,
		Credits: 1.25,
	}, nil
}

func (stubInvoker) PollStatus(context.Context, domain.FlowRef, string) (*domain.InvocationResult, error) {
	return &domain.InvocationResult{Status: domain.FlowSuccess}, nil
}

func TestHTTPIntegrationFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)

	const token = "test-token"
	cfg := &config.Config{
		RedisAddr:           mr.Addr(),
		FlowHuntBaseURL:     "https://flows.example.com",
		FlowHuntAPIKey:      "test-key",
		LogLevel:            "error",
		LogFormat:           "json",
		Env:                 "test",
		DefaultParallelism:  2,
		PollIntervalSeconds: 1,
		PollMaxIterations:   10,
		PollBackoffPolicy:   "fixed",
		OutputDir:           t.TempDir(),
		AuthProvider:        "static",
		AuthStaticToken:     token,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config validate: %v", err)
	}

	application, err := NewApplication(cfg, WithInvoker(stubInvoker{}))
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}
	SetupMappings(application)
	server := httptest.NewServer(application.Engine)
	t.Cleanup(server.Close)

	// Unauthenticated requests are rejected.
	status, body := doJSON(t, ctx, http.MethodGet, server.URL+"/v1/flowbatch/batches", "", nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d body=%s", status, body)
	}

	batchID := createBatch(t, ctx, server.URL, token)
	startBatch(t, ctx, server.URL, token, batchID)
	view := waitForFinished(t, ctx, server.URL, token, batchID)

	if view.Stats.Done != 2 || view.Stats.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", view.Stats)
	}
	if view.Stats.Credits != 2.5 {
		t.Errorf("expected credits 2.5, got %v", view.Stats.Credits)
	}

	outDir := filepath.Join(t.TempDir(), "results")
	writeOutputs(t, ctx, server.URL, token, batchID, outDir, 1)

	content, err := os.ReadFile(filepath.Join(outDir, "one.txt"))
	if err != nil {
		t.Fatalf("read output file: %v", err)
	}
	if string(content) != "answer to: question one" {
		t.Errorf("unexpected output file content: %q", content)
	}

	// Static tokens carry no role claim, so admin endpoints stay closed.
	status, body = doJSON(t, ctx, http.MethodPost, server.URL+"/v1/flowbatch/admin/batches/purge", token,
		map[string]any{"before": time.Now().UTC().Format(time.RFC3339)}, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for non-admin purge, got %d body=%s", status, body)
	}

	// Delete the finished batch.
	status, body = doJSON(t, ctx, http.MethodDelete, server.URL+"/v1/flowbatch/batches/"+batchID, token, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("delete status %d body=%s", status, body)
	}
	status, _ = doJSON(t, ctx, http.MethodGet, server.URL+"/v1/flowbatch/batches/"+batchID, token, nil, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", status)
	}
}

func TestHTTPImportCSV(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)

	const token = "test-token"
	cfg := &config.Config{
		RedisAddr:           mr.Addr(),
		FlowHuntBaseURL:     "https://flows.example.com",
		FlowHuntAPIKey:      "test-key",
		LogLevel:            "error",
		Env:                 "test",
		PollIntervalSeconds: 1,
		PollMaxIterations:   10,
		PollBackoffPolicy:   "fixed",
		AuthProvider:        "static",
		AuthStaticToken:     token,
	}

	application, err := NewApplication(cfg, WithInvoker(stubInvoker{}))
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}
	SetupMappings(application)
	server := httptest.NewServer(application.Engine)
	t.Cleanup(server.Close)

	csvBody := "input,filename\nfirst question,first.txt\nsecond question,second.txt\n"
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		server.URL+"/v1/flowbatch/batches/import?flowId=flow-1&parallelism=3", bytes.NewBufferString(csvBody))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "text/csv")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("import request: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("import status %d body=%s", resp.StatusCode, raw)
	}

	var out struct {
		Batch    domain.BatchView `json:"batch"`
		Imported int              `json:"imported"`
		Skipped  int              `json:"skipped"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal import response: %v", err)
	}
	if out.Imported != 2 || len(out.Batch.Tasks) != 2 {
		t.Fatalf("expected 2 imported tasks, got %+v", out)
	}
	if out.Batch.Config.Parallelism != 3 {
		t.Errorf("expected parallelism 3 from query, got %d", out.Batch.Config.Parallelism)
	}
	if out.Batch.Tasks[0].Filename != "first.txt" {
		t.Errorf("unexpected first task: %+v", out.Batch.Tasks[0])
	}
}

func createBatch(t *testing.T, ctx context.Context, baseURL, token string) string {
	t.Helper()
	body := map[string]any{
		"flowId": "flow-1",
		"tasks": []map[string]any{
			{"input": "question one", "filename": "one.txt"},
			{"input": "question two"},
		},
	}
	var resp domain.BatchView
	status, bodyStr := doJSON(t, ctx, http.MethodPost, baseURL+"/v1/flowbatch/batches", token, body, &resp)
	if status != http.StatusCreated {
		t.Fatalf("create batch status %d body=%s", status, bodyStr)
	}
	if resp.ID == "" {
		t.Fatal("missing batch id")
	}
	return resp.ID
}

func startBatch(t *testing.T, ctx context.Context, baseURL, token, id string) {
	t.Helper()
	status, bodyStr := doJSON(t, ctx, http.MethodPost, baseURL+"/v1/flowbatch/batches/"+id+"/start", token, nil, nil)
	if status != http.StatusAccepted {
		t.Fatalf("start status %d body=%s", status, bodyStr)
	}
}

func waitForFinished(t *testing.T, ctx context.Context, baseURL, token, id string) domain.BatchView {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var view domain.BatchView
		status, bodyStr := doJSON(t, ctx, http.MethodGet, baseURL+"/v1/flowbatch/batches/"+id, token, nil, &view)
		if status != http.StatusOK {
			t.Fatalf("get batch status %d body=%s", status, bodyStr)
		}
		if view.Status == domain.BatchFinished {
			return view
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("batch %s never finished", id)
	return domain.BatchView{}
}

func writeOutputs(t *testing.T, ctx context.Context, baseURL, token, id, dir string, want int) {
	t.Helper()
	var resp struct {
		Written int `json:"written"`
	}
	status, bodyStr := doJSON(t, ctx, http.MethodPost, baseURL+"/v1/flowbatch/batches/"+id+"/outputs", token,
		map[string]any{"directory": dir}, &resp)
	if status != http.StatusOK {
		t.Fatalf("write outputs status %d body=%s", status, bodyStr)
	}
	if resp.Written != want {
		t.Fatalf("expected %d files written, got %d", want, resp.Written)
	}
}

func doJSON(t *testing.T, ctx context.Context, method, url, token string, body any, out any) (int, string) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		buf = bytes.NewBuffer(b)
	}
	req, _ := http.NewRequestWithContext(ctx, method, url, buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_ = json.Unmarshal(b, out)
	}
	return resp.StatusCode, string(b)
}
