package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bitdruid/llmm/internal/api"
	"github.com/bitdruid/llmm/internal/client"
	"github.com/bitdruid/llmm/internal/config"
	"github.com/bitdruid/llmm/internal/storage"
	"github.com/bitdruid/llmm/internal/view"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":"not found"}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

// setup points the CLI at a test server and at temporary config and data
// directories. It returns the data directory.
func setup(t *testing.T, ts *testServer) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("LLMM_CONFIG", filepath.Join(dir, "config.toml"))
	t.Setenv("LLMM_STORAGE_DATA_DIR", dir)
	t.Setenv("LLMM_THEME", "")
	t.Setenv("LLMM_SERVER_URL", "")
	t.Setenv("LLMM_SERVER_TOKEN", "")
	t.Setenv("XDG_DATA_HOME", dir)

	origClient, origStdin := newAPIClient, stdin
	t.Cleanup(func() {
		newAPIClient, stdin = origClient, origStdin
	})
	newAPIClient = func() (*client.Client, error) {
		if ts == nil {
			t.Fatal("unexpected API call")
		}
		return client.New(ts.server.URL, client.WithHTTPClient(ts.server.Client())), nil
	}
	stdin = strings.NewReader("")
	return dir
}

// resetFlags restores every flag to its default. Cobra commands are package
// globals, so values would otherwise leak between runs.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	// Cobra only hands the root context to a subcommand whose context is
	// nil, so a context kept from an earlier run would shadow the new one.
	cmd.SetContext(nil)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runContext(t, context.Background(), args...)
}

func runContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	noColor, outputFormat, serverURL = false, formatTable, ""

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	return out.String(), err
}

const modelsBody = `{"models":[
	{"name":"llama3:8b","size":4661224676,"modified_at":"2026-10-01T10:00:00Z",
	 "details":{"format":"gguf","parameter_size":"8B","quantization_level":"Q4_0"}},
	{"name":"qwen3:4b","size":2600000000,"details":{"parameter_size":"4B"}}
]}`

func TestModelsList_Table(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GET /api/models": modelsBody})
	setup(t, ts)

	out, err := run(t, "models", "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"NAME", "QUANT", "llama3:8b", "4.3 GB", "8B", "gguf", "Q4_0", "qwen3:4b"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestModelsList_JSON(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GET /api/models": modelsBody})
	setup(t, ts)

	out, err := run(t, "models", "ls", "-o", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var models []client.Model
	if err := json.Unmarshal([]byte(out), &models); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(models) != 2 || models[0].Name != "llama3:8b" || models[0].Details.QuantizationLevel != "Q4_0" {
		t.Errorf("models = %+v", models)
	}
}

func TestModelsList_YAML(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GET /api/models": modelsBody})
	setup(t, ts)

	out, err := run(t, "models", "list", "--output", "yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"name:", "llama3:8b", "parameter_size: 8B", "size: 4661224676"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestModelsList_Empty(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GET /api/models": `{"models":[]}`})
	setup(t, ts)

	out, err := run(t, "models", "list")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, view.EmptyModels) {
		t.Errorf("expected empty message, got:\n%s", out)
	}
}

func TestModelsPs_Empty(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GET /api/models/running": `{"models":[]}`})
	setup(t, ts)

	out, err := run(t, "models", "ps")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, view.EmptyRunning) {
		t.Errorf("expected empty message, got:\n%s", out)
	}
}

func TestModelsPs_Rows(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/models/running": `{"models":[{"name":"llama3:8b","size":0,"details":{"parameter_size":"8B"}}]}`,
	})
	setup(t, ts)

	out, err := run(t, "models", "ps")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"llama3:8b", "8B", "Active"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestModelsInfo_JSONKeepsFullDocument(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/models/qwen3:4b/info": `{"capabilities":["completion","thinking"],"details":{"family":"qwen3"},"modelfile":"FROM qwen3"}`,
	})
	setup(t, ts)

	out, err := run(t, "models", "info", "qwen3:4b", "-o", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if doc["modelfile"] != "FROM qwen3" {
		t.Errorf("unknown fields should survive, got %v", doc)
	}
}

func TestModelsInfo_Table(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/models/qwen3:4b/info": `{"capabilities":["completion","thinking"],"details":{"family":"qwen3"},"parameters":"temperature 0.6\ntop_k 20"}`,
	})
	setup(t, ts)

	out, err := run(t, "models", "info", "qwen3:4b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"completion, thinking", "qwen3", "top_k 20"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestModelsRm_Yes(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /api/models/llama3:8b": `{"status":"success","message":"Model 'llama3:8b' deleted successfully"}`,
	})
	setup(t, ts)

	if _, err := run(t, "models", "rm", "llama3:8b", "--yes"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 || ts.requests[0].Method != http.MethodDelete {
		t.Errorf("requests = %+v", ts.requests)
	}
}

func TestModelsRm_Declined(t *testing.T) {
	ts := newTestServer(t, nil)
	setup(t, ts)
	stdin = strings.NewReader("n\n")

	if _, err := run(t, "models", "rm", "llama3:8b"); err != nil {
		t.Fatalf("declining should not fail: %v", err)
	}
	if len(ts.requests) != 0 {
		t.Errorf("no request expected, got %+v", ts.requests)
	}
}

func TestModelsRm_Confirmed(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /api/models/llama3:8b": `{"status":"success","message":"deleted"}`,
	})
	setup(t, ts)
	stdin = strings.NewReader("y\n")

	if _, err := run(t, "models", "rm", "llama3:8b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 {
		t.Errorf("expected one request, got %+v", ts.requests)
	}
}

func TestModelsRm_ServerRefuses(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /api/models/nope": `{"status":"error","message":"model 'nope' not found"}`,
	})
	setup(t, ts)

	_, err := run(t, "models", "rm", "nope", "-y")
	if err == nil || !strings.Contains(err.Error(), "model 'nope' not found") {
		t.Fatalf("expected server message, got %v", err)
	}
}

func TestModelsPull(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/models/pull": "data: {\"status\":\"pulling manifest\"}\n\n" +
			"data: {\"status\":\"downloading\",\"completed\":50,\"total\":100}\n\n" +
			"data: {\"status\":\"success\"}\n\n",
	})
	setup(t, ts)

	if _, err := run(t, "models", "pull", "qwen3:4b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 {
		t.Fatalf("expected one request, got %d", len(ts.requests))
	}
	var req client.PullRequest
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &req); err != nil {
		t.Fatalf("decoding request: %v", err)
	}
	if req.Name != "qwen3:4b" {
		t.Errorf("name = %q", req.Name)
	}
}

func TestModelsUpdate_UsesUpdateEndpoint(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/models/update": "data: {\"status\":\"success\"}\n\n",
	})
	setup(t, ts)

	if _, err := run(t, "models", "update", "llama3:8b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 || ts.requests[0].Path != "/api/models/update" {
		t.Errorf("requests = %+v", ts.requests)
	}
}

func TestModelsPull_ErrorFrame(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/models/pull": "data: {\"status\":\"pulling manifest\"}\n\n" +
			"data: {\"error\":\"pull model manifest: file does not exist\"}\n\n",
	})
	setup(t, ts)

	_, err := run(t, "models", "pull", "nope")
	if err == nil || !strings.Contains(err.Error(), "file does not exist") {
		t.Fatalf("expected pull error, got %v", err)
	}
}

var chatResponses = map[string]string{
	"GET /api/models/llama3:8b/info": `{"capabilities":["completion"],"details":{}}`,
	"POST /api/chat": "data: {\"message\":{\"role\":\"assistant\",\"content\":\"Hel\"}}\n\n" +
		"data: {\"message\":{\"role\":\"assistant\",\"content\":\"lo\"},\"done\":true}\n\n",
}

func lastChatRequest(t *testing.T, ts *testServer) client.ChatRequest {
	t.Helper()
	for i := len(ts.requests) - 1; i >= 0; i-- {
		if ts.requests[i].Path == "/api/chat" {
			var req client.ChatRequest
			if err := json.Unmarshal([]byte(ts.requests[i].Body), &req); err != nil {
				t.Fatalf("decoding chat request: %v", err)
			}
			return req
		}
	}
	t.Fatal("no chat request recorded")
	return client.ChatRequest{}
}

func TestChat_OneShot(t *testing.T) {
	ts := newTestServer(t, chatResponses)
	setup(t, ts)

	out, err := run(t, "chat", "llama3:8b", "Hi", "there", "--temperature", "0.2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Hello\n" {
		t.Errorf("output = %q, want %q", out, "Hello\n")
	}

	req := lastChatRequest(t, ts)
	if req.Model != "llama3:8b" || len(req.Messages) != 1 {
		t.Fatalf("request = %+v", req)
	}
	if req.Messages[0].Role != "user" || req.Messages[0].Content != "Hi there" {
		t.Errorf("message = %+v", req.Messages[0])
	}
	if req.Options == nil || req.Options.Temperature == nil || *req.Options.Temperature != 0.2 {
		t.Errorf("options = %+v", req.Options)
	}
	if req.Options.Seed != nil {
		t.Error("unset flags must not be sent")
	}
}

func TestChat_NoOptionsWhenNoFlags(t *testing.T) {
	ts := newTestServer(t, chatResponses)
	setup(t, ts)

	if _, err := run(t, "chat", "llama3:8b", "Hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(ts.requests[len(ts.requests)-1].Body, `"options"`) {
		t.Errorf("options should be omitted: %s", ts.requests[len(ts.requests)-1].Body)
	}
}

func TestChat_Attachment(t *testing.T) {
	ts := newTestServer(t, chatResponses)
	setup(t, ts)

	path := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(path, []byte("remember the milk"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := run(t, "chat", "llama3:8b", "--attach", path, "summarise"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	content := lastChatRequest(t, ts).Messages[0].Content
	for _, want := range []string{"File: notes.txt", "remember the milk", "summarise"} {
		if !strings.Contains(content, want) {
			t.Errorf("prompt missing %q:\n%s", want, content)
		}
	}
}

func TestChat_Interactive(t *testing.T) {
	ts := newTestServer(t, chatResponses)
	setup(t, ts)
	stdin = strings.NewReader("Hi\n\nAgain\n/exit\nnever sent\n")

	out, err := run(t, "chat", "llama3:8b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Hello\nHello\n" {
		t.Errorf("output = %q", out)
	}

	// The second turn carries the whole transcript.
	req := lastChatRequest(t, ts)
	if len(req.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %+v", req.Messages)
	}
	if req.Messages[1].Role != "assistant" || req.Messages[1].Content != "Hello" || req.Messages[2].Content != "Again" {
		t.Errorf("messages = %+v", req.Messages)
	}
}

func TestChat_InteractiveClear(t *testing.T) {
	ts := newTestServer(t, chatResponses)
	setup(t, ts)
	stdin = strings.NewReader("Hi\n/clear\nAgain\n")

	if _, err := run(t, "chat", "llama3:8b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := lastChatRequest(t, ts)
	if len(req.Messages) != 1 || req.Messages[0].Content != "Again" {
		t.Errorf("cleared chat should start over, got %+v", req.Messages)
	}
}

func TestGenerate(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/generate": "data: {\"response\":\"4\"}\n\ndata: {\"response\":\".\",\"done\":true}\n\n",
	})
	setup(t, ts)

	out, err := run(t, "generate", "llama3:8b", "2+2?", "--seed", "7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "4.\n" {
		t.Errorf("output = %q", out)
	}
	var req client.GenerateRequest
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &req); err != nil {
		t.Fatalf("decoding request: %v", err)
	}
	if req.Prompt != "2+2?" || req.Options == nil || req.Options.Seed == nil || *req.Options.Seed != 7 {
		t.Errorf("request = %+v", req)
	}
}

func TestGenerate_AllOptions(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/generate": "data: {\"response\":\"ok\",\"done\":true}\n\n",
	})
	setup(t, ts)

	_, err := run(t, "generate", "llama3:8b", "hi",
		"--temperature", "0.7", "--top-k", "40", "--top-p", "0.9",
		"--repeat-penalty", "1.1", "--seed", "3", "--num-predict", "128", "--num-ctx", "4096")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := ts.requests[0].Body
	for _, want := range []string{
		`"temperature":0.7`, `"top_k":40`, `"top_p":0.9`, `"repeat_penalty":1.1`,
		`"seed":3`, `"num_predict":128`, `"num_ctx":4096`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("request missing %s: %s", want, body)
		}
	}
}

func TestChat_SamplingOptions(t *testing.T) {
	ts := newTestServer(t, chatResponses)
	setup(t, ts)

	_, err := run(t, "chat", "llama3:8b", "Hi", "--top-k", "20", "--top-p", "0.5", "--repeat-penalty", "1.3", "--num-predict", "64")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	o := lastChatRequest(t, ts).Options
	if o == nil || o.TopK == nil || *o.TopK != 20 || o.TopP == nil || *o.TopP != 0.5 {
		t.Fatalf("options = %+v", o)
	}
	if o.RepeatPenalty == nil || *o.RepeatPenalty != 1.3 || o.NumPredict == nil || *o.NumPredict != 64 {
		t.Errorf("options = %+v", o)
	}
	if o.Temperature != nil || o.Seed != nil || o.NumCtx != nil {
		t.Error("unset flags must not be sent")
	}
}

func TestGenerate_InterruptIsNotAnError(t *testing.T) {
	streaming := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data: {\"response\":\"par\"}\n\n"))
		w.(http.Flusher).Flush()
		close(streaming)
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	setup(t, &testServer{server: srv})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-streaming
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if _, err := runContext(t, ctx, "generate", "llama3:8b", "hi"); err != nil {
		t.Fatalf("interrupted generate should exit cleanly, got %v", err)
	}
}

func TestGenerate_ErrorFrame(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/generate": "data: {\"error\":\"model not found\"}\n\n",
	})
	setup(t, ts)

	_, err := run(t, "generate", "nope", "hi")
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("expected error frame to fail, got %v", err)
	}
}

func TestHistory_Table(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/history": `[{"id":"0b1c2d3e-aaaa-bbbb-cccc-000000000001","created_at":"2026-10-01T10:00:00Z",
			"action":"pull","model":"llama3:8b","status":"ok","duration_ms":1500}]`,
	})
	setup(t, ts)

	out, err := run(t, "history", "--limit", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"0b1c2d3e", "pull", "llama3:8b", "1.5s"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if ts.requests[0].Path != "/api/history?limit=5" {
		t.Errorf("path = %q", ts.requests[0].Path)
	}
}

func seedHistory(t *testing.T, dir string, entries ...storage.Entry) []storage.Entry {
	t.Helper()
	store, err := storage.Open(dir)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer store.Close()

	out := make([]storage.Entry, 0, len(entries))
	for _, e := range entries {
		saved, err := store.RecordHistory(context.Background(), e)
		if err != nil {
			t.Fatalf("recording history: %v", err)
		}
		out = append(out, saved)
	}
	return out
}

func TestHistoryShow(t *testing.T) {
	dir := setup(t, nil)
	saved := seedHistory(t, dir, storage.Entry{Action: storage.ActionDelete, Model: "qwen3:4b", Detail: "removed"})

	out, err := run(t, "history", "show", saved[0].ID, "-o", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got storage.Entry
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got.ID != saved[0].ID || got.Model != "qwen3:4b" || got.Detail != "removed" {
		t.Errorf("entry = %+v", got)
	}
}

func TestHistoryShow_Missing(t *testing.T) {
	setup(t, nil)

	_, err := run(t, "history", "show", "does-not-exist")
	if err == nil || !strings.Contains(err.Error(), "no history entry") {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestHistoryPrune(t *testing.T) {
	dir := setup(t, nil)
	seedHistory(t, dir,
		storage.Entry{Action: storage.ActionPull, Model: "old", CreatedAt: time.Now().Add(-48 * time.Hour)},
		storage.Entry{Action: storage.ActionPull, Model: "new"},
	)

	if _, err := run(t, "history", "prune", "--older-than", "24h"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store, err := storage.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	left, err := store.ListHistory(context.Background(), storage.HistoryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 || left[0].Model != "new" {
		t.Errorf("remaining = %+v", left)
	}
}

func TestConfigShow_JSON(t *testing.T) {
	dir := setup(t, nil)

	out, err := run(t, "config", "show", "-o", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var keys []config.KeyInfo
	if err := json.Unmarshal([]byte(out), &keys); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	found := false
	for _, k := range keys {
		if k.Key == "storage.data_dir" {
			found = true
			if k.Value != dir || k.EnvVar != "LLMM_STORAGE_DATA_DIR" {
				t.Errorf("data dir key = %+v", k)
			}
		}
	}
	if !found {
		t.Error("storage.data_dir missing from config show")
	}
}

func TestConfigSetAndUnset(t *testing.T) {
	setup(t, nil)

	if _, err := run(t, "config", "set", "ollama.timeout", "90s"); err != nil {
		t.Fatalf("set: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ollama.Timeout != 90*time.Second {
		t.Errorf("timeout = %v", cfg.Ollama.Timeout)
	}

	if _, err := run(t, "config", "unset", "ollama.timeout"); err != nil {
		t.Fatalf("unset: %v", err)
	}
	cfg, err = config.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ollama.Timeout == 90*time.Second {
		t.Error("unset should restore the default")
	}
}

func TestConfigSet_UnknownKey(t *testing.T) {
	setup(t, nil)

	_, err := run(t, "config", "set", "nope.key", "1")
	if err == nil || !strings.Contains(err.Error(), "unknown config key") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestTheme(t *testing.T) {
	setup(t, nil)

	out, err := run(t, "theme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "light\n" {
		t.Errorf("default theme = %q", out)
	}

	if _, err := run(t, "theme", "dark"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if out, _ := run(t, "theme"); out != "dark\n" {
		t.Errorf("theme after set = %q", out)
	}

	if _, err := run(t, "theme", "toggle"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if out, _ := run(t, "theme"); out != "light\n" {
		t.Errorf("theme after toggle = %q", out)
	}

	if _, err := run(t, "theme", "sepia"); err == nil {
		t.Error("unknown theme should fail")
	}
}

func TestVersion_JSON(t *testing.T) {
	setup(t, nil)

	out, err := run(t, "version", "-o", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var info client.AppInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if info.Name != api.AppName || info.Version != version || info.GithubURL != api.GithubURL {
		t.Errorf("info = %+v", info)
	}
}

func TestUnknownOutputFormat(t *testing.T) {
	setup(t, nil)

	_, err := run(t, "version", "-o", "xml")
	if err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Fatalf("expected format error, got %v", err)
	}
}

func TestColorize(t *testing.T) {
	noColor = false
	got := colorize(colorGreen, "ok")
	if got != colorGreen+"ok"+colorReset {
		t.Errorf("colorize with color = %q", got)
	}

	noColor = true
	got = colorize(colorGreen, "ok")
	if got != "ok" {
		t.Errorf("colorize without color = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("line one\nline two", 8); got != "line one..." {
		t.Errorf("truncate = %q", got)
	}
}

func TestClientFor_SendsConfiguredToken(t *testing.T) {
	var auth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		w.Write([]byte(`{"models":[]}`))
	}))
	t.Cleanup(srv.Close)

	cfg := config.Config{}
	cfg.Server.Token = "s3cret"
	if _, err := clientFor(cfg, srv.URL).Models(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.Server.Token = ""
	if _, err := clientFor(cfg, srv.URL).Models(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(auth) != 2 || auth[0] != "Bearer s3cret" || auth[1] != "" {
		t.Errorf("Authorization headers = %q", auth)
	}
}

func TestClientFor_OverrideWins(t *testing.T) {
	cfg := config.Config{}
	cfg.Client.ServerURL = "http://configured.example"
	if got := clientFor(cfg, "http://flag.example/").BaseURL(); got != "http://flag.example" {
		t.Errorf("BaseURL = %q", got)
	}
	if got := clientFor(cfg, "").BaseURL(); got != "http://configured.example" {
		t.Errorf("BaseURL = %q", got)
	}
}

func TestTUI_GenerationFlags(t *testing.T) {
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	if err := tuiCmd.ParseFlags([]string{"--top-k", "5", "--num-predict", "32"}); err != nil {
		t.Fatalf("parsing flags: %v", err)
	}
	o := generationOptions(tuiCmd)
	if o == nil || o.TopK == nil || *o.TopK != 5 || o.NumPredict == nil || *o.NumPredict != 32 {
		t.Fatalf("options = %+v", o)
	}
	if o.Temperature != nil {
		t.Error("unset flags must not be sent")
	}
}
