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
	"sync"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/kalambet/asave/internal/agents"
	"github.com/kalambet/asave/internal/config"
	"github.com/kalambet/asave/internal/pipeline"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.mu.Lock()
		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})
		ts.mu.Unlock()

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// captureStderr redirects progress output for the duration of the test.
func captureStderr(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old, oldColor := stderr, noColor
	stderr, noColor = &buf, true
	t.Cleanup(func() { stderr, noColor = old, oldColor })
	return &buf
}

// isolateConfig points config and data lookups at empty temp directories.
func isolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
}

var ctx = context.Background()

func TestAnalyzeCommand_MissingFAS(t *testing.T) {
	isolateConfig(t)
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"analyze", "--text", "Profit is shared."})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing --fas")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestMineCommand_RequiresDocuments(t *testing.T) {
	isolateConfig(t)
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"mine"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error when no documents are given")
	}
}

func TestDocumentsList(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /documents": `[{"id":"FAS_4.pdf","kind":"fas","status":"indexed","chunk_count":42}]`,
	})

	resp, err := ts.client().get(ctx, "/documents")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var docs []struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		ChunkCount int    `json:"chunk_count"`
	}
	if err := decodeJSON(resp, &docs); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "FAS_4.pdf" || docs[0].ChunkCount != 42 {
		t.Errorf("docs = %+v", docs)
	}
	if ts.requests[0].Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", ts.requests[0].Auth)
	}
}

func TestQueueDocuments(t *testing.T) {
	captureStderr(t)
	ts := newTestServer(t, map[string]string{
		"POST /documents": `{"document_id":"SS_8.pdf","job_id":"job-1","status":"queued"}`,
	})

	if err := queueDocuments(ctx, ts.client(), []string{"SS_8.pdf"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if !filepath.IsAbs(body["path"]) || filepath.Base(body["path"]) != "SS_8.pdf" {
		t.Errorf("path = %q, want an absolute path to SS_8.pdf", body["path"])
	}
}

func TestQueueDocuments_CollectsFailures(t *testing.T) {
	out := captureStderr(t)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if strings.HasSuffix(req["path"], ".docx") {
			w.WriteHeader(400)
			w.Write([]byte(`{"error":{"message":"unsupported document type \".docx\"","type":"invalid_request_error"}}`))
			return
		}
		w.Write([]byte(`{"document_id":"FAS_4.pdf","job_id":"job-2","status":"queued"}`))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, httpClient: ts.Client()}
	err := queueDocuments(ctx, client, []string{"notes.docx", "FAS_4.pdf"})
	if err == nil {
		t.Fatal("expected error when a document is rejected")
	}
	if !strings.Contains(err.Error(), "1 of 2") {
		t.Errorf("error = %q, want it to mention '1 of 2'", err.Error())
	}
	if !strings.Contains(out.String(), "unsupported document type") {
		t.Errorf("stderr = %q, want the server message", out.String())
	}
}

func TestStatus_Running(t *testing.T) {
	out := captureStderr(t)
	appConfig = config.Config{}
	appConfig.Server.Port = 4000
	appConfig.LLM.Provider = "ollama"
	appConfig.LLM.Model = "llama3"
	appConfig.LLM.Timeout = "1m"
	appConfig.Retrieval.ChunkSize = 1200

	ts := newTestServer(t, map[string]string{
		"GET /health":    `{"status":"ok","session":true,"jobs":{"pending":2,"completed":5}}`,
		"GET /documents": `[{"status":"indexed"},{"status":"indexed"},{"status":"failed"}]`,
	})

	showStatus(ctx, ts.client())

	got := out.String()
	for _, want := range []string{"Server: running on port 4000", "standards loaded", "Documents: 3 (2 indexed, 1 failed)", "Index jobs: 2 pending", "Model: llama3"} {
		if !strings.Contains(got, want) {
			t.Errorf("status output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "Config:") {
		t.Errorf("valid config should not be flagged:\n%s", got)
	}
}

func TestStatus_Stopped(t *testing.T) {
	out := captureStderr(t)
	appConfig = config.Config{}
	appConfig.LLM.Provider = "gemini"

	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	showStatus(ctx, ts.client())

	got := out.String()
	if !strings.Contains(got, "Server: stopped") {
		t.Errorf("status output missing stopped server:\n%s", got)
	}
	if !strings.Contains(got, "API key") {
		t.Errorf("status output should report the missing API key:\n%s", got)
	}
	if strings.Contains(got, "Documents:") {
		t.Errorf("documents should not be queried when stopped:\n%s", got)
	}
}

func TestAPIClient_NotReachable(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	_, err := ts.client().get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestAPIClient_NoTokenNoHeader(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = ""
	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if ts.requests[0].Auth != "" {
		t.Errorf("auth = %q, want no header", ts.requests[0].Auth)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, token: "bad-token", httpClient: ts.Client()}

	resp, err := client.get(ctx, "/session")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if err.Error() != "server returned 401: unauthorized" {
		t.Errorf("error = %q", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestReadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "section.txt")
	if err := os.WriteFile(path, []byte("\n  Losses are borne by capital.\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := readInput("", path, "section text")
	if err != nil || got != "Losses are borne by capital." {
		t.Errorf("file: got %q, %v", got, err)
	}

	got, err = readInput("inline", "", "section text")
	if err != nil || got != "inline" {
		t.Errorf("text: got %q, %v", got, err)
	}

	old := stdin
	defer func() { stdin = old }()
	stdin = strings.NewReader("from stdin")
	got, err = readInput("", "-", "section text")
	if err != nil || got != "from stdin" {
		t.Errorf("stdin: got %q, %v", got, err)
	}

	for name, args := range map[string][2]string{
		"both":    {"inline", path},
		"neither": {"", ""},
		"blank":   {"   ", ""},
		"missing": {"", filepath.Join(t.TempDir(), "nope.txt")},
	} {
		if _, err := readInput(args[0], args[1], "section text"); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestPrintResult_Complete(t *testing.T) {
	captureStderr(t)
	var buf bytes.Buffer

	printResult(&buf, pipeline.Result{
		OriginalText:        "Profit is shared.",
		AmbiguityRaw:        "1. 'shared' does not say in what ratio.",
		FASContext:          "FAS 4: profit ratios are agreed at inception.",
		SuggestedText:       "Profit is shared in the ratio agreed at inception.",
		SuggestionReasoning: "Aligns with the partnership contract.",
		ComplianceStatus:    "Compliant",
		ConsistencyStatus:   "Consistent",
		Stage:               pipeline.StageDone,
		DurationMs:          1200,
	})

	got := buf.String()
	for _, want := range []string{
		"== Suggested revision ==\nProfit is shared in the ratio agreed at inception.",
		"Status: Compliant",
		"Status: Consistent",
		"== SS context ==\n(none)",
		"Analysis complete (1200 ms)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestPrintResult_Halted(t *testing.T) {
	captureStderr(t)
	var buf bytes.Buffer

	printResult(&buf, pipeline.Result{
		OriginalText:  "Profit is shared.",
		SuggestionRaw: "I cannot help with that.",
		Stage:         pipeline.StageSuggestion,
		Error:         "no revised paragraph",
	})

	got := buf.String()
	if !strings.Contains(got, "Halted at suggestion_generation: no revised paragraph") {
		t.Errorf("output missing halt note:\n%s", got)
	}
	if !strings.Contains(got, "I cannot help with that.") {
		t.Errorf("output missing raw suggestion:\n%s", got)
	}
	if strings.Contains(got, "compliance") {
		t.Errorf("validation sections should be omitted after a halt:\n%s", got)
	}
}

func TestPrintBatchReport(t *testing.T) {
	captureStderr(t)
	var buf bytes.Buffer

	printBatchReport(&buf, pipeline.BatchReport{
		Documents: []pipeline.DocumentReport{
			{Document: "SS_8.pdf", Rules: 4, Path: "/out/generated_SS_8_rules.json"},
			{Document: "SS_99.pdf", Error: "document SS_99.pdf: no such file"},
		},
		Total:        4,
		CombinedPath: "/out/generated_ALL_shariah_rules_combined.json",
	})

	want := "  ✓ SS_8.pdf: 4 rules -> /out/generated_SS_8_rules.json\n" +
		"  ✗ SS_99.pdf: document SS_99.pdf: no such file\n" +
		"Total rules: 4\n" +
		"Combined file: /out/generated_ALL_shariah_rules_combined.json\n"
	if buf.String() != want {
		t.Errorf("report =\n%s\nwant\n%s", buf.String(), want)
	}
}

func TestPrintDefinitions(t *testing.T) {
	captureStderr(t)
	var buf bytes.Buffer

	printDefinitions(&buf, nil)
	if buf.String() != "No definitions found.\n" {
		t.Errorf("empty = %q", buf.String())
	}

	buf.Reset()
	printDefinitions(&buf, []agents.Definition{{Term: "Musharaka", Definition: "A partnership in capital and profit."}})
	if buf.String() != "Musharaka\n  A partnership in capital and profit.\n" {
		t.Errorf("definitions = %q", buf.String())
	}
}

func TestDocumentSummary(t *testing.T) {
	tests := []struct {
		docs []docStatus
		want string
	}{
		{nil, "0"},
		{[]docStatus{{"indexed"}}, "1 (1 indexed)"},
		{[]docStatus{{"pending"}, {"failed"}, {"indexed"}, {"pending"}}, "4 (1 indexed, 2 pending, 1 failed)"},
	}
	for _, tt := range tests {
		if got := documentSummary(tt.docs); got != tt.want {
			t.Errorf("documentSummary(%v) = %q, want %q", tt.docs, got, tt.want)
		}
	}
}

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level   string
		verbose bool
		debug   bool
		info    bool
	}{
		{"info", false, false, true},
		{"debug", false, true, true},
		{"warn", false, false, false},
		{"bogus", false, false, true},
		{"warn", true, true, true},
	}
	for _, tt := range tests {
		l, err := newLogger(tt.level, tt.verbose)
		if err != nil {
			t.Fatalf("newLogger(%q): %v", tt.level, err)
		}
		core := l.Core()
		if got := core.Enabled(zapcore.DebugLevel); got != tt.debug {
			t.Errorf("newLogger(%q, %v) debug enabled = %v, want %v", tt.level, tt.verbose, got, tt.debug)
		}
		if got := core.Enabled(zapcore.InfoLevel); got != tt.info {
			t.Errorf("newLogger(%q, %v) info enabled = %v, want %v", tt.level, tt.verbose, got, tt.info)
		}
	}
}

func TestPIDFile(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "data"))
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("expected error after removal")
	}
}

func TestJobSummary(t *testing.T) {
	tests := []struct {
		counts map[string]int
		want   string
	}{
		{map[string]int{}, "idle"},
		{map[string]int{"completed": 4}, "idle"},
		{map[string]int{"failed": 2, "pending": 1, "running": 1, "completed": 3}, "1 pending, 1 running, 2 failed"},
	}
	for _, tt := range tests {
		if got := jobSummary(tt.counts); got != tt.want {
			t.Errorf("jobSummary(%v) = %q, want %q", tt.counts, got, tt.want)
		}
	}
}
