package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Mindburn-Labs/boundary/pkg/artifacts"
	"github.com/Mindburn-Labs/boundary/pkg/audit"
	"github.com/Mindburn-Labs/boundary/pkg/telemetry"
)

func TestDispatcher_Run_AppendsBookendEventsAndArtifacts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"r1","choices":[{"message":{"content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	repoRoot := t.TempDir()
	store, err := artifacts.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	appender, err := audit.OpenAppender(filepath.Join(repoRoot, "runtime", "logs", "audit.jsonl"))
	if err != nil {
		t.Fatalf("OpenAppender: %v", err)
	}
	defer appender.Close()

	d := &Dispatcher{
		RepoRoot: repoRoot,
		Store:    store,
		Appender: appender,
		Backend:  NewOpenAICompatProvider(srv.URL, "key"),
	}

	outcome, err := d.Run(context.Background(), "call-1", srv.URL, sampleSanitized(), "sha256:post")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != audit.StatusOK {
		t.Fatalf("expected StatusOK, got %s", outcome.Status)
	}

	dir := artifacts.ModelsDir(repoRoot, "run-1", "call-1")
	for _, name := range []string{"response_raw.json", "reply_normalized.json"} {
		path := filepath.Join(dir, name)
		if _, statErr := statFile(path); statErr != nil {
			t.Fatalf("expected artifact %s to exist: %v", name, statErr)
		}
	}

	logPath := filepath.Join(repoRoot, "runtime", "logs", "audit.jsonl")
	head, err := audit.Verify(logPath)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if head == audit.GenesisHash {
		t.Fatalf("expected audit log to contain dispatched+completed events")
	}
}

func TestDispatcher_Run_WritesErrorArtifactsOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	repoRoot := t.TempDir()
	store, err := artifacts.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	appender, err := audit.OpenAppender(filepath.Join(repoRoot, "runtime", "logs", "audit.jsonl"))
	if err != nil {
		t.Fatalf("OpenAppender: %v", err)
	}
	defer appender.Close()

	d := &Dispatcher{
		RepoRoot: repoRoot,
		Store:    store,
		Appender: appender,
		Backend:  NewOpenAICompatProvider(srv.URL, "key"),
	}

	outcome, err := d.Run(context.Background(), "call-2", srv.URL, sampleSanitized(), "sha256:post")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome.Status != audit.StatusRateLimited {
		t.Fatalf("expected StatusRateLimited, got %s", outcome.Status)
	}
	if outcome.Response != nil {
		t.Fatalf("expected nil Response on a rate-limited outcome")
	}

	dir := artifacts.ModelsDir(repoRoot, "run-1", "call-2")
	for _, name := range []string{"response_raw.json", "reply_normalized.json"} {
		path := filepath.Join(dir, name)
		data, statErr := os.ReadFile(path)
		if statErr != nil {
			t.Fatalf("expected artifact %s to exist: %v", name, statErr)
		}
		if name == "reply_normalized.json" {
			var reply Reply
			if jsonErr := json.Unmarshal(data, &reply); jsonErr != nil {
				t.Fatalf("parse reply_normalized.json: %v", jsonErr)
			}
			if reply.Content != "" {
				t.Fatalf("expected empty placeholder content, got %q", reply.Content)
			}
			if reply.FinishReason == nil || *reply.FinishReason != "error" {
				t.Fatalf("expected placeholder finish_reason \"error\", got %v", reply.FinishReason)
			}
			if reply.Usage != nil {
				t.Fatalf("expected nil usage in placeholder, got %+v", reply.Usage)
			}
			if reply.ProviderRequestID != nil {
				t.Fatalf("expected nil provider_request_id in placeholder, got %v", *reply.ProviderRequestID)
			}
		}
	}

	logPath := filepath.Join(repoRoot, "runtime", "logs", "audit.jsonl")
	head, err := audit.Verify(logPath)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if head == audit.GenesisHash {
		t.Fatalf("expected audit log to contain dispatched+completed events even on failure")
	}
}

func TestDispatcher_Run_RecordsTelemetrySpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)

	provider, err := telemetry.New()
	if err != nil {
		t.Fatalf("telemetry.New: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"r1","choices":[{"message":{"content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	repoRoot := t.TempDir()
	store, err := artifacts.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	appender, err := audit.OpenAppender(filepath.Join(repoRoot, "runtime", "logs", "audit.jsonl"))
	if err != nil {
		t.Fatalf("OpenAppender: %v", err)
	}
	defer appender.Close()

	d := &Dispatcher{
		RepoRoot:  repoRoot,
		Store:     store,
		Appender:  appender,
		Backend:   NewOpenAICompatProvider(srv.URL, "key"),
		Telemetry: provider,
	}

	if _, err := d.Run(context.Background(), "call-3", srv.URL, sampleSanitized(), "sha256:post"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	ended := recorder.Ended()
	if len(ended) != 1 || ended[0].Name() != "dispatch" {
		t.Fatalf("expected exactly one ended span named dispatch, got %+v", ended)
	}
}
