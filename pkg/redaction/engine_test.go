package redaction

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Mindburn-Labs/boundary/pkg/artifacts"
	"github.com/Mindburn-Labs/boundary/pkg/audit"
	"github.com/Mindburn-Labs/boundary/pkg/schema"
	"github.com/Mindburn-Labs/boundary/pkg/telemetry"
)

func readFileMustExist(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func newTestEngine(t *testing.T) (*Engine, func()) {
	t.Helper()
	repoRoot := t.TempDir()
	storeDir := t.TempDir()

	store, err := artifacts.NewFileStore(storeDir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	appender, err := audit.OpenAppender(filepath.Join(repoRoot, "runtime", "logs", "audit.jsonl"))
	if err != nil {
		t.Fatalf("OpenAppender: %v", err)
	}

	e := &Engine{
		RepoRoot:           repoRoot,
		PolicyID:           "policy-1",
		Profile:            ProfileStrict,
		SummaryBudgetChars: 1200,
		Store:              store,
		Appender:           appender,
	}
	return e, func() { appender.Close() }
}

func sampleRequest() ModelRequest {
	ctx, _ := json.Marshal(map[string]interface{}{"gsama": map[string]interface{}{"k": "v"}})
	return ModelRequest{
		SchemaVersion: 1,
		RunID:         "run-1",
		TickID:        0,
		Role:          RolePlanner,
		Provider:      "openai",
		Model:         "gpt-4",
		Prompt:        Prompt{Messages: []PromptMessage{{Role: "user", Content: "hello"}}},
		Context:       ctx,
	}
}

func TestEngine_RedactAndAudit_AppendsTwoEvents(t *testing.T) {
	e, closeFn := newTestEngine(t)
	defer closeFn()

	req := sampleRequest()
	result, err := e.RedactAndAudit(context.Background(), req, PolicyInput{DecisionID: "d-1", RiskClass: audit.RiskNetwork, RequiresApproval: true})
	if err != nil {
		t.Fatalf("RedactAndAudit: %v", err)
	}
	if result.CallID == "" {
		t.Fatalf("expected non-empty call id")
	}
	if result.Manifest.PreHash == "" || result.Manifest.PostHash == "" || result.Manifest.TransformLogHash == "" {
		t.Fatalf("expected manifest hashes to be populated: %+v", result.Manifest)
	}

	logPath := filepath.Join(e.RepoRoot, "runtime", "logs", "audit.jsonl")
	head, err := audit.Verify(logPath)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if head == audit.GenesisHash {
		t.Fatalf("expected non-genesis head after two appends")
	}
	logBytes, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if lines := strings.Count(string(logBytes), "\n"); lines != 2 {
		t.Fatalf("expected exactly 2 audit records, got %d", lines)
	}
}

func TestEngine_RedactAndAudit_PostHashStableAcrossCalls(t *testing.T) {
	e1, close1 := newTestEngine(t)
	defer close1()
	e2, close2 := newTestEngine(t)
	defer close2()

	req := sampleRequest()
	r1, err := e1.RedactAndAudit(context.Background(), req, PolicyInput{DecisionID: "d-1"})
	if err != nil {
		t.Fatalf("RedactAndAudit 1: %v", err)
	}
	r2, err := e2.RedactAndAudit(context.Background(), req, PolicyInput{DecisionID: "d-1"})
	if err != nil {
		t.Fatalf("RedactAndAudit 2: %v", err)
	}
	if r1.Manifest.PostHash != r2.Manifest.PostHash {
		t.Fatalf("expected post_hash to be independent of the minted call_id, got %s vs %s", r1.Manifest.PostHash, r2.Manifest.PostHash)
	}
	if r1.CallID == r2.CallID {
		t.Fatalf("expected distinct minted call ids")
	}
}

func TestEngine_RedactAndAudit_SchemaGateRejectsInvalidRole(t *testing.T) {
	e, closeFn := newTestEngine(t)
	defer closeFn()

	gate, err := schema.NewGate()
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	e.Schema = gate

	req := sampleRequest()
	req.Role = AgentRole("overlord")

	_, err = e.RedactAndAudit(context.Background(), req, PolicyInput{DecisionID: "d-1"})
	if err == nil {
		t.Fatalf("expected the schema gate to reject an unknown role")
	}

	logPath := filepath.Join(e.RepoRoot, "runtime", "logs", "audit.jsonl")
	head, verifyErr := audit.Verify(logPath)
	if verifyErr != nil {
		t.Fatalf("Verify: %v", verifyErr)
	}
	if head != audit.GenesisHash {
		t.Fatalf("expected no audit events appended after a schema gate rejection, head = %s", head)
	}
}

func TestEngine_RedactAndAudit_NoEventsAppendedOnRedactionFailure(t *testing.T) {
	e, closeFn := newTestEngine(t)
	defer closeFn()

	req := sampleRequest()
	req.Context = json.RawMessage(`{not valid json`)

	_, err := e.RedactAndAudit(context.Background(), req, PolicyInput{DecisionID: "d-1"})
	if err == nil {
		t.Fatalf("expected RedactAndAudit to fail on malformed context")
	}

	logPath := filepath.Join(e.RepoRoot, "runtime", "logs", "audit.jsonl")
	head, verifyErr := audit.Verify(logPath)
	if verifyErr != nil {
		t.Fatalf("Verify: %v", verifyErr)
	}
	if head != audit.GenesisHash {
		t.Fatalf("expected no audit events appended after a mid-pipeline failure, head = %s", head)
	}
}

func TestEngine_RedactAndAudit_RecordsTelemetrySpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)

	provider, err := telemetry.New()
	if err != nil {
		t.Fatalf("telemetry.New: %v", err)
	}

	e, closeFn := newTestEngine(t)
	defer closeFn()
	e.Telemetry = provider

	if _, err := e.RedactAndAudit(context.Background(), sampleRequest(), PolicyInput{DecisionID: "d-1"}); err != nil {
		t.Fatalf("RedactAndAudit: %v", err)
	}

	ended := recorder.Ended()
	if len(ended) != 1 || ended[0].Name() != "redact_and_audit" {
		t.Fatalf("expected exactly one ended span named redact_and_audit, got %+v", ended)
	}
}

func TestEngine_WritesExpectedArtifactFiles(t *testing.T) {
	e, closeFn := newTestEngine(t)
	defer closeFn()

	req := sampleRequest()
	result, err := e.RedactAndAudit(context.Background(), req, PolicyInput{DecisionID: "d-1"})
	if err != nil {
		t.Fatalf("RedactAndAudit: %v", err)
	}

	dir := artifacts.ModelsDir(e.RepoRoot, req.RunID, result.CallID)
	for _, name := range []string{"request_pre.json", "request_post.json", "transform_log.json", "call_manifest.json"} {
		path := filepath.Join(dir, name)
		if _, err := readFileMustExist(path); err != nil {
			t.Fatalf("expected artifact %s to exist: %v", name, err)
		}
	}
}
