package remotememory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/Mindburn-Labs/boundary/pkg/artifacts"
	"github.com/Mindburn-Labs/boundary/pkg/audit"
	"github.com/Mindburn-Labs/boundary/pkg/episodes"
)

func newTestMirrorer(t *testing.T, baseURL string) (*Mirrorer, *artifacts.FileStore) {
	t.Helper()
	repoRoot := t.TempDir()
	store, err := artifacts.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	appender, err := audit.OpenAppender(filepath.Join(repoRoot, "runtime", "logs", "audit.jsonl"))
	if err != nil {
		t.Fatalf("OpenAppender: %v", err)
	}
	t.Cleanup(func() { appender.Close() })

	return &Mirrorer{
		RepoRoot: repoRoot,
		Target:   "openmemory",
		Client:   NewClient(baseURL, ""),
		Appender: appender,
	}, store
}

func sampleEpisode(t *testing.T) episodes.Episode {
	t.Helper()
	ep, err := episodes.NewEpisode("run-1", 0, "thread-a", []string{"tag1"}, "title", "summary", nil, 1700000000)
	if err != nil {
		t.Fatalf("NewEpisode: %v", err)
	}
	return ep
}

func TestMirrorer_Mirror_Success_EmitsAttemptedThenMirrored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"remote-1"}`))
	}))
	defer srv.Close()

	m, _ := newTestMirrorer(t, srv.URL)
	if err := m.Mirror(context.Background(), sampleEpisode(t)); err != nil {
		t.Fatalf("Mirror: %v", err)
	}

	head, err := audit.Verify(filepath.Join(m.RepoRoot, "runtime", "logs", "audit.jsonl"))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if head == audit.GenesisHash {
		t.Fatalf("expected mirror events to advance the audit log")
	}
}

func TestMirrorer_Mirror_FailureReturnsNilAndEmitsMirrorFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m, _ := newTestMirrorer(t, srv.URL)
	if err := m.Mirror(context.Background(), sampleEpisode(t)); err != nil {
		t.Fatalf("Mirror: remote failures must not propagate to the caller, got %v", err)
	}

	head, err := audit.Verify(filepath.Join(m.RepoRoot, "runtime", "logs", "audit.jsonl"))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if head == audit.GenesisHash {
		t.Fatalf("expected attempted+failed events to advance the audit log")
	}
}

func TestMirrorer_QueryRemote_WritesArtifactAndNeverLogsQueryText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"a","content":"secret content","score":0.8}]`))
	}))
	defer srv.Close()

	m, store := newTestMirrorer(t, srv.URL)
	results, err := m.QueryRemote(context.Background(), store, "run-1", 0, "find the secret", 5, "", nil)
	if err != nil {
		t.Fatalf("QueryRemote: %v", err)
	}
	if len(results) != 1 || results[0].ID != "a" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if results[0].ContentHash == "" {
		t.Fatalf("expected a content hash to be computed")
	}

	logPath := filepath.Join(m.RepoRoot, "runtime", "logs", "audit.jsonl")
	raw, err := readFile(logPath)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if containsString(raw, "find the secret") || containsString(raw, "secret content") {
		t.Fatalf("audit log must never contain raw query text or matched content")
	}
}

func TestMirrorer_QueryRemote_FailureEmitsQueryFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	m, store := newTestMirrorer(t, srv.URL)
	results, err := m.QueryRemote(context.Background(), store, "run-1", 0, "q", 1, "", nil)
	if err != nil {
		t.Fatalf("QueryRemote: remote failures must not propagate to the caller, got %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected zero results on a failed remote query, got %+v", results)
	}

	head, verifyErr := audit.Verify(filepath.Join(m.RepoRoot, "runtime", "logs", "audit.jsonl"))
	if verifyErr != nil {
		t.Fatalf("Verify: %v", verifyErr)
	}
	if head == audit.GenesisHash {
		t.Fatalf("expected the query_failed event to advance the audit log")
	}
}
