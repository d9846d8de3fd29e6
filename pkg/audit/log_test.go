package audit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mindburn-Labs/boundary/pkg/boundarylock"
)

func TestGenesisHash_Format(t *testing.T) {
	if !strings.HasPrefix(GenesisHash, "sha256:") {
		t.Fatalf("expected sha256: prefix, got %s", GenesisHash)
	}
	hexPart := strings.TrimPrefix(GenesisHash, "sha256:")
	if len(hexPart) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(hexPart))
	}
	if strings.Trim(hexPart, "0") != "" {
		t.Fatalf("expected all-zero genesis hash, got %s", hexPart)
	}
}

func TestVerify_EmptyLogReturnsGenesis(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	head, err := Verify(path)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if head != GenesisHash {
		t.Fatalf("expected genesis head for missing log, got %s", head)
	}
}

func samplePrepared(runID string, tick int) ModelCallPrepared {
	return ModelCallPrepared{
		SchemaVersion: 1,
		RunID:         runID,
		TickID:        tick,
		TS:            0,
		Actor:         Actor{Subsystem: "boundary"},
		ModelCall:     ModelCallMeta{CallID: "call-1", Role: RolePlanner, Provider: "openai", Model: "gpt-4"},
		Integrity:     IntegrityPre{RequestPreHash: "sha256:" + strings.Repeat("a", 64), RequestPreSizeBytes: 10},
		Policy:        PolicyMeta{DecisionID: "d-1", RiskClass: RiskNetwork, RequiresApproval: true},
	}
}

func TestAppender_AppendAndVerify(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	a, err := OpenAppender(path)
	if err != nil {
		t.Fatalf("OpenAppender: %v", err)
	}

	rec1, err := a.Append(samplePrepared("run-1", 0))
	if err != nil {
		t.Fatalf("Append 1: %v", err)
	}
	if rec1.PrevHash != GenesisHash {
		t.Fatalf("expected first record's prev_hash to be genesis, got %s", rec1.PrevHash)
	}

	rec2, err := a.Append(samplePrepared("run-1", 1))
	if err != nil {
		t.Fatalf("Append 2: %v", err)
	}
	if rec2.PrevHash != rec1.Hash {
		t.Fatalf("expected chained prev_hash, got %s want %s", rec2.PrevHash, rec1.Hash)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	head, err := Verify(path)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if head != rec2.Hash {
		t.Fatalf("expected verify head %s, got %s", rec2.Hash, head)
	}
}

func TestVerify_DetectsTamperedEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	a, err := OpenAppender(path)
	if err != nil {
		t.Fatalf("OpenAppender: %v", err)
	}
	if _, err := a.Append(samplePrepared("run-1", 0)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	tampered := strings.Replace(string(raw), `"run-1"`, `"run-evil"`, 1)
	if tampered == string(raw) {
		t.Fatalf("tamper substitution had no effect on fixture")
	}
	if err := os.WriteFile(path, []byte(tampered), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Verify(path); err == nil {
		t.Fatalf("expected Verify to detect tampered event payload")
	}
}

func TestVerify_DetectsBrokenChain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	a, err := OpenAppender(path)
	if err != nil {
		t.Fatalf("OpenAppender: %v", err)
	}
	if _, err := a.Append(samplePrepared("run-1", 0)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := a.Append(samplePrepared("run-1", 1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	reordered := lines[1] + "\n" + lines[0] + "\n"
	if err := os.WriteFile(path, []byte(reordered), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := Verify(path); err == nil {
		t.Fatalf("expected Verify to detect broken chain order")
	}
}

func TestAppender_FailedAppendDoesNotAdvanceLastHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	a, err := OpenAppender(path)
	if err != nil {
		t.Fatalf("OpenAppender: %v", err)
	}
	before := a.LastHash()
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Writing to a closed file must fail, and must not move lastHash.
	if _, err := a.Append(samplePrepared("run-1", 0)); err == nil {
		t.Fatalf("expected append to a closed file to fail")
	}
	if a.LastHash() != before {
		t.Fatalf("expected lastHash unchanged after failed append")
	}
}

func TestOpenAppender_ResumesFromExistingLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	a1, err := OpenAppender(path)
	if err != nil {
		t.Fatalf("OpenAppender 1: %v", err)
	}
	rec1, err := a1.Append(samplePrepared("run-1", 0))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := a1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	a2, err := OpenAppender(path)
	if err != nil {
		t.Fatalf("OpenAppender 2: %v", err)
	}
	if a2.LastHash() != rec1.Hash {
		t.Fatalf("expected resumed appender to pick up last hash %s, got %s", rec1.Hash, a2.LastHash())
	}
}

// TestOpenAppenderWithLease_Integration requires a running Redis; it is
// skipped when one is not reachable, the same pattern used for
// boundarylock's own Redis integration test.
func TestOpenAppenderWithLease_Integration(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}
	store := boundarylock.NewStoreFromClient(client)

	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	repoRoot := dir

	a1, err := OpenAppenderWithLease(ctx, path, repoRoot, store, 2*time.Second)
	if err != nil {
		t.Fatalf("OpenAppenderWithLease: %v", err)
	}

	if _, err := OpenAppenderWithLease(ctx, path, repoRoot, store, 2*time.Second); err == nil {
		t.Fatalf("expected a second OpenAppenderWithLease against the same repo root to fail while the first lease is held")
	}

	if err := a1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	a2, err := OpenAppenderWithLease(ctx, path, repoRoot, store, 2*time.Second)
	if err != nil {
		t.Fatalf("OpenAppenderWithLease after release: %v", err)
	}
	_ = a2.Close()
}
