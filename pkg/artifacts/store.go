// Package artifacts implements the content-addressed artifact store: every
// JSON document the boundary writes out of band (pre/post requests,
// transform logs, call manifests, provider responses, episode query
// responses) is stored under runtime/artifacts/... keyed by the sha256:
// digest of its canonical bytes.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Mindburn-Labs/boundary/pkg/canonicalize"
)

// Store is the content-addressed blob interface. Implementations need not
// be authoritative: only the filesystem-backed Store configured as the
// primary store for a run is ever read back from by the core pipeline.
type Store interface {
	Put(ctx context.Context, data []byte) (digest string, size int, err error)
	Get(ctx context.Context, digest string) ([]byte, error)
	Exists(ctx context.Context, digest string) (bool, error)
}

// FileStore is the local, authoritative, filesystem-backed artifact store.
// Blobs are written to baseDir/<hex>.blob via a temp-file-then-rename so
// that a reader never observes a partially written file.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates (if necessary) baseDir and returns a FileStore
// rooted there.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: create base dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Put writes data to its content-addressed path if not already present and
// returns the sha256:-prefixed digest and the byte length written.
func (s *FileStore) Put(_ context.Context, data []byte) (string, int, error) {
	sum := sha256.Sum256(data)
	hexDigest := hex.EncodeToString(sum[:])
	digest := canonicalize.DigestPrefix + hexDigest

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.blobPath(hexDigest)
	if _, err := os.Stat(path); err == nil {
		return digest, len(data), nil
	}

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", 0, fmt.Errorf("artifacts: mkdir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", 0, fmt.Errorf("artifacts: write temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", 0, fmt.Errorf("artifacts: rename: %w", err)
	}
	return digest, len(data), nil
}

// Get returns the raw bytes stored under digest.
func (s *FileStore) Get(_ context.Context, digest string) ([]byte, error) {
	hexDigest, err := stripPrefix(digest)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := os.ReadFile(s.blobPath(hexDigest))
	if err != nil {
		return nil, fmt.Errorf("artifacts: read %s: %w", digest, err)
	}
	return b, nil
}

// Exists reports whether a blob for digest is present.
func (s *FileStore) Exists(_ context.Context, digest string) (bool, error) {
	hexDigest, err := stripPrefix(digest)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err = os.Stat(s.blobPath(hexDigest))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *FileStore) blobPath(hexDigest string) string {
	return filepath.Join(s.baseDir, hexDigest+".blob")
}

func stripPrefix(digest string) (string, error) {
	if !strings.HasPrefix(digest, canonicalize.DigestPrefix) {
		return "", fmt.Errorf("artifacts: malformed digest %q: missing %q prefix", digest, canonicalize.DigestPrefix)
	}
	hexPart := strings.TrimPrefix(digest, canonicalize.DigestPrefix)
	if len(hexPart) != 64 {
		return "", fmt.Errorf("artifacts: malformed digest %q: expected 64 hex chars, got %d", digest, len(hexPart))
	}
	if _, err := hex.DecodeString(hexPart); err != nil {
		return "", fmt.Errorf("artifacts: malformed digest %q: %w", digest, err)
	}
	return hexPart, nil
}

// ModelsDir returns the path runtime/artifacts/models/<runID>/<callID>
// under repoRoot, per the external filesystem layout.
func ModelsDir(repoRoot, runID, callID string) string {
	return filepath.Join(repoRoot, "runtime", "artifacts", "models", runID, callID)
}

// OpenMemoryQueryDir returns runtime/artifacts/memory/openmemory_queries/<id>
// under repoRoot.
func OpenMemoryQueryDir(repoRoot, queryID string) string {
	return filepath.Join(repoRoot, "runtime", "artifacts", "memory", "openmemory_queries", queryID)
}

// WriteJSONArtifact canonicalizes v, writes it to dir/name via store, and
// returns the artifact's digest and byte size. The artifact is also written
// directly to dir/name as a plain file, since the external interface
// mandates human-inspectable files at fixed relative paths in addition to
// content addressing.
func WriteJSONArtifact(ctx context.Context, store Store, dir, name string, v interface{}) (digest string, size int, err error) {
	b, err := canonicalize.CanonicalBytes(v)
	if err != nil {
		return "", 0, fmt.Errorf("artifacts: canonicalize %s: %w", name, err)
	}
	digest, size, err = store.Put(ctx, b)
	if err != nil {
		return "", 0, fmt.Errorf("artifacts: put %s: %w", name, err)
	}
	if err := WriteFixedPath(dir, name, b); err != nil {
		return "", 0, err
	}
	return digest, size, nil
}

// WriteRawArtifact stores already-serialized bytes both content-addressed
// (via store) and at the fixed inspectable path dir/name, without
// re-canonicalizing them. Use this for bytes that did not originate from
// this process's own canonicalization (e.g. a third-party HTTP response
// body) and so must be persisted byte-for-byte as received.
func WriteRawArtifact(ctx context.Context, store Store, dir, name string, raw []byte) (digest string, size int, err error) {
	digest, size, err = store.Put(ctx, raw)
	if err != nil {
		return "", 0, fmt.Errorf("artifacts: put %s: %w", name, err)
	}
	if err := WriteFixedPath(dir, name, raw); err != nil {
		return "", 0, err
	}
	return digest, size, nil
}

// WriteFixedPath writes b to dir/name via temp-file-then-rename, creating
// dir if necessary.
func WriteFixedPath(dir, name string, b []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("artifacts: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("artifacts: write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("artifacts: rename %s: %w", name, err)
	}
	return nil
}
