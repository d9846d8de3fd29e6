package artifacts

import (
	"context"
	"os"
	"path/filepath"
)

// StorageType names an artifact storage backend: the local filesystem
// alone, or the local filesystem mirrored to S3 or GCS. NewStoreFromEnv
// does not read it; it always builds the local FileStore.
type StorageType string

const (
	StorageTypeFile StorageType = "fs"
	StorageTypeS3   StorageType = "s3"
	StorageTypeGCS  StorageType = "gcs"
)

// NewStoreFromEnv builds the local authoritative FileStore rooted at
// $DATA_DIR/artifacts when DATA_DIR is set, or
// defaultRoot/runtime/artifacts/blobs otherwise, so a caller that knows its
// repo root still gets per-repo isolation without having to set DATA_DIR
// itself. The returned Store is
// always the FileStore: callers that want mirroring wrap it explicitly
// with NewMirroredStore, since the local store must remain the one the
// core pipeline reads back from.
func NewStoreFromEnv(defaultRoot string) (*FileStore, error) {
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		return NewFileStore(filepath.Join(dataDir, "artifacts"))
	}
	return NewFileStore(filepath.Join(defaultRoot, "runtime", "artifacts", "blobs"))
}

// Mirror is a best-effort, non-authoritative remote replica of artifact
// bytes. A Mirror failure is never fatal to the boundary: it is recorded
// (by the caller) and otherwise ignored, matching this repository's
// "no authoritative replication to remote stores" invariant.
type Mirror interface {
	Mirror(digest string, data []byte) error
}

// MirroredStore wraps a FileStore (authoritative) with an optional Mirror
// (best-effort). Reads are always served from the local store.
type MirroredStore struct {
	*FileStore
	mirror Mirror
}

// NewMirroredStore pairs local with a best-effort remote mirror. mirror may
// be nil, in which case MirroredStore behaves exactly like local.
func NewMirroredStore(local *FileStore, mirror Mirror) *MirroredStore {
	return &MirroredStore{FileStore: local, mirror: mirror}
}

// Put stores data locally and best-effort mirrors it, so a MirroredStore
// used through the Store interface still mirrors. The mirror error is
// dropped; use PutMirrored to observe it.
func (m *MirroredStore) Put(ctx context.Context, data []byte) (string, int, error) {
	digest, size, _, err := m.PutMirrored(ctx, data)
	return digest, size, err
}

// PutMirrored stores data locally (authoritative) then best-effort mirrors
// it remotely, returning the local digest regardless of mirror outcome.
// The mirror error, if any, is returned separately so callers can record it
// in an audit event without treating it as a pipeline failure.
func (m *MirroredStore) PutMirrored(ctx context.Context, data []byte) (digest string, size int, mirrorErr error, err error) {
	digest, size, err = m.FileStore.Put(ctx, data)
	if err != nil {
		return "", 0, nil, err
	}
	if m.mirror != nil {
		mirrorErr = m.mirror.Mirror(digest, data)
	}
	return digest, size, mirrorErr, nil
}
