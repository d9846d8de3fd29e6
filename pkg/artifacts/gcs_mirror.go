package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
)

// GCSMirror is a best-effort, non-authoritative mirror of artifact bytes
// into a Google Cloud Storage bucket. Like S3Mirror, it is never consulted
// for reads by the core pipeline.
type GCSMirror struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSMirrorFromEnv builds a GCSMirror from ARTIFACT_GCS_BUCKET
// (required) and ARTIFACT_GCS_PREFIX (optional key prefix).
func NewGCSMirrorFromEnv(ctx context.Context) (*GCSMirror, error) {
	bucket := os.Getenv("ARTIFACT_GCS_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("artifacts: ARTIFACT_GCS_BUCKET not set")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("artifacts: new gcs client: %w", err)
	}
	return &GCSMirror{
		client: client,
		bucket: bucket,
		prefix: os.Getenv("ARTIFACT_GCS_PREFIX"),
	}, nil
}

// Mirror uploads data under the digest's hex value as the GCS object name.
func (m *GCSMirror) Mirror(digest string, data []byte) error {
	hexDigest, err := stripPrefix(digest)
	if err != nil {
		return err
	}
	name := hexDigest + ".blob"
	if m.prefix != "" {
		name = m.prefix + "/" + name
	}

	ctx := context.Background()
	w := m.client.Bucket(m.bucket).Object(name).NewWriter(ctx)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("artifacts: gcs mirror write %s: %w", digest, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("artifacts: gcs mirror close %s: %w", digest, err)
	}
	return nil
}
