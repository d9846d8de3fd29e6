package artifacts

import (
	"context"
	"strings"
	"testing"
)

func TestNewS3MirrorFromEnv_RequiresBucket(t *testing.T) {
	t.Setenv("ARTIFACT_S3_BUCKET", "")

	_, err := NewS3MirrorFromEnv(context.Background())
	if err == nil {
		t.Fatalf("expected an error when ARTIFACT_S3_BUCKET is unset")
	}
}

func TestStripPrefix_RejectsMissingSha256Prefix(t *testing.T) {
	if _, err := stripPrefix("not-a-digest"); err == nil {
		t.Fatalf("expected an error for a digest without the sha256: prefix")
	}
	want := strings.Repeat("ab", 32)
	hex, err := stripPrefix("sha256:" + want)
	if err != nil {
		t.Fatalf("stripPrefix: %v", err)
	}
	if hex != want {
		t.Fatalf("expected hex digest %s, got %s", want, hex)
	}
}
