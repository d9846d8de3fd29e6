package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Mirror is a best-effort, non-authoritative mirror of artifact bytes
// into an S3 bucket, keyed by the same content digest used locally. It is
// never consulted for reads by the core pipeline: the FileStore is always
// authoritative, per this repository's "no authoritative replication to
// remote stores" invariant.
type S3Mirror struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3MirrorFromEnv builds an S3Mirror from ARTIFACT_S3_BUCKET (required),
// ARTIFACT_S3_REGION (falls back to AWS_REGION, default "us-east-1"), and
// ARTIFACT_S3_PREFIX (optional key prefix).
func NewS3MirrorFromEnv(ctx context.Context) (*S3Mirror, error) {
	bucket := os.Getenv("ARTIFACT_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("artifacts: ARTIFACT_S3_BUCKET not set")
	}
	region := os.Getenv("ARTIFACT_S3_REGION")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("artifacts: load aws config: %w", err)
	}

	return &S3Mirror{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: os.Getenv("ARTIFACT_S3_PREFIX"),
	}, nil
}

// Mirror uploads data under the digest's hex value (minus the sha256:
// prefix) as the S3 object key, so the remote key scheme matches the local
// blob filename scheme.
func (m *S3Mirror) Mirror(digest string, data []byte) error {
	hexDigest, err := stripPrefix(digest)
	if err != nil {
		return err
	}
	key := hexDigest + ".blob"
	if m.prefix != "" {
		key = m.prefix + "/" + key
	}
	_, err = m.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("artifacts: s3 mirror put %s: %w", digest, err)
	}
	return nil
}
