package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/boundary/pkg/artifacts"
	"github.com/Mindburn-Labs/boundary/pkg/audit"
	"github.com/Mindburn-Labs/boundary/pkg/boundarylock"
	"github.com/Mindburn-Labs/boundary/pkg/config"
	"github.com/Mindburn-Labs/boundary/pkg/episodes"
	"github.com/Mindburn-Labs/boundary/pkg/schema"
	"github.com/Mindburn-Labs/boundary/pkg/telemetry"
)

// writerLeaseTTL bounds how long a crashed writer can hold the
// cross-process audit log lease before another process may take over.
const writerLeaseTTL = 30 * time.Second

// buildArtifactStore constructs the authoritative local FileStore rooted at
// repoRoot/runtime/artifacts/blobs ($DATA_DIR/artifacts when DATA_DIR is
// set; see artifacts.NewStoreFromEnv), wrapped in a best-effort remote mirror
// when cfg selects one. Reads always come from the local store regardless
// of which mirror, if any, is configured.
func buildArtifactStore(ctx context.Context, cfg *config.Config, repoRoot string) (artifacts.Store, error) {
	local, err := artifacts.NewStoreFromEnv(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}

	switch cfg.ArtifactStorageType {
	case artifacts.StorageTypeS3:
		mirror, err := artifacts.NewS3MirrorFromEnv(ctx)
		if err != nil {
			return nil, fmt.Errorf("build s3 artifact mirror: %w", err)
		}
		return artifacts.NewMirroredStore(local, mirror), nil
	case artifacts.StorageTypeGCS:
		mirror, err := artifacts.NewGCSMirrorFromEnv(ctx)
		if err != nil {
			return nil, fmt.Errorf("build gcs artifact mirror: %w", err)
		}
		return artifacts.NewMirroredStore(local, mirror), nil
	default:
		return local, nil
	}
}

// openAuditAppender opens the audit log at path, acquiring a cross-process
// writer lease first when cfg.WriterLeaseEnabled, so that two cooperating
// boundaryctl processes can never interleave writes to the same log.
func openAuditAppender(ctx context.Context, cfg *config.Config, path, repoRoot string) (*audit.Appender, error) {
	if !cfg.WriterLeaseEnabled {
		return audit.OpenAppender(path)
	}
	store := boundarylock.NewStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	return audit.OpenAppenderWithLease(ctx, path, repoRoot, store, writerLeaseTTL)
}

// buildSchemaGate compiles the internal/sanitized request JSON Schemas.
// Schema validation is always-on defense-in-depth: it is pure, in-memory,
// and carries no external dependency a deployment might want to disable.
func buildSchemaGate() (*schema.Gate, error) {
	return schema.NewGate()
}

// buildTelemetry builds a Provider from whatever global OTel providers the
// process has registered, or safe no-ops if it has none.
func buildTelemetry() (*telemetry.Provider, error) {
	return telemetry.New()
}

// buildEpisodeQueryCache opens the SQLite-backed query cache accelerator
// when cfg.QueryCacheEnabled, or returns nil when it is not: Store.Query
// already treats a nil cache as "always fall back to the canonical scan".
func buildEpisodeQueryCache(cfg *config.Config) (*episodes.QueryCache, error) {
	if !cfg.QueryCacheEnabled {
		return nil, nil
	}
	db, err := episodes.OpenSQLiteDB(cfg.SQLiteDSN)
	if err != nil {
		return nil, fmt.Errorf("open episodes sqlite dsn %q: %w", cfg.SQLiteDSN, err)
	}
	return episodes.NewQueryCache(db)
}
