package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mindburn-Labs/boundary/pkg/artifacts"
	"github.com/Mindburn-Labs/boundary/pkg/config"
	"github.com/Mindburn-Labs/boundary/pkg/redaction"
)

// TestLoad_Defaults verifies Load() boots safely with no environment set:
// local filesystem artifacts, strict redaction, no remote mirror, no
// cross-process lease, no query cache.
func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"REPO_ROOT", "ARTIFACT_STORAGE_TYPE", "PROVIDER_BASE_URL", "PROVIDER_API_KEY",
		"REMOTE_MEMORY_BASE_URL", "REMOTE_MEMORY_API_KEY",
		"REDACTION_POLICY_ID", "REDACTION_PROFILE", "REDACTION_SUMMARY_BUDGET_CHARS",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "WRITER_LEASE_ENABLED",
		"EPISODES_SQLITE_DSN",
	} {
		t.Setenv(key, "")
	}

	cfg := config.Load()

	assert.Equal(t, artifacts.StorageTypeFile, cfg.ArtifactStorageType)
	assert.Equal(t, redaction.ProfileStrict, cfg.RedactionProfile)
	assert.Equal(t, "default", cfg.RedactionPolicyID)
	assert.Equal(t, 4000, cfg.RedactionSummaryBudgetChars)
	assert.False(t, cfg.RemoteMemoryEnabled)
	assert.False(t, cfg.WriterLeaseEnabled)
	assert.False(t, cfg.QueryCacheEnabled)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

// TestLoad_Overrides verifies environment variables override every default.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("REPO_ROOT", "/data/boundary")
	t.Setenv("ARTIFACT_STORAGE_TYPE", "s3")
	t.Setenv("PROVIDER_BASE_URL", "https://internal-llm.example.com")
	t.Setenv("REMOTE_MEMORY_BASE_URL", "https://memory.example.com")
	t.Setenv("REDACTION_PROFILE", "explicit_allowlist")
	t.Setenv("REDACTION_SUMMARY_BUDGET_CHARS", "2000")
	t.Setenv("WRITER_LEASE_ENABLED", "true")
	t.Setenv("EPISODES_SQLITE_DSN", "file:episodes.db")

	cfg := config.Load()

	assert.Equal(t, "/data/boundary", cfg.RepoRoot)
	assert.Equal(t, artifacts.StorageTypeS3, cfg.ArtifactStorageType)
	assert.Equal(t, "https://internal-llm.example.com", cfg.ProviderBaseURL)
	assert.True(t, cfg.RemoteMemoryEnabled)
	assert.Equal(t, redaction.ProfileExplicitAllowlist, cfg.RedactionProfile)
	assert.Equal(t, 2000, cfg.RedactionSummaryBudgetChars)
	assert.True(t, cfg.WriterLeaseEnabled)
	assert.True(t, cfg.QueryCacheEnabled)
}

// TestLoad_InvalidIntFallsBackToDefault verifies a malformed integer env
// var does not panic and instead keeps the default.
func TestLoad_InvalidIntFallsBackToDefault(t *testing.T) {
	t.Setenv("REDACTION_SUMMARY_BUDGET_CHARS", "not-a-number")
	cfg := config.Load()
	assert.Equal(t, 4000, cfg.RedactionSummaryBudgetChars)
}
