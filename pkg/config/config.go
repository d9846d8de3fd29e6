// Package config loads the boundary's runtime configuration from
// environment variables, each with a sane local-development default.
package config

import (
	"os"
	"strconv"

	"github.com/Mindburn-Labs/boundary/pkg/artifacts"
	"github.com/Mindburn-Labs/boundary/pkg/redaction"
)

// Config holds everything the boundary's CLI and library entrypoints need
// to construct an Engine, Dispatcher, and Store.
type Config struct {
	RepoRoot string

	ArtifactStorageType artifacts.StorageType

	ProviderBaseURL string
	ProviderAPIKey  string

	RemoteMemoryBaseURL string
	RemoteMemoryAPIKey  string
	RemoteMemoryEnabled bool

	RedactionPolicyID           string
	RedactionProfile            redaction.Profile
	RedactionSummaryBudgetChars int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	WriterLeaseEnabled bool

	SQLiteDSN          string
	QueryCacheEnabled  bool
}

// Load reads Config from the environment, defaulting every field the same
// way the boundary would behave with no configuration at all: local
// filesystem artifacts, no remote memory mirror, strict redaction, no
// cross-process lease, no query cache.
func Load() *Config {
	return &Config{
		RepoRoot: envOr("REPO_ROOT", "."),

		ArtifactStorageType: artifacts.StorageType(envOr("ARTIFACT_STORAGE_TYPE", string(artifacts.StorageTypeFile))),

		ProviderBaseURL: envOr("PROVIDER_BASE_URL", "https://api.openai.com"),
		ProviderAPIKey:  os.Getenv("PROVIDER_API_KEY"),

		RemoteMemoryBaseURL: os.Getenv("REMOTE_MEMORY_BASE_URL"),
		RemoteMemoryAPIKey:  os.Getenv("REMOTE_MEMORY_API_KEY"),
		RemoteMemoryEnabled: os.Getenv("REMOTE_MEMORY_BASE_URL") != "",

		RedactionPolicyID:           envOr("REDACTION_POLICY_ID", "default"),
		RedactionProfile:            redaction.Profile(envOr("REDACTION_PROFILE", string(redaction.ProfileStrict))),
		RedactionSummaryBudgetChars: envIntOr("REDACTION_SUMMARY_BUDGET_CHARS", 4000),

		RedisAddr:          envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            envIntOr("REDIS_DB", 0),
		WriterLeaseEnabled: os.Getenv("WRITER_LEASE_ENABLED") == "true",

		SQLiteDSN:         envOr("EPISODES_SQLITE_DSN", ""),
		QueryCacheEnabled: os.Getenv("EPISODES_SQLITE_DSN") != "",
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
