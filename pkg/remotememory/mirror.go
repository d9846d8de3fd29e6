package remotememory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/boundary/pkg/artifacts"
	"github.com/Mindburn-Labs/boundary/pkg/audit"
	"github.com/Mindburn-Labs/boundary/pkg/canonicalize"
	"github.com/Mindburn-Labs/boundary/pkg/episodes"
)

// Mirrorer wraps a Client with the repo-root/appender plumbing needed to
// emit audit events and write query-response artifacts. It never makes the
// local episode store's durability depend on any of these calls succeeding.
type Mirrorer struct {
	RepoRoot string
	Target   string
	Client   *Client
	Appender *audit.Appender
}

// Mirror sends ep to the remote service as a best-effort operation. It
// always emits EpisodeMirrorAttempted first, then exactly one of
// EpisodeMirrored or EpisodeMirrorFailed. A failed remote call returns nil:
// the local episode store is authoritative and already durable before
// Mirror is ever called, so remote-memory failures never propagate to the
// caller. Only a failure to append the audit event itself is returned.
func (m *Mirrorer) Mirror(ctx context.Context, ep episodes.Episode) error {
	if _, err := m.Appender.Append(audit.EpisodeMirrorAttempted{
		SchemaVersion: 1,
		RunID:         ep.RunID,
		TickID:        ep.TickID,
		TS:            ep.CreatedTS,
		EpisodeID:     ep.EpisodeID,
		Target:        m.Target,
	}); err != nil {
		return fmt.Errorf("remotememory: append episode_mirror_attempted: %w", err)
	}

	content := ep.Title + "\n\n" + ep.Summary
	metadata := map[string]interface{}{
		"episode_id": ep.EpisodeID,
		"episode_hash": ep.Hash,
		"run_id":     ep.RunID,
		"tick_id":    ep.TickID,
		"thread_id":  ep.ThreadID,
		"tags":       ep.Tags,
		"created_ts": ep.CreatedTS,
	}

	resp, err := m.Client.AddMemory(ctx, AddMemoryRequest{Content: content, Tags: ep.Tags, Metadata: metadata})
	if err != nil {
		if _, appendErr := m.Appender.Append(audit.EpisodeMirrorFailed{
			SchemaVersion: 1,
			RunID:         ep.RunID,
			TickID:        ep.TickID,
			TS:            ep.CreatedTS,
			EpisodeID:     ep.EpisodeID,
			Target:        m.Target,
			Error:         err.Error(),
		}); appendErr != nil {
			return fmt.Errorf("remotememory: append episode_mirror_failed: %w", appendErr)
		}
		return nil
	}

	if _, err := m.Appender.Append(audit.EpisodeMirrored{
		SchemaVersion: 1,
		RunID:         ep.RunID,
		TickID:        ep.TickID,
		TS:            ep.CreatedTS,
		EpisodeID:     ep.EpisodeID,
		Target:        m.Target,
		RemoteID:      resp.ID,
	}); err != nil {
		return fmt.Errorf("remotememory: append episode_mirrored: %w", err)
	}
	return nil
}

// QueryResult is what callers are allowed to see: id, score, and a hash of
// the matched content. The content itself never reaches this boundary.
type QueryResult struct {
	ID          string
	Score       float64
	ContentHash string
}

// QueryRemote performs a remote memory query, writes the raw response as a
// hash-addressed artifact, and emits EpisodeQueryPerformed on success or
// EpisodeQueryFailed on failure. The query string itself is never written
// to the audit log, only its digest and byte length. A failed remote call
// returns a nil error and zero results: the local episode store remains
// authoritative, so remote-memory failures never propagate to the caller.
func (m *Mirrorer) QueryRemote(ctx context.Context, store artifacts.Store, runID string, tickID int, query string, k int, userID string, minScore *float64) ([]QueryResult, error) {
	queryID := uuid.NewString()
	queryHash := canonicalize.DigestOfBytes([]byte(query))
	queryLen := len(query)

	raw, hits, err := m.Client.RawQuery(ctx, QueryRequest{Query: query, K: k, UserID: userID, MinScore: minScore})
	if err != nil {
		if _, appendErr := m.Appender.Append(audit.EpisodeQueryFailed{
			SchemaVersion: 1,
			RunID:         runID,
			TickID:        tickID,
			Target:        m.Target,
			QueryHash:     queryHash,
			QueryLen:      queryLen,
			K:             k,
			UserID:        userID,
			Error:         err.Error(),
		}); appendErr != nil {
			return nil, fmt.Errorf("remotememory: append episode_query_failed: %w", appendErr)
		}
		return nil, nil
	}

	dir := artifacts.OpenMemoryQueryDir(m.RepoRoot, queryID)
	responseDigest, _, err := artifacts.WriteRawArtifact(ctx, store, dir, "response.json", raw)
	if err != nil {
		return nil, fmt.Errorf("remotememory: write response artifact: %w", err)
	}

	results := make([]QueryResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, QueryResult{
			ID:          h.ID,
			Score:       h.Score,
			ContentHash: canonicalize.DigestOfBytes([]byte(h.Content)),
		})
	}

	if _, err := m.Appender.Append(audit.EpisodeQueryPerformed{
		SchemaVersion:    1,
		RunID:            runID,
		TickID:           tickID,
		Target:           m.Target,
		QueryHash:        queryHash,
		QueryLen:         queryLen,
		K:                k,
		UserID:           userID,
		ResultCount:      len(results),
		ResponseHash:     responseDigest,
		ResponseArtifact: audit.NewArtifactRef(responseDigest),
	}); err != nil {
		return nil, fmt.Errorf("remotememory: append episode_query_performed: %w", err)
	}

	return results, nil
}
