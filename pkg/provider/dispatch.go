package provider

import (
	"context"
	"fmt"

	"github.com/Mindburn-Labs/boundary/pkg/artifacts"
	"github.com/Mindburn-Labs/boundary/pkg/audit"
	"github.com/Mindburn-Labs/boundary/pkg/canonicalize"
	"github.com/Mindburn-Labs/boundary/pkg/redaction"
	"github.com/Mindburn-Labs/boundary/pkg/telemetry"
)

// Dispatcher wires a Provider to the artifact store and audit log: it
// writes response_raw.json/reply_normalized.json and appends
// model_call_dispatched / model_call_completed, regardless of outcome.
type Dispatcher struct {
	RepoRoot string
	Store    artifacts.Store
	Appender *audit.Appender
	Backend  Provider

	// Telemetry, if set, wraps Run in a span and RED counters. Nil
	// disables tracing.
	Telemetry *telemetry.Provider
}

// Run dispatches req (whose call_id and provider base URL are supplied by
// the caller, since neither lives on SanitizedModelRequest) and returns the
// Outcome, having already appended both bookend audit events.
func (d *Dispatcher) Run(ctx context.Context, callID, baseURL string, req redaction.SanitizedModelRequest, postHash string) (outcome Outcome, resultErr error) {
	if d.Telemetry != nil {
		var end func(error)
		ctx, end = d.Telemetry.Track(ctx, "dispatch", telemetry.Attrs{RunID: req.RunID, CallID: callID, Provider: req.Provider})
		defer func() { end(resultErr) }()
	}

	fingerprint := EndpointFingerprint(req.Provider, baseURL, req.Model)

	if _, err := d.Appender.Append(audit.ModelCallDispatched{
		SchemaVersion: req.SchemaVersion,
		RunID:         req.RunID,
		TickID:        req.TickID,
		ModelCall: audit.ModelCallMeta{
			CallID:   callID,
			Role:     audit.AgentRole(req.Role),
			Provider: req.Provider,
			Model:    req.Model,
		},
		Provider:            req.Provider,
		Model:               req.Model,
		EndpointFingerprint: fingerprint,
		RequestPostHash:     postHash,
	}); err != nil {
		return Outcome{}, fmt.Errorf("provider: append model_call_dispatched: %w", err)
	}

	outcome = d.Backend.Dispatch(ctx, req)

	dir := artifacts.ModelsDir(d.RepoRoot, req.RunID, callID)
	result := audit.ModelCallResult{
		Status:    outcome.Status,
		LatencyMS: outcome.Latency.Milliseconds(),
	}
	var artifactRefs audit.CompletionArtifacts

	if outcome.Response != nil {
		responseDigest, responseSize, err := artifacts.WriteJSONArtifact(ctx, d.Store, dir, "response_raw.json", outcome.Response.RawJSON)
		if err != nil {
			return outcome, fmt.Errorf("provider: write response_raw.json: %w", err)
		}
		normalizedDigest, _, err := artifacts.WriteJSONArtifact(ctx, d.Store, dir, "reply_normalized.json", outcome.Response.Normalized)
		if err != nil {
			return outcome, fmt.Errorf("provider: write reply_normalized.json: %w", err)
		}

		result.ResponseHash = responseDigest
		result.ResponseSizeBytes = responseSize
		if outcome.Response.Normalized.ProviderRequestID != nil {
			result.ProviderRequestIDHash = canonicalize.DigestOfBytes([]byte(*outcome.Response.Normalized.ProviderRequestID))
		}
		artifactRefs = audit.CompletionArtifacts{
			ResponseArtifact:        audit.NewArtifactRef(responseDigest),
			NormalizedReplyArtifact: audit.NewArtifactRef(normalizedDigest),
		}
	} else {
		errMsg := "unknown error"
		if outcome.Err != nil {
			errMsg = outcome.Err.Error()
		}
		responseDigest, responseSize, err := artifacts.WriteJSONArtifact(ctx, d.Store, dir, "response_raw.json", map[string]string{"error": errMsg})
		if err != nil {
			return outcome, fmt.Errorf("provider: write response_raw.json: %w", err)
		}
		errorReason := "error"
		placeholder := Reply{Content: "", FinishReason: &errorReason}
		normalizedDigest, _, err := artifacts.WriteJSONArtifact(ctx, d.Store, dir, "reply_normalized.json", placeholder)
		if err != nil {
			return outcome, fmt.Errorf("provider: write reply_normalized.json: %w", err)
		}

		result.ResponseHash = responseDigest
		result.ResponseSizeBytes = responseSize
		artifactRefs = audit.CompletionArtifacts{
			ResponseArtifact:        audit.NewArtifactRef(responseDigest),
			NormalizedReplyArtifact: audit.NewArtifactRef(normalizedDigest),
		}
	}

	if _, err := d.Appender.Append(audit.ModelCallCompleted{
		SchemaVersion: req.SchemaVersion,
		RunID:         req.RunID,
		TickID:        req.TickID,
		ModelCall: audit.ModelCallMeta{
			CallID:   callID,
			Role:     audit.AgentRole(req.Role),
			Provider: req.Provider,
			Model:    req.Model,
		},
		Result:    result,
		Artifacts: artifactRefs,
	}); err != nil {
		return outcome, fmt.Errorf("provider: append model_call_completed: %w", err)
	}

	return outcome, nil
}
