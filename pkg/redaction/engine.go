package redaction

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/boundary/pkg/artifacts"
	"github.com/Mindburn-Labs/boundary/pkg/audit"
	"github.com/Mindburn-Labs/boundary/pkg/canonicalize"
	"github.com/Mindburn-Labs/boundary/pkg/schema"
	"github.com/Mindburn-Labs/boundary/pkg/telemetry"
)

// PolicyInput is the opaque upstream policy decision this engine consumes
// but never derives: the decision id, risk class, and approval flag are
// recorded into the audit trail exactly as handed in.
type PolicyInput struct {
	DecisionID       string
	RiskClass        audit.RiskClass
	RequiresApproval bool
}

// Engine is the redaction engine bound to one policy id, profile, and
// summary budget, writing artifacts under repoRoot and appending audit
// events via appender.
type Engine struct {
	RepoRoot           string
	PolicyID           string
	Profile            Profile
	SummaryBudgetChars int
	Allowlist          *Allowlist

	Store    artifacts.Store
	Appender *audit.Appender

	// Schema, if set, validates the internal request before any artifact
	// is written and the sanitized request before it is persisted. A
	// violation is a canonicalization-class failure: no audit events are
	// appended. Nil skips validation entirely.
	Schema *schema.Gate

	// Telemetry, if set, wraps the operation in a span and RED counters.
	// Nil disables tracing.
	Telemetry *telemetry.Provider
}

// Result is everything RedactAndAudit produced for one call.
type Result struct {
	CallID    string
	Sanitized SanitizedModelRequest
	Manifest  CallManifest
}

// RedactAndAudit runs the normative 7-step operation: mint a call id, hash
// and store the internal request, redact it, hash and store the sanitized
// request and its supporting artifacts, patch in the integrity block, and
// only then append the two bookend audit events back-to-back. No audit
// event is appended if any step before both artifacts are written fails.
func (e *Engine) RedactAndAudit(ctx context.Context, req ModelRequest, policy PolicyInput) (result Result, resultErr error) {
	if e.Telemetry != nil {
		var end func(error)
		ctx, end = e.Telemetry.Track(ctx, "redact_and_audit", telemetry.Attrs{RunID: req.RunID, Provider: req.Provider})
		defer func() { end(resultErr) }()
	}

	if e.Schema != nil {
		if err := e.Schema.ValidateValue(schema.KindInternalRequest, req); err != nil {
			return Result{}, fmt.Errorf("redaction: schema gate rejected internal request: %w", err)
		}
	}

	callID := uuid.NewString()
	dir := artifacts.ModelsDir(e.RepoRoot, req.RunID, callID)

	preHash, err := canonicalize.DigestOf(req)
	if err != nil {
		return Result{}, fmt.Errorf("redaction: digest internal request: %w", err)
	}
	preDigest, preSize, err := artifacts.WriteJSONArtifact(ctx, e.Store, dir, "request_pre.json", req)
	if err != nil {
		return Result{}, fmt.Errorf("redaction: write request_pre.json: %w", err)
	}
	if preDigest != preHash {
		return Result{}, fmt.Errorf("redaction: internal consistency: artifact digest %s != computed pre_hash %s", preDigest, preHash)
	}

	sanitized, transforms, err := RedactRequest(req, e.Profile, e.Allowlist, e.PolicyID, e.SummaryBudgetChars)
	if err != nil {
		return Result{}, fmt.Errorf("redaction: redact request: %w", err)
	}

	// post_hash is computed over the sanitized request before its
	// Integrity block is populated: the digest cannot include the field
	// that will record the digest itself.
	postHash, err := canonicalize.DigestOf(sanitized)
	if err != nil {
		return Result{}, fmt.Errorf("redaction: digest sanitized request: %w", err)
	}

	transformLogHash, err := canonicalize.DigestOf(transforms)
	if err != nil {
		return Result{}, fmt.Errorf("redaction: digest transform log: %w", err)
	}

	nonce := Nonce(req.RunID, req.TickID, AgentRole(req.Role), req.Provider, req.Model, e.PolicyID)
	sanitized.Integrity = IntegrityBlock{PreHash: preHash, PostHash: postHash, Nonce: nonce}

	if e.Schema != nil {
		if err := e.Schema.ValidateValue(schema.KindSanitizedRequest, sanitized); err != nil {
			return Result{}, fmt.Errorf("redaction: schema gate rejected sanitized request: %w", err)
		}
	}

	postDigest, postSize, err := artifacts.WriteJSONArtifact(ctx, e.Store, dir, "request_post.json", sanitized)
	if err != nil {
		return Result{}, fmt.Errorf("redaction: write request_post.json: %w", err)
	}

	transformDigest, _, err := artifacts.WriteJSONArtifact(ctx, e.Store, dir, "transform_log.json", transforms)
	if err != nil {
		return Result{}, fmt.Errorf("redaction: write transform_log.json: %w", err)
	}
	if transformDigest != transformLogHash {
		return Result{}, fmt.Errorf("redaction: internal consistency: transform log artifact digest mismatch")
	}

	manifest := CallManifest{
		SchemaVersion:    req.SchemaVersion,
		CallID:           callID,
		PreHash:          preHash,
		PostHash:         postHash,
		TransformLogHash: transformLogHash,
	}
	if _, _, err := artifacts.WriteJSONArtifact(ctx, e.Store, dir, "call_manifest.json", manifest); err != nil {
		return Result{}, fmt.Errorf("redaction: write call_manifest.json: %w", err)
	}

	if _, err := e.Appender.Append(audit.ModelCallPrepared{
		SchemaVersion: req.SchemaVersion,
		RunID:         req.RunID,
		TickID:        req.TickID,
		Actor:         audit.Actor{Subsystem: "redaction_engine"},
		ModelCall: audit.ModelCallMeta{
			CallID:   callID,
			Role:     audit.AgentRole(req.Role),
			Provider: req.Provider,
			Model:    req.Model,
		},
		Integrity: audit.IntegrityPre{RequestPreHash: preHash, RequestPreSizeBytes: preSize},
		Policy: audit.PolicyMeta{
			DecisionID:       policy.DecisionID,
			RiskClass:        policy.RiskClass,
			RequiresApproval: policy.RequiresApproval,
		},
	}); err != nil {
		return Result{}, fmt.Errorf("redaction: append model_call_prepared: %w", err)
	}

	if _, err := e.Appender.Append(audit.ModelRequestRedacted{
		SchemaVersion: req.SchemaVersion,
		RunID:         req.RunID,
		TickID:        req.TickID,
		ModelCall: audit.ModelCallMeta{
			CallID:   callID,
			Role:     audit.AgentRole(req.Role),
			Provider: req.Provider,
			Model:    req.Model,
		},
		Redaction: audit.RedactionMeta{
			Profile:            string(e.Profile),
			TransformCount:     len(transforms),
			TransformLogHash:   transformLogHash,
			SummaryBudgetChars: e.SummaryBudgetChars,
		},
		Integrity: audit.IntegrityRedacted{
			RequestPreHash:       preHash,
			RequestPostHash:      postHash,
			RequestPostSizeBytes: postSize,
		},
		Artifacts: audit.RedactionArtifacts{
			PreRequestArtifact:   audit.NewArtifactRef(preHash),
			PostRequestArtifact:  audit.NewArtifactRef(postDigest),
			TransformLogArtifact: audit.NewArtifactRef(transformDigest),
		},
	}); err != nil {
		return Result{}, fmt.Errorf("redaction: append model_request_redacted: %w", err)
	}

	return Result{CallID: callID, Sanitized: sanitized, Manifest: manifest}, nil
}
