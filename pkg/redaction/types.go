// Package redaction implements the deterministic redaction engine: the
// sole path by which an Internal Model Request (which may carry arbitrary,
// potentially sensitive, structured context) becomes a Sanitized Model
// Request (which never carries a "context" key at all, only hash
// references bucketed by origin).
package redaction

import "encoding/json"

// AgentRole mirrors audit.AgentRole with the same wire values, so the
// request types here stay separate from the audit event schema; the engine
// converts it with audit.AgentRole(...) when building audit events.
type AgentRole string

const (
	RolePlanner    AgentRole = "planner"
	RoleExecutor   AgentRole = "executor"
	RoleCritic     AgentRole = "critic"
	RoleSummarizer AgentRole = "summarizer"
)

// PromptMessage is a single chat-style message in a prompt.
type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is the model-call payload shared by both internal and sanitized
// requests. Large message content is replaced in place during redaction;
// every other field passes through unchanged.
type Prompt struct {
	Format          string          `json:"format,omitempty"`
	Messages        []PromptMessage `json:"messages"`
	MaxOutputTokens *int            `json:"max_output_tokens,omitempty"`
	Temperature     *float64        `json:"temperature,omitempty"`
	TopP            *float64        `json:"top_p,omitempty"`
	Stop            []string        `json:"stop,omitempty"`
}

// ModelRequest is the Internal Model Request: the orchestrator's
// unsanitized view of a model call, which may embed arbitrary structured
// context.
type ModelRequest struct {
	SchemaVersion int             `json:"schema_version"`
	RunID         string          `json:"run_id"`
	TickID        int             `json:"tick_id"`
	Role          AgentRole       `json:"role"`
	Provider      string          `json:"provider"`
	Model         string          `json:"model"`
	Prompt        Prompt          `json:"prompt"`
	Context       json.RawMessage `json:"context,omitempty"`
}

// HashRef points at redacted content by the digest of its canonical form.
type HashRef struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func newHashRef(digest string) HashRef {
	return HashRef{Type: "hash_ref", Value: digest}
}

// ContextRefs buckets every hash reference produced from the internal
// request's context by where it originated. A sanitized request carries
// only this, never the raw context itself.
type ContextRefs struct {
	GSAMA          []HashRef `json:"gsama"`
	WorkingMemory  []HashRef `json:"working_memory"`
	OpenMemory     []HashRef `json:"openmemory"`
	Artifacts      []HashRef `json:"artifacts"`
	Files          []HashRef `json:"files"`
}

// TransformKind enumerates the ways a piece of the internal request can be
// rewritten on its way into the sanitized request.
type TransformKind string

const (
	TransformDrop           TransformKind = "drop"
	TransformReplaceWithHash TransformKind = "replace_with_hash"
	TransformReplaceWithRef TransformKind = "replace_with_ref"
	TransformSummarize      TransformKind = "summarize"
)

// TransformReplacement is the value a transform replaced its target with,
// when it replaced it with something (as opposed to dropping it outright).
type TransformReplacement struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Transform is one entry of the transform log: a record of exactly what
// happened to one piece of the internal request.
type Transform struct {
	Kind        TransformKind          `json:"kind"`
	Path        string                 `json:"path"`
	Reason      string                 `json:"reason"`
	Replacement *TransformReplacement  `json:"replacement,omitempty"`
}

// RedactionBlock summarizes the redaction pass embedded in the sanitized
// request.
type RedactionBlock struct {
	PolicyID           string      `json:"policy_id"`
	Profile            string      `json:"profile"`
	SummaryBudgetChars int         `json:"summary_budget_chars"`
	TransformLog       []Transform `json:"transform_log"`
}

// IntegrityBlock carries the pre/post hashes and the deterministic nonce
// for one redacted call.
type IntegrityBlock struct {
	PreHash  string `json:"pre_hash"`
	PostHash string `json:"post_hash"`
	Nonce    string `json:"nonce"`
}

// SanitizedModelRequest is the only form of a model request ever allowed
// onto the wire to a provider. It never contains a "context" key.
type SanitizedModelRequest struct {
	SchemaVersion int            `json:"schema_version"`
	RunID         string         `json:"run_id"`
	TickID        int            `json:"tick_id"`
	Role          AgentRole      `json:"role"`
	Provider      string         `json:"provider"`
	Model         string         `json:"model"`
	Prompt        Prompt         `json:"prompt"`
	ContextRefs   ContextRefs    `json:"context_refs"`
	Redaction     RedactionBlock `json:"redaction"`
	Integrity     IntegrityBlock `json:"integrity"`
}

// CallManifest is the small artifact tying a call_id to the three hashes
// that make the call's provenance checkable without re-reading every
// artifact.
type CallManifest struct {
	SchemaVersion    int    `json:"schema_version"`
	CallID           string `json:"call_id"`
	PreHash          string `json:"pre_hash"`
	PostHash         string `json:"post_hash"`
	TransformLogHash string `json:"transform_log_hash"`
}

// Profile selects which redaction policy RedactRequest applies.
type Profile string

const (
	// ProfileStrict allows no allowlist: every context key is bucket-hashed.
	ProfileStrict Profile = "strict"
	// ProfileExplicitAllowlist additionally records (without embedding) the
	// values at a fixed set of dotted paths.
	ProfileExplicitAllowlist Profile = "explicit_allowlist"
)

// Allowlist is the set of dotted context paths an explicit_allowlist
// profile is permitted to record references for.
type Allowlist struct {
	ContextPaths []string
}
