package redaction

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Mindburn-Labs/boundary/pkg/canonicalize"
)

// bucketFor maps a top-level context key to its ContextRefs bucket, per
// the fixed routing table: gsama and working_memory and openmemory pass
// through under their own name; tool_results/tool_result and diff/diffs
// route to artifacts; files/file route to files; anything else also
// routes to artifacts.
func bucketFor(key string) string {
	switch key {
	case "gsama":
		return "gsama"
	case "working_memory":
		return "working_memory"
	case "openmemory":
		return "openmemory"
	case "tool_results", "tool_result", "diff", "diffs":
		return "artifacts"
	case "files", "file":
		return "files"
	default:
		return "artifacts"
	}
}

func appendBucket(refs *ContextRefs, bucket string, ref HashRef) {
	switch bucket {
	case "gsama":
		refs.GSAMA = append(refs.GSAMA, ref)
	case "working_memory":
		refs.WorkingMemory = append(refs.WorkingMemory, ref)
	case "openmemory":
		refs.OpenMemory = append(refs.OpenMemory, ref)
	case "files":
		refs.Files = append(refs.Files, ref)
	default:
		refs.Artifacts = append(refs.Artifacts, ref)
	}
}

// getBySimplePath resolves a dotted path (e.g. "a.b.c") by descending
// through nested JSON objects only; it does not support array indices.
// Returns an error if any segment is missing or not an object.
func getBySimplePath(root interface{}, path string) (interface{}, error) {
	cur := root
	for _, seg := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("redaction: allowlist path %q: not an object at segment %q", path, seg)
		}
		val, ok := obj[seg]
		if !ok {
			return nil, fmt.Errorf("redaction: allowlist path %q: missing segment %q", path, seg)
		}
		cur = val
	}
	return cur, nil
}

// decodeContext decodes raw (possibly empty) JSON context bytes into a
// generic value. Absent/empty context decodes to nil.
func decodeContext(raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v interface{}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("redaction: decode context: %w", err)
	}
	return v, nil
}

// RedactRequest applies the deterministic transform procedure to req and
// returns the sanitized request (with a zero-valued Integrity block — the
// caller fills that in once it knows the pre/post hashes and nonce) and the
// ordered transform log.
func RedactRequest(req ModelRequest, profile Profile, allow *Allowlist, policyID string, summaryBudgetChars int) (SanitizedModelRequest, []Transform, error) {
	ctxVal, err := decodeContext(req.Context)
	if err != nil {
		return SanitizedModelRequest{}, nil, err
	}

	var transforms []Transform
	var refs ContextRefs
	refs.GSAMA = []HashRef{}
	refs.WorkingMemory = []HashRef{}
	refs.OpenMemory = []HashRef{}
	refs.Artifacts = []HashRef{}
	refs.Files = []HashRef{}

	// Step 1: whole-context hash transform, unconditional. If context is
	// absent, ctxVal is nil and this is the only context transform emitted.
	wholeDigest, err := canonicalize.DigestOf(ctxVal)
	if err != nil {
		return SanitizedModelRequest{}, nil, fmt.Errorf("redaction: digest whole context: %w", err)
	}
	transforms = append(transforms, Transform{
		Kind:        TransformReplaceWithHash,
		Path:        "context",
		Reason:      "context_omitted",
		Replacement: &TransformReplacement{Type: "hash_ref", Value: wholeDigest},
	})

	// Step 2: per-key bucket hashing, only if context is a JSON object.
	if obj, ok := ctxVal.(map[string]interface{}); ok {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			digest, err := canonicalize.DigestOf(obj[key])
			if err != nil {
				return SanitizedModelRequest{}, nil, fmt.Errorf("redaction: digest context.%s: %w", key, err)
			}
			bucket := bucketFor(key)
			appendBucket(&refs, bucket, newHashRef(digest))
			transforms = append(transforms, Transform{
				Kind:        TransformReplaceWithHash,
				Path:        "context." + key,
				Reason:      "context_bucket_hashed",
				Replacement: &TransformReplacement{Type: "hash_ref", Value: digest},
			})
		}

		// Step 3: explicit allowlist handling.
		if profile == ProfileExplicitAllowlist && allow != nil && len(allow.ContextPaths) > 0 {
			paths := append([]string(nil), allow.ContextPaths...)
			sort.Strings(paths)

			selected := 0
			for _, path := range paths {
				val, err := getBySimplePath(ctxVal, path)
				if err != nil {
					return SanitizedModelRequest{}, nil, err
				}
				digest, err := canonicalize.DigestOf(val)
				if err != nil {
					return SanitizedModelRequest{}, nil, fmt.Errorf("redaction: digest allowlist path %s: %w", path, err)
				}
				transforms = append(transforms, Transform{
					Kind:        TransformReplaceWithRef,
					Path:        "context." + path,
					Reason:      "allowlist_path_referenced",
					Replacement: &TransformReplacement{Type: "hash_ref", Value: digest},
				})
				selected++
			}
			if selected > 0 {
				transforms = append(transforms, Transform{
					Kind:   TransformDrop,
					Path:   "context.allowlist_copied_values",
					Reason: "allowlist_copy_not_embedded_refs_only",
				})
			}
		}
	}

	// Step 4: large-message hashing in the prompt, measured in Unicode
	// code points (see DESIGN.md open question 1).
	sanitizedPrompt := req.Prompt
	sanitizedPrompt.Messages = make([]PromptMessage, len(req.Prompt.Messages))
	copy(sanitizedPrompt.Messages, req.Prompt.Messages)

	for i, msg := range sanitizedPrompt.Messages {
		if utf8.RuneCountInString(msg.Content) <= summaryBudgetChars {
			continue
		}
		digest := canonicalize.DigestOfBytes([]byte(msg.Content))
		sanitizedPrompt.Messages[i].Content = fmt.Sprintf("<redacted:large_message %s>", digest)
		transforms = append(transforms, Transform{
			Kind:        TransformReplaceWithHash,
			Path:        fmt.Sprintf("prompt.messages[%d].content", i),
			Reason:      "message_too_large_hashed",
			Replacement: &TransformReplacement{Type: "hash_ref", Value: digest},
		})
	}

	sanitized := SanitizedModelRequest{
		SchemaVersion: req.SchemaVersion,
		RunID:         req.RunID,
		TickID:        req.TickID,
		Role:          req.Role,
		Provider:      req.Provider,
		Model:         req.Model,
		Prompt:        sanitizedPrompt,
		ContextRefs:   refs,
		Redaction: RedactionBlock{
			PolicyID:           policyID,
			Profile:            string(profile),
			SummaryBudgetChars: summaryBudgetChars,
			TransformLog:       transforms,
		},
	}
	return sanitized, transforms, nil
}

// Nonce computes the deterministic nonce for one call, a digest over a
// fixed-format string identifying the call's coordinates. The role is
// rendered in its lowercase wire form (see DESIGN.md open question 2).
func Nonce(runID string, tickID int, role AgentRole, provider, model, policyID string) string {
	s := fmt.Sprintf("run:%s|tick:%d|role:%s|provider:%s|model:%s|policy:%s",
		runID, tickID, string(role), provider, model, policyID)
	return canonicalize.DigestOfBytes([]byte(s))
}
