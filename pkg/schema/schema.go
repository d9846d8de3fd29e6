// Package schema compiles and runs JSON Schemas over the Internal Model
// Request and Sanitized Model Request shapes. It is a defense-in-depth gate
// around the redaction engine, not a semantic content scanner: a request
// that fails its schema never reaches the transform procedure, and no
// audit events are appended for a rejected request.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Kind identifies which compiled schema a Validate call should run.
type Kind string

const (
	// KindInternalRequest validates an Internal Model Request prior to
	// redaction.
	KindInternalRequest Kind = "internal_model_request"
	// KindSanitizedRequest validates a Sanitized Model Request produced by
	// the redaction engine before it is allowed onto the wire.
	KindSanitizedRequest Kind = "sanitized_model_request"
)

// Gate holds compiled schemas for every Kind it was built with.
type Gate struct {
	mu       sync.RWMutex
	compiled map[Kind]*jsonschema.Schema
}

// NewGate compiles the built-in schemas for internal and sanitized model
// requests and returns a ready-to-use Gate.
func NewGate() (*Gate, error) {
	g := &Gate{compiled: make(map[Kind]*jsonschema.Schema, 2)}
	if err := g.add(KindInternalRequest, internalRequestSchema); err != nil {
		return nil, err
	}
	if err := g.add(KindSanitizedRequest, sanitizedRequestSchema); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gate) add(kind Kind, schemaJSON string) error {
	url := "mem://" + string(kind) + ".json"
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, strings.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("schema: add resource %s: %w", kind, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return fmt.Errorf("schema: compile %s: %w", kind, err)
	}
	g.mu.Lock()
	g.compiled[kind] = compiled
	g.mu.Unlock()
	return nil
}

// ValidateValue marshals v to JSON and validates it against the compiled
// schema identified by kind. Callers holding a Go struct (ModelRequest,
// SanitizedModelRequest) use this instead of decoding JSON by hand.
func (g *Gate) ValidateValue(kind Kind, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("schema: marshal %s: %w", kind, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("schema: decode %s: %w", kind, err)
	}
	return g.Validate(kind, doc)
}

// Validate runs the compiled schema identified by kind against a generic
// decoded JSON value (map[string]interface{}, []interface{}, etc, as
// produced by encoding/json unmarshaling into interface{}).
func (g *Gate) Validate(kind Kind, doc interface{}) error {
	g.mu.RLock()
	compiled, ok := g.compiled[kind]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("schema: unknown kind %q", kind)
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("schema: %s: %w", kind, err)
	}
	return nil
}

const internalRequestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["schema_version", "run_id", "tick_id", "role", "provider", "model", "prompt"],
  "properties": {
    "schema_version": {"type": "integer", "minimum": 1},
    "run_id": {"type": "string", "minLength": 1},
    "tick_id": {"type": "integer", "minimum": 0},
    "role": {"enum": ["planner", "executor", "critic", "summarizer"]},
    "provider": {"type": "string", "minLength": 1},
    "model": {"type": "string", "minLength": 1},
    "prompt": {
      "type": "object",
      "required": ["messages"],
      "properties": {
        "format": {"type": "string"},
        "messages": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["role", "content"],
            "properties": {
              "role": {"type": "string", "minLength": 1},
              "content": {"type": "string"}
            }
          }
        },
        "max_output_tokens": {"type": ["integer", "null"]},
        "temperature": {"type": ["number", "null"]},
        "top_p": {"type": ["number", "null"]},
        "stop": {"type": ["array", "null"], "items": {"type": "string"}}
      }
    },
    "context": {}
  }
}`

const sanitizedRequestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["schema_version", "run_id", "tick_id", "role", "provider", "model", "prompt", "context_refs", "redaction", "integrity"],
  "properties": {
    "schema_version": {"type": "integer", "minimum": 1},
    "run_id": {"type": "string", "minLength": 1},
    "tick_id": {"type": "integer", "minimum": 0},
    "role": {"enum": ["planner", "executor", "critic", "summarizer"]},
    "provider": {"type": "string", "minLength": 1},
    "model": {"type": "string", "minLength": 1},
    "prompt": {"type": "object"},
    "context_refs": {
      "type": "object",
      "required": ["gsama", "working_memory", "openmemory", "artifacts", "files"],
      "properties": {
        "gsama": {"type": "array"},
        "working_memory": {"type": "array"},
        "openmemory": {"type": "array"},
        "artifacts": {"type": "array"},
        "files": {"type": "array"}
      },
      "not": {"required": ["context"]}
    },
    "redaction": {
      "type": "object",
      "required": ["policy_id", "profile", "summary_budget_chars", "transform_log"]
    },
    "integrity": {
      "type": "object",
      "required": ["pre_hash", "post_hash", "nonce"]
    }
  },
  "not": {"required": ["context"]}
}`
