// Package canonicalize produces RFC 8785-style canonical JSON encodings and
// the content digests derived from them. Every hash-chained or
// content-addressed structure in this repository is built on top of this
// package: two values that are structurally equal always canonicalize to
// identical bytes, regardless of struct field order or map iteration order.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// DigestPrefix is prepended to every hex-encoded SHA-256 digest produced by
// this package, matching the "sha256:<64 lowercase hex>" contract shared by
// every digest field in this repository.
const DigestPrefix = "sha256:"

// CanonicalBytes re-marshals v as compact UTF-8 JSON with object keys sorted
// recursively and no HTML escaping. v is first passed through the standard
// library's encoder so that struct tags (json:"...", omitempty) are
// respected, then decoded into a generic tree and re-encoded canonically.
func CanonicalBytes(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonicalize: decode: %w", err)
	}

	var buf bytes.Buffer
	if err := marshalRecursive(&buf, generic); err != nil {
		return nil, fmt.Errorf("canonicalize: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// DigestOf returns the sha256:-prefixed digest of v's canonical encoding.
func DigestOf(v interface{}) (string, error) {
	b, err := CanonicalBytes(v)
	if err != nil {
		return "", err
	}
	return DigestOfBytes(b), nil
}

// DigestOfBytes returns the sha256:-prefixed digest of raw bytes, with no
// canonicalization applied. Used when the canonical bytes have already been
// produced (e.g. hashing an artifact's file contents).
func DigestOfBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return DigestPrefix + hex.EncodeToString(sum[:])
}

// marshalRecursive writes v to buf using the minimal JSON grammar required
// by RFC 8785: sorted object keys, no extraneous whitespace, no HTML
// escaping of '<', '>', '&'.
func marshalRecursive(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		buf.WriteString(string(val))
		return nil
	case string:
		return encodeCompact(buf, val)
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalRecursive(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCompact(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := marshalRecursive(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("canonicalize: unsupported type %T", v)
	}
}

// encodeCompact writes a JSON string literal for s without HTML escaping,
// trimming the trailing newline the standard encoder appends.
func encodeCompact(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}
