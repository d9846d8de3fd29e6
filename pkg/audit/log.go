// Package audit implements the hash-chained, append-only audit log: the
// tamper-evident record of everything the boundary did to a request on its
// way out, and everything that happened to an episode on its way into
// durable memory.
package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Mindburn-Labs/boundary/pkg/boundarylock"
	"github.com/Mindburn-Labs/boundary/pkg/canonicalize"
)

// GenesisHash is the prev_hash of the first record ever appended to a log:
// "sha256:" followed by 64 zero hex digits.
var GenesisHash = canonicalize.DigestPrefix + strings.Repeat("0", 64)

// Record is a single line of the audit log: the event it wraps, the hash
// of the previous record (GenesisHash for the first record), and this
// record's own hash.
type Record struct {
	PrevHash string          `json:"prev_hash"`
	Hash     string          `json:"hash"`
	Event    json.RawMessage `json:"event"`
}

// hashPayload is the value actually hashed to produce a record's Hash: the
// record's Event together with its PrevHash, excluding the Hash field
// itself (a record cannot include its own hash in the thing being hashed).
type hashPayload struct {
	PrevHash string          `json:"prev_hash"`
	Event    json.RawMessage `json:"event"`
}

// eventEnvelope stamps event_type onto an event payload before it is
// serialized, since AuditEvent is a Rust-style tagged union keyed by that
// field.
type eventEnvelope struct {
	EventType EventType `json:"event_type"`
	Rest      Event     `json:"-"`
}

// MarshalJSON flattens EventType alongside Rest's own fields into a single
// JSON object, the same tagged-union shape #[serde(tag = "event_type")]
// produces.
func (e eventEnvelope) MarshalJSON() ([]byte, error) {
	inner, err := json.Marshal(e.Rest)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(inner, &m); err != nil {
		return nil, err
	}
	typeBytes, err := json.Marshal(e.EventType)
	if err != nil {
		return nil, err
	}
	m["event_type"] = typeBytes

	b, err := canonicalize.CanonicalBytes(m)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// EncodeEvent serializes an Event into its tagged-union JSON form.
func EncodeEvent(ev Event) (json.RawMessage, error) {
	b, err := json.Marshal(eventEnvelope{EventType: ev.eventType(), Rest: ev})
	if err != nil {
		return nil, fmt.Errorf("audit: encode event: %w", err)
	}
	return json.RawMessage(b), nil
}

// computeRecordHash returns the digest of the canonical {prev_hash, event}
// payload, per this repository's audit invariant: the hash covers the
// event itself, not a reduced projection of it.
func computeRecordHash(prevHash string, event json.RawMessage) (string, error) {
	return canonicalize.DigestOf(hashPayload{PrevHash: prevHash, Event: event})
}

// Appender is a single-writer handle on one audit log file. It caches the
// last appended record's hash so each Append only needs one hash
// computation, not a full chain replay.
type Appender struct {
	mu       sync.Mutex
	file     *os.File
	lastHash string
	lease    *boundarylock.Lease
}

// OpenAppender opens (creating if necessary) the log at path and primes
// lastHash by reading the final record's hash, or GenesisHash if the file
// is empty or does not yet exist.
func OpenAppender(path string) (*Appender, error) {
	last, err := lastHashOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	return &Appender{file: f, lastHash: last}, nil
}

// OpenAppenderWithLastHash opens path for appending without reading it
// back, trusting the caller's lastHash. Used by callers that already
// verified the log and cached its head.
func OpenAppenderWithLastHash(path, lastHash string) (*Appender, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	return &Appender{file: f, lastHash: lastHash}, nil
}

// OpenAppenderWithLease behaves like OpenAppender, but first acquires a
// cross-process writer lease from store keyed on repoRoot, asserting the
// single-writer-per-log invariant across cooperating processes rather than
// just within one. Failing to win the lease is returned as an error, never
// silently ignored; the lease is released when the returned Appender is
// Closed.
func OpenAppenderWithLease(ctx context.Context, path, repoRoot string, store *boundarylock.Store, ttl time.Duration) (*Appender, error) {
	lease, ok, err := store.Acquire(ctx, repoRoot, ttl)
	if err != nil {
		return nil, fmt.Errorf("audit: acquire writer lease: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("audit: writer lease for %s is already held by another process", repoRoot)
	}

	a, err := OpenAppender(path)
	if err != nil {
		_ = lease.Release(ctx)
		return nil, err
	}
	a.lease = lease
	return a, nil
}

func lastHashOf(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return GenesisHash, nil
		}
		return "", fmt.Errorf("audit: open %s: %w", path, err)
	}
	defer f.Close()

	last := GenesisHash
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return "", fmt.Errorf("audit: parse %s: %w", path, err)
		}
		last = rec.Hash
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("audit: scan %s: %w", path, err)
	}
	return last, nil
}

// Append computes the next record's hash from the cached last hash and the
// given event, writes it as one canonical JSON line, flushes, and only
// then advances the cached last hash. A write failure leaves lastHash
// untouched so a retried Append reuses the same prev_hash.
func (a *Appender) Append(ev Event) (Record, error) {
	eventJSON, err := EncodeEvent(ev)
	if err != nil {
		return Record{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	prevHash := a.lastHash
	hash, err := computeRecordHash(prevHash, eventJSON)
	if err != nil {
		return Record{}, fmt.Errorf("audit: compute hash: %w", err)
	}
	rec := Record{PrevHash: prevHash, Hash: hash, Event: eventJSON}

	line, err := canonicalize.CanonicalBytes(rec)
	if err != nil {
		return Record{}, fmt.Errorf("audit: canonicalize record: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(line)
	buf.WriteByte('\n')
	if _, err := a.file.Write(buf.Bytes()); err != nil {
		return Record{}, fmt.Errorf("audit: write: %w", err)
	}
	if err := a.file.Sync(); err != nil {
		return Record{}, fmt.Errorf("audit: sync: %w", err)
	}

	a.lastHash = hash
	return rec, nil
}

// LastHash returns the cached head of the chain.
func (a *Appender) LastHash() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastHash
}

// Close closes the underlying file and releases the writer lease, if one
// was acquired via OpenAppenderWithLease. The release uses a background
// context since Close itself takes none; a failed release leaves the
// lease held until its TTL expires; it does not corrupt the log.
func (a *Appender) Close() error {
	if a.lease != nil {
		_ = a.lease.Release(context.Background())
	}
	return a.file.Close()
}

// VerifyError reports a hash-chain inconsistency at a specific 1-indexed
// line of the log.
type VerifyError struct {
	Line     int
	Expected string
	Got      string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("audit: hash mismatch at line %d: expected %s, record has %s", e.Line, e.Expected, e.Got)
}

// Verify replays the entire chain in path from GenesisHash, checking that
// each record's prev_hash matches the previous record's hash and that each
// record's own hash is correctly computed. It returns the final head hash
// on success. An empty or missing log verifies to GenesisHash.
func Verify(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return GenesisHash, nil
		}
		return "", fmt.Errorf("audit: open %s: %w", path, err)
	}
	defer f.Close()

	expectedPrev := GenesisHash
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return "", fmt.Errorf("audit: parse line %d: %w", lineNo, err)
		}
		if rec.PrevHash != expectedPrev {
			return "", &VerifyError{Line: lineNo, Expected: expectedPrev, Got: rec.PrevHash}
		}
		wantHash, err := computeRecordHash(rec.PrevHash, rec.Event)
		if err != nil {
			return "", fmt.Errorf("audit: recompute hash at line %d: %w", lineNo, err)
		}
		if wantHash != rec.Hash {
			return "", &VerifyError{Line: lineNo, Expected: wantHash, Got: rec.Hash}
		}
		expectedPrev = rec.Hash
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("audit: scan %s: %w", path, err)
	}
	return expectedPrev, nil
}
