// Package episodes implements the episodic memory store: content-addressed,
// self-hashing episode records appended to a canonical JSONL log with a
// parallel index for fast, filtered lookups.
package episodes

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/Mindburn-Labs/boundary/pkg/audit"
	"github.com/Mindburn-Labs/boundary/pkg/canonicalize"
)

// ArtifactRef points at a supporting artifact for an episode (e.g. a diff
// or transcript the episode summarizes).
type ArtifactRef struct {
	Hash string `json:"hash"`
	Kind string `json:"kind,omitempty"`
}

// Episode is one durable unit of episodic memory. Hash is computed over
// every other field (via episodeUnsigned) and is never itself part of
// what gets hashed.
type Episode struct {
	SchemaVersion int           `json:"schema_version"`
	EpisodeID     string        `json:"episode_id"`
	RunID         string        `json:"run_id"`
	TickID        int           `json:"tick_id"`
	ThreadID      string        `json:"thread_id"`
	Tags          []string      `json:"tags"`
	Title         string        `json:"title"`
	Summary       string        `json:"summary"`
	Artifacts     []ArtifactRef `json:"artifacts"`
	CreatedTS     float64       `json:"created_ts"`
	Hash          string        `json:"hash"`
}

// episodeUnsigned is Episode minus Hash: the exact value self-hashing is
// computed over.
type episodeUnsigned struct {
	SchemaVersion int           `json:"schema_version"`
	EpisodeID     string        `json:"episode_id"`
	RunID         string        `json:"run_id"`
	TickID        int           `json:"tick_id"`
	ThreadID      string        `json:"thread_id"`
	Tags          []string      `json:"tags"`
	Title         string        `json:"title"`
	Summary       string        `json:"summary"`
	Artifacts     []ArtifactRef `json:"artifacts"`
	CreatedTS     float64       `json:"created_ts"`
}

func (e Episode) unsigned() episodeUnsigned {
	return episodeUnsigned{
		SchemaVersion: e.SchemaVersion,
		EpisodeID:     e.EpisodeID,
		RunID:         e.RunID,
		TickID:        e.TickID,
		ThreadID:      e.ThreadID,
		Tags:          e.Tags,
		Title:         e.Title,
		Summary:       e.Summary,
		Artifacts:     e.Artifacts,
		CreatedTS:     e.CreatedTS,
	}
}

// NewEpisode mints an episode id, computes the episode's hash over every
// field except Hash, and returns the fully-formed, self-consistent
// Episode.
func NewEpisode(runID string, tickID int, threadID string, tags []string, title, summary string, artifacts []ArtifactRef, createdTS float64) (Episode, error) {
	if tags == nil {
		tags = []string{}
	}
	if artifacts == nil {
		artifacts = []ArtifactRef{}
	}
	ep := Episode{
		SchemaVersion: 1,
		EpisodeID:     uuid.NewString(),
		RunID:         runID,
		TickID:        tickID,
		ThreadID:      threadID,
		Tags:          tags,
		Title:         title,
		Summary:       summary,
		Artifacts:     artifacts,
		CreatedTS:     createdTS,
	}
	hash, err := canonicalize.DigestOf(ep.unsigned())
	if err != nil {
		return Episode{}, fmt.Errorf("episodes: digest episode: %w", err)
	}
	ep.Hash = hash
	return ep, nil
}

// VerifyHash recomputes the episode's hash over its unsigned projection
// and reports whether it matches the stored Hash field.
func (e Episode) VerifyHash() (bool, error) {
	want, err := canonicalize.DigestOf(e.unsigned())
	if err != nil {
		return false, fmt.Errorf("episodes: digest episode: %w", err)
	}
	return want == e.Hash, nil
}

// IndexEntry is one line of index.json: enough of an episode's identity to
// filter and order query results without reading the JSONL log.
type IndexEntry struct {
	EpisodeID string   `json:"episode_id"`
	RunID     string   `json:"run_id"`
	TickID    int      `json:"tick_id"`
	ThreadID  string   `json:"thread_id"`
	Tags      []string `json:"tags"`
	Hash      string   `json:"hash"`
	LineNo    int      `json:"line_no"`
}

// Index is the canonical index.json document: a schema version and the
// ordered list of entries appended so far.
type Index struct {
	SchemaVersion int          `json:"schema_version"`
	Entries       []IndexEntry `json:"entries"`
}

// DefaultIndex returns the empty index written when none exists yet.
func DefaultIndex() Index {
	return Index{SchemaVersion: 1, Entries: []IndexEntry{}}
}

// EventAppender is the subset of *audit.Appender the store needs, kept as
// an interface so tests can substitute a fake without touching a real
// file.
type EventAppender interface {
	Append(ev audit.Event) (audit.Record, error)
}
