package episodes

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Mindburn-Labs/boundary/pkg/audit"
	"github.com/Mindburn-Labs/boundary/pkg/canonicalize"
	"github.com/Mindburn-Labs/boundary/pkg/telemetry"
)

// ErrCorrupt indicates the JSONL log and index.json disagree: an index
// entry's line_no does not correspond to an episode matching its recorded
// hash.
var ErrCorrupt = fmt.Errorf("episodes: corrupt store")

// Store is the episodic memory store rooted at
// <repoRoot>/runtime/memory/episodes. It is the sole authority on episode
// content; any SQLite-backed accelerator built on top of it is a
// best-effort, rebuildable mirror of the index only.
type Store struct {
	repoRoot string
	mu       sync.Mutex

	// Cache, if set, is consulted by Query first. Query always falls back
	// to the canonical index.json scan if the cache is absent or returns
	// an error, so the cache is never authoritative. Append rebuilds it
	// from the freshly written index after every write.
	Cache *QueryCache

	// Telemetry, if set, wraps Append and Query in a span and RED
	// counters. Nil disables tracing.
	Telemetry *telemetry.Provider
}

// NewStore returns a Store rooted at repoRoot, creating its directories if
// necessary.
func NewStore(repoRoot string) (*Store, error) {
	s := &Store{repoRoot: repoRoot}
	if err := os.MkdirAll(s.baseDir(), 0o755); err != nil {
		return nil, fmt.Errorf("episodes: mkdir: %w", err)
	}
	return s, nil
}

func (s *Store) baseDir() string {
	return filepath.Join(s.repoRoot, "runtime", "memory", "episodes")
}

func (s *Store) episodesPath() string {
	return filepath.Join(s.baseDir(), "episodes.jsonl")
}

func (s *Store) indexPath() string {
	return filepath.Join(s.baseDir(), "index.json")
}

func (s *Store) loadIndex() (Index, error) {
	b, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultIndex(), nil
		}
		return Index{}, fmt.Errorf("episodes: read index: %w", err)
	}
	var idx Index
	if err := json.Unmarshal(b, &idx); err != nil {
		return Index{}, fmt.Errorf("episodes: parse index: %w", err)
	}
	return idx, nil
}

func (s *Store) writeIndex(idx Index) error {
	b, err := canonicalize.CanonicalBytes(idx)
	if err != nil {
		return fmt.Errorf("episodes: canonicalize index: %w", err)
	}
	tmp := s.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("episodes: write index: %w", err)
	}
	return os.Rename(tmp, s.indexPath())
}

func (s *Store) currentLineCount() (int, error) {
	f, err := os.Open(s.episodesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("episodes: open episodes log: %w", err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("episodes: scan episodes log: %w", err)
	}
	return count, nil
}

// Append verifies ep's self-hash, assigns it the next line number, appends
// it to episodes.jsonl, and updates index.json to match. If appender is
// non-nil, an episode_appended audit event is emitted after the write
// succeeds. If s.Cache is set, it is rebuilt from the new index; a cache
// rebuild failure does not fail the append, since the cache is never
// authoritative.
func (s *Store) Append(ctx context.Context, ep Episode, appender EventAppender) (entry IndexEntry, resultErr error) {
	if s.Telemetry != nil {
		var end func(error)
		ctx, end = s.Telemetry.Track(ctx, "episode_append", telemetry.Attrs{RunID: ep.RunID, EpisodeID: ep.EpisodeID})
		defer func() { end(resultErr) }()
	}

	ok, err := ep.VerifyHash()
	if err != nil {
		return IndexEntry{}, err
	}
	if !ok {
		return IndexEntry{}, fmt.Errorf("episodes: refusing to append episode %s: hash does not match content", ep.EpisodeID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lineNo, err := s.currentLineCount()
	if err != nil {
		return IndexEntry{}, err
	}

	line, err := canonicalize.CanonicalBytes(ep)
	if err != nil {
		return IndexEntry{}, fmt.Errorf("episodes: canonicalize episode: %w", err)
	}
	f, err := os.OpenFile(s.episodesPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return IndexEntry{}, fmt.Errorf("episodes: open episodes log: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return IndexEntry{}, fmt.Errorf("episodes: append episode: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return IndexEntry{}, fmt.Errorf("episodes: sync episodes log: %w", err)
	}
	if err := f.Close(); err != nil {
		return IndexEntry{}, fmt.Errorf("episodes: close episodes log: %w", err)
	}

	idx, err := s.loadIndex()
	if err != nil {
		return IndexEntry{}, err
	}
	entry = IndexEntry{
		EpisodeID: ep.EpisodeID,
		RunID:     ep.RunID,
		TickID:    ep.TickID,
		ThreadID:  ep.ThreadID,
		Tags:      ep.Tags,
		Hash:      ep.Hash,
		LineNo:    lineNo,
	}
	idx.Entries = append(idx.Entries, entry)
	if err := s.writeIndex(idx); err != nil {
		return IndexEntry{}, err
	}

	if s.Cache != nil {
		// Best-effort: a failed rebuild just leaves the cache stale, which
		// Query already tolerates by falling back to the canonical scan.
		_ = s.Cache.RebuildFromIndex(ctx, idx)
	}

	if appender != nil {
		episodeArtifactHash := ep.Hash
		if _, err := appender.Append(audit.EpisodeAppended{
			SchemaVersion:   1,
			RunID:           ep.RunID,
			TickID:          ep.TickID,
			TS:              ep.CreatedTS,
			EpisodeID:       ep.EpisodeID,
			ThreadID:        ep.ThreadID,
			Tags:            ep.Tags,
			Title:           ep.Title,
			EpisodeHash:     ep.Hash,
			EpisodeArtifact: audit.NewArtifactRef(episodeArtifactHash),
		}); err != nil {
			return entry, fmt.Errorf("episodes: append episode_appended event: %w", err)
		}
	}

	return entry, nil
}

// QueryOptions filters and bounds a Query call.
type QueryOptions struct {
	ThreadID   string
	TagsAll    []string
	SinceTick  *int
	Limit      int
}

// Query returns index entries matching opts, sorted by (tick_id, line_no)
// ascending, truncated to opts.Limit (0 means unlimited). If s.Cache is
// set, it is tried first; any error from it falls back to the canonical
// index.json scan. A cache that answers without error is returned as is:
// rows that lag behind index.json (e.g. a cache that was never rebuilt)
// are not detected here.
func (s *Store) Query(ctx context.Context, opts QueryOptions) (result []IndexEntry, resultErr error) {
	if s.Telemetry != nil {
		var end func(error)
		ctx, end = s.Telemetry.Track(ctx, "episode_query", telemetry.Attrs{})
		defer func() { end(resultErr) }()
	}

	if s.Cache != nil {
		if cached, err := s.Cache.Query(ctx, opts); err == nil {
			return cached, nil
		}
	}

	s.mu.Lock()
	idx, err := s.loadIndex()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var out []IndexEntry
	for _, e := range idx.Entries {
		if opts.ThreadID != "" && e.ThreadID != opts.ThreadID {
			continue
		}
		if opts.SinceTick != nil && e.TickID < *opts.SinceTick {
			continue
		}
		if !hasAllTags(e.Tags, opts.TagsAll) {
			continue
		}
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TickID != out[j].TickID {
			return out[i].TickID < out[j].TickID
		}
		return out[i].LineNo < out[j].LineNo
	})

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func hasAllTags(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, t := range have {
		set[t] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

// LoadEpisodeByEntry reads the episodes.jsonl line named by entry.LineNo,
// verifies its self-hash, and checks it matches entry.Hash. A mismatch or
// a missing line is ErrCorrupt.
func (s *Store) LoadEpisodeByEntry(entry IndexEntry) (Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.episodesPath())
	if err != nil {
		return Episode{}, fmt.Errorf("%w: open episodes log: %v", ErrCorrupt, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		if lineNo == entry.LineNo {
			var ep Episode
			if err := json.Unmarshal([]byte(text), &ep); err != nil {
				return Episode{}, fmt.Errorf("%w: parse line %d: %v", ErrCorrupt, lineNo, err)
			}
			ok, err := ep.VerifyHash()
			if err != nil {
				return Episode{}, err
			}
			if !ok || ep.Hash != entry.Hash {
				return Episode{}, fmt.Errorf("%w: episode at line %d does not match index hash", ErrCorrupt, lineNo)
			}
			return ep, nil
		}
		lineNo++
	}
	if err := scanner.Err(); err != nil {
		return Episode{}, fmt.Errorf("episodes: scan: %w", err)
	}
	return Episode{}, fmt.Errorf("%w: line_no %d beyond end of log", ErrCorrupt, entry.LineNo)
}
