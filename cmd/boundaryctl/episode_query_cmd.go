package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/boundary/pkg/config"
	"github.com/Mindburn-Labs/boundary/pkg/episodes"
)

// tagFlags allows repeatable --tag values (e.g. --tag a --tag b), matched
// against an episode's tags as an AND filter.
type tagFlags []string

func (f *tagFlags) String() string { return fmt.Sprintf("%v", *f) }
func (f *tagFlags) Set(value string) error {
	*f = append(*f, value)
	return nil
}

// runEpisodeQueryCmd implements `boundaryctl episode-query`: filter the
// episode index by thread, tags, and tick, printing matches as JSON.
//
// Exit codes:
//
//	0 = query ran (even if zero results)
//	1 = could not open the episode store
//	2 = bad arguments
func runEpisodeQueryCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("episode-query", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		repoRoot  string
		threadID  string
		tags      tagFlags
		sinceTick int
		hasSince  bool
		limit     int
	)

	cmd.StringVar(&repoRoot, "repo-root", "", "Repo root containing runtime/memory/episodes (REQUIRED)")
	cmd.StringVar(&threadID, "thread-id", "", "Only return episodes with this thread id")
	cmd.Var(&tags, "tag", "Require this tag (repeatable; all given tags must be present)")
	cmd.IntVar(&sinceTick, "since-tick", 0, "Only return episodes at or after this tick")
	cmd.BoolVar(&hasSince, "has-since-tick", false, "Set to apply --since-tick (0 is a valid tick)")
	cmd.IntVar(&limit, "limit", 50, "Maximum number of results (0 means unlimited)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if repoRoot == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --repo-root is required")
		return 2
	}

	store, err := episodes.NewStore(repoRoot)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: open episode store: %v\n", err)
		return 1
	}

	ctx := context.Background()
	cfg := config.Load()

	cache, err := buildEpisodeQueryCache(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: build episode query cache: %v\n", err)
		return 1
	}
	store.Cache = cache

	telemetryProvider, err := buildTelemetry()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: build telemetry provider: %v\n", err)
		return 1
	}
	store.Telemetry = telemetryProvider

	opts := episodes.QueryOptions{
		ThreadID: threadID,
		TagsAll:  []string(tags),
		Limit:    limit,
	}
	if hasSince {
		opts.SinceTick = &sinceTick
	}

	entries, err := store.Query(ctx, opts)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: query: %v\n", err)
		return 1
	}

	if entries == nil {
		entries = []episodes.IndexEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: marshal results: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, string(data))
	return 0
}
