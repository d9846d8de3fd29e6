// Package boundarylock provides an optional, best-effort cross-process
// writer lease backed by Redis. It does not change the boundary's
// concurrency model: a single process with a *audit.Appender is still
// correct on its own, in-process, via that appender's mutex. This package
// only adds a cheap cross-process assertion of the same single-writer
// invariant for deployments that run more than one boundary process
// against the same repo root.
package boundarylock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Release/Renew when the lease is not (or is no
// longer) held by this token, e.g. because it already expired.
var ErrNotHeld = errors.New("boundarylock: lease not held")

// releaseScript deletes key only if it still holds token, so a process
// can never release a lease another holder has since acquired.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// renewScript extends key's TTL only if it still holds token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
    return 0
end
`)

// Lease is a single held (or attempted) writer lease for one repo root.
type Lease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// Store mints leases scoped to one Redis connection.
type Store struct {
	client *redis.Client
}

// NewStore returns a Store backed by a Redis client at addr/db.
func NewStore(addr, password string, db int) *Store {
	return &Store{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// NewStoreFromClient wraps an already-constructed *redis.Client, for callers
// (tests, or a shared connection pool) that manage the client lifecycle
// themselves.
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func leaseKey(repoRoot string) string {
	return fmt.Sprintf("boundary:writer_lease:%s", repoRoot)
}

// Acquire attempts to take the writer lease for repoRoot with ttl. It
// returns (nil, false, nil) if another process already holds it — this is
// the expected, non-error outcome of losing a race, not a failure.
func (s *Store) Acquire(ctx context.Context, repoRoot string, ttl time.Duration) (*Lease, bool, error) {
	token := uuid.NewString()
	key := leaseKey(repoRoot)

	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("boundarylock: acquire: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Lease{client: s.client, key: key, token: token, ttl: ttl}, true, nil
}

// Renew extends the lease's TTL, failing with ErrNotHeld if the lease has
// already expired or been taken over by another process.
func (l *Lease) Renew(ctx context.Context) error {
	res, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("boundarylock: renew: %w", err)
	}
	n, _ := res.(int64)
	if n != 1 {
		return ErrNotHeld
	}
	return nil
}

// Release gives up the lease, a no-op (returning ErrNotHeld) if it was
// already lost to expiry or preemption.
func (l *Lease) Release(ctx context.Context) error {
	res, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Result()
	if err != nil {
		return fmt.Errorf("boundarylock: release: %w", err)
	}
	n, _ := res.(int64)
	if n != 1 {
		return ErrNotHeld
	}
	return nil
}
