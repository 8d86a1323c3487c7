/**
 * @description
 * Single-flight guards for bulk operations. A heterogeneous markDue run stages
 * per-row values in the scratch table before the join-update; the staged rows
 * are scoped by run id, so overlapping runs cannot corrupt each other, but an
 * operator double-submitting the same university's bulk update would still
 * double-apply. The guard rejects the second submission instead.
 *
 * Two implementations: a Redis lock for multi-instance deployments, and an
 * in-process mutex map used when no Redis URL is configured.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: The distributed lock backend.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrOperationInFlight is returned when a guarded bulk operation is already
// running for the same scope.
var ErrOperationInFlight = errors.New("a bulk operation for this scope is already in flight")

// BulkGuard serializes bulk operations per scope key. Release must be called
// with the token returned by Acquire.
type BulkGuard interface {
	Acquire(ctx context.Context, scope string, ttl time.Duration) (token string, err error)
	Release(ctx context.Context, scope, token string) error
}

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisBulkGuard implements BulkGuard with a Redis SET NX lock, so the guard
// holds across service instances.
type RedisBulkGuard struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBulkGuard creates a guard using the given client and key prefix.
func NewRedisBulkGuard(client redis.UniversalClient, prefix string) *RedisBulkGuard {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		trimmed = "passservice:bulk_guard"
	}
	return &RedisBulkGuard{client: client, prefix: strings.TrimSuffix(trimmed, ":")}
}

func (g *RedisBulkGuard) key(scope string) string {
	return fmt.Sprintf("%s:%s", g.prefix, scope)
}

// Acquire takes the lock for scope or fails with ErrOperationInFlight. The TTL
// bounds how long a crashed holder can block subsequent runs.
func (g *RedisBulkGuard) Acquire(ctx context.Context, scope string, ttl time.Duration) (string, error) {
	token := fmt.Sprintf("%d", time.Now().UnixNano())
	ok, err := g.client.SetNX(ctx, g.key(scope), token, ttl).Result()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrOperationInFlight
	}
	return token, nil
}

// Release drops the lock only if this holder still owns it.
func (g *RedisBulkGuard) Release(ctx context.Context, scope, token string) error {
	return releaseLockScript.Run(ctx, g.client, []string{g.key(scope)}, token).Err()
}

// LocalBulkGuard is the in-process fallback used when Redis is not configured.
// It provides the same contract within a single instance.
type LocalBulkGuard struct {
	mu     sync.Mutex
	states map[string]string
}

// NewLocalBulkGuard creates an in-process guard.
func NewLocalBulkGuard() *LocalBulkGuard {
	return &LocalBulkGuard{states: make(map[string]string)}
}

// Acquire takes the scope or fails with ErrOperationInFlight. TTL is ignored;
// an in-process holder releases on return or dies with the process.
func (g *LocalBulkGuard) Acquire(_ context.Context, scope string, _ time.Duration) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.states[scope]; held {
		return "", ErrOperationInFlight
	}
	token := fmt.Sprintf("%d", time.Now().UnixNano())
	g.states[scope] = token
	return token, nil
}

// Release drops the scope if the token still owns it.
func (g *LocalBulkGuard) Release(_ context.Context, scope, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.states[scope] == token {
		delete(g.states, scope)
	}
	return nil
}
