// Package lock provides per-journey claims so that overlapping ticks do not
// execute the same step twice.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Claimer takes and releases short-lived exclusive claims on string keys.
type Claimer interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// NopClaimer grants every claim. Two processors sharing it can both execute
// the same due journey.
type NopClaimer struct{}

func (NopClaimer) Acquire(context.Context, string) (bool, error) { return true, nil }
func (NopClaimer) Release(context.Context, string) error         { return nil }

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClaimer claims keys with SET NX and a TTL so that a crashed holder
// cannot block a journey forever.
type RedisClaimer struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string

	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisClaimer(client redis.UniversalClient, ttl time.Duration) *RedisClaimer {
	return &RedisClaimer{
		client: client,
		ttl:    ttl,
		prefix: "dripline:claim:",
		tokens: make(map[string]string),
	}
}

func (c *RedisClaimer) Acquire(ctx context.Context, key string) (bool, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, c.prefix+key, token, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	if ok {
		c.mu.Lock()
		c.tokens[key] = token
		c.mu.Unlock()
	}
	return ok, nil
}

func (c *RedisClaimer) Release(ctx context.Context, key string) error {
	c.mu.Lock()
	token, ok := c.tokens[key]
	delete(c.tokens, key)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	if err := releaseScript.Run(ctx, c.client, []string{c.prefix + key}, token).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

// JourneyKey is the claim key for one journey.
func JourneyKey(journeyID int) string {
	return fmt.Sprintf("journey:%d", journeyID)
}

var (
	_ Claimer = NopClaimer{}
	_ Claimer = (*RedisClaimer)(nil)
)
