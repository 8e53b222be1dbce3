package pairing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ClaimPrefix is the Redis key prefix for per-user pairing claims.
const ClaimPrefix = "pair:claim:"

// claims hands out short-lived exclusive claims on users being considered
// by a pairing pass. Acquisition is non-blocking SET NX: a user already
// claimed by a concurrent pass reads as unavailable, never as an error.
// The TTL bounds how long a crashed pass can keep a user unavailable.
type claims struct {
	client  *redis.Client
	passID  string
	ttl     time.Duration
	release *redis.Script
}

func newClaims(client *redis.Client, ttl time.Duration) *claims {
	return &claims{
		client:  client,
		passID:  uuid.New().String(),
		ttl:     ttl,
		release: redis.NewScript(releaseClaimLua),
	}
}

// take attempts to claim a user for this pass. Returns false when the user
// is already claimed elsewhere.
func (c *claims) take(ctx context.Context, userID string) (bool, error) {
	return c.client.SetNX(ctx, ClaimPrefix+userID, c.passID, c.ttl).Result()
}

// drop releases a claim held by this pass. Claims taken over by another
// pass (after TTL expiry) are left alone.
func (c *claims) drop(ctx context.Context, userID string) {
	c.release.Run(ctx, c.client, []string{ClaimPrefix + userID}, c.passID)
}

// releaseClaimLua deletes the claim only if this pass still owns it.
const releaseClaimLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`
