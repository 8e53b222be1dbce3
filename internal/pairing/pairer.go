// Package pairing implements the pairing engine: it consumes the waiting
// pool in priority order and atomically converts two mutually-compatible
// users into a match. Concurrency safety comes from two layers: per-user
// non-blocking claims keep concurrent passes off the same candidates, and
// the commit script re-verifies both queue rows inside Redis so a match
// and its source queue entries can never be observed together.
package pairing

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/spinmatch/engine/internal/blocklist"
	"github.com/spinmatch/engine/internal/match"
	"github.com/spinmatch/engine/internal/presence"
	"github.com/spinmatch/engine/internal/queue"
	"github.com/spinmatch/engine/internal/state"
)

// ErrLockContention is returned when repeated passes kept losing claims to
// concurrent invocations. Transient: the caller retries later.
var ErrLockContention = errors.New("pairing: claim contention, try again later")

// Config holds pairing engine tuning parameters.
type Config struct {
	MaxRetries   int           // whole-pass retries on claim contention
	RetryBackoff time.Duration // sleep between retried passes
	ClaimTTL     time.Duration // how long a claim survives a crashed pass
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   10,
		RetryBackoff: 50 * time.Millisecond,
		ClaimTTL:     5 * time.Second,
	}
}

// Pair describes one match created by a pairing pass.
type Pair struct {
	MatchID string
	UserA   string
	UserB   string
	WaitA   time.Duration // time UserA spent queued before this match
	WaitB   time.Duration
}

// Pairer runs pairing passes over the waiting pool.
type Pairer struct {
	client    *redis.Client
	queue     *queue.Queue
	presence  *presence.Tracker
	blocklist *blocklist.Store
	states    *state.Store
	commit    *redis.Script
	cfg       Config
}

// New creates a pairing engine.
func New(client *redis.Client, q *queue.Queue, tracker *presence.Tracker, bl *blocklist.Store, states *state.Store, cfg Config) *Pairer {
	return &Pairer{
		client:    client,
		queue:     q,
		presence:  tracker,
		blocklist: bl,
		states:    states,
		commit:    redis.NewScript(commitPairLua),
		cfg:       cfg,
	}
}

// AttemptPairing runs pairing passes until no contention remains or the
// retry budget is spent. Pairing nobody is a normal result, not an error;
// ErrLockContention is returned only when every retried pass kept losing
// claims without creating a single pair.
func (p *Pairer) AttemptPairing(ctx context.Context) ([]Pair, error) {
	var pairs []Pair

	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		created, contended, err := p.runPass(ctx)
		pairs = append(pairs, created...)
		if err != nil {
			return pairs, err
		}
		if !contended {
			return pairs, nil
		}

		select {
		case <-ctx.Done():
			return pairs, ctx.Err()
		case <-time.After(p.cfg.RetryBackoff):
		}
	}

	if len(pairs) == 0 {
		return nil, ErrLockContention
	}
	return pairs, nil
}

// runPass makes one sweep over the pool. contended reports whether any
// candidate was skipped because a concurrent pass held its claim.
func (p *Pairer) runPass(ctx context.Context) (pairs []Pair, contended bool, err error) {
	// Advance preference expansion before selection so long waiters are
	// matched against their current (widened) criteria.
	ids, err := p.queue.Members(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, id := range ids {
		if _, err := p.queue.Expand(ctx, id); err != nil {
			log.Printf("[pairing] expand %s: %v", id, err)
		}
	}

	entries, err := p.queue.Entries(ctx)
	if err != nil {
		return nil, false, err
	}

	now := time.Now()
	eligible := entries[:0]
	for _, e := range entries {
		ok, err := p.eligible(ctx, e.UserID)
		if err != nil {
			log.Printf("[pairing] eligibility %s: %v", e.UserID, err)
			continue
		}
		if ok {
			eligible = append(eligible, e)
		}
	}
	queue.Prioritize(eligible, now)

	cl := newClaims(p.client, p.cfg.ClaimTTL)
	taken := make(map[string]bool)

	for i, a := range eligible {
		if taken[a.UserID] {
			continue
		}
		got, err := cl.take(ctx, a.UserID)
		if err != nil {
			return pairs, contended, err
		}
		if !got {
			contended = true
			continue
		}

		for _, b := range eligible[i+1:] {
			if taken[b.UserID] {
				continue
			}
			if !queue.MutuallyCompatible(a.Profile, a.Effective, b.Profile, b.Effective) {
				continue
			}
			blocked, err := p.blocklist.IsBlocked(ctx, a.UserID, b.UserID)
			if err != nil {
				log.Printf("[pairing] blocklist check %s/%s: %v", a.UserID, b.UserID, err)
				continue
			}
			if blocked {
				continue
			}

			got, err := cl.take(ctx, b.UserID)
			if err != nil {
				cl.drop(ctx, a.UserID)
				return pairs, contended, err
			}
			if !got {
				contended = true
				continue
			}

			pair, ok, err := p.commitPair(ctx, a.UserID, b.UserID)
			if err != nil {
				cl.drop(ctx, b.UserID)
				cl.drop(ctx, a.UserID)
				return pairs, contended, err
			}
			if !ok {
				// One of the rows vanished between scan and commit
				// (matched elsewhere or dequeued). Move on.
				cl.drop(ctx, b.UserID)
				continue
			}

			pair.WaitA = time.Since(a.JoinedAt)
			pair.WaitB = time.Since(b.JoinedAt)
			pairs = append(pairs, pair)
			taken[a.UserID] = true
			taken[b.UserID] = true
			p.afterCommit(ctx, pair)
			cl.drop(ctx, b.UserID)
			break
		}

		cl.drop(ctx, a.UserID)
	}

	return pairs, contended, nil
}

// eligible applies the liveness and cooldown gates.
func (p *Pairer) eligible(ctx context.Context, userID string) (bool, error) {
	online, err := p.presence.IsOnline(ctx, userID)
	if err != nil || !online {
		return false, err
	}
	cooling, err := p.presence.InCooldown(ctx, userID)
	if err != nil {
		return false, err
	}
	return !cooling, nil
}

// commitPair atomically removes both queue rows and creates the match.
// Returns ok=false when either row no longer exists: nothing was changed.
func (p *Pairer) commitPair(ctx context.Context, userA, userB string) (Pair, bool, error) {
	matchID := uuid.New().String()
	code, err := p.commit.Run(ctx, p.client,
		[]string{
			queue.KeyQueue,
			queue.EntryPrefix + userA,
			queue.EntryPrefix + userB,
			match.Prefix + matchID,
			match.KeyOpen,
			match.ActivePrefix + userA,
			match.ActivePrefix + userB,
		},
		userA, userB, matchID, time.Now().Unix(),
	).Int()
	if err != nil {
		return Pair{}, false, err
	}
	if code != 1 {
		return Pair{}, false, nil
	}
	return Pair{MatchID: matchID, UserA: userA, UserB: userB}, true, nil
}

// afterCommit applies the non-atomic follow-ups: lifecycle transitions and
// boost consumption. Failures here are logged, not fatal — the guardian
// resynchronizes state records against the match that now exists.
func (p *Pairer) afterCommit(ctx context.Context, pair Pair) {
	for _, uid := range []string{pair.UserA, pair.UserB} {
		if err := p.states.Apply(ctx, uid, state.EventPaired, pair.MatchID); err != nil {
			log.Printf("[pairing] paired transition %s: %v", uid, err)
		}
		if err := p.queue.ClearBoosts(ctx, uid); err != nil {
			log.Printf("[pairing] clear boosts %s: %v", uid, err)
		}
	}
	log.Printf("[pairing] match created: match=%s a=%s b=%s", pair.MatchID, pair.UserA, pair.UserB)
}

// commitPairLua re-verifies both queue rows and that neither user already
// holds an active match, then in one atomic step removes the rows and
// creates the pending match with its open-index entry and both active
// pointers. No concurrent reader can ever observe the match alongside
// either queue row, and a user whose row was recreated after an earlier
// commit (a re-spin racing a pairing pass) can never be matched twice.
//
// KEYS: queue zset, entry A, entry B, match hash, open zset, active A, active B
// ARGV: user A, user B, match ID, now (unix seconds)
const commitPairLua = `
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) then return 0 end
if not redis.call('ZSCORE', KEYS[1], ARGV[2]) then return 0 end
if redis.call('EXISTS', KEYS[2]) == 0 then return 0 end
if redis.call('EXISTS', KEYS[3]) == 0 then return 0 end
if redis.call('EXISTS', KEYS[6]) == 1 then return 0 end
if redis.call('EXISTS', KEYS[7]) == 1 then return 0 end

redis.call('ZREM', KEYS[1], ARGV[1], ARGV[2])
redis.call('DEL', KEYS[2], KEYS[3])

redis.call('HSET', KEYS[4],
    'user_a', ARGV[1],
    'user_b', ARGV[2],
    'status', 'pending',
    'created_at', ARGV[4],
    'ack_a', '0', 'ack_b', '0',
    'reveal_a', '0', 'reveal_b', '0',
    'vote_a', '', 'vote_b', '',
    'vote_deadline', '0',
    'outcome', '')
redis.call('EXPIRE', KEYS[4], 7200)

redis.call('ZADD', KEYS[5], ARGV[4], ARGV[3])
redis.call('SET', KEYS[6], ARGV[3], 'EX', 7200)
redis.call('SET', KEYS[7], ARGV[3], 'EX', 7200)
return 1
`
