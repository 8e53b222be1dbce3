package match

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Prefix is the Redis key prefix for match hashes.
	Prefix = "match:"

	// KeyOpen is the sorted set of non-ended matches, scored by creation
	// time, which the guardian scans for staleness.
	KeyOpen = "match:open"

	// ActivePrefix maps a user ID to their current match ID.
	ActivePrefix = "match:active:"

	// matchTTL bounds how long an ended/forgotten match hash survives.
	matchTTL = 2 * time.Hour
)

// Disposition codes returned by the mutation scripts. Negative codes are
// contract violations; non-negative codes are progress.
const (
	CodeAdvanced       = 1  // the call changed the match status
	CodeWaiting        = 0  // recorded, waiting on the partner
	CodeNotFound       = -1 // no such match
	CodeWrongStatus    = -2 // match not in a status that allows the call
	CodeNotParticipant = -3 // caller is not one of the two participants
	CodeDuplicate      = -4 // participant already voted
)

// Store manages match hashes in Redis. All vote and reveal mutations run
// as Lua scripts so concurrent participants can never interleave partial
// updates.
type Store struct {
	client       *redis.Client
	voteWindow   time.Duration
	ackScript    *redis.Script
	revealScript *redis.Script
	voteScript   *redis.Script
	expireScript *redis.Script
	endScript    *redis.Script
}

// NewStore creates a match store. voteWindow is how long participants have
// to vote once both have revealed.
func NewStore(client *redis.Client, voteWindow time.Duration) *Store {
	return &Store{
		client:       client,
		voteWindow:   voteWindow,
		ackScript:    redis.NewScript(ackLua),
		revealScript: redis.NewScript(revealLua),
		voteScript:   redis.NewScript(voteLua),
		expireScript: redis.NewScript(resolveExpiredLua),
		endScript:    redis.NewScript(forceEndLua),
	}
}

// Get retrieves a match snapshot. Returns nil if not found.
func (s *Store) Get(ctx context.Context, matchID string) (*Match, error) {
	result, err := s.client.HGetAll(ctx, Prefix+matchID).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}

	m := &Match{
		ID:      matchID,
		UserA:   result["user_a"],
		UserB:   result["user_b"],
		Status:  result["status"],
		RevealA: result["reveal_a"] == "1",
		RevealB: result["reveal_b"] == "1",
		AckA:    result["ack_a"] == "1",
		AckB:    result["ack_b"] == "1",
		VoteA:   result["vote_a"],
		VoteB:   result["vote_b"],
		Outcome: result["outcome"],
	}
	if v, err := strconv.ParseInt(result["created_at"], 10, 64); err == nil && v > 0 {
		m.CreatedAt = time.Unix(v, 0)
	}
	if v, err := strconv.ParseInt(result["vote_deadline"], 10, 64); err == nil && v > 0 {
		m.VoteDeadline = time.Unix(v, 0)
	}
	return m, nil
}

// ActiveFor returns the user's current match ID, or "" when none.
func (s *Store) ActiveFor(ctx context.Context, userID string) (string, error) {
	id, err := s.client.Get(ctx, ActivePrefix+userID).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// Ack records that a participant has acknowledged the match. When both
// have, the status advances pending -> paired. Re-acking is a no-op.
func (s *Store) Ack(ctx context.Context, matchID, userID string) (int, error) {
	code, err := s.ackScript.Run(ctx, s.client, []string{Prefix + matchID}, userID).Int()
	if err != nil {
		return CodeNotFound, fmt.Errorf("match: ack %s: %w", matchID, err)
	}
	return code, nil
}

// Reveal records a participant's reveal. When both participants have
// revealed, the vote window opens: status becomes vote_active and the
// vote deadline is stamped. Returns CodeAdvanced in that case.
func (s *Store) Reveal(ctx context.Context, matchID, userID string) (int, error) {
	deadline := time.Now().Add(s.voteWindow).Unix()
	code, err := s.revealScript.Run(ctx, s.client, []string{Prefix + matchID}, userID, deadline).Int()
	if err != nil {
		return CodeNotFound, fmt.Errorf("match: reveal %s: %w", matchID, err)
	}
	return code, nil
}

// Vote records a participant's vote. Votes are immutable once cast
// (CodeDuplicate on a second attempt) and only accepted while the match is
// vote_active. The second vote resolves the outcome atomically and ends
// the match; the caller then applies outcome side effects.
func (s *Store) Vote(ctx context.Context, matchID, userID, vote string) (int, error) {
	if vote != VoteYes && vote != VotePass {
		return CodeWrongStatus, fmt.Errorf("match: invalid vote %q", vote)
	}
	code, err := s.voteScript.Run(ctx, s.client, []string{Prefix + matchID}, userID, vote).Int()
	if err != nil {
		return CodeNotFound, fmt.Errorf("match: vote %s: %w", matchID, err)
	}
	return code, nil
}

// ResolveExpired treats missing votes on a vote_active match whose window
// has elapsed as implicit passes and resolves the outcome. Returns
// CodeAdvanced if this call resolved the match, CodeWaiting if the window
// has not elapsed, CodeWrongStatus if the match is not vote_active.
func (s *Store) ResolveExpired(ctx context.Context, matchID string) (int, error) {
	code, err := s.expireScript.Run(ctx, s.client, []string{Prefix + matchID}, time.Now().Unix()).Int()
	if err != nil {
		return CodeNotFound, fmt.Errorf("match: resolve expired %s: %w", matchID, err)
	}
	return code, nil
}

// ForceEnd terminates a match with the abandoned outcome regardless of
// vote state. Ending an already-ended match is a no-op (CodeWaiting).
func (s *Store) ForceEnd(ctx context.Context, matchID string) (int, error) {
	code, err := s.endScript.Run(ctx, s.client, []string{Prefix + matchID}).Int()
	if err != nil {
		return CodeNotFound, fmt.Errorf("match: force end %s: %w", matchID, err)
	}
	return code, nil
}

// Cleanup removes an ended match from the open index and clears both
// participants' active pointers, provided they still point at this match.
// Idempotent; the guardian re-runs it for any ended match it finds.
func (s *Store) Cleanup(ctx context.Context, m *Match) error {
	pipe := s.client.Pipeline()
	pipe.ZRem(ctx, KeyOpen, m.ID)
	pipe.Expire(ctx, Prefix+m.ID, matchTTL)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return err
	}
	for _, uid := range []string{m.UserA, m.UserB} {
		current, err := s.ActiveFor(ctx, uid)
		if err != nil {
			return err
		}
		if current == m.ID {
			if err := s.client.Del(ctx, ActivePrefix+uid).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

// OpenBefore returns IDs of non-ended matches created at or before the
// given time, oldest first.
func (s *Store) OpenBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	return s.client.ZRangeByScore(ctx, KeyOpen, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
}

// OpenAll returns every non-ended match ID.
func (s *Store) OpenAll(ctx context.Context) ([]string, error) {
	return s.client.ZRange(ctx, KeyOpen, 0, -1).Result()
}

// ---------------------------------------------------------------------------
// Mutation scripts
// ---------------------------------------------------------------------------

// ackLua marks a participant's acknowledgement and advances
// pending -> paired once both have acknowledged.
const ackLua = `
local key = KEYS[1]
local uid = ARGV[1]

local status = redis.call('HGET', key, 'status')
if not status then return -1 end
if status == 'ended' then return -2 end

local user_a = redis.call('HGET', key, 'user_a')
local user_b = redis.call('HGET', key, 'user_b')

if uid == user_a then
    redis.call('HSET', key, 'ack_a', '1')
elseif uid == user_b then
    redis.call('HSET', key, 'ack_b', '1')
else
    return -3
end

if status == 'pending'
    and redis.call('HGET', key, 'ack_a') == '1'
    and redis.call('HGET', key, 'ack_b') == '1' then
    redis.call('HSET', key, 'status', 'paired')
    return 1
end

return 0
`

// revealLua marks a participant's reveal. The second reveal opens the vote
// window: status vote_active, deadline ARGV[2].
const revealLua = `
local key = KEYS[1]
local uid = ARGV[1]

local status = redis.call('HGET', key, 'status')
if not status then return -1 end
if status ~= 'pending' and status ~= 'paired' and status ~= 'reveal' then
    return -2
end

local user_a = redis.call('HGET', key, 'user_a')
local user_b = redis.call('HGET', key, 'user_b')

if uid == user_a then
    redis.call('HSET', key, 'reveal_a', '1')
elseif uid == user_b then
    redis.call('HSET', key, 'reveal_b', '1')
else
    return -3
end

if redis.call('HGET', key, 'reveal_a') == '1'
    and redis.call('HGET', key, 'reveal_b') == '1' then
    redis.call('HSET', key, 'status', 'vote_active', 'vote_deadline', ARGV[2])
    return 1
end

redis.call('HSET', key, 'status', 'reveal')
return 0
`

// voteLua records an immutable vote while vote_active. The second vote
// computes the outcome and ends the match in the same step.
const voteLua = `
local key = KEYS[1]
local uid = ARGV[1]
local vote = ARGV[2]

local status = redis.call('HGET', key, 'status')
if not status then return -1 end
if status ~= 'vote_active' then return -2 end

local user_a = redis.call('HGET', key, 'user_a')
local user_b = redis.call('HGET', key, 'user_b')

local field
if uid == user_a then
    field = 'vote_a'
elseif uid == user_b then
    field = 'vote_b'
else
    return -3
end

local existing = redis.call('HGET', key, field)
if existing and existing ~= '' then
    return -4
end

redis.call('HSET', key, field, vote)

local vote_a = redis.call('HGET', key, 'vote_a')
local vote_b = redis.call('HGET', key, 'vote_b')
if vote_a ~= '' and vote_b ~= '' and vote_a and vote_b then
    local outcome
    if vote_a == 'yes' and vote_b == 'yes' then
        outcome = 'both_yes'
    elseif vote_a == 'yes' or vote_b == 'yes' then
        outcome = 'yes_pass'
    else
        outcome = 'both_pass'
    end
    redis.call('HSET', key, 'status', 'ended', 'outcome', outcome)
    return 1
end

return 0
`

// resolveExpiredLua fills missing votes with implicit passes once the vote
// window has elapsed, then resolves the outcome.
const resolveExpiredLua = `
local key = KEYS[1]
local now = tonumber(ARGV[1])

local status = redis.call('HGET', key, 'status')
if not status then return -1 end
if status ~= 'vote_active' then return -2 end

local deadline = tonumber(redis.call('HGET', key, 'vote_deadline'))
if not deadline or deadline > now then return 0 end

local vote_a = redis.call('HGET', key, 'vote_a')
local vote_b = redis.call('HGET', key, 'vote_b')
if not vote_a or vote_a == '' then
    vote_a = 'pass'
    redis.call('HSET', key, 'vote_a', 'pass')
end
if not vote_b or vote_b == '' then
    vote_b = 'pass'
    redis.call('HSET', key, 'vote_b', 'pass')
end

local outcome
if vote_a == 'yes' and vote_b == 'yes' then
    outcome = 'both_yes'
elseif vote_a == 'yes' or vote_b == 'yes' then
    outcome = 'yes_pass'
else
    outcome = 'both_pass'
end
redis.call('HSET', key, 'status', 'ended', 'outcome', outcome)
return 1
`

// forceEndLua terminates a match as abandoned unless already ended.
const forceEndLua = `
local key = KEYS[1]

local status = redis.call('HGET', key, 'status')
if not status then return -1 end
if status == 'ended' then return 0 end

redis.call('HSET', key, 'status', 'ended', 'outcome', 'abandoned')
return 1
`
