package state

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Prefix is the Redis key prefix for state record hashes.
	Prefix = "state:"

	// recordTTL keeps abandoned state records from accumulating forever.
	recordTTL = 2 * time.Hour
)

// Record is the authoritative snapshot of a user's lifecycle state and the
// match currently associated with it, if any.
type Record struct {
	UserID    string
	State     State
	MatchID   string
	UpdatedAt int64 // unix seconds of the last applied transition
}

// Store applies lifecycle transitions against Redis. Transitions are
// compare-and-set: the script re-reads the current state inside Redis so
// concurrent appliers can never both win conflicting transitions.
type Store struct {
	client *redis.Client
	script *redis.Script
}

// NewStore creates a state store backed by the given Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
		script: redis.NewScript(transitionLua),
	}
}

// Get retrieves a user's state record. Users with no record are reported
// as idle, which is the initial state.
func (s *Store) Get(ctx context.Context, userID string) (*Record, error) {
	result, err := s.client.HGetAll(ctx, Prefix+userID).Result()
	if err != nil {
		return nil, err
	}
	rec := &Record{UserID: userID, State: StateIdle}
	if len(result) == 0 {
		return rec, nil
	}
	if v := result["state"]; v != "" {
		rec.State = State(v)
	}
	rec.MatchID = result["match_id"]
	if v := result["updated_at"]; v != "" {
		rec.UpdatedAt, _ = strconv.ParseInt(v, 10, 64)
	}
	return rec, nil
}

// Apply drives the user's record through the given event. matchID is
// attached to the record for EventPaired and ignored for events that keep
// the current association; events that end the association clear it.
//
// Re-applying an event the record has already absorbed (current state ==
// destination) returns nil without touching the record. An event not
// allowed from the current state returns ErrInvalidTransition and leaves
// the record untouched.
func (s *Store) Apply(ctx context.Context, userID string, event Event, matchID string) error {
	tr, ok := transitions[event]
	if !ok {
		return ErrInvalidTransition
	}

	sources := make([]string, len(tr.sources))
	for i, src := range tr.sources {
		sources[i] = string(src)
	}

	matchArg := ""
	switch event {
	case EventPaired:
		matchArg = matchID
	case EventVoteResolved, EventDisconnect, EventCooldownExpired:
		matchArg = "-" // clear the association
	}

	code, err := s.script.Run(ctx, s.client, []string{Prefix + userID},
		strings.Join(sources, ","),
		string(tr.dest),
		matchArg,
		time.Now().Unix(),
	).Int()
	if err != nil {
		return fmt.Errorf("state: apply %s for %s: %w", event, userID, err)
	}
	if code < 0 {
		return ErrInvalidTransition
	}
	return nil
}

// Repair overwrites a user's record directly, bypassing the transition
// table. Only the guardian uses this, to resynchronize records that have
// drifted from the actual queue/match contents.
func (s *Store) Repair(ctx context.Context, userID string, st State, matchID string) error {
	key := Prefix + userID
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, "state", string(st), "match_id", matchID, "updated_at", time.Now().Unix())
	pipe.Expire(ctx, key, recordTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// transitionLua atomically applies a transition. Returns:
//
//	 1 = transition applied
//	 0 = already in destination state (idempotent no-op)
//	-1 = current state not in the allowed source set
const transitionLua = `
local key = KEYS[1]
local dest = ARGV[2]

local current = redis.call('HGET', key, 'state')
if not current or current == '' then
    current = 'idle'
end

if current == dest then
    return 0
end

local allowed = false
for src in string.gmatch(ARGV[1], '([^,]+)') do
    if src == current then
        allowed = true
    end
end
if not allowed then
    return -1
end

redis.call('HSET', key, 'state', dest, 'updated_at', ARGV[4])

local match_arg = ARGV[3]
if match_arg == '-' then
    redis.call('HSET', key, 'match_id', '')
elseif match_arg ~= '' then
    redis.call('HSET', key, 'match_id', match_arg)
end

redis.call('EXPIRE', key, 7200)
return 1
`
