// Package queue implements the waiting pool for the matching engine: one
// entry per waiting user, ordered for pairing by fairness score, with
// criteria that widen the longer the user waits.
//
// Redis layout:
//
//	spin:queue          Sorted set of user IDs, score = enqueue time (ms)
//	spin:entry:<id>     Hash: criteria, profile snapshot, expansion state
//	spin:boost:<id>     Counter of honest-yes fairness boosts (survives requeue)
package queue

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyQueue is the global waiting-pool sorted set.
	KeyQueue = "spin:queue"

	// EntryPrefix is the Redis key prefix for queue entry hashes.
	EntryPrefix = "spin:entry:"

	// BoostPrefix is the Redis key prefix for fairness boost counters.
	BoostPrefix = "spin:boost:"

	// entryTTL bounds how long an orphaned entry hash can linger; the
	// guardian removes ghosts well before this.
	entryTTL = 30 * time.Minute

	// boostTTL matches the presence and state record TTLs: an earned
	// boost survives as long as any other trace of the user does.
	boostTTL = 2 * time.Hour
)

// Entry is one waiting user's row in the pool.
type Entry struct {
	UserID       string
	JoinedAt     time.Time
	Level        int       // preference-expansion level, 0..MaxExpansionLevel
	LastExpanded time.Time // zero until the first expansion
	Boosts       int       // honest-yes boost count at load time
	Score        int       // fairness score at last recompute
	Profile      Profile
	Criteria     Criteria // original, as submitted
	Effective    Criteria // currently-effective (possibly expanded)
}

// CurrentScore derives the entry's fairness score as of now.
func (e *Entry) CurrentScore(now time.Time) int {
	return Score(now.Sub(e.JoinedAt), e.Boosts)
}

// Wait returns how long the entry has been queued as of now.
func (e *Entry) Wait(now time.Time) time.Duration {
	return now.Sub(e.JoinedAt)
}

// Queue manages the waiting pool in Redis.
type Queue struct {
	client *redis.Client
}

// NewQueue creates a queue backed by the given Redis client.
func NewQueue(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue creates or resets the user's queue entry. Rejoining always starts
// from the submitted (unexpanded) criteria at level 0. Eligibility (online,
// not cooling down) is the caller's contract; the queue only stores.
func (q *Queue) Enqueue(ctx context.Context, userID string, profile Profile, criteria Criteria) error {
	now := time.Now()
	key := EntryPrefix + userID

	pipe := q.client.Pipeline()
	pipe.ZAdd(ctx, KeyQueue, redis.Z{Score: float64(now.UnixMilli()), Member: userID})
	pipe.Del(ctx, key) // reset any stale entry wholesale
	pipe.HSet(ctx, key, map[string]interface{}{
		"joined_at_ms":    now.UnixMilli(),
		"level":           0,
		"last_expanded":   0,
		"score":           0,
		"age":             profile.Age,
		"gender":          profile.Gender,
		"lat":             profile.Lat,
		"lng":             profile.Lng,
		"age_min":         criteria.AgeMin,
		"age_max":         criteria.AgeMax,
		"dist_km":         criteria.MaxDistanceKm,
		"gender_pref":     criteria.GenderPref,
		"eff_age_min":     criteria.AgeMin,
		"eff_age_max":     criteria.AgeMax,
		"eff_dist_km":     criteria.MaxDistanceKm,
		"eff_gender_pref": criteria.GenderPref,
	})
	pipe.Expire(ctx, key, entryTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Dequeue removes the user's entry. It is idempotent: removing an absent
// entry is a no-op. The boost counter is left alone — it belongs to the
// user, not the entry.
func (q *Queue) Dequeue(ctx context.Context, userID string) error {
	pipe := q.client.Pipeline()
	pipe.ZRem(ctx, KeyQueue, userID)
	pipe.Del(ctx, EntryPrefix+userID)
	_, err := pipe.Exec(ctx)
	return err
}

// IsQueued checks membership in the waiting pool.
func (q *Queue) IsQueued(ctx context.Context, userID string) (bool, error) {
	_, err := q.client.ZScore(ctx, KeyQueue, userID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Members returns all queued user IDs, oldest enqueue first.
func (q *Queue) Members(ctx context.Context) ([]string, error) {
	return q.client.ZRange(ctx, KeyQueue, 0, -1).Result()
}

// Size returns the number of users currently waiting.
func (q *Queue) Size(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, KeyQueue).Result()
}

// GetEntry loads a user's entry, including their current boost count.
// Returns nil if the user is not queued.
func (q *Queue) GetEntry(ctx context.Context, userID string) (*Entry, error) {
	result, err := q.client.HGetAll(ctx, EntryPrefix+userID).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}

	entry := parseEntry(userID, result)

	boosts, err := q.Boosts(ctx, userID)
	if err != nil {
		return nil, err
	}
	entry.Boosts = boosts
	return entry, nil
}

// Entries loads every queued entry. Members whose hash has vanished (ghosts
// awaiting guardian cleanup) are skipped.
func (q *Queue) Entries(ctx context.Context) ([]*Entry, error) {
	ids, err := q.Members(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]*Entry, 0, len(ids))
	for _, id := range ids {
		entry, err := q.GetEntry(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("queue: load entry %s: %w", id, err)
		}
		if entry == nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Prioritize sorts entries for pairing selection: descending fairness
// score, ties broken by ascending enqueue time (oldest first).
func Prioritize(entries []*Entry, now time.Time) {
	sort.SliceStable(entries, func(i, j int) bool {
		si, sj := entries[i].CurrentScore(now), entries[j].CurrentScore(now)
		if si != sj {
			return si > sj
		}
		return entries[i].JoinedAt.Before(entries[j].JoinedAt)
	})
}

// RecomputeScore derives the entry's fairness score from elapsed wait and
// boost history and stores it on the hash for observability. Calling it
// redundantly never double-counts: the score is computed, not incremented.
func (q *Queue) RecomputeScore(ctx context.Context, userID string) (int, error) {
	entry, err := q.GetEntry(ctx, userID)
	if err != nil || entry == nil {
		return 0, err
	}
	score := entry.CurrentScore(time.Now())
	if err := q.client.HSet(ctx, EntryPrefix+userID, "score", score).Err(); err != nil {
		return 0, err
	}
	return score, nil
}

// Expand advances the entry's expansion level to match the checkpoints its
// total wait has crossed (10s, 15s, 20s). Calling before a checkpoint is a
// no-op; calling repeatedly after one applies each level exactly once.
// Returns the entry's level after the call.
func (q *Queue) Expand(ctx context.Context, userID string) (int, error) {
	entry, err := q.GetEntry(ctx, userID)
	if err != nil {
		return 0, err
	}
	if entry == nil {
		return 0, nil
	}

	now := time.Now()
	target := ExpansionLevelFor(entry.Wait(now))
	if target <= entry.Level {
		return entry.Level, nil
	}

	eff := ExpandCriteria(entry.Criteria, target)
	err = q.client.HSet(ctx, EntryPrefix+userID, map[string]interface{}{
		"level":           target,
		"last_expanded":   now.UnixMilli(),
		"eff_age_min":     eff.AgeMin,
		"eff_age_max":     eff.AgeMax,
		"eff_dist_km":     eff.MaxDistanceKm,
		"eff_gender_pref": eff.GenderPref,
	}).Err()
	if err != nil {
		return entry.Level, fmt.Errorf("queue: expand %s to level %d: %w", userID, target, err)
	}
	return target, nil
}

// AddBoost credits the user one honest-yes fairness boost.
func (q *Queue) AddBoost(ctx context.Context, userID string) error {
	key := BoostPrefix + userID
	count, err := q.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if count == 1 {
		return q.client.Expire(ctx, key, boostTTL).Err()
	}
	return nil
}

// Boosts returns the user's current boost count.
func (q *Queue) Boosts(ctx context.Context, userID string) (int, error) {
	val, err := q.client.Get(ctx, BoostPrefix+userID).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

// ClearBoosts resets the user's boost counter. Called when a pairing
// consumes the priority the boost was meant to buy.
func (q *Queue) ClearBoosts(ctx context.Context, userID string) error {
	return q.client.Del(ctx, BoostPrefix+userID).Err()
}

func parseEntry(userID string, fields map[string]string) *Entry {
	atoi := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}
	atof := func(s string) float64 {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}

	entry := &Entry{
		UserID: userID,
		Level:  atoi(fields["level"]),
		Score:  atoi(fields["score"]),
		Profile: Profile{
			Age:    atoi(fields["age"]),
			Gender: fields["gender"],
			Lat:    atof(fields["lat"]),
			Lng:    atof(fields["lng"]),
		},
		Criteria: Criteria{
			AgeMin:        atoi(fields["age_min"]),
			AgeMax:        atoi(fields["age_max"]),
			MaxDistanceKm: atof(fields["dist_km"]),
			GenderPref:    fields["gender_pref"],
		},
		Effective: Criteria{
			AgeMin:        atoi(fields["eff_age_min"]),
			AgeMax:        atoi(fields["eff_age_max"]),
			MaxDistanceKm: atof(fields["eff_dist_km"]),
			GenderPref:    fields["eff_gender_pref"],
		},
	}
	if ms := atoi(fields["joined_at_ms"]); ms > 0 {
		entry.JoinedAt = time.UnixMilli(int64(ms))
	}
	if ms := atoi(fields["last_expanded"]); ms > 0 {
		entry.LastExpanded = time.UnixMilli(int64(ms))
	}
	return entry
}
