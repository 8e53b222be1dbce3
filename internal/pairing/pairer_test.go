package pairing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spinmatch/engine/internal/blocklist"
	"github.com/spinmatch/engine/internal/match"
	"github.com/spinmatch/engine/internal/presence"
	"github.com/spinmatch/engine/internal/queue"
	"github.com/spinmatch/engine/internal/state"
)

type testDeps struct {
	client    *redis.Client
	queue     *queue.Queue
	presence  *presence.Tracker
	blocklist *blocklist.Store
	states    *state.Store
	pairer    *Pairer
}

// newTestPairer wires a Pairer against local Redis. The blocklist store
// runs without PostgreSQL: the Redis mirror answers all checks in tests.
// Requires a running Redis on localhost:6379.
func newTestPairer(t *testing.T) *testDeps {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	clean := func() {
		patterns := []string{
			queue.EntryPrefix + "test_*", queue.BoostPrefix + "test_*",
			presence.Prefix + "test_*", state.Prefix + "test_*",
			ClaimPrefix + "test_*", match.ActivePrefix + "test_*",
		}
		for _, pattern := range patterns {
			iter := client.Scan(ctx, 0, pattern, 100).Iterator()
			for iter.Next(ctx) {
				client.Del(ctx, iter.Val())
			}
		}
		for _, id := range mustMembers(client, queue.KeyQueue) {
			if strings.HasPrefix(id, "test_") {
				client.ZRem(ctx, queue.KeyQueue, id)
			}
		}
		for _, id := range mustMembers(client, match.KeyOpen) {
			owner, _ := client.HGet(ctx, match.Prefix+id, "user_a").Result()
			if strings.HasPrefix(owner, "test_") {
				client.Del(ctx, match.Prefix+id)
				client.ZRem(ctx, match.KeyOpen, id)
			}
		}
		for _, member := range mustSetMembers(client, blocklist.KeyPairs) {
			if strings.HasPrefix(member, "test_") {
				client.SRem(ctx, blocklist.KeyPairs, member)
			}
		}
	}
	clean()
	t.Cleanup(func() {
		clean()
		client.Close()
	})

	q := queue.NewQueue(client)
	tracker := presence.NewTracker(client)
	bl := blocklist.NewStore(nil, client)
	states := state.NewStore(client)
	return &testDeps{
		client:    client,
		queue:     q,
		presence:  tracker,
		blocklist: bl,
		states:    states,
		pairer:    New(client, q, tracker, bl, states, DefaultConfig()),
	}
}

func mustMembers(client *redis.Client, key string) []string {
	ids, _ := client.ZRange(context.Background(), key, 0, -1).Result()
	return ids
}

func mustSetMembers(client *redis.Client, key string) []string {
	members, _ := client.SMembers(context.Background(), key).Result()
	return members
}

// seedWaiting puts a user online and into the queue with a consistent
// lifecycle state, the way the engine facade does on joinQueue.
func seedWaiting(t *testing.T, d *testDeps, userID string, profile queue.Profile, criteria queue.Criteria) {
	t.Helper()
	ctx := context.Background()
	if err := d.presence.Heartbeat(ctx, userID); err != nil {
		t.Fatalf("heartbeat %s: %v", userID, err)
	}
	if err := d.states.Apply(ctx, userID, state.EventSpinStart, ""); err != nil {
		t.Fatalf("spin_start %s: %v", userID, err)
	}
	if err := d.queue.Enqueue(ctx, userID, profile, criteria); err != nil {
		t.Fatalf("enqueue %s: %v", userID, err)
	}
	if err := d.states.Apply(ctx, userID, state.EventQueueJoined, ""); err != nil {
		t.Fatalf("queue_joined %s: %v", userID, err)
	}
}

var (
	profileM = queue.Profile{Age: 30, Gender: queue.GenderMale, Lat: 40.71, Lng: -74.0}
	profileF = queue.Profile{Age: 28, Gender: queue.GenderFemale, Lat: 40.72, Lng: -73.99}

	wantsF = queue.Criteria{AgeMin: 25, AgeMax: 35, MaxDistanceKm: 50, GenderPref: queue.GenderFemale}
	wantsM = queue.Criteria{AgeMin: 25, AgeMax: 35, MaxDistanceKm: 50, GenderPref: queue.GenderMale}
)

func TestAttemptPairing_CreatesOneMatch(t *testing.T) {
	d := newTestPairer(t)
	ctx := context.Background()

	seedWaiting(t, d, "test_pa", profileM, wantsF)
	seedWaiting(t, d, "test_pb", profileF, wantsM)

	pairs, err := d.pairer.AttemptPairing(ctx)
	if err != nil {
		t.Fatalf("AttemptPairing() error: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("pairs created = %d, want 1", len(pairs))
	}

	pair := pairs[0]
	got := map[string]bool{pair.UserA: true, pair.UserB: true}
	if !got["test_pa"] || !got["test_pb"] {
		t.Fatalf("unexpected participants: %+v", pair)
	}

	// Both queue rows are gone, atomically with match creation.
	for _, uid := range []string{"test_pa", "test_pb"} {
		queued, _ := d.queue.IsQueued(ctx, uid)
		if queued {
			t.Errorf("%s still queued after pairing", uid)
		}
	}

	// The match exists in pending status with both active pointers.
	matches := match.NewStore(d.client, 0)
	m, err := matches.Get(ctx, pair.MatchID)
	if err != nil || m == nil {
		t.Fatalf("match not found: %v", err)
	}
	if m.Status != match.StatusPending {
		t.Errorf("match status = %s, want pending", m.Status)
	}
	for _, uid := range []string{"test_pa", "test_pb"} {
		active, _ := matches.ActiveFor(ctx, uid)
		if active != pair.MatchID {
			t.Errorf("active pointer for %s = %q, want %s", uid, active, pair.MatchID)
		}
		rec, _ := d.states.Get(ctx, uid)
		if rec.State != state.StatePaired {
			t.Errorf("state for %s = %s, want paired", uid, rec.State)
		}
		if rec.MatchID != pair.MatchID {
			t.Errorf("state match_id for %s = %q, want %s", uid, rec.MatchID, pair.MatchID)
		}
	}
}

func TestAttemptPairing_EmptyQueueIsNotAnError(t *testing.T) {
	d := newTestPairer(t)

	pairs, err := d.pairer.AttemptPairing(context.Background())
	if err != nil {
		t.Fatalf("AttemptPairing() on empty queue: %v", err)
	}
	if len(pairs) != 0 {
		t.Errorf("pairs = %d, want 0", len(pairs))
	}
}

func TestAttemptPairing_BlocklistedPairSkipped(t *testing.T) {
	d := newTestPairer(t)
	ctx := context.Background()

	seedWaiting(t, d, "test_ba", profileM, wantsF)
	seedWaiting(t, d, "test_bb", profileF, wantsM)
	d.client.SAdd(ctx, blocklist.KeyPairs, blocklist.PairKey("test_ba", "test_bb"))

	pairs, err := d.pairer.AttemptPairing(ctx)
	if err != nil {
		t.Fatalf("AttemptPairing() error: %v", err)
	}
	if len(pairs) != 0 {
		t.Fatalf("blocklisted pair was matched: %+v", pairs)
	}

	for _, uid := range []string{"test_ba", "test_bb"} {
		queued, _ := d.queue.IsQueued(ctx, uid)
		if !queued {
			t.Errorf("%s should remain queued", uid)
		}
	}
}

func TestAttemptPairing_IncompatibleUsersNotMatched(t *testing.T) {
	d := newTestPairer(t)
	ctx := context.Background()

	narrow := queue.Criteria{AgeMin: 45, AgeMax: 50, GenderPref: queue.GenderFemale}
	seedWaiting(t, d, "test_ia", profileM, narrow) // rejects profileF's age
	seedWaiting(t, d, "test_ib", profileF, wantsM)

	pairs, err := d.pairer.AttemptPairing(ctx)
	if err != nil {
		t.Fatalf("AttemptPairing() error: %v", err)
	}
	if len(pairs) != 0 {
		t.Fatalf("incompatible pair was matched: %+v", pairs)
	}
}

func TestAttemptPairing_OfflineUserSkipped(t *testing.T) {
	d := newTestPairer(t)
	ctx := context.Background()

	seedWaiting(t, d, "test_oa", profileM, wantsF)
	seedWaiting(t, d, "test_ob", profileF, wantsM)
	if err := d.presence.MarkOffline(ctx, "test_ob"); err != nil {
		t.Fatalf("MarkOffline: %v", err)
	}

	pairs, err := d.pairer.AttemptPairing(ctx)
	if err != nil {
		t.Fatalf("AttemptPairing() error: %v", err)
	}
	if len(pairs) != 0 {
		t.Fatalf("offline user was matched: %+v", pairs)
	}
}

func TestAttemptPairing_ConcurrentPassesNeverDoubleMatch(t *testing.T) {
	d := newTestPairer(t)
	ctx := context.Background()

	seedWaiting(t, d, "test_ca", profileM, wantsF)
	seedWaiting(t, d, "test_cb", profileF, wantsM)

	const passes = 4
	results := make([][]Pair, passes)
	var wg sync.WaitGroup
	for i := 0; i < passes; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// A second pairer simulates an independent engine instance.
			p := New(d.client, d.queue, d.presence, d.blocklist, d.states, DefaultConfig())
			pairs, err := p.AttemptPairing(ctx)
			if err != nil {
				return
			}
			results[i] = pairs
		}(i)
	}
	wg.Wait()

	total := 0
	for _, pairs := range results {
		total += len(pairs)
	}
	if total != 1 {
		t.Fatalf("concurrent passes created %d matches, want exactly 1", total)
	}

	// No user participates in two non-ended matches.
	seen := make(map[string]int)
	for _, id := range mustMembers(d.client, match.KeyOpen) {
		for _, field := range []string{"user_a", "user_b"} {
			uid, _ := d.client.HGet(ctx, match.Prefix+id, field).Result()
			if strings.HasPrefix(uid, "test_c") {
				seen[uid]++
			}
		}
	}
	for uid, count := range seen {
		if count > 1 {
			t.Errorf("%s appears in %d open matches", uid, count)
		}
	}
}

func TestAttemptPairing_RequeuedUserWithActiveMatchSkipped(t *testing.T) {
	d := newTestPairer(t)
	ctx := context.Background()

	seedWaiting(t, d, "test_ra", profileM, wantsF)
	seedWaiting(t, d, "test_rb", profileF, wantsM)

	// test_ra re-spun while an earlier pass was committing: a pending
	// match already holds them even though a queue row exists again.
	now := time.Now().Unix()
	d.client.HSet(ctx, match.Prefix+"test_m_ra",
		"user_a", "test_ra", "user_b", "test_rz",
		"status", "pending", "created_at", now)
	d.client.ZAdd(ctx, match.KeyOpen, redis.Z{Score: float64(now), Member: "test_m_ra"})
	d.client.Set(ctx, match.ActivePrefix+"test_ra", "test_m_ra", 0)

	pairs, err := d.pairer.AttemptPairing(ctx)
	if err != nil {
		t.Fatalf("AttemptPairing() error: %v", err)
	}
	for _, p := range pairs {
		if p.UserA == "test_ra" || p.UserB == "test_ra" {
			t.Fatalf("user with an active match was paired again: %+v", p)
		}
	}

	matches := match.NewStore(d.client, 0)
	active, _ := matches.ActiveFor(ctx, "test_ra")
	if active != "test_m_ra" {
		t.Errorf("active pointer = %q, want test_m_ra", active)
	}
	// The untouched partner keeps waiting for a later pass.
	queued, _ := d.queue.IsQueued(ctx, "test_rb")
	if !queued {
		t.Errorf("test_rb lost their queue row")
	}
}

func TestAttemptPairing_AllClaimsHeldReportsContention(t *testing.T) {
	d := newTestPairer(t)
	ctx := context.Background()

	seedWaiting(t, d, "test_ha", profileM, wantsF)
	seedWaiting(t, d, "test_hb", profileF, wantsM)

	// Another pass holds both claims for the duration of this test.
	d.client.Set(ctx, ClaimPrefix+"test_ha", "elsewhere", 30*time.Second)
	d.client.Set(ctx, ClaimPrefix+"test_hb", "elsewhere", 30*time.Second)

	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryBackoff = 5 * time.Millisecond
	p := New(d.client, d.queue, d.presence, d.blocklist, d.states, cfg)

	pairs, err := p.AttemptPairing(ctx)
	if !errors.Is(err, ErrLockContention) {
		t.Fatalf("err = %v, want ErrLockContention", err)
	}
	if len(pairs) != 0 {
		t.Fatalf("pairs = %d, want 0", len(pairs))
	}

	// Both candidates stay queued for whoever holds the claims.
	for _, uid := range []string{"test_ha", "test_hb"} {
		queued, _ := d.queue.IsQueued(ctx, uid)
		if !queued {
			t.Errorf("%s lost their queue row to a losing pass", uid)
		}
	}
}
