package queue

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestQueue creates a Queue connected to a local Redis instance and
// removes test keys before and after. Tests that call this helper require a
// running Redis on localhost:6379.
func newTestQueue(t *testing.T) (*Queue, *redis.Client) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	clean := func() {
		for _, pattern := range []string{EntryPrefix + "test_*", BoostPrefix + "test_*"} {
			iter := client.Scan(ctx, 0, pattern, 100).Iterator()
			for iter.Next(ctx) {
				client.Del(ctx, iter.Val())
			}
		}
		ids, _ := client.ZRange(ctx, KeyQueue, 0, -1).Result()
		for _, id := range ids {
			if len(id) >= 5 && id[:5] == "test_" {
				client.ZRem(ctx, KeyQueue, id)
			}
		}
	}
	clean()
	t.Cleanup(func() {
		clean()
		client.Close()
	})
	return NewQueue(client), client
}

var testProfile = Profile{Age: 30, Gender: GenderMale, Lat: 40.71, Lng: -74.0}
var testCriteria = Criteria{AgeMin: 25, AgeMax: 35, MaxDistanceKm: 50, GenderPref: GenderFemale}

func TestEnqueueAndGetEntry(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "test_u1", testProfile, testCriteria); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	queued, err := q.IsQueued(ctx, "test_u1")
	if err != nil {
		t.Fatalf("IsQueued() error: %v", err)
	}
	if !queued {
		t.Fatal("expected queued after Enqueue")
	}

	entry, err := q.GetEntry(ctx, "test_u1")
	if err != nil {
		t.Fatalf("GetEntry() error: %v", err)
	}
	if entry == nil {
		t.Fatal("expected entry")
	}
	if entry.Level != 0 {
		t.Errorf("fresh entry level = %d, want 0", entry.Level)
	}
	if entry.Criteria != testCriteria {
		t.Errorf("criteria = %+v, want %+v", entry.Criteria, testCriteria)
	}
	if entry.Effective != testCriteria {
		t.Errorf("effective should start equal to original, got %+v", entry.Effective)
	}
	if entry.Profile != testProfile {
		t.Errorf("profile = %+v, want %+v", entry.Profile, testProfile)
	}
	if time.Since(entry.JoinedAt) > 5*time.Second {
		t.Errorf("joined_at too old: %v", entry.JoinedAt)
	}
}

func TestDequeueIdempotent(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "test_u2", testProfile, testCriteria); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if err := q.Dequeue(ctx, "test_u2"); err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}

	queued, _ := q.IsQueued(ctx, "test_u2")
	if queued {
		t.Fatal("expected not queued after Dequeue")
	}

	// Second removal is a no-op, not an error.
	if err := q.Dequeue(ctx, "test_u2"); err != nil {
		t.Fatalf("second Dequeue() should be a no-op, got %v", err)
	}

	entry, err := q.GetEntry(ctx, "test_u2")
	if err != nil {
		t.Fatalf("GetEntry() error: %v", err)
	}
	if entry != nil {
		t.Error("expected nil entry after Dequeue")
	}
}

func TestEnqueueResetsExistingEntry(t *testing.T) {
	q, client := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "test_u3", testProfile, testCriteria); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	// Simulate an expanded entry from a previous wait.
	client.HSet(ctx, EntryPrefix+"test_u3", "level", 2, "eff_age_min", 20)

	if err := q.Enqueue(ctx, "test_u3", testProfile, testCriteria); err != nil {
		t.Fatalf("re-Enqueue() error: %v", err)
	}

	entry, _ := q.GetEntry(ctx, "test_u3")
	if entry.Level != 0 {
		t.Errorf("re-enqueue should reset level, got %d", entry.Level)
	}
	if entry.Effective != testCriteria {
		t.Errorf("re-enqueue should restore original criteria, got %+v", entry.Effective)
	}

	// Invariant: still exactly one queue row for the user.
	queued, err := q.IsQueued(ctx, "test_u3")
	if err != nil {
		t.Fatalf("IsQueued() error: %v", err)
	}
	if !queued {
		t.Error("expected queue membership after re-enqueue")
	}
}

func TestExpand_Checkpoints(t *testing.T) {
	q, client := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, "test_u4", testProfile, testCriteria); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	// Before the first checkpoint: no-op.
	level, err := q.Expand(ctx, "test_u4")
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	if level != 0 {
		t.Errorf("level before checkpoint = %d, want 0", level)
	}

	// Backdate the enqueue by 25s: all three checkpoints crossed.
	joined := time.Now().Add(-25 * time.Second).UnixMilli()
	client.HSet(ctx, EntryPrefix+"test_u4", "joined_at_ms", joined)
	client.ZAdd(ctx, KeyQueue, redis.Z{Score: float64(joined), Member: "test_u4"})

	level, err = q.Expand(ctx, "test_u4")
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	if level < MaxExpansionLevel {
		t.Errorf("level after 25s wait = %d, want %d", level, MaxExpansionLevel)
	}

	entry, _ := q.GetEntry(ctx, "test_u4")
	if entry.Effective.GenderPref != GenderAny {
		t.Errorf("level 3 gender pref = %s, want any", entry.Effective.GenderPref)
	}
	if entry.Criteria != testCriteria {
		t.Errorf("original criteria must stay untouched, got %+v", entry.Criteria)
	}

	// Repeated calls past the checkpoint apply each level only once.
	again, err := q.Expand(ctx, "test_u4")
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	if again != level {
		t.Errorf("repeat Expand changed level %d -> %d", level, again)
	}
}

func TestBoostLifecycle(t *testing.T) {
	q, client := newTestQueue(t)
	ctx := context.Background()

	boosts, err := q.Boosts(ctx, "test_u5")
	if err != nil {
		t.Fatalf("Boosts() error: %v", err)
	}
	if boosts != 0 {
		t.Fatalf("fresh boosts = %d, want 0", boosts)
	}

	if err := q.AddBoost(ctx, "test_u5"); err != nil {
		t.Fatalf("AddBoost() error: %v", err)
	}
	boosts, _ = q.Boosts(ctx, "test_u5")
	if boosts != 1 {
		t.Fatalf("boosts = %d, want 1", boosts)
	}

	// The boost outlives a typical between-spin gap: its TTL tracks the
	// presence and state records, not some shorter horizon.
	if ttl, _ := client.TTL(ctx, BoostPrefix+"test_u5").Result(); ttl <= time.Hour {
		t.Errorf("boost TTL = %v, want > 1h", ttl)
	}

	// Boost raises the derived score by exactly the fixed amount.
	if err := q.Enqueue(ctx, "test_u5", testProfile, testCriteria); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	score, err := q.RecomputeScore(ctx, "test_u5")
	if err != nil {
		t.Fatalf("RecomputeScore() error: %v", err)
	}
	if score != HonestYesBoost {
		t.Errorf("score with one boost and no wait = %d, want %d", score, HonestYesBoost)
	}

	// Recomputing again does not double-count.
	score2, _ := q.RecomputeScore(ctx, "test_u5")
	if score2 != score {
		t.Errorf("recompute changed score %d -> %d", score, score2)
	}

	if err := q.ClearBoosts(ctx, "test_u5"); err != nil {
		t.Fatalf("ClearBoosts() error: %v", err)
	}
	boosts, _ = q.Boosts(ctx, "test_u5")
	if boosts != 0 {
		t.Errorf("boosts after clear = %d, want 0", boosts)
	}
}
