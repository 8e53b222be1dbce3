package match

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestStore creates a Store connected to a local Redis instance and
// removes test match keys before and after. Tests that call this helper
// require a running Redis on localhost:6379.
func newTestStore(t *testing.T) (*Store, *redis.Client) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	clean := func() {
		iter := client.Scan(ctx, 0, Prefix+"test_*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
		ids, _ := client.ZRange(ctx, KeyOpen, 0, -1).Result()
		for _, id := range ids {
			if len(id) >= 5 && id[:5] == "test_" {
				client.ZRem(ctx, KeyOpen, id)
			}
		}
	}
	clean()
	t.Cleanup(func() {
		clean()
		client.Close()
	})
	return NewStore(client, 60*time.Second), client
}

// seedMatch writes a match hash the way the pairing commit script does.
func seedMatch(t *testing.T, client *redis.Client, id, userA, userB, status string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().Unix()
	client.HSet(ctx, Prefix+id, map[string]interface{}{
		"user_a": userA, "user_b": userB,
		"status":     status,
		"created_at": now,
		"ack_a":      "0", "ack_b": "0",
		"reveal_a": "0", "reveal_b": "0",
		"vote_a": "", "vote_b": "",
		"vote_deadline": 0,
		"outcome":       "",
	})
	client.ZAdd(ctx, KeyOpen, redis.Z{Score: float64(now), Member: id})
}

func TestAckAdvancesToPaired(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()
	seedMatch(t, client, "test_m1", "ua", "ub", StatusPending)

	code, err := store.Ack(ctx, "test_m1", "ua")
	if err != nil {
		t.Fatalf("Ack() error: %v", err)
	}
	if code != CodeWaiting {
		t.Fatalf("first ack code = %d, want %d", code, CodeWaiting)
	}

	code, err = store.Ack(ctx, "test_m1", "ub")
	if err != nil {
		t.Fatalf("Ack() error: %v", err)
	}
	if code != CodeAdvanced {
		t.Fatalf("second ack code = %d, want %d", code, CodeAdvanced)
	}

	m, _ := store.Get(ctx, "test_m1")
	if m.Status != StatusPaired {
		t.Errorf("status = %s, want paired", m.Status)
	}
	if !m.AckA || !m.AckB {
		t.Error("both ack flags should be set")
	}

	// Stranger cannot ack.
	code, _ = store.Ack(ctx, "test_m1", "stranger")
	if code != CodeNotParticipant {
		t.Errorf("stranger ack code = %d, want %d", code, CodeNotParticipant)
	}
}

func TestRevealOpensVoteWindow(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()
	seedMatch(t, client, "test_m2", "ua", "ub", StatusPaired)

	code, err := store.Reveal(ctx, "test_m2", "ua")
	if err != nil {
		t.Fatalf("Reveal() error: %v", err)
	}
	if code != CodeWaiting {
		t.Fatalf("first reveal code = %d, want waiting", code)
	}

	m, _ := store.Get(ctx, "test_m2")
	if m.Status != StatusReveal {
		t.Errorf("status after first reveal = %s, want reveal", m.Status)
	}

	code, err = store.Reveal(ctx, "test_m2", "ub")
	if err != nil {
		t.Fatalf("Reveal() error: %v", err)
	}
	if code != CodeAdvanced {
		t.Fatalf("second reveal code = %d, want advanced", code)
	}

	m, _ = store.Get(ctx, "test_m2")
	if m.Status != StatusVoteActive {
		t.Errorf("status = %s, want vote_active", m.Status)
	}
	if m.VoteDeadline.IsZero() || !m.VoteDeadline.After(time.Now()) {
		t.Errorf("vote deadline should be in the future, got %v", m.VoteDeadline)
	}
}

func TestVoteFlow_YesPass(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()
	seedMatch(t, client, "test_m3", "ua", "ub", StatusVoteActive)

	code, err := store.Vote(ctx, "test_m3", "ua", VoteYes)
	if err != nil {
		t.Fatalf("Vote() error: %v", err)
	}
	if code != CodeWaiting {
		t.Fatalf("first vote code = %d, want waiting", code)
	}

	// Duplicate vote is rejected and the original is unchanged.
	code, err = store.Vote(ctx, "test_m3", "ua", VotePass)
	if err != nil {
		t.Fatalf("Vote() error: %v", err)
	}
	if code != CodeDuplicate {
		t.Fatalf("duplicate vote code = %d, want %d", code, CodeDuplicate)
	}
	m, _ := store.Get(ctx, "test_m3")
	if m.VoteA != VoteYes {
		t.Fatalf("duplicate vote overwrote original: %s", m.VoteA)
	}

	code, err = store.Vote(ctx, "test_m3", "ub", VotePass)
	if err != nil {
		t.Fatalf("Vote() error: %v", err)
	}
	if code != CodeAdvanced {
		t.Fatalf("resolving vote code = %d, want advanced", code)
	}

	m, _ = store.Get(ctx, "test_m3")
	if m.Status != StatusEnded {
		t.Errorf("status = %s, want ended", m.Status)
	}
	if m.Outcome != OutcomeYesPass {
		t.Errorf("outcome = %s, want yes_pass", m.Outcome)
	}
	if m.YesVoter() != "ua" {
		t.Errorf("yes voter = %s, want ua", m.YesVoter())
	}
}

func TestVote_ContractViolations(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()

	// Unknown match.
	code, _ := store.Vote(ctx, "test_missing", "ua", VoteYes)
	if code != CodeNotFound {
		t.Errorf("vote on missing match code = %d, want %d", code, CodeNotFound)
	}

	// Wrong status.
	seedMatch(t, client, "test_m4", "ua", "ub", StatusPending)
	code, _ = store.Vote(ctx, "test_m4", "ua", VoteYes)
	if code != CodeWrongStatus {
		t.Errorf("vote on pending match code = %d, want %d", code, CodeWrongStatus)
	}

	// Not a participant.
	seedMatch(t, client, "test_m5", "ua", "ub", StatusVoteActive)
	code, _ = store.Vote(ctx, "test_m5", "stranger", VoteYes)
	if code != CodeNotParticipant {
		t.Errorf("stranger vote code = %d, want %d", code, CodeNotParticipant)
	}
}

func TestResolveExpired_ImplicitPass(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()
	seedMatch(t, client, "test_m6", "ua", "ub", StatusVoteActive)

	// One vote cast, partner idle; deadline already elapsed.
	if _, err := store.Vote(ctx, "test_m6", "ua", VoteYes); err != nil {
		t.Fatalf("Vote() error: %v", err)
	}
	client.HSet(ctx, Prefix+"test_m6", "vote_deadline", time.Now().Add(-1*time.Second).Unix())

	code, err := store.ResolveExpired(ctx, "test_m6")
	if err != nil {
		t.Fatalf("ResolveExpired() error: %v", err)
	}
	if code != CodeAdvanced {
		t.Fatalf("code = %d, want advanced", code)
	}

	m, _ := store.Get(ctx, "test_m6")
	if m.Status != StatusEnded {
		t.Errorf("status = %s, want ended", m.Status)
	}
	if m.Outcome != OutcomeYesPass {
		t.Errorf("outcome = %s, want yes_pass (idle voter counts as pass)", m.Outcome)
	}
	if m.VoteB != VotePass {
		t.Errorf("idle participant vote = %q, want pass", m.VoteB)
	}
}

func TestResolveExpired_WindowStillOpen(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()
	seedMatch(t, client, "test_m7", "ua", "ub", StatusVoteActive)
	client.HSet(ctx, Prefix+"test_m7", "vote_deadline", time.Now().Add(time.Minute).Unix())

	code, err := store.ResolveExpired(ctx, "test_m7")
	if err != nil {
		t.Fatalf("ResolveExpired() error: %v", err)
	}
	if code != CodeWaiting {
		t.Errorf("code = %d, want waiting (window open)", code)
	}
}

func TestForceEndIdempotent(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()
	seedMatch(t, client, "test_m8", "ua", "ub", StatusPending)

	code, err := store.ForceEnd(ctx, "test_m8")
	if err != nil {
		t.Fatalf("ForceEnd() error: %v", err)
	}
	if code != CodeAdvanced {
		t.Fatalf("code = %d, want advanced", code)
	}

	m, _ := store.Get(ctx, "test_m8")
	if m.Status != StatusEnded || m.Outcome != OutcomeAbandoned {
		t.Errorf("got status=%s outcome=%s, want ended/abandoned", m.Status, m.Outcome)
	}

	// Second force-end is a no-op.
	code, _ = store.ForceEnd(ctx, "test_m8")
	if code != CodeWaiting {
		t.Errorf("second force-end code = %d, want no-op", code)
	}
}

func TestCleanup(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()
	seedMatch(t, client, "test_m9", "test_ua9", "test_ub9", StatusEnded)
	client.Set(ctx, ActivePrefix+"test_ua9", "test_m9", 0)
	client.Set(ctx, ActivePrefix+"test_ub9", "test_m9", 0)
	t.Cleanup(func() {
		client.Del(ctx, ActivePrefix+"test_ua9", ActivePrefix+"test_ub9")
	})

	m, _ := store.Get(ctx, "test_m9")
	if err := store.Cleanup(ctx, m); err != nil {
		t.Fatalf("Cleanup() error: %v", err)
	}

	open, _ := store.OpenAll(ctx)
	for _, id := range open {
		if id == "test_m9" {
			t.Error("cleaned match still in open index")
		}
	}
	active, _ := store.ActiveFor(ctx, "test_ua9")
	if active != "" {
		t.Errorf("active pointer not cleared: %s", active)
	}

	// Running cleanup again changes nothing.
	if err := store.Cleanup(ctx, m); err != nil {
		t.Fatalf("second Cleanup() error: %v", err)
	}
}

func TestOutcomeForVotes(t *testing.T) {
	cases := []struct {
		a, b, want string
	}{
		{VoteYes, VoteYes, OutcomeBothYes},
		{VoteYes, VotePass, OutcomeYesPass},
		{VotePass, VoteYes, OutcomeYesPass},
		{VotePass, VotePass, OutcomeBothPass},
	}
	for _, tc := range cases {
		if got := OutcomeForVotes(tc.a, tc.b); got != tc.want {
			t.Errorf("OutcomeForVotes(%s, %s) = %s, want %s", tc.a, tc.b, got, tc.want)
		}
	}
}
