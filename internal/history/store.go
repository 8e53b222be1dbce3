// Package history provides the durable archive of resolved match outcomes
// in PostgreSQL. It feeds two consumers: the rematch separation rule (a
// pair with a prior mutual-yes encounter is blocklisted once a later
// encounter shows continued interest) and offline analysis of vote
// behavior.
//
// Mutual-yes pairs are additionally mirrored into a Redis set so the
// resolver's prior-encounter check stays off the database hot path.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spinmatch/engine/internal/blocklist"
)

// KeyMutualYes is the Redis set of pair keys with at least one both_yes
// outcome on record.
const KeyMutualYes = "history:mutual_yes"

// Outcome values recorded for a resolved match.
const (
	OutcomeBothYes   = "both_yes"
	OutcomeYesPass   = "yes_pass"
	OutcomeBothPass  = "both_pass"
	OutcomeAbandoned = "abandoned"
)

// Store manages the outcome archive.
type Store struct {
	db  *sql.DB
	rdb *redis.Client
}

// Record is one archived outcome row.
type Record struct {
	MatchID   string
	UserA     string
	UserB     string
	Outcome   string
	CreatedAt time.Time
}

// NewStore creates an outcome archive over PostgreSQL and Redis. A nil db
// disables the durable layer; the Redis mirror alone serves reads.
func NewStore(db *sql.DB, rdb *redis.Client) *Store {
	return &Store{db: db, rdb: rdb}
}

// RecordOutcome appends a resolved outcome. Re-recording the same match is
// a no-op (the match id is the primary key), so redundant resolver or
// guardian invocations never duplicate history.
func (s *Store) RecordOutcome(ctx context.Context, matchID, userA, userB, outcome string) error {
	// Rows store the pair in canonical order so pair lookups need no OR.
	lo, hi := userA, userB
	if hi < lo {
		lo, hi = hi, lo
	}

	if s.db != nil {
		const query = `
			INSERT INTO match_outcomes (match_id, user_a, user_b, outcome)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (match_id) DO NOTHING`

		if _, err := s.db.ExecContext(ctx, query, matchID, lo, hi, outcome); err != nil {
			return fmt.Errorf("history: insert outcome for %s: %w", matchID, err)
		}
	}

	if outcome == OutcomeBothYes {
		if err := s.rdb.SAdd(ctx, KeyMutualYes, blocklist.PairKey(userA, userB)).Err(); err != nil {
			log.Printf("[history] mutual-yes mirror add %s: %v", blocklist.PairKey(userA, userB), err)
		}
	}
	return nil
}

// HadMutualYes reports whether the pair has a prior both_yes encounter on
// record. The Redis mirror answers first; a Redis error falls back to the
// durable table.
func (s *Store) HadMutualYes(ctx context.Context, a, b string) (bool, error) {
	had, err := s.rdb.SIsMember(ctx, KeyMutualYes, blocklist.PairKey(a, b)).Result()
	if err == nil {
		return had, nil
	}
	if s.db == nil {
		return false, err
	}
	log.Printf("[history] mirror check failed, falling back to postgres: %v", err)

	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}

	const query = `
		SELECT EXISTS (
			SELECT 1 FROM match_outcomes
			WHERE user_a = $1 AND user_b = $2 AND outcome = 'both_yes'
		)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, lo, hi).Scan(&exists); err != nil {
		return false, fmt.Errorf("history: mutual-yes check %s/%s: %w", lo, hi, err)
	}
	return exists, nil
}

// WarmCache loads all mutual-yes pairs into the Redis mirror at startup.
func (s *Store) WarmCache(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_a, user_b FROM match_outcomes WHERE outcome = 'both_yes'`)
	if err != nil {
		return 0, fmt.Errorf("history: warm query: %w", err)
	}
	defer rows.Close()

	loaded := 0
	pipe := s.rdb.Pipeline()
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return loaded, fmt.Errorf("history: warm scan: %w", err)
		}
		pipe.SAdd(ctx, KeyMutualYes, blocklist.PairKey(a, b))
		loaded++
	}
	if err := rows.Err(); err != nil {
		return loaded, fmt.Errorf("history: warm rows: %w", err)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return loaded, fmt.Errorf("history: warm mirror: %w", err)
	}
	return loaded, nil
}

// CountRecent returns how many outcomes a user has accumulated within the
// window, any outcome type. The spin gate uses it to refuse churners.
// Without a database the gate is disabled and the count is always zero.
func (s *Store) CountRecent(ctx context.Context, userID string, window time.Duration) (int, error) {
	if s.db == nil {
		return 0, nil
	}
	const query = `
		SELECT COUNT(*)
		FROM match_outcomes
		WHERE (user_a = $1 OR user_b = $1)
		  AND created_at >= NOW() - ($2 * INTERVAL '1 second')`

	var count int
	if err := s.db.QueryRowContext(ctx, query, userID, int64(window.Seconds())).Scan(&count); err != nil {
		return 0, fmt.Errorf("history: count recent: %w", err)
	}
	return count, nil
}
