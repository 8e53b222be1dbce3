// Package blocklist provides the permanent never-pair-again list. Entries
// are appended to PostgreSQL for durability (the list never expires, so it
// cannot live only in Redis) and mirrored into a Redis set for the hot
// check on the pairing path.
//
//	PostgreSQL: blocklist_entries (user_a, user_b, reason, created_at)
//	Redis:      blocklist:pairs   Set of "<lo>:<hi>" pair keys
//
// Pair keys are order-independent: (a,b) and (b,a) name the same entry.
package blocklist

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// KeyPairs is the Redis set holding mirrored pair keys.
const KeyPairs = "blocklist:pairs"

// Store manages blocklist entries.
type Store struct {
	db  *sql.DB
	rdb *redis.Client
}

// NewStore creates a blocklist store over PostgreSQL and Redis. A nil db
// disables the durable layer; the Redis mirror alone serves reads.
func NewStore(db *sql.DB, rdb *redis.Client) *Store {
	return &Store{db: db, rdb: rdb}
}

// PairKey returns the canonical order-independent key for a user pair.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// Add appends a blocklist entry for the pair. Appending an already-blocked
// pair is a no-op, which keeps resolver retries harmless.
func (s *Store) Add(ctx context.Context, a, b, reason string) error {
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}

	if s.db != nil {
		const query = `
			INSERT INTO blocklist_entries (user_a, user_b, reason)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_a, user_b) DO NOTHING`

		if _, err := s.db.ExecContext(ctx, query, lo, hi, reason); err != nil {
			return fmt.Errorf("blocklist: insert %s/%s: %w", lo, hi, err)
		}
	}

	if err := s.rdb.SAdd(ctx, KeyPairs, PairKey(a, b)).Err(); err != nil {
		// The durable write succeeded; the mirror catches up on the next
		// warm. Log and carry on.
		log.Printf("[blocklist] mirror add %s: %v", PairKey(a, b), err)
	}
	return nil
}

// IsBlocked reports whether the pair may never be matched again. The Redis
// mirror answers first; on a Redis error the durable table is consulted so
// an outage cannot silently re-enable a blocked pair.
func (s *Store) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	blocked, err := s.rdb.SIsMember(ctx, KeyPairs, PairKey(a, b)).Result()
	if err == nil {
		return blocked, nil
	}
	if s.db == nil {
		return false, err
	}
	log.Printf("[blocklist] mirror check failed, falling back to postgres: %v", err)

	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}

	const query = `
		SELECT EXISTS (
			SELECT 1 FROM blocklist_entries WHERE user_a = $1 AND user_b = $2
		)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, lo, hi).Scan(&exists); err != nil {
		return false, fmt.Errorf("blocklist: check %s/%s: %w", lo, hi, err)
	}
	return exists, nil
}

// WarmCache loads every durable entry into the Redis mirror. Called at
// startup so the hot path never misses entries written before a restart.
func (s *Store) WarmCache(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT user_a, user_b FROM blocklist_entries`)
	if err != nil {
		return 0, fmt.Errorf("blocklist: warm query: %w", err)
	}
	defer rows.Close()

	loaded := 0
	pipe := s.rdb.Pipeline()
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return loaded, fmt.Errorf("blocklist: warm scan: %w", err)
		}
		pipe.SAdd(ctx, KeyPairs, PairKey(a, b))
		loaded++
	}
	if err := rows.Err(); err != nil {
		return loaded, fmt.Errorf("blocklist: warm rows: %w", err)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return loaded, fmt.Errorf("blocklist: warm mirror: %w", err)
	}
	return loaded, nil
}
