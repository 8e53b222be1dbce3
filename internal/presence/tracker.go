// Package presence tracks user liveness and cooldown windows in Redis.
// Each user has a presence hash:
//
//	Key:   presence:<user_id>
//	Field: last_heartbeat  (unix seconds of the most recent heartbeat)
//	Field: cooldown_until  (unix seconds; 0 or absent when no cooldown)
//
// A user is considered online when their last heartbeat is within
// OnlineWindow. The hash carries a TTL so records for users who never
// return expire on their own.
package presence

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Prefix is the Redis key prefix for presence hashes.
	Prefix = "presence:"

	// OnlineWindow is how recent a heartbeat must be for a user to count
	// as online.
	OnlineWindow = 30 * time.Second

	// recordTTL is the time-to-live for presence hashes. Long enough to
	// outlive any cooldown the engine hands out.
	recordTTL = 2 * time.Hour
)

// Tracker manages presence records in Redis.
type Tracker struct {
	client *redis.Client
}

// NewTracker creates a presence tracker using the provided Redis client.
func NewTracker(client *redis.Client) *Tracker {
	return &Tracker{client: client}
}

// Heartbeat records a liveness signal for the user and refreshes the TTL.
func (t *Tracker) Heartbeat(ctx context.Context, userID string) error {
	key := Prefix + userID
	pipe := t.client.Pipeline()
	pipe.HSet(ctx, key, "last_heartbeat", time.Now().Unix())
	pipe.Expire(ctx, key, recordTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// MarkOffline clears the user's heartbeat so they immediately read as
// offline. Called on explicit disconnects; the cooldown field is preserved.
func (t *Tracker) MarkOffline(ctx context.Context, userID string) error {
	return t.client.HSet(ctx, Prefix+userID, "last_heartbeat", 0).Err()
}

// IsOnline reports whether the user has heartbeated within OnlineWindow.
func (t *Tracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	val, err := t.client.HGet(ctx, Prefix+userID, "last_heartbeat").Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	last, err := strconv.ParseInt(val, 10, 64)
	if err != nil || last == 0 {
		return false, nil
	}
	return time.Since(time.Unix(last, 0)) <= OnlineWindow, nil
}

// LastHeartbeat returns the time of the user's most recent heartbeat.
// The zero time is returned when no heartbeat has ever been recorded.
func (t *Tracker) LastHeartbeat(ctx context.Context, userID string) (time.Time, error) {
	val, err := t.client.HGet(ctx, Prefix+userID, "last_heartbeat").Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	last, err := strconv.ParseInt(val, 10, 64)
	if err != nil || last == 0 {
		return time.Time{}, nil
	}
	return time.Unix(last, 0), nil
}

// SetCooldown stamps a cooldown expiry duration from now. A user in
// cooldown may not re-enter the matching queue until the expiry passes.
func (t *Tracker) SetCooldown(ctx context.Context, userID string, duration time.Duration) error {
	key := Prefix + userID
	until := time.Now().Add(duration).Unix()
	pipe := t.client.Pipeline()
	pipe.HSet(ctx, key, "cooldown_until", until)
	pipe.Expire(ctx, key, recordTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// ClearCooldown removes any cooldown stamp for the user.
func (t *Tracker) ClearCooldown(ctx context.Context, userID string) error {
	return t.client.HSet(ctx, Prefix+userID, "cooldown_until", 0).Err()
}

// InCooldown reports whether the user's cooldown expiry is still in the
// future. It is a pure time comparison against the stored stamp.
func (t *Tracker) InCooldown(ctx context.Context, userID string) (bool, error) {
	expiry, err := t.CooldownExpiry(ctx, userID)
	if err != nil {
		return false, err
	}
	return expiry.After(time.Now()), nil
}

// CooldownExpiry returns the user's cooldown expiry time. The zero time is
// returned when no cooldown is set.
func (t *Tracker) CooldownExpiry(ctx context.Context, userID string) (time.Time, error) {
	val, err := t.client.HGet(ctx, Prefix+userID, "cooldown_until").Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	until, err := strconv.ParseInt(val, 10, 64)
	if err != nil || until == 0 {
		return time.Time{}, nil
	}
	return time.Unix(until, 0), nil
}
