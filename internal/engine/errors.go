package engine

import "errors"

// Sentinel errors returned by Service operations. Callers branch on these
// with errors.Is to map them onto edge responses.
var (
	// ErrIneligible means the user may not join the queue right now:
	// offline, in cooldown, or already in an active match.
	ErrIneligible = errors.New("engine: user not eligible to join the queue")

	// ErrNotQueued is returned by queue operations for users without a
	// queue entry.
	ErrNotQueued = errors.New("engine: user is not in the queue")

	// ErrNoActiveMatch is returned by match operations for users without
	// an active match.
	ErrNoActiveMatch = errors.New("engine: user has no active match")

	// ErrNotParticipant means the user is not part of the match they
	// tried to act on.
	ErrNotParticipant = errors.New("engine: user is not a participant of this match")

	// ErrInvalidState means the operation is not allowed in the match's
	// or user's current state.
	ErrInvalidState = errors.New("engine: operation not allowed in current state")

	// ErrDuplicateVote means the user already voted in this match. Votes
	// are immutable.
	ErrDuplicateVote = errors.New("engine: vote already recorded")

	// ErrInvalidVote means the submitted vote value is not yes or pass.
	ErrInvalidVote = errors.New("engine: vote must be yes or pass")

	// ErrRateLimited means the user exceeded the operation's rate limit.
	ErrRateLimited = errors.New("engine: rate limit exceeded")

	// ErrTimeout means the operation's deadline elapsed before the
	// backing stores answered.
	ErrTimeout = errors.New("engine: operation timed out")
)
