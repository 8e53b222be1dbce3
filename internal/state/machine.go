// Package state implements the per-user lifecycle state machine. It is the
// single owner of state records: every other component requests changes by
// applying an event, and any event not listed in the transition table for
// the user's current state is rejected.
package state

import "errors"

// ErrInvalidTransition is returned when an event is not allowed from the
// user's current state. Callers may safely treat it as a no-op: the state
// record is left untouched.
var ErrInvalidTransition = errors.New("state: transition not allowed from current state")

// State is a user's lifecycle state.
type State string

const (
	StateIdle         State = "idle"
	StateSpinActive   State = "spin_active"
	StateQueueWaiting State = "queue_waiting"
	StatePaired       State = "paired"
	StateReveal       State = "reveal"
	StateVoteActive   State = "vote_active"
	StateEnded        State = "ended"
	StateCooldown     State = "cooldown"
)

// Event is a lifecycle event applied to a user's state record.
type Event string

const (
	// EventSpinStart begins a new matching round.
	EventSpinStart Event = "spin_start"
	// EventQueueJoined confirms the user's queue entry was created.
	EventQueueJoined Event = "queue_joined"
	// EventPaired is applied to both users when a match is created.
	EventPaired Event = "paired_event"
	// EventRevealSignaled is applied when a user completes their reveal.
	EventRevealSignaled Event = "reveal_signaled"
	// EventRevealComplete is applied to both users when both have revealed
	// and the vote window opens. Either participant may still be in the
	// paired state when their partner's reveal opens the window.
	EventRevealComplete Event = "reveal_complete"
	// EventVoteCast records that the user voted; the state only leaves
	// vote_active when the outcome resolves.
	EventVoteCast Event = "vote_cast"
	// EventVoteResolved is applied to both users when the second vote (or
	// an implicit pass) resolves the match outcome.
	EventVoteResolved Event = "vote_resolved"
	// EventDisconnect moves any non-terminal state into cooldown.
	EventDisconnect Event = "disconnect"
	// EventCooldownExpired returns a rested user to idle.
	EventCooldownExpired Event = "cooldown_expired"
)

// transition defines the allowed source states and destination for an event.
type transition struct {
	sources []State
	dest    State
}

// transitions is the exhaustive table. Events absent from a state are
// invalid there; there is no wildcard handling.
var transitions = map[Event]transition{
	EventSpinStart: {
		sources: []State{StateIdle, StateEnded, StateCooldown},
		dest:    StateSpinActive,
	},
	EventQueueJoined: {
		sources: []State{StateSpinActive},
		dest:    StateQueueWaiting,
	},
	EventPaired: {
		sources: []State{StateQueueWaiting},
		dest:    StatePaired,
	},
	EventRevealSignaled: {
		sources: []State{StatePaired},
		dest:    StateReveal,
	},
	EventRevealComplete: {
		sources: []State{StatePaired, StateReveal},
		dest:    StateVoteActive,
	},
	EventVoteCast: {
		sources: []State{StateVoteActive},
		dest:    StateVoteActive,
	},
	EventVoteResolved: {
		sources: []State{StateVoteActive},
		dest:    StateEnded,
	},
	EventDisconnect: {
		sources: []State{StateIdle, StateSpinActive, StateQueueWaiting, StatePaired, StateReveal, StateVoteActive},
		dest:    StateCooldown,
	},
	EventCooldownExpired: {
		sources: []State{StateCooldown, StateEnded},
		dest:    StateIdle,
	},
}

// Next returns the destination state for applying event from current.
// Applying an event whose destination equals the current state is a valid
// no-op (this is what makes re-delivered events idempotent).
func Next(current State, event Event) (State, error) {
	tr, ok := transitions[event]
	if !ok {
		return current, ErrInvalidTransition
	}
	if current == tr.dest {
		return current, nil
	}
	for _, src := range tr.sources {
		if src == current {
			return tr.dest, nil
		}
	}
	return current, ErrInvalidTransition
}

// HasActiveMatch reports whether the state implies an associated match.
func HasActiveMatch(s State) bool {
	return s == StatePaired || s == StateReveal || s == StateVoteActive
}

// IsWaiting reports whether the state implies a queue entry should exist.
func IsWaiting(s State) bool {
	return s == StateQueueWaiting
}
