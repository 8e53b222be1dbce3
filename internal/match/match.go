// Package match stores matches and arbitrates participant votes. A match
// is a Redis hash created atomically by the pairing engine; this package
// owns every mutation after creation.
//
// Redis layout:
//
//	match:<id>          Hash: participants, status, flags, votes, outcome
//	match:open          Sorted set of non-ended match IDs, score = created_at
//	match:active:<uid>  The user's current match ID
package match

import "time"

// Match lifecycle statuses.
const (
	StatusPending    = "pending"     // created, participants not yet both acknowledged
	StatusPaired     = "paired"      // both participants acknowledged
	StatusReveal     = "reveal"      // at least one participant revealed
	StatusVoteActive = "vote_active" // both revealed; vote window open
	StatusEnded      = "ended"
)

// Vote values. The empty string means unset.
const (
	VoteYes  = "yes"
	VotePass = "pass"
)

// Outcome values for an ended match.
const (
	OutcomeBothYes   = "both_yes"
	OutcomeYesPass   = "yes_pass"
	OutcomeBothPass  = "both_pass"
	OutcomeAbandoned = "abandoned"
)

// Match is a snapshot of one match hash.
type Match struct {
	ID           string
	UserA        string
	UserB        string
	Status       string
	CreatedAt    time.Time
	VoteDeadline time.Time // zero until the vote window opens
	AckA         bool
	AckB         bool
	RevealA      bool
	RevealB      bool
	VoteA        string // yes | pass | ""
	VoteB        string
	Outcome      string // set when Status == ended
}

// IsParticipant reports whether the user is one of the two participants.
func (m *Match) IsParticipant(userID string) bool {
	return userID == m.UserA || userID == m.UserB
}

// Partner returns the other participant's ID, or "" for non-participants.
func (m *Match) Partner(userID string) string {
	switch userID {
	case m.UserA:
		return m.UserB
	case m.UserB:
		return m.UserA
	}
	return ""
}

// VoteOf returns the user's recorded vote ("" when unset).
func (m *Match) VoteOf(userID string) string {
	switch userID {
	case m.UserA:
		return m.VoteA
	case m.UserB:
		return m.VoteB
	}
	return ""
}

// Active reports whether the match is in any non-ended status.
func (m *Match) Active() bool {
	return m.Status != StatusEnded
}

// OutcomeForVotes computes the outcome from two cast votes.
func OutcomeForVotes(voteA, voteB string) string {
	switch {
	case voteA == VoteYes && voteB == VoteYes:
		return OutcomeBothYes
	case voteA == VoteYes || voteB == VoteYes:
		return OutcomeYesPass
	default:
		return OutcomeBothPass
	}
}

// YesVoter returns the participant who voted yes in a yes_pass outcome,
// or "" when the outcome has no lone yes voter.
func (m *Match) YesVoter() string {
	if m.VoteA == VoteYes && m.VoteB != VoteYes {
		return m.UserA
	}
	if m.VoteB == VoteYes && m.VoteA != VoteYes {
		return m.UserB
	}
	return ""
}
