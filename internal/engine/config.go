package engine

import "time"

// Config holds engine tuning parameters.
type Config struct {
	OpTimeout          time.Duration // per-operation deadline against the backing stores
	VoteWindow         time.Duration // voting window after both reveals
	MatchCooldown      time.Duration // rest period after a resolved match
	DisconnectCooldown time.Duration // penalty period after a disconnect
	PairingInterval    time.Duration // pairing pass cadence
	GuardianInterval   time.Duration // reconciliation sweep cadence
	StaleMatchAge      time.Duration // max age for a match stuck before vote_active
	ChurnWindow        time.Duration // lookback for the recent-outcome spin gate
	ChurnLimit         int           // max resolved matches inside ChurnWindow before spins are refused
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		OpTimeout:          3 * time.Second,
		VoteWindow:         30 * time.Second,
		MatchCooldown:      10 * time.Second,
		DisconnectCooldown: 30 * time.Second,
		PairingInterval:    2 * time.Second,
		GuardianInterval:   15 * time.Second,
		StaleMatchAge:      2 * time.Minute,
		ChurnWindow:        10 * time.Minute,
		ChurnLimit:         20,
	}
}
