// Package guardian implements the reconciliation sweep that keeps the
// engine's queue, matches, and state records mutually consistent. Every
// repair is idempotent: a second sweep immediately after the first finds
// nothing left to fix.
package guardian

import (
	"context"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spinmatch/engine/internal/match"
	"github.com/spinmatch/engine/internal/metrics"
	"github.com/spinmatch/engine/internal/presence"
	"github.com/spinmatch/engine/internal/queue"
	"github.com/spinmatch/engine/internal/state"
)

// Outcomes applies the side effects of a resolved match outcome (fairness
// boost, cooldowns, blocklist/history writes, notifications). The engine
// facade implements it; the guardian calls it for matches it resolves with
// implicit passes.
type Outcomes interface {
	ApplyOutcome(ctx context.Context, m *match.Match) error
}

// Config holds guardian tuning parameters.
type Config struct {
	Interval           time.Duration // sweep cadence
	StaleMatchAge      time.Duration // max age for a match stuck before vote_active
	DisconnectCooldown time.Duration // cooldown applied to users swept out as offline
	PenaltyCooldown    time.Duration // disconnect-equivalent penalty on force-ended matches
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:           15 * time.Second,
		StaleMatchAge:      2 * time.Minute,
		DisconnectCooldown: 30 * time.Second,
		PenaltyCooldown:    30 * time.Second,
	}
}

// HealthReport summarizes one sweep.
type HealthReport struct {
	Waiting              int           `json:"waiting"`
	OpenMatches          int           `json:"open_matches"`
	GhostsRemoved        int           `json:"ghosts_removed"`
	StaleMatchesEnded    int           `json:"stale_matches_ended"`
	ExpiredVotesResolved int           `json:"expired_votes_resolved"`
	StatesRepaired       int           `json:"states_repaired"`
	AvgWait              time.Duration `json:"avg_wait"`
	MaxWait              time.Duration `json:"max_wait"`
	Duration             time.Duration `json:"duration"`
	Skipped              bool          `json:"skipped"` // previous sweep still running
}

// Guardian audits and repairs engine state on a fixed cadence.
type Guardian struct {
	client   *redis.Client
	queue    *queue.Queue
	presence *presence.Tracker
	states   *state.Store
	matches  *match.Store
	outcomes Outcomes
	cfg      Config
	running  atomic.Bool
}

// New creates a guardian. outcomes may be nil, in which case matches
// resolved by implicit pass skip their outcome side effects (tests only).
func New(client *redis.Client, q *queue.Queue, tracker *presence.Tracker, states *state.Store, matches *match.Store, outcomes Outcomes, cfg Config) *Guardian {
	return &Guardian{
		client:   client,
		queue:    q,
		presence: tracker,
		states:   states,
		matches:  matches,
		outcomes: outcomes,
		cfg:      cfg,
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (g *Guardian) Start(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.Interval)
	defer ticker.Stop()

	log.Printf("[guardian] started (interval: %s)", g.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("[guardian] stopped")
			return
		case <-ticker.C:
			report, err := g.RunSweep(ctx)
			if err != nil {
				log.Printf("[guardian] sweep failed: %v", err)
				continue
			}
			if report.Skipped {
				log.Println("[guardian] sweep skipped, previous still running")
			}
		}
	}
}

// RunSweep performs one coordinated sweep. A sweep that would overlap a
// still-running one is skipped and reported as such rather than stacking.
func (g *Guardian) RunSweep(ctx context.Context) (*HealthReport, error) {
	if !g.running.CompareAndSwap(false, true) {
		return &HealthReport{Skipped: true}, nil
	}
	defer g.running.Store(false)

	started := time.Now()
	report := &HealthReport{}

	if err := g.sweepQueue(ctx, report); err != nil {
		return report, err
	}
	if err := g.sweepMatches(ctx, report); err != nil {
		return report, err
	}
	if err := g.sweepStates(ctx, report); err != nil {
		return report, err
	}

	report.Duration = time.Since(started)
	g.publishMetrics(report)

	if report.GhostsRemoved+report.StaleMatchesEnded+report.ExpiredVotesResolved+report.StatesRepaired > 0 {
		log.Printf("[guardian] sweep repaired: ghosts=%d stale_matches=%d expired_votes=%d states=%d (%.0fms)",
			report.GhostsRemoved, report.StaleMatchesEnded, report.ExpiredVotesResolved,
			report.StatesRepaired, report.Duration.Seconds()*1000)
	}
	return report, nil
}

// sweepQueue removes queue rows whose user is offline, cooling down, or no
// longer in a waiting state, and gathers wait statistics for the rest.
func (g *Guardian) sweepQueue(ctx context.Context, report *HealthReport) error {
	ids, err := g.queue.Members(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	var totalWait time.Duration

	for _, uid := range ids {
		entry, err := g.queue.GetEntry(ctx, uid)
		if err != nil {
			continue
		}
		if entry == nil {
			// Membership with no entry hash: remove the bare row.
			if err := g.queue.Dequeue(ctx, uid); err == nil {
				report.GhostsRemoved++
			}
			continue
		}

		online, err := g.presence.IsOnline(ctx, uid)
		if err != nil {
			continue
		}
		if !online {
			g.removeGhost(ctx, uid, report)
			// A user who vanished while waiting pays the disconnect
			// cooldown before re-entry.
			if err := g.states.Apply(ctx, uid, state.EventDisconnect, ""); err != nil {
				log.Printf("[guardian] disconnect transition %s: %v", uid, err)
			}
			if err := g.presence.SetCooldown(ctx, uid, g.cfg.DisconnectCooldown); err != nil {
				log.Printf("[guardian] cooldown %s: %v", uid, err)
			}
			continue
		}

		cooling, err := g.presence.InCooldown(ctx, uid)
		if err == nil && cooling {
			g.removeGhost(ctx, uid, report)
			continue
		}

		rec, err := g.states.Get(ctx, uid)
		if err == nil && !state.IsWaiting(rec.State) && rec.State != state.StateSpinActive {
			// The state machine says this user is elsewhere (matched,
			// ended, idle). The queue row is the lie; drop it.
			g.removeGhost(ctx, uid, report)
			continue
		}

		report.Waiting++
		wait := entry.Wait(now)
		totalWait += wait
		if wait > report.MaxWait {
			report.MaxWait = wait
		}
	}

	if report.Waiting > 0 {
		report.AvgWait = totalWait / time.Duration(report.Waiting)
	}
	return nil
}

func (g *Guardian) removeGhost(ctx context.Context, uid string, report *HealthReport) {
	if err := g.queue.Dequeue(ctx, uid); err != nil {
		log.Printf("[guardian] dequeue ghost %s: %v", uid, err)
		return
	}
	report.GhostsRemoved++
}

// sweepMatches force-terminates matches stuck before the vote window past
// the staleness threshold and resolves vote windows that elapsed without
// both votes.
func (g *Guardian) sweepMatches(ctx context.Context, report *HealthReport) error {
	ids, err := g.matches.OpenAll(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	// The open index is scored by creation time, so it answers the
	// staleness question without reading every hash.
	stale, err := g.matches.OpenBefore(ctx, now.Add(-g.cfg.StaleMatchAge))
	if err != nil {
		return err
	}
	staleSet := make(map[string]bool, len(stale))
	for _, id := range stale {
		staleSet[id] = true
	}

	for _, id := range ids {
		m, err := g.matches.Get(ctx, id)
		if err != nil {
			continue
		}
		if m == nil {
			// Index entry with no hash: drop it.
			g.client.ZRem(ctx, match.KeyOpen, id)
			continue
		}

		switch m.Status {
		case match.StatusEnded:
			// A resolver ended it but crashed before cleanup.
			if err := g.matches.Cleanup(ctx, m); err == nil {
				g.resyncEndedParticipants(ctx, m, report)
			}

		case match.StatusVoteActive:
			if !m.VoteDeadline.IsZero() && now.After(m.VoteDeadline) {
				code, err := g.matches.ResolveExpired(ctx, id)
				if err != nil || code != match.CodeAdvanced {
					continue
				}
				report.ExpiredVotesResolved++
				resolved, err := g.matches.Get(ctx, id)
				if err != nil || resolved == nil {
					continue
				}
				if g.outcomes != nil {
					if err := g.outcomes.ApplyOutcome(ctx, resolved); err != nil {
						log.Printf("[guardian] outcome for %s: %v", id, err)
					}
				}
				if err := g.matches.Cleanup(ctx, resolved); err != nil {
					log.Printf("[guardian] cleanup %s: %v", id, err)
				}
			}

		default: // pending, paired, reveal
			if !staleSet[id] {
				continue
			}
			if _, err := g.matches.ForceEnd(ctx, id); err != nil {
				log.Printf("[guardian] force end %s: %v", id, err)
				continue
			}
			report.StaleMatchesEnded++
			ended, err := g.matches.Get(ctx, id)
			if err != nil || ended == nil {
				continue
			}
			if g.outcomes != nil {
				if err := g.outcomes.ApplyOutcome(ctx, ended); err != nil {
					log.Printf("[guardian] outcome for %s: %v", id, err)
				}
			}
			if err := g.matches.Cleanup(ctx, ended); err != nil {
				log.Printf("[guardian] cleanup %s: %v", id, err)
			}
			// Disconnect-equivalent penalty for letting the match rot.
			for _, uid := range []string{ended.UserA, ended.UserB} {
				if err := g.states.Repair(ctx, uid, state.StateCooldown, ""); err != nil {
					log.Printf("[guardian] repair %s: %v", uid, err)
					continue
				}
				if err := g.presence.SetCooldown(ctx, uid, g.cfg.PenaltyCooldown); err != nil {
					log.Printf("[guardian] cooldown %s: %v", uid, err)
				}
				report.StatesRepaired++
			}
		}
	}

	remaining, err := g.matches.OpenAll(ctx)
	if err == nil {
		report.OpenMatches = len(remaining)
	}
	return nil
}

// resyncEndedParticipants moves participants of an ended match out of any
// match-holding state their record still claims.
func (g *Guardian) resyncEndedParticipants(ctx context.Context, m *match.Match, report *HealthReport) {
	for _, uid := range []string{m.UserA, m.UserB} {
		rec, err := g.states.Get(ctx, uid)
		if err != nil {
			continue
		}
		if state.HasActiveMatch(rec.State) && rec.MatchID == m.ID {
			if err := g.states.Repair(ctx, uid, state.StateEnded, ""); err != nil {
				log.Printf("[guardian] repair %s: %v", uid, err)
				continue
			}
			report.StatesRepaired++
		}
	}
}

// sweepStates walks every state record and repairs claims that the queue
// and match stores contradict.
func (g *Guardian) sweepStates(ctx context.Context, report *HealthReport) error {
	iter := g.client.Scan(ctx, 0, state.Prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		uid := strings.TrimPrefix(iter.Val(), state.Prefix)
		rec, err := g.states.Get(ctx, uid)
		if err != nil {
			continue
		}

		switch {
		case state.HasActiveMatch(rec.State):
			m, err := g.matches.Get(ctx, rec.MatchID)
			if err != nil {
				continue
			}
			if m == nil || !m.Active() || !m.IsParticipant(uid) {
				// Claims a match that is gone or over.
				if err := g.states.Repair(ctx, uid, state.StateIdle, ""); err == nil {
					report.StatesRepaired++
				}
			}

		case state.IsWaiting(rec.State):
			queued, err := g.queue.IsQueued(ctx, uid)
			if err != nil {
				continue
			}
			if !queued {
				if err := g.states.Repair(ctx, uid, state.StateIdle, ""); err == nil {
					report.StatesRepaired++
				}
			}

		case rec.State == state.StateCooldown || rec.State == state.StateEnded:
			expiry, err := g.presence.CooldownExpiry(ctx, uid)
			if err != nil {
				continue
			}
			if expiry.IsZero() || expiry.Before(time.Now()) {
				if err := g.states.Apply(ctx, uid, state.EventCooldownExpired, ""); err != nil {
					log.Printf("[guardian] cooldown expiry %s: %v", uid, err)
				}
			}
		}
	}
	return iter.Err()
}

func (g *Guardian) publishMetrics(report *HealthReport) {
	metrics.QueueSize.Set(float64(report.Waiting))
	metrics.ActiveMatches.Set(float64(report.OpenMatches))
	metrics.GuardianRepairsTotal.WithLabelValues("ghost_entry").Add(float64(report.GhostsRemoved))
	metrics.GuardianRepairsTotal.WithLabelValues("stale_match").Add(float64(report.StaleMatchesEnded))
	metrics.GuardianRepairsTotal.WithLabelValues("expired_vote").Add(float64(report.ExpiredVotesResolved))
	metrics.GuardianRepairsTotal.WithLabelValues("state_resync").Add(float64(report.StatesRepaired))
	metrics.SweepDuration.Observe(report.Duration.Seconds())
}
