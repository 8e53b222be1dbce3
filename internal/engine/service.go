// Package engine exposes the matchmaking engine as a single service
// facade: queue entry and exit, reveal and vote progression, disconnect
// handling, and the background pairing and reconciliation loops. The edge
// servers talk to it over NATS; the stores underneath stay internal.
package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spinmatch/engine/internal/blocklist"
	"github.com/spinmatch/engine/internal/guardian"
	"github.com/spinmatch/engine/internal/history"
	"github.com/spinmatch/engine/internal/match"
	"github.com/spinmatch/engine/internal/messaging"
	"github.com/spinmatch/engine/internal/metrics"
	"github.com/spinmatch/engine/internal/pairing"
	"github.com/spinmatch/engine/internal/presence"
	"github.com/spinmatch/engine/internal/queue"
	"github.com/spinmatch/engine/internal/ratelimit"
	"github.com/spinmatch/engine/internal/state"
)

// Notifier delivers per-user events to the edge. *messaging.NATSClient
// satisfies it; tests substitute a recorder or leave it nil.
type Notifier interface {
	PublishMatchFound(userID string, data []byte) error
	PublishMatchNotify(userID string, data []byte) error
}

// SpinRequest is the NATS payload sent by an edge server when a user spins.
type SpinRequest struct {
	UserID   string         `json:"user_id"`
	Profile  queue.Profile  `json:"profile"`
	Criteria queue.Criteria `json:"criteria"`
}

// CancelRequest is the NATS payload sent when a user cancels their spin.
type CancelRequest struct {
	UserID string `json:"user_id"`
}

// HeartbeatMsg is the NATS payload for presence heartbeats.
type HeartbeatMsg struct {
	UserID string `json:"user_id"`
}

// VoteRequest is the NATS payload for a vote submission.
type VoteRequest struct {
	UserID string `json:"user_id"`
	Vote   string `json:"vote"`
}

// MatchFoundEvent announces a new pairing to one participant.
type MatchFoundEvent struct {
	MatchID   string `json:"match_id"`
	PartnerID string `json:"partner_id"`
}

// MatchNotifyEvent carries match lifecycle updates to one participant.
type MatchNotifyEvent struct {
	Type         string    `json:"type"` // vote_open, resolved, partner_disconnected
	MatchID      string    `json:"match_id"`
	Outcome      string    `json:"outcome,omitempty"`
	Mutual       bool      `json:"mutual,omitempty"`
	VoteDeadline time.Time `json:"vote_deadline,omitempty"`
}

// QueueStatus describes a waiting user's place in the pool.
type QueueStatus struct {
	Position       int           `json:"position"` // 1-based priority rank
	QueueSize      int           `json:"queue_size"`
	Score          int           `json:"score"`
	ExpansionLevel int           `json:"expansion_level"`
	Waited         time.Duration `json:"waited"`
}

// Service is the matchmaking engine facade.
type Service struct {
	client   *redis.Client
	cfg      Config
	queue    *queue.Queue
	presence *presence.Tracker
	states   *state.Store
	matches  *match.Store
	pairer   *pairing.Pairer
	blocks   *blocklist.Store
	history  *history.Store
	limiter  *ratelimit.Limiter
	guardian *guardian.Guardian
	nats     *messaging.NATSClient
	notifier Notifier
	pairKick chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewService wires the engine from its backing stores. nc may be nil;
// the engine then runs without NATS ingress or notifications.
func NewService(client *redis.Client, db *sql.DB, nc *messaging.NATSClient, cfg Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	q := queue.NewQueue(client)
	tracker := presence.NewTracker(client)
	states := state.NewStore(client)
	matches := match.NewStore(client, cfg.VoteWindow)
	blocks := blocklist.NewStore(db, client)
	hist := history.NewStore(db, client)

	s := &Service{
		client:   client,
		cfg:      cfg,
		queue:    q,
		presence: tracker,
		states:   states,
		matches:  matches,
		pairer:   pairing.New(client, q, tracker, blocks, states, pairing.DefaultConfig()),
		blocks:   blocks,
		history:  hist,
		limiter:  ratelimit.NewLimiter(client),
		nats:     nc,
		pairKick: make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	if nc != nil {
		s.notifier = nc
	}
	s.guardian = guardian.New(client, q, tracker, states, matches, s, guardian.Config{
		Interval:           cfg.GuardianInterval,
		StaleMatchAge:      cfg.StaleMatchAge,
		DisconnectCooldown: cfg.DisconnectCooldown,
		PenaltyCooldown:    cfg.DisconnectCooldown,
	})
	return s
}

// SetNotifier replaces the event sink. Intended for tests.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Start subscribes to NATS subjects and launches the pairing and guardian
// loops.
func (s *Service) Start() error {
	if s.nats != nil {
		if err := s.nats.SubscribeSpinRequest(s.handleSpinRequest); err != nil {
			return err
		}
		if err := s.nats.SubscribeSpinCancel(s.handleSpinCancel); err != nil {
			return err
		}
		if err := s.nats.SubscribeHeartbeat(s.handleHeartbeat); err != nil {
			return err
		}
		if err := s.nats.SubscribeVoteCast(s.handleVoteCast); err != nil {
			return err
		}
	}

	go s.pairLoop()
	go s.guardian.Start(s.ctx)

	log.Println("[engine] service started")
	return nil
}

// Stop shuts down the background loops.
func (s *Service) Stop() {
	s.cancel()
	log.Println("[engine] service stopped")
}

// opCtx derives the per-operation deadline.
func (s *Service) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.OpTimeout)
}

// translate maps store-level failures onto the facade's sentinels.
func translate(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

// JoinQueue admits a user into the waiting pool. The request itself counts
// as a heartbeat. Returns ErrIneligible while the user is cooling down or
// has an active match, and ErrRateLimited past the spin limit.
func (s *Service) JoinQueue(ctx context.Context, userID string, profile queue.Profile, criteria queue.Criteria) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	allowed, _ := s.limiter.Allow(ctx, userID, ratelimit.RuleSpin)
	if !allowed {
		return ErrRateLimited
	}
	if s.cfg.ChurnLimit > 0 {
		recent, err := s.history.CountRecent(ctx, userID, s.cfg.ChurnWindow)
		if err != nil {
			log.Printf("[engine] churn check %s: %v", userID, err)
		} else if recent >= s.cfg.ChurnLimit {
			return ErrRateLimited
		}
	}

	if err := s.presence.Heartbeat(ctx, userID); err != nil {
		return translate(err)
	}
	cooling, err := s.presence.InCooldown(ctx, userID)
	if err != nil {
		return translate(err)
	}
	if cooling {
		return ErrIneligible
	}

	rec, err := s.states.Get(ctx, userID)
	if err != nil {
		return translate(err)
	}
	if state.HasActiveMatch(rec.State) {
		return ErrIneligible
	}

	if rec.State == state.StateQueueWaiting {
		// Re-spin while waiting resets the entry and its wait clock.
		if err := s.queue.Enqueue(ctx, userID, profile, criteria); err != nil {
			return translate(err)
		}
		// A pairing pass may have committed a match between the state
		// read above and the enqueue. The recreated row must not
		// outlive that match.
		if id, err := s.matches.ActiveFor(ctx, userID); err == nil && id != "" {
			if err := s.queue.Dequeue(ctx, userID); err != nil {
				log.Printf("[engine] re-spin rollback %s: %v", userID, err)
			}
			return ErrIneligible
		}
		s.kickPairing()
		return nil
	}

	// Leaving cooldown or ended is part of joining; the cooldown gate
	// above already proved the rest period is over.
	if rec.State == state.StateCooldown || rec.State == state.StateEnded {
		if err := s.states.Apply(ctx, userID, state.EventCooldownExpired, ""); err != nil {
			return translate(err)
		}
	}
	if err := s.states.Apply(ctx, userID, state.EventSpinStart, ""); err != nil {
		if errors.Is(err, state.ErrInvalidTransition) {
			return ErrInvalidState
		}
		return translate(err)
	}
	if err := s.queue.Enqueue(ctx, userID, profile, criteria); err != nil {
		return translate(err)
	}
	if err := s.states.Apply(ctx, userID, state.EventQueueJoined, ""); err != nil {
		log.Printf("[engine] queue_joined %s: %v", userID, err)
	}

	s.kickPairing()
	return nil
}

// LeaveQueue voluntarily removes a user from the waiting pool. No cooldown
// is applied. Returns ErrNotQueued when there is no entry to remove.
func (s *Service) LeaveQueue(ctx context.Context, userID string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	queued, err := s.queue.IsQueued(ctx, userID)
	if err != nil {
		return translate(err)
	}
	if !queued {
		return ErrNotQueued
	}
	if err := s.queue.Dequeue(ctx, userID); err != nil {
		return translate(err)
	}
	// A pairing pass may have matched the user between the queued check
	// and the dequeue. The cancel then counts as walking out of that
	// match: end it and release the partner immediately.
	if m, err := s.activeMatch(ctx, userID); err == nil {
		s.abandonMatch(ctx, m, userID)
	} else if !errors.Is(err, ErrNoActiveMatch) {
		return err
	}
	// A voluntary cancel passes through cooldown and straight back out.
	if err := s.states.Apply(ctx, userID, state.EventDisconnect, ""); err != nil {
		log.Printf("[engine] cancel transition %s: %v", userID, err)
		return nil
	}
	if err := s.states.Apply(ctx, userID, state.EventCooldownExpired, ""); err != nil {
		log.Printf("[engine] cancel reset %s: %v", userID, err)
	}
	return nil
}

// GetQueueStatus reports a waiting user's priority rank, fairness score,
// and expansion level.
func (s *Service) GetQueueStatus(ctx context.Context, userID string) (*QueueStatus, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	entry, err := s.queue.GetEntry(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	if entry == nil {
		return nil, ErrNotQueued
	}

	entries, err := s.queue.Entries(ctx)
	if err != nil {
		return nil, translate(err)
	}
	now := time.Now()
	queue.Prioritize(entries, now)

	status := &QueueStatus{
		Position:       len(entries), // corrected below
		QueueSize:      len(entries),
		Score:          entry.CurrentScore(now),
		ExpansionLevel: entry.Level,
		Waited:         entry.Wait(now),
	}
	for i, e := range entries {
		if e.UserID == userID {
			status.Position = i + 1
			break
		}
	}
	return status, nil
}

// GetActiveMatch returns the user's current non-ended match.
func (s *Service) GetActiveMatch(ctx context.Context, userID string) (*match.Match, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.activeMatch(ctx, userID)
}

func (s *Service) activeMatch(ctx context.Context, userID string) (*match.Match, error) {
	id, err := s.matches.ActiveFor(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	if id == "" {
		return nil, ErrNoActiveMatch
	}
	m, err := s.matches.Get(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if m == nil || !m.Active() {
		return nil, ErrNoActiveMatch
	}
	return m, nil
}

// AcknowledgeMatch records that the user's client received the pairing.
// When both participants have acknowledged, the match advances to paired.
// Returns the vote deadline when the window is already open, zero
// otherwise.
func (s *Service) AcknowledgeMatch(ctx context.Context, userID string) (time.Time, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	m, err := s.activeMatch(ctx, userID)
	if err != nil {
		return time.Time{}, err
	}
	code, err := s.matches.Ack(ctx, m.ID, userID)
	if err != nil {
		return time.Time{}, translate(err)
	}
	if err := s.codeErr(code); err != nil {
		return time.Time{}, err
	}
	return m.VoteDeadline, nil
}

// CompleteReveal records that the user finished their reveal. When both
// participants have, the vote window opens; the returned bool reports that.
func (s *Service) CompleteReveal(ctx context.Context, userID string) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	m, err := s.activeMatch(ctx, userID)
	if err != nil {
		return false, err
	}
	code, err := s.matches.Reveal(ctx, m.ID, userID)
	if err != nil {
		return false, translate(err)
	}
	switch code {
	case match.CodeWaiting:
		if err := s.states.Apply(ctx, userID, state.EventRevealSignaled, ""); err != nil {
			log.Printf("[engine] reveal transition %s: %v", userID, err)
		}
		return false, nil
	case match.CodeAdvanced:
		opened, err := s.matches.Get(ctx, m.ID)
		if err != nil || opened == nil {
			return true, translate(err)
		}
		for _, uid := range []string{opened.UserA, opened.UserB} {
			// The partner may still be in paired when this reveal
			// opens the window.
			if err := s.states.Apply(ctx, uid, state.EventRevealSignaled, ""); err != nil && !errors.Is(err, state.ErrInvalidTransition) {
				log.Printf("[engine] reveal transition %s: %v", uid, err)
			}
			if err := s.states.Apply(ctx, uid, state.EventRevealComplete, ""); err != nil {
				log.Printf("[engine] vote-open transition %s: %v", uid, err)
			}
			s.notify(uid, MatchNotifyEvent{
				Type:         "vote_open",
				MatchID:      opened.ID,
				VoteDeadline: opened.VoteDeadline,
			})
		}
		return true, nil
	default:
		return false, s.codeErr(code)
	}
}

// RecordVote records the user's vote. Votes are immutable; the second vote
// resolves the outcome and ends the match.
func (s *Service) RecordVote(ctx context.Context, userID, vote string) error {
	if vote != match.VoteYes && vote != match.VotePass {
		return ErrInvalidVote
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	allowed, _ := s.limiter.Allow(ctx, userID, ratelimit.RuleVote)
	if !allowed {
		return ErrRateLimited
	}

	m, err := s.activeMatch(ctx, userID)
	if err != nil {
		return err
	}
	code, err := s.matches.Vote(ctx, m.ID, userID, vote)
	if err != nil {
		return translate(err)
	}
	switch code {
	case match.CodeWaiting:
		if err := s.states.Apply(ctx, userID, state.EventVoteCast, ""); err != nil {
			log.Printf("[engine] vote transition %s: %v", userID, err)
		}
		return nil
	case match.CodeAdvanced:
		resolved, err := s.matches.Get(ctx, m.ID)
		if err != nil || resolved == nil {
			return translate(err)
		}
		return s.ApplyOutcome(ctx, resolved)
	default:
		return s.codeErr(code)
	}
}

// Heartbeat refreshes the user's presence record.
func (s *Service) Heartbeat(ctx context.Context, userID string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	allowed, _ := s.limiter.Allow(ctx, userID, ratelimit.RuleHeartbeat)
	if !allowed {
		return ErrRateLimited
	}
	return translate(s.presence.Heartbeat(ctx, userID))
}

// HandleDisconnect cleans up after a user drops: their queue entry is
// removed, any active match is terminated as abandoned, the partner is
// released without penalty, and the disconnecting user enters cooldown.
func (s *Service) HandleDisconnect(ctx context.Context, userID string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.queue.Dequeue(ctx, userID); err != nil {
		log.Printf("[engine] disconnect dequeue %s: %v", userID, err)
	}

	m, err := s.activeMatch(ctx, userID)
	if err == nil {
		s.abandonMatch(ctx, m, userID)
	} else if !errors.Is(err, ErrNoActiveMatch) {
		return err
	}

	if err := s.states.Apply(ctx, userID, state.EventDisconnect, ""); err != nil && !errors.Is(err, state.ErrInvalidTransition) {
		return translate(err)
	}
	if err := s.presence.SetCooldown(ctx, userID, s.cfg.DisconnectCooldown); err != nil {
		return translate(err)
	}
	return translate(s.presence.MarkOffline(ctx, userID))
}

// abandonMatch force-ends a match whose participant dropped. The partner
// walks away clean.
func (s *Service) abandonMatch(ctx context.Context, m *match.Match, leaver string) {
	if _, err := s.matches.ForceEnd(ctx, m.ID); err != nil {
		log.Printf("[engine] force end %s: %v", m.ID, err)
		return
	}
	if err := s.history.RecordOutcome(ctx, m.ID, m.UserA, m.UserB, match.OutcomeAbandoned); err != nil {
		log.Printf("[engine] record abandoned %s: %v", m.ID, err)
	}
	metrics.OutcomesTotal.WithLabelValues(match.OutcomeAbandoned).Inc()

	partner := m.Partner(leaver)
	if err := s.states.Repair(ctx, partner, state.StateIdle, ""); err != nil {
		log.Printf("[engine] release partner %s: %v", partner, err)
	}
	s.notify(partner, MatchNotifyEvent{
		Type:    "partner_disconnected",
		MatchID: m.ID,
		Outcome: match.OutcomeAbandoned,
	})

	ended, err := s.matches.Get(ctx, m.ID)
	if err != nil || ended == nil {
		return
	}
	if err := s.matches.Cleanup(ctx, ended); err != nil {
		log.Printf("[engine] cleanup %s: %v", m.ID, err)
	}
}

// ApplyOutcome performs the side effects of a resolved outcome: history
// and blocklist writes, the honest-yes boost, cooldowns, state
// transitions, cleanup, and notifications. It also serves the guardian
// for matches resolved by implicit pass.
func (s *Service) ApplyOutcome(ctx context.Context, m *match.Match) error {
	// The prior-history check must precede the write: it asks about
	// earlier encounters, not this one.
	prior, err := s.history.HadMutualYes(ctx, m.UserA, m.UserB)
	if err != nil {
		log.Printf("[engine] history check %s/%s: %v", m.UserA, m.UserB, err)
	}
	if err := s.history.RecordOutcome(ctx, m.ID, m.UserA, m.UserB, m.Outcome); err != nil {
		log.Printf("[engine] record outcome %s: %v", m.ID, err)
	}

	// A pair that once reached mutual yes and meets again with anyone
	// still interested gets separated for good. Mutual passes on a
	// rematch leave the pair alone.
	if prior && (m.Outcome == match.OutcomeBothYes || m.Outcome == match.OutcomeYesPass) {
		if err := s.blocks.Add(ctx, m.UserA, m.UserB, "rematch after mutual yes"); err != nil {
			log.Printf("[engine] blocklist %s/%s: %v", m.UserA, m.UserB, err)
		}
	}

	// The honest yes in a yes/pass split earns a priority boost for the
	// next spin.
	if m.Outcome == match.OutcomeYesPass {
		if voter := m.YesVoter(); voter != "" {
			if err := s.queue.AddBoost(ctx, voter); err != nil {
				log.Printf("[engine] boost %s: %v", voter, err)
			}
		}
	}

	for _, uid := range []string{m.UserA, m.UserB} {
		if err := s.states.Apply(ctx, uid, state.EventVoteResolved, ""); err != nil && !errors.Is(err, state.ErrInvalidTransition) {
			log.Printf("[engine] resolve transition %s: %v", uid, err)
		}
		if err := s.presence.SetCooldown(ctx, uid, s.cfg.MatchCooldown); err != nil {
			log.Printf("[engine] cooldown %s: %v", uid, err)
		}
		s.notify(uid, MatchNotifyEvent{
			Type:    "resolved",
			MatchID: m.ID,
			Outcome: m.Outcome,
			Mutual:  m.Outcome == match.OutcomeBothYes,
		})
	}

	if err := s.matches.Cleanup(ctx, m); err != nil {
		log.Printf("[engine] cleanup %s: %v", m.ID, err)
	}
	metrics.OutcomesTotal.WithLabelValues(m.Outcome).Inc()
	return nil
}

// TriggerPairing runs one pairing pass and announces the created matches.
func (s *Service) TriggerPairing(ctx context.Context) ([]pairing.Pair, error) {
	pairs, err := s.pairer.AttemptPairing(ctx)
	if err != nil && !errors.Is(err, pairing.ErrLockContention) {
		return pairs, translate(err)
	}
	for _, p := range pairs {
		metrics.PairsCreatedTotal.Inc()
		metrics.WaitDuration.Observe(p.WaitA.Seconds())
		metrics.WaitDuration.Observe(p.WaitB.Seconds())

		dataA, _ := json.Marshal(MatchFoundEvent{MatchID: p.MatchID, PartnerID: p.UserB})
		dataB, _ := json.Marshal(MatchFoundEvent{MatchID: p.MatchID, PartnerID: p.UserA})
		s.publishFound(p.UserA, dataA)
		s.publishFound(p.UserB, dataB)
	}
	return pairs, nil
}

// RunGuardianSweep runs one reconciliation sweep outside the cadence.
func (s *Service) RunGuardianSweep(ctx context.Context) (*guardian.HealthReport, error) {
	return s.guardian.RunSweep(ctx)
}

// kickPairing requests an immediate pairing pass without blocking.
func (s *Service) kickPairing() {
	select {
	case s.pairKick <- struct{}{}:
	default:
	}
}

// pairLoop runs pairing passes on the configured cadence and whenever a
// join kicks it.
func (s *Service) pairLoop() {
	ticker := time.NewTicker(s.cfg.PairingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			log.Println("[engine] pairing loop stopped")
			return
		case <-ticker.C:
		case <-s.pairKick:
		}
		if _, err := s.TriggerPairing(s.ctx); err != nil {
			log.Printf("[engine] pairing pass: %v", err)
		}
	}
}

func (s *Service) handleSpinRequest(data []byte) {
	var req SpinRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[engine] invalid spin request: %v", err)
		return
	}
	if err := s.JoinQueue(s.ctx, req.UserID, req.Profile, req.Criteria); err != nil {
		log.Printf("[engine] join %s: %v", req.UserID, err)
	}
}

func (s *Service) handleSpinCancel(data []byte) {
	var req CancelRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[engine] invalid cancel request: %v", err)
		return
	}
	if err := s.LeaveQueue(s.ctx, req.UserID); err != nil && !errors.Is(err, ErrNotQueued) {
		log.Printf("[engine] cancel %s: %v", req.UserID, err)
	}
}

func (s *Service) handleHeartbeat(data []byte) {
	var msg HeartbeatMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("[engine] invalid heartbeat: %v", err)
		return
	}
	if err := s.Heartbeat(s.ctx, msg.UserID); err != nil && !errors.Is(err, ErrRateLimited) {
		log.Printf("[engine] heartbeat %s: %v", msg.UserID, err)
	}
}

func (s *Service) handleVoteCast(data []byte) {
	var req VoteRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("[engine] invalid vote: %v", err)
		return
	}
	if err := s.RecordVote(s.ctx, req.UserID, req.Vote); err != nil {
		log.Printf("[engine] vote %s: %v", req.UserID, err)
	}
}

// codeErr maps match store result codes onto the facade's sentinels.
func (s *Service) codeErr(code int) error {
	switch code {
	case match.CodeAdvanced, match.CodeWaiting:
		return nil
	case match.CodeNotFound:
		return ErrNoActiveMatch
	case match.CodeWrongStatus:
		return ErrInvalidState
	case match.CodeNotParticipant:
		return ErrNotParticipant
	case match.CodeDuplicate:
		return ErrDuplicateVote
	default:
		return ErrInvalidState
	}
}

func (s *Service) notify(userID string, event MatchNotifyEvent) {
	if s.notifier == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.notifier.PublishMatchNotify(userID, data); err != nil {
		log.Printf("[engine] notify %s: %v", userID, err)
	}
}

func (s *Service) publishFound(userID string, data []byte) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishMatchFound(userID, data); err != nil {
		log.Printf("[engine] match found notify %s: %v", userID, err)
	}
}
