package syncsvc

import (
	"sync"
	"time"
)

// backoffBase and backoffCap bound the exponential retry delay a
// misbehaving or offline peer accrues. Grounded in
// _examples/original_source/crates/lib/src/sync/state.rs's liveness
// bookkeeping; hand-rolled rather than via github.com/cenkalti/backoff
// since that package is not among the teacher's or pack's dependencies
// and this state machine is small enough to own directly (DESIGN.md).
const (
	backoffBase = 2 * time.Second
	backoffCap  = 10 * time.Minute
)

// PeerState tracks one peer's liveness for the Scheduler: when we last
// heard from it, the accumulated failure streak, and the earliest time
// it's worth retrying.
type PeerState struct {
	LastSeen      time.Time
	NextRetry     time.Time
	FailureStreak int
}

// Scheduler decides which peers are due for an outbound sync attempt,
// backing off exponentially after consecutive failures so an offline
// peer doesn't get hammered on every commit.
type Scheduler struct {
	mu    sync.Mutex
	peers map[string]*PeerState
	now   func() time.Time
}

// NewScheduler returns an empty Scheduler using wall-clock time.
func NewScheduler() *Scheduler {
	return &Scheduler{peers: make(map[string]*PeerState), now: time.Now}
}

// Due reports whether pubkey is eligible for a sync attempt right now:
// never seen, or past its computed NextRetry.
func (sc *Scheduler) Due(pubkey string) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	st, ok := sc.peers[pubkey]
	if !ok {
		return true
	}
	return !sc.now().Before(st.NextRetry)
}

// RecordSuccess resets pubkey's failure streak and marks it live.
func (sc *Scheduler) RecordSuccess(pubkey string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	now := sc.now()
	sc.peers[pubkey] = &PeerState{LastSeen: now, NextRetry: now}
}

// RecordFailure bumps pubkey's failure streak and schedules the next
// retry at base*2^(streak-1) (so the first failure waits backoffBase),
// capped at backoffCap.
func (sc *Scheduler) RecordFailure(pubkey string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	st, ok := sc.peers[pubkey]
	if !ok {
		st = &PeerState{}
		sc.peers[pubkey] = st
	}
	st.FailureStreak++
	delay := backoffBase << uint(min(st.FailureStreak-1, 16))
	if delay > backoffCap {
		delay = backoffCap
	}
	st.NextRetry = sc.now().Add(delay)
}

// State returns a copy of pubkey's tracked state, for inspection/metrics.
func (sc *Scheduler) State(pubkey string) (PeerState, bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	st, ok := sc.peers[pubkey]
	if !ok {
		return PeerState{}, false
	}
	return *st, true
}
