package controlplane

import (
	"sync"
	"time"

	"github.com/bytefuck/model-hub/internal/logx"
	"github.com/bytefuck/model-hub/internal/metrics"
)

// BreakerState is the circuit state for one worker id.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

type breaker struct {
	state               BreakerState
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool
	trialEpoch          uint64
}

// ownsTrial reports whether a holds the trial slot that is currently in
// flight. Epochs keep a stale admission from an earlier trial, or a request
// admitted before the breaker opened, from driving transitions.
func (br *breaker) ownsTrial(a Admission) bool {
	return a.trial && br.trialInFlight && br.trialEpoch == a.epoch
}

// BreakerSnapshot is a read-only view of one breaker.
type BreakerSnapshot struct {
	State               BreakerState
	ConsecutiveFailures int
	OpenedAt            time.Time
}

// Admission is the outcome handle for one admitted request. Exactly one of
// Success, Failure, or Release should be called when the request ends; a
// long-lived request admitted before the breaker opened cannot disturb a
// half-open trial it does not own. The zero Admission is inert.
type Admission struct {
	board    *BreakerBoard
	workerID string
	trial    bool
	epoch    uint64
}

// BreakerBoard holds one circuit breaker per worker id. Entries are created
// lazily on the first recorded failure and deliberately survive worker
// eviction: a flapping endpoint stays isolated across re-registrations.
// The open to half_open transition is lazy, evaluated on Admit rather than
// by a timer.
type BreakerBoard struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	breakers  map[string]*breaker
	now       func() time.Time
}

func NewBreakerBoard(failureThreshold int, cooldown time.Duration) *BreakerBoard {
	return &BreakerBoard{
		threshold: failureThreshold,
		cooldown:  cooldown,
		breakers:  make(map[string]*breaker),
		now:       time.Now,
	}
}

// Admit reports whether a request may be routed to the worker, returning the
// outcome handle for the request. When an open breaker's cooldown has
// elapsed, Admit transitions it to half_open and claims the single trial
// slot; a concurrent Admit during the trial is refused. Only the returned
// handle can resolve the trial it claimed.
func (b *BreakerBoard) Admit(workerID string) (Admission, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	adm := Admission{board: b, workerID: workerID}
	br, ok := b.breakers[workerID]
	if !ok || br.state == BreakerClosed {
		return adm, true
	}
	switch br.state {
	case BreakerOpen:
		if b.now().Sub(br.openedAt) < b.cooldown {
			return Admission{}, false
		}
		br.state = BreakerHalfOpen
	case BreakerHalfOpen:
		if br.trialInFlight {
			return Admission{}, false
		}
	}
	br.trialInFlight = true
	br.trialEpoch++
	adm.trial = true
	adm.epoch = br.trialEpoch
	logx.Log.Info().Str("worker_id", workerID).Msg("breaker half-open; admitting trial")
	return adm, true
}

// Success records a healthy outcome. The trial holder closes a half-open
// breaker; an ordinary admission only resets failure bookkeeping on a
// closed breaker.
func (a Admission) Success() {
	if a.board == nil {
		return
	}
	b := a.board
	b.mu.Lock()
	defer b.mu.Unlock()
	br, ok := b.breakers[a.workerID]
	if !ok {
		return
	}
	if br.ownsTrial(a) {
		br.state = BreakerClosed
		br.trialInFlight = false
		br.consecutiveFailures = 0
		logx.Log.Info().Str("worker_id", a.workerID).Msg("breaker closed")
		return
	}
	if !a.trial && br.state == BreakerClosed {
		br.consecutiveFailures = 0
	}
}

// Failure records an unhealthy outcome (backend connect error, timeout, or
// 5xx). The trial holder reopens the breaker and restarts the cooldown
// clock; an ordinary admission counts toward the threshold while the
// breaker is closed. Once the breaker is open or mid-trial, stale failures
// change nothing it is not already doing.
func (a Admission) Failure() {
	if a.board == nil {
		return
	}
	b := a.board
	b.mu.Lock()
	defer b.mu.Unlock()
	br, ok := b.breakers[a.workerID]
	if !ok {
		br = &breaker{state: BreakerClosed}
		b.breakers[a.workerID] = br
	}
	if br.ownsTrial(a) {
		br.consecutiveFailures++
		br.state = BreakerOpen
		br.openedAt = b.now()
		br.trialInFlight = false
		metrics.RecordBreakerOpen(a.workerID)
		logx.Log.Warn().Str("worker_id", a.workerID).Msg("breaker reopened after failed trial")
		return
	}
	if a.trial || br.state != BreakerClosed {
		return
	}
	br.consecutiveFailures++
	if br.consecutiveFailures >= b.threshold {
		br.state = BreakerOpen
		br.openedAt = b.now()
		metrics.RecordBreakerOpen(a.workerID)
		logx.Log.Warn().Str("worker_id", a.workerID).Int("failures", br.consecutiveFailures).Msg("breaker opened")
	}
}

// Release returns a claimed trial slot without judging the outcome. Used
// when a request ends for reasons that say nothing about worker health,
// e.g. the client disconnected mid-stream. Only the trial holder can free
// the slot.
func (a Admission) Release() {
	if a.board == nil || !a.trial {
		return
	}
	b := a.board
	b.mu.Lock()
	defer b.mu.Unlock()
	if br, ok := b.breakers[a.workerID]; ok && br.ownsTrial(a) {
		br.trialInFlight = false
	}
}

// Snapshot returns the breaker view for a worker id. Ids with no recorded
// failure report a closed breaker.
func (b *BreakerBoard) Snapshot(workerID string) BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	br, ok := b.breakers[workerID]
	if !ok {
		return BreakerSnapshot{State: BreakerClosed}
	}
	return BreakerSnapshot{
		State:               br.state,
		ConsecutiveFailures: br.consecutiveFailures,
		OpenedAt:            br.openedAt,
	}
}

// Reset removes the breaker for a worker id. Operator-only escape hatch;
// nothing in the routing path calls this.
func (b *BreakerBoard) Reset(workerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.breakers, workerID)
}
