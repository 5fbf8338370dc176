package controlplane

import (
	"testing"
	"time"
)

// failTimes drives failures through admitted requests, as the completion
// handler does.
func failTimes(t *testing.T, b *BreakerBoard, id string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		adm, ok := b.Admit(id)
		if !ok {
			t.Fatalf("admission refused while recording failure %d", i)
		}
		adm.Failure()
	}
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewBreakerBoard(5, 30*time.Second)
	failTimes(t, b, "w1", 4)
	if s := b.Snapshot("w1"); s.State != BreakerClosed || s.ConsecutiveFailures != 4 {
		t.Fatalf("expected closed with 4 failures, got %+v", s)
	}
	failTimes(t, b, "w1", 1)
	if s := b.Snapshot("w1"); s.State != BreakerOpen {
		t.Fatalf("expected open after threshold, got %+v", s)
	}
	if _, ok := b.Admit("w1"); ok {
		t.Fatalf("open breaker must refuse admission before cooldown")
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreakerBoard(5, 30*time.Second)
	failTimes(t, b, "w1", 2)
	adm, _ := b.Admit("w1")
	adm.Success()
	if s := b.Snapshot("w1"); s.ConsecutiveFailures != 0 {
		t.Fatalf("expected failures reset, got %d", s.ConsecutiveFailures)
	}
}

func TestBreakerHalfOpenSingleTrial(t *testing.T) {
	b := NewBreakerBoard(1, 30*time.Second)
	base := time.Now()
	b.now = func() time.Time { return base }
	failTimes(t, b, "w1", 1)

	// Cooldown not elapsed yet.
	b.now = func() time.Time { return base.Add(29 * time.Second) }
	if _, ok := b.Admit("w1"); ok {
		t.Fatalf("cooldown not elapsed; admission must be refused")
	}

	b.now = func() time.Time { return base.Add(31 * time.Second) }
	if _, ok := b.Admit("w1"); !ok {
		t.Fatalf("expected trial admission after cooldown")
	}
	if s := b.Snapshot("w1"); s.State != BreakerHalfOpen {
		t.Fatalf("expected half_open, got %+v", s)
	}
	if _, ok := b.Admit("w1"); ok {
		t.Fatalf("second concurrent admission during trial must be refused")
	}
}

func TestBreakerTrialSuccessCloses(t *testing.T) {
	b := NewBreakerBoard(1, time.Second)
	base := time.Now()
	b.now = func() time.Time { return base }
	failTimes(t, b, "w1", 1)
	b.now = func() time.Time { return base.Add(2 * time.Second) }
	trial, ok := b.Admit("w1")
	if !ok {
		t.Fatalf("expected trial admission")
	}
	trial.Success()
	s := b.Snapshot("w1")
	if s.State != BreakerClosed || s.ConsecutiveFailures != 0 {
		t.Fatalf("expected closed with zero failures, got %+v", s)
	}
	if _, ok := b.Admit("w1"); !ok {
		t.Fatalf("closed breaker must admit")
	}
}

func TestBreakerTrialFailureReopensAndRestartsClock(t *testing.T) {
	b := NewBreakerBoard(1, 10*time.Second)
	base := time.Now()
	b.now = func() time.Time { return base }
	failTimes(t, b, "w1", 1)

	trialTime := base.Add(11 * time.Second)
	b.now = func() time.Time { return trialTime }
	trial, ok := b.Admit("w1")
	if !ok {
		t.Fatalf("expected trial admission")
	}
	trial.Failure()
	if s := b.Snapshot("w1"); s.State != BreakerOpen || !s.OpenedAt.Equal(trialTime) {
		t.Fatalf("expected reopened with clock restarted at failure time, got %+v", s)
	}

	// Cooldown counts from the failed trial, not the original open.
	b.now = func() time.Time { return trialTime.Add(9 * time.Second) }
	if _, ok := b.Admit("w1"); ok {
		t.Fatalf("expected refusal before the restarted cooldown elapses")
	}
	b.now = func() time.Time { return trialTime.Add(11 * time.Second) }
	if _, ok := b.Admit("w1"); !ok {
		t.Fatalf("expected trial after restarted cooldown")
	}
}

func TestBreakerReleaseKeepsHalfOpen(t *testing.T) {
	b := NewBreakerBoard(1, time.Second)
	base := time.Now()
	b.now = func() time.Time { return base }
	failTimes(t, b, "w1", 1)
	b.now = func() time.Time { return base.Add(2 * time.Second) }
	trial, ok := b.Admit("w1")
	if !ok {
		t.Fatalf("expected trial admission")
	}
	trial.Release()
	if s := b.Snapshot("w1"); s.State != BreakerHalfOpen {
		t.Fatalf("release must not change state, got %+v", s)
	}
	if _, ok := b.Admit("w1"); !ok {
		t.Fatalf("released trial slot must be claimable again")
	}
}

func TestBreakerStaleCompletionCannotTouchTrial(t *testing.T) {
	b := NewBreakerBoard(5, 30*time.Second)
	base := time.Now()
	b.now = func() time.Time { return base }

	// A long-running request admitted while the breaker was still closed.
	stale, ok := b.Admit("w1")
	if !ok {
		t.Fatalf("closed breaker must admit")
	}
	failTimes(t, b, "w1", 5)
	if s := b.Snapshot("w1"); s.State != BreakerOpen {
		t.Fatalf("expected open after threshold, got %+v", s)
	}

	b.now = func() time.Time { return base.Add(31 * time.Second) }
	trial, ok := b.Admit("w1")
	if !ok {
		t.Fatalf("expected trial admission after cooldown")
	}

	// The stale request finishes while the trial is undecided: it must not
	// free the slot, close the breaker, or reopen it.
	stale.Release()
	if _, ok := b.Admit("w1"); ok {
		t.Fatalf("stale release must not free the in-flight trial slot")
	}
	stale.Success()
	if s := b.Snapshot("w1"); s.State != BreakerHalfOpen {
		t.Fatalf("stale success must not close a half-open breaker, got %+v", s)
	}
	stale.Failure()
	if s := b.Snapshot("w1"); s.State != BreakerHalfOpen {
		t.Fatalf("stale failure must not disturb the trial, got %+v", s)
	}

	trial.Success()
	if s := b.Snapshot("w1"); s.State != BreakerClosed || s.ConsecutiveFailures != 0 {
		t.Fatalf("trial holder's success must close the breaker, got %+v", s)
	}
}

func TestBreakerStaleTrialFromEarlierEpochIsInert(t *testing.T) {
	b := NewBreakerBoard(1, time.Second)
	base := time.Now()
	b.now = func() time.Time { return base }
	failTimes(t, b, "w1", 1)

	b.now = func() time.Time { return base.Add(2 * time.Second) }
	first, ok := b.Admit("w1")
	if !ok {
		t.Fatalf("expected trial admission")
	}
	first.Release()
	second, ok := b.Admit("w1")
	if !ok {
		t.Fatalf("released slot must be claimable")
	}

	// The first trial resolving late must not act on the second's slot.
	first.Success()
	if s := b.Snapshot("w1"); s.State != BreakerHalfOpen {
		t.Fatalf("earlier-epoch success must be ignored, got %+v", s)
	}
	first.Release()
	if _, ok := b.Admit("w1"); ok {
		t.Fatalf("earlier-epoch release must not free the slot")
	}
	second.Failure()
	if s := b.Snapshot("w1"); s.State != BreakerOpen {
		t.Fatalf("current trial failure must reopen, got %+v", s)
	}
}

func TestBreakerUnknownWorkerIsClosed(t *testing.T) {
	b := NewBreakerBoard(5, time.Second)
	if _, ok := b.Admit("never-seen"); !ok {
		t.Fatalf("worker with no breaker history must be admitted")
	}
	if s := b.Snapshot("never-seen"); s.State != BreakerClosed {
		t.Fatalf("expected closed snapshot, got %+v", s)
	}
}
