package session

import (
	"time"
)

// TimerPhase is the phase of a question timer.
type TimerPhase string

const (
	PhaseCountdown TimerPhase = "countdown"
	PhaseRunning   TimerPhase = "running"
	PhasePaused    TimerPhase = "paused"
	PhaseExpired   TimerPhase = "expired"
)

// FinalSeconds is the threshold under which ticks carry IsFinalTenSeconds.
const FinalSeconds = 10 * time.Second

// TimerState is an immutable timer value. Every transition returns a new value.
// Remaining time is always derived from the clock, never decremented.
type TimerState struct {
	QuestionIndex     int
	Phase             TimerPhase
	StartedAt         time.Time
	AccumulatedPaused time.Duration
	PausedAt          time.Time
	Duration          time.Duration
	// resumeTo is the phase a paused timer returns to.
	resumeTo TimerPhase
}

func newTimer(questionIndex int, phase TimerPhase, now time.Time, d time.Duration) TimerState {
	return TimerState{
		QuestionIndex: questionIndex,
		Phase:         phase,
		StartedAt:     now,
		Duration:      d,
	}
}

// Ticking reports whether the timer is counting down.
func (t TimerState) Ticking() bool {
	return t.Phase == PhaseCountdown || t.Phase == PhaseRunning
}

// Remaining is duration - (now - startedAt - accumulatedPaused), clamped to zero.
// A paused timer is frozen at its pause instant.
func (t TimerState) Remaining(now time.Time) time.Duration {
	switch t.Phase {
	case PhaseExpired:
		return 0
	case PhasePaused:
		now = t.PausedAt
	}
	rem := t.Duration - (now.Sub(t.StartedAt) - t.AccumulatedPaused)
	if rem < 0 {
		return 0
	}
	if rem > t.Duration {
		return t.Duration
	}
	return rem
}

// Elapsed is the active (unpaused) time since the timer started.
func (t TimerState) Elapsed(now time.Time) time.Duration {
	return t.Duration - t.Remaining(now)
}

// Due reports whether a ticking timer has run out.
func (t TimerState) Due(now time.Time) bool {
	return t.Ticking() && t.Remaining(now) == 0
}

// Overdue reports whether a ticking timer is strictly past its deadline. An
// instant exactly at the deadline still belongs to the running phase.
func (t TimerState) Overdue(now time.Time) bool {
	return t.Ticking() && now.Sub(t.StartedAt)-t.AccumulatedPaused > t.Duration
}

// Pause freezes a ticking timer. Other phases are returned unchanged with ok=false.
func (t TimerState) Pause(now time.Time) (TimerState, bool) {
	if !t.Ticking() {
		return t, false
	}
	next := t
	next.resumeTo = t.Phase
	next.Phase = PhasePaused
	next.PausedAt = now
	return next, true
}

// Resume adds the paused interval to the accumulated pause, which makes the
// remaining time at resume exactly the remaining time at pause.
func (t TimerState) Resume(now time.Time) (TimerState, bool) {
	if t.Phase != PhasePaused {
		return t, false
	}
	next := t
	next.AccumulatedPaused += now.Sub(t.PausedAt)
	next.Phase = t.resumeTo
	next.PausedAt = time.Time{}
	next.resumeTo = ""
	return next, true
}

// Restart discards all accounting and starts over at the full duration.
// A paused timer restarts paused.
func (t TimerState) Restart(now time.Time) (TimerState, bool) {
	switch t.Phase {
	case PhaseCountdown, PhaseRunning:
		return newTimer(t.QuestionIndex, t.Phase, now, t.Duration), true
	case PhasePaused:
		fresh := newTimer(t.QuestionIndex, PhasePaused, now, t.Duration)
		fresh.PausedAt = now
		fresh.resumeTo = t.resumeTo
		return fresh, true
	default:
		return t, false
	}
}

// Expire marks the timer as finished.
func (t TimerState) Expire() TimerState {
	next := t
	next.Phase = PhaseExpired
	next.PausedAt = time.Time{}
	next.resumeTo = ""
	return next
}

// View renders the timer for clients.
func (t TimerState) View(now time.Time) *TimerView {
	v := &TimerView{
		QuestionIndex:       t.QuestionIndex,
		Phase:               t.Phase,
		StartedAt:           t.StartedAt,
		AccumulatedPausedMs: t.AccumulatedPaused.Milliseconds(),
		DurationMs:          t.Duration.Milliseconds(),
		RemainingMs:         t.Remaining(now).Milliseconds(),
	}
	if t.Phase == PhasePaused {
		pausedAt := t.PausedAt
		v.PausedAt = &pausedAt
	}
	return v
}

// displaySeconds rounds remaining time up to whole seconds, so a fresh 30s
// timer shows 30 and reaches 0 only on expiry.
func displaySeconds(remaining time.Duration) int {
	secs := remaining / time.Second
	if remaining%time.Second != 0 {
		secs++
	}
	return int(secs)
}
