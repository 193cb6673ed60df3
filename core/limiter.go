package core

import (
	"fmt"
	"sync"
)

// DefaultMaxTurns is the turn budget applied when a run does not specify one.
const DefaultMaxTurns = 6

// TurnLimiter enforces the maximum number of turns allowed per run.
type TurnLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewTurnLimiter creates a limiter with a max number of turns. Values below
// one fall back to DefaultMaxTurns.
func NewTurnLimiter(max int) *TurnLimiter {
	if max <= 0 {
		max = DefaultMaxTurns
	}
	return &TurnLimiter{max: max}
}

// Increment records a taken turn and returns an error if the limit is exceeded.
func (tl *TurnLimiter) Increment() error {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.count >= tl.max {
		return fmt.Errorf("exceeded max turns: %d", tl.max)
	}
	tl.count++

	return nil
}

// Exhausted reports whether every allowed turn has been taken.
func (tl *TurnLimiter) Exhausted() bool {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	return tl.count >= tl.max
}

// Count returns the number of turns taken.
func (tl *TurnLimiter) Count() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	return tl.count
}

// Max returns the configured turn budget.
func (tl *TurnLimiter) Max() int { return tl.max }

// Remaining returns how many turns are left.
func (tl *TurnLimiter) Remaining() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	return tl.max - tl.count
}
