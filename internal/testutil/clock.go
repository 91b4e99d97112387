// Package testutil provides deterministic clocks and node identities for
// tests and scenario runs.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the wall time a StepClock reports before its first tick.
var Epoch = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

// StepClock is a thread-safe logical clock for scenario steps.
//
// Next numbers steps 1, 2, 3, ... and Now reports Epoch plus one second
// per tick, so soft-delete timestamps are reproducible.
type StepClock struct {
	mu  sync.Mutex
	seq int64
}

// NewStepClock creates a clock starting at 0. The first call to Next returns 1.
func NewStepClock() *StepClock {
	return &StepClock{}
}

// Next increments and returns the step number.
func (c *StepClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the step number without incrementing.
func (c *StepClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Now returns Epoch advanced by the current step number in seconds.
// It has the signature nodes.WithClock expects.
func (c *StepClock) Now() time.Time {
	return Epoch.Add(time.Duration(c.Current()) * time.Second)
}

// Reset rewinds the clock to 0.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
