// Package pakchain runs a sequence of named steps, stopping at the first
// failure, and folds any sibling cleanup errors that occur while unwinding.
//
// It is used by the builder's finalize sequence (rehome index, prepare
// secondary regions, write index, write regions, write trailer — stopping
// at the first failure). The trailer probe does not use it.
package pakchain

import "go.uber.org/multierr"

// Chain runs steps in order and records the first failure. Once a step
// fails, later Thenf calls are no-ops; Cleanup, by contrast, always
// runs and folds its own errors in alongside the original failure.
type Chain struct {
	step int
	err  error
}

func New() *Chain { return &Chain{} }

// Thenf runs f if the chain hasn't failed yet, recording its error.
func (c *Chain) Thenf(name string, f func() error) *Chain {
	if c.err != nil {
		return c
	}
	c.step++
	if err := f(); err != nil {
		c.err = &StepError{Step: name, Err: err}
	}
	return c
}

// Cleanup always runs f, even after a prior failure, and folds any error it
// returns into the chain's accumulated error via multierr.
func (c *Chain) Cleanup(name string, f func() error) *Chain {
	if err := f(); err != nil {
		c.err = multierr.Append(c.err, &StepError{Step: name, Err: err})
	}
	return c
}

// Err returns the accumulated error, or nil if every step succeeded.
func (c *Chain) Err() error { return c.err }

// StepError names which step of a Chain failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return e.Step + ": " + e.Err.Error() }
func (e *StepError) Unwrap() error { return e.Err }
