package executor

import "sync/atomic"

// CancelFlag is the single shared cancellation flag described in the
// concurrency model: set by the UI or a signal handler, polled by the
// executor between reads.
type CancelFlag struct {
	set atomic.Bool
}

// Request raises the flag.
func (c *CancelFlag) Request() { c.set.Store(true) }

// Reset lowers the flag. Called at the entry of every RunCLI so a stale
// cancellation from a prior run never poisons the next one.
func (c *CancelFlag) Reset() { c.set.Store(false) }

// IsSet reports the current state.
func (c *CancelFlag) IsSet() bool { return c.set.Load() }
